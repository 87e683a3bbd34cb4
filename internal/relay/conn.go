package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/livescribe/internal/archive"
	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/tracking"
	"github.com/eleven-am/livescribe/internal/transcription"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	flushPeriod    = 5 * time.Second
	maxMessageSize = 8 * 1024 * 1024
	finishTimeout  = 5 * time.Second

	backendUnavailable = "transcription backend unavailable"
)

// streamConn relays one client websocket to one sidecar stream.
type streamConn struct {
	ws       *websocket.Conn
	id       string
	decode   chunkDecoder
	tracker  *tracking.Store
	segments *archive.Store
	logger   *slog.Logger

	sttMu   sync.RWMutex
	stt     transcription.Transcriber
	started chan struct{}

	send       chan any
	closing    chan struct{}
	closeOnce  sync.Once
	closeCode  int
	done       chan struct{}
	doneOnce   sync.Once
	recovering atomic.Bool
	failed     atomic.Bool

	samples    atomic.Int64
	finals     atomic.Int64
	interims   atomic.Int64
	audioBytes atomic.Int64
}

func newStreamConn(ws *websocket.Conn, id string, decode chunkDecoder, tracker *tracking.Store, segments *archive.Store, logger *slog.Logger) *streamConn {
	return &streamConn{
		ws:       ws,
		id:       id,
		decode:   decode,
		tracker:  tracker,
		segments: segments,
		logger:   logger.With("session_id", id),
		started:  make(chan struct{}),
		send:     make(chan any, 256),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *streamConn) callbacks() transcription.Callbacks {
	return transcription.Callbacks{
		OnTranscript: c.onTranscript,
		OnError:      c.onError,
	}
}

func (c *streamConn) attach(stt transcription.Transcriber) {
	c.sttMu.Lock()
	c.stt = stt
	c.sttMu.Unlock()
	close(c.started)
}

func (c *streamConn) transcriber() transcription.Transcriber {
	<-c.started
	c.sttMu.RLock()
	defer c.sttMu.RUnlock()
	return c.stt
}

func (c *streamConn) offsetMs() int64 {
	return audio.SamplesDuration(int(c.samples.Load()), SidecarSampleRate).Milliseconds()
}

func (c *streamConn) onTranscript(ev transcription.TranscriptEvent) {
	if ev.IsPartial {
		c.interims.Add(1)
	} else {
		c.finals.Add(1)
		if c.segments != nil && ev.Text != "" {
			seg := &archive.Segment{SessionID: c.id, OffsetMs: c.offsetMs(), Text: ev.Text}
			if err := c.segments.Append(context.Background(), seg); err != nil && !errors.Is(err, archive.ErrEmptySegment) {
				c.logger.Warn("failed to archive segment", "error", err)
			}
		}
	}
	c.enqueue(transcriptMessage{Transcript: ev.Text, IsFinal: !ev.IsPartial})
}

func (c *streamConn) onError(err error) {
	if errors.Is(err, transcription.ErrSidecar) {
		c.logger.Warn("sidecar reported an error", "error", err)
		c.fail(err.Error())
		return
	}
	go c.recover(err)
}

// recover gives a failed sidecar stream one reconnect cycle before the
// client is told and disconnected.
func (c *streamConn) recover(cause error) {
	if c.isDone() || !c.recovering.CompareAndSwap(false, true) {
		return
	}
	defer c.recovering.Store(false)

	stt := c.transcriber()
	if stt == nil {
		return
	}

	c.logger.Warn("sidecar stream failed, reconnecting", "error", cause)
	if err := stt.ReconnectSync(); err != nil {
		if c.isDone() {
			return
		}
		c.logger.Error("sidecar reconnect failed", "error", err)
		c.fail(backendUnavailable)
		return
	}
	c.logger.Info("sidecar stream restored")
}

func (c *streamConn) fail(reason string) {
	c.failed.Store(true)
	c.enqueue(errorMessage{Error: reason})
	c.closeWith(websocket.CloseInternalServerErr)
}

func (c *streamConn) enqueue(msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message")
	}
}

func (c *streamConn) closeWith(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.closing)
	})
}

func (c *streamConn) shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *streamConn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *streamConn) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if kind != websocket.BinaryMessage || len(message) == 0 {
			continue
		}
		c.audioBytes.Add(int64(len(message)))

		samples, err := c.decode(message)
		if err != nil {
			c.logger.Warn("dropping undecodable chunk", "error", err, "bytes", len(message))
			continue
		}
		if len(samples) == 0 {
			continue
		}

		stt := c.transcriber()
		if stt == nil {
			return
		}
		if err := stt.SendAudio(audio.Int16ToPCMBytes(samples)); err != nil {
			c.logger.Debug("dropping chunk while sidecar is unavailable", "error", err)
			continue
		}
		c.samples.Add(int64(len(samples)))
	}
}

func (c *streamConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	flush := time.NewTicker(flushPeriod)
	defer func() {
		ping.Stop()
		flush.Stop()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				c.shutdown()
				return
			}

		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-flush.C:
			c.flushActivity()

		case <-c.closing:
			c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, ""), time.Now().Add(writeWait))
			c.shutdown()
			return

		case <-c.done:
			return
		}
	}
}

func (c *streamConn) write(msg any) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *streamConn) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *streamConn) flushActivity() {
	if c.tracker == nil {
		return
	}
	delta := tracking.Activity{
		Finals:     c.finals.Swap(0),
		Interims:   c.interims.Swap(0),
		AudioBytes: c.audioBytes.Swap(0),
	}
	if delta == (tracking.Activity{}) {
		return
	}
	if err := c.tracker.Touch(context.Background(), c.id, delta); err != nil {
		c.logger.Warn("failed to record activity", "error", err)
	}
}

// finish drains the sidecar's remaining finals into the archive and closes it.
func (c *streamConn) finish() {
	stt := c.transcriber()
	if stt != nil {
		if !c.failed.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
			if err := stt.Finish(ctx); err != nil {
				c.logger.Debug("sidecar finish incomplete", "error", err)
			}
			cancel()
		}
		_ = stt.Close()
	}

	c.flushActivity()
	if c.tracker == nil {
		return
	}
	status := tracking.StatusEnded
	if c.failed.Load() {
		status = tracking.StatusError
	}
	if err := c.tracker.End(context.Background(), c.id, status); err != nil {
		c.logger.Warn("failed to end session record", "error", err)
	}
}

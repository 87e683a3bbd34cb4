package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/link"
	"github.com/eleven-am/livescribe/internal/shared"
	"github.com/eleven-am/livescribe/internal/transcript"
)

type phase int

const (
	phaseIdle phase = iota
	phaseStarting
	phaseCapturing
	phasePaused
)

// dialToken identifies one Open attempt and the link it produces.
type dialToken struct {
	closedEarly bool
}

type sessionState struct {
	phase        phase
	reconnecting bool
	acquiring    bool
	gen          uint64

	sessionID   string
	startedAt   time.Time
	activeSince time.Time
	accumulated time.Duration
	retryCount  int
	lastOpenErr error

	ledger   *transcript.Ledger
	link     link.Link
	linkTok  *dialToken
	dialTok  *dialToken
	producer capture.Producer

	retry    *clock.Timer
	retrySeq uint64

	ctx        context.Context
	cancel     context.CancelFunc
	startReply chan error
}

type (
	cmdStart    struct{ reply chan error }
	cmdPause    struct{ reply chan error }
	cmdResume   struct{ reply chan error }
	cmdStop     struct{ reply chan error }
	cmdSnapshot struct{ reply chan Snapshot }

	linkOpened struct {
		tok  *dialToken
		link link.Link
		err  error
	}
	linkEvent struct {
		tok *dialToken
		ev  link.Event
	}
	linkClosed struct {
		tok      *dialToken
		wasClean bool
	}
	retryFire struct {
		gen uint64
		seq uint64
	}
	captureReady struct {
		gen      uint64
		producer capture.Producer
		err      error
	}
	audioChunk struct {
		gen  uint64
		data []byte
	}
	captureEnded struct {
		gen uint64
	}
)

func (c *Controller) run() {
	defer close(c.exited)
	for {
		select {
		case <-c.quit:
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

func (c *Controller) dispatch(ev any) {
	switch e := ev.(type) {
	case cmdStart:
		c.handleStart(e)
	case cmdPause:
		e.reply <- c.handlePause()
	case cmdResume:
		e.reply <- c.handleResume()
	case cmdStop:
		c.handleStop()
		e.reply <- nil
	case cmdSnapshot:
		e.reply <- c.snapshot()
	case linkOpened:
		c.handleLinkOpened(e)
	case linkEvent:
		c.handleLinkEvent(e)
	case linkClosed:
		c.handleLinkClosed(e)
	case retryFire:
		c.handleRetryFire(e)
	case captureReady:
		c.handleCaptureReady(e)
	case audioChunk:
		if e.gen == c.st.gen && c.st.link != nil {
			c.st.link.Send(e.data)
		}
	case captureEnded:
		c.handleCaptureEnded(e)
	default:
		c.logger.Error("unknown session event", "type", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) handleStart(cmd cmdStart) {
	st := &c.st
	if st.phase != phaseIdle {
		cmd.reply <- ErrAlreadyActive
		return
	}

	st.gen++
	st.ctx, st.cancel = context.WithCancel(context.Background())
	st.sessionID = shared.NewID("ses_")
	st.ledger.Reset()
	st.retryCount = 0
	st.reconnecting = false
	st.lastOpenErr = nil

	now := c.clock.Now()
	st.startedAt = now
	st.activeSince = now
	st.accumulated = 0
	st.phase = phaseStarting
	st.startReply = cmd.reply

	c.logger.Info("session starting", "session_id", st.sessionID, "source", c.opts.Source)
	c.emitTranscript()
	c.emitState()
	c.dial()
}

func (c *Controller) handlePause() error {
	st := &c.st
	if st.phase != phaseCapturing || st.reconnecting {
		return ErrInvalidState
	}

	st.producer.Pause()
	st.accumulated = c.elapsed()
	st.phase = phasePaused

	ts := st.accumulated.Milliseconds()
	st.ledger.ForceFinalize()
	st.ledger.AppendUser(MsgPaused, ts)

	c.logger.Info("session paused", "session_id", st.sessionID, "elapsed_ms", ts)
	c.notice(NoticeInfo, MsgPaused, nil)
	c.emitTranscript()
	c.emitState()
	return nil
}

func (c *Controller) handleResume() error {
	st := &c.st
	if st.phase != phasePaused {
		return ErrInvalidState
	}

	st.producer.Resume()
	st.activeSince = c.clock.Now()
	st.phase = phaseCapturing
	st.ledger.AppendUser(MsgResumed, c.elapsedMs())

	c.logger.Info("session resumed", "session_id", st.sessionID)
	c.notice(NoticeInfo, MsgResumed, nil)
	c.emitTranscript()
	c.emitState()
	return nil
}

func (c *Controller) handleStop() {
	st := &c.st
	if st.phase == phaseIdle {
		return
	}

	st.accumulated = c.elapsed()
	ts := st.accumulated.Milliseconds()
	st.ledger.ForceFinalize()
	st.ledger.AppendUser(MsgStopped, ts)

	c.teardown()
	st.phase = phaseIdle
	c.finishStart(ErrStopped)

	c.logger.Info("session stopped", "session_id", st.sessionID, "elapsed_ms", ts, "events", st.ledger.Len())
	c.notice(NoticeInfo, MsgStopped, nil)
	c.emitTranscript()
	c.emitState()
}

func (c *Controller) dial() {
	tok := &dialToken{}
	c.st.dialTok = tok
	ctx := c.st.ctx

	go func() {
		l, err := c.dialer.Open(ctx, link.Callbacks{
			OnEvent: func(ev link.Event) { c.post(linkEvent{tok: tok, ev: ev}) },
			OnClose: func(clean bool) { c.post(linkClosed{tok: tok, wasClean: clean}) },
		})
		if !c.post(linkOpened{tok: tok, link: l, err: err}) && l != nil {
			_ = l.Close()
		}
	}()
}

func (c *Controller) handleLinkOpened(e linkOpened) {
	st := &c.st
	if e.tok != st.dialTok || st.phase == phaseIdle {
		if e.link != nil {
			_ = e.link.Close()
		}
		return
	}
	st.dialTok = nil

	if e.err != nil {
		st.lastOpenErr = e.err
		c.logger.Warn("link open failed", "session_id", st.sessionID, "error", e.err, "retry_count", st.retryCount)
		c.linkLost()
		return
	}
	if e.tok.closedEarly {
		_ = e.link.Close()
		c.linkLost()
		return
	}

	st.link = e.link
	st.linkTok = e.tok
	st.retryCount = 0
	st.lastOpenErr = nil

	if st.reconnecting {
		st.reconnecting = false
		st.ledger.AppendUser(MsgReconnect, c.elapsedMs())
		c.logger.Info("link reconnected", "session_id", st.sessionID)
		c.notice(NoticeInfo, MsgReconnect, nil)
		c.emitTranscript()
	}
	if st.phase == phaseStarting && st.producer == nil && !st.acquiring {
		c.acquire()
	}
	c.emitState()
}

func (c *Controller) handleLinkEvent(e linkEvent) {
	st := &c.st
	if st.phase == phaseIdle || e.tok == nil || (e.tok != st.linkTok && e.tok != st.dialTok) {
		return
	}
	if st.ledger.ApplyRecognition(e.ev.Transcript, e.ev.IsFinal, c.elapsedMs()) {
		c.emitTranscript()
	}
}

func (c *Controller) handleLinkClosed(e linkClosed) {
	st := &c.st
	if e.tok != nil && e.tok == st.dialTok {
		e.tok.closedEarly = true
		return
	}
	if e.tok == nil || e.tok != st.linkTok {
		return
	}
	c.logger.Warn("link closed unexpectedly", "session_id", st.sessionID, "clean", e.wasClean)
	c.linkLost()
}

// linkLost consults the backoff policy after the current link failed or could not be opened.
func (c *Controller) linkLost() {
	st := &c.st
	st.link = nil
	st.linkTok = nil
	if st.phase == phaseIdle {
		return
	}

	policy := c.opts.Backoff
	if policy.ShouldRetry(st.retryCount) {
		delay := policy.DelayFor(st.retryCount)
		st.retryCount++
		st.retrySeq++
		gen, seq := st.gen, st.retrySeq
		st.retry = c.clock.AfterFunc(delay, func() {
			c.post(retryFire{gen: gen, seq: seq})
		})

		// Before the first open there is nothing in the ledger to annotate.
		if st.phase == phaseStarting && !st.acquiring {
			msg := fmt.Sprintf("Could not connect. Retrying in %s (attempt %d/%d)...", delay, st.retryCount, policy.MaxAttempts)
			c.notice(NoticeWarning, msg, nil)
		} else {
			st.reconnecting = true
			msg := fmt.Sprintf("Connection lost. Reconnecting in %s (attempt %d/%d)...", delay, st.retryCount, policy.MaxAttempts)
			st.ledger.AppendUser(msg, c.elapsedMs())
			c.notice(NoticeWarning, msg, nil)
			c.emitTranscript()
		}
		c.emitState()
		return
	}

	if st.phase == phaseStarting {
		err := st.lastOpenErr
		if err == nil {
			err = fmt.Errorf("%w: link closed before capture started", link.ErrLinkOpen)
		}
		err = fmt.Errorf("%w: %w", capture.ErrCaptureUnavailable, err)
		c.teardown()
		st.phase = phaseIdle
		c.logger.Error("session start failed", "session_id", st.sessionID, "error", err)
		c.notice(NoticeError, "Could not connect to the transcription service.", err)
		c.finishStart(err)
		c.emitState()
		return
	}

	c.fail(MsgExhausted, ErrReconnectExhausted)
}

func (c *Controller) handleRetryFire(e retryFire) {
	st := &c.st
	if e.gen != st.gen || e.seq != st.retrySeq || st.retry == nil || st.phase == phaseIdle {
		return
	}
	st.retry = nil
	c.logger.Info("reconnecting", "session_id", st.sessionID, "attempt", st.retryCount)
	c.dial()
}

func (c *Controller) acquire() {
	st := &c.st
	st.acquiring = true
	gen, ctx := st.gen, st.ctx

	go func() {
		p, err := c.capturer.Acquire(ctx, c.opts.Source, c.opts.Capture)
		if !c.post(captureReady{gen: gen, producer: p, err: err}) && p != nil {
			_ = p.Stop()
		}
	}()
}

func (c *Controller) handleCaptureReady(e captureReady) {
	st := &c.st
	if e.gen != st.gen || st.phase != phaseStarting {
		if e.producer != nil {
			_ = e.producer.Stop()
		}
		return
	}
	st.acquiring = false

	if e.err != nil {
		c.teardown()
		st.phase = phaseIdle
		c.logger.Error("capture unavailable", "session_id", st.sessionID, "error", e.err)
		c.notice(NoticeError, captureMessage(e.err), e.err)
		c.finishStart(e.err)
		c.emitState()
		return
	}

	st.producer = e.producer
	st.phase = phaseCapturing
	go c.forward(st.gen, e.producer)

	c.logger.Info("session capturing", "session_id", st.sessionID)
	c.finishStart(nil)
	c.emitState()
}

func (c *Controller) forward(gen uint64, p capture.Producer) {
	for chunk := range p.Chunks() {
		if !c.post(audioChunk{gen: gen, data: chunk}) {
			return
		}
	}
	c.post(captureEnded{gen: gen})
}

func (c *Controller) handleCaptureEnded(e captureEnded) {
	if e.gen != c.st.gen || c.st.phase == phaseIdle {
		return
	}
	c.fail(MsgCapture, ErrCaptureEnded)
}

// fail ends an established session with a terminal user event and an error notice.
func (c *Controller) fail(msg string, err error) {
	st := &c.st
	st.accumulated = c.elapsed()
	ts := st.accumulated.Milliseconds()
	st.ledger.ForceFinalize()
	st.ledger.AppendUser(msg, ts)

	c.teardown()
	st.phase = phaseIdle

	c.logger.Error("session failed", "session_id", st.sessionID, "error", err)
	c.notice(NoticeError, msg, err)
	c.emitTranscript()
	c.emitState()
}

// teardown releases the capture pipeline, the link and any pending retry exactly once per session.
func (c *Controller) teardown() {
	st := &c.st
	st.gen++
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	if st.retry != nil {
		st.retry.Stop()
		st.retry = nil
	}
	st.dialTok = nil
	if st.producer != nil {
		if err := st.producer.Stop(); err != nil {
			c.logger.Warn("capture stop failed", "session_id", st.sessionID, "error", err)
		}
		st.producer = nil
	}
	if st.link != nil {
		_ = st.link.Close()
		st.link = nil
	}
	st.linkTok = nil
	st.reconnecting = false
	st.acquiring = false
}

func (c *Controller) finishStart(err error) {
	if c.st.startReply != nil {
		c.st.startReply <- err
		c.st.startReply = nil
	}
}

func (c *Controller) elapsed() time.Duration {
	st := &c.st
	switch st.phase {
	case phaseStarting, phaseCapturing:
		return st.accumulated + c.clock.Since(st.activeSince)
	default:
		return st.accumulated
	}
}

func (c *Controller) elapsedMs() int64 {
	return c.elapsed().Milliseconds()
}

func (c *Controller) status() Status {
	st := &c.st
	s := Status{
		SessionID:    st.sessionID,
		IsCapturing:  st.phase == phaseCapturing,
		IsPaused:     st.phase == phasePaused,
		Reconnecting: st.reconnecting,
		StartedAt:    st.startedAt,
		ElapsedMs:    c.elapsedMs(),
		RetryCount:   st.retryCount,
	}
	switch st.phase {
	case phaseStarting:
		s.State = StateStarting
	case phaseCapturing:
		s.State = StateCapturing
		if st.reconnecting {
			s.State = StateReconnecting
		}
	case phasePaused:
		s.State = StatePaused
	default:
		s.State = StateIdle
	}
	return s
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Status:     c.status(),
		Transcript: c.st.ledger.Render(),
		Events:     c.st.ledger.Events(),
	}
	if interim, ok := c.st.ledger.Interim(); ok {
		snap.Interim = &interim
	}
	return snap
}

func (c *Controller) emitState() {
	if c.cb.OnState != nil {
		c.cb.OnState(c.status())
	}
}

func (c *Controller) emitTranscript() {
	if c.cb.OnTranscript != nil {
		c.cb.OnTranscript(c.st.ledger.Render())
	}
}

func (c *Controller) notice(level NoticeLevel, msg string, err error) {
	if c.cb.OnNotice != nil {
		c.cb.OnNotice(Notice{Level: level, Message: msg, Err: err})
	}
}

func captureMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Microphone permission denied. Grant access and press Start again."
	case errors.Is(err, capture.ErrCaptureUnavailable):
		return "Audio capture is not available: " + err.Error()
	default:
		return "Could not start audio capture: " + err.Error()
	}
}

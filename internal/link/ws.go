package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
	closeGrace     = 2 * time.Second
)

// WSDialer opens websocket links to the relay's streaming endpoint.
type WSDialer struct {
	URL         string
	TokenSource oauth2.TokenSource
	Dialer      *websocket.Dialer
	Logger      *slog.Logger
}

func (d *WSDialer) Open(ctx context.Context, cb Callbacks) (Link, error) {
	header := http.Header{}
	if d.TokenSource != nil {
		tok, err := d.TokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", ErrLinkOpen, err)
		}
		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (status %d)", ErrLinkOpen, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrLinkOpen, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &wsLink{
		conn:   conn,
		cb:     cb,
		logger: logger.With("component", "ws_link"),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	l.state.Store(int32(StateOpen))

	go l.writePump()
	go l.readPump()
	return l, nil
}

type wsLink struct {
	conn   *websocket.Conn
	cb     Callbacks
	logger *slog.Logger

	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closing   atomic.Bool
	closeOnce sync.Once
	endOnce   sync.Once
}

func (l *wsLink) State() State {
	return State(l.state.Load())
}

func (l *wsLink) Send(chunk []byte) {
	if l.State() != StateOpen {
		return
	}
	select {
	case l.send <- chunk:
	case <-l.done:
	default:
		l.logger.Warn("send buffer full, dropping chunk", "bytes", len(chunk))
	}
}

// Close asks the relay to end the stream. OnClose(true) follows once the read side ends.
func (l *wsLink) Close() error {
	l.closeOnce.Do(func() {
		l.closing.Store(true)
		l.state.Store(int32(StateClosed))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		close(l.done)
		time.AfterFunc(closeGrace, func() { _ = l.conn.Close() })
	})
	return nil
}

func (l *wsLink) finish(wasClean bool) {
	l.endOnce.Do(func() {
		l.state.Store(int32(StateClosed))
		l.closeOnce.Do(func() { close(l.done) })
		_ = l.conn.Close()
		if l.cb.OnClose != nil {
			l.cb.OnClose(wasClean)
		}
	})
}

func (l *wsLink) readPump() {
	clean := false
	defer func() { l.finish(clean) }()

	l.conn.SetReadLimit(maxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, payload, err := l.conn.ReadMessage()
		if err != nil {
			clean = l.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if !clean {
				l.logger.Warn("link read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := DecodeEvent(payload)
		if err != nil {
			if errors.Is(err, ErrBackendError) {
				l.logger.Warn("relay reported error", "error", err)
			} else {
				l.logger.Warn("dropping malformed event", "error", err)
			}
			continue
		}
		if l.cb.OnEvent != nil {
			l.cb.OnEvent(ev)
		}
	}
}

func (l *wsLink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				l.logger.Warn("link write failed", "error", err)
				_ = l.conn.Close()
				return
			}
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = l.conn.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}

package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/eleven-am/livescribe/internal/shared"
)

type reconnectState int

const (
	reconnectIdle reconnectState = iota
	reconnectInProgress

	defaultMaxMessageSize = 64 * 1024 * 1024
)

type Client struct {
	addr           string
	conn           *grpc.ClientConn
	stream         grpc.ClientStream
	streamGen      uint64
	streamDone     chan struct{}
	sendMu         sync.Mutex
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	token          string
	dialOpts       []grpc.DialOption
	cb             Callbacks
	opts           SessionOptions
	readyCh        chan struct{}
	finishing      bool
	backoff        shared.BackoffConfig
	reconnectState reconnectState
	reconnectCh    chan error
	logger         *slog.Logger
}

func New(cfg Config, opts SessionOptions, cb Callbacks) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		addr:           cfg.Address,
		ctx:            ctx,
		cancel:         cancel,
		token:          cfg.Token,
		dialOpts:       dialOptions(cfg),
		cb:             cb,
		opts:           opts,
		readyCh:        make(chan struct{}),
		backoff:        normalizeBackoff(cfg.Backoff),
		reconnectState: reconnectIdle,
		reconnectCh:    make(chan error, 1),
		logger:         slog.Default().With("component", "stt_client"),
	}

	if err := c.connectAndStart(); err != nil {
		cancel()
		return nil, err
	}

	return c, nil
}

func dialOptions(cfg Config) []grpc.DialOption {
	var creds grpc.DialOption
	if cfg.TLSCreds != nil {
		creds = grpc.WithTransportCredentials(cfg.TLSCreds)
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	maxMsgSize := cfg.MaxMessageSize
	if maxMsgSize <= 0 {
		maxMsgSize = defaultMaxMessageSize
	}

	opts := []grpc.DialOption{
		creds,
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		),
	}
	return append(opts, cfg.DialOptions...)
}

func withToken(ctx context.Context, token string) context.Context {
	md := metadata.MD{}
	if token != "" {
		md.Set("authorization", fmt.Sprintf("Bearer %s", token))
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return false
	}
	s := conn.GetState()
	return s == connectivity.Ready || s == connectivity.Idle
}

func (c *Client) WaitReady(ctx context.Context) bool {
	c.mu.RLock()
	ready := c.readyCh
	c.mu.RUnlock()

	select {
	case <-ready:
		return true
	case <-ctx.Done():
		return false
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) connectAndStart() error {
	c.logger.Debug("connecting to sidecar", "address", c.addr)
	conn, err := grpc.NewClient(c.addr, c.dialOpts...)
	if err != nil {
		return fmt.Errorf("dial sidecar: %w", err)
	}

	stream, err := conn.NewStream(withToken(c.ctx, c.token), transcribeStream, TranscribeRoute)
	if err != nil {
		conn.Close()
		return fmt.Errorf("open stream: %w", err)
	}

	cfgMsg, err := configMessage(c.opts)
	if err != nil {
		conn.Close()
		return err
	}
	if err := stream.SendMsg(cfgMsg); err != nil {
		conn.Close()
		return fmt.Errorf("send config: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.stream = stream
	c.streamGen++
	gen := c.streamGen
	ready := make(chan struct{})
	done := make(chan struct{})
	c.readyCh = ready
	c.streamDone = done
	c.finishing = false
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	c.logger.Debug("sidecar stream opened", "encoding", c.opts.Encoding)
	go c.readLoop(stream, gen, ready, done)
	return nil
}

func (c *Client) SendAudio(data []byte) error {
	msg, err := audioMessage(data)
	if err != nil {
		return err
	}
	return c.send(msg)
}

func (c *Client) send(msg *anypb.Any) error {
	c.mu.RLock()
	stream := c.stream
	c.mu.RUnlock()
	if stream == nil {
		return ErrStreamNotReady
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return stream.SendMsg(msg)
}

func (c *Client) current(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamGen == gen
}

func (c *Client) readLoop(stream grpc.ClientStream, gen uint64, ready, done chan struct{}) {
	defer close(done)
	readySeen := false

	for {
		var msg anypb.Any
		if err := stream.RecvMsg(&msg); err != nil {
			c.handleStreamEnd(err, gen)
			return
		}
		if !c.current(gen) {
			return
		}

		reply, err := DecodeServerMessage(&msg)
		if err != nil {
			c.logger.Warn("dropping sidecar message", "error", err)
			continue
		}

		switch reply.Type {
		case MessageReady:
			if readySeen {
				continue
			}
			readySeen = true
			close(ready)
			if c.cb.OnReady != nil {
				c.cb.OnReady()
			}
		case MessageTranscript:
			if c.cb.OnTranscript != nil {
				c.cb.OnTranscript(TranscriptEvent{Text: reply.Text, IsPartial: reply.IsPartial})
			}
		case MessageError:
			if c.cb.OnError != nil {
				c.cb.OnError(fmt.Errorf("%w: %s", ErrSidecar, reply.Text))
			}
		}
	}
}

func (c *Client) handleStreamEnd(err error, gen uint64) {
	if c.ctx.Err() != nil || !c.current(gen) {
		return
	}

	c.mu.RLock()
	finishing := c.finishing
	c.mu.RUnlock()

	if errors.Is(err, io.EOF) {
		if finishing {
			return
		}
		err = ErrStreamClosed
	} else if status.Code(err) == codes.Canceled {
		return
	}

	c.logger.Warn("sidecar stream ended", "error", err)
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// Finish sends end of stream and waits until the sidecar has delivered its
// remaining transcripts.
func (c *Client) Finish(ctx context.Context) error {
	end, err := endMessage()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.finishing = true
	done := c.streamDone
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return ErrStreamNotReady
	}

	if err := c.send(end); err != nil {
		return fmt.Errorf("send end: %w", err)
	}
	c.sendMu.Lock()
	err = stream.CloseSend()
	c.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("close send: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Reconnect() error {
	c.mu.Lock()
	if c.reconnectState == reconnectInProgress {
		c.mu.Unlock()
		return nil
	}
	c.reconnectState = reconnectInProgress
	c.reconnectCh = make(chan error, 1)
	c.mu.Unlock()

	go c.reconnectLoop()
	return nil
}

func (c *Client) ReconnectSync() error {
	if err := c.Reconnect(); err != nil {
		return err
	}
	return c.WaitReconnect(c.ctx)
}

func (c *Client) WaitReconnect(ctx context.Context) error {
	c.mu.RLock()
	ch := c.reconnectCh
	c.mu.RUnlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) IsReconnecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnectState == reconnectInProgress
}

func (c *Client) reconnectLoop() {
	cfg := c.backoff

	defer func() {
		c.mu.Lock()
		c.reconnectState = reconnectIdle
		c.mu.Unlock()
	}()

	for attempt := 0; cfg.ShouldRetry(attempt); attempt++ {
		select {
		case <-c.ctx.Done():
			c.notifyReconnect(c.ctx.Err())
			return
		default:
		}

		if err := c.connectAndStart(); err != nil {
			c.logger.Warn("sidecar reconnect attempt failed",
				"attempt", attempt+1,
				"max_attempts", cfg.MaxAttempts,
				"error", err)

			select {
			case <-c.ctx.Done():
				c.notifyReconnect(c.ctx.Err())
				return
			case <-time.After(cfg.DelayFor(attempt)):
			}
			continue
		}

		c.logger.Info("sidecar reconnected", "attempts", attempt+1)
		c.notifyReconnect(nil)
		return
	}

	err := fmt.Errorf("reconnect failed after %d attempts", cfg.MaxAttempts)
	c.logger.Error("sidecar reconnect failed", "error", err)
	c.notifyReconnect(err)
}

func (c *Client) notifyReconnect(err error) {
	c.mu.RLock()
	ch := c.reconnectCh
	c.mu.RUnlock()

	select {
	case ch <- err:
	default:
	}
}

func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.stream = nil
		return err
	}
	return nil
}

func normalizeBackoff(cfg shared.BackoffConfig) shared.BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = 100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	return cfg
}

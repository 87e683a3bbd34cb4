package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/livescribe/internal/capture"
	"github.com/eleven-am/livescribe/internal/link"
	"github.com/eleven-am/livescribe/internal/shared"
	"github.com/eleven-am/livescribe/internal/transcript"
)

type Capturer interface {
	Acquire(ctx context.Context, source capture.Source, cfg capture.Config) (capture.Producer, error)
}

type Options struct {
	Source  capture.Source
	Capture capture.Config
	Backoff shared.BackoffConfig
	Clock   clock.Clock
}

// Controller runs one transcription session at a time. Every input is handled by a single
// goroutine so session state and the ledger are never mutated concurrently.
type Controller struct {
	capturer Capturer
	dialer   link.Dialer
	opts     Options
	cb       Callbacks
	logger   *slog.Logger
	clock    clock.Clock

	events    chan any
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once

	st sessionState
}

func New(capturer Capturer, dialer link.Dialer, opts Options, cb Callbacks, logger *slog.Logger) *Controller {
	opts.Backoff = opts.Backoff.Normalize()
	if opts.Source == "" {
		opts.Source = capture.SourceMicrophone
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	c := &Controller{
		capturer: capturer,
		dialer:   dialer,
		opts:     opts,
		cb:       cb,
		logger:   logger.With("component", "session"),
		clock:    clk,
		events:   make(chan any, 64),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
		st:       sessionState{ledger: transcript.NewLedger()},
	}
	go c.run()
	return c
}

// Start begins a fresh session and blocks until audio is flowing or the attempt fails.
// Cancelling ctx stops the attempt.
func (c *Controller) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if !c.post(cmdStart{reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.exited:
		return ErrClosed
	case <-ctx.Done():
		_ = c.Stop()
		return ctx.Err()
	}
}

func (c *Controller) Pause() error {
	return c.call(func(reply chan error) any { return cmdPause{reply: reply} })
}

func (c *Controller) Resume() error {
	return c.call(func(reply chan error) any { return cmdResume{reply: reply} })
}

// Stop ends the session from any state. Stopping an idle controller is a no-op.
func (c *Controller) Stop() error {
	return c.call(func(reply chan error) any { return cmdStop{reply: reply} })
}

func (c *Controller) Status() Status {
	return c.Snapshot().Status
}

func (c *Controller) Transcript() string {
	return c.Snapshot().Transcript
}

func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.post(cmdSnapshot{reply: reply}) {
		return Snapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-c.exited:
		return Snapshot{}
	}
}

// Close stops any active session and ends the controller goroutine.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Stop()
		close(c.quit)
		<-c.exited
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (c *Controller) call(build func(chan error) any) error {
	reply := make(chan error, 1)
	if !c.post(build(reply)) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.exited:
		return ErrClosed
	}
}

func (c *Controller) post(ev any) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.quit:
		return false
	}
}

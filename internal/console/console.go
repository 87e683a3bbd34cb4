package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/eleven-am/livescribe/internal/session"
	"github.com/eleven-am/livescribe/internal/transcript"
)

var ErrUnknownCommand = errors.New("unknown command")

// Controller is the part of session.Controller the console drives.
type Controller interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() error
	Status() session.Status
	Transcript() string
}

type ExportFormat string

const (
	ExportText ExportFormat = "text"
	ExportJSON ExportFormat = "json"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExportText, "txt":
		return ExportText, nil
	case ExportJSON:
		return ExportJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

type Options struct {
	OutPath   string
	OutFormat ExportFormat
}

// Console maps text commands onto a session controller and prints what it reports.
type Console struct {
	out    io.Writer
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	ctrl     Controller
	rendered string
	cancels  []context.CancelFunc
	starts   sync.WaitGroup
}

func New(out io.Writer, opts Options, logger *slog.Logger) *Console {
	if opts.OutFormat == "" {
		opts.OutFormat = ExportText
	}
	return &Console{
		out:    out,
		opts:   opts,
		logger: logger.With("component", "console"),
	}
}

func (c *Console) Attach(ctrl Controller) {
	c.mu.Lock()
	c.ctrl = ctrl
	c.mu.Unlock()
}

// Callbacks returns the controller callbacks that feed this console.
func (c *Console) Callbacks() session.Callbacks {
	return session.Callbacks{
		OnState:      c.onState,
		OnTranscript: c.onTranscript,
		OnNotice:     c.onNotice,
	}
}

// Run reads commands until quit, EOF or ctx is cancelled. An active session is stopped on the way out.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.printf("commands: start | pause | resume | stop | status | export text|json | quit\n")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case err := <-readErr:
			c.shutdown()
			return err
		case line := <-lines:
			quit, err := c.Execute(ctx, line)
			if err != nil {
				c.printf("error: %v\n", err)
			}
			if quit {
				c.shutdown()
				return nil
			}
		}
	}
}

// Execute runs one command line. quit reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false, nil
	}
	ctrl := c.controller()
	if ctrl == nil {
		return false, errors.New("no controller attached")
	}

	switch fields[0] {
	case "start":
		c.startAsync(ctx, ctrl)
		return false, nil
	case "pause":
		return false, ctrl.Pause()
	case "resume":
		return false, ctrl.Resume()
	case "stop":
		c.cancelStarts()
		if err := ctrl.Stop(); err != nil {
			return false, err
		}
		return false, c.save(ctrl.Transcript())
	case "status":
		c.printStatus(ctrl.Status())
		return false, nil
	case "export":
		format := ExportText
		if len(fields) > 1 {
			if format, err = ParseExportFormat(fields[1]); err != nil {
				return false, err
			}
		}
		data, err := Export(ctrl.Transcript(), format)
		if err != nil {
			return false, err
		}
		c.printf("%s\n", data)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
}

// Export renders a transcript in the requested format.
func Export(rendered string, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportJSON:
		return transcript.MarshalStructured(rendered)
	default:
		return []byte(transcript.PlainText(rendered)), nil
	}
}

// startAsync runs Start off the command loop so stop and quit are read while it is pending.
func (c *Console) startAsync(ctx context.Context, ctrl Controller) {
	startCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	c.starts.Add(1)
	go func() {
		defer c.starts.Done()
		defer cancel()
		err := ctrl.Start(startCtx)
		switch {
		case err == nil:
			c.printf("started\n")
		case errors.Is(err, session.ErrStopped), errors.Is(err, context.Canceled):
		default:
			c.printf("error: start: %v\n", err)
		}
	}()
}

func (c *Console) cancelStarts() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Console) shutdown() {
	ctrl := c.controller()
	if ctrl == nil {
		return
	}
	c.cancelStarts()
	c.starts.Wait()
	if ctrl.Status().State == session.StateIdle {
		return
	}
	if err := ctrl.Stop(); err != nil {
		c.logger.Warn("stop on exit failed", "error", err)
		return
	}
	if err := c.save(ctrl.Transcript()); err != nil {
		c.logger.Error("failed to write transcript", "path", c.opts.OutPath, "error", err)
	}
}

func (c *Console) save(rendered string) error {
	if c.opts.OutPath == "" || rendered == "" {
		return nil
	}
	data, err := Export(rendered, c.opts.OutFormat)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.opts.OutPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	c.logger.Info("transcript written", "path", c.opts.OutPath, "format", c.opts.OutFormat)
	return nil
}

func (c *Console) controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl
}

func (c *Console) onState(s session.Status) {
	c.logger.Debug("state changed", "state", s.State, "retry_count", s.RetryCount)
}

func (c *Console) onTranscript(rendered string) {
	c.mu.Lock()
	changed := rendered != c.rendered
	c.rendered = rendered
	c.mu.Unlock()
	if !changed {
		return
	}
	c.printf("\n----\n%s\n", rendered)
}

func (c *Console) onNotice(n session.Notice) {
	if n.Err != nil {
		c.printf("[%s] %s (%v)\n", n.Level, n.Message, n.Err)
		return
	}
	c.printf("[%s] %s\n", n.Level, n.Message)
}

func (c *Console) printStatus(s session.Status) {
	c.printf("state=%s session=%s elapsed=%s paused=%t reconnecting=%t retries=%d\n",
		s.State, orDash(s.SessionID), transcript.FormatTimestamp(s.ElapsedMs), s.IsPaused, s.Reconnecting, s.RetryCount)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

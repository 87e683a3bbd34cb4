package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	warmUp      = 250 * time.Millisecond
	stopTimeout = 1200 * time.Millisecond
)

var permissionMarkers = []string{
	"permission denied",
	"access denied",
	"not authorized",
	"operation not permitted",
}

// FFmpegCapturer acquires audio by running ffmpeg and reading raw PCM16 from its stdout.
type FFmpegCapturer struct {
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

func NewFFmpegCapturer(logger *slog.Logger) *FFmpegCapturer {
	return &FFmpegCapturer{
		logger:   logger.With("component", "capture"),
		lookPath: exec.LookPath,
	}
}

func (c *FFmpegCapturer) Acquire(ctx context.Context, source Source, cfg Config) (Producer, error) {
	cfg = cfg.withDefaults()

	device := cfg.MicrophoneDevice
	switch source {
	case SourceMicrophone:
	case SourceTab:
		if cfg.TabDevice == "" {
			return nil, fmt.Errorf("%w: tab capture needs a monitor device", ErrCaptureUnavailable)
		}
		device = cfg.TabDevice
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrCaptureUnavailable, source)
	}

	bin, err := c.lookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	enc, err := newChunkEncoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.Command(bin, args...)
	var stderr syncBuffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrCaptureUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrCaptureUnavailable, cfg.Command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyEarlyExit(err, stderr.String())
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(warmUp):
	}

	proc := &ffmpegProcess{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}

	c.logger.Info("capture started",
		"source", source,
		"device", device,
		"sample_rate", cfg.SampleRate,
		"encoding", cfg.Encoding,
		"cadence", cfg.Cadence,
	)

	return newProducer(stdout, proc.stop, enc, cfg, c.logger), nil
}

func classifyEarlyExit(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", ErrCaptureUnavailable, err, detail)
	}
	return fmt.Errorf("%w: ffmpeg exited before capture started", ErrCaptureUnavailable)
}

type ffmpegProcess struct {
	stdout  io.ReadCloser
	stderr  *syncBuffer
	process *os.Process
	waitErr <-chan error
}

// stop interrupts ffmpeg, escalating to kill when it does not exit in time.
func (p *ffmpegProcess) stop() error {
	_ = p.process.Signal(os.Interrupt)

	var stopErr error
	select {
	case err, ok := <-p.waitErr:
		if ok {
			stopErr = normalizeExitErr(err)
		}
	case <-time.After(stopTimeout):
		_ = p.process.Kill()
		if err, ok := <-p.waitErr; ok {
			stopErr = normalizeExitErr(err)
		}
	}

	if err := p.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && stopErr == nil {
		stopErr = err
	}
	if stopErr != nil {
		if detail := strings.TrimSpace(p.stderr.String()); detail != "" {
			stopErr = fmt.Errorf("%w: %s", stopErr, detail)
		}
	}
	return stopErr
}

func normalizeExitErr(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

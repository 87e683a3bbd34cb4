package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/livescribe/internal/session"
	"github.com/eleven-am/livescribe/internal/transcript"
)

type fakeController struct {
	mu         sync.Mutex
	calls      []string
	state      session.State
	transcript string
	startErr   error
	blockStart bool
	stopped    chan struct{}
	stopOnce   sync.Once
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeController) Start(ctx context.Context) error {
	f.record("start")
	if f.blockStart {
		select {
		case <-f.stopped:
			return session.ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.state = session.StateCapturing
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Pause() error {
	f.record("pause")
	return nil
}

func (f *fakeController) Resume() error {
	f.record("resume")
	return nil
}

func (f *fakeController) Stop() error {
	f.record("stop")
	f.stopOnce.Do(func() { close(f.stopped) })
	f.mu.Lock()
	f.state = session.StateIdle
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Status{State: f.state, SessionID: "ses_1", ElapsedMs: 65000}
}

func (f *fakeController) Transcript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcript
}

func (f *fakeController) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConsole(opts Options) (*Console, *fakeController, *syncBuffer) {
	out := &syncBuffer{}
	ctrl := &fakeController{transcript: "[00:01] hello\n[00:03] world", stopped: make(chan struct{})}
	c := New(out, opts, testLogger())
	c.Attach(ctrl)
	return c, ctrl, out
}

func TestExecute_MapsCommands(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"start", "start"},
		{"  PAUSE ", "pause"},
		{"resume", "resume"},
		{"stop", "stop"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c, ctrl, _ := newTestConsole(Options{})
			quit, err := c.Execute(context.Background(), tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if quit {
				t.Error("command should not quit")
			}
			c.starts.Wait()
			calls := ctrl.callList()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("expected [%s], got %v", tt.want, calls)
			}
		})
	}
}

func TestExecute_Quit(t *testing.T) {
	c, _, _ := newTestConsole(Options{})
	for _, line := range []string{"quit", "exit"} {
		quit, err := c.Execute(context.Background(), line)
		if err != nil || !quit {
			t.Errorf("%s: expected quit, got quit=%v err=%v", line, quit, err)
		}
	}
}

func TestExecute_EmptyLine(t *testing.T) {
	c, ctrl, _ := newTestConsole(Options{})
	if _, err := c.Execute(context.Background(), "   "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctrl.callList()) != 0 {
		t.Error("empty line should not reach the controller")
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	c, _, _ := newTestConsole(Options{})
	_, err := c.Execute(context.Background(), "rewind")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestExecute_StartError(t *testing.T) {
	c, ctrl, out := newTestConsole(Options{})
	ctrl.startErr = session.ErrAlreadyActive
	if _, err := c.Execute(context.Background(), "start"); err != nil {
		t.Fatalf("start should report asynchronously, got %v", err)
	}
	c.starts.Wait()
	if !strings.Contains(out.String(), "error: start: "+session.ErrAlreadyActive.Error()) {
		t.Errorf("expected start error in output, got %q", out.String())
	}
}

func TestRun_StopReachesControllerWhileStartPending(t *testing.T) {
	c, ctrl, out := newTestConsole(Options{})
	ctrl.blockStart = true

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), strings.NewReader("start\nstop\nquit\n")) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop was not handled while start was pending")
	}

	calls := strings.Join(ctrl.callList(), ",")
	if !strings.Contains(calls, "start") || !strings.Contains(calls, "stop") {
		t.Errorf("expected start and stop to reach the controller, got %s", calls)
	}
	if strings.Contains(out.String(), "error: start") {
		t.Errorf("an interrupted start should not be reported as an error: %q", out.String())
	}
}

func TestExecute_Status(t *testing.T) {
	c, _, out := newTestConsole(Options{})
	if _, err := c.Execute(context.Background(), "status"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "state=idle") || !strings.Contains(got, "session=ses_1") || !strings.Contains(got, "elapsed=01:05") {
		t.Errorf("unexpected status line: %q", got)
	}
}

func TestExecute_Export(t *testing.T) {
	c, _, out := newTestConsole(Options{})
	if _, err := c.Execute(context.Background(), "export json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var entries []transcript.Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entries); err != nil {
		t.Fatalf("export is not json: %v (%q)", err, out.String())
	}
	if len(entries) != 2 || entries[1].Timestamp != "00:03" || entries[1].Text != "world" {
		t.Errorf("unexpected entries: %+v", entries)
	}

	if _, err := c.Execute(context.Background(), "export yaml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExecute_StopWritesOutFile(t *testing.T) {
	tests := []struct {
		name   string
		format ExportFormat
		want   string
	}{
		{"text", ExportText, "[00:01] hello\n[00:03] world\n"},
		{"json", ExportJSON, `"timestamp": "00:01"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out")
			c, _, _ := newTestConsole(Options{OutPath: path, OutFormat: tt.format})
			if _, err := c.Execute(context.Background(), "stop"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("out file not written: %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("expected %q in %q", tt.want, string(data))
			}
		})
	}
}

func TestExecute_StopWithEmptyTranscriptSkipsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	c, ctrl, _ := newTestConsole(Options{OutPath: path})
	ctrl.transcript = ""
	if _, err := c.Execute(context.Background(), "stop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("empty transcript should not create the out file")
	}
}

func TestRun_StopsActiveSessionOnQuit(t *testing.T) {
	c, ctrl, _ := newTestConsole(Options{})
	err := c.Run(context.Background(), strings.NewReader("start\nquit\nstart\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := ctrl.callList()
	want := []string{"start", "stop"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestRun_EOFWithIdleSession(t *testing.T) {
	c, ctrl, out := newTestConsole(Options{})
	if err := c.Run(context.Background(), strings.NewReader("bogus\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctrl.callList()) != 0 {
		t.Errorf("idle session should not be stopped, got %v", ctrl.callList())
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("expected unknown command error, got %q", out.String())
	}
}

func TestCallbacks_PrintNoticesAndTranscript(t *testing.T) {
	c, _, out := newTestConsole(Options{})
	cb := c.Callbacks()

	cb.OnNotice(session.Notice{Level: session.NoticeInfo, Message: session.MsgPaused})
	cb.OnNotice(session.Notice{Level: session.NoticeError, Message: session.MsgExhausted, Err: session.ErrReconnectExhausted})
	cb.OnTranscript("[00:01] hi")
	cb.OnTranscript("[00:01] hi")
	cb.OnState(session.Status{State: session.StateCapturing})

	got := out.String()
	if !strings.Contains(got, "[info] Paused transcribing...") {
		t.Errorf("missing info notice: %q", got)
	}
	if !strings.Contains(got, "[error] "+session.MsgExhausted) {
		t.Errorf("missing error notice: %q", got)
	}
	if strings.Count(got, "[00:01] hi") != 1 {
		t.Errorf("unchanged transcript should print once: %q", got)
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ExportFormat
		wantErr bool
	}{
		{"", ExportText, false},
		{"text", ExportText, false},
		{"TXT", ExportText, false},
		{"json", ExportJSON, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		got, err := ParseExportFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseExportFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseExportFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

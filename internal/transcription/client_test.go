package transcription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/livescribe/internal/shared"
)

type recorder struct {
	mu     sync.Mutex
	events []TranscriptEvent
	errs   []error
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTranscript: func(e TranscriptEvent) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
			r.notify <- struct{}{}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.notify <- struct{}{}
		},
	}
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		got := len(r.events) + len(r.errs)
		r.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d callbacks, got %d", n, got)
		}
	}
}

func TestNormalizeBackoff(t *testing.T) {
	tests := []struct {
		name  string
		input shared.BackoffConfig
		want  shared.BackoffConfig
	}{
		{
			name:  "empty config gets defaults",
			input: shared.BackoffConfig{},
			want:  shared.BackoffConfig{Initial: 100 * time.Millisecond, MaxAttempts: 5, MaxDelay: 2 * time.Second},
		},
		{
			name:  "preserves non-zero values",
			input: shared.BackoffConfig{Initial: 200 * time.Millisecond, MaxAttempts: 10, MaxDelay: 5 * time.Second},
			want:  shared.BackoffConfig{Initial: 200 * time.Millisecond, MaxAttempts: 10, MaxDelay: 5 * time.Second},
		},
		{
			name:  "negative values treated as zero",
			input: shared.BackoffConfig{Initial: -time.Millisecond, MaxAttempts: -5, MaxDelay: -time.Second},
			want:  shared.BackoffConfig{Initial: 100 * time.Millisecond, MaxAttempts: 5, MaxDelay: 2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeBackoff(tt.input); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClient_StreamsAudioAndTranscripts(t *testing.T) {
	sidecar := &fakeSidecar{
		reply: func(audio []byte) []ServerMessage {
			return []ServerMessage{
				{Type: MessageTranscript, Text: string(audio), IsPartial: true},
				{Type: MessageTranscript, Text: string(audio) + ".", IsPartial: false},
			}
		},
	}
	cfg, _ := startSidecar(t, sidecar)

	rec := newRecorder()
	client, err := New(cfg, SessionOptions{Encoding: "pcm16", SampleRate: 16000, Partials: true}, rec.callbacks())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.WaitReady(ctx) {
		t.Fatal("client never became ready")
	}

	if err := client.SendAudio([]byte("hello")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	rec.wait(t, 2)

	rec.mu.Lock()
	if !rec.events[0].IsPartial || rec.events[1].Text != "hello." || rec.events[1].IsPartial {
		t.Errorf("unexpected events %+v", rec.events)
	}
	rec.mu.Unlock()

	configs, audio, _, _ := sidecar.snapshot()
	if len(configs) != 1 || configs[0]["encoding"] != "pcm16" {
		t.Errorf("unexpected configs %v", configs)
	}
	if len(audio) != 1 || string(audio[0]) != "hello" {
		t.Errorf("unexpected audio %v", audio)
	}

	sidecar.mu.Lock()
	token := sidecar.tokens[0]
	sidecar.mu.Unlock()
	if token != "Bearer sidecar-token" {
		t.Errorf("expected bearer metadata, got %q", token)
	}
}

func TestClient_FinishDrainsFinalTranscript(t *testing.T) {
	sidecar := &fakeSidecar{
		onEnd: []ServerMessage{{Type: MessageTranscript, Text: "tail"}},
	}
	cfg, _ := startSidecar(t, sidecar)

	rec := newRecorder()
	client, err := New(cfg, SessionOptions{Encoding: "pcm16"}, rec.callbacks())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client.WaitReady(ctx)

	if err := client.Finish(ctx); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].Text != "tail" {
		t.Errorf("expected drained transcript, got %+v", rec.events)
	}
	if len(rec.errs) != 0 {
		t.Errorf("finish should not report errors, got %v", rec.errs)
	}
}

func TestClient_SidecarErrorMessage(t *testing.T) {
	sidecar := &fakeSidecar{
		reply: func([]byte) []ServerMessage {
			return []ServerMessage{{Type: MessageError, Text: "model overloaded"}}
		},
	}
	cfg, _ := startSidecar(t, sidecar)

	rec := newRecorder()
	client, err := New(cfg, SessionOptions{Encoding: "pcm16"}, rec.callbacks())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer client.Close()

	_ = client.SendAudio([]byte("x"))
	rec.wait(t, 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !errors.Is(rec.errs[0], ErrSidecar) {
		t.Errorf("expected ErrSidecar, got %v", rec.errs[0])
	}
}

func TestClient_ReconnectSync(t *testing.T) {
	sidecar := &fakeSidecar{}
	cfg, _ := startSidecar(t, sidecar)

	client, err := New(cfg, SessionOptions{Encoding: "opus", SampleRate: 48000}, Callbacks{})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// The first stream must have delivered its config before it is replaced.
	if !client.WaitReady(ctx) {
		t.Fatal("initial stream never became ready")
	}

	if err := client.ReconnectSync(); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if client.IsReconnecting() {
		t.Error("reconnect should be finished")
	}
	if !client.WaitReady(ctx) {
		t.Fatal("reconnected stream never became ready")
	}

	configs, _, _, streams := sidecar.snapshot()
	if streams != 2 || len(configs) != 2 {
		t.Fatalf("expected config resent on a second stream, got streams=%d configs=%d", streams, len(configs))
	}
	if configs[1]["encoding"] != "opus" {
		t.Errorf("second stream should carry the session config, got %v", configs[1])
	}
}

func TestClient_CloseSuppressesErrors(t *testing.T) {
	sidecar := &fakeSidecar{}
	cfg, _ := startSidecar(t, sidecar)

	rec := newRecorder()
	client, err := New(cfg, SessionOptions{Encoding: "pcm16"}, rec.callbacks())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 0 {
		t.Errorf("expected no errors after close, got %v", rec.errs)
	}
	if err := client.SendAudio([]byte("x")); !errors.Is(err, ErrStreamNotReady) {
		t.Errorf("expected ErrStreamNotReady after close, got %v", err)
	}
}

func TestClient_ServerEndReportsClosed(t *testing.T) {
	sidecar := &fakeSidecar{
		reply: func([]byte) []ServerMessage { return nil },
	}
	cfg, srv := startSidecar(t, sidecar)

	rec := newRecorder()
	client, err := New(cfg, SessionOptions{Encoding: "pcm16"}, rec.callbacks())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client.WaitReady(ctx)

	srv.Stop()
	rec.wait(t, 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) == 0 {
		t.Error("expected stream failure to be reported")
	}
}

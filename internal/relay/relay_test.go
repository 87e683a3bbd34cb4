package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eleven-am/livescribe/internal/archive"
	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/tracking"
	"github.com/eleven-am/livescribe/internal/transcription"
)

type fakeSTT struct {
	mu           sync.Mutex
	opts         transcription.SessionOptions
	cb           transcription.Callbacks
	audio        [][]byte
	reconnects   int
	reconnectErr error
	finished     bool
	closed       bool
}

func (f *fakeSTT) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, data)
	return nil
}

func (f *fakeSTT) WaitReady(context.Context) bool { return true }

func (f *fakeSTT) ReconnectSync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return f.reconnectErr
}

func (f *fakeSTT) Finish(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = true
	return nil
}

func (f *fakeSTT) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSTT) chunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

type harness struct {
	handler  *Handler
	server   *httptest.Server
	tracker  *tracking.Store
	segments *archive.Store
	opened   chan *fakeSTT
	openErr  error
	prepare  func(*fakeSTT)

	batchMu   sync.Mutex
	batchReqs []transcription.BatchRequest
	batchText string
	batchErr  error
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	segments := archive.NewStore(db)
	if err := segments.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	h := &harness{
		tracker:  tracking.NewStore(rdb),
		segments: segments,
		opened:   make(chan *fakeSTT, 4),
	}

	factory := func(opts transcription.SessionOptions, cb transcription.Callbacks) (transcription.Transcriber, error) {
		if h.openErr != nil {
			return nil, h.openErr
		}
		f := &fakeSTT{opts: opts, cb: cb}
		if h.prepare != nil {
			h.prepare(f)
		}
		h.opened <- f
		return f, nil
	}
	batch := func(_ context.Context, req transcription.BatchRequest) (string, error) {
		h.batchMu.Lock()
		defer h.batchMu.Unlock()
		h.batchReqs = append(h.batchReqs, req)
		return h.batchText, h.batchErr
	}

	h.handler = NewHandler(factory, batch, h.tracker, segments, Options{Language: "en-US"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	e := echo.New()
	h.handler.RegisterRoutes(e, e.Group("/api/v1"), KeyAuth(token))
	h.server = httptest.NewServer(e)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/transcribe" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (h *harness) stt(t *testing.T) *fakeSTT {
	t.Helper()
	select {
	case f := <-h.opened:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("sidecar stream was never opened")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func activeID(t *testing.T, store *tracking.Store) string {
	t.Helper()
	var id string
	eventually(t, "active session", func() bool {
		recs, _ := store.Active(context.Background())
		if len(recs) == 1 {
			id = recs[0].ID
			return true
		}
		return false
	})
	return id
}

var errStreamReset = errors.New("stream reset")

func transcriptEvent(text string, partial bool) transcription.TranscriptEvent {
	return transcription.TranscriptEvent{Text: text, IsPartial: partial}
}

func sidecarErr(msg string) error {
	return fmt.Errorf("%w: %s", transcription.ErrSidecar, msg)
}

func wavBlob(t *testing.T) []byte {
	t.Helper()
	blob, err := audio.EncodeWAV(make([]int16, 1600), 16000, 1)
	if err != nil {
		t.Fatalf("encode wav failed: %v", err)
	}
	return blob
}

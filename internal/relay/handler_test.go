package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/livescribe/internal/link"
	"github.com/eleven-am/livescribe/internal/tracking"
)

func TestStream_RelaysTranscriptsAndArchivesFinals(t *testing.T) {
	h := newHarness(t, "")
	ws := h.dial(t, "?encoding=pcm16")
	stt := h.stt(t)

	if stt.opts.Encoding != "pcm16" || stt.opts.SampleRate != SidecarSampleRate || stt.opts.Language != "en-US" || !stt.opts.Partials {
		t.Errorf("unexpected sidecar options %+v", stt.opts)
	}

	chunk := make([]byte, 3200)
	for i := 0; i < 2; i++ {
		if err := ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	_ = ws.WriteMessage(websocket.TextMessage, []byte("ignored"))
	eventually(t, "audio forwarded", func() bool { return stt.chunks() == 2 })

	stt.cb.OnTranscript(transcriptEvent("hel", true))
	ev, err := link.DecodeEvent(mustJSON(t, readJSON(t, ws)))
	if err != nil || ev.Transcript != "hel" || ev.IsFinal {
		t.Errorf("unexpected interim %+v (%v)", ev, err)
	}

	stt.cb.OnTranscript(transcriptEvent("hello", false))
	ev, err = link.DecodeEvent(mustJSON(t, readJSON(t, ws)))
	if err != nil || ev.Transcript != "hello" || !ev.IsFinal {
		t.Errorf("unexpected final %+v (%v)", ev, err)
	}

	id := activeID(t, h.tracker)
	if h.handler.ActiveConnections() != 1 {
		t.Errorf("expected one active connection, got %d", h.handler.ActiveConnections())
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	var rec *tracking.Record
	eventually(t, "session ended", func() bool {
		rec, _ = h.tracker.Get(context.Background(), id)
		return rec != nil && rec.Status != tracking.StatusActive
	})
	if rec.Status != tracking.StatusEnded || rec.Finals != 1 || rec.Interims != 1 || rec.AudioBytes != 6400 {
		t.Errorf("unexpected record %+v", rec)
	}

	stt.mu.Lock()
	if !stt.finished || !stt.closed {
		t.Errorf("sidecar stream should be finished and closed")
	}
	stt.mu.Unlock()

	segs, err := h.segments.ListBySession(context.Background(), id)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "hello" || segs[0].OffsetMs < 100 {
		t.Errorf("unexpected segments %+v", segs)
	}
	eventually(t, "connection count drop", func() bool { return h.handler.ActiveConnections() == 0 })
}

func TestStream_SidecarErrorMessageClosesConnection(t *testing.T) {
	h := newHarness(t, "")
	ws := h.dial(t, "?encoding=pcm16")
	stt := h.stt(t)
	id := activeID(t, h.tracker)

	stt.cb.OnError(sidecarErr("model overloaded"))
	msg := readJSON(t, ws)
	if _, err := link.DecodeEvent(mustJSON(t, msg)); !errors.Is(err, link.ErrBackendError) {
		t.Errorf("expected backend error event, got %v", msg)
	}
	assertCloseCode(t, ws, websocket.CloseInternalServerErr)

	eventually(t, "session marked failed", func() bool {
		rec, _ := h.tracker.Get(context.Background(), id)
		return rec != nil && rec.Status == tracking.StatusError
	})
	stt.mu.Lock()
	defer stt.mu.Unlock()
	if stt.reconnects != 0 {
		t.Errorf("a reported error should not trigger a reconnect, got %d", stt.reconnects)
	}
}

func TestStream_ReconnectsSidecar(t *testing.T) {
	h := newHarness(t, "")
	ws := h.dial(t, "?encoding=pcm16")
	stt := h.stt(t)

	stt.cb.OnError(errStreamReset)
	eventually(t, "reconnect", func() bool {
		stt.mu.Lock()
		defer stt.mu.Unlock()
		return stt.reconnects == 1
	})

	stt.cb.OnTranscript(transcriptEvent("after", false))
	if msg := readJSON(t, ws); msg["transcript"] != "after" {
		t.Errorf("expected relay to continue, got %v", msg)
	}
}

func TestStream_ReconnectExhaustedClosesUnclean(t *testing.T) {
	h := newHarness(t, "")
	h.prepare = func(f *fakeSTT) { f.reconnectErr = errors.New("reconnect failed after 5 attempts") }
	ws := h.dial(t, "?encoding=pcm16")
	stt := h.stt(t)
	id := activeID(t, h.tracker)

	stt.cb.OnError(errStreamReset)

	msg := readJSON(t, ws)
	if msg["error"] != backendUnavailable {
		t.Errorf("expected error message, got %v", msg)
	}
	assertCloseCode(t, ws, websocket.CloseInternalServerErr)

	eventually(t, "session marked failed", func() bool {
		rec, _ := h.tracker.Get(context.Background(), id)
		return rec != nil && rec.Status == tracking.StatusError
	})
	stt.mu.Lock()
	defer stt.mu.Unlock()
	if stt.finished {
		t.Error("failed stream should not be finished")
	}
}

func TestStream_SidecarUnavailable(t *testing.T) {
	h := newHarness(t, "")
	h.openErr = errors.New("dial sidecar: connection refused")
	ws := h.dial(t, "?encoding=opus")

	msg := readJSON(t, ws)
	if msg["error"] != backendUnavailable {
		t.Errorf("expected error message, got %v", msg)
	}
	assertCloseCode(t, ws, websocket.CloseInternalServerErr)
}

func TestStream_InvalidEncoding(t *testing.T) {
	h := newHarness(t, "")

	resp, err := http.Get(h.server.URL + "/transcribe?encoding=mp3")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStream_RequiresToken(t *testing.T) {
	h := newHarness(t, "secret")

	url := "ws" + h.server.URL[len("http"):] + "/transcribe?encoding=pcm16"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial with token failed: %v", err)
	}
	ws.Close()
}

func TestTranscriptions(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		body       []byte
		wantFormat string
		wantRate   int
	}{
		{"wav passthrough", "", wavBlob(t), "wav", 0},
		{"pcm16 normalized", "pcm16", make([]byte, 640), "pcm16", SidecarSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.batchText = "hello world"

			resp := postChunk(t, h, tt.format, tt.body)
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
			}

			ev, err := link.DecodeEvent(resp.Body.Bytes())
			if err != nil || ev.Transcript != "hello world" {
				t.Errorf("unexpected body %s (%v)", resp.Body.String(), err)
			}

			h.batchMu.Lock()
			req := h.batchReqs[0]
			h.batchMu.Unlock()
			if req.Format != tt.wantFormat || req.SampleRate != tt.wantRate || req.Language != "en-US" {
				t.Errorf("unexpected batch request %+v", req)
			}

			metrics, _ := h.tracker.GetMetrics(context.Background(), 1)
			if len(metrics) != 1 || metrics[0].BatchRequests != 1 || metrics[0].Errors != 0 {
				t.Errorf("unexpected metrics %+v", metrics)
			}
		})
	}
}

func TestTranscriptions_Errors(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		h := newHarness(t, "")
		h.batchErr = errors.New("sidecar down")

		resp := postChunk(t, h, "wav", wavBlob(t))
		if resp.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.Code)
		}
		if _, err := link.DecodeEvent(resp.Body.Bytes()); !errors.Is(err, link.ErrBackendError) {
			t.Errorf("expected {error} body, got %s", resp.Body.String())
		}

		metrics, _ := h.tracker.GetMetrics(context.Background(), 1)
		if len(metrics) != 1 || metrics[0].Errors != 1 {
			t.Errorf("expected failed batch to be counted, got %+v", metrics)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		h := newHarness(t, "")
		if resp := postChunk(t, h, "mp3", []byte("x")); resp.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.Code)
		}
	})

	t.Run("undecodable opus", func(t *testing.T) {
		h := newHarness(t, "")
		if resp := postChunk(t, h, "opus", []byte{0x00}); resp.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.Code)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, "")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", nil)
		rec := httptest.NewRecorder()
		h.server.Config.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func postChunk(t *testing.T, h *harness, format string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "chunk")
	_, _ = part.Write(data)
	if format != "" {
		_ = mw.WriteField("format", format)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.server.Config.Handler.ServeHTTP(rec, req)
	return rec
}

func assertCloseCode(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, code) {
		t.Errorf("expected close code %d, got %v", code, err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}

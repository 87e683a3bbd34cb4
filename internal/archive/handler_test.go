package archive

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/livescribe/internal/dto"
)

func newTestServer(t *testing.T) (*Store, *echo.Echo) {
	store := setupTestStore(t)
	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return store, e
}

func TestHandler_ListSegments(t *testing.T) {
	store, e := newTestServer(t)
	ctx := context.Background()
	_ = store.Append(ctx, &Segment{SessionID: "rly_a", OffsetMs: 2000, Text: "world"})
	_ = store.Append(ctx, &Segment{SessionID: "rly_a", OffsetMs: 0, Text: "hello"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/rly_a/segments", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp dto.SegmentListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Count != 2 || resp.Segments[0].Text != "hello" || resp.Segments[1].OffsetMs != 2000 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_ListSegments_NotFound(t *testing.T) {
	_, e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/rly_missing/segments", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

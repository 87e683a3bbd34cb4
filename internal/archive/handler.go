package archive

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/livescribe/internal/dto"
	"github.com/eleven-am/livescribe/internal/shared"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions/:id/segments", h.ListSegments)
}

// @Summary      List archived segments
// @Description  Returns the final transcript segments archived for a relay session, ordered by offset
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200  {object}  dto.SegmentListResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id}/segments [get]
func (h *Handler) ListSegments(c echo.Context) error {
	sessionID := c.Param("id")
	ctx := c.Request().Context()

	segments, err := h.store.ListBySession(ctx, sessionID)
	if err != nil {
		h.logger.Error("failed to list segments", "error", err, "session_id", sessionID)
		return shared.InternalError("list_failed", "failed to list segments")
	}
	if len(segments) == 0 {
		return shared.NotFound("segments_not_found", "no segments archived for session")
	}

	resp := dto.SegmentListResponse{
		SessionID: sessionID,
		Count:     int64(len(segments)),
		Segments:  make([]dto.SegmentResponse, len(segments)),
	}
	for i, s := range segments {
		resp.Segments[i] = dto.SegmentResponse{
			ID:        s.ID,
			SessionID: s.SessionID,
			OffsetMs:  s.OffsetMs,
			Text:      s.Text,
			CreatedAt: s.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

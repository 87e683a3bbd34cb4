package tracking

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

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
		logger: logger.With("component", "tracking_handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions", h.ListActive)
	g.GET("/sessions/:id", h.GetSession)
	g.GET("/metrics", h.GetMetrics)
	g.GET("/metrics/summary", h.GetSummary)
}

func recordToResponse(r *Record) dto.SessionResponse {
	return dto.SessionResponse{
		ID:           r.ID,
		Encoding:     r.Encoding,
		Language:     r.Language,
		Status:       string(r.Status),
		StartedAt:    r.StartedAt,
		LastActiveAt: r.LastActiveAt,
		EndedAt:      r.EndedAt,
		Finals:       r.Finals,
		Interims:     r.Interims,
		AudioBytes:   r.AudioBytes,
	}
}

func metricsToResponse(m *Metrics) dto.MetricsResponse {
	return dto.MetricsResponse{
		Date:          m.Date,
		Hour:          m.Hour,
		Sessions:      m.Sessions,
		Finals:        m.Finals,
		Interims:      m.Interims,
		BatchRequests: m.BatchRequests,
		Errors:        m.Errors,
		AudioBytes:    m.AudioBytes,
	}
}

// ListActive lists relay connections that are still streaming
// @Summary      List active sessions
// @Tags         sessions
// @Produce      json
// @Success      200 {object} dto.SessionListResponse
// @Failure      401 {object} dto.ErrorResponse
// @Failure      500 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions [get]
func (h *Handler) ListActive(c echo.Context) error {
	records, err := h.store.Active(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		return shared.InternalError("list_failed", "failed to list sessions")
	}

	resp := dto.SessionListResponse{Sessions: make([]dto.SessionResponse, len(records))}
	for i, r := range records {
		resp.Sessions[i] = recordToResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSession returns the tracking record of one relay connection
// @Summary      Get session
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.SessionResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /sessions/{id} [get]
func (h *Handler) GetSession(c echo.Context) error {
	id := c.Param("id")
	rec, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("session_not_found", "session not found")
		}
		h.logger.Error("failed to get session", "error", err, "session_id", id)
		return shared.InternalError("get_failed", "failed to get session")
	}
	return c.JSON(http.StatusOK, recordToResponse(rec))
}

// GetMetrics returns hourly relay counters
// @Summary      Get hourly metrics
// @Tags         metrics
// @Produce      json
// @Param        hours query int false "Hours to look back (1-168)" default(24)
// @Success      200 {object} dto.MetricsListResponse
// @Failure      500 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /metrics [get]
func (h *Handler) GetMetrics(c echo.Context) error {
	hours := 24
	if hoursStr := c.QueryParam("hours"); hoursStr != "" {
		if hr, err := strconv.Atoi(hoursStr); err == nil && hr > 0 && hr <= 168 {
			hours = hr
		}
	}

	metrics, err := h.store.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}

	response := make([]dto.MetricsResponse, len(metrics))
	for i, m := range metrics {
		response[i] = metricsToResponse(m)
	}
	return c.JSON(http.StatusOK, dto.MetricsListResponse{
		Hours:   hours,
		Metrics: response,
	})
}

// GetSummary aggregates the last seven days
// @Summary      Get metrics summary
// @Tags         metrics
// @Produce      json
// @Success      200 {object} dto.SummaryResponse
// @Failure      500 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /metrics/summary [get]
func (h *Handler) GetSummary(c echo.Context) error {
	metrics, err := h.store.GetMetricsForLast7Days(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to get metrics summary", "error", err)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}

	summary := dto.SummaryResponse{Period: "7d"}
	for _, m := range metrics {
		summary.TotalSessions += m.Sessions
		summary.TotalFinals += m.Finals
		summary.TotalBatch += m.BatchRequests
		summary.TotalErrors += m.Errors
		summary.AudioBytes += m.AudioBytes
	}

	if requests := summary.TotalSessions + summary.TotalBatch; requests > 0 {
		summary.ErrorRate = float64(summary.TotalErrors) / float64(requests) * 100
	}
	return c.JSON(http.StatusOK, summary)
}

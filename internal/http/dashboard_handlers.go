package httpapi

import (
	"context"
	"net/http"

	"sinout-engine/internal/models"

	"go.uber.org/zap"
)

// MetricsQueries 仪表盘查询接口（由 service.Dispatcher 实现）
type MetricsQueries interface {
	TodayMetrics(ctx context.Context, subjectID string) (*models.TodayMetrics, error)
	HourlyVolume(ctx context.Context, subjectID string) ([]models.HourlyBucket, error)
	WeeklyTrend(ctx context.Context, subjectID string) ([]models.DailyTrend, error)
	RecentActivity(ctx context.Context, subjectID string, limit int) ([]models.HistoryRecord, error)
}

// DashboardHandler 实现看护人仪表盘 API
type DashboardHandler struct {
	queries MetricsQueries
	stats   func() any
	logger  *zap.Logger
}

func NewDashboardHandler(queries MetricsQueries, stats func() any, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{queries: queries, stats: stats, logger: logger}
}

// GET /api/v1/subjects/{id}/metrics/today
func (h *DashboardHandler) GetTodayMetrics(w http.ResponseWriter, r *http.Request, subjectID string) {
	metrics, err := h.queries.TodayMetrics(r.Context(), subjectID)
	if err != nil {
		h.logger.Error("Failed to query today metrics",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to query today metrics"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(metrics))
}

// GET /api/v1/subjects/{id}/metrics/hourly
func (h *DashboardHandler) GetHourlyVolume(w http.ResponseWriter, r *http.Request, subjectID string) {
	buckets, err := h.queries.HourlyVolume(r.Context(), subjectID)
	if err != nil {
		h.logger.Error("Failed to query hourly volume",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to query hourly volume"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": buckets}))
}

// GET /api/v1/subjects/{id}/metrics/weekly
func (h *DashboardHandler) GetWeeklyTrend(w http.ResponseWriter, r *http.Request, subjectID string) {
	trend, err := h.queries.WeeklyTrend(r.Context(), subjectID)
	if err != nil {
		h.logger.Error("Failed to query weekly trend",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to query weekly trend"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": trend}))
}

// GET /api/v1/subjects/{id}/activity?limit=N
func (h *DashboardHandler) GetRecentActivity(w http.ResponseWriter, r *http.Request, subjectID string) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	records, err := h.queries.RecentActivity(r.Context(), subjectID, limit)
	if err != nil {
		h.logger.Error("Failed to query recent activity",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to query recent activity"))
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": records}))
}

// GET /healthz
func (h *DashboardHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.stats != nil {
		resp["pipeline"] = h.stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

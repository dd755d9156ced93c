package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDashboardRoutes 注册仪表盘查询路由
// 路径格式：/api/v1/subjects/{subjectID}/metrics/today|hourly|weekly
//           /api/v1/subjects/{subjectID}/activity
func (r *Router) RegisterDashboardRoutes(h *DashboardHandler) {
	r.Handle("/api/v1/subjects/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/subjects/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 || parts[0] == "" {
			writeJSON(w, http.StatusNotFound, Fail("not found"))
			return
		}
		subjectID := parts[0]

		switch {
		case len(parts) == 3 && parts[1] == "metrics" && parts[2] == "today":
			h.GetTodayMetrics(w, req, subjectID)
		case len(parts) == 3 && parts[1] == "metrics" && parts[2] == "hourly":
			h.GetHourlyVolume(w, req, subjectID)
		case len(parts) == 3 && parts[1] == "metrics" && parts[2] == "weekly":
			h.GetWeeklyTrend(w, req, subjectID)
		case len(parts) == 2 && parts[1] == "activity":
			h.GetRecentActivity(w, req, subjectID)
		default:
			writeJSON(w, http.StatusNotFound, Fail("not found"))
		}
	})

	r.Handle("/healthz", h.GetHealth)
}

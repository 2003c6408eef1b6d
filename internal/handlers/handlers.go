// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"fleet-insights-service/internal/analytics"
	"fleet-insights-service/internal/engine"
	"fleet-insights-service/internal/filter"
	"fleet-insights-service/internal/insights"
	"fleet-insights-service/internal/metrics"
	"fleet-insights-service/internal/models"
	"fleet-insights-service/internal/store"
)

// Pinger проверка доступности внешней зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	engine    *engine.Engine
	redis     Pinger
	startTime time.Time
}

// NewHandler создает новый обработчик; redis может быть nil
func NewHandler(e *engine.Engine, redis Pinger) *Handler {
	return &Handler{
		engine:    e,
		redis:     redis,
		startTime: time.Now(),
	}
}

// Routes регистрирует эндпоинты
func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/kpis", h.KPIsHandler).Methods("GET")
	router.HandleFunc("/insights", h.InsightsHandler).Methods("GET")
	router.HandleFunc("/compare", h.CompareHandler).Methods("GET")
	router.HandleFunc("/compare/metrics", h.MetricsListHandler).Methods("GET")
	router.HandleFunc("/snapshot/reload", h.ReloadHandler).Methods("POST")
	router.HandleFunc("/health", h.HealthHandler).Methods("GET")
	router.HandleFunc("/stats", h.StatsHandler).Methods("GET")
}

type kpisResponse struct {
	SnapshotID string          `json:"snapshot_id"`
	Records    int             `json:"records"`
	Sets       []models.KPISet `json:"sets"`
}

// KPIsHandler обрабатывает GET /kpis
// Без scope возвращает KPI парка и всех ТС, со scope только одну область
func (h *Handler) KPIsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/kpis"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	f, err := ParseFilter(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	if raw := r.URL.Query().Get("scope"); raw != "" {
		k, err := h.engine.ComputeKPIs(r.Context(), f, ParseScope(raw))
		if err != nil {
			h.fail(w, r, endpoint, err)
			return
		}
		h.ok(w, r, endpoint, k)
		return
	}

	view, sets, err := h.engine.ComputeAll(r.Context(), f)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, kpisResponse{SnapshotID: view.SnapshotID, Records: view.Len(), Sets: sets})
}

type insightsResponse struct {
	insights.Report
	Summary insights.Summary `json:"summary"`
}

// InsightsHandler обрабатывает GET /insights
func (h *Handler) InsightsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/insights"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	q := r.URL.Query()
	f, err := ParseFilter(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	var asOf time.Time
	if raw := q.Get("as_of"); raw != "" {
		if asOf, err = time.Parse(time.RFC3339, raw); err != nil {
			h.fail(w, r, endpoint, badRequest("as_of must be RFC3339"))
			return
		}
	}
	var minSeverity models.Severity
	if raw := q.Get("min_severity"); raw != "" {
		if err := minSeverity.UnmarshalText([]byte(raw)); err != nil {
			h.fail(w, r, endpoint, badRequest(err.Error()))
			return
		}
	}

	report, err := h.engine.GenerateInsights(r.Context(), f, asOf)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	report.Insights = insights.Filter(report.Insights, models.Category(q.Get("category")), minSeverity)
	if report.Insights == nil {
		report.Insights = []models.Insight{}
	}
	h.ok(w, r, endpoint, insightsResponse{Report: report, Summary: insights.Summarize(report.Insights)})
}

// CompareHandler обрабатывает GET /compare?metric=...
func (h *Handler) CompareHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/compare"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		h.fail(w, r, endpoint, badRequest("metric is required"))
		return
	}
	f, err := ParseFilter(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	res, err := h.engine.Compare(r.Context(), f, metric)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, res)
}

// MetricsListHandler обрабатывает GET /compare/metrics
func (h *Handler) MetricsListHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, r, "/compare/metrics", map[string][]string{"metrics": analytics.Metrics()})
}

// ReloadHandler обрабатывает POST /snapshot/reload
func (h *Handler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/snapshot/reload"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	snap, err := h.engine.Reload(r.Context())
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, h.stats(snap))
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "disconnected"
		if h.redis.Ping(r.Context()) == nil {
			redisStatus = "connected"
		}
	}

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Redis:     redisStatus,
		Uptime:    time.Since(h.startTime).String(),
	}
	if snap, err := h.engine.Snapshot(); err == nil {
		status.SnapshotID = snap.ID
	} else {
		status.Status = "degraded"
	}

	h.respondJSON(w, status, http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - статистика снимка
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(endpoint, r.Method))
	defer timer.ObserveDuration()

	snap, err := h.engine.Snapshot()
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.ok(w, r, endpoint, h.stats(snap))
}

func (h *Handler) stats(snap *models.Snapshot) models.StatsResponse {
	vehicles := make(map[string]struct{})
	clients := make(map[string]struct{})
	for i := range snap.Records {
		vehicles[snap.Records[i].VehicleID] = struct{}{}
		clients[snap.Records[i].ClientID] = struct{}{}
	}
	return models.StatsResponse{
		SnapshotID:   snap.ID,
		LoadedAt:     snap.LoadedAt,
		TotalRecords: snap.Len(),
		Vehicles:     len(vehicles),
		Clients:      len(clients),
	}
}

// ParseFilter строит фильтр из параметров client, vehicle, start, end
func ParseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	return filter.Parse(q["client"], q["vehicle"], q.Get("start"), q.Get("end"))
}

// ParseScope разбирает область: fleet, vehicle:ID или просто ID
func ParseScope(raw string) models.Scope {
	if raw == "" || raw == "fleet" {
		return models.FleetScope()
	}
	return models.VehicleScope(strings.TrimPrefix(raw, "vehicle:"))
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// statusFor сопоставляет ошибку движка с HTTP статусом
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, analytics.ErrUnknownMetric):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}) {
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, "200").Inc()
	h.respondJSON(w, data, http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	status := statusFor(err)
	metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	h.respondError(w, err.Error(), status)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

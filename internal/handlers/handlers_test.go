package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/engine"
	"fleet-insights-service/internal/models"
	"fleet-insights-service/internal/store"
)

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func reading(client, vehicle string, at time.Duration, speed float64) models.TelemetryRecord {
	return models.TelemetryRecord{
		VehicleID: vehicle, ClientID: client,
		Latitude: f(1), Longitude: f(1), SpeedKmh: f(speed), IgnitionOn: true,
		EventType: models.EventNormal, Status: models.StatusOnline,
		GPSTime: base.Add(at), CommTime: base.Add(at),
	}
}

func records() []models.TelemetryRecord {
	return []models.TelemetryRecord{
		reading("C1", "V1", 0, 0),
		reading("C1", "V1", 10*time.Minute, 40),
		reading("C1", "V1", 20*time.Minute, 120),
		reading("C1", "V2", 0, 30),
		reading("C2", "V3", 0, 60),
		reading("C2", "V3", 48*time.Hour, 60),
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newServer(t *testing.T, load bool, redis Pinger) *mux.Router {
	t.Helper()
	cfg := config.DefaultThresholds()
	cfg.SpeedLimitKmh = 100

	e := engine.New(cfg, store.NewHolder(store.StaticSource(records()), nil), cache.NewMemoryStore(nil), time.Minute)
	if load {
		_, err := e.Reload(context.Background())
		require.NoError(t, err)
	}
	router := mux.NewRouter()
	NewHandler(e, redis).Routes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestKPIsHandler(t *testing.T) {
	router := newServer(t, true, nil)

	var all kpisResponse
	code := do(t, router, http.MethodGet, "/kpis?client=C1", &all)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4, all.Records)
	require.Len(t, all.Sets, 3)
	assert.True(t, all.Sets[0].Scope.IsFleet())

	var one models.KPISet
	code = do(t, router, http.MethodGet,
		"/kpis?client=C1&vehicle=V1&start=2024-01-01&end=2024-01-02&scope=vehicle:V1", &one)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.Defined(1), one.OverspeedCount)
	assert.InDelta(t, 1.0/3.0, one.OverspeedRate.Value, 1e-9)
}

func TestKPIsHandler_UndefinedIsNull(t *testing.T) {
	router := newServer(t, true, nil)

	var raw map[string]interface{}
	code := do(t, router, http.MethodGet, "/kpis?client=nobody&scope=fleet", &raw)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, raw["total_distance_km"])
	assert.Contains(t, raw, "total_distance_km")
}

func TestInsightsHandler(t *testing.T) {
	router := newServer(t, true, nil)

	var resp insightsResponse
	code := do(t, router, http.MethodGet,
		"/insights?client=C1&vehicle=V1&start=2024-01-01&end=2024-01-02&category=compliance&min_severity=warning", &resp)
	assert.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, resp.Insights)
	for _, ins := range resp.Insights {
		assert.Equal(t, models.CategoryCompliance, ins.Category)
		assert.GreaterOrEqual(t, ins.Severity, models.SeverityWarning)
	}
	assert.Equal(t, len(resp.Insights), resp.Summary.Total)
}

func TestCompareHandler(t *testing.T) {
	router := newServer(t, true, nil)

	var res models.ComparisonResult
	code := do(t, router, http.MethodGet, "/compare?metric=max_speed", &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, res.Population)
	assert.Equal(t, "lower", res.Direction)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "V2", res.Entries[0].VehicleID)
}

func TestHandlers_Errors(t *testing.T) {
	tests := []struct {
		name   string
		load   bool
		target string
		want   int
	}{
		{"inverted range", true, "/kpis?start=2024-01-05&end=2024-01-01", http.StatusBadRequest},
		{"bad date", true, "/kpis?start=yesterday", http.StatusBadRequest},
		{"bad as_of", true, "/insights?as_of=now", http.StatusBadRequest},
		{"bad severity", true, "/insights?min_severity=fatal", http.StatusBadRequest},
		{"missing metric", true, "/compare", http.StatusBadRequest},
		{"unknown metric", true, "/compare?metric=fuel", http.StatusBadRequest},
		{"no snapshot", false, "/kpis", http.StatusServiceUnavailable},
		{"no snapshot stats", false, "/stats", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newServer(t, tt.load, nil)
			var body map[string]string
			code := do(t, router, http.MethodGet, tt.target, &body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestReloadAndStats(t *testing.T) {
	router := newServer(t, false, nil)

	var stats models.StatsResponse
	code := do(t, router, http.MethodPost, "/snapshot/reload", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 6, stats.TotalRecords)
	assert.Equal(t, 3, stats.Vehicles)
	assert.Equal(t, 2, stats.Clients)

	var again models.StatsResponse
	code = do(t, router, http.MethodGet, "/stats", &again)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, stats.SnapshotID, again.SnapshotID)
}

func TestHealthHandler(t *testing.T) {
	var status models.HealthStatus
	do(t, newServer(t, true, pinger{}), http.MethodGet, "/health", &status)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "connected", status.Redis)
	assert.NotEmpty(t, status.SnapshotID)

	do(t, newServer(t, false, pinger{err: errors.New("down")}), http.MethodGet, "/health", &status)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "disconnected", status.Redis)
}

func TestParseFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/kpis?client=C1,C2&vehicle=V1&vehicle=V2&start=2024-01-01&end=2024-01-02T12:00:00Z", nil)
	flt, err := ParseFilter(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, flt.Clients)
	assert.Equal(t, []string{"V1", "V2"}, flt.Vehicles)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *flt.Start)
	assert.Equal(t, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC), *flt.End)

	req = httptest.NewRequest(http.MethodGet, "/kpis?end=2024-01-02", nil)
	flt, err = ParseFilter(req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 59, 59, 999999999, time.UTC), *flt.End)
}

func TestParseScope(t *testing.T) {
	assert.True(t, ParseScope("fleet").IsFleet())
	assert.True(t, ParseScope("").IsFleet())
	assert.Equal(t, "V1", ParseScope("vehicle:V1").VehicleID)
	assert.Equal(t, "V2", ParseScope("V2").VehicleID)
}

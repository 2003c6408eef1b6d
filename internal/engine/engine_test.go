package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-insights-service/internal/analytics"
	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/filter"
	"fleet-insights-service/internal/insights"
	"fleet-insights-service/internal/models"
	"fleet-insights-service/internal/store"
)

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func reading(client, vehicle string, at time.Duration, speed, odo float64) models.TelemetryRecord {
	return models.TelemetryRecord{
		VehicleID:  vehicle,
		ClientID:   client,
		Latitude:   f(-23.55),
		Longitude:  f(-46.63),
		SpeedKmh:   f(speed),
		IgnitionOn: true,
		OdometerKm: odo,
		EventType:  models.EventNormal,
		Status:     models.StatusOnline,
		GPSTime:    base.Add(at),
		CommTime:   base.Add(at + time.Second),
	}
}

func fixture() []models.TelemetryRecord {
	return []models.TelemetryRecord{
		reading("C1", "V1", 0, 0, 1000),
		reading("C1", "V1", 10*time.Minute, 40, 1005),
		reading("C1", "V1", 20*time.Minute, 120, 1025),
		reading("C1", "V2", 0, 50, 500),
		reading("C1", "V2", 10*time.Minute, 52, 509),
		reading("C1", "V2", 20*time.Minute, 55, 518),
		reading("C2", "V3", 0, 60, 10),
		reading("C2", "V3", 10*time.Minute, 62, 20),
		reading("C2", "V3", 20*time.Minute, 64, 30),
		reading("C2", "V4", 24*time.Hour, 30, 0),
	}
}

type harness struct {
	engine *Engine
	store  *cache.MemoryStore
	holder *store.Holder
}

func newHarness(t *testing.T, records []models.TelemetryRecord, opts ...Option) harness {
	t.Helper()
	cfg := config.DefaultThresholds()
	cfg.SpeedLimitKmh = 100

	holder := store.NewHolder(store.StaticSource(records), nil)
	mem := cache.NewMemoryStore(nil)
	e := New(cfg, holder, mem, 5*time.Minute, opts...)
	_, err := e.Reload(context.Background())
	require.NoError(t, err)
	return harness{engine: e, store: mem, holder: holder}
}

func endToEndFilter() models.Filter {
	from, to := filter.DateRange(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	)
	return models.Filter{Clients: []string{"C1"}, Vehicles: []string{"V1"}, Start: &from, End: &to}
}

func TestEngine_EndToEnd(t *testing.T) {
	h := newHarness(t, fixture())
	ctx := context.Background()
	flt := endToEndFilter()

	view, err := h.engine.ApplyFilter(ctx, flt)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len())

	k, err := h.engine.ComputeKPIs(ctx, flt, models.VehicleScope("V1"))
	require.NoError(t, err)
	assert.Equal(t, models.Defined(1), k.OverspeedCount)
	assert.InDelta(t, 1.0/3.0, k.OverspeedRate.Value, 1e-9)

	report, err := h.engine.GenerateInsights(ctx, flt, time.Time{})
	require.NoError(t, err)
	var compliance bool
	for _, ins := range report.Insights {
		if ins.Category == models.CategoryCompliance &&
			ins.Subject.VehicleID == "V1" && ins.Severity >= models.SeverityWarning {
			compliance = true
		}
	}
	assert.True(t, compliance)
}

func TestEngine_ResultsCached(t *testing.T) {
	h := newHarness(t, fixture())
	ctx := context.Background()
	flt := endToEndFilter()

	first, err := h.engine.ComputeKPIs(ctx, flt, models.FleetScope())
	require.NoError(t, err)
	entries := h.store.Len()
	assert.Equal(t, 2, entries)

	// Тот же фильтр с другим порядком значений дает тот же ключ
	flt.Vehicles = []string{"V1", "V1"}
	second, err := h.engine.ComputeKPIs(ctx, flt, models.FleetScope())
	require.NoError(t, err)
	assert.Equal(t, entries, h.store.Len())
	assert.Equal(t, first.RecordCount, second.RecordCount)
	assert.Equal(t, first.OverspeedRate, second.OverspeedRate)
	assert.Equal(t, first.TotalDistanceKm, second.TotalDistanceKm)
}

func TestEngine_CachedKPIsMatchFresh(t *testing.T) {
	zone := time.FixedZone("BRT", -3*60*60)
	records := fixture()
	for i := range records {
		records[i].GPSTime = records[i].GPSTime.In(zone)
		records[i].CommTime = records[i].CommTime.In(zone)
	}
	h := newHarness(t, records)
	ctx := context.Background()

	fresh, err := h.engine.ComputeKPIs(ctx, models.Filter{}, models.FleetScope())
	require.NoError(t, err)
	cached, err := h.engine.ComputeKPIs(ctx, models.Filter{}, models.FleetScope())
	require.NoError(t, err)
	assert.Equal(t, fresh, cached)

	_, freshSets, err := h.engine.ComputeAll(ctx, models.Filter{})
	require.NoError(t, err)
	_, cachedSets, err := h.engine.ComputeAll(ctx, models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, freshSets, cachedSets)
}

func TestEngine_ReloadUsesNewSnapshot(t *testing.T) {
	h := newHarness(t, fixture())
	ctx := context.Background()

	k, err := h.engine.ComputeKPIs(ctx, models.Filter{}, models.FleetScope())
	require.NoError(t, err)
	assert.Equal(t, 10, k.RecordCount)

	h.holder.Install(fixture()[:3])
	k, err = h.engine.ComputeKPIs(ctx, models.Filter{}, models.FleetScope())
	require.NoError(t, err)
	assert.Equal(t, 3, k.RecordCount)
}

func TestEngine_InvalidFilter(t *testing.T) {
	h := newHarness(t, fixture())
	start, end := base, base.Add(-time.Hour)

	_, err := h.engine.ApplyFilter(context.Background(), models.Filter{Start: &start, End: &end})
	assert.ErrorIs(t, err, filter.ErrInvalidFilter)
	assert.Zero(t, h.store.Len())
}

func TestEngine_NoSnapshot(t *testing.T) {
	holder := store.NewHolder(store.StaticSource(nil), nil)
	e := New(config.DefaultThresholds(), holder, cache.NewMemoryStore(nil), 0)

	_, err := e.ComputeKPIs(context.Background(), models.Filter{}, models.FleetScope())
	assert.ErrorIs(t, err, store.ErrNoSnapshot)
}

func TestEngine_EmptyViewIsNotAnError(t *testing.T) {
	h := newHarness(t, fixture())
	k, err := h.engine.ComputeKPIs(context.Background(),
		models.Filter{Clients: []string{"nobody"}}, models.FleetScope())
	require.NoError(t, err)
	assert.True(t, k.Empty())
	assert.False(t, k.TotalDistanceKm.Defined)
}

func TestEngine_Compare(t *testing.T) {
	h := newHarness(t, fixture())
	ctx := context.Background()

	res, err := h.engine.Compare(ctx, models.Filter{}, "average_speed")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Population)
	require.Len(t, res.Entries, 4)
	assert.Equal(t, "V3", res.Entries[0].VehicleID)

	_, err = h.engine.Compare(ctx, models.Filter{}, "fuel_level")
	assert.ErrorIs(t, err, analytics.ErrUnknownMetric)
}

func TestEngine_Analyze(t *testing.T) {
	h := newHarness(t, fixture())

	a, err := h.engine.Analyze(context.Background(), models.Filter{Clients: []string{"C1"}}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 6, a.Records)
	assert.True(t, a.Fleet.Scope.IsFleet())
	assert.Equal(t, 2, a.Fleet.VehicleCount)
	require.Len(t, a.Vehicles, 2)
	assert.Equal(t, "V1", a.Vehicles[0].Scope.VehicleID)
	assert.Equal(t, base.Add(20*time.Minute), a.AsOf)
	assert.Equal(t, len(a.Insights), a.Summary.Total)
	assert.Empty(t, a.Failures)
}

type failingRule struct{}

func (failingRule) ID() string                { return "predictive.broken" }
func (failingRule) Category() models.Category { return models.CategoryPredictive }
func (failingRule) Evaluate(insights.Input) ([]models.Insight, error) {
	return nil, errors.New("broken")
}

func TestEngine_RuleFailureReported(t *testing.T) {
	h := newHarness(t, fixture(), WithRules(append(insights.DefaultRules(), failingRule{})...))

	a, err := h.engine.Analyze(context.Background(), models.Filter{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, a.Failures, 1)
	assert.Equal(t, "predictive.broken", a.Failures[0].RuleID)
	assert.NotEmpty(t, a.Insights)
}

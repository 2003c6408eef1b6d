package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/models"
)

func ruleByID(t *testing.T, id string) Rule {
	t.Helper()
	for _, r := range DefaultRules() {
		if r.ID() == id {
			return r
		}
	}
	t.Fatalf("rule %s not registered", id)
	return nil
}

func run(t *testing.T, id string, in Input) []models.Insight {
	t.Helper()
	if in.Thresholds.TrendPeriods == 0 {
		in.Thresholds = config.DefaultThresholds()
	}
	out, err := ruleByID(t, id).Evaluate(in)
	require.NoError(t, err)
	return out
}

func vehicleSet(id string) models.KPISet {
	return models.KPISet{Scope: models.VehicleScope(id), RecordCount: 100}
}

func TestOverspeedRule_Grades(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		cnt  float64
		want []models.Severity
	}{
		{"none", 0, 0, nil},
		{"info", 0.01, 1, []models.Severity{models.SeverityInfo}},
		{"warning", 0.05, 5, []models.Severity{models.SeverityWarning}},
		{"critical", 0.5, 50, []models.Severity{models.SeverityCritical}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := vehicleSet("V1")
			k.OverspeedRate = models.Defined(tt.rate)
			k.OverspeedCount = models.Defined(tt.cnt)

			out := run(t, "compliance.overspeed", Input{Sets: []models.KPISet{k}})
			var got []models.Severity
			for _, ins := range out {
				got = append(got, ins.Severity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRules_SkipUndefinedMeasures(t *testing.T) {
	in := Input{Sets: []models.KPISet{vehicleSet("V1"), {Scope: models.FleetScope()}}}
	for _, r := range DefaultRules() {
		out := run(t, r.ID(), in)
		assert.Empty(t, out, r.ID())
	}
}

func TestThresholdRules(t *testing.T) {
	k := vehicleSet("V1")
	k.ComplianceRate = models.Defined(0.8)
	k.IdleTimeRatio = models.Defined(0.6)
	k.GPSCoverage = models.Defined(0.4)
	k.BatteryHealth = models.Defined(25)
	k.HarshEventRate = models.Defined(0.1)
	k.StatusErrorRate = models.Defined(0.2)
	k.AverageSpeedKmh = models.Defined(70)
	k.TotalDistanceKm = models.Defined(1500)
	k.MovingHours = models.Defined(150)
	in := Input{Sets: []models.KPISet{k}}

	want := map[string]models.Severity{
		"compliance.operating_hours":     models.SeverityWarning,
		"efficiency.idle_time":           models.SeverityCritical,
		"efficiency.gps_coverage":        models.SeverityCritical,
		"efficiency.battery_health":      models.SeverityWarning,
		"compliance.harsh_events":        models.SeverityWarning,
		"efficiency.system_status":       models.SeverityWarning,
		"performance.high_average_speed": models.SeverityWarning,
		"predictive.maintenance_due":     models.SeverityInfo,
		"performance.low_productivity":   models.SeverityInfo,
	}
	for id, sev := range want {
		out := run(t, id, in)
		require.Len(t, out, 1, id)
		assert.Equal(t, sev, out[0].Severity, id)
		assert.Equal(t, models.VehicleScope("V1"), out[0].Subject, id)
		assert.NotContains(t, out[0].Message(), "{", id)
	}
}

func TestLowActivityRule(t *testing.T) {
	var sets []models.KPISet
	for id, km := range map[string]float64{"V1": 10, "V2": 100, "V3": 110, "V4": 120} {
		k := vehicleSet(id)
		k.TotalDistanceKm = models.Defined(km)
		sets = append(sets, k)
	}

	out := run(t, "performance.low_activity", Input{Sets: sets})
	require.Len(t, out, 1)
	assert.Equal(t, "V1", out[0].Subject.VehicleID)

	small := run(t, "performance.low_activity", Input{Sets: sets[:2]})
	assert.Empty(t, small)
}

func TestSpeedDegradationRule(t *testing.T) {
	asOf := base.Add(96 * time.Hour)
	view := []models.TelemetryRecord{
		reading("V1", 10*time.Hour, 60),
		reading("V1", 30*time.Hour, 60),
		reading("V1", 80*time.Hour, 40),
		reading("V1", 90*time.Hour, 40),
		reading("V2", 10*time.Hour, 40),
		reading("V2", 90*time.Hour, 60),
	}
	sets := []models.KPISet{vehicleSet("V1"), vehicleSet("V2")}

	out := run(t, "performance.speed_degradation", Input{Sets: sets, View: view, AsOf: asOf})
	require.Len(t, out, 2)
	assert.Equal(t, "V1", out[0].Subject.VehicleID)
	assert.Equal(t, models.SeverityWarning, out[0].Severity)
	assert.Equal(t, "33.3%", out[0].Params["change"])
	assert.Equal(t, "V2", out[1].Subject.VehicleID)
	assert.Equal(t, models.SeverityInfo, out[1].Severity)
}

func TestOverspeedTrendRule(t *testing.T) {
	asOf := base.Add(96 * time.Hour)
	view := []models.TelemetryRecord{
		reading("V1", 1*time.Hour, 50),
		reading("V1", 2*time.Hour, 50),
		reading("V1", 25*time.Hour, 50),
		reading("V1", 26*time.Hour, 120),
		reading("V1", 49*time.Hour, 120),
		reading("V1", 50*time.Hour, 120),
		reading("V1", 73*time.Hour, 120),
	}
	sets := []models.KPISet{vehicleSet("V1")}

	out := run(t, "predictive.overspeed_trend", Input{Sets: sets, View: view, AsOf: asOf})
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityWarning, out[0].Severity)
	assert.Equal(t, 1.0, out[0].Confidence)
	assert.Equal(t, "0.0%", out[0].Params["first"])
	assert.Equal(t, "100.0%", out[0].Params["last"])

	// Снижение в последнем периоде ломает монотонность
	view = append(view, reading("V1", 74*time.Hour, 50), reading("V1", 75*time.Hour, 50))
	out = run(t, "predictive.overspeed_trend", Input{Sets: sets, View: view, AsOf: asOf})
	assert.Empty(t, out)
}

func TestOverspeedTrendRule_TooFewPeriods(t *testing.T) {
	asOf := base.Add(96 * time.Hour)
	view := []models.TelemetryRecord{
		reading("V1", 50*time.Hour, 50),
		reading("V1", 73*time.Hour, 120),
	}
	out := run(t, "predictive.overspeed_trend", Input{
		Sets: []models.KPISet{vehicleSet("V1")}, View: view, AsOf: asOf,
	})
	assert.Empty(t, out)
}

func TestBatteryTrendRule(t *testing.T) {
	var view []models.TelemetryRecord
	for i, level := range []float64{80, 70, 60, 50} {
		r := reading("V1", time.Duration(i*24+1)*time.Hour, 30)
		r.Battery = f(level)
		view = append(view, r)
	}
	sets := []models.KPISet{vehicleSet("V1"), {Scope: models.FleetScope()}}

	// AsOf выводится из последней записи
	out := run(t, "predictive.battery_trend", Input{Sets: sets, View: view})
	require.Len(t, out, 1)
	assert.Equal(t, "V1", out[0].Subject.VehicleID)
	assert.Equal(t, "-10.0", out[0].Params["slope"])
}

func TestResolveAsOf(t *testing.T) {
	view := []models.TelemetryRecord{reading("V1", time.Hour, 0), reading("V1", 0, 0)}
	assert.Equal(t, base.Add(time.Hour), resolveAsOf(Input{View: view}))
	assert.Equal(t, base, resolveAsOf(Input{View: view, AsOf: base}))
	assert.True(t, resolveAsOf(Input{}).IsZero())
}

func TestSampleConfidence(t *testing.T) {
	assert.Equal(t, 0.0, sampleConfidence(0, 100))
	assert.Equal(t, 0.55, sampleConfidence(10, 100))
	assert.Equal(t, 1.0, sampleConfidence(500, 100))
}

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/engine"
	"fleet-insights-service/internal/filter"
	"fleet-insights-service/internal/models"
	"fleet-insights-service/internal/store"
)

func f(v float64) *float64 { return &v }

func TestAnalyze_FromSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "telemetry.db")

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var records []models.TelemetryRecord
	for i, speed := range []float64{0, 40, 120} {
		at := base.Add(time.Duration(i) * 10 * time.Minute)
		records = append(records, models.TelemetryRecord{
			VehicleID: "V1", ClientID: "C1",
			Latitude: f(1), Longitude: f(1), SpeedKmh: f(speed), IgnitionOn: true,
			OdometerKm: float64(i * 10), EventType: models.EventNormal, Status: models.StatusOnline,
			GPSTime: at, CommTime: at,
		})
	}

	seed, err := store.NewSQLiteSource(dsn)
	require.NoError(t, err)
	require.NoError(t, seed.Insert(ctx, records))
	require.NoError(t, seed.Close())

	source, closeSource, err := openSource(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer closeSource()

	cfg := config.DefaultThresholds()
	cfg.SpeedLimitKmh = 100
	eng := engine.New(cfg, store.NewHolder(source, nil), cache.NewMemoryStore(nil), time.Minute)
	_, err = eng.Reload(ctx)
	require.NoError(t, err)

	flt, err := filter.Parse([]string{"C1"}, []string{"V1"}, "2024-01-01", "2024-01-02")
	require.NoError(t, err)

	report, err := analyze(ctx, eng, flt, time.Time{}, "overspeed_rate")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Records)
	assert.InDelta(t, 1.0/3.0, report.Fleet.OverspeedRate.Value, 1e-9)
	require.NotNil(t, report.Comparison)
	assert.Equal(t, 1, report.Comparison.Population)
	assert.NotEmpty(t, report.Insights)
}

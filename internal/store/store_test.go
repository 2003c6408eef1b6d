package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-insights-service/internal/models"
)

func f(v float64) *float64 { return &v }

func sample() []models.TelemetryRecord {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	driver := "D7"
	return []models.TelemetryRecord{
		{
			VehicleID: "V2", ClientID: "C1",
			Latitude: f(-23.5), Longitude: f(-46.6), SpeedKmh: f(42),
			IgnitionOn: true, OdometerKm: 1200.5, DriverID: &driver,
			EventType: models.EventOverspeed, Battery: f(88), Status: models.StatusOnline,
			GPSTime: base.Add(time.Minute), CommTime: base.Add(time.Minute + time.Second),
		},
		{
			VehicleID: "V1", ClientID: "C1",
			IgnitionOn: false, OdometerKm: 10,
			EventType: models.EventNormal, Status: models.StatusOffline,
			GPSTime: base, CommTime: base,
		},
	}
}

func TestSQLiteSource_RoundTrip(t *testing.T) {
	src, err := NewSQLiteSource(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	ctx := context.Background()
	require.NoError(t, src.Insert(ctx, sample()))

	got, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Упорядочено по ТС и времени
	assert.Equal(t, "V1", got[0].VehicleID)
	assert.Nil(t, got[0].SpeedKmh)
	assert.Nil(t, got[0].Latitude)
	assert.Nil(t, got[0].DriverID)
	assert.False(t, got[0].IgnitionOn)
	assert.Equal(t, models.StatusOffline, got[0].Status)

	v2 := got[1]
	require.NotNil(t, v2.SpeedKmh)
	assert.Equal(t, 42.0, *v2.SpeedKmh)
	require.NotNil(t, v2.DriverID)
	assert.Equal(t, "D7", *v2.DriverID)
	assert.Equal(t, models.EventOverspeed, v2.EventType)
	assert.True(t, v2.IgnitionOn)
	assert.Equal(t, 1200.5, v2.OdometerKm)
	assert.True(t, sample()[0].GPSTime.Equal(v2.GPSTime))
}

func TestHolder_Reload(t *testing.T) {
	h := NewHolder(StaticSource(sample()), nil)

	_, err := h.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	first, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Len())
	assert.NotEmpty(t, first.ID)

	second, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	cur, err := h.Current()
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)
	// Старый снимок не изменяется
	assert.Equal(t, 2, first.Len())
}

type brokenSource struct{}

func (brokenSource) Load(context.Context) ([]models.TelemetryRecord, error) {
	return nil, errors.New("db down")
}

func TestHolder_ReloadFailureKeepsCurrent(t *testing.T) {
	h := NewHolder(brokenSource{}, nil)
	snap := h.Install(sample())

	_, err := h.Reload(context.Background())
	require.Error(t, err)

	cur, err := h.Current()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, cur.ID)
}

func TestStaticSource_Copies(t *testing.T) {
	src := StaticSource(sample())
	got, err := src.Load(context.Background())
	require.NoError(t, err)
	got[0].VehicleID = "changed"
	assert.Equal(t, "V2", src[0].VehicleID)
}

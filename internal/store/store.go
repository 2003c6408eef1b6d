// Package store загружает снимки телеметрии из внешнего хранилища записей
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fleet-insights-service/internal/models"
)

// ErrNoSnapshot снимок еще не загружен
var ErrNoSnapshot = errors.New("no telemetry snapshot loaded")

// Schema таблица телеметрии, общая для SQLite и Postgres
const Schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	vehicle_id   TEXT NOT NULL,
	client_id    TEXT NOT NULL,
	gps_time     TIMESTAMP NOT NULL,
	comm_time    TIMESTAMP NOT NULL,
	latitude     DOUBLE PRECISION,
	longitude    DOUBLE PRECISION,
	speed_kmh    DOUBLE PRECISION,
	ignition_on  BOOLEAN NOT NULL DEFAULT FALSE,
	odometer_km  DOUBLE PRECISION NOT NULL DEFAULT 0,
	driver_id    TEXT,
	event_type   TEXT NOT NULL DEFAULT 'normal',
	battery      DOUBLE PRECISION,
	status       TEXT NOT NULL DEFAULT 'online'
);

CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_time ON telemetry(vehicle_id, gps_time);
CREATE INDEX IF NOT EXISTS idx_telemetry_client ON telemetry(client_id);
`

const selectTelemetry = `
SELECT vehicle_id, client_id, gps_time, comm_time, latitude, longitude, speed_kmh,
       ignition_on, odometer_km, driver_id, event_type, battery, status
FROM telemetry
ORDER BY vehicle_id, gps_time`

// Source источник записей телеметрии
type Source interface {
	Load(ctx context.Context) ([]models.TelemetryRecord, error)
}

// StaticSource источник с заранее заданными записями
type StaticSource []models.TelemetryRecord

// Load возвращает копию записей
func (s StaticSource) Load(context.Context) ([]models.TelemetryRecord, error) {
	return append([]models.TelemetryRecord(nil), s...), nil
}

// Holder хранит текущий снимок и атомарно заменяет его при перезагрузке
// Выданный снимок никогда не изменяется
type Holder struct {
	source  Source
	current atomic.Pointer[models.Snapshot]
	now     func() time.Time
	logger  *slog.Logger
}

// NewHolder создает хранитель снимка поверх источника
func NewHolder(source Source, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Holder{source: source, now: time.Now, logger: logger}
}

// Current возвращает активный снимок
func (h *Holder) Current() (*models.Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Reload загружает новый снимок; при ошибке активный снимок сохраняется
func (h *Holder) Reload(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()
	records, err := h.source.Load(ctx)
	if err != nil {
		h.logger.Error("snapshot reload failed", "err", err)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap := h.Install(records)
	h.logger.Info("snapshot loaded",
		"snapshot", snap.ID, "records", snap.Len(), "took", time.Since(start))
	return snap, nil
}

// Install делает записи активным снимком с новым идентификатором
func (h *Holder) Install(records []models.TelemetryRecord) *models.Snapshot {
	snap := &models.Snapshot{
		ID:       uuid.NewString(),
		LoadedAt: h.now().UTC(),
		Records:  records,
	}
	h.current.Store(snap)
	return snap
}

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-insights-service/internal/models"
)

// PostgresSource источник записей в Postgres/TimescaleDB
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource создает пул соединений и проверяет его
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresSource{pool: pool}, nil
}

// Close закрывает пул
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// Ping проверяет соединение
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load читает все записи телеметрии
func (s *PostgresSource) Load(ctx context.Context) ([]models.TelemetryRecord, error) {
	rows, err := s.pool.Query(ctx, selectTelemetry)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TelemetryRecord, error) {
		var (
			r             models.TelemetryRecord
			event, status string
		)
		err := row.Scan(&r.VehicleID, &r.ClientID, &r.GPSTime, &r.CommTime,
			&r.Latitude, &r.Longitude, &r.SpeedKmh, &r.IgnitionOn, &r.OdometerKm,
			&r.DriverID, &event, &r.Battery, &status)
		r.EventType = models.EventType(event)
		r.Status = models.SystemStatus(status)
		r.GPSTime = r.GPSTime.UTC()
		r.CommTime = r.CommTime.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan telemetry: %w", err)
	}
	return out, nil
}

// Insert копирует записи через COPY
func (s *PostgresSource) Insert(ctx context.Context, records []models.TelemetryRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{
			r.VehicleID, r.ClientID, r.GPSTime, r.CommTime,
			r.Latitude, r.Longitude, r.SpeedKmh, r.IgnitionOn, r.OdometerKm,
			r.DriverID, string(r.EventType), r.Battery, string(r.Status),
		}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"telemetry"}, telemetryColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(records), err)
	}
	return nil
}

var telemetryColumns = []string{
	"vehicle_id",
	"client_id",
	"gps_time",
	"comm_time",
	"latitude",
	"longitude",
	"speed_kmh",
	"ignition_on",
	"odometer_km",
	"driver_id",
	"event_type",
	"battery",
	"status",
}

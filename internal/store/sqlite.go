package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleet-insights-service/internal/models"
)

// SQLiteSource локальный источник записей на SQLite
type SQLiteSource struct {
	conn *sql.DB
}

// NewSQLiteSource открывает базу и создает схему
func NewSQLiteSource(dsn string) (*SQLiteSource, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite работает с одним писателем
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if _, err := conn.Exec(Schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &SQLiteSource{conn: conn}, nil
}

// Close закрывает соединение
func (s *SQLiteSource) Close() error {
	return s.conn.Close()
}

// Load читает все записи телеметрии
func (s *SQLiteSource) Load(ctx context.Context) ([]models.TelemetryRecord, error) {
	rows, err := s.conn.QueryContext(ctx, selectTelemetry)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	var out []models.TelemetryRecord
	for rows.Next() {
		var (
			r                   models.TelemetryRecord
			lat, lon, spd, batt sql.NullFloat64
			driver              sql.NullString
			event, status       string
		)
		if err := rows.Scan(&r.VehicleID, &r.ClientID, &r.GPSTime, &r.CommTime,
			&lat, &lon, &spd, &r.IgnitionOn, &r.OdometerKm, &driver, &event, &batt, &status); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		r.Latitude = nullFloat(lat)
		r.Longitude = nullFloat(lon)
		r.SpeedKmh = nullFloat(spd)
		r.Battery = nullFloat(batt)
		if driver.Valid {
			r.DriverID = &driver.String
		}
		r.EventType = models.EventType(event)
		r.Status = models.SystemStatus(status)
		r.GPSTime = r.GPSTime.UTC()
		r.CommTime = r.CommTime.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert добавляет записи одной транзакцией
func (s *SQLiteSource) Insert(ctx context.Context, records []models.TelemetryRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry
		(vehicle_id, client_id, gps_time, comm_time, latitude, longitude, speed_kmh,
		 ignition_on, odometer_km, driver_id, event_type, battery, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.VehicleID, r.ClientID, r.GPSTime.UTC(), r.CommTime.UTC(),
			r.Latitude, r.Longitude, r.SpeedKmh, r.IgnitionOn, r.OdometerKm,
			r.DriverID, string(r.EventType), r.Battery, string(r.Status),
		); err != nil {
			return fmt.Errorf("insert telemetry for %s: %w", r.VehicleID, err)
		}
	}
	return tx.Commit()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

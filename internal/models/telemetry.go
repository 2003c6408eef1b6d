// Package models содержит структуры данных телеметрии, KPI и инсайтов
package models

import (
	"sort"
	"strings"
	"time"
)

// EventType категория события телеметрии
type EventType string

const (
	EventNormal     EventType = "normal"
	EventIdle       EventType = "idle"
	EventOverspeed  EventType = "overspeed"
	EventHarshBrake EventType = "harsh_brake"
	EventHarshAccel EventType = "harsh_acceleration"
)

// IsHarsh сообщает, относится ли событие к агрессивному вождению
func (e EventType) IsHarsh() bool {
	return e == EventHarshBrake || e == EventHarshAccel
}

// SystemStatus состояние бортового оборудования
type SystemStatus string

const (
	StatusOnline  SystemStatus = "online"
	StatusOffline SystemStatus = "offline"
	StatusError   SystemStatus = "error"
)

// TelemetryRecord одно показание одного транспортного средства
// Nil-указатели означают отсутствие значения (нет GPS фикса, нет показания скорости)
type TelemetryRecord struct {
	VehicleID  string       `json:"vehicle_id"`
	ClientID   string       `json:"client_id"`
	Latitude   *float64     `json:"latitude"`
	Longitude  *float64     `json:"longitude"`
	SpeedKmh   *float64     `json:"speed_kmh"`
	IgnitionOn bool         `json:"ignition_on"`
	OdometerKm float64      `json:"odometer_km"`
	DriverID   *string      `json:"driver_id,omitempty"`
	EventType  EventType    `json:"event_type"`
	Battery    *float64     `json:"battery"`
	Status     SystemStatus `json:"status"`
	GPSTime    time.Time    `json:"gps_time"`
	CommTime   time.Time    `json:"comm_time"`
}

// HasFix сообщает, есть ли у записи валидные координаты
func (r TelemetryRecord) HasFix() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Snapshot неизменяемая таблица записей для одной аналитической сессии
type Snapshot struct {
	ID       string            `json:"id"`
	LoadedAt time.Time         `json:"loaded_at"`
	Records  []TelemetryRecord `json:"-"`
}

// Len возвращает количество записей в снимке
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Filter набор предикатов по клиенту, ТС и диапазону дат
// Пустое поле означает отсутствие ограничения по измерению
type Filter struct {
	Clients  []string   `json:"clients,omitempty"`
	Vehicles []string   `json:"vehicles,omitempty"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
}

// Key возвращает каноническое представление фильтра для ключей кэша
func (f Filter) Key() string {
	var b strings.Builder
	b.WriteString("c=")
	b.WriteString(canonicalSet(f.Clients))
	b.WriteString(";v=")
	b.WriteString(canonicalSet(f.Vehicles))
	b.WriteString(";s=")
	if f.Start != nil {
		b.WriteString(f.Start.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString(";e=")
	if f.End != nil {
		b.WriteString(f.End.UTC().Format(time.RFC3339Nano))
	}
	return b.String()
}

func canonicalSet(values []string) string {
	if len(values) == 0 {
		return "*"
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			continue
		}
		out = append(out, v)
	}
	return strings.Join(out, ",")
}

// View отфильтрованное представление снимка
// SnapshotID и Filter описывают происхождение и используются как ключ кэша
type View struct {
	SnapshotID string            `json:"snapshot_id"`
	Filter     Filter            `json:"filter"`
	Records    []TelemetryRecord `json:"-"`
}

// Len возвращает количество записей в представлении
func (v View) Len() int {
	return len(v.Records)
}

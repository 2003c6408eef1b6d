package models

import "time"

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Redis      string    `json:"redis"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Uptime     string    `json:"uptime"`
}

// StatsResponse содержит статистику текущего снимка
type StatsResponse struct {
	SnapshotID   string    `json:"snapshot_id"`
	LoadedAt     time.Time `json:"loaded_at"`
	TotalRecords int       `json:"total_records"`
	Vehicles     int       `json:"vehicles"`
	Clients      int       `json:"clients"`
}

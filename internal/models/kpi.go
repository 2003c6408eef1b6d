package models

import "time"

// Scope область агрегации: весь парк или одно ТС
type Scope struct {
	VehicleID string `json:"vehicle_id,omitempty"`
}

// FleetScope область "весь парк"
func FleetScope() Scope {
	return Scope{}
}

// VehicleScope область одного ТС
func VehicleScope(vehicleID string) Scope {
	return Scope{VehicleID: vehicleID}
}

// IsFleet сообщает, что область охватывает весь парк
func (s Scope) IsFleet() bool {
	return s.VehicleID == ""
}

func (s Scope) String() string {
	if s.IsFleet() {
		return "fleet"
	}
	return "vehicle:" + s.VehicleID
}

// DataQuality флаги качества данных, обнаруженные при расчете KPI
// Аномалии сенсоров фиксируются здесь, а не возвращаются как ошибки
type DataQuality struct {
	OdometerRollbacks    int `json:"odometer_rollbacks"`
	OutOfOrderTimestamps int `json:"out_of_order_timestamps"`
	MissingFix           int `json:"missing_fix"`
	MissingSpeed         int `json:"missing_speed"`
	SampleGaps           int `json:"sample_gaps"`
}

// Add суммирует флаги качества
func (q DataQuality) Add(o DataQuality) DataQuality {
	return DataQuality{
		OdometerRollbacks:    q.OdometerRollbacks + o.OdometerRollbacks,
		OutOfOrderTimestamps: q.OutOfOrderTimestamps + o.OutOfOrderTimestamps,
		MissingFix:           q.MissingFix + o.MissingFix,
		MissingSpeed:         q.MissingSpeed + o.MissingSpeed,
		SampleGaps:           q.SampleGaps + o.SampleGaps,
	}
}

// KPISet агрегированные показатели для области
type KPISet struct {
	Scope        Scope `json:"scope"`
	RecordCount  int   `json:"record_count"`
	VehicleCount int   `json:"vehicle_count"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	TotalDistanceKm Measure `json:"total_distance_km"`
	AverageSpeedKmh Measure `json:"average_speed_kmh"`
	MaxSpeedKmh     Measure `json:"max_speed_kmh"`

	MovingHours     Measure `json:"moving_hours"`
	IdleHours       Measure `json:"idle_hours"`
	OffHours        Measure `json:"off_hours"`
	MovingTimeRatio Measure `json:"moving_time_ratio"`
	IdleTimeRatio   Measure `json:"idle_time_ratio"`

	OverspeedCount Measure `json:"overspeed_count"`
	OverspeedRate  Measure `json:"overspeed_rate"`
	HarshEventRate Measure `json:"harsh_event_rate"`

	GPSCoverage     Measure `json:"gps_coverage"`
	NominalInterval Measure `json:"nominal_interval_seconds"`
	ComplianceRate  Measure `json:"compliance_rate"`
	BatteryHealth   Measure `json:"battery_health"`
	StatusErrorRate Measure `json:"status_error_rate"`

	Quality DataQuality `json:"data_quality"`
}

// Empty сообщает, что в области нет ни одной записи
func (k KPISet) Empty() bool {
	return k.RecordCount == 0
}

package config

import (
	"errors"
	"fmt"
	"time"
)

// Направления ранжирования метрик
const (
	DirectionHigher  = "higher"
	DirectionLower   = "lower"
	DirectionNeutral = "neutral"
)

// Thresholds пороги аналитики, передаются в каждую точку входа движка
type Thresholds struct {
	// KPI
	SpeedLimitKmh       float64
	MovingSpeedKmh      float64
	MaxSampleGap        time.Duration
	OperatingHoursStart int
	OperatingHoursEnd   int
	Location            *time.Location

	// Compliance
	OverspeedRateWarning  float64
	OverspeedRateCritical float64
	ComplianceWarning     float64
	ComplianceCritical    float64
	HarshEventRateWarning float64

	// Efficiency
	IdleRatioWarning       float64
	IdleRatioCritical      float64
	GPSCoverageWarning     float64
	GPSCoverageCritical    float64
	BatteryWarning         float64
	BatteryCritical        float64
	StatusErrorRateWarning float64

	// Performance
	HighAverageSpeedKmh   float64
	LowAverageSpeedKmh    float64
	MinKmPerMovingHour    float64
	LowActivityPercentile float64
	SpeedDegradationPct   float64
	RecentWindow          time.Duration
	BaselineWindow        time.Duration

	// Predictive
	TrendPeriod           time.Duration
	TrendPeriods          int
	MinTrendSlope         float64
	BatteryTrendSlope     float64
	MaintenanceDistanceKm float64

	ConfidenceSampleSize int

	// Comparative
	OutlierZScore    float64
	MinPopulation    int
	MetricDirections map[string]string
}

// DefaultThresholds возвращает пороги по умолчанию
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpeedLimitKmh:       80,
		MovingSpeedKmh:      0,
		MaxSampleGap:        30 * time.Minute,
		OperatingHoursStart: 6,
		OperatingHoursEnd:   22,
		Location:            time.UTC,

		OverspeedRateWarning:  0.05,
		OverspeedRateCritical: 0.20,
		ComplianceWarning:     0.90,
		ComplianceCritical:    0.70,
		HarshEventRateWarning: 0.05,

		IdleRatioWarning:       0.30,
		IdleRatioCritical:      0.50,
		GPSCoverageWarning:     0.90,
		GPSCoverageCritical:    0.50,
		BatteryWarning:         30,
		BatteryCritical:        15,
		StatusErrorRateWarning: 0.10,

		HighAverageSpeedKmh:   60,
		LowAverageSpeedKmh:    25,
		MinKmPerMovingHour:    15,
		LowActivityPercentile: 0.25,
		SpeedDegradationPct:   10,
		RecentWindow:          24 * time.Hour,
		BaselineWindow:        72 * time.Hour,

		TrendPeriod:           24 * time.Hour,
		TrendPeriods:          4,
		MinTrendSlope:         0.01,
		BatteryTrendSlope:     -2,
		MaintenanceDistanceKm: 1000,

		ConfidenceSampleSize: 100,

		OutlierZScore: 2.0,
		MinPopulation: 3,
	}
}

// Zone возвращает часовой пояс для политики рабочих часов
func (t Thresholds) Zone() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// WithinOperatingHours сообщает, попадает ли момент в рабочие часы
// Окно может переходить через полночь (например 22 -> 6)
func (t Thresholds) WithinOperatingHours(ts time.Time) bool {
	h := ts.In(t.Zone()).Hour()
	start, end := t.OperatingHoursStart, t.OperatingHoursEnd
	if start == end {
		return true
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// Direction возвращает переопределенное направление метрики
func (t Thresholds) Direction(metric string) (string, bool) {
	dir, ok := t.MetricDirections[metric]
	return dir, ok
}

// Validate проверяет согласованность порогов
func (t Thresholds) Validate() error {
	var errs []error
	if t.SpeedLimitKmh <= 0 {
		errs = append(errs, errors.New("speed limit must be positive"))
	}
	if t.MovingSpeedKmh < 0 {
		errs = append(errs, errors.New("moving speed threshold must not be negative"))
	}
	if t.MaxSampleGap <= 0 {
		errs = append(errs, errors.New("max sample gap must be positive"))
	}
	if t.OperatingHoursStart < 0 || t.OperatingHoursStart > 24 || t.OperatingHoursEnd < 0 || t.OperatingHoursEnd > 24 {
		errs = append(errs, fmt.Errorf("operating hours %d-%d out of range", t.OperatingHoursStart, t.OperatingHoursEnd))
	}
	if t.OverspeedRateWarning > t.OverspeedRateCritical {
		errs = append(errs, errors.New("overspeed warning rate exceeds critical rate"))
	}
	if t.ComplianceWarning < t.ComplianceCritical {
		errs = append(errs, errors.New("compliance warning level below critical level"))
	}
	if t.IdleRatioWarning > t.IdleRatioCritical {
		errs = append(errs, errors.New("idle warning ratio exceeds critical ratio"))
	}
	if t.GPSCoverageWarning < t.GPSCoverageCritical {
		errs = append(errs, errors.New("gps coverage warning level below critical level"))
	}
	if t.BatteryWarning < t.BatteryCritical {
		errs = append(errs, errors.New("battery warning level below critical level"))
	}
	if t.LowActivityPercentile < 0 || t.LowActivityPercentile > 1 {
		errs = append(errs, errors.New("low activity percentile must be within [0, 1]"))
	}
	if t.RecentWindow <= 0 || t.BaselineWindow <= 0 || t.TrendPeriod <= 0 {
		errs = append(errs, errors.New("analysis windows must be positive"))
	}
	if t.TrendPeriods < 2 {
		errs = append(errs, errors.New("trend needs at least 2 periods"))
	}
	if t.ConfidenceSampleSize < 1 {
		errs = append(errs, errors.New("confidence sample size must be positive"))
	}
	if t.OutlierZScore <= 0 {
		errs = append(errs, errors.New("outlier z-score threshold must be positive"))
	}
	if t.MinPopulation < 3 {
		errs = append(errs, errors.New("minimum population must be at least 3"))
	}
	for name, dir := range t.MetricDirections {
		switch dir {
		case DirectionHigher, DirectionLower, DirectionNeutral:
		default:
			errs = append(errs, fmt.Errorf("invalid direction %q for metric %q", dir, name))
		}
	}
	return errors.Join(errs...)
}

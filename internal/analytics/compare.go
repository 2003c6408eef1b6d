package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/models"
)

// ErrUnknownMetric метрика отсутствует в реестре сравнения
var ErrUnknownMetric = errors.New("unknown comparison metric")

// Metric описывает сравниваемую метрику KPI
type Metric struct {
	Name      string
	Direction string
	Extract   func(models.KPISet) models.Measure
}

// registry фиксированный реестр метрик сравнения
var registry = []Metric{
	{Name: "total_distance", Direction: config.DirectionNeutral, Extract: func(k models.KPISet) models.Measure { return k.TotalDistanceKm }},
	{Name: "average_speed", Direction: config.DirectionNeutral, Extract: func(k models.KPISet) models.Measure { return k.AverageSpeedKmh }},
	{Name: "max_speed", Direction: config.DirectionLower, Extract: func(k models.KPISet) models.Measure { return k.MaxSpeedKmh }},
	{Name: "moving_time_ratio", Direction: config.DirectionHigher, Extract: func(k models.KPISet) models.Measure { return k.MovingTimeRatio }},
	{Name: "idle_time_ratio", Direction: config.DirectionLower, Extract: func(k models.KPISet) models.Measure { return k.IdleTimeRatio }},
	{Name: "overspeed_rate", Direction: config.DirectionLower, Extract: func(k models.KPISet) models.Measure { return k.OverspeedRate }},
	{Name: "harsh_event_rate", Direction: config.DirectionLower, Extract: func(k models.KPISet) models.Measure { return k.HarshEventRate }},
	{Name: "gps_coverage", Direction: config.DirectionHigher, Extract: func(k models.KPISet) models.Measure { return k.GPSCoverage }},
	{Name: "compliance_rate", Direction: config.DirectionHigher, Extract: func(k models.KPISet) models.Measure { return k.ComplianceRate }},
	{Name: "battery_health", Direction: config.DirectionHigher, Extract: func(k models.KPISet) models.Measure { return k.BatteryHealth }},
	{Name: "status_error_rate", Direction: config.DirectionLower, Extract: func(k models.KPISet) models.Measure { return k.StatusErrorRate }},
}

// Metrics возвращает имена поддерживаемых метрик
func Metrics() []string {
	names := make([]string, 0, len(registry))
	for _, m := range registry {
		names = append(names, m.Name)
	}
	return names
}

// LookupMetric ищет метрику по имени
func LookupMetric(name string) (Metric, bool) {
	for _, m := range registry {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Comparator строит рейтинги ТС и помечает статистические выбросы
type Comparator struct {
	cfg config.Thresholds
}

// NewComparator создает компаратор с заданными порогами
func NewComparator(cfg config.Thresholds) *Comparator {
	return &Comparator{cfg: cfg}
}

type sample struct {
	vehicleID string
	value     float64
}

// Compare ранжирует ТС по метрике
// Неопределенные значения исключаются и из рейтинга, и из расчета моментов
func (c *Comparator) Compare(sets map[string]models.KPISet, metricName string) (models.ComparisonResult, error) {
	metric, ok := LookupMetric(metricName)
	if !ok {
		return models.ComparisonResult{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metricName)
	}
	direction := metric.Direction
	if dir, ok := c.cfg.Direction(metric.Name); ok {
		direction = dir
	}

	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	samples := make([]sample, 0, len(ids))
	var excluded []string
	for _, id := range ids {
		m := metric.Extract(sets[id])
		if !m.Defined || math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
			excluded = append(excluded, id)
			continue
		}
		samples = append(samples, sample{vehicleID: id, value: m.Value})
	}

	result := models.ComparisonResult{
		Metric:     metric.Name,
		Direction:  direction,
		Population: len(samples),
		Mean:       models.Undefined,
		StdDev:     models.Undefined,
		Entries:    make([]models.ComparisonEntry, 0, len(samples)),
		Excluded:   excluded,
	}
	if len(samples) == 0 {
		return result, nil
	}

	window := NewSlidingWindow(len(samples))
	for _, s := range samples {
		window.Add(s.value)
	}
	result.Mean = models.Defined(window.Mean())
	if window.Count() >= 2 {
		result.StdDev = models.Defined(window.StdDev())
	}

	sortSamples(samples, direction)

	enough := len(samples) >= c.cfg.MinPopulation
	for i, s := range samples {
		entry := models.ComparisonEntry{
			VehicleID: s.vehicleID,
			Value:     s.value,
			Rank:      i + 1,
			ZScore:    models.Undefined,
		}
		if enough {
			entry.ZScore, entry.Outlier = c.score(window, s.value)
		}
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}

// score считает z-score значения относительно остальной популяции
// Популяция без разброса выбросов не содержит; при нулевом разбросе остальных
// значений выбросом считается только отличие больше погрешности округления
func (c *Comparator) score(window *SlidingWindow, value float64) (models.Measure, bool) {
	if window.StdDev() == 0 {
		return models.Defined(0), false
	}
	mean, sd, n := window.Without(value)
	if n < 2 {
		return models.Undefined, false
	}
	if sd == 0 {
		if math.Abs(value-mean) <= window.Tolerance() {
			return models.Defined(0), false
		}
		return models.Undefined, true
	}
	z := (value - mean) / sd
	return models.Defined(z), math.Abs(z) > c.cfg.OutlierZScore
}

// sortSamples сортирует от лучшего к худшему; равные значения по идентификатору ТС
func sortSamples(samples []sample, direction string) {
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		if a.value != b.value {
			if direction == config.DirectionLower {
				return a.value < b.value
			}
			return a.value > b.value
		}
		return a.vehicleID < b.vehicleID
	})
}

package insights

import (
	"math"
	"sort"
	"strconv"
	"time"

	"fleet-insights-service/internal/models"
)

// DefaultRules возвращает стандартный набор правил в порядке регистрации
func DefaultRules() []Rule {
	return []Rule{
		highAverageSpeedRule{meta{"performance.high_average_speed", models.CategoryPerformance}},
		lowAverageSpeedRule{meta{"performance.low_average_speed", models.CategoryPerformance}},
		lowActivityRule{meta{"performance.low_activity", models.CategoryPerformance}},
		speedDegradationRule{meta{"performance.speed_degradation", models.CategoryPerformance}},
		lowProductivityRule{meta{"performance.low_productivity", models.CategoryPerformance}},

		overspeedRule{meta{"compliance.overspeed", models.CategoryCompliance}},
		operatingHoursRule{meta{"compliance.operating_hours", models.CategoryCompliance}},
		harshEventsRule{meta{"compliance.harsh_events", models.CategoryCompliance}},

		idleTimeRule{meta{"efficiency.idle_time", models.CategoryEfficiency}},
		gpsCoverageRule{meta{"efficiency.gps_coverage", models.CategoryEfficiency}},
		batteryHealthRule{meta{"efficiency.battery_health", models.CategoryEfficiency}},
		systemStatusRule{meta{"efficiency.system_status", models.CategoryEfficiency}},

		overspeedTrendRule{meta{"predictive.overspeed_trend", models.CategoryPredictive}},
		batteryTrendRule{meta{"predictive.battery_trend", models.CategoryPredictive}},
		maintenanceDueRule{meta{"predictive.maintenance_due", models.CategoryPredictive}},
	}
}

// meta общая часть правил: идентификатор и категория
type meta struct {
	id       string
	category models.Category
}

func (m meta) ID() string                { return m.id }
func (m meta) Category() models.Category { return m.category }

// finding описание одного срабатывания
type finding struct {
	subject        models.Scope
	severity       models.Severity
	confidence     float64
	title          string
	template       string
	params         map[string]string
	recommendation string
}

func (m meta) emit(f finding) models.Insight {
	return models.Insight{
		RuleID:         m.id,
		Category:       m.category,
		Severity:       f.severity,
		Confidence:     f.confidence,
		Subject:        f.subject,
		Title:          f.title,
		Template:       f.template,
		Params:         f.params,
		Recommendation: f.recommendation,
		DedupKey:       models.DedupKey(m.category, f.subject, m.id),
	}
}

// sampleConfidence растет с числом наблюдений от 0.5 до 1
func sampleConfidence(n, target int) float64 {
	if n <= 0 || target <= 0 {
		return 0
	}
	share := math.Min(1, float64(n)/float64(target))
	return round3(0.5 + 0.5*share)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// subjectName подпись субъекта в тексте сообщения
func subjectName(s models.Scope) string {
	if s.IsFleet() {
		return "The fleet"
	}
	return "Vehicle " + s.VehicleID
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func pct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

func count(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

// resolveAsOf возвращает момент анализа; без явного значения берется последнее время в данных
func resolveAsOf(in Input) time.Time {
	if !in.AsOf.IsZero() {
		return in.AsOf
	}
	var latest time.Time
	for i := range in.View {
		if in.View[i].GPSTime.After(latest) {
			latest = in.View[i].GPSTime
		}
	}
	return latest
}

// recordsBySubject группирует записи представления по субъектам наборов KPI
func recordsBySubject(in Input) map[models.Scope][]*models.TelemetryRecord {
	byVehicle := make(map[string][]*models.TelemetryRecord)
	all := make([]*models.TelemetryRecord, 0, len(in.View))
	for i := range in.View {
		r := &in.View[i]
		byVehicle[r.VehicleID] = append(byVehicle[r.VehicleID], r)
		all = append(all, r)
	}
	out := make(map[models.Scope][]*models.TelemetryRecord, len(in.Sets))
	for _, set := range in.Sets {
		if set.Scope.IsFleet() {
			out[set.Scope] = all
		} else {
			out[set.Scope] = byVehicle[set.Scope.VehicleID]
		}
	}
	return out
}

// windowMean среднее значения по записям в полуинтервале (from, to]
func windowMean(recs []*models.TelemetryRecord, from, to time.Time, value func(*models.TelemetryRecord) (float64, bool)) (float64, int) {
	var sum float64
	var n int
	for _, r := range recs {
		if !r.GPSTime.After(from) || r.GPSTime.After(to) {
			continue
		}
		v, ok := value(r)
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// periodSeries средние по последовательным периодам, заканчивающимся в asOf
// Периоды без данных пропускаются
func periodSeries(recs []*models.TelemetryRecord, asOf time.Time, period time.Duration, periods int, value func(*models.TelemetryRecord) (float64, bool)) []float64 {
	series := make([]float64, 0, periods)
	for i := periods; i >= 1; i-- {
		from := asOf.Add(-time.Duration(i) * period)
		to := from.Add(period)
		mean, n := windowMean(recs, from, to, value)
		if n > 0 {
			series = append(series, mean)
		}
	}
	return series
}

// vehicleSets возвращает наборы отдельных ТС в порядке идентификаторов
func vehicleSets(sets []models.KPISet) []models.KPISet {
	out := make([]models.KPISet, 0, len(sets))
	for _, s := range sets {
		if !s.Scope.IsFleet() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scope.VehicleID < out[j].Scope.VehicleID
	})
	return out
}

// grade определяет важность по порогам "больше - хуже"
func gradeAbove(v, warning, critical float64) (models.Severity, bool) {
	switch {
	case v >= critical:
		return models.SeverityCritical, true
	case v >= warning:
		return models.SeverityWarning, true
	default:
		return models.SeverityInfo, false
	}
}

// gradeBelow определяет важность по порогам "меньше - хуже"
func gradeBelow(v, warning, critical float64) (models.Severity, bool) {
	switch {
	case v < critical:
		return models.SeverityCritical, true
	case v < warning:
		return models.SeverityWarning, true
	default:
		return models.SeverityInfo, false
	}
}

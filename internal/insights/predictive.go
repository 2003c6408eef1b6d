package insights

import (
	"fleet-insights-service/internal/analytics"
	"fleet-insights-service/internal/models"
)

// minTrendPoints число периодов с данными, необходимое для тренда
func minTrendPoints(periods int) int {
	return max(2, periods/2+1)
}

// overspeedTrendRule ищет монотонный рост доли превышений по периодам
type overspeedTrendRule struct{ meta }

func (r overspeedTrendRule) Evaluate(in Input) ([]models.Insight, error) {
	asOf := resolveAsOf(in)
	if asOf.IsZero() {
		return nil, nil
	}
	limit := in.Thresholds.SpeedLimitKmh
	overspeed := func(rec *models.TelemetryRecord) (float64, bool) {
		if rec.SpeedKmh == nil {
			return 0, false
		}
		if *rec.SpeedKmh > limit {
			return 1, true
		}
		return 0, true
	}

	subjects := recordsBySubject(in)
	var out []models.Insight
	for _, k := range in.Sets {
		series := periodSeries(subjects[k.Scope], asOf, in.Thresholds.TrendPeriod, in.Thresholds.TrendPeriods, overspeed)
		if len(series) < minTrendPoints(in.Thresholds.TrendPeriods) {
			continue
		}
		slope := analytics.Slope(series)
		if !analytics.NonDecreasing(series) || slope < in.Thresholds.MinTrendSlope {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityWarning,
			confidence: round3(float64(len(series)) / float64(in.Thresholds.TrendPeriods)),
			title:      "Rising overspeed trend",
			template:   "{subject} overspeed rate rose from {first} to {last} over the last {periods} periods.",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"first":   pct(series[0]),
				"last":    pct(series[len(series)-1]),
				"periods": count(float64(len(series))),
			},
			recommendation: "Intervene before the trend turns into a compliance incident.",
		}))
	}
	return out, nil
}

// batteryTrendRule ищет монотонное падение уровня батареи
type batteryTrendRule struct{ meta }

func (r batteryTrendRule) Evaluate(in Input) ([]models.Insight, error) {
	asOf := resolveAsOf(in)
	if asOf.IsZero() {
		return nil, nil
	}
	level := func(rec *models.TelemetryRecord) (float64, bool) {
		if rec.Battery == nil {
			return 0, false
		}
		return *rec.Battery, true
	}

	subjects := recordsBySubject(in)
	var out []models.Insight
	for _, k := range vehicleSets(in.Sets) {
		series := periodSeries(subjects[k.Scope], asOf, in.Thresholds.TrendPeriod, in.Thresholds.TrendPeriods, level)
		if len(series) < minTrendPoints(in.Thresholds.TrendPeriods) {
			continue
		}
		slope := analytics.Slope(series)
		if !analytics.NonIncreasing(series) || slope > in.Thresholds.BatteryTrendSlope {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityWarning,
			confidence: round3(float64(len(series)) / float64(in.Thresholds.TrendPeriods)),
			title:      "Declining battery level",
			template:   "{subject} battery level fell from {first} to {last}, {slope} points per period.",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"first":   num(series[0]),
				"last":    num(series[len(series)-1]),
				"slope":   num(slope),
			},
			recommendation: "Plan a battery replacement before it fails in service.",
		}))
	}
	return out, nil
}

// maintenanceDueRule предлагает плановое ТО при большом пробеге за период
type maintenanceDueRule struct{ meta }

func (r maintenanceDueRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range vehicleSets(in.Sets) {
		if !k.TotalDistanceKm.Defined || k.TotalDistanceKm.Value < in.Thresholds.MaintenanceDistanceKm {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityInfo,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Preventive maintenance",
			template:   "{subject} covered {distance} km in the analysed period.",
			params: map[string]string{
				"subject":  subjectName(k.Scope),
				"distance": count(k.TotalDistanceKm.Value),
			},
			recommendation: "Schedule a preventive service to keep performance and safety.",
		}))
	}
	return out, nil
}

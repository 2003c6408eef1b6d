package insights

import (
	"math"

	"fleet-insights-service/internal/analytics"
	"fleet-insights-service/internal/models"
)

type highAverageSpeedRule struct{ meta }

func (r highAverageSpeedRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.AverageSpeedKmh.Defined || k.AverageSpeedKmh.Value <= in.Thresholds.HighAverageSpeedKmh {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityWarning,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "High average speed",
			template:   "{subject} averages {speed} km/h, above the recommended {threshold} km/h.",
			params: map[string]string{
				"subject":   subjectName(k.Scope),
				"speed":     num(k.AverageSpeedKmh.Value),
				"threshold": num(in.Thresholds.HighAverageSpeedKmh),
			},
			recommendation: "Review driving policies and reinforce speed guidance with drivers.",
		}))
	}
	return out, nil
}

type lowAverageSpeedRule struct{ meta }

func (r lowAverageSpeedRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.AverageSpeedKmh.Defined || k.AverageSpeedKmh.Value >= in.Thresholds.LowAverageSpeedKmh {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityInfo,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Low average speed",
			template:   "{subject} averages {speed} km/h, below {threshold} km/h, which suggests heavy urban traffic.",
			params: map[string]string{
				"subject":   subjectName(k.Scope),
				"speed":     num(k.AverageSpeedKmh.Value),
				"threshold": num(in.Thresholds.LowAverageSpeedKmh),
			},
			recommendation: "Consider rescheduling routes to off-peak hours.",
		}))
	}
	return out, nil
}

// lowActivityRule отмечает ТС с пробегом ниже заданного перцентиля парка
type lowActivityRule struct{ meta }

func (r lowActivityRule) Evaluate(in Input) ([]models.Insight, error) {
	var population []models.KPISet
	var distances []float64
	for _, k := range vehicleSets(in.Sets) {
		if k.TotalDistanceKm.Defined {
			population = append(population, k)
			distances = append(distances, k.TotalDistanceKm.Value)
		}
	}
	if len(population) < in.Thresholds.MinPopulation {
		return nil, nil
	}

	cut := analytics.Percentile(distances, in.Thresholds.LowActivityPercentile)
	var out []models.Insight
	for _, k := range population {
		if k.TotalDistanceKm.Value >= cut {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityInfo,
			confidence: sampleConfidence(len(population), in.Thresholds.MinPopulation*4),
			title:      "Low activity",
			template:   "{subject} covered {distance} km, below the fleet {percentile} percentile of {cut} km.",
			params: map[string]string{
				"subject":    subjectName(k.Scope),
				"distance":   num(k.TotalDistanceKm.Value),
				"percentile": pct(in.Thresholds.LowActivityPercentile),
				"cut":        num(cut),
			},
			recommendation: "Check whether this vehicle is underused and could be reassigned.",
		}))
	}
	return out, nil
}

// speedDegradationRule сравнивает среднюю скорость последнего окна с предшествующей базой
type speedDegradationRule struct{ meta }

func (r speedDegradationRule) Evaluate(in Input) ([]models.Insight, error) {
	asOf := resolveAsOf(in)
	if asOf.IsZero() {
		return nil, nil
	}
	recentFrom := asOf.Add(-in.Thresholds.RecentWindow)
	baseFrom := recentFrom.Add(-in.Thresholds.BaselineWindow)
	speedOf := func(rec *models.TelemetryRecord) (float64, bool) {
		if rec.SpeedKmh == nil {
			return 0, false
		}
		return *rec.SpeedKmh, true
	}

	subjects := recordsBySubject(in)
	var out []models.Insight
	for _, k := range in.Sets {
		recs := subjects[k.Scope]
		recent, nRecent := windowMean(recs, recentFrom, asOf, speedOf)
		baseline, nBase := windowMean(recs, baseFrom, recentFrom, speedOf)
		if nRecent == 0 || nBase == 0 || baseline <= 0 {
			continue
		}
		change := (recent - baseline) / baseline * 100
		if math.Abs(change) < in.Thresholds.SpeedDegradationPct {
			continue
		}

		f := finding{
			subject:    k.Scope,
			confidence: sampleConfidence(min(nRecent, nBase), in.Thresholds.ConfidenceSampleSize),
			params: map[string]string{
				"subject":  subjectName(k.Scope),
				"change":   num(math.Abs(change)) + "%",
				"recent":   num(recent),
				"baseline": num(baseline),
			},
		}
		if change < 0 {
			f.severity = models.SeverityWarning
			f.title = "Average speed degradation"
			f.template = "{subject} average speed dropped {change} ({baseline} -> {recent} km/h) against the trailing baseline."
			f.recommendation = "Investigate route congestion or vehicle condition behind the slowdown."
		} else {
			f.severity = models.SeverityInfo
			f.title = "Average speed increase"
			f.template = "{subject} average speed rose {change} ({baseline} -> {recent} km/h) against the trailing baseline."
			f.recommendation = "Monitor the trend for seasonal or operational patterns."
		}
		out = append(out, r.emit(f))
	}
	return out, nil
}

// lowProductivityRule отмечает малый пробег на час движения
type lowProductivityRule struct{ meta }

func (r lowProductivityRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.TotalDistanceKm.Defined || !k.MovingHours.Defined || k.MovingHours.Value <= 0 {
			continue
		}
		kmh := k.TotalDistanceKm.Value / k.MovingHours.Value
		if kmh >= in.Thresholds.MinKmPerMovingHour {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityInfo,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Low productivity",
			template:   "{subject} covers {kmh} km per moving hour, below {threshold} km.",
			params: map[string]string{
				"subject":   subjectName(k.Scope),
				"kmh":       num(kmh),
				"threshold": num(in.Thresholds.MinKmPerMovingHour),
			},
			recommendation: "Analyse routes and reduce unproductive trips.",
		}))
	}
	return out, nil
}

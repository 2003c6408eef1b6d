package insights

import "fleet-insights-service/internal/models"

type overspeedRule struct{ meta }

func (r overspeedRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.OverspeedRate.Defined || !k.OverspeedCount.Defined || k.OverspeedCount.Value == 0 {
			continue
		}
		sev, _ := gradeAbove(k.OverspeedRate.Value,
			in.Thresholds.OverspeedRateWarning, in.Thresholds.OverspeedRateCritical)
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   sev,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Speed limit violations",
			template:   "{subject} exceeded {limit} km/h in {count} readings ({rate} of readings).",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"limit":   num(in.Thresholds.SpeedLimitKmh),
				"count":   count(k.OverspeedCount.Value),
				"rate":    pct(k.OverspeedRate.Value),
			},
			recommendation: "Schedule driver training and tighten speed monitoring.",
		}))
	}
	return out, nil
}

type operatingHoursRule struct{ meta }

func (r operatingHoursRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.ComplianceRate.Defined {
			continue
		}
		sev, fired := gradeBelow(k.ComplianceRate.Value,
			in.Thresholds.ComplianceWarning, in.Thresholds.ComplianceCritical)
		if !fired {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   sev,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Operating policy compliance",
			template:   "Only {rate} of {subject} moving time was within operating hours {start}h-{end}h and the speed limit.",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"rate":    pct(k.ComplianceRate.Value),
				"start":   count(float64(in.Thresholds.OperatingHoursStart)),
				"end":     count(float64(in.Thresholds.OperatingHoursEnd)),
			},
			recommendation: "Review trips outside authorised hours and apply corrective actions.",
		}))
	}
	return out, nil
}

type harshEventsRule struct{ meta }

func (r harshEventsRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.HarshEventRate.Defined || k.HarshEventRate.Value < in.Thresholds.HarshEventRateWarning {
			continue
		}
		if k.HarshEventRate.Value == 0 {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityWarning,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Harsh driving events",
			template:   "{rate} of {subject} readings are harsh braking or acceleration events.",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"rate":    pct(k.HarshEventRate.Value),
			},
			recommendation: "Coach drivers on smooth braking and acceleration.",
		}))
	}
	return out, nil
}

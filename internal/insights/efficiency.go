package insights

import "fleet-insights-service/internal/models"

type idleTimeRule struct{ meta }

func (r idleTimeRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.IdleTimeRatio.Defined {
			continue
		}
		sev, fired := gradeAbove(k.IdleTimeRatio.Value,
			in.Thresholds.IdleRatioWarning, in.Thresholds.IdleRatioCritical)
		if !fired {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   sev,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "High idle time",
			template:   "{subject} spent {rate} of observed time idling with the ignition on.",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"rate":    pct(k.IdleTimeRatio.Value),
			},
			recommendation: "Reduce engine idling to save fuel and wear.",
		}))
	}
	return out, nil
}

type gpsCoverageRule struct{ meta }

func (r gpsCoverageRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.GPSCoverage.Defined {
			continue
		}
		sev, fired := gradeBelow(k.GPSCoverage.Value,
			in.Thresholds.GPSCoverageWarning, in.Thresholds.GPSCoverageCritical)
		if !fired {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   sev,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "GPS coverage problems",
			template:   "{subject} has GPS coverage of {coverage}, below the expected {threshold}.",
			params: map[string]string{
				"subject":   subjectName(k.Scope),
				"coverage":  pct(k.GPSCoverage.Value),
				"threshold": pct(in.Thresholds.GPSCoverageWarning),
			},
			recommendation: "Check GPS equipment and signal coverage along the routes.",
		}))
	}
	return out, nil
}

type batteryHealthRule struct{ meta }

func (r batteryHealthRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.BatteryHealth.Defined {
			continue
		}
		sev, fired := gradeBelow(k.BatteryHealth.Value,
			in.Thresholds.BatteryWarning, in.Thresholds.BatteryCritical)
		if !fired {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   sev,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Battery health degradation",
			template:   "{subject} reports an average battery level of {level}, below {threshold}.",
			params: map[string]string{
				"subject":   subjectName(k.Scope),
				"level":     num(k.BatteryHealth.Value),
				"threshold": num(in.Thresholds.BatteryWarning),
			},
			recommendation: "Inspect the battery and charging system.",
		}))
	}
	return out, nil
}

type systemStatusRule struct{ meta }

func (r systemStatusRule) Evaluate(in Input) ([]models.Insight, error) {
	var out []models.Insight
	for _, k := range in.Sets {
		if !k.StatusErrorRate.Defined || k.StatusErrorRate.Value == 0 ||
			k.StatusErrorRate.Value < in.Thresholds.StatusErrorRateWarning {
			continue
		}
		out = append(out, r.emit(finding{
			subject:    k.Scope,
			severity:   models.SeverityWarning,
			confidence: sampleConfidence(k.RecordCount, in.Thresholds.ConfidenceSampleSize),
			title:      "Tracker offline or in error",
			template:   "{rate} of {subject} readings were sent with the tracker offline or in error.",
			params: map[string]string{
				"subject": subjectName(k.Scope),
				"rate":    pct(k.StatusErrorRate.Value),
			},
			recommendation: "Verify tracker connectivity and firmware.",
		}))
	}
	return out, nil
}

package kpi

import (
	"time"

	"fleet-insights-service/internal/models"
)

// aggregate суммирует показатели ТС в порядке их идентификаторов
type aggregate struct {
	vehicles int
	records  int

	distance    float64
	hasDistance bool

	speedSum  float64
	speedN    int
	maxSpeed  float64
	overspeed int
	harsh     int
	statusErr int

	moving          time.Duration
	idle            time.Duration
	off             time.Duration
	unknown         time.Duration
	compliantMoving time.Duration

	fixes     int
	expected  int
	coverageN int
	intervals []time.Duration

	batterySum float64
	batteryN   int

	first, last time.Time
	quality     models.DataQuality
}

func (a *aggregate) add(st vehicleStats) {
	if a.vehicles == 0 || st.first.Before(a.first) {
		a.first = st.first
	}
	if a.vehicles == 0 || st.last.After(a.last) {
		a.last = st.last
	}
	a.vehicles++
	a.records += st.records

	a.distance += st.distance
	a.hasDistance = a.hasDistance || st.hasDistance

	if st.speedN > 0 && (a.speedN == 0 || st.maxSpeed > a.maxSpeed) {
		a.maxSpeed = st.maxSpeed
	}
	a.speedSum += st.speedSum
	a.speedN += st.speedN
	a.overspeed += st.overspeed
	a.harsh += st.harsh
	a.statusErr += st.statusErr

	a.moving += st.moving
	a.idle += st.idle
	a.off += st.off
	a.unknown += st.unknown
	a.compliantMoving += st.compliantMoving

	if st.coverageDefined {
		a.fixes += st.fixes
		a.expected += st.expected
		a.coverageN++
		a.intervals = append(a.intervals, st.interval)
	}

	a.batterySum += st.batterySum
	a.batteryN += st.batteryN

	a.quality = a.quality.Add(st.quality)
}

func (a *aggregate) kpis(scope models.Scope) models.KPISet {
	k := models.KPISet{
		Scope:        scope,
		RecordCount:  a.records,
		VehicleCount: a.vehicles,
		Quality:      a.quality,
	}
	if a.records == 0 {
		return k
	}

	// UTC, чтобы результат совпадал с копией из кэша
	first, last := a.first.UTC(), a.last.UTC()
	k.PeriodStart = &first
	k.PeriodEnd = &last

	if a.hasDistance {
		k.TotalDistanceKm = models.Defined(a.distance)
	}

	k.AverageSpeedKmh = models.Ratio(a.speedSum, float64(a.speedN))
	if a.speedN > 0 {
		k.MaxSpeedKmh = models.Defined(a.maxSpeed)
		k.OverspeedCount = models.Defined(float64(a.overspeed))
	}
	k.OverspeedRate = models.Ratio(float64(a.overspeed), float64(a.speedN))
	k.HarshEventRate = models.Ratio(float64(a.harsh), float64(a.records))
	k.StatusErrorRate = models.Ratio(float64(a.statusErr), float64(a.records))

	observed := a.moving + a.idle + a.off + a.unknown
	if observed > 0 {
		k.MovingHours = models.Defined(a.moving.Hours())
		k.IdleHours = models.Defined(a.idle.Hours())
		k.OffHours = models.Defined(a.off.Hours())
	}
	k.MovingTimeRatio = models.Ratio(a.moving.Hours(), observed.Hours())
	k.IdleTimeRatio = models.Ratio(a.idle.Hours(), observed.Hours())
	k.ComplianceRate = models.Ratio(a.compliantMoving.Hours(), a.moving.Hours())

	if a.coverageN > 0 {
		k.GPSCoverage = models.Ratio(float64(a.fixes), float64(a.expected))
		k.NominalInterval = models.Defined(median(a.intervals).Seconds())
	}

	k.BatteryHealth = models.Ratio(a.batterySum, float64(a.batteryN))

	return k
}

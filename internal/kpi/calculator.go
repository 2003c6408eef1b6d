// Package kpi вычисляет агрегированные показатели парка и отдельных ТС
// Расчет является чистой функцией от отфильтрованного представления
package kpi

import (
	"context"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/models"
)

// Calculator вычисляет KPISet для области
type Calculator struct {
	cfg     config.Thresholds
	workers int
}

// Option настраивает калькулятор
type Option func(*Calculator)

// WithWorkers ограничивает число горутин при расчете по ТС
func WithWorkers(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewCalculator создает калькулятор KPI
func NewCalculator(cfg config.Thresholds, opts ...Option) *Calculator {
	c := &Calculator{cfg: cfg, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thresholds возвращает пороги калькулятора
func (c *Calculator) Thresholds() config.Thresholds {
	return c.cfg
}

// Compute вычисляет KPI для области: весь парк или одно ТС
// ТС без записей в области дает набор из неопределенных метрик
func (c *Calculator) Compute(view []models.TelemetryRecord, scope models.Scope) models.KPISet {
	groups, ids := groupByVehicle(view, scope)
	if len(ids) == 0 {
		return models.KPISet{Scope: scope}
	}

	var agg aggregate
	for _, id := range ids {
		agg.add(c.vehicle(groups[id]))
	}
	return agg.kpis(scope)
}

// ComputeByVehicle вычисляет KPI для каждого ТС представления
// Расчет распараллелен, результат совпадает с последовательным
func (c *Calculator) ComputeByVehicle(ctx context.Context, view []models.TelemetryRecord) (map[string]models.KPISet, error) {
	groups, ids := groupByVehicle(view, models.FleetScope())
	results := make([]models.KPISet, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var agg aggregate
			agg.add(c.vehicle(groups[id]))
			results[i] = agg.kpis(models.VehicleScope(id))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]models.KPISet, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}

// ComputeAll возвращает KPI парка и затем KPI каждого ТС в порядке идентификаторов
func (c *Calculator) ComputeAll(ctx context.Context, view []models.TelemetryRecord) ([]models.KPISet, error) {
	byVehicle, err := c.ComputeByVehicle(ctx, view)
	if err != nil {
		return nil, err
	}
	sets := make([]models.KPISet, 0, len(byVehicle)+1)
	sets = append(sets, c.Compute(view, models.FleetScope()))
	for _, id := range SortedIDs(byVehicle) {
		sets = append(sets, byVehicle[id])
	}
	return sets, nil
}

// SortedIDs возвращает идентификаторы ТС в лексикографическом порядке
func SortedIDs(sets map[string]models.KPISet) []string {
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// groupByVehicle группирует записи по ТС с сохранением исходного порядка
func groupByVehicle(view []models.TelemetryRecord, scope models.Scope) (map[string][]*models.TelemetryRecord, []string) {
	groups := make(map[string][]*models.TelemetryRecord)
	var ids []string
	for i := range view {
		r := &view[i]
		if !scope.IsFleet() && r.VehicleID != scope.VehicleID {
			continue
		}
		if _, ok := groups[r.VehicleID]; !ok {
			ids = append(ids, r.VehicleID)
		}
		groups[r.VehicleID] = append(groups[r.VehicleID], r)
	}
	sort.Strings(ids)
	return groups, ids
}

// vehicleStats промежуточные суммы по одному ТС
type vehicleStats struct {
	records int

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

	fixes           int
	expected        int
	coverageDefined bool
	interval        time.Duration

	batterySum float64
	batteryN   int

	first, last time.Time
	quality     models.DataQuality
}

func (c *Calculator) vehicle(recs []*models.TelemetryRecord) vehicleStats {
	st := vehicleStats{records: len(recs)}

	for i := 1; i < len(recs); i++ {
		if recs[i].GPSTime.Before(recs[i-1].GPSTime) {
			st.quality.OutOfOrderTimestamps++
		}
	}

	sorted := append([]*models.TelemetryRecord(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GPSTime.Before(sorted[j].GPSTime)
	})
	st.first = sorted[0].GPSTime
	st.last = sorted[len(sorted)-1].GPSTime

	for _, r := range sorted {
		if r.SpeedKmh != nil {
			v := *r.SpeedKmh
			st.speedSum += v
			if st.speedN == 0 || v > st.maxSpeed {
				st.maxSpeed = v
			}
			st.speedN++
			if v > c.cfg.SpeedLimitKmh {
				st.overspeed++
			}
		} else {
			st.quality.MissingSpeed++
		}
		if r.EventType.IsHarsh() {
			st.harsh++
		}
		if r.Status == models.StatusOffline || r.Status == models.StatusError {
			st.statusErr++
		}
		if r.HasFix() {
			st.fixes++
		} else {
			st.quality.MissingFix++
		}
		if r.Battery != nil {
			st.batterySum += *r.Battery
			st.batteryN++
		}
	}

	var deltas []time.Duration
	for i := 0; i+1 < len(sorted); i++ {
		cur, next := sorted[i], sorted[i+1]

		// Откат одометра исключается из суммы и фиксируется как событие качества
		d := next.OdometerKm - cur.OdometerKm
		st.hasDistance = true
		if d > 0 {
			st.distance += d
		} else if d < 0 {
			st.quality.OdometerRollbacks++
		}

		dt := next.GPSTime.Sub(cur.GPSTime)
		if dt <= 0 {
			continue
		}
		deltas = append(deltas, dt)
		if dt > c.cfg.MaxSampleGap {
			st.quality.SampleGaps++
			continue
		}
		c.attribute(&st, cur, dt)
	}

	if len(sorted) >= 2 && len(deltas) > 0 {
		st.interval = median(deltas)
		if st.interval > 0 {
			expected := int(st.last.Sub(st.first)/st.interval) + 1
			if expected < st.records {
				expected = st.records
			}
			st.expected = expected
			st.coverageDefined = true
		}
	}

	return st
}

// attribute относит интервал к состоянию его начальной записи
func (c *Calculator) attribute(st *vehicleStats, r *models.TelemetryRecord, dt time.Duration) {
	switch {
	case !r.IgnitionOn:
		st.off += dt
	case r.SpeedKmh == nil:
		st.unknown += dt
	case *r.SpeedKmh > c.cfg.MovingSpeedKmh:
		st.moving += dt
		if *r.SpeedKmh <= c.cfg.SpeedLimitKmh && c.cfg.WithinOperatingHours(r.GPSTime) {
			st.compliantMoving += dt
		}
	default:
		st.idle += dt
	}
}

func median(values []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

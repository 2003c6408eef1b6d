// Package engine связывает фильтрацию, расчет KPI, правила инсайтов и сравнение
// с кэшем результатов поверх текущего снимка телеметрии
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fleet-insights-service/internal/analytics"
	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/filter"
	"fleet-insights-service/internal/insights"
	"fleet-insights-service/internal/kpi"
	"fleet-insights-service/internal/metrics"
	"fleet-insights-service/internal/models"
	"fleet-insights-service/internal/store"
)

// Analysis полный результат анализа для одного фильтра
type Analysis struct {
	SnapshotID string                 `json:"snapshot_id"`
	Filter     models.Filter          `json:"filter"`
	Records    int                    `json:"records"`
	AsOf       time.Time              `json:"as_of"`
	Fleet      models.KPISet          `json:"fleet"`
	Vehicles   []models.KPISet        `json:"vehicles"`
	Insights   []models.Insight       `json:"insights"`
	Failures   []insights.RuleFailure `json:"failures,omitempty"`
	Summary    insights.Summary       `json:"summary"`
}

// Option настраивает движок
type Option func(*options)

type options struct {
	clock   cache.Clock
	logger  *slog.Logger
	workers int
	rules   []insights.Rule
}

// WithClock задает часы кэша результатов
func WithClock(clock cache.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkers ограничивает параллелизм расчета KPI по ТС
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRules заменяет стандартный набор правил
func WithRules(rules ...insights.Rule) Option {
	return func(o *options) { o.rules = rules }
}

// Engine точка входа аналитики
// Все операции синхронны и работают с неизменяемым снимком
type Engine struct {
	cfg        config.Thresholds
	holder     *store.Holder
	calc       *kpi.Calculator
	rules      *insights.Engine
	comparator *analytics.Comparator
	views      *cache.Cache[[]int]
	kpis       *cache.Cache[models.KPISet]
	sets       *cache.Cache[[]models.KPISet]
	logger     *slog.Logger
}

// New создает движок; cacheStore хранит результаты фильтрации и KPI в течение ttl
func New(cfg config.Thresholds, holder *store.Holder, cacheStore cache.Store, ttl time.Duration, opts ...Option) *Engine {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []cache.Option{cache.WithClock(o.clock), cache.WithLogger(o.logger)}
	ruleOpts := []insights.EngineOption{insights.WithLogger(o.logger)}
	if o.rules != nil {
		ruleOpts = append(ruleOpts, insights.WithRules(o.rules...))
	}

	return &Engine{
		cfg:        cfg,
		holder:     holder,
		calc:       kpi.NewCalculator(cfg, kpi.WithWorkers(o.workers)),
		rules:      insights.NewEngine(cfg, ruleOpts...),
		comparator: analytics.NewComparator(cfg),
		views:      cache.New[[]int]("views", cacheStore, ttl, cacheOpts...),
		kpis:       cache.New[models.KPISet]("kpis", cacheStore, ttl, cacheOpts...),
		sets:       cache.New[[]models.KPISet]("kpi_sets", cacheStore, ttl, cacheOpts...),
		logger:     o.logger,
	}
}

// Thresholds возвращает пороги движка
func (e *Engine) Thresholds() config.Thresholds {
	return e.cfg
}

// Snapshot возвращает активный снимок
func (e *Engine) Snapshot() (*models.Snapshot, error) {
	return e.holder.Current()
}

// Reload перечитывает снимок; записи кэша старого снимка перестают использоваться
func (e *Engine) Reload(ctx context.Context) (*models.Snapshot, error) {
	snap, err := e.holder.Reload(ctx)
	if err != nil {
		metrics.SnapshotReloads.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SnapshotReloads.WithLabelValues("ok").Inc()
	metrics.SnapshotRecords.Set(float64(snap.Len()))
	return snap, nil
}

// ApplyFilter возвращает представление активного снимка
// Индексы подходящих записей кэшируются по снимку и каноническому фильтру
func (e *Engine) ApplyFilter(ctx context.Context, f models.Filter) (models.View, error) {
	if err := filter.Validate(f); err != nil {
		return models.View{}, err
	}
	snap, err := e.holder.Current()
	if err != nil {
		return models.View{}, err
	}

	timer := prometheus.NewTimer(metrics.AnalysisLatency.WithLabelValues("filter"))
	defer timer.ObserveDuration()

	key := cache.Key("view", snap.ID, f.Key())
	idx, _, err := e.views.GetOrCompute(ctx, key, func(context.Context) ([]int, error) {
		return filter.Indices(snap.Records, f)
	})
	if err != nil {
		return models.View{}, err
	}
	return models.View{
		SnapshotID: snap.ID,
		Filter:     f,
		Records:    filter.Select(snap.Records, idx),
	}, nil
}

// ComputeKPIs вычисляет KPI области для фильтра
func (e *Engine) ComputeKPIs(ctx context.Context, f models.Filter, scope models.Scope) (models.KPISet, error) {
	view, err := e.ApplyFilter(ctx, f)
	if err != nil {
		return models.KPISet{}, err
	}

	key := cache.Key("kpi", view.SnapshotID, f.Key(), scope.String())
	k, _, err := e.kpis.GetOrCompute(ctx, key, func(context.Context) (models.KPISet, error) {
		timer := prometheus.NewTimer(metrics.AnalysisLatency.WithLabelValues("kpis"))
		defer timer.ObserveDuration()
		return e.calc.Compute(view.Records, scope), nil
	})
	return k, err
}

// ComputeAll вычисляет KPI парка и всех ТС представления
func (e *Engine) ComputeAll(ctx context.Context, f models.Filter) (models.View, []models.KPISet, error) {
	view, err := e.ApplyFilter(ctx, f)
	if err != nil {
		return models.View{}, nil, err
	}

	key := cache.Key("kpi_sets", view.SnapshotID, f.Key())
	sets, _, err := e.sets.GetOrCompute(ctx, key, func(ctx context.Context) ([]models.KPISet, error) {
		timer := prometheus.NewTimer(metrics.AnalysisLatency.WithLabelValues("kpis"))
		defer timer.ObserveDuration()
		return e.calc.ComputeAll(ctx, view.Records)
	})
	if err != nil {
		return models.View{}, nil, err
	}
	return view, sets, nil
}

// GenerateInsights запускает правила для фильтра
// Нулевой asOf означает момент последней записи представления
func (e *Engine) GenerateInsights(ctx context.Context, f models.Filter, asOf time.Time) (insights.Report, error) {
	view, sets, err := e.ComputeAll(ctx, f)
	if err != nil {
		return insights.Report{}, err
	}
	return e.generate(view, sets, asOf), nil
}

func (e *Engine) generate(view models.View, sets []models.KPISet, asOf time.Time) insights.Report {
	timer := prometheus.NewTimer(metrics.AnalysisLatency.WithLabelValues("insights"))
	defer timer.ObserveDuration()

	report := e.rules.Generate(sets, view.Records, asOf)
	metrics.RecordInsights(report.Insights)
	for _, fail := range report.Failures {
		metrics.RuleFailures.WithLabelValues(fail.RuleID).Inc()
	}
	return report
}

// Compare ранжирует ТС представления по метрике
func (e *Engine) Compare(ctx context.Context, f models.Filter, metric string) (models.ComparisonResult, error) {
	_, sets, err := e.ComputeAll(ctx, f)
	if err != nil {
		return models.ComparisonResult{}, err
	}

	timer := prometheus.NewTimer(metrics.AnalysisLatency.WithLabelValues("compare"))
	defer timer.ObserveDuration()

	byVehicle := make(map[string]models.KPISet, len(sets))
	for _, k := range sets {
		if !k.Scope.IsFleet() {
			byVehicle[k.Scope.VehicleID] = k
		}
	}
	res, err := e.comparator.Compare(byVehicle, metric)
	if err != nil {
		return models.ComparisonResult{}, err
	}
	metrics.RecordComparison(res)
	return res, nil
}

// Analyze выполняет полный конвейер для фильтра
func (e *Engine) Analyze(ctx context.Context, f models.Filter, asOf time.Time) (Analysis, error) {
	view, sets, err := e.ComputeAll(ctx, f)
	if err != nil {
		return Analysis{}, err
	}
	report := e.generate(view, sets, asOf)
	if asOf.IsZero() {
		asOf = latest(view.Records)
	}

	out := Analysis{
		SnapshotID: view.SnapshotID,
		Filter:     f,
		Records:    view.Len(),
		AsOf:       asOf,
		Vehicles:   []models.KPISet{},
		Insights:   report.Insights,
		Failures:   report.Failures,
		Summary:    insights.Summarize(report.Insights),
	}
	for _, k := range sets {
		if k.Scope.IsFleet() {
			out.Fleet = k
		} else {
			out.Vehicles = append(out.Vehicles, k)
		}
	}
	if report.Partial() {
		e.logger.Warn("analysis completed with rule failures",
			"snapshot", view.SnapshotID, "failures", len(report.Failures))
	}
	return out, nil
}

func latest(records []models.TelemetryRecord) time.Time {
	var t time.Time
	for i := range records {
		if records[i].GPSTime.After(t) {
			t = records[i].GPSTime
		}
	}
	return t
}

// Package insights генерирует текстовые выводы по KPI набором независимых правил
package insights

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/models"
)

// Input входные данные одного запуска правил
// View используется только для чтения
type Input struct {
	Sets       []models.KPISet
	View       []models.TelemetryRecord
	AsOf       time.Time
	Thresholds config.Thresholds
}

// Rule независимый вычислитель инсайтов
// Правило не должно зависеть от других правил и от текущего времени
type Rule interface {
	ID() string
	Category() models.Category
	Evaluate(in Input) ([]models.Insight, error)
}

// RuleFailure сведения об упавшем правиле
type RuleFailure struct {
	RuleID   string          `json:"rule_id"`
	Category models.Category `json:"category"`
	Error    string          `json:"error"`
}

// Report результат запуска: упорядоченные инсайты и сбои отдельных правил
type Report struct {
	Insights []models.Insight `json:"insights"`
	Failures []RuleFailure    `json:"failures,omitempty"`
	Rules    int              `json:"rules_evaluated"`
}

// Partial сообщает, что часть правил не отработала
func (r Report) Partial() bool {
	return len(r.Failures) > 0
}

// Engine выполняет фиксированный упорядоченный набор правил
type Engine struct {
	cfg    config.Thresholds
	rules  []Rule
	logger *slog.Logger
}

// EngineOption настраивает движок правил
type EngineOption func(*Engine)

// WithRules заменяет набор правил по умолчанию
func WithRules(rules ...Rule) EngineOption {
	return func(e *Engine) {
		e.rules = append([]Rule(nil), rules...)
	}
}

// WithLogger задает логгер для сбоев правил
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine создает движок; набор правил фиксируется при создании
func NewEngine(cfg config.Thresholds, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		rules:  DefaultRules(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules возвращает копию зарегистрированных правил
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Generate запускает все правила, дедуплицирует и ранжирует инсайты
// Ошибка или паника одного правила записывается в Failures и не прерывает запуск
func (e *Engine) Generate(sets []models.KPISet, view []models.TelemetryRecord, asOf time.Time) Report {
	report := Report{Rules: len(e.rules)}
	var all []models.Insight

	for _, rule := range e.rules {
		in := Input{
			Sets:       append([]models.KPISet(nil), sets...),
			View:       append([]models.TelemetryRecord(nil), view...),
			AsOf:       asOf,
			Thresholds: e.cfg,
		}
		out, err := evaluate(rule, in)
		if err != nil {
			e.logger.Warn("insight rule failed",
				"rule", rule.ID(), "category", rule.Category(), "err", err)
			report.Failures = append(report.Failures, RuleFailure{
				RuleID:   rule.ID(),
				Category: rule.Category(),
				Error:    err.Error(),
			})
			continue
		}
		for _, ins := range out {
			all = append(all, normalize(rule, ins))
		}
	}

	report.Insights = rank(dedup(all))
	return report
}

func evaluate(rule Rule, in Input) (out []models.Insight, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("rule panicked: %v", p)
		}
	}()
	return rule.Evaluate(in)
}

// normalize привязывает инсайт к правилу, которое его выпустило
func normalize(rule Rule, ins models.Insight) models.Insight {
	ins.RuleID = rule.ID()
	ins.Category = rule.Category()
	ins.DedupKey = models.DedupKey(ins.Category, ins.Subject, ins.RuleID)
	if math.IsNaN(ins.Confidence) || ins.Confidence < 0 {
		ins.Confidence = 0
	}
	if ins.Confidence > 1 {
		ins.Confidence = 1
	}
	return ins
}

// dedup оставляет по ключу экземпляр с наибольшей важностью, затем уверенностью
func dedup(all []models.Insight) []models.Insight {
	index := make(map[string]int, len(all))
	out := make([]models.Insight, 0, len(all))
	for _, ins := range all {
		i, seen := index[ins.DedupKey]
		if !seen {
			index[ins.DedupKey] = len(out)
			out = append(out, ins)
			continue
		}
		cur := out[i]
		if ins.Severity > cur.Severity ||
			(ins.Severity == cur.Severity && ins.Confidence > cur.Confidence) {
			out[i] = ins
		}
	}
	return out
}

// rank сортирует по важности, уверенности и субъекту
func rank(list []models.Insight) []models.Insight {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Subject.VehicleID != b.Subject.VehicleID {
			return a.Subject.VehicleID < b.Subject.VehicleID
		}
		return a.DedupKey < b.DedupKey
	})
	return list
}

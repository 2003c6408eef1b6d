package models

import (
	"fmt"
	"sort"
	"strings"
)

// Category категория инсайта
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryCompliance  Category = "compliance"
	CategoryEfficiency  Category = "efficiency"
	CategoryPredictive  Category = "predictive"
)

// Severity упорядоченная важность инсайта: info < warning < critical
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText кодирует важность строкой
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText разбирает строковое представление важности
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(text))
	}
	return nil
}

// Insight сгенерированный вывод с категорией, важностью и уверенностью
type Insight struct {
	RuleID         string            `json:"rule_id"`
	Category       Category          `json:"category"`
	Severity       Severity          `json:"severity"`
	Confidence     float64           `json:"confidence"`
	Subject        Scope             `json:"subject"`
	Title          string            `json:"title"`
	Template       string            `json:"template"`
	Params         map[string]string `json:"params,omitempty"`
	Recommendation string            `json:"recommendation,omitempty"`
	DedupKey       string            `json:"dedup_key"`
}

// DedupKey строит стабильный ключ дедупликации
func DedupKey(category Category, subject Scope, ruleID string) string {
	return string(category) + "|" + subject.String() + "|" + ruleID
}

// Message подставляет параметры в шаблон: {name} -> значение
func (i Insight) Message() string {
	if len(i.Params) == 0 {
		return i.Template
	}
	names := make([]string, 0, len(i.Params))
	for name := range i.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "{"+name+"}", i.Params[name])
	}
	return strings.NewReplacer(pairs...).Replace(i.Template)
}

// ComparisonEntry позиция одного ТС в рейтинге
type ComparisonEntry struct {
	VehicleID string  `json:"vehicle_id"`
	Value     float64 `json:"value"`
	Rank      int     `json:"rank"`
	ZScore    Measure `json:"z_score"`
	Outlier   bool    `json:"outlier"`
}

// ComparisonResult рейтинг ТС по одной метрике
type ComparisonResult struct {
	Metric     string            `json:"metric"`
	Direction  string            `json:"direction"`
	Population int               `json:"population"`
	Mean       Measure           `json:"mean"`
	StdDev     Measure           `json:"std_dev"`
	Entries    []ComparisonEntry `json:"entries"`
	Excluded   []string          `json:"excluded,omitempty"`
}

// Outliers возвращает позиции, помеченные как выбросы
func (c ComparisonResult) Outliers() []ComparisonEntry {
	var out []ComparisonEntry
	for _, e := range c.Entries {
		if e.Outlier {
			out = append(out, e)
		}
	}
	return out
}

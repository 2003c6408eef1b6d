// Package filter применяет многомерные предикаты к таблице записей телеметрии
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fleet-insights-service/internal/models"
)

// ErrInvalidFilter некорректный фильтр (например, перевернутый диапазон дат)
var ErrInvalidFilter = errors.New("invalid filter")

// InvalidFilterError описывает причину отклонения фильтра
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter: %s", e.Reason)
}

// Is позволяет сравнивать с ErrInvalidFilter через errors.Is
func (e *InvalidFilterError) Is(target error) bool {
	return target == ErrInvalidFilter
}

// Validate проверяет фильтр; ошибка никогда не исправляется молча
func Validate(f models.Filter) error {
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		return &InvalidFilterError{
			Reason: fmt.Sprintf("start %s is after end %s",
				f.Start.Format(time.RFC3339), f.End.Format(time.RFC3339)),
		}
	}
	return nil
}

// DateRange строит включающий диапазон календарных дат [start, end]
// Конец расширяется до последней наносекунды дня
func DateRange(start, end time.Time) (from, to time.Time) {
	from = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	to = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location()).
		Add(24*time.Hour - time.Nanosecond)
	return from, to
}

// predicate скомпилированный фильтр
type predicate struct {
	clients  map[string]struct{}
	vehicles map[string]struct{}
	start    *time.Time
	end      *time.Time
}

func compile(f models.Filter) predicate {
	return predicate{
		clients:  toSet(f.Clients),
		vehicles: toSet(f.Vehicles),
		start:    f.Start,
		end:      f.End,
	}
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// match проверяет только обязательные поля: клиент, ТС и GPS время
func (p predicate) match(r *models.TelemetryRecord) bool {
	if p.clients != nil {
		if _, ok := p.clients[r.ClientID]; !ok {
			return false
		}
	}
	if p.vehicles != nil {
		if _, ok := p.vehicles[r.VehicleID]; !ok {
			return false
		}
	}
	if p.start != nil && r.GPSTime.Before(*p.start) {
		return false
	}
	if p.end != nil && r.GPSTime.After(*p.end) {
		return false
	}
	return true
}

// Indices возвращает индексы подходящих записей в исходном порядке
func Indices(records []models.TelemetryRecord, f models.Filter) ([]int, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	p := compile(f)
	idx := make([]int, 0, len(records))
	for i := range records {
		if p.match(&records[i]) {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// Select собирает записи по индексам; исходная таблица не изменяется
func Select(records []models.TelemetryRecord, idx []int) []models.TelemetryRecord {
	out := make([]models.TelemetryRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, records[i])
	}
	return out
}

// Apply возвращает записи, удовлетворяющие всем заданным предикатам
// Пустой результат допустим и не является ошибкой
func Apply(records []models.TelemetryRecord, f models.Filter) ([]models.TelemetryRecord, error) {
	idx, err := Indices(records, f)
	if err != nil {
		return nil, err
	}
	return Select(records, idx), nil
}

// Parse строит фильтр из текстовых параметров
// Границы принимаются как 2006-01-02 (весь календарный день) или RFC3339
func Parse(clients, vehicles []string, start, end string) (models.Filter, error) {
	f := models.Filter{
		Clients:  splitValues(clients),
		Vehicles: splitValues(vehicles),
	}
	if start != "" {
		t, dateOnly, err := parseBound(start)
		if err != nil {
			return f, &InvalidFilterError{Reason: "start: " + err.Error()}
		}
		if dateOnly {
			t, _ = DateRange(t, t)
		}
		f.Start = &t
	}
	if end != "" {
		t, dateOnly, err := parseBound(end)
		if err != nil {
			return f, &InvalidFilterError{Reason: "end: " + err.Error()}
		}
		if dateOnly {
			_, t = DateRange(t, t)
		}
		f.End = &t
	}
	return f, Validate(f)
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
	}
	return t.UTC(), false, nil
}

// splitValues поддерживает повторяющиеся значения и списки через запятую
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Measure значение метрики, которое может быть не определено
// Неопределенное значение отличается от нуля: "нет данных" против "ноль по факту"
type Measure struct {
	Value   float64
	Defined bool
}

// Undefined неопределенная метрика
var Undefined = Measure{}

// Defined создает определенную метрику
func Defined(v float64) Measure {
	return Measure{Value: v, Defined: true}
}

// Ratio делит num на den; деление на ноль дает неопределенное значение
func Ratio(num, den float64) Measure {
	if den == 0 {
		return Undefined
	}
	return Defined(num / den)
}

// Or возвращает значение или fallback, если метрика не определена
func (m Measure) Or(fallback float64) float64 {
	if !m.Defined {
		return fallback
	}
	return m.Value
}

// String форматирует метрику для логов и шаблонов сообщений
func (m Measure) String() string {
	if !m.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarshalJSON кодирует неопределенную метрику как null
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON декодирует null как неопределенную метрику
func (m *Measure) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Defined(v)
	return nil
}

// Package analytics реализует сравнительный анализ ТС
// Включает накопитель моментов, z-score для детекции выбросов и трендовые эвристики
package analytics

import (
	"math"
	"sort"
)

// SlidingWindow реализует скользящее окно для хранения значений
// Размер окна равен размеру популяции при сравнении ТС и числу периодов в трендах
type SlidingWindow struct {
	values []float64
	size   int
	index  int
	count  int
	sum    float64
	sumSq  float64
}

// NewSlidingWindow создает новое скользящее окно заданного размера
func NewSlidingWindow(size int) *SlidingWindow {
	if size < 1 {
		size = 1
	}
	return &SlidingWindow{
		values: make([]float64, size),
		size:   size,
	}
}

// Add добавляет новое значение в окно
func (sw *SlidingWindow) Add(value float64) {
	if sw.count >= sw.size {
		// Удаляем старое значение из статистики
		oldValue := sw.values[sw.index]
		sw.sum -= oldValue
		sw.sumSq -= oldValue * oldValue
	} else {
		sw.count++
	}

	sw.values[sw.index] = value
	sw.sum += value
	sw.sumSq += value * value

	sw.index = (sw.index + 1) % sw.size
}

// Mean возвращает среднее значение
func (sw *SlidingWindow) Mean() float64 {
	if sw.count == 0 {
		return 0
	}
	return sw.sum / float64(sw.count)
}

// StdDev возвращает выборочное стандартное отклонение
func (sw *SlidingWindow) StdDev() float64 {
	return stdDev(sw.count, sw.sum, sw.sumSq)
}

// ZScore вычисляет z-score для заданного значения
func (sw *SlidingWindow) ZScore(value float64) float64 {
	sd := sw.StdDev()
	if sd == 0 {
		return 0
	}
	return (value - sw.Mean()) / sd
}

// Without возвращает среднее и стандартное отклонение окна без одного значения
// Используется для z-score "с исключением": значение сравнивается с остальной популяцией
func (sw *SlidingWindow) Without(value float64) (mean, sd float64, n int) {
	n = sw.count - 1
	if n <= 0 {
		return 0, 0, 0
	}
	sum := sw.sum - value
	sumSq := sw.sumSq - value*value
	return sum / float64(n), stdDev(n, sum, sumSq), n
}

// Count возвращает количество элементов в окне
func (sw *SlidingWindow) Count() int {
	return sw.count
}

// Values возвращает значения окна от самого старого к самому новому
func (sw *SlidingWindow) Values() []float64 {
	out := make([]float64, 0, sw.count)
	start := 0
	if sw.count >= sw.size {
		start = sw.index
	}
	for i := 0; i < sw.count; i++ {
		out = append(out, sw.values[(start+i)%sw.size])
	}
	return out
}

// roundoff относительная погрешность дисперсии, ниже которой разброс считается нулевым
const roundoff = 1e-12

// Tolerance возвращает отклонение от среднего, неотличимое от погрешности округления
// Шкала совпадает с порогом, при котором StdDev обнуляется
func (sw *SlidingWindow) Tolerance() float64 {
	if sw.count == 0 {
		return 0
	}
	return math.Sqrt(roundoff * math.Max(1, sw.sumSq/float64(sw.count)))
}

func stdDev(count int, sum, sumSq float64) float64 {
	if count < 2 {
		return 0
	}
	n := float64(count)
	variance := (sumSq - (sum*sum)/n) / (n - 1)
	// Погрешность округления при почти равных значениях
	if variance < roundoff*math.Max(1, sumSq/n) {
		return 0
	}
	return math.Sqrt(variance)
}

// Slope вычисляет наклон линейной регрессии значений по номеру периода
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / den
}

// NonDecreasing сообщает, что ряд монотонно не убывает
func NonDecreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

// NonIncreasing сообщает, что ряд монотонно не возрастает
func NonIncreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			return false
		}
	}
	return true
}

// Percentile возвращает p-й перцентиль (0..1) с линейной интерполяцией
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

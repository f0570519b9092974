// Package window реализует скользящее окно фиксированной емкости для статистики объемов.
package window

import (
	"math"
	"sort"
)

// VarianceEpsilon дисперсия ниже порога считается нулевой
const VarianceEpsilon = 1e-9

// DefaultTrimFraction доля, отбрасываемая с каждого хвоста в усеченном среднем
const DefaultTrimFraction = 0.10

// RollingWindow хранит последние N значений (FIFO).
// Все статистики считаются за O(N) по доступным значениям.
type RollingWindow struct {
	capacity int
	values   []float64
}

// New создает окно емкостью capacity (минимум 1)
func New(capacity int) *RollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Push добавляет значение, вытесняя самое старое при заполнении
func (w *RollingWindow) Push(v float64) {
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.capacity-1]
	}
	w.values = append(w.values, v)
}

// Len количество значений в окне
func (w *RollingWindow) Len() int { return len(w.values) }

// Cap емкость окна
func (w *RollingWindow) Cap() int { return w.capacity }

// Full окно заполнено
func (w *RollingWindow) Full() bool { return len(w.values) == w.capacity }

// Values копия значений от старого к новому
func (w *RollingWindow) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// Mean среднее, 0 для пустого окна
func (w *RollingWindow) Mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// Max максимум, 0 для пустого окна
func (w *RollingWindow) Max() float64 {
	if len(w.values) == 0 {
		return 0
	}
	m := math.Inf(-1)
	for _, v := range w.values {
		if v > m {
			m = v
		}
	}
	return m
}

// StdDev стандартное отклонение генеральной совокупности (деление на N)
func (w *RollingWindow) StdDev() float64 {
	n := len(w.values)
	if n == 0 {
		return 0
	}
	avg := w.Mean()
	var variance float64
	for _, v := range w.values {
		d := v - avg
		variance += d * d
	}
	variance /= float64(n)
	if variance < VarianceEpsilon {
		return 0
	}
	return math.Sqrt(variance)
}

// Median медиана; для четного числа значений среднее двух центральных
func (w *RollingWindow) Median() float64 {
	n := len(w.values)
	if n == 0 {
		return 0
	}
	sorted := w.sorted()
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// TrimmedMean отбрасывает floor(N*fraction) значений с каждого хвоста.
// Если окно не заполнено или после усечения ничего не осталось, возвращает Mean.
// При малых N усечение может ничего не удалять (N=5, 10% -> floor(0.5)=0).
func (w *RollingWindow) TrimmedMean(fraction float64) float64 {
	if !w.Full() || fraction <= 0 {
		return w.Mean()
	}
	n := len(w.values)
	trim := int(math.Floor(float64(n) * fraction))
	keep := n - 2*trim
	if keep <= 0 {
		return w.Mean()
	}
	sorted := w.sorted()
	var sum float64
	for _, v := range sorted[trim : n-trim] {
		sum += v
	}
	return sum / float64(keep)
}

func (w *RollingWindow) sorted() []float64 {
	out := w.Values()
	sort.Float64s(out)
	return out
}

// Package refvolume выбирает опорный ("типичный") объем бара по одной из пяти стратегий.
package refvolume

import (
	"fmt"
	"strings"

	"github.com/skalibog/volflow/internal/analysis/window"
)

// Kind стратегия опорного объема
type Kind int

const (
	SimpleAverage Kind = iota
	ExponentialAverage
	Highest
	TrimmedMean
	Median
)

var kindNames = map[Kind]string{
	SimpleAverage:      "sma",
	ExponentialAverage: "ema",
	Highest:            "highest",
	TrimmedMean:        "trimmed_mean",
	Median:             "median",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid стратегия из известного набора
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind разбирает имя стратегии из конфигурации
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("неизвестный тип опорного объема: %q", s)
}

// Strategy вычисляет опорный объем по окну закрытых баров.
// Observe вызывается для каждого закрытого бара (нужно EMA).
type Strategy interface {
	Observe(volume float64)
	Reference(w *window.RollingWindow) float64
}

type meanStrategy struct{}

func (meanStrategy) Observe(float64) {}

func (meanStrategy) Reference(w *window.RollingWindow) float64 { return w.Mean() }

type maxStrategy struct{}

func (maxStrategy) Observe(float64) {}

func (maxStrategy) Reference(w *window.RollingWindow) float64 { return w.Max() }

type trimmedStrategy struct{ fraction float64 }

func (trimmedStrategy) Observe(float64) {}

func (s trimmedStrategy) Reference(w *window.RollingWindow) float64 { return w.TrimmedMean(s.fraction) }

type medianStrategy struct{}

func (medianStrategy) Observe(float64) {}

func (medianStrategy) Reference(w *window.RollingWindow) float64 { return w.Median() }

// emaStrategy ведется инкрементально от бара к бару, alpha = 2/(period+1)
type emaStrategy struct {
	alpha  float64
	value  float64
	seeded bool
}

func (s *emaStrategy) Observe(v float64) {
	if !s.seeded {
		s.value = v
		s.seeded = true
		return
	}
	s.value = s.alpha*v + (1-s.alpha)*s.value
}

func (s *emaStrategy) Reference(*window.RollingWindow) float64 { return s.value }

func newStrategy(kind Kind, period int) Strategy {
	switch kind {
	case ExponentialAverage:
		return &emaStrategy{alpha: 2.0 / float64(period+1)}
	case Highest:
		return maxStrategy{}
	case TrimmedMean:
		return trimmedStrategy{fraction: window.DefaultTrimFraction}
	case Median:
		return medianStrategy{}
	default:
		return meanStrategy{}
	}
}

// Estimator держит окно последних period закрытых объемов и кэширует
// опорный объем на бар: повторные запросы внутри бара не пересчитывают его.
type Estimator struct {
	kind     Kind
	period   int
	win      *window.RollingWindow
	strategy Strategy

	cachedBar int
	cached    Estimate
	hasCache  bool
}

// Estimate опорный объем и стандартное отклонение окна для бара
type Estimate struct {
	Reference float64
	StdDev    float64
	Samples   int
}

// New создает оценщик. period >= 1
func New(kind Kind, period int) (*Estimator, error) {
	if period < 1 {
		return nil, fmt.Errorf("период объема должен быть >= 1, получено %d", period)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("неизвестный тип опорного объема: %d", int(kind))
	}
	return &Estimator{
		kind:     kind,
		period:   period,
		win:      window.New(period),
		strategy: newStrategy(kind, period),
	}, nil
}

// Kind активная стратегия
func (e *Estimator) Kind() Kind { return e.kind }

// Estimate возвращает опорный объем для бара barIndex.
// Пока окно не заполнено, все стратегии откатываются к простому среднему.
func (e *Estimator) Estimate(barIndex int) Estimate {
	if e.hasCache && e.cachedBar == barIndex {
		return e.cached
	}

	ref := e.win.Mean()
	if e.win.Full() {
		ref = e.strategy.Reference(e.win)
	}

	e.cached = Estimate{
		Reference: ref,
		StdDev:    e.win.StdDev(),
		Samples:   e.win.Len(),
	}
	e.cachedBar = barIndex
	e.hasCache = true
	return e.cached
}

// Commit добавляет объем закрытого бара и сбрасывает кэш
func (e *Estimator) Commit(volume float64) {
	e.win.Push(volume)
	e.strategy.Observe(volume)
	e.hasCache = false
}

// Package spike определяет аномальный объем бара относительно опорного.
package spike

import (
	"fmt"
	"math"
	"strings"

	"github.com/skalibog/volflow/internal/analysis/window"
)

// Mode режим детекции всплеска
type Mode int

const (
	// Disabled всегда сообщает о всплеске: объем не фильтрует сигналы
	Disabled Mode = iota
	// Multiplier объем >= опорный * k
	Multiplier
	// ZScore |объем - опорный| / stddev >= t
	ZScore
)

var modeNames = map[Mode]string{
	Disabled:   "none",
	Multiplier: "multiplier",
	ZScore:     "zscore",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid режим из известного набора
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode разбирает режим из конфигурации
func ParseMode(s string) (Mode, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
	if name == "disabled" {
		return Disabled, nil
	}
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("неизвестный режим детекции всплеска: %q", s)
}

// Verdict результат классификации
type Verdict int

const (
	// Indeterminate опорный объем не определен: сигнал подавляется полностью
	Indeterminate Verdict = iota
	NoSpike
	Spike
)

func (v Verdict) String() string {
	switch v {
	case Spike:
		return "spike"
	case NoSpike:
		return "no_spike"
	default:
		return "indeterminate"
	}
}

// Classifier классификатор всплесков
type Classifier struct {
	mode       Mode
	multiplier float64
	threshold  float64
}

// NewClassifier создает классификатор
func NewClassifier(mode Mode, multiplier, zThreshold float64) (*Classifier, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("неизвестный режим детекции всплеска: %d", int(mode))
	}
	return &Classifier{
		mode:       mode,
		multiplier: multiplier,
		threshold:  zThreshold,
	}, nil
}

// Mode активный режим
func (c *Classifier) Mode() Mode { return c.mode }

// Classify классифицирует объем бара
func (c *Classifier) Classify(volume, baseline, stddev float64) Verdict {
	if math.IsNaN(baseline) || math.IsInf(baseline, 0) || baseline <= 0 {
		return Indeterminate
	}

	switch c.mode {
	case Multiplier:
		if volume >= baseline*c.multiplier {
			return Spike
		}
		return NoSpike
	case ZScore:
		if math.Abs(ZScoreOf(volume, baseline, stddev)) >= c.threshold {
			return Spike
		}
		return NoSpike
	default:
		return Spike
	}
}

// Detected всплеск реально обнаружен (в режиме Disabled всегда false)
func (c *Classifier) Detected(v Verdict) bool {
	return v == Spike && c.mode != Disabled
}

// ZScoreOf z-оценка; при stddev <= epsilon равна 0
func ZScoreOf(volume, baseline, stddev float64) float64 {
	if stddev <= window.VarianceEpsilon || math.IsNaN(stddev) {
		return 0
	}
	return (volume - baseline) / stddev
}

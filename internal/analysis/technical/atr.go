package technical

import (
	"fmt"
	"math"
	"strings"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/markcheno/go-talib"
)

// Движки расчета ATR
const (
	EngineTalib = "talib"
	EngineCinar = "cinar"
)

// ATR рассчитывает Average True Range последнего бара серии
type ATR interface {
	Period() int
	Last(highs, lows, closes []float64) float64
}

// NewATR создает калькулятор ATR выбранного движка
func NewATR(engine string, period int) (ATR, error) {
	if period < 1 {
		return nil, fmt.Errorf("период ATR должен быть >= 1, получено %d", period)
	}
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineTalib:
		return talibATR{period: period}, nil
	case EngineCinar:
		return cinarATR{period: period}, nil
	default:
		return nil, fmt.Errorf("неизвестный движок ATR: %q", engine)
	}
}

type talibATR struct{ period int }

func (a talibATR) Period() int { return a.period }

func (a talibATR) Last(highs, lows, closes []float64) float64 {
	if len(closes) <= a.period {
		return warmupATR(highs, lows, closes)
	}
	atr := talib.Atr(highs, lows, closes, a.period)
	return atr[len(atr)-1]
}

type cinarATR struct{ period int }

func (a cinarATR) Period() int { return a.period }

func (a cinarATR) Last(highs, lows, closes []float64) float64 {
	if len(closes) <= a.period {
		return warmupATR(highs, lows, closes)
	}
	atr := volatility.NewAtrWithPeriod[float64](a.period)
	out := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
	if len(out) == 0 {
		return warmupATR(highs, lows, closes)
	}
	return out[len(out)-1]
}

// warmupATR среднее истинного диапазона по доступным барам,
// пока истории меньше периода. Первый бар: high - low.
func warmupATR(highs, lows, closes []float64) float64 {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n {
		return math.NaN()
	}
	sum := highs[0] - lows[0]
	for i := 1; i < n; i++ {
		sum += trueRange(highs[i], lows[i], closes[i-1])
	}
	return sum / float64(n)
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

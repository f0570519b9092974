package technical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/pkg/models"
)

// constantRange серия с истинным диапазоном 2 на каждом баре
func constantRange(n int) (highs, lows, closes []float64) {
	for i := range n {
		c := 100 + 0.5*math.Sin(float64(i))
		highs = append(highs, c+1)
		lows = append(lows, c-1)
		closes = append(closes, c)
	}
	return highs, lows, closes
}

func TestNewATR_Validation(t *testing.T) {
	_, err := NewATR(EngineTalib, 0)
	require.Error(t, err)

	_, err = NewATR("ta4j", 14)
	require.Error(t, err)

	atr, err := NewATR("", 14)
	require.NoError(t, err)
	assert.Equal(t, 14, atr.Period())
}

func TestATR_ConstantRange(t *testing.T) {
	highs, lows, closes := constantRange(60)

	for _, engine := range []string{EngineTalib, EngineCinar} {
		t.Run(engine, func(t *testing.T) {
			atr, err := NewATR(engine, 14)
			require.NoError(t, err)
			assert.InDelta(t, 2.0, atr.Last(highs, lows, closes), 1e-6)
		})
	}
}

func TestATR_WarmupUsesAvailableBars(t *testing.T) {
	atr, err := NewATR(EngineTalib, 14)
	require.NoError(t, err)

	// TR: 2, затем max(3, |103-100|, |100-100|) = 3
	v := atr.Last([]float64{101, 103}, []float64{99, 100}, []float64{100, 102})
	assert.Equal(t, 2.5, v)

	assert.True(t, math.IsNaN(atr.Last(nil, nil, nil)))
}

func TestAnnotator_KeepsOnlyClosedBars(t *testing.T) {
	a, err := NewAnnotator(EngineTalib, 3, 5)
	require.NoError(t, err)

	u := models.BarUpdate{Final: true}
	u.High, u.Low, u.Close = 101, 99, 100
	got := a.Annotate(u)
	assert.Equal(t, 2.0, got.ATR)
	assert.Equal(t, 2.0, got.TrailingATR)
	assert.Equal(t, 1, a.Len())

	open := models.BarUpdate{}
	open.High, open.Low, open.Close = 104, 100, 103
	got = a.Annotate(open)
	assert.Equal(t, 3.0, got.ATR, "(2 + 4) / 2")
	assert.Equal(t, 1, a.Len(), "open bar is not stored")

	open.High = 108
	got = a.Annotate(open)
	assert.Equal(t, 5.0, got.ATR, "(2 + 8) / 2")
}

func TestAnnotator_HistoryIsBounded(t *testing.T) {
	a, err := NewAnnotator(EngineTalib, 14, 20)
	require.NoError(t, err)

	highs, lows, closes := constantRange(250)
	for i := range closes {
		u := models.BarUpdate{Final: true}
		u.High, u.Low, u.Close = highs[i], lows[i], closes[i]
		got := a.Annotate(u)
		assert.False(t, math.IsNaN(got.ATR))
	}
	assert.Equal(t, minHistory, a.Len())
}

func TestAnnotator_CommitStoresImplicitlyClosedBar(t *testing.T) {
	a, err := NewAnnotator(EngineTalib, 3, 5)
	require.NoError(t, err)

	first := models.BarUpdate{Final: true}
	first.High, first.Low, first.Close = 101, 99, 100
	a.Annotate(first)

	open := models.BarUpdate{}
	open.High, open.Low, open.Close = 108, 100, 103
	a.Annotate(open)
	require.Equal(t, 1, a.Len())

	a.Commit(open)
	assert.Equal(t, 2, a.Len())

	// TR: 2, 8, max(4, |110-103|, |106-103|) = 7
	next := models.BarUpdate{}
	next.High, next.Low, next.Close = 110, 106, 108
	got := a.Annotate(next)
	assert.InDelta(t, 17.0/3, got.ATR, 1e-9)
}

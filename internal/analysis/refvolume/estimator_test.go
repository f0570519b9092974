package refvolume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitAll(e *Estimator, volumes ...float64) {
	for _, v := range volumes {
		e.Commit(v)
	}
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"sma":          SimpleAverage,
		"EMA":          ExponentialAverage,
		" highest ":    Highest,
		"trimmed_mean": TrimmedMean,
		"median":       Median,
	} {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseKind("vwap")
	require.Error(t, err)
}

func TestNew_RejectsInvalidPeriod(t *testing.T) {
	_, err := New(SimpleAverage, 0)
	require.Error(t, err)

	_, err = New(Kind(42), 10)
	require.Error(t, err)
}

func TestEstimate_SimpleAverageExcludesCurrentBar(t *testing.T) {
	e, err := New(SimpleAverage, 3)
	require.NoError(t, err)

	commitAll(e, 100, 100, 100)
	est := e.Estimate(3)

	assert.InDelta(t, 100.0, est.Reference, 1e-12)
	assert.Zero(t, est.StdDev)
	assert.Equal(t, 3, est.Samples)
}

func TestEstimate_StrategiesOnFullWindow(t *testing.T) {
	volumes := []float64{10, 20, 30, 40, 1000}
	cases := map[Kind]float64{
		SimpleAverage: 220,
		Highest:       1000,
		TrimmedMean:   220, // floor(5*0.1)=0, nothing trimmed
		Median:        30,
	}
	for kind, want := range cases {
		e, err := New(kind, 5)
		require.NoError(t, err)
		commitAll(e, volumes...)

		assert.InDelta(t, want, e.Estimate(5).Reference, 1e-9, kind.String())
	}
}

func TestEstimate_FallsBackToMeanBeforeFull(t *testing.T) {
	for kind := range kindNames {
		e, err := New(kind, 5)
		require.NoError(t, err)
		commitAll(e, 10, 30)

		assert.InDelta(t, 20.0, e.Estimate(2).Reference, 1e-12, kind.String())
	}
}

func TestEstimate_ExponentialIsIncremental(t *testing.T) {
	e, err := New(ExponentialAverage, 3) // alpha = 0.5
	require.NoError(t, err)

	commitAll(e, 100, 200, 300)
	// 100 -> 150 -> 225
	assert.InDelta(t, 225.0, e.Estimate(3).Reference, 1e-9)

	e.Commit(25)
	// window full: 225*0.5 + 25*0.5 = 125
	assert.InDelta(t, 125.0, e.Estimate(4).Reference, 1e-9)
}

func TestEstimate_CachedWithinBar(t *testing.T) {
	e, err := New(SimpleAverage, 2)
	require.NoError(t, err)
	commitAll(e, 10, 20)

	first := e.Estimate(7)
	// Кэш живет до следующего Commit: пересчета внутри бара нет
	e.win.Push(1000)
	assert.Equal(t, first, e.Estimate(7))

	e.Commit(30)
	assert.NotEqual(t, first.Reference, e.Estimate(7).Reference)
}

package spike

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Multiplier(t *testing.T) {
	c, err := NewClassifier(Multiplier, 1.5, 2.5)
	require.NoError(t, err)

	assert.Equal(t, Spike, c.Classify(151, 100, 0))
	assert.Equal(t, Spike, c.Classify(150, 100, 0))
	assert.Equal(t, NoSpike, c.Classify(149.9, 100, 0))
	assert.True(t, c.Detected(c.Classify(151, 100, 0)))
}

func TestClassify_ZScore(t *testing.T) {
	c, err := NewClassifier(ZScore, 1.5, 2.0)
	require.NoError(t, err)

	assert.Equal(t, Spike, c.Classify(130, 100, 10))
	assert.Equal(t, Spike, c.Classify(70, 100, 10), "absolute z-score")
	assert.Equal(t, NoSpike, c.Classify(119, 100, 10))
}

func TestClassify_ZScoreZeroVarianceNeverSpikes(t *testing.T) {
	c, err := NewClassifier(ZScore, 1.5, 1.0)
	require.NoError(t, err)

	assert.Equal(t, NoSpike, c.Classify(1e9, 100, 0))
	assert.Equal(t, NoSpike, c.Classify(1e9, 100, 1e-10))
	assert.Zero(t, ZScoreOf(1e9, 100, 0))
}

func TestClassify_DisabledAlwaysSpikesButIsNotDetected(t *testing.T) {
	c, err := NewClassifier(Disabled, 1.5, 2.5)
	require.NoError(t, err)

	v := c.Classify(1, 100, 0)
	assert.Equal(t, Spike, v)
	assert.False(t, c.Detected(v))
}

func TestClassify_IndeterminateBaseline(t *testing.T) {
	c, err := NewClassifier(Disabled, 1.5, 2.5)
	require.NoError(t, err)

	for _, baseline := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		assert.Equal(t, Indeterminate, c.Classify(100, baseline, 1))
	}
}

func TestParseMode(t *testing.T) {
	for name, want := range map[string]Mode{
		"none":       Disabled,
		"disabled":   Disabled,
		"Multiplier": Multiplier,
		"zscore":     ZScore,
	} {
		got, err := ParseMode(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("ratio")
	require.Error(t, err)

	_, err = NewClassifier(Mode(7), 1, 1)
	require.Error(t, err)
}

package exchange

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/pkg/models"
)

const sample = `open_time,open,high,low,close,volume
1767225600000,100,105,98,104,1200
2026-01-01T00:01:00Z,104,106,101,102,800
`

func TestReadCSV(t *testing.T) {
	feed, err := ReadCSV(strings.NewReader(sample), "BTCUSDT", "1m")
	require.NoError(t, err)

	candles := feed.Candles()
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].OpenTime)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), candles[1].OpenTime)
	assert.Equal(t, candles[0].OpenTime.Add(time.Minute-time.Millisecond), candles[0].CloseTime)
	assert.Equal(t, 1200.0, candles[0].Volume)
	assert.Equal(t, "BTCUSDT", candles[1].Symbol)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("time,open,high,low,close,volume\n"), "X", "1m")
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("open_time,open,high,low,close,volume\n0,1,2,0.5,1,-3\n"), "X", "1m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "строка 2")

	_, err = ReadCSV(strings.NewReader("open_time,open,high,low,close,volume\nyesterday,1,2,0.5,1,3\n"), "X", "1m")
	require.Error(t, err)
}

func collect(ch <-chan models.Tick) []models.Tick {
	var out []models.Tick
	for t := range ch {
		out = append(out, t)
	}
	return out
}

func TestCSVFeed_StreamBars(t *testing.T) {
	feed, err := ReadCSV(strings.NewReader(sample), "BTCUSDT", "1m")
	require.NoError(t, err)

	ticks := collect(feed.Stream(context.Background()))
	require.Len(t, ticks, 2)
	assert.True(t, ticks[0].Final)
	assert.True(t, ticks[1].Final)
}

func TestCSVFeed_SyntheticTicks(t *testing.T) {
	feed, err := ReadCSV(strings.NewReader(sample), "BTCUSDT", "1m")
	require.NoError(t, err)
	feed.Ticks = true

	ticks := collect(feed.Stream(context.Background()))
	require.Len(t, ticks, 8)

	// Растущая свеча: open, low, high, close
	first := ticks[:4]
	assert.Equal(t, []float64{100, 98, 105, 104}, []float64{first[0].Close, first[1].Close, first[2].Close, first[3].Close})
	assert.Equal(t, 98.0, first[1].Low)
	assert.Equal(t, 100.0, first[1].High)
	assert.False(t, first[2].Final)
	assert.True(t, first[3].Final)
	assert.Equal(t, 1200.0, first[3].Volume)
	assert.Equal(t, 105.0, first[3].High)

	// Падающая: open, high, low, close
	second := ticks[4:]
	assert.Equal(t, 106.0, second[1].Close)
	assert.Equal(t, 101.0, second[2].Close)
	for _, tk := range second {
		assert.Equal(t, second[0].OpenTime, tk.OpenTime)
	}
}

func TestCSVFeed_StopsOnCancel(t *testing.T) {
	feed, err := ReadCSV(strings.NewReader(sample), "BTCUSDT", "1m")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := feed.Stream(ctx)
	<-ch
	cancel()

	// Канал закрывается после отмены
	for range ch {
	}
}

func TestParseCandle(t *testing.T) {
	c, err := parseCandle("ETHUSDT", "1m", 1767225600000, 1767225659999, "2000.10", "2001.5", "1999", "2000.75", "12.345")
	require.NoError(t, err)
	assert.Equal(t, 2000.10, c.Open)
	assert.Equal(t, 12.345, c.Volume)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), c.OpenTime)

	_, err = parseCandle("ETHUSDT", "1m", 0, 0, "abc", "1", "1", "1", "1")
	assert.Error(t, err)
}

package storage

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/pkg/models"
)

func TestSignalPoint_LineProtocol(t *testing.T) {
	stop, bull := 99.5, 98.75
	rec := models.SignalRecord{
		Symbol:         "BTCUSDT",
		BarIndex:       42,
		Time:           time.Unix(1767225600, 0).UTC(),
		Classification: models.Bullish,
		IsSpike:        true,
		BullLevel:      &bull,
		StopLevel:      &stop,
		Trend:          models.TrendUp,
		Volume:         151,
	}

	line := write.PointToLineProtocol(signalPoint(rec, "1m"), time.Second)
	assert.Contains(t, line, "volume_flow,interval=1m,symbol=BTCUSDT ")
	assert.Contains(t, line, "bar_index=42i")
	assert.Contains(t, line, "classification=1i")
	assert.Contains(t, line, "spike=true")
	assert.Contains(t, line, "bull_level=98.75")
	assert.NotContains(t, line, "bear_level")
	assert.Contains(t, line, " 1767225600")
}

func TestRecordFromValues(t *testing.T) {
	ts := time.Unix(1767225600, 0).UTC()
	rec := recordFromValues("ETHUSDT", ts, map[string]interface{}{
		"bar_index":      int64(7),
		"classification": int64(-1),
		"trend":          int64(-1),
		"spike":          false,
		"bear_level":     2010.5,
		"stop":           2020.0,
		"volume":         int64(300),
		"close":          2005.25,
	})

	assert.Equal(t, 7, rec.BarIndex)
	assert.Equal(t, models.Bearish, rec.Classification)
	assert.Equal(t, models.TrendDown, rec.Trend)
	assert.Equal(t, 300.0, rec.Volume)
	assert.Equal(t, 2005.25, rec.Close)
	require.NotNil(t, rec.BearLevel)
	assert.Equal(t, 2010.5, *rec.BearLevel)
	assert.Nil(t, rec.BullLevel)
	assert.True(t, rec.Final)
}

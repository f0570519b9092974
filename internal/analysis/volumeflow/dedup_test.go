package volumeflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/pkg/models"
)

func newTestDedup(cfg Config) *Deduplicator {
	d := NewDeduplicator(cfg)
	n := 0
	d.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return d
}

func record(i int, c models.Classification, isSpike bool) models.SignalRecord {
	rec := models.SignalRecord{
		Symbol:         "ETHUSDT",
		BarIndex:       i,
		Time:           t0,
		Classification: c,
		IsSpike:        isSpike,
		High:           110,
		Low:            90,
		Final:          true,
	}
	switch c {
	case models.Bullish:
		level := 89.5
		rec.BullLevel = &level
	case models.Bearish:
		level := 110.5
		rec.BearLevel = &level
	}
	return rec
}

func TestDeduplicator_OnlyOnTransitions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAlerts = true
	d := newTestDedup(cfg)

	seq := []models.Classification{
		models.None, models.Bullish, models.Bullish, models.None,
		models.Bullish, models.Bearish, models.Bearish,
	}
	var tags []string
	for i, c := range seq {
		for _, a := range d.Evaluate(record(i, c, false)) {
			tags = append(tags, a.Tag)
		}
	}

	assert.Equal(t, []string{
		"VolumeFlow_Normal_Bull_1",
		"VolumeFlow_Normal_Bull_4",
		"VolumeFlow_Normal_Bear_5",
	}, tags)
}

func TestDeduplicator_AlertFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAlerts = true
	d := newTestDedup(cfg)

	alerts := d.Evaluate(record(7, models.Bearish, true))
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, "id-1", a.ID)
	assert.Equal(t, models.AlertSpike, a.Kind)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.Equal(t, "Alert2.wav", a.Sound)
	assert.Equal(t, 110.5, a.Price)
	assert.Equal(t, "VolumeFlow Spike Bearish Signal", a.Message)
	assert.Equal(t, "ETHUSDT", a.Symbol)
}

func TestDeduplicator_OncePerBar(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAlerts = true
	d := newTestDedup(cfg)

	require.Len(t, d.Evaluate(record(3, models.Bullish, false)), 1)

	// Повторная оценка того же бара после сброса классификации
	d.Restore(DedupState{PrevClassification: models.None, LastSignalBar: 3, LastSpikeBar: -1})
	assert.Empty(t, d.Evaluate(record(3, models.Bullish, false)))
}

func TestDeduplicator_SpikeOnlyChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAlerts = false
	cfg.EnableSpikeAlerts = true
	d := newTestDedup(cfg)

	assert.Empty(t, d.Evaluate(record(1, models.Bullish, true)), "signal channel disabled")

	alerts := d.Evaluate(record(2, models.None, true))
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSpikeOnly, alerts[0].Kind)
	assert.Equal(t, models.SeverityLow, alerts[0].Severity)
	assert.Equal(t, "VolumeFlow_SpikeOnly_2", alerts[0].Tag)
	assert.Equal(t, 100.0, alerts[0].Price)

	assert.Empty(t, d.Evaluate(record(2, models.None, true)))
	assert.Len(t, d.Evaluate(record(3, models.None, true)), 1)
}

func TestDeduplicator_RestoreContinuesAfterRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAlerts = true

	first := newTestDedup(cfg)
	first.Evaluate(record(10, models.Bullish, false))
	st := first.State()

	second := newTestDedup(cfg)
	second.Restore(st)
	assert.Empty(t, second.Evaluate(record(11, models.Bullish, false)))
	assert.Len(t, second.Evaluate(record(12, models.Bearish, false)), 1)
}

func TestDeduplicator_ReplayedHistoryIsSilent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableAlerts = true
	d := newTestDedup(cfg)
	d.Restore(DedupState{LastSignalBar: -1, LastSpikeBar: -1, Through: t0.Add(time.Hour)})

	old := record(0, models.Bullish, false)
	old.Time = t0.Add(time.Hour)
	assert.Empty(t, d.Evaluate(old))
	assert.Equal(t, models.Bullish, d.State().PrevClassification)

	fresh := record(1, models.Bearish, false)
	fresh.Time = t0.Add(time.Hour + time.Minute)
	assert.Len(t, d.Evaluate(fresh), 1)
}

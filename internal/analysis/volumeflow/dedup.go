package volumeflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skalibog/volflow/pkg/models"
)

// alertPrefix префикс тегов уведомлений
const alertPrefix = "VolumeFlow"

// DedupState состояние дедупликатора (для восстановления после рестарта)
type DedupState struct {
	PrevClassification models.Classification
	LastSignalBar      int
	LastSpikeBar       int
	// Through уведомления по барам, открытым не позже этого момента, уже
	// отправлены в прошлом запуске; при повторном прогоне истории они молчат
	Through time.Time
}

// Deduplicator выдает не более одного уведомления каждого канала на бар.
// Сигнальное уведомление - только при смене классификации относительно
// предыдущего закрытого бара.
type Deduplicator struct {
	signals    bool
	spikes     bool
	sound      string
	spikeSound string

	state DedupState
	newID func() string
}

// NewDeduplicator создает дедупликатор по настройкам уведомлений
func NewDeduplicator(cfg Config) *Deduplicator {
	return &Deduplicator{
		signals:    cfg.EnableAlerts,
		spikes:     cfg.EnableSpikeAlerts,
		sound:      cfg.AlertSound,
		spikeSound: cfg.SpikeAlertSound,
		state: DedupState{
			LastSignalBar: -1,
			LastSpikeBar:  -1,
		},
		newID: func() string { return uuid.NewString() },
	}
}

// State текущее состояние
func (d *Deduplicator) State() DedupState { return d.state }

// Restore восстанавливает состояние (например, из журнала уведомлений)
func (d *Deduplicator) Restore(st DedupState) { d.state = st }

// Evaluate вызывается только для закрытого бара
func (d *Deduplicator) Evaluate(rec models.SignalRecord) []models.Alert {
	var alerts []models.Alert

	if d.signals && rec.Classification != models.None &&
		rec.Classification != d.state.PrevClassification &&
		d.state.LastSignalBar != rec.BarIndex {

		kind, sound := models.AlertNormal, d.sound
		if rec.IsSpike {
			kind, sound = models.AlertSpike, d.spikeSound
		}
		side, word, price := "Bull", "Bullish", levelOr(rec.BullLevel, rec.Low)
		if rec.Classification == models.Bearish {
			side, word, price = "Bear", "Bearish", levelOr(rec.BearLevel, rec.High)
		}

		alerts = append(alerts, models.Alert{
			ID:             d.newID(),
			Tag:            fmt.Sprintf("%s_%s_%s_%d", alertPrefix, kind, side, rec.BarIndex),
			Symbol:         rec.Symbol,
			BarIndex:       rec.BarIndex,
			Kind:           kind,
			Classification: rec.Classification,
			Severity:       models.SeverityMedium,
			Sound:          sound,
			Message:        fmt.Sprintf("%s %s %s Signal", alertPrefix, kind, word),
			Price:          price,
			Timestamp:      rec.Time,
		})
		d.state.LastSignalBar = rec.BarIndex
	}

	if d.spikes && rec.IsSpike && rec.Classification == models.None &&
		d.state.LastSpikeBar != rec.BarIndex {

		alerts = append(alerts, models.Alert{
			ID:             d.newID(),
			Tag:            fmt.Sprintf("%s_%s_%d", alertPrefix, models.AlertSpikeOnly, rec.BarIndex),
			Symbol:         rec.Symbol,
			BarIndex:       rec.BarIndex,
			Kind:           models.AlertSpikeOnly,
			Classification: models.None,
			Severity:       models.SeverityLow,
			Sound:          d.spikeSound,
			Message:        alertPrefix + " Volume Spike Detected",
			Price:          (rec.High + rec.Low) / 2,
			Timestamp:      rec.Time,
		})
		d.state.LastSpikeBar = rec.BarIndex
	}

	d.state.PrevClassification = rec.Classification
	if !d.state.Through.IsZero() && !rec.Time.After(d.state.Through) {
		return nil
	}
	return alerts
}

func levelOr(level *float64, fallback float64) float64 {
	if level == nil {
		return fallback
	}
	return *level
}

package storage

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/skalibog/volflow/pkg/models"
)

const (
	measurementCandles = "candles"
	measurementSignals = "volume_flow"
)

func candlePoint(c models.Candle) *write.Point {
	return influxdb2.NewPoint(
		measurementCandles,
		map[string]string{
			"symbol":   c.Symbol,
			"interval": c.Interval,
		},
		map[string]interface{}{
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
		},
		c.OpenTime,
	)
}

// signalPoint точка записи бара. Уровни маркеров пишутся только если заданы.
func signalPoint(rec models.SignalRecord, interval string) *write.Point {
	fields := map[string]interface{}{
		"bar_index":      int64(rec.BarIndex),
		"classification": int64(rec.Classification),
		"spike":          rec.IsSpike,
		"trend":          int64(rec.Trend),
		"long_stop":      rec.LongStop,
		"short_stop":     rec.ShortStop,
		"volume":         rec.Volume,
		"reference":      rec.ReferenceVolume,
		"open":           rec.Open,
		"high":           rec.High,
		"low":            rec.Low,
		"close":          rec.Close,
		"tick_size":      rec.TickSize,
	}
	if rec.StopLevel != nil {
		fields["stop"] = *rec.StopLevel
	}
	if rec.BullLevel != nil {
		fields["bull_level"] = *rec.BullLevel
	}
	if rec.BearLevel != nil {
		fields["bear_level"] = *rec.BearLevel
	}

	return influxdb2.NewPoint(
		measurementSignals,
		map[string]string{
			"symbol":   rec.Symbol,
			"interval": interval,
		},
		fields,
		rec.Time,
	)
}

// recordFromValues восстанавливает запись из строки pivot-запроса
func recordFromValues(symbol string, ts time.Time, values map[string]interface{}) models.SignalRecord {
	rec := models.SignalRecord{
		Symbol:          symbol,
		Time:            ts,
		BarIndex:        int(intValue(values["bar_index"])),
		Classification:  models.Classification(intValue(values["classification"])),
		Trend:           models.Trend(intValue(values["trend"])),
		LongStop:        floatValue(values["long_stop"]),
		ShortStop:       floatValue(values["short_stop"]),
		Volume:          floatValue(values["volume"]),
		ReferenceVolume: floatValue(values["reference"]),
		Open:            floatValue(values["open"]),
		High:            floatValue(values["high"]),
		Low:             floatValue(values["low"]),
		Close:           floatValue(values["close"]),
		TickSize:        floatValue(values["tick_size"]),
		Final:           true,
	}
	rec.IsSpike, _ = values["spike"].(bool)

	if v, ok := values["stop"].(float64); ok {
		rec.StopLevel = &v
	}
	if v, ok := values["bull_level"].(float64); ok {
		rec.BullLevel = &v
	}
	if v, ok := values["bear_level"].(float64); ok {
		rec.BearLevel = &v
	}
	return rec
}

func floatValue(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func intValue(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	default:
		return 0
	}
}

package models

import (
	"fmt"
	"strconv"
	"time"
)

// Candle представляет свечу биржи (как приходит из REST/WS или CSV)
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Tick снимок свечи на момент обновления. Final = свеча закрыта
type Tick struct {
	Candle
	Final bool
}

// Bar бар в последовательности одного потока
type Bar struct {
	Candle
	Index        int
	SessionStart bool
}

// BarUpdate одно обновление бара для движка сигналов
type BarUpdate struct {
	Bar
	FirstTick   bool
	Final       bool
	TickSize    float64
	ATR         float64
	TrailingATR float64
}

// UpdatePolicy политика обновления баров
type UpdatePolicy int

const (
	// OnBarClose одна оценка на закрытый бар
	OnBarClose UpdatePolicy = iota
	// OnEachTick несколько оценок до закрытия бара
	OnEachTick
)

func (p UpdatePolicy) String() string {
	if p == OnEachTick {
		return "on_each_tick"
	}
	return "on_bar_close"
}

// Trend направление тренда
type Trend int

const (
	TrendUp   Trend = 1
	TrendDown Trend = -1
)

func (t Trend) String() string {
	if t == TrendDown {
		return "down"
	}
	return "up"
}

// Classification итоговая классификация бара
type Classification int

const (
	None    Classification = 0
	Bullish Classification = 1
	Bearish Classification = -1
)

func (c Classification) String() string {
	switch c {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "none"
	}
}

// SignalRecord результат обработки бара
type SignalRecord struct {
	Symbol          string
	BarIndex        int
	Time            time.Time
	Classification  Classification
	IsSpike         bool
	BullLevel       *float64
	BearLevel       *float64
	StopLevel       *float64
	LongStop        float64
	ShortStop       float64
	Trend           Trend
	Volume          float64
	ReferenceVolume float64
	Open            float64
	High            float64
	Low             float64
	Close           float64
	TickSize        float64
	Final           bool
}

// VolumeRatio отношение объема к опорному, 0 если опорный объем не определен
func (r SignalRecord) VolumeRatio() float64 {
	if r.ReferenceVolume <= 0 {
		return 0
	}
	return r.Volume / r.ReferenceVolume
}

// AlertKind тип уведомления
type AlertKind string

const (
	AlertNormal    AlertKind = "Normal"
	AlertSpike     AlertKind = "Spike"
	AlertSpikeOnly AlertKind = "SpikeOnly"
)

// Severity приоритет уведомления
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
)

// Alert уведомление для внешних получателей
type Alert struct {
	ID             string         `json:"id"`
	Tag            string         `json:"tag"`
	Symbol         string         `json:"symbol"`
	BarIndex       int            `json:"bar_index"`
	Kind           AlertKind      `json:"kind"`
	Classification Classification `json:"classification"`
	Severity       Severity       `json:"severity"`
	Sound          string         `json:"sound"`
	Message        string         `json:"message"`
	Price          float64        `json:"price"`
	Timestamp      time.Time      `json:"timestamp"`
}

// IntervalDuration длительность интервала Binance (1m, 15m, 1h, 1d, 1w)
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("неизвестный интервал: %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("неизвестный интервал: %q", interval)
	}

	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("неизвестный интервал: %q", interval)
	}
}

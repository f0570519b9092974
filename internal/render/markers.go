// Package render раскладывает записи движка в рисунки на графике: маркеры
// сигналов, подписи объема, маркеры всплесков и линию стопа.
package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/volflow/pkg/models"
)

// Отступы от уровня сигнала, в тиках
const (
	spikeTicks = 2
	labelTicks = 4
)

// Shape вид рисунка
type Shape int

const (
	TriangleUp Shape = iota
	TriangleDown
	Diamond
	Label
	Line
)

func (s Shape) String() string {
	switch s {
	case TriangleUp:
		return "triangle_up"
	case TriangleDown:
		return "triangle_down"
	case Diamond:
		return "diamond"
	case Label:
		return "label"
	default:
		return "line"
	}
}

// Drawing один рисунок на графике символа
type Drawing struct {
	Symbol string
	Tag    string
	Shape  Shape
	Price  float64
	Text   string
	Time   time.Time
}

// Canvas внешний график. Тег уникален в пределах символа
type Canvas interface {
	Draw(ctx context.Context, d Drawing) error
	Remove(ctx context.Context, symbol, tag string) error
}

// Options что рисовать
type Options struct {
	ShowSpikeMarkers bool
	ShowLabels       bool
	ShowStopLine     bool
	// Normalize подпись объема в процентах от опорного
	Normalize bool
}

// MarkerBook помнит теги открытых баров и убирает устаревшие рисунки,
// когда классификация бара меняется. Безопасен для нескольких потоков.
type MarkerBook struct {
	canvas Canvas
	opts   Options

	mu    sync.Mutex
	drawn map[string]map[int]map[string]struct{}
}

// NewMarkerBook создает книгу маркеров
func NewMarkerBook(canvas Canvas, opts Options) *MarkerBook {
	return &MarkerBook{
		canvas: canvas,
		opts:   opts,
		drawn:  make(map[string]map[int]map[string]struct{}),
	}
}

// Apply приводит рисунки бара к записи и возвращает нарисованное
func (b *MarkerBook) Apply(ctx context.Context, rec models.SignalRecord) ([]Drawing, error) {
	want := b.layout(rec)

	b.mu.Lock()
	defer b.mu.Unlock()

	bars, ok := b.drawn[rec.Symbol]
	if !ok {
		bars = make(map[int]map[string]struct{})
		b.drawn[rec.Symbol] = bars
	}
	prev := bars[rec.BarIndex]

	next := make(map[string]struct{}, len(want))
	for _, d := range want {
		next[d.Tag] = struct{}{}
	}

	for tag := range prev {
		if _, keep := next[tag]; keep {
			continue
		}
		if err := b.canvas.Remove(ctx, rec.Symbol, tag); err != nil {
			return nil, fmt.Errorf("удаление %s: %w", tag, err)
		}
	}
	for _, d := range want {
		if err := b.canvas.Draw(ctx, d); err != nil {
			return nil, fmt.Errorf("отрисовка %s: %w", d.Tag, err)
		}
	}

	// Рисунки закрытого бара больше не меняются
	if rec.Final {
		delete(bars, rec.BarIndex)
	} else {
		bars[rec.BarIndex] = next
	}
	return want, nil
}

// HandleRecord реализует получателя записей
func (b *MarkerBook) HandleRecord(ctx context.Context, rec models.SignalRecord) error {
	_, err := b.Apply(ctx, rec)
	return err
}

// Pending число открытых баров с рисунками
func (b *MarkerBook) Pending(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.drawn[symbol])
}

func (b *MarkerBook) layout(rec models.SignalRecord) []Drawing {
	var out []Drawing
	add := func(tag string, shape Shape, price float64, text string) {
		out = append(out, Drawing{
			Symbol: rec.Symbol,
			Tag:    fmt.Sprintf("%s_%d", tag, rec.BarIndex),
			Shape:  shape,
			Price:  RoundToTick(price, rec.TickSize),
			Text:   text,
			Time:   rec.Time,
		})
	}
	tick := rec.TickSize

	switch {
	case rec.Classification == models.Bullish && rec.BullLevel != nil:
		level := *rec.BullLevel
		add("BullVF", TriangleUp, level, "")
		if b.opts.ShowSpikeMarkers && rec.IsSpike {
			add("SpikeBull", Diamond, level-spikeTicks*tick, "")
		}
		if b.opts.ShowLabels {
			add("BullLbl", Label, level-labelTicks*tick, VolumeLabel(rec, b.opts.Normalize))
		}
	case rec.Classification == models.Bearish && rec.BearLevel != nil:
		level := *rec.BearLevel
		add("BearVF", TriangleDown, level, "")
		if b.opts.ShowSpikeMarkers && rec.IsSpike {
			add("SpikeBear", Diamond, level+spikeTicks*tick, "")
		}
		if b.opts.ShowLabels {
			add("BearLbl", Label, level+labelTicks*tick, VolumeLabel(rec, b.opts.Normalize))
		}
	case b.opts.ShowSpikeMarkers && rec.IsSpike:
		// Всплеск без ценового подтверждения - маркер по середине бара
		mid := (rec.High + rec.Low) / 2
		if rec.Close >= rec.Open {
			add("SpikeBull", Diamond, mid, "")
		} else {
			add("SpikeBear", Diamond, mid, "")
		}
	}

	if b.opts.ShowStopLine && rec.StopLevel != nil {
		add("Stop", Line, *rec.StopLevel, "")
	}
	return out
}

// RoundToTick округляет цену до шага цены; шаг <= 0 оставляет цену как есть
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	step := decimal.NewFromFloat(tick)
	f, _ := decimal.NewFromFloat(price).Div(step).Round(0).Mul(step).Float64()
	return f
}

// VolumeLabel подпись объема: "Vol: 1.5K  (x1.51)" или "Vol: 151%" при нормализации
func VolumeLabel(rec models.SignalRecord, normalize bool) string {
	ratio := decimal.NewFromFloat(rec.VolumeRatio())
	if normalize {
		return "Vol: " + ratio.Mul(decimal.NewFromInt(100)).Round(0).String() + "%"
	}
	return fmt.Sprintf("Vol: %s  (x%s)", FormatVolume(rec.Volume), ratio.StringFixed(2))
}

// FormatVolume короткая запись объема с суффиксами K и M
func FormatVolume(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		return d.Div(decimal.NewFromInt(1_000_000)).Round(2).String() + "M"
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1_000)):
		return d.Div(decimal.NewFromInt(1_000)).Round(2).String() + "K"
	default:
		return d.Round(2).String()
	}
}

// LogCanvas пишет рисунки в лог; используется без внешнего графика
type LogCanvas struct {
	log *zap.Logger
}

// NewLogCanvas создает холст-логгер
func NewLogCanvas(log *zap.Logger) *LogCanvas {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogCanvas{log: log}
}

func (c *LogCanvas) Draw(_ context.Context, d Drawing) error {
	c.log.Debug("Рисунок",
		zap.String("symbol", d.Symbol),
		zap.String("tag", d.Tag),
		zap.Stringer("shape", d.Shape),
		zap.Float64("price", d.Price),
		zap.String("text", d.Text))
	return nil
}

func (c *LogCanvas) Remove(_ context.Context, symbol, tag string) error {
	c.log.Debug("Рисунок удален", zap.String("symbol", symbol), zap.String("tag", tag))
	return nil
}

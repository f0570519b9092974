// Package trailing реализует трейлинг-стоп по ATR ("лесенка"): стоп двигается
// только в сторону тренда, разворот тренда возможен не более одного раза за бар.
package trailing

import (
	"math"

	"github.com/skalibog/volflow/pkg/models"
)

// seedTicks отступ начальных стопов от цены закрытия, в тиках
const seedTicks = 2

// State состояние трекера на баре
type State struct {
	Preliminary     models.Trend
	Confirmed       models.Trend
	LongStop        float64
	ShortStop       float64
	ReversedThisBar bool
}

// ActiveStop стоп подтвержденного тренда
func (s State) ActiveStop() float64 {
	if s.Confirmed == models.TrendDown {
		return s.ShortStop
	}
	return s.LongStop
}

// Tracker конечный автомат тренда с предварительной и подтвержденной фазами.
// prev - состояние последнего закрытого бара, cur - текущего (незакрытого).
type Tracker struct {
	policy     models.UpdatePolicy
	multiplier float64

	prev    State
	cur     State
	hasPrev bool
	seeded  bool // текущий бар инициализирован нейтрально
	open    bool
}

// NewTracker создает трекер. multiplier - множитель ATR трейлинга
func NewTracker(policy models.UpdatePolicy, multiplier float64) *Tracker {
	return &Tracker{
		policy:     policy,
		multiplier: multiplier,
	}
}

// Seed нейтральная инициализация, пока истории недостаточно: тренд вверх,
// стопы на два тика от цены закрытия.
func (t *Tracker) Seed(close, tickSize float64) {
	t.cur = State{
		Preliminary: models.TrendUp,
		Confirmed:   models.TrendUp,
		LongStop:    close - seedTicks*tickSize,
		ShortStop:   close + seedTicks*tickSize,
	}
	t.seeded = true
	t.open = true
}

// Open пересчитывает стопы в начале нового бара по закрытию и ATR предыдущего.
// Без закрытой истории работает как Seed.
func (t *Tracker) Open(prevClose, prevATR, tickSize float64) {
	if !t.hasPrev {
		t.Seed(prevClose, tickSize)
		return
	}

	if math.IsNaN(prevATR) || math.IsInf(prevATR, 0) {
		prevATR = 0
	}
	trailingAmount := t.multiplier * math.Max(tickSize, prevATR)

	next := State{Preliminary: t.prev.Preliminary}
	if t.prev.Preliminary == models.TrendUp {
		// Длинный стоп только растет или стоит на месте
		next.LongStop = math.Max(t.prev.LongStop, math.Min(prevClose-trailingAmount, prevClose-tickSize))
		next.ShortStop = prevClose + trailingAmount
	} else {
		// Короткий стоп только снижается или стоит на месте
		next.ShortStop = math.Min(t.prev.ShortStop, math.Max(prevClose+trailingAmount, prevClose+tickSize))
		next.LongStop = prevClose - trailingAmount
	}

	// Подтвержденный тренд внутри бара отстает на один бар
	next.Confirmed = t.prev.Preliminary

	t.cur = next
	t.seeded = false
	t.open = true
}

// Observe проверяет пробой стопа текущими high/low. Возвращает true,
// если на этом вызове произошел разворот. После разворота бар заблокирован.
func (t *Tracker) Observe(high, low float64) bool {
	if !t.open || t.seeded || t.cur.ReversedThisBar {
		return false
	}

	reversed := false
	switch {
	case t.prev.Preliminary == models.TrendUp && low < t.cur.LongStop:
		t.cur.Preliminary = models.TrendDown
		reversed = true
	case t.prev.Preliminary == models.TrendDown && high > t.cur.ShortStop:
		t.cur.Preliminary = models.TrendUp
		reversed = true
	default:
		t.cur.Preliminary = t.prev.Preliminary
	}
	t.cur.ReversedThisBar = reversed

	if t.policy == models.OnBarClose {
		t.cur.Confirmed = t.cur.Preliminary
	}
	return reversed
}

// Close фиксирует бар: подтвержденный тренд принимает предварительный
func (t *Tracker) Close() State {
	if !t.open {
		return t.prev
	}
	t.cur.Confirmed = t.cur.Preliminary
	t.prev = t.cur
	t.hasPrev = true
	t.open = false
	return t.prev
}

// State состояние текущего бара (или последнего закрытого между барами)
func (t *Tracker) State() State {
	if t.open {
		return t.cur
	}
	return t.prev
}

// Policy политика обновления
func (t *Tracker) Policy() models.UpdatePolicy { return t.policy }

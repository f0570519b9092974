// Package technical считает ATR для потока баров: движок сигналов получает
// волатильность как внешний вход, вместе с самим баром.
package technical

import (
	"github.com/skalibog/volflow/pkg/models"
)

// minHistory минимальная глубина истории закрытых баров
const minHistory = 100

// Annotator дописывает ATR и трейлинг-ATR в обновления бара.
// История закрытых баров ограничена, текущий бар участвует в расчете
// на каждом обновлении.
type Annotator struct {
	atr      ATR
	trailing ATR
	limit    int

	highs  []float64
	lows   []float64
	closes []float64
}

// NewAnnotator создает аннотатор для периодов ATR и трейлинг-ATR
func NewAnnotator(engine string, atrPeriod, trailingPeriod int) (*Annotator, error) {
	atr, err := NewATR(engine, atrPeriod)
	if err != nil {
		return nil, err
	}
	trailing, err := NewATR(engine, trailingPeriod)
	if err != nil {
		return nil, err
	}

	// Сглаживание Уайлдера сходится примерно за пять периодов
	limit := max(minHistory, 5*max(atrPeriod, trailingPeriod))
	return &Annotator{
		atr:      atr,
		trailing: trailing,
		limit:    limit,
	}, nil
}

// Annotate заполняет ATR и TrailingATR. Закрытый бар попадает в историю.
func (a *Annotator) Annotate(u models.BarUpdate) models.BarUpdate {
	highs := append(a.highs, u.High)
	lows := append(a.lows, u.Low)
	closes := append(a.closes, u.Close)

	u.ATR = a.atr.Last(highs, lows, closes)
	u.TrailingATR = a.trailing.Last(highs, lows, closes)

	if u.Final {
		a.commit(highs, lows, closes)
	}
	return u
}

// Commit переносит в историю бар, закрытый без финального тика
// (политика по тикам: закрытие видно только по приходу следующего бара)
func (a *Annotator) Commit(u models.BarUpdate) {
	a.commit(append(a.highs, u.High), append(a.lows, u.Low), append(a.closes, u.Close))
}

func (a *Annotator) commit(highs, lows, closes []float64) {
	a.highs, a.lows, a.closes = trim(highs, a.limit), trim(lows, a.limit), trim(closes, a.limit)
}

// Len число закрытых баров в истории
func (a *Annotator) Len() int { return len(a.closes) }

func trim(values []float64, limit int) []float64 {
	if len(values) <= limit {
		return values
	}
	return append(values[:0:0], values[len(values)-limit:]...)
}

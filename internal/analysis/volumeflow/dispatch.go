package volumeflow

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/skalibog/volflow/pkg/models"
)

// RecordSink получает запись каждого обновления (рендер, хранилище, UI)
type RecordSink interface {
	HandleRecord(ctx context.Context, rec models.SignalRecord) error
}

// AlertSink получает уведомления после дедупликации
type AlertSink interface {
	Notify(ctx context.Context, a models.Alert) error
}

// Dispatcher передает результаты движка внешним получателям. Ошибки и паники
// получателей логируются и не прерывают обработку баров.
type Dispatcher struct {
	records  []RecordSink
	alerts   []AlertSink
	log      *zap.Logger
	failures atomic.Int64
}

// NewDispatcher создает диспетчер
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log}
}

// AddRecordSink регистрирует получателя записей
func (d *Dispatcher) AddRecordSink(s RecordSink) { d.records = append(d.records, s) }

// AddAlertSink регистрирует получателя уведомлений
func (d *Dispatcher) AddAlertSink(s AlertSink) { d.alerts = append(d.alerts, s) }

// Failures число сбоев получателей с момента создания
func (d *Dispatcher) Failures() int64 { return d.failures.Load() }

// Dispatch отправляет запись и уведомления результата. Итоговая запись
// неявно закрытого бара уходит получателям раньше записи текущего.
func (d *Dispatcher) Dispatch(ctx context.Context, res Result) {
	if res.Closed != nil {
		d.deliver(ctx, *res.Closed)
	}
	d.deliver(ctx, res.Record)
	for _, a := range res.Alerts {
		for _, s := range d.alerts {
			d.call(fmt.Sprintf("%T", s), a.BarIndex, func() error {
				return s.Notify(ctx, a)
			})
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rec models.SignalRecord) {
	for _, s := range d.records {
		d.call(fmt.Sprintf("%T", s), rec.BarIndex, func() error {
			return s.HandleRecord(ctx, rec)
		})
	}
}

func (d *Dispatcher) call(sink string, bar int, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.failures.Add(1)
			d.log.Error("Паника в получателе",
				zap.String("sink", sink),
				zap.Int("bar", bar),
				zap.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		d.failures.Add(1)
		d.log.Error("Ошибка получателя",
			zap.String("sink", sink),
			zap.Int("bar", bar),
			zap.Error(err))
	}
}

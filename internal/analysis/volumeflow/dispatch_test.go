package volumeflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/skalibog/volflow/pkg/models"
)

type recordingSink struct {
	records []models.SignalRecord
	alerts  []models.Alert
}

func (s *recordingSink) HandleRecord(_ context.Context, rec models.SignalRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Notify(_ context.Context, a models.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

type failingSink struct{}

func (failingSink) HandleRecord(context.Context, models.SignalRecord) error {
	return errors.New("renderer offline")
}

func (failingSink) Notify(context.Context, models.Alert) error {
	panic("sound device missing")
}

func TestDispatcher_SinkFailuresDoNotStopDelivery(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	ok := &recordingSink{}

	d.AddRecordSink(failingSink{})
	d.AddRecordSink(ok)
	d.AddAlertSink(failingSink{})
	d.AddAlertSink(ok)

	res := Result{
		Record: models.SignalRecord{BarIndex: 5, Classification: models.Bullish},
		Alerts: []models.Alert{{Tag: "a"}, {Tag: "b"}},
	}
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), res) })

	assert.Len(t, ok.records, 1)
	assert.Len(t, ok.alerts, 2)
	assert.Equal(t, int64(3), d.Failures())
}

func TestDispatcher_EngineStateSurvivesSinkFailure(t *testing.T) {
	e := newEngine(t, testConfig())
	d := NewDispatcher(nil)
	d.AddRecordSink(failingSink{})
	d.AddAlertSink(failingSink{})

	for i := range 3 {
		d.Dispatch(context.Background(), e.Process(flat(i, 100)))
	}
	res := e.Process(bullish(3, 151))
	d.Dispatch(context.Background(), res)

	assert.Equal(t, models.Bullish, res.Record.Classification)
	assert.Equal(t, 3, e.History().LastBullBar)
	assert.Equal(t, int64(5), d.Failures())
}

func TestDispatcher_ClosedRecordGoesFirst(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	sink := &recordingSink{}
	d.AddRecordSink(sink)

	closed := models.SignalRecord{BarIndex: 4, Final: true}
	d.Dispatch(context.Background(), Result{
		Record: models.SignalRecord{BarIndex: 5},
		Closed: &closed,
	})

	if assert.Len(t, sink.records, 2) {
		assert.Equal(t, 4, sink.records[0].BarIndex)
		assert.True(t, sink.records[0].Final)
		assert.Equal(t, 5, sink.records[1].BarIndex)
	}
}

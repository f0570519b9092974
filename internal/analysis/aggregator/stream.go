package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/analysis/technical"
	"github.com/skalibog/volflow/internal/analysis/volumeflow"
	"github.com/skalibog/volflow/pkg/models"
)

// Session границы торговой сессии: новая сессия начинается в StartHour
// по времени Location. Для круглосуточного рынка это граница суток.
type Session struct {
	Location  *time.Location
	StartHour int
}

// key идентификатор сессии, к которой относится момент t
func (s Session) key(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	shifted := t.In(loc).Add(-time.Duration(s.StartHour) * time.Hour)
	y, m, d := shifted.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Stream собирает тики одного символа в последовательность баров,
// дописывает ATR и прогоняет через собственный движок сигналов.
// Состояние потока ни с кем не разделяется.
type Stream struct {
	symbol    string
	secondary bool
	tickSize  float64
	session   Session

	annotator  *technical.Annotator
	engine     *volumeflow.Engine
	dispatcher *volumeflow.Dispatcher
	log        *zap.Logger

	policy     models.UpdatePolicy
	index      int
	hasBar     bool
	barClosed  bool
	barOpen    time.Time
	sessionKey time.Time

	// последнее обновление незакрытого бара, еще не попавшее в историю ATR
	open *models.BarUpdate
}

// StreamConfig параметры потока
type StreamConfig struct {
	Symbol    string
	Secondary bool
	TickSize  float64
	ATREngine string
	Session   Session
	Engine    volumeflow.Config
}

// NewStream создает поток с новым экземпляром движка
func NewStream(cfg StreamConfig, dispatcher *volumeflow.Dispatcher, log *zap.Logger) (*Stream, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("symbol", cfg.Symbol), zap.Bool("secondary", cfg.Secondary))

	engine, err := volumeflow.New(cfg.Symbol, cfg.Engine, volumeflow.WithLogger(log))
	if err != nil {
		return nil, err
	}
	annotator, err := technical.NewAnnotator(cfg.ATREngine, cfg.Engine.ATRPeriod, cfg.Engine.ATRTrailingPeriod)
	if err != nil {
		return nil, err
	}
	if dispatcher == nil {
		dispatcher = volumeflow.NewDispatcher(log)
	}

	return &Stream{
		symbol:     cfg.Symbol,
		secondary:  cfg.Secondary,
		tickSize:   cfg.TickSize,
		session:    cfg.Session,
		annotator:  annotator,
		engine:     engine,
		dispatcher: dispatcher,
		log:        log,
		policy:     cfg.Engine.Policy,
		index:      -1,
	}, nil
}

// Engine движок потока
func (s *Stream) Engine() *volumeflow.Engine { return s.engine }

// Handle обрабатывает тик: присваивает индекс бара, признак первого тика
// и начала сессии, считает ATR и передает результат получателям.
func (s *Stream) Handle(ctx context.Context, tick models.Tick) (volumeflow.Result, bool) {
	u, ok := s.assemble(tick)
	if !ok {
		return volumeflow.Result{}, false
	}

	if u.FirstTick && s.open != nil {
		s.annotator.Commit(*s.open)
	}
	s.open = nil
	u = s.annotator.Annotate(u)
	if !u.Final {
		last := u
		s.open = &last
	}

	res := s.engine.Process(u)
	s.dispatcher.Dispatch(ctx, res)
	return res, true
}

// Flush закрывает незавершенный бар (конец потока)
func (s *Stream) Flush(ctx context.Context) (volumeflow.Result, bool) {
	if s.open != nil {
		s.annotator.Commit(*s.open)
		s.open = nil
	}
	res, ok := s.engine.Finalize()
	if ok {
		s.dispatcher.Dispatch(ctx, res)
	}
	return res, ok
}

func (s *Stream) assemble(tick models.Tick) (models.BarUpdate, bool) {
	// Политика по закрытию: промежуточные тики не оцениваются
	if s.policy == models.OnBarClose && !tick.Final {
		return models.BarUpdate{}, false
	}

	first := !s.hasBar || !tick.OpenTime.Equal(s.barOpen)
	if s.hasBar && tick.OpenTime.Before(s.barOpen) {
		s.log.Warn("Тик устаревшего бара пропущен",
			zap.Time("open_time", tick.OpenTime),
			zap.Time("current", s.barOpen))
		return models.BarUpdate{}, false
	}
	if !first && s.barClosed {
		s.log.Debug("Повторный тик закрытого бара", zap.Time("open_time", tick.OpenTime))
		return models.BarUpdate{}, false
	}

	sessionStart := false
	if first {
		s.index++
		s.barOpen = tick.OpenTime
		s.hasBar = true

		key := s.session.key(tick.OpenTime)
		sessionStart = s.index == 0 || !key.Equal(s.sessionKey)
		s.sessionKey = key
	}
	s.barClosed = tick.Final

	return models.BarUpdate{
		Bar: models.Bar{
			Candle:       tick.Candle,
			Index:        s.index,
			SessionStart: sessionStart,
		},
		FirstTick: first,
		Final:     tick.Final,
		TickSize:  s.tickSize,
	}, true
}

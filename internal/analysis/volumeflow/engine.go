// Package volumeflow - движок сигналов объемного потока: прогрев и сессии,
// всплеск объема с ценовым подтверждением по ATR, антидребезг, фильтр тренда
// по трейлинг-стопу и дедупликация уведомлений.
package volumeflow

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/analysis/refvolume"
	"github.com/skalibog/volflow/internal/analysis/spike"
	"github.com/skalibog/volflow/internal/analysis/trailing"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

// markerTicks отступ маркеров сигналов от экстремума бара, в тиках
const markerTicks = 2

// trendFilterMinBars фильтр тренда работает с этого порядкового номера бара
const trendFilterMinBars = 3

// seedBars число первых баров с нейтральной инициализацией трекера
const seedBars = 2

// History последние принятые сигналы по направлениям, переносится от бара к бару
type History struct {
	LastBullBar int
	LastBearBar int
	HasBull     bool
	HasBear     bool
}

// Result результат одного обновления
type Result struct {
	Record models.SignalRecord
	// Closed итоговая запись предыдущего бара, закрытого неявно приходом нового
	Closed *models.SignalRecord
	// Alerts заполняется только при закрытии бара
	Alerts []models.Alert
}

// priorBar данные закрытого бара, нужные следующему
type priorBar struct {
	close       float64
	trailingATR float64
}

// Engine движок одного потока баров. Не потокобезопасен: каждый поток
// владеет собственным экземпляром.
type Engine struct {
	cfg    Config
	symbol string
	log    *zap.Logger

	estimator  *refvolume.Estimator
	classifier *spike.Classifier
	tracker    *trailing.Tracker
	dedup      *Deduplicator

	barsSeen    int
	ordinal     int
	sessionBars int
	inBar       bool
	curIndex    int

	prior   priorBar
	history History

	last   models.BarUpdate
	record models.SignalRecord
}

// Option настройка движка
type Option func(*Engine)

// WithLogger задает логгер (по умолчанию глобальный)
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New создает движок; неверная конфигурация - ошибка
func New(symbol string, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация движка: %w", err)
	}

	estimator, err := refvolume.New(cfg.ReferenceType, cfg.VolumePeriod)
	if err != nil {
		return nil, err
	}
	classifier, err := spike.NewClassifier(cfg.SpikeMode, cfg.VolumeMultiplier, cfg.ZScoreThreshold)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		symbol:     symbol,
		estimator:  estimator,
		classifier: classifier,
		tracker:    trailing.NewTracker(cfg.Policy, cfg.ATRTrailingMultiplier),
		dedup:      NewDeduplicator(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.GetLogger()
	}
	e.log = e.log.With(zap.String("symbol", symbol))
	return e, nil
}

// Symbol символ потока
func (e *Engine) Symbol() string { return e.symbol }

// Config конфигурация движка
func (e *Engine) Config() Config { return e.cfg }

// History история принятых сигналов (только закрытые бары)
func (e *Engine) History() History { return e.history }

// Trend подтвержденный тренд на текущем баре
func (e *Engine) Trend() models.Trend { return e.tracker.State().Confirmed }

// Dedup дедупликатор уведомлений
func (e *Engine) Dedup() *Deduplicator { return e.dedup }

// Process обрабатывает обновление бара. При политике OnBarClose каждое
// обновление считается единственным и сразу закрывает бар.
// Запись открытого бара заменяется на каждом тике до закрытия.
func (e *Engine) Process(u models.BarUpdate) Result {
	if e.cfg.Policy == models.OnBarClose {
		u.FirstTick = true
		u.Final = true
	}

	var res Result
	if e.inBar && u.Index != e.curIndex {
		// Хост перешел к новому бару без закрытия предыдущего
		if prev, ok := e.Finalize(); ok {
			closed := prev.Record
			res.Closed = &closed
			res.Alerts = prev.Alerts
			e.log.Debug("Бар закрыт неявно", zap.Int("bar", prev.Record.BarIndex))
		}
	}
	if !e.inBar {
		e.beginBar(u)
	}

	e.last = u
	e.record = e.evaluate(u)

	if u.Final {
		closed, _ := e.Finalize()
		res.Record = closed.Record
		res.Alerts = append(res.Alerts, closed.Alerts...)
		return res
	}

	res.Record = e.record
	return res
}

// Finalize закрывает текущий бар: запись становится неизменной, обновляется
// история антидребезга, окно объемов, трекер тренда и дедупликация уведомлений.
func (e *Engine) Finalize() (Result, bool) {
	if !e.inBar {
		return Result{}, false
	}
	u := e.last
	rec := e.record
	rec.Final = true

	switch rec.Classification {
	case models.Bullish:
		e.history.LastBullBar, e.history.HasBull = rec.BarIndex, true
	case models.Bearish:
		e.history.LastBearBar, e.history.HasBear = rec.BarIndex, true
	}

	e.estimator.Commit(u.Volume)

	// Закрытый бар принимает итоговый тренд; решение фильтра уже принято
	st := e.tracker.Close()
	stop := st.ActiveStop()
	rec.Trend = st.Confirmed
	rec.StopLevel = &stop

	e.prior = priorBar{close: u.Close, trailingATR: u.TrailingATR}
	e.inBar = false

	alerts := e.dedup.Evaluate(rec)
	for _, a := range alerts {
		e.log.Info("Уведомление", zap.String("tag", a.Tag), zap.String("kind", string(a.Kind)))
	}
	return Result{Record: rec, Alerts: alerts}, true
}

func (e *Engine) beginBar(u models.BarUpdate) {
	e.ordinal = e.barsSeen
	e.barsSeen++
	e.curIndex = u.Index
	e.inBar = true

	if u.SessionStart {
		e.sessionBars = 0
	}
	e.sessionBars++

	if e.ordinal >= seedBars {
		e.tracker.Open(e.prior.close, e.prior.trailingATR, u.TickSize)
	}
}

func (e *Engine) evaluate(u models.BarUpdate) models.SignalRecord {
	// Лестница стопов ведется на каждом баре, даже во время прогрева
	if e.ordinal < seedBars {
		e.tracker.Seed(u.Close, u.TickSize)
	} else if e.tracker.Observe(u.High, u.Low) {
		e.log.Debug("Разворот тренда", zap.Int("bar", u.Index), zap.Stringer("trend", e.tracker.State().Preliminary))
	}

	st := e.tracker.State()
	stop := st.ActiveStop()
	rec := models.SignalRecord{
		Symbol:    e.symbol,
		BarIndex:  u.Index,
		Time:      u.OpenTime,
		LongStop:  st.LongStop,
		ShortStop: st.ShortStop,
		StopLevel: &stop,
		Trend:     st.Confirmed,
		Volume:    u.Volume,
		Open:      u.Open,
		High:      u.High,
		Low:       u.Low,
		Close:     u.Close,
		TickSize:  u.TickSize,
	}

	if e.ordinal < e.cfg.RequiredBars() || e.sessionBars <= e.cfg.IgnoreFirstBarsOfSession {
		return rec
	}

	est := e.estimator.Estimate(e.ordinal)
	rec.ReferenceVolume = est.Reference

	verdict := e.classifier.Classify(u.Volume, est.Reference, est.StdDev)
	if verdict == spike.Indeterminate {
		return rec
	}
	rec.IsSpike = e.classifier.Detected(verdict)
	if verdict != spike.Spike {
		return rec
	}

	bull, bear := false, false
	if !math.IsNaN(u.ATR) && !math.IsInf(u.ATR, 0) {
		threshold := e.cfg.ATRMultiplier * u.ATR
		bull = u.Close > u.Open+threshold
		bear = u.Close < u.Open-threshold
	}
	if bull && bear {
		// При равенстве границ приоритет у бычьего сигнала
		bear = false
	}

	if n := e.cfg.MinBarsBetweenSignals; n > 0 {
		if bull && e.history.HasBull && u.Index-e.history.LastBullBar < n {
			bull = false
		}
		if bear && e.history.HasBear && u.Index-e.history.LastBearBar < n {
			bear = false
		}
	}

	if e.cfg.EnableTrendFilter && e.ordinal >= trendFilterMinBars {
		switch st.Confirmed {
		case models.TrendUp:
			bear = false
		case models.TrendDown:
			bull = false
		}
	}

	switch {
	case bull:
		rec.Classification = models.Bullish
		level := u.Low - markerTicks*u.TickSize
		rec.BullLevel = &level
	case bear:
		rec.Classification = models.Bearish
		level := u.High + markerTicks*u.TickSize
		rec.BearLevel = &level
	}
	return rec
}

package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/volflow/internal/analysis/volumeflow"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

// Feed источник тиков одного символа
type Feed struct {
	Symbol    string
	Secondary bool
	TickSize  float64
	// History закрытые свечи для прогрева, прогоняются до живых тиков
	History []models.Candle
	Ticks   <-chan models.Tick
}

// Restorer восстанавливает состояние дедупликации уведомлений после рестарта
type Restorer interface {
	DedupState(symbol string) (volumeflow.DedupState, bool)
}

// Config настройки анализатора
type Config struct {
	Engine    volumeflow.Config
	ATREngine string
	Session   Session
}

// Analyzer запускает каждый поток в своей горутине с собственным движком
type Analyzer struct {
	config     Config
	dispatcher *volumeflow.Dispatcher
	restorer   Restorer
	log        *zap.Logger

	mu      sync.Mutex
	streams map[string]*Stream
}

// NewAnalyzer создает анализатор. Получатели диспетчера должны быть
// безопасны для конкурентного вызова: потоки работают параллельно.
func NewAnalyzer(cfg Config, dispatcher *volumeflow.Dispatcher, restorer Restorer) *Analyzer {
	log := logger.GetLogger()
	if dispatcher == nil {
		dispatcher = volumeflow.NewDispatcher(log)
	}
	return &Analyzer{
		config:     cfg,
		dispatcher: dispatcher,
		restorer:   restorer,
		log:        log,
		streams:    make(map[string]*Stream),
	}
}

// WithLogger заменяет логгер анализатора
func (a *Analyzer) WithLogger(l *zap.Logger) *Analyzer {
	a.log = l
	return a
}

// Run обрабатывает все потоки до закрытия их каналов или отмены контекста.
// Вторичные потоки пропускаются, если их обработка выключена.
func (a *Analyzer) Run(ctx context.Context, feeds []Feed) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, feed := range feeds {
		if feed.Secondary && !a.config.Engine.ProcessSecondaryStreams {
			a.log.Info("Вторичный поток пропущен", zap.String("symbol", feed.Symbol))
			continue
		}

		stream, err := a.newStream(feed)
		if err != nil {
			return fmt.Errorf("ошибка создания потока %s: %w", feed.Symbol, err)
		}

		g.Go(func() error {
			return a.runStream(ctx, stream, feed)
		})
	}

	return g.Wait()
}

// Stream поток символа (nil, если не запущен)
func (a *Analyzer) Stream(symbol string) *Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streams[symbol]
}

func (a *Analyzer) newStream(feed Feed) (*Stream, error) {
	stream, err := NewStream(StreamConfig{
		Symbol:    feed.Symbol,
		Secondary: feed.Secondary,
		TickSize:  feed.TickSize,
		ATREngine: a.config.ATREngine,
		Session:   a.config.Session,
		Engine:    a.config.Engine,
	}, a.dispatcher, a.log)
	if err != nil {
		return nil, err
	}

	if a.restorer != nil {
		if st, ok := a.restorer.DedupState(feed.Symbol); ok {
			stream.Engine().Dedup().Restore(st)
			a.log.Info("Состояние уведомлений восстановлено",
				zap.String("symbol", feed.Symbol),
				zap.Int("last_signal_bar", st.LastSignalBar))
		}
	}

	a.mu.Lock()
	a.streams[feed.Symbol] = stream
	a.mu.Unlock()
	return stream, nil
}

func (a *Analyzer) runStream(ctx context.Context, stream *Stream, feed Feed) error {
	start := time.Now()
	for _, c := range feed.History {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream.Handle(ctx, models.Tick{Candle: c, Final: true})
	}
	if len(feed.History) > 0 {
		a.log.Debug("AGGREGATOR: Прогрев завершен",
			zap.String("symbol", feed.Symbol),
			zap.Int("bars", len(feed.History)),
			zap.Duration("elapsed", time.Since(start)))
	}

	if feed.Ticks == nil {
		stream.Flush(ctx)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-feed.Ticks:
			if !ok {
				stream.Flush(ctx)
				a.log.Info("Поток завершен", zap.String("symbol", feed.Symbol))
				return nil
			}
			stream.Handle(ctx, tick)
		}
	}
}

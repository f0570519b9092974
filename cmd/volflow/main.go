package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/alert"
	"github.com/skalibog/volflow/internal/analysis/aggregator"
	"github.com/skalibog/volflow/internal/analysis/volumeflow"
	"github.com/skalibog/volflow/internal/config"
	"github.com/skalibog/volflow/internal/exchange"
	"github.com/skalibog/volflow/internal/render"
	"github.com/skalibog/volflow/internal/storage"
	"github.com/skalibog/volflow/internal/storage/journal"
	"github.com/skalibog/volflow/internal/ui"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	replayPath := flag.String("replay", "", "CSV со свечами вместо биржи")
	noUI := flag.Bool("no-ui", false, "без терминального интерфейса")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}
	if *replayPath != "" {
		cfg.Replay.File = *replayPath
	}
	if *noUI {
		cfg.UI.Enabled = false
	}

	if err := logger.Init(logger.Options{
		File:     cfg.Log.File,
		JSONFile: cfg.Log.JSONFile,
		Level:    cfg.Log.Level,
		Console:  !cfg.UI.Enabled,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Работа завершена с ошибкой", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Работа завершена")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.GetLogger()

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	session, err := cfg.SessionBounds()
	if err != nil {
		return err
	}

	dispatcher := volumeflow.NewDispatcher(log)
	dispatcher.AddRecordSink(render.NewMarkerBook(render.NewLogCanvas(log), render.Options{
		ShowSpikeMarkers: cfg.Render.ShowSpikeMarkers,
		ShowLabels:       cfg.Render.ShowLabels,
		ShowStopLine:     cfg.Render.ShowStopLine,
		Normalize:        engineCfg.EnableVolumeNormalization,
	}))

	var sinks alert.Fanout
	if cfg.Alerts.Log {
		sinks = append(sinks, alert.NewLogSink(log))
	}
	if cfg.Alerts.Redis.Enabled {
		redisSink, err := alert.NewRedisSink(ctx, cfg.Alerts.Redis)
		if err != nil {
			return err
		}
		defer redisSink.Close()
		sinks = append(sinks, redisSink)
	}

	var restorer aggregator.Restorer
	if cfg.Alerts.Journal.Enabled {
		wal, err := journal.NewWALStore(cfg.Alerts.Journal.Dir)
		if err != nil {
			return err
		}
		defer wal.Close()
		sinks = append(sinks, alert.NewJournalSink(wal))
		restorer = wal
		log.Info("Журнал уведомлений открыт", zap.Uint64("index", wal.CurrentIndex()))
	}
	if len(sinks) > 0 {
		dispatcher.AddAlertSink(sinks)
	}

	var store storage.Storage
	if cfg.Storage.Enabled {
		influx, err := storage.NewInfluxDBStorage(cfg.Storage, cfg.Trading.Interval)
		if err != nil {
			return err
		}
		defer influx.Close()
		dispatcher.AddRecordSink(influx)
		store = influx
	}

	var dashboard *ui.TermUI
	if cfg.UI.Enabled {
		dashboard = ui.NewTermUI(cfg.UI, cfg.Log.JSONFile)
		dispatcher.AddRecordSink(dashboard)
		dispatcher.AddAlertSink(dashboard)
		if store != nil {
			primeDashboard(ctx, dashboard, store, cfg.Trading.Symbols)
		}
	}

	var feeds []aggregator.Feed
	if cfg.Replay.File != "" {
		feeds, err = replayFeeds(ctx, cfg)
	} else {
		feeds, err = liveFeeds(ctx, cfg, store)
	}
	if err != nil {
		return err
	}

	analyzer := aggregator.NewAnalyzer(aggregator.Config{
		Engine:    engineCfg,
		ATREngine: cfg.ATR.Engine,
		Session:   session,
	}, dispatcher, aggregator.NewCutoffRestorer(feeds, restorer))

	log.Info("Запуск анализатора",
		zap.Int("feeds", len(feeds)),
		zap.String("interval", cfg.Trading.Interval),
		zap.Stringer("policy", engineCfg.Policy))

	if dashboard == nil {
		if err := analyzer.Run(ctx, feeds); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	// UI в основном потоке; выход из UI останавливает потоки
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- analyzer.Run(ctx, feeds) }()

	if err := dashboard.Start(ctx); err != nil {
		return err
	}
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func replayFeeds(ctx context.Context, cfg *config.Config) ([]aggregator.Feed, error) {
	symbol := cfg.Trading.Symbols[0]
	csvFeed, err := exchange.LoadCSV(cfg.Replay.File, symbol, cfg.Trading.Interval)
	if err != nil {
		return nil, err
	}
	csvFeed.Ticks = cfg.Replay.Ticks

	logger.Info("Воспроизведение истории",
		zap.String("file", cfg.Replay.File),
		zap.String("symbol", symbol),
		zap.Int("bars", len(csvFeed.Candles())),
		zap.Bool("ticks", csvFeed.Ticks))

	return []aggregator.Feed{{
		Symbol:   symbol,
		TickSize: cfg.Replay.TickSize,
		Ticks:    csvFeed.Stream(ctx),
	}}, nil
}

func liveFeeds(ctx context.Context, cfg *config.Config, store storage.Storage) ([]aggregator.Feed, error) {
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		return nil, err
	}

	var feeds []aggregator.Feed
	add := func(symbol string, secondary bool) error {
		tickSize, err := client.TickSize(ctx, symbol)
		if err != nil {
			return err
		}
		history := loadHistory(ctx, client, store, symbol, cfg.Trading.Interval, cfg.Trading.HistoryBars)
		ticks, err := client.StreamKlines(ctx, symbol, cfg.Trading.Interval)
		if err != nil {
			return err
		}
		feeds = append(feeds, aggregator.Feed{
			Symbol:    symbol,
			Secondary: secondary,
			TickSize:  tickSize,
			History:   history,
			Ticks:     ticks,
		})
		return nil
	}

	for _, s := range cfg.Trading.Symbols {
		if err := add(s, false); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.Trading.SecondarySymbols {
		if err := add(s, true); err != nil {
			return nil, err
		}
	}
	return feeds, nil
}

// loadHistory свечи прогрева с биржи; при ошибке берется сохраненная история
func loadHistory(ctx context.Context, client *exchange.BinanceClient, store storage.Storage, symbol, interval string, limit int) []models.Candle {
	if limit <= 0 {
		return nil
	}

	candles, err := client.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		logger.Warn("Не удалось загрузить историю с биржи", zap.String("symbol", symbol), zap.Error(err))
		if store == nil {
			return nil
		}
		candles, err = store.GetCandles(ctx, symbol, interval, limit)
		if err != nil {
			logger.Warn("Не удалось загрузить историю из хранилища", zap.String("symbol", symbol), zap.Error(err))
			return nil
		}
		return candles
	}

	// Последняя свеча еще открыта, она придет из websocket
	now := time.Now()
	closed := candles[:0]
	for _, c := range candles {
		if c.CloseTime.Before(now) {
			closed = append(closed, c)
		}
	}

	if store != nil {
		if err := store.SaveCandles(ctx, closed); err != nil {
			logger.Warn("Не удалось сохранить историю", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return closed
}

// primeDashboard показывает последний сохраненный сигнал до прихода данных
func primeDashboard(ctx context.Context, dashboard *ui.TermUI, store storage.Storage, symbols []string) {
	for _, symbol := range symbols {
		history, err := store.GetSignalHistory(ctx, symbol, 1)
		if err != nil {
			logger.Warn("Не удалось загрузить историю сигналов", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if len(history) > 0 {
			dashboard.UpdateRecord(history[0])
		}
	}
}

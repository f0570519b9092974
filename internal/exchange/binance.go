package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/config"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

// reconnectDelay пауза перед переподключением websocket
const reconnectDelay = 3 * time.Second

// BinanceClient клиент фьючерсов Binance: история свечей, шаг цены и поток свечей
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	futures.UseTestnet = cfg.Testnet
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		futures: futuresClient,
	}, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseCandle(symbol, interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// TickSize шаг цены символа из exchange info
func (c *BinanceClient) TickSize(ctx context.Context, symbol string) (float64, error) {
	info, err := c.futures.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		filter := s.PriceFilter()
		if filter == nil {
			return 0, fmt.Errorf("нет PRICE_FILTER для %s", symbol)
		}
		return parseFloat(filter.TickSize)
	}
	return 0, fmt.Errorf("символ %s не найден", symbol)
}

// StreamKlines подписывается на поток свечей. Каждое событие - тик текущей
// свечи, IsFinal отмечает закрытие. Разрыв соединения ведет к переподключению
// до отмены контекста, после чего канал закрывается.
func (c *BinanceClient) StreamKlines(ctx context.Context, symbol, interval string) (<-chan models.Tick, error) {
	out := make(chan models.Tick, 64)
	log := logger.GetLogger().With(zap.String("symbol", symbol), zap.String("interval", interval))

	handler := func(event *futures.WsKlineEvent) {
		k := event.Kline
		candle, err := parseCandle(symbol, interval, k.StartTime, k.EndTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			log.Warn("Некорректная свеча в потоке", zap.Error(err))
			return
		}
		select {
		case out <- models.Tick{Candle: candle, Final: k.IsFinal}:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		log.Error("Ошибка websocket", zap.Error(err))
	}

	doneC, stopC, err := futures.WsKlineServe(symbol, interval, handler, errHandler)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписки на свечи %s: %w", symbol, err)
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
			}

			log.Warn("Поток свечей прерван, переподключение")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}

			doneC, stopC, err = futures.WsKlineServe(symbol, interval, handler, errHandler)
			if err != nil {
				log.Error("Не удалось переподключиться", zap.Error(err))
				doneC = closedChan()
				stopC = make(chan struct{})
			}
		}
	}()

	return out, nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func parseCandle(symbol, interval string, openMs, closeMs int64, open, high, low, closePrice, volume string) (models.Candle, error) {
	values := make([]float64, 5)
	for i, s := range []string{open, high, low, closePrice, volume} {
		v, err := parseFloat(s)
		if err != nil {
			return models.Candle{}, err
		}
		values[i] = v
	}

	return models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(openMs).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.UnixMilli(closeMs).UTC(),
	}, nil
}

func parseFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора числа %q: %w", s, err)
	}
	v, _ := d.Float64()
	return v, nil
}

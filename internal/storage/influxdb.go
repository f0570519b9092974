// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/config"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей
	SaveCandles(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// Методы для сигналов
	SaveSignal(ctx context.Context, rec models.SignalRecord) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]models.SignalRecord, error)

	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
	interval string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig, interval string) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ошибка соединения с InfluxDB")
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("Ошибка записи в InfluxDB", zap.Error(err))
		}
	}()

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
		interval: interval,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []models.Candle) error {
	for _, candle := range candles {
		s.writeAPI.WritePoint(candlePoint(candle))
	}

	s.writeAPI.Flush()
	return nil
}

// GetCandles получает исторические свечи, от старых к новым
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	step, err := models.IntervalDuration(interval)
	if err != nil {
		return nil, errors.Wrap(err, "ошибка запроса свечей")
	}

	// Формируем Flux-запрос
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
			|> sort(columns: ["_time"])
	`, s.bucket, measurementCandles, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "ошибка запроса свечей")
	}

	var candles []models.Candle
	for result.Next() {
		record := result.Record()
		timestamp := record.Time()

		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      floatValue(record.ValueByKey("open")),
			High:      floatValue(record.ValueByKey("high")),
			Low:       floatValue(record.ValueByKey("low")),
			Close:     floatValue(record.ValueByKey("close")),
			Volume:    floatValue(record.ValueByKey("volume")),
			CloseTime: timestamp.Add(step - time.Millisecond),
		})
	}

	// Проверяем на ошибки при обработке результатов
	if result.Err() != nil {
		return nil, errors.Wrap(result.Err(), "ошибка при обработке результатов")
	}

	return candles, nil
}

// SaveSignal сохраняет запись закрытого бара
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, rec models.SignalRecord) error {
	s.writeAPI.WritePoint(signalPoint(rec, s.interval))
	return nil
}

// HandleRecord сохраняет только закрытые бары: открытые еще будут пересчитаны
func (s *InfluxDBStorage) HandleRecord(ctx context.Context, rec models.SignalRecord) error {
	if !rec.Final {
		return nil
	}
	return s.SaveSignal(ctx, rec)
}

// GetSignalHistory получает историю сигналов (только бары с классификацией или всплеском)
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]models.SignalRecord, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> filter(fn: (r) => r.classification != 0 or r.spike == true)
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, measurementSignals, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "ошибка запроса истории сигналов")
	}

	var signals []models.SignalRecord
	for result.Next() {
		signals = append(signals, recordFromValues(symbol, result.Record().Time(), result.Record().Values()))
	}

	if result.Err() != nil {
		return nil, errors.Wrap(result.Err(), "ошибка при обработке результатов")
	}

	return signals, nil
}

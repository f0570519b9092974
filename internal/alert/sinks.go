// Package alert доставляет уведомления движка: лог, Redis pub/sub, журнал.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/analysis/volumeflow"
	"github.com/skalibog/volflow/internal/config"
	"github.com/skalibog/volflow/pkg/models"
)

// DefaultChannel канал Redis по умолчанию
const DefaultChannel = "volflow:alerts"

const pingTimeout = 5 * time.Second

// LogSink пишет уведомления в лог
type LogSink struct {
	log *zap.Logger
}

// NewLogSink создает получателя-логгер
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, a models.Alert) error {
	fields := []zap.Field{
		zap.String("symbol", a.Symbol),
		zap.String("tag", a.Tag),
		zap.Int("bar", a.BarIndex),
		zap.Float64("price", a.Price),
		zap.String("sound", a.Sound),
	}
	if a.Severity == models.SeverityLow {
		s.log.Info(a.Message, fields...)
		return nil
	}
	s.log.Warn(a.Message, fields...)
	return nil
}

// publisher часть клиента Redis, нужная получателю
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink публикует уведомления в канал Redis в JSON
type RedisSink struct {
	pub     publisher
	client  *redis.Client
	channel string
}

// NewRedisSink подключается к Redis и проверяет соединение
func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("подключение к Redis %s: %w", cfg.Addr, err)
	}

	s := newRedisSink(client, cfg.Channel)
	s.client = client
	return s, nil
}

func newRedisSink(pub publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{pub: pub, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, a models.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("сериализация уведомления: %w", err)
	}
	if err := s.pub.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("публикация в %s: %w", s.channel, err)
	}
	return nil
}

// Close закрывает соединение
func (s *RedisSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Journal хранилище отправленных уведомлений
type Journal interface {
	Save(a models.Alert) error
}

// JournalSink сохраняет уведомления, чтобы после рестарта они не повторялись
type JournalSink struct {
	journal Journal
}

// NewJournalSink создает получателя над журналом
func NewJournalSink(j Journal) *JournalSink {
	return &JournalSink{journal: j}
}

func (s *JournalSink) Notify(_ context.Context, a models.Alert) error {
	if err := s.journal.Save(a); err != nil {
		return fmt.Errorf("журнал уведомлений: %w", err)
	}
	return nil
}

// Fanout рассылает уведомление всем получателям; сбой или паника одного
// не мешает остальным
type Fanout []volumeflow.AlertSink

func (f Fanout) Notify(ctx context.Context, a models.Alert) error {
	var errs []error
	for _, s := range f {
		if err := notifySafe(ctx, s, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func notifySafe(ctx context.Context, s volumeflow.AlertSink, a models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в %T: %v", s, r)
		}
	}()
	return s.Notify(ctx, a)
}

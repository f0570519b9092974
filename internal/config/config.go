package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // часовые пояса сессий без системной базы

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/skalibog/volflow/internal/analysis/aggregator"
	"github.com/skalibog/volflow/internal/analysis/refvolume"
	"github.com/skalibog/volflow/internal/analysis/spike"
	"github.com/skalibog/volflow/internal/analysis/technical"
	"github.com/skalibog/volflow/internal/analysis/volumeflow"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

// Переменные окружения с секретами (перекрывают файл конфигурации)
const (
	EnvBinanceKey    = "BINANCE_API_KEY"
	EnvBinanceSecret = "BINANCE_API_SECRET"
	EnvInfluxToken   = "INFLUX_TOKEN"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance    BinanceConfig    `yaml:"binance"`
	Trading    TradingConfig    `yaml:"trading"`
	VolumeFlow VolumeFlowConfig `yaml:"volume_flow"`
	ATR        ATRConfig        `yaml:"atr"`
	Session    SessionConfig    `yaml:"session"`
	Storage    StorageConfig    `yaml:"storage"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Render     RenderConfig     `yaml:"render"`
	UI         UIConfig         `yaml:"ui"`
	Log        LogConfig        `yaml:"log"`
	Replay     ReplayConfig     `yaml:"replay"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит отслеживаемые символы
type TradingConfig struct {
	Symbols          []string `yaml:"symbols"`
	SecondarySymbols []string `yaml:"secondary_symbols"`
	Interval         string   `yaml:"interval"`
	HistoryBars      int      `yaml:"history_bars"`
}

// VolumeFlowConfig параметры движка сигналов
type VolumeFlowConfig struct {
	VolumeMultiplier          float64 `yaml:"volume_multiplier"`
	VolumePeriod              int     `yaml:"volume_period"`
	ATRPeriod                 int     `yaml:"atr_period"`
	ATRMultiplier             float64 `yaml:"atr_multiplier"`
	ATRTrailingPeriod         int     `yaml:"atr_trailing_period"`
	ATRTrailingMultiplier     float64 `yaml:"atr_trailing_multiplier"`
	EnableTrendFilter         bool    `yaml:"enable_trend_filter"`
	ReferenceType             string  `yaml:"volume_reference_type"`
	SpikeMode                 string  `yaml:"spike_detection_mode"`
	ZScoreThreshold           float64 `yaml:"z_score_threshold"`
	EnableVolumeNormalization bool    `yaml:"enable_volume_normalization"`
	MinBarsBetweenSignals     int     `yaml:"min_bars_between_signals"`
	IgnoreFirstBarsOfSession  int     `yaml:"ignore_first_bars_of_session"`
	ProcessSecondaryStreams   bool    `yaml:"process_secondary_streams"`
	UpdatePolicy              string  `yaml:"update_policy"`
	EnableAlerts              bool    `yaml:"enable_alerts"`
	EnableSpikeAlerts         bool    `yaml:"enable_spike_alerts"`
	AlertSound                string  `yaml:"alert_sound"`
	SpikeAlertSound           string  `yaml:"spike_alert_sound"`
}

// ATRConfig выбор движка расчета ATR
type ATRConfig struct {
	Engine string `yaml:"engine"`
}

// SessionConfig граница торговой сессии
type SessionConfig struct {
	Timezone  string `yaml:"timezone"`
	StartHour int    `yaml:"start_hour"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// AlertsConfig получатели уведомлений
type AlertsConfig struct {
	Log     bool          `yaml:"log"`
	Redis   RedisConfig   `yaml:"redis"`
	Journal JournalConfig `yaml:"journal"`
}

// RedisConfig публикация уведомлений в Redis pub/sub
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// JournalConfig журнал отправленных уведомлений
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// RenderConfig настройки маркеров
type RenderConfig struct {
	ShowSpikeMarkers bool `yaml:"show_spike_markers"`
	ShowLabels       bool `yaml:"show_labels"`
	ShowStopLine     bool `yaml:"show_stop_line"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
	MaxAlerts   int  `yaml:"max_alerts"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	JSONFile string `yaml:"json_file"`
}

// ReplayConfig воспроизведение истории из CSV вместо биржи
type ReplayConfig struct {
	File string `yaml:"file"`
	// TickSize шаг цены символа; на бирже берется из exchangeInfo
	TickSize float64 `yaml:"tick_size"`
	Ticks    bool    `yaml:"ticks"`
}

// Default конфигурация по умолчанию
func Default() Config {
	vf := volumeflow.DefaultConfig()
	return Config{
		Trading: TradingConfig{
			Interval:    "1m",
			HistoryBars: 500,
		},
		VolumeFlow: VolumeFlowConfig{
			VolumeMultiplier:          vf.VolumeMultiplier,
			VolumePeriod:              vf.VolumePeriod,
			ATRPeriod:                 vf.ATRPeriod,
			ATRMultiplier:             vf.ATRMultiplier,
			ATRTrailingPeriod:         vf.ATRTrailingPeriod,
			ATRTrailingMultiplier:     vf.ATRTrailingMultiplier,
			EnableTrendFilter:         vf.EnableTrendFilter,
			ReferenceType:             vf.ReferenceType.String(),
			SpikeMode:                 vf.SpikeMode.String(),
			ZScoreThreshold:           vf.ZScoreThreshold,
			EnableVolumeNormalization: vf.EnableVolumeNormalization,
			MinBarsBetweenSignals:     vf.MinBarsBetweenSignals,
			IgnoreFirstBarsOfSession:  vf.IgnoreFirstBarsOfSession,
			ProcessSecondaryStreams:   vf.ProcessSecondaryStreams,
			UpdatePolicy:              vf.Policy.String(),
			EnableAlerts:              true,
			AlertSound:                vf.AlertSound,
			SpikeAlertSound:           vf.SpikeAlertSound,
		},
		ATR:     ATRConfig{Engine: technical.EngineTalib},
		Session: SessionConfig{Timezone: "UTC"},
		Storage: StorageConfig{Type: "influxdb"},
		Alerts: AlertsConfig{
			Log:   true,
			Redis: RedisConfig{Addr: "localhost:6379", Channel: "volflow:alerts"},
		},
		Render: RenderConfig{ShowSpikeMarkers: true, ShowLabels: true, ShowStopLine: true},
		UI:     UIConfig{RefreshRate: 500, MaxAlerts: 10},
		Log: LogConfig{
			Level:    "info",
			File:     "volflow.log",
			JSONFile: "volflow.json.log",
		},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию,
// затем применяет секреты из окружения и .env рабочего каталога.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация %s: %w", path, err)
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path))
	logger.Info("Загружена конфигурация", zap.Strings("Symbols", config.Trading.Symbols))
	return config, nil
}

// Parse разбирает YAML поверх значений по умолчанию
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}
	return &config, nil
}

// loadDotEnv загружает .env, если он есть. Уже заданные переменные не перекрываются.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("ошибка чтения %s: %w", path, err)
}

func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&c.Binance.APIKey, EnvBinanceKey)
	overlay(&c.Binance.APISecret, EnvBinanceSecret)
	overlay(&c.Storage.Token, EnvInfluxToken)
	overlay(&c.Alerts.Redis.Password, EnvRedisPassword)
}

// Engine параметры движка сигналов
func (c *Config) Engine() (volumeflow.Config, error) {
	vf := c.VolumeFlow

	kind, err := refvolume.ParseKind(vf.ReferenceType)
	if err != nil {
		return volumeflow.Config{}, err
	}
	mode, err := spike.ParseMode(vf.SpikeMode)
	if err != nil {
		return volumeflow.Config{}, err
	}
	policy, err := ParsePolicy(vf.UpdatePolicy)
	if err != nil {
		return volumeflow.Config{}, err
	}

	return volumeflow.Config{
		VolumeMultiplier:          vf.VolumeMultiplier,
		VolumePeriod:              vf.VolumePeriod,
		ATRPeriod:                 vf.ATRPeriod,
		ATRMultiplier:             vf.ATRMultiplier,
		ATRTrailingPeriod:         vf.ATRTrailingPeriod,
		ATRTrailingMultiplier:     vf.ATRTrailingMultiplier,
		EnableTrendFilter:         vf.EnableTrendFilter,
		ReferenceType:             kind,
		SpikeMode:                 mode,
		ZScoreThreshold:           vf.ZScoreThreshold,
		EnableVolumeNormalization: vf.EnableVolumeNormalization,
		MinBarsBetweenSignals:     vf.MinBarsBetweenSignals,
		IgnoreFirstBarsOfSession:  vf.IgnoreFirstBarsOfSession,
		ProcessSecondaryStreams:   vf.ProcessSecondaryStreams,
		Policy:                    policy,
		EnableAlerts:              vf.EnableAlerts,
		EnableSpikeAlerts:         vf.EnableSpikeAlerts,
		AlertSound:                vf.AlertSound,
		SpikeAlertSound:           vf.SpikeAlertSound,
	}, nil
}

// SessionBounds граница сессии в часовом поясе конфигурации
func (c *Config) SessionBounds() (aggregator.Session, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return aggregator.Session{}, fmt.Errorf("неизвестный часовой пояс %q: %w", c.Session.Timezone, err)
	}
	return aggregator.Session{Location: loc, StartHour: c.Session.StartHour}, nil
}

// ParsePolicy разбирает политику обновления баров
func ParsePolicy(s string) (models.UpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on_bar_close", "close":
		return models.OnBarClose, nil
	case "on_each_tick", "tick":
		return models.OnEachTick, nil
	default:
		return 0, fmt.Errorf("неизвестная политика обновления: %q", s)
	}
}

// Validate проверяет конфигурацию и возвращает все нарушения сразу
func (c *Config) Validate() error {
	var errs []error

	engine, err := c.Engine()
	if err != nil {
		errs = append(errs, err)
	} else if err := engine.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Trading.Symbols) == 0 && c.Replay.File == "" {
		errs = append(errs, errors.New("trading.symbols не задан"))
	}
	if c.Replay.File != "" && len(c.Trading.Symbols) != 1 {
		errs = append(errs, errors.New("replay.file требует ровно один символ в trading.symbols"))
	}
	if c.Replay.TickSize < 0 {
		errs = append(errs, fmt.Errorf("replay.tick_size не может быть отрицательным, получено %v", c.Replay.TickSize))
	}
	if c.Trading.HistoryBars < 0 || c.Trading.HistoryBars > 1500 {
		errs = append(errs, fmt.Errorf("trading.history_bars должен быть в [0, 1500], получено %d", c.Trading.HistoryBars))
	}
	if c.Session.StartHour < 0 || c.Session.StartHour > 23 {
		errs = append(errs, fmt.Errorf("session.start_hour должен быть в [0, 23], получено %d", c.Session.StartHour))
	}
	if _, err := c.SessionBounds(); err != nil {
		errs = append(errs, err)
	}
	if _, err := technical.NewATR(c.ATR.Engine, 1); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.Enabled && (c.Storage.URL == "" || c.Storage.Bucket == "" || c.Storage.Organization == "") {
		errs = append(errs, errors.New("storage: url, organization и bucket обязательны"))
	}
	if c.Alerts.Redis.Enabled && (c.Alerts.Redis.Addr == "" || c.Alerts.Redis.Channel == "") {
		errs = append(errs, errors.New("alerts.redis: addr и channel обязательны"))
	}

	return errors.Join(errs...)
}

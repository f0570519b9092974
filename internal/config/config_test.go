package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/internal/analysis/refvolume"
	"github.com/skalibog/volflow/internal/analysis/spike"
	"github.com/skalibog/volflow/pkg/models"
)

const sampleYAML = `
binance:
  api_key: from-file
trading:
  symbols: [BTCUSDT, ETHUSDT]
  secondary_symbols: [SOLUSDT]
  interval: 5m
volume_flow:
  volume_period: 30
  volume_reference_type: trimmed_mean
  spike_detection_mode: z_score
  z_score_threshold: 3
  update_policy: on_each_tick
  min_bars_between_signals: 4
session:
  timezone: America/New_York
  start_hour: 9
`

func TestParse_KeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 500, cfg.Trading.HistoryBars)
	assert.Equal(t, 1.5, cfg.VolumeFlow.VolumeMultiplier)
	assert.Equal(t, 3.5, cfg.VolumeFlow.ATRTrailingMultiplier)
	assert.True(t, cfg.VolumeFlow.EnableTrendFilter)

	engine, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 30, engine.VolumePeriod)
	assert.Equal(t, refvolume.TrimmedMean, engine.ReferenceType)
	assert.Equal(t, spike.ZScore, engine.SpikeMode)
	assert.Equal(t, models.OnEachTick, engine.Policy)
	assert.Equal(t, 4, engine.MinBarsBetweenSignals)
	assert.Equal(t, "Alert2.wav", engine.SpikeAlertSound)

	require.NoError(t, cfg.Validate())

	session, err := cfg.SessionBounds()
	require.NoError(t, err)
	assert.Equal(t, 9, session.StartHour)
	assert.Equal(t, "America/New_York", session.Location.String())
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	cfg := Default()
	cfg.VolumeFlow.VolumeMultiplier = 0.5
	cfg.VolumeFlow.ZScoreThreshold = 9
	cfg.Session.StartHour = 30
	cfg.Alerts.Redis.Enabled = true
	cfg.Alerts.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "volume_multiplier")
	assert.Contains(t, msg, "z_score_threshold")
	assert.Contains(t, msg, "session.start_hour")
	assert.Contains(t, msg, "alerts.redis")
	assert.Contains(t, msg, "trading.symbols")
}

func TestEngine_UnknownEnums(t *testing.T) {
	cfg := Default()
	cfg.VolumeFlow.ReferenceType = "vwap"
	_, err := cfg.Engine()
	assert.Error(t, err)

	cfg = Default()
	cfg.VolumeFlow.UpdatePolicy = "sometimes"
	_, err = cfg.Engine()
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, models.OnBarClose, p)

	p, err = ParsePolicy(" Tick ")
	require.NoError(t, err)
	assert.Equal(t, models.OnEachTick, p)
}

func TestLoad_EnvOverlaysSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	t.Setenv(EnvBinanceKey, "from-env")
	t.Setenv(EnvInfluxToken, "influx-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Binance.APIKey)
	assert.Equal(t, "influx-token", cfg.Storage.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trading:\n  symbols: [BTCUSDT]\nvolume_flow:\n  volume_period: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume_period")
}

func TestDefault_IsValidWithSymbols(t *testing.T) {
	cfg := Default()
	cfg.Trading.Symbols = []string{"BTCUSDT"}
	require.NoError(t, cfg.Validate())

	_, err := time.LoadLocation(cfg.Session.Timezone)
	assert.NoError(t, err)
}

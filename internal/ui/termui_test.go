package ui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/internal/config"
	"github.com/skalibog/volflow/pkg/models"
)

func TestFormatLogLine(t *testing.T) {
	line := `{"level":"\u001b[34mINFO\u001b[0m","ts":"01.03.2024 - 10:15:30.000000000Z","caller":"x.go:1","msg":"Уведомление","tag":"VolumeFlow_Normal_Bull_4","symbol":"BTCUSDT"}`
	assert.Equal(t,
		"[10:15:30] [INFO] Уведомление (symbol: BTCUSDT) (tag: VolumeFlow_Normal_Bull_4)",
		formatLogLine(line))

	assert.Equal(t, "plain text", formatLogLine("plain text"))
}

func TestLoadLogsFromFile_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json.log")
	var b strings.Builder
	for i := 0; i < maxLogLines+5; i++ {
		b.WriteString(`{"level":"INFO","msg":"line"}` + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	ui := NewTermUI(config.UIConfig{}, path)
	require.NoError(t, ui.loadLogsFromFile())
	assert.Len(t, ui.logs, maxLogLines)

	missing := NewTermUI(config.UIConfig{}, filepath.Join(t.TempDir(), "absent.log"))
	assert.NoError(t, missing.loadLogsFromFile())
}

func TestTermUI_RecordsAndAlerts(t *testing.T) {
	ui := NewTermUI(config.UIConfig{MaxAlerts: 2}, "")
	ctx := context.Background()

	require.NoError(t, ui.HandleRecord(ctx, models.SignalRecord{Symbol: "ETHUSDT", BarIndex: 3}))
	require.NoError(t, ui.HandleRecord(ctx, models.SignalRecord{Symbol: "BTCUSDT", BarIndex: 7}))
	require.NoError(t, ui.HandleRecord(ctx, models.SignalRecord{Symbol: "BTCUSDT", BarIndex: 8}))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, sortedSymbols(ui.records))
	assert.Equal(t, 8, ui.records["BTCUSDT"].BarIndex)

	for i := 1; i <= 3; i++ {
		require.NoError(t, ui.Notify(ctx, models.Alert{Symbol: "BTCUSDT", BarIndex: i}))
	}
	require.Len(t, ui.alerts, 2)
	assert.Equal(t, 2, ui.alerts[0].BarIndex)
	assert.Equal(t, 3, ui.alerts[1].BarIndex)
}

func TestFormatRecordLine(t *testing.T) {
	stop := 99.5
	line := formatRecordLine(models.SignalRecord{
		Symbol:          "BTCUSDT",
		BarIndex:        12,
		Classification:  models.Bullish,
		StopLevel:       &stop,
		Volume:          151,
		ReferenceVolume: 100,
		Close:           101.25,
		TickSize:        0.5,
		Final:           true,
	})
	assert.Contains(t, line, "BTCUSDT #12 [закрыт]")
	assert.Contains(t, line, "Vol: 151  (x1.51)")
	assert.Contains(t, line, "стоп: 99.50")
	assert.Contains(t, line, "цена: 101.25")
}

func TestFormatAlertLine(t *testing.T) {
	line := formatAlertLine(models.Alert{
		Symbol:    "ETHUSDT",
		Message:   "VolumeFlow Normal Bearish Signal",
		Price:     3150.5,
		Timestamp: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC),
	})
	assert.Contains(t, line, "09:05 ETHUSDT")
	assert.Contains(t, line, "VolumeFlow Normal Bearish Signal")
	assert.Contains(t, line, "@ 3150.50")
}

func TestLogRows(t *testing.T) {
	assert.Equal(t, 6, logRows(20))
	assert.Equal(t, 20, logRows(50))
}

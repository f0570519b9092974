package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/volflow/pkg/models"
)

func alert(symbol string, bar int, ts time.Time) models.Alert {
	return models.Alert{
		ID:             "id",
		Tag:            "VolumeFlow_Normal_Bull",
		Symbol:         symbol,
		BarIndex:       bar,
		Kind:           models.AlertNormal,
		Classification: models.Bullish,
		Severity:       models.SeverityMedium,
		Timestamp:      ts,
	}
}

func TestWALStore_LastAlertsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(alert("BTCUSDT", 1, base)))
	require.NoError(t, store.Save(alert("BTCUSDT", 5, base.Add(5*time.Minute))))
	require.NoError(t, store.Save(alert("ETHUSDT", 2, base.Add(2*time.Minute))))
	assert.Positive(t, store.CurrentIndex())
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	last, err := reopened.LastAlerts()
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 5, last["BTCUSDT"].BarIndex)
	assert.Equal(t, 2, last["ETHUSDT"].BarIndex)

	st, ok := reopened.DedupState("BTCUSDT")
	require.True(t, ok)
	assert.True(t, st.Through.Equal(base.Add(5*time.Minute)))
	assert.Equal(t, -1, st.LastSignalBar)

	_, ok = reopened.DedupState("SOLUSDT")
	assert.False(t, ok)
}

func TestWALStore_RejectsAlertWithoutSymbol(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Save(models.Alert{}))
}

func TestWALStore_NilStore(t *testing.T) {
	var store *WALStore
	assert.Error(t, store.Save(alert("BTCUSDT", 1, time.Now())))
	assert.Equal(t, uint64(0), store.CurrentIndex())
	_, err := store.LastAlerts()
	assert.Error(t, err)
}

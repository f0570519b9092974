// Package journal хранит отправленные уведомления в WAL, чтобы после рестарта
// прогон истории не повторял их.
package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/skalibog/volflow/internal/analysis/volumeflow"
	"github.com/skalibog/volflow/pkg/models"
)

const (
	DefaultDir   = "./wal/alerts"
	segmentLimit = 100
	maxSegments  = 10

	alertKeyPrefix = "alert_"
)

// WALStore журнал уведомлений
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore открывает журнал в каталоге dir
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "alert_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init alert WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save записывает уведомление
func (s *WALStore) Save(a models.Alert) error {
	if s == nil || s.wal == nil {
		return errors.New("alert journal is not initialized")
	}
	if a.Symbol == "" {
		return errors.New("alert symbol is required")
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(nextIndex, alertKeyPrefix+a.Symbol, payload), "write alert")
}

// LastAlerts последнее уведомление по каждому символу
func (s *WALStore) LastAlerts() (map[string]models.Alert, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("alert journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	last := make(map[string]models.Alert)
	current := s.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, alertKeyPrefix) {
			// Сегмент мог быть удален ротацией
			continue
		}

		var a models.Alert
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, errors.Wrap(err, "decode alert")
		}
		if prev, ok := last[a.Symbol]; !ok || !a.Timestamp.Before(prev.Timestamp) {
			last[a.Symbol] = a
		}
	}

	return last, nil
}

// DedupState состояние дедупликации для символа: уведомления по барам
// не позже последнего записанного не повторяются.
func (s *WALStore) DedupState(symbol string) (volumeflow.DedupState, bool) {
	last, err := s.LastAlerts()
	if err != nil {
		return volumeflow.DedupState{}, false
	}
	a, ok := last[symbol]
	if !ok {
		return volumeflow.DedupState{}, false
	}
	return volumeflow.DedupState{
		LastSignalBar: -1,
		LastSpikeBar:  -1,
		Through:       a.Timestamp,
	}, true
}

// CurrentIndex последний индекс журнала
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close закрывает журнал
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("alert journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

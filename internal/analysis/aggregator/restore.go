package aggregator

import (
	"time"

	"github.com/skalibog/volflow/internal/analysis/volumeflow"
)

// CutoffRestorer глушит уведомления по барам истории прогрева: они уже
// случились до запуска. Если есть журнал, берется более поздняя граница.
type CutoffRestorer struct {
	next    Restorer
	through map[string]time.Time
}

// NewCutoffRestorer строит границы по последней свече истории каждого потока
func NewCutoffRestorer(feeds []Feed, next Restorer) *CutoffRestorer {
	through := make(map[string]time.Time, len(feeds))
	for _, f := range feeds {
		if n := len(f.History); n > 0 {
			through[f.Symbol] = f.History[n-1].OpenTime
		}
	}
	return &CutoffRestorer{next: next, through: through}
}

// DedupState реализует Restorer
func (r *CutoffRestorer) DedupState(symbol string) (volumeflow.DedupState, bool) {
	var (
		st volumeflow.DedupState
		ok bool
	)
	if r.next != nil {
		st, ok = r.next.DedupState(symbol)
	}

	cutoff, has := r.through[symbol]
	if !has {
		return st, ok
	}
	if !ok {
		return volumeflow.DedupState{LastSignalBar: -1, LastSpikeBar: -1, Through: cutoff}, true
	}
	if cutoff.After(st.Through) {
		st.Through = cutoff
	}
	return st, true
}

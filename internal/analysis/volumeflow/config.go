package volumeflow

import (
	"errors"
	"fmt"

	"github.com/skalibog/volflow/internal/analysis/refvolume"
	"github.com/skalibog/volflow/internal/analysis/spike"
	"github.com/skalibog/volflow/pkg/models"
)

// Config параметры движка сигналов
type Config struct {
	VolumeMultiplier          float64
	VolumePeriod              int
	ATRPeriod                 int
	ATRMultiplier             float64
	ATRTrailingPeriod         int
	ATRTrailingMultiplier     float64
	EnableTrendFilter         bool
	ReferenceType             refvolume.Kind
	SpikeMode                 spike.Mode
	ZScoreThreshold           float64
	EnableVolumeNormalization bool
	MinBarsBetweenSignals     int
	IgnoreFirstBarsOfSession  int
	ProcessSecondaryStreams   bool
	Policy                    models.UpdatePolicy

	EnableAlerts      bool
	EnableSpikeAlerts bool
	AlertSound        string
	SpikeAlertSound   string
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		VolumeMultiplier:      1.5,
		VolumePeriod:          20,
		ATRPeriod:             14,
		ATRMultiplier:         0.75,
		ATRTrailingPeriod:     20,
		ATRTrailingMultiplier: 3.5,
		EnableTrendFilter:     true,
		ReferenceType:         refvolume.SimpleAverage,
		SpikeMode:             spike.Multiplier,
		ZScoreThreshold:       2.5,
		Policy:                models.OnBarClose,
		AlertSound:            "Alert1.wav",
		SpikeAlertSound:       "Alert2.wav",
	}
}

// RequiredBars число баров прогрева
func (c Config) RequiredBars() int {
	return max(c.VolumePeriod, c.ATRPeriod, c.ATRTrailingPeriod)
}

// Validate проверяет все ограничения и возвращает их вместе
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.VolumeMultiplier >= 1.0, "volume_multiplier должен быть >= 1.0, получено %v", c.VolumeMultiplier)
	check(c.VolumePeriod >= 1, "volume_period должен быть >= 1, получено %d", c.VolumePeriod)
	check(c.ATRPeriod >= 1, "atr_period должен быть >= 1, получено %d", c.ATRPeriod)
	check(c.ATRMultiplier >= 0.1, "atr_multiplier должен быть >= 0.1, получено %v", c.ATRMultiplier)
	check(c.ATRTrailingPeriod >= 1, "atr_trailing_period должен быть >= 1, получено %d", c.ATRTrailingPeriod)
	check(c.ATRTrailingMultiplier >= 0.1, "atr_trailing_multiplier должен быть >= 0.1, получено %v", c.ATRTrailingMultiplier)
	check(c.ReferenceType.Valid(), "неизвестный volume_reference_type: %d", int(c.ReferenceType))
	check(c.SpikeMode.Valid(), "неизвестный spike_detection_mode: %d", int(c.SpikeMode))
	check(c.ZScoreThreshold >= 1.0 && c.ZScoreThreshold <= 5.0, "z_score_threshold должен быть в [1, 5], получено %v", c.ZScoreThreshold)
	check(c.MinBarsBetweenSignals >= 0 && c.MinBarsBetweenSignals <= 20, "min_bars_between_signals должен быть в [0, 20], получено %d", c.MinBarsBetweenSignals)
	check(c.IgnoreFirstBarsOfSession >= 0 && c.IgnoreFirstBarsOfSession <= 100, "ignore_first_bars_of_session должен быть в [0, 100], получено %d", c.IgnoreFirstBarsOfSession)
	check(c.Policy == models.OnBarClose || c.Policy == models.OnEachTick, "неизвестная политика обновления: %d", int(c.Policy))

	return errors.Join(errs...)
}

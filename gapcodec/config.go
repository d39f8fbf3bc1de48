package gapcodec

import (
	"errors"
	"fmt"
)

// Config holds the encoder side tuning constants. Nothing in it is needed to decode:
// every decision the encoder takes is recorded in the stream.
type Config struct {
	// WDRWindowSizes are the window sizes (in deltas) tried by window delta-range
	// compression, the one with the largest projected saving wins.
	WDRWindowSizes []int `yaml:"wdr_window_sizes"`
	// WDRMinWindows is the minimum number of windows whose local minimum delta must
	// exceed the global one for WDR to be considered.
	WDRMinWindows int `yaml:"wdr_min_windows"`
	// WDRMinSavings is the projected saving, in bits, WDR must bring over the
	// global minimum path, side stream included.
	WDRMinSavings int `yaml:"wdr_min_savings"`
	// MinDeltaSavings is the projected saving, in bits, subtracting the global
	// minimum delta must bring, its own Gamma code included.
	MinDeltaSavings int `yaml:"min_delta_savings"`
	// MinMaxMinSize: arrays not longer than this never store explicit min/max.
	MinMaxMinSize int `yaml:"minmax_min_size"`
	// MinMaxWaste is the unused range below the first and above the last value
	// (after minimum subtraction) from which min/max are stored explicitly.
	MinMaxWaste int `yaml:"minmax_waste"`
	// Trace logs every encode decision at trace level.
	Trace bool `yaml:"trace"`
}

func DefaultConfig() Config {
	return Config{
		WDRWindowSizes:  []int{16, 32, 64, 128},
		WDRMinWindows:   2,
		WDRMinSavings:   32,
		MinDeltaSavings: 8,
		MinMaxMinSize:   10,
		MinMaxWaste:     2048,
	}
}

var ErrBadConfig = errors.New("gapcodec: bad config")

func (cfg Config) Validate() error {
	for _, w := range cfg.WDRWindowSizes {
		if w < 1 || w >= maxArrayLen {
			return fmt.Errorf("%w: window size %d out of [1,%d)", ErrBadConfig, w, maxArrayLen)
		}
	}
	if cfg.WDRMinWindows < 1 {
		return fmt.Errorf("%w: wdr_min_windows=%d, must be positive", ErrBadConfig, cfg.WDRMinWindows)
	}
	if cfg.WDRMinSavings < 0 || cfg.MinDeltaSavings < 0 || cfg.MinMaxWaste < 0 {
		return fmt.Errorf("%w: savings and waste thresholds must not be negative", ErrBadConfig)
	}
	if cfg.MinMaxMinSize < 2 {
		return fmt.Errorf("%w: minmax_min_size=%d, must be at least 2", ErrBadConfig, cfg.MinMaxMinSize)
	}
	return nil
}

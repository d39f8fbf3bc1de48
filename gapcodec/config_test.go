package gapcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(cfg *Config)
	}{
		{"zero window", func(cfg *Config) { cfg.WDRWindowSizes = []int{16, 0} }},
		{"huge window", func(cfg *Config) { cfg.WDRWindowSizes = []int{1 << 16} }},
		{"no windows needed", func(cfg *Config) { cfg.WDRMinWindows = 0 }},
		{"negative savings", func(cfg *Config) { cfg.MinDeltaSavings = -1 }},
		{"tiny minmax", func(cfg *Config) { cfg.MinMaxMinSize = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrBadConfig)
			_, err := New(cfg, nil)
			require.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func TestConfigYAML(t *testing.T) {
	cfg := DefaultConfig()
	src := []byte(`
wdr_window_sizes: [8, 24]
minmax_waste: 100
trace: true
`)
	require.NoError(t, yaml.Unmarshal(src, &cfg))
	require.Equal(t, []int{8, 24}, cfg.WDRWindowSizes)
	require.Equal(t, 100, cfg.MinMaxWaste)
	require.True(t, cfg.Trace)
	require.Equal(t, DefaultConfig().MinMaxMinSize, cfg.MinMaxMinSize)
	require.NoError(t, cfg.Validate())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	require.Equal(t, cfg, back)
}

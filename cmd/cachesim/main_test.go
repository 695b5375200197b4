package main

import (
	"testing"

	"github.com/cachesim/cachesim/internal/config"
)

func TestApplyFlagOverrides_OnlyOverridesSetFields(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Cache.Capacity = "4GB"
	cfg.Driver.WarmupSeconds = 10

	applyFlagOverrides(cfg, flagOverrides{
		policy:       "lfu",
		warmup:       -1, // unset: sentinel for "flag not passed"
		reportIv:     -1,
		samplerRatio: -1,
	})

	if cfg.Cache.Policy != "lfu" {
		t.Errorf("Cache.Policy = %q, want lfu", cfg.Cache.Policy)
	}
	if cfg.Cache.Capacity != "4GB" {
		t.Errorf("Cache.Capacity = %q, want unchanged 4GB", cfg.Cache.Capacity)
	}
	if cfg.Driver.WarmupSeconds != 10 {
		t.Errorf("Driver.WarmupSeconds = %v, want unchanged 10", cfg.Driver.WarmupSeconds)
	}
}

func TestApplyFlagOverrides_WarmupZeroIsHonored(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Driver.WarmupSeconds = 10

	applyFlagOverrides(cfg, flagOverrides{warmup: 0, reportIv: -1, samplerRatio: -1})

	if cfg.Driver.WarmupSeconds != 0 {
		t.Errorf("Driver.WarmupSeconds = %v, want 0 (explicit override)", cfg.Driver.WarmupSeconds)
	}
}

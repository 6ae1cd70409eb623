package config

import (
	"fmt"
	"time"
)

// SyncConfig holds scheduled re-sync configuration
type SyncConfig struct {
	// TickInterval is how often due repositories are evaluated.
	TickInterval Duration `toml:"tick_interval"`
	// MaxStartsPerTick caps how many re-syncs one tick may start. Zero means no cap.
	MaxStartsPerTick int `toml:"max_starts_per_tick"`
	// DefaultIntervalMinutes applies to imports that do not set an interval.
	DefaultIntervalMinutes int `toml:"default_interval_minutes"`
}

// MaxTickInterval is the floor the scheduler never exceeds between evaluations.
const MaxTickInterval = time.Minute

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		TickInterval:           Duration(MaxTickInterval),
		MaxStartsPerTick:       10,
		DefaultIntervalMinutes: 60,
	}
}

// Validate checks the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.TickInterval.Duration() <= 0 {
		return fmt.Errorf("sync tick interval must be positive")
	}
	if c.DefaultIntervalMinutes <= 0 {
		return fmt.Errorf("default sync interval must be a positive number of minutes")
	}
	if c.MaxStartsPerTick < 0 {
		return fmt.Errorf("max starts per tick cannot be negative")
	}
	return nil
}

// EffectiveTickInterval clamps the tick to MaxTickInterval.
func (c *SyncConfig) EffectiveTickInterval() time.Duration {
	d := c.TickInterval.Duration()
	if d <= 0 || d > MaxTickInterval {
		return MaxTickInterval
	}
	return d
}

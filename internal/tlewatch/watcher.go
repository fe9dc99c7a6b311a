// Package tlewatch implements the TLE Freshness Watcher: staleness counts
// over the satellite fleet and graduated alarms. It is invoked after each
// external TLE ingest cycle (ingest lives in a separate service); the
// entrypoint also schedules it periodically via robfig/cron.
package tlewatch

import (
	"context"
	"time"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
)

// Config controls staleness thresholds.
type Config struct {
	StaleThresholdHours int
}

// Stats is the watcher's per-invocation output.
type Stats struct {
	Total          int
	WithTLE        int
	Fresh          int
	Stale          int
	NeverUpdated   int
}

// Watcher is the TLE Freshness Watcher.
type Watcher struct {
	cfg    Config
	fleet  *satellite.Fleet
	alarms *alarmbus.Bus
	clk    clock.Clock
}

// New builds a Watcher.
func New(cfg Config, fleet *satellite.Fleet, alarms *alarmbus.Bus, clk clock.Clock) *Watcher {
	if cfg.StaleThresholdHours <= 0 {
		cfg.StaleThresholdHours = 24
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Watcher{cfg: cfg, fleet: fleet, alarms: alarms, clk: clk}
}

// Name identifies this component for the supervising entrypoint.
func (w *Watcher) Name() string { return "tle-watcher" }

// Start/Stop/Ready: the watcher holds no background loop of its own; it is
// invoked by the entrypoint's cron schedule via Check.
func (w *Watcher) Start(_ context.Context) error { return nil }
func (w *Watcher) Stop(_ context.Context) error  { return nil }
func (w *Watcher) Ready(_ context.Context) error { return nil }

// Check computes staleness statistics and raises graduated alarms: any
// stale satellite raises a warning, a stale fraction above one half raises
// a major alarm on top.
func (w *Watcher) Check(ctx context.Context) Stats {
	threshold := time.Duration(w.cfg.StaleThresholdHours) * time.Hour
	now := w.clk.Now()

	states := w.fleet.ListStates(ctx)
	stats := Stats{Total: len(states)}
	for _, s := range states {
		if s.TLE == nil {
			stats.NeverUpdated++
			continue
		}
		stats.WithTLE++
		if now.Sub(s.TLE.UpdatedAt) < threshold {
			stats.Fresh++
		} else {
			stats.Stale++
		}
	}

	if stats.Stale > 0 {
		w.alarms.Raise(ctx, "stale_tle_data", store.SeverityWarning, "one or more satellites have stale TLE data", "tle-watcher",
			values.FromAny(map[string]any{"stale_count": stats.Stale, "total": stats.Total}))
	}
	if stats.Total > 0 && float64(stats.Stale)/float64(stats.Total) > 0.5 {
		w.alarms.Raise(ctx, "critical_tle_staleness", store.SeverityMajor, "more than half of tracked satellites have stale TLE data", "tle-watcher",
			values.FromAny(map[string]any{"stale_count": stats.Stale, "total": stats.Total}))
	}

	return stats
}

// Package supervisor starts and stops the StellarOps core components in
// dependency order: Clock -> Event Bus -> Alarm Bus -> Satellite Fleet ->
// Breakers -> Orbital Client -> Mission Scheduler -> Mission Executor ->
// Conjunction Detector -> COA Planner -> COA Executor -> TLE Watcher.
// Components start in registration order, roll back on failure, and stop in
// reverse order.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/stellarops/core/pkg/logger"
)

// Component is the lifecycle contract every long-lived StellarOps component
// implements.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready(ctx context.Context) error
}

// Supervisor starts components in registration order and stops them in
// reverse order, rolling back already-started components if one fails.
type Supervisor struct {
	log        *logger.Logger
	components []Component
	started    []Component
}

// New builds an empty Supervisor.
func New(log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NewDefault("supervisor")
	}
	return &Supervisor{log: log}
}

// Register appends a component to the startup order. Call in dependency
// order.
func (s *Supervisor) Register(c Component) {
	s.components = append(s.components, c)
}

// Start starts every registered component in order. On failure it stops
// every component already started, in reverse order, and returns the error.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, c := range s.components {
		startedAt := time.Now()
		if err := c.Start(ctx); err != nil {
			s.log.WithField("component", c.Name()).WithError(err).Error("component failed to start")
			s.stopReverse(ctx, s.started)
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		s.started = append(s.started, c)
		s.log.WithFields(map[string]interface{}{
			"component": c.Name(),
			"elapsed_ms": time.Since(startedAt).Milliseconds(),
		}).Info("component started")
	}
	return nil
}

// Stop stops every started component in reverse order. Stop errors are
// logged but do not halt the shutdown sequence, so every component gets a
// chance to release its resources.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopReverse(ctx, s.started)
	s.started = nil
	return nil
}

func (s *Supervisor) stopReverse(ctx context.Context, components []Component) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(ctx); err != nil {
			s.log.WithField("component", c.Name()).WithError(err).Warn("component failed to stop cleanly")
		}
	}
}

// Readiness reports each component's Ready() result, keyed by name.
func (s *Supervisor) Readiness(ctx context.Context) map[string]error {
	out := make(map[string]error, len(s.components))
	for _, c := range s.components {
		out[c.Name()] = c.Ready(ctx)
	}
	return out
}

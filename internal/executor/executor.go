// Package executor implements the Mission Executor: each admitted mission
// runs in an isolated worker goroutine, transitioning
// scheduled->running->{completed,failed}; a failed attempt with retries
// left goes back to scheduled. The executor never cancels a mission. Retries use
// github.com/cenkalti/backoff/v4's exponential backoff.
package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
	"github.com/stellarops/core/pkg/logger"
)

// Runner executes one mission's payload against the satellite fleet (and,
// for downlink/imaging/orbit_adjust, any external collaborator). Runner is
// supplied by the caller so COA-driven missions (pre-burn, burn, verify)
// and ordinary missions share the same executor.
type Runner interface {
	Run(ctx context.Context, m store.Mission) error
}

// CompletionHandler is notified of terminal mission outcomes; the COA
// Executor implements this to drive its own state machine.
type CompletionHandler interface {
	HandleMissionComplete(ctx context.Context, m store.Mission)
	HandleMissionFailure(ctx context.Context, m store.Mission, reason string)
}

// Config controls retry backoff.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Executor is the Mission Executor. Pre-execution validation happens in
// the scheduler before a mission is admitted here.
type Executor struct {
	cfg       Config
	runner    Runner
	missions  store.MissionStore
	alarms    *alarmbus.Bus
	completion CompletionHandler
	bus       *eventbus.Bus
	clk       clock.Clock
	log       *logger.Logger
}

// New builds an Executor.
func New(cfg Config, runner Runner, missions store.MissionStore, alarms *alarmbus.Bus, completion CompletionHandler, clk clock.Clock, log *logger.Logger) *Executor {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("mission-executor")
	}
	return &Executor{cfg: cfg, runner: runner, missions: missions, alarms: alarms, completion: completion, clk: clk, log: log}
}

// Name identifies this component for the supervising entrypoint.
func (e *Executor) Name() string { return "mission-executor" }

// SetEventBus wires the topic bus mission status events are published on
// ("missions:all" plus the per-satellite "missions:{id}" topic). Optional;
// nil leaves mission events unpublished.
func (e *Executor) SetEventBus(bus *eventbus.Bus) {
	e.bus = bus
}

// SetCompletionHandler rebinds the CompletionHandler after construction, for
// wiring the scheduler -> executor -> coa executor -> scheduler cycle: the
// coa executor needs the scheduler built first, so it is wired back into the
// executor afterward. Call before Start; not safe once missions are running.
func (e *Executor) SetCompletionHandler(h CompletionHandler) {
	e.completion = h
}

// Start is a no-op; the executor holds no background loop of its own, only
// the per-mission goroutines Admit spawns.
func (e *Executor) Start(_ context.Context) error { return nil }

// Stop is a no-op; in-flight mission goroutines run to completion.
func (e *Executor) Stop(_ context.Context) error { return nil }

// Ready always reports ready.
func (e *Executor) Ready(_ context.Context) error { return nil }

// Admit implements scheduler.Admitter: it launches an isolated worker for
// the scheduled mission.
func (e *Executor) Admit(ctx context.Context, m store.Mission) {
	go e.runMission(ctx, m)
}

// MissionStatusChanged is published on "missions:all" and the per-satellite
// "missions:{id}" topic at every executor-owned status transition.
type MissionStatusChanged struct {
	Mission store.Mission
}

func (e *Executor) runMission(ctx context.Context, m store.Mission) {
	m.Status = store.MissionRunning
	m.UpdatedAt = e.clk.Now()
	e.persist(ctx, m)
	e.publish(ctx, m)

	if err := e.runner.Run(ctx, m); err != nil {
		e.handleFailure(ctx, m, err)
		return
	}

	m.Status = store.MissionCompleted
	m.UpdatedAt = e.clk.Now()
	e.persist(ctx, m)
	e.publish(ctx, m)
	if e.completion != nil {
		e.completion.HandleMissionComplete(ctx, m)
	}
}

func (e *Executor) handleFailure(ctx context.Context, m store.Mission, cause error) {
	m.RetryCount++
	if m.RetryCount <= m.MaxRetries {
		severity := store.SeverityWarning
		if m.RetryCount >= 3 {
			severity = store.SeverityMajor
		}
		e.alarms.Raise(ctx, "mission_failure", severity, "mission attempt failed, will retry: "+cause.Error(), "mission:"+m.ID, values.FromAny(map[string]any{"retry_count": m.RetryCount}))

		delay := e.backoffDelay(m.RetryCount)
		m.Status = store.MissionScheduled
		m.UpdatedAt = e.clk.Now()
		e.persist(ctx, m)
		e.publish(ctx, m)

		retryMission := m
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			e.runMission(ctx, retryMission)
		}()
		return
	}

	m.Status = store.MissionFailed
	m.UpdatedAt = e.clk.Now()
	e.persist(ctx, m)
	e.publish(ctx, m)
	e.alarms.Raise(ctx, "mission_permanent_failure", store.SeverityCritical, "mission permanently failed: "+cause.Error(), "mission:"+m.ID, values.Null)
	if e.completion != nil {
		e.completion.HandleMissionFailure(ctx, m, cause.Error())
	}
}

// backoffDelay derives the Nth retry delay from a cenkalti/backoff
// ExponentialBackOff configured with this executor's parameters, so the
// actual jittered schedule comes from the library rather than hand-rolled
// math.
func (e *Executor) backoffDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialInterval
	b.MaxInterval = e.cfg.MaxInterval
	b.Multiplier = e.cfg.Multiplier
	b.RandomizationFactor = 0.2
	b.Reset()
	var d time.Duration
	for i := 0; i < retryCount; i++ {
		d = b.NextBackOff()
	}
	if d <= 0 {
		d = e.cfg.MaxInterval
	}
	return d
}

func (e *Executor) publish(ctx context.Context, m store.Mission) {
	if e.bus == nil {
		return
	}
	evt := MissionStatusChanged{Mission: m}
	e.bus.Publish(ctx, eventbus.TopicMissionsAll, evt)
	e.bus.Publish(ctx, eventbus.MissionTopic(m.SatelliteID), evt)
}

func (e *Executor) persist(ctx context.Context, m store.Mission) {
	if e.missions == nil {
		return
	}
	if err := e.missions.Save(ctx, m); err != nil {
		e.log.WithError(err).WithField("mission_id", m.ID).Warn("mission state persist failed")
	}
}

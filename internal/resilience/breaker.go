// Package resilience implements the circuit-breaker / fallback layer:
// named breakers per downstream, a degradation-mode aggregator, and a
// cache-backed fallback wrapper. The breaker itself is a thin adapter over
// github.com/sony/gobreaker/v2, keeping the call(name, fn, fallback) shape
// consumers expect while delegating the state machine to the library.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/stellarops/core/internal/xerrors"
	"github.com/stellarops/core/pkg/logger"
)

// State is one of {closed, open, half_open}.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config is the per-breaker parameter set.
type Config struct {
	Name             string
	FailureThreshold int
	FailureWindow    time.Duration
	ResetTimeout     time.Duration
}

// Counters are the per-breaker telemetry counters:
// {success, failure, rejected, fallback}.
type Counters struct {
	Success  int64
	Failure  int64
	Rejected int64
	Fallback int64
}

// Breaker wraps one gobreaker.CircuitBreaker instance.
type Breaker struct {
	name string
	gb   *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	counters Counters

	metric *prometheus.GaugeVec
}

func newBreaker(cfg Config, onStateChange func(name string, from, to State), metric *prometheus.GaugeVec) *Breaker {
	b := &Breaker{name: cfg.Name, metric: metric}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.FailureWindow,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.FailureThreshold || int(counts.TotalFailures) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onStateChange != nil {
				onStateChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	}
	b.gb = gobreaker.NewCircuitBreaker[any](settings)
	if metric != nil {
		metric.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	}
	return b
}

// State returns the breaker's current state.
func (b *Breaker) State() State { return fromGobreaker(b.gb.State()) }

// Counters returns a snapshot of this breaker's telemetry counters.
func (b *Breaker) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

// Execute runs fn under breaker protection. When the breaker is open it
// returns a KindCircuitOpen error (or runs fallback, if provided) instead of
// invoking fn at all.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error, fallback func(ctx context.Context) error) error {
	_, err := b.gb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		b.mu.Lock()
		b.counters.Success++
		b.mu.Unlock()
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.mu.Lock()
		b.counters.Rejected++
		b.mu.Unlock()
		if fallback != nil {
			if ferr := fallback(ctx); ferr == nil {
				b.mu.Lock()
				b.counters.Fallback++
				b.mu.Unlock()
				return nil
			} else {
				return ferr
			}
		}
		return xerrors.CircuitOpen(b.name)
	}

	b.mu.Lock()
	b.counters.Failure++
	b.mu.Unlock()

	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.KindTimeout, b.name+" call timed out", err)
	}
	return err
}

// OperationalMode is the health level derived from the open-breaker set.
type OperationalMode int

const (
	ModeFull OperationalMode = iota
	ModeDegraded
	ModeCritical
	ModeEmergency
)

func (m OperationalMode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeDegraded:
		return "degraded"
	case ModeCritical:
		return "critical"
	case ModeEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Registry owns the four named breakers (orbital, celestrak, spacetrack,
// intel) and computes operational_mode.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	log      *logger.Logger
	metric   *prometheus.GaugeVec
}

// NewRegistry builds breakers from cfgs, keyed by name.
func NewRegistry(cfgs map[string]Config, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("resilience")
	}
	r := &Registry{
		breakers: make(map[string]*Breaker, len(cfgs)),
		log:      log,
		metric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stellarops_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed 1=open 2=half_open.",
		}, []string{"name"}),
	}
	onStateChange := func(name string, from, to State) {
		r.log.WithFields(map[string]interface{}{
			"breaker": name, "from": from.String(), "to": to.String(),
		}).Warn("circuit breaker state changed")
		r.metric.WithLabelValues(name).Set(float64(to))
	}
	for name, cfg := range cfgs {
		cfg.Name = name
		r.breakers[name] = newBreaker(cfg, onStateChange, r.metric)
	}
	return r
}

// Collector exposes the registry's Prometheus metrics.
func (r *Registry) Collector() prometheus.Collector { return r.metric }

// Breaker returns the named breaker, creating a closed breaker with a
// default preset if it doesn't already exist. Production call sites name
// one of the four fixed breakers, so this only matters for tests that add
// ad hoc names.
func (r *Registry) Breaker(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = newBreaker(Config{Name: name, FailureThreshold: 5, FailureWindow: time.Minute, ResetTimeout: 30 * time.Second}, nil, r.metric)
	r.breakers[name] = b
	return b
}

// Call runs fn under the named breaker, with an optional fallback.
func (r *Registry) Call(ctx context.Context, name string, fn func(ctx context.Context) error, fallback func(ctx context.Context) error) error {
	return r.Breaker(name).Execute(ctx, fn, fallback)
}

// OperationalMode derives full/degraded/critical/emergency from the set of
// open breakers: always at least critical if "orbital" is open.
func (r *Registry) OperationalMode() OperationalMode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	openCount := 0
	orbitalOpen := false
	for name, b := range r.breakers {
		if b.State() == StateOpen {
			openCount++
			if name == "orbital" {
				orbitalOpen = true
			}
		}
	}
	switch {
	case orbitalOpen:
		return ModeCritical
	case openCount >= 3:
		return ModeEmergency
	case openCount >= 2:
		return ModeCritical
	case openCount == 1:
		return ModeDegraded
	default:
		return ModeFull
	}
}

package satellite

import (
	"context"
	"time"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/xerrors"
	"github.com/stellarops/core/pkg/logger"
)

// StartOptions seed a newly started satellite's state.
type StartOptions struct {
	Energy     float64
	MemoryUsed float64
	Position   Position
	TLE        *TLE
	MassKg     float64
}

// Fleet is the satellite façade: start/stop/get_state/list/count/
// list_states plus the per-field mutators, each serialized through the
// owning actor's inbox so lookups never block on another actor's mutation.
type Fleet struct {
	registry *Registry
	clk      clock.Clock
	log      *logger.Logger
}

// NewFleet builds an empty Fleet.
func NewFleet(clk clock.Clock, log *logger.Logger) *Fleet {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("satellite-fleet")
	}
	return &Fleet{registry: NewRegistry(), clk: clk, log: log}
}

// Name identifies this component for the supervising entrypoint.
func (f *Fleet) Name() string { return "satellite-fleet" }

// Start is a no-op lifecycle hook: the fleet itself owns no background
// loop, only the per-satellite actors started by Start(id, ...).
func (f *Fleet) Start(_ context.Context) error { return nil }

// Stop tears down every registered actor.
func (f *Fleet) Stop(ctx context.Context) error {
	for _, id := range f.registry.IDs() {
		_, _ = f.StopSatellite(ctx, id)
	}
	return nil
}

// Ready always reports ready; there is no external dependency to degrade.
func (f *Fleet) Ready(_ context.Context) error { return nil }

// StartSatellite creates and starts the actor for id. Returns
// KindInvalidState if id is already running.
func (f *Fleet) StartSatellite(id string, opts StartOptions) (State, error) {
	now := f.clk.Now()
	initial := State{
		ID:         id,
		Mode:       deriveMode(ModeNominal, opts.Energy),
		Energy:     clampPercent(opts.Energy),
		MemoryUsed: clampPercent(opts.MemoryUsed),
		Position:   opts.Position,
		TLE:        opts.TLE,
		MassKg:     opts.MassKg,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if initial.MassKg == 0 {
		initial.MassKg = 500 // default wet mass used by the maneuver fuel model
	}
	a := newActor(initial, f.clk)
	if err := f.registry.Insert(id, a); err != nil {
		a.stop(context.Background())
		return State{}, xerrors.InvalidState("satellite " + id + " already exists")
	}
	f.log.WithField("satellite_id", id).Info("satellite actor started")
	return initial, nil
}

// StopSatellite stops and unregisters id's actor.
func (f *Fleet) StopSatellite(ctx context.Context, id string) (bool, error) {
	a, ok := f.registry.Lookup(id)
	if !ok {
		return false, xerrors.NotFound("satellite", id)
	}
	f.registry.Remove(id)
	a.stop(ctx)
	f.log.WithField("satellite_id", id).Info("satellite actor stopped")
	return true, nil
}

// GetState returns a snapshot of id's current state.
func (f *Fleet) GetState(ctx context.Context, id string) (State, error) {
	a, ok := f.registry.Lookup(id)
	if !ok {
		return State{}, xerrors.NotFound("satellite", id)
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	state, ok := a.send(cctx, actorMsg{kind: msgGetState})
	if !ok {
		return State{}, xerrors.Wrap(xerrors.KindTimeout, "get_state timed out", nil)
	}
	return state, nil
}

// List returns every registered satellite id.
func (f *Fleet) List() []string { return f.registry.IDs() }

// Count returns the number of registered satellites.
func (f *Fleet) Count() int { return f.registry.Count() }

// ListStates returns a snapshot of every registered satellite's state.
// Actors unreachable within the per-call timeout are skipped rather than
// failing the whole listing.
func (f *Fleet) ListStates(ctx context.Context) []State {
	ids := f.registry.IDs()
	states := make([]State, 0, len(ids))
	for _, id := range ids {
		if s, err := f.GetState(ctx, id); err == nil {
			states = append(states, s)
		}
	}
	return states
}

// UpdateEnergy applies delta (clamped to [0,100]) and re-derives mode
// unless the mode has been explicitly overridden by SetMode.
func (f *Fleet) UpdateEnergy(ctx context.Context, id string, delta float64) (State, error) {
	return f.mutate(ctx, id, actorMsg{kind: msgUpdateEnergy, energyDelta: delta})
}

// UpdateMemory sets memory_used to the absolute value (clamped).
func (f *Fleet) UpdateMemory(ctx context.Context, id string, absolute float64) (State, error) {
	return f.mutate(ctx, id, actorMsg{kind: msgUpdateMemory, memoryAbs: absolute})
}

// SetMode bypasses mode derivation.
func (f *Fleet) SetMode(ctx context.Context, id string, mode Mode) (State, error) {
	return f.mutate(ctx, id, actorMsg{kind: msgSetMode, mode: mode})
}

// UpdatePosition replaces the satellite's Cartesian position.
func (f *Fleet) UpdatePosition(ctx context.Context, id string, pos Position) (State, error) {
	return f.mutate(ctx, id, actorMsg{kind: msgUpdatePosition, position: pos})
}

// SetTLE replaces the satellite's TLE pair (used by TLE ingest, out of
// scope for this core, and by tests seeding conjunction scenarios).
func (f *Fleet) SetTLE(ctx context.Context, id string, tle *TLE) (State, error) {
	return f.mutate(ctx, id, actorMsg{kind: msgSetTLE, tle: tle})
}

func (f *Fleet) mutate(ctx context.Context, id string, msg actorMsg) (State, error) {
	a, ok := f.registry.Lookup(id)
	if !ok {
		return State{}, xerrors.NotFound("satellite", id)
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	state, ok := a.send(cctx, msg)
	if !ok {
		return State{}, xerrors.Wrap(xerrors.KindTimeout, "satellite mutation timed out", nil)
	}
	return state, nil
}

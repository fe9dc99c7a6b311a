// Package missionrunner implements the default executor.Runner: applying a
// mission's effect to the satellite actor fleet once the Mission Executor
// has transitioned it to running. Each mission type dispatches by kind
// against its target satellite.
package missionrunner

import (
	"context"
	"fmt"

	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
)

// Runner applies each mission type's effect against the satellite fleet.
// COA-driven missions (coa_pre_burn, coa_burn, maneuver_verify) consume
// energy and, for the main burn, update position/orbit; ordinary mission
// types (downlink, imaging, orbit_adjust) consume resources without a
// dedicated physical effect, since the physics of those operations live in
// the external collaborators.
type Runner struct {
	fleet *satellite.Fleet
}

// New builds a Runner bound to fleet.
func New(fleet *satellite.Fleet) *Runner {
	return &Runner{fleet: fleet}
}

var _ interface {
	Run(ctx context.Context, m store.Mission) error
} = (*Runner)(nil)

// Run executes m's effect. Energy and memory costs are spent against the
// satellite for every mission type, using the mission's declared
// RequiredEnergy/RequiredMemory as the actual draw; RequiredBandwidth is not
// consumed.
func (r *Runner) Run(ctx context.Context, m store.Mission) error {
	switch m.Type {
	case "coa_pre_burn":
		return r.spend(ctx, m)
	case "coa_burn":
		if err := r.spend(ctx, m); err != nil {
			return err
		}
		return r.applyBurn(ctx, m)
	case "maneuver_verify":
		return r.spend(ctx, m)
	case "downlink", "imaging", "orbit_adjust":
		return r.spend(ctx, m)
	default:
		return r.spend(ctx, m)
	}
}

func (r *Runner) spend(ctx context.Context, m store.Mission) error {
	if r.fleet == nil {
		return nil
	}
	if m.RequiredEnergy > 0 {
		if _, err := r.fleet.UpdateEnergy(ctx, m.SatelliteID, -m.RequiredEnergy); err != nil {
			return fmt.Errorf("missionrunner: spend energy: %w", err)
		}
	}
	if m.RequiredMemory > 0 {
		state, err := r.fleet.GetState(ctx, m.SatelliteID)
		if err != nil {
			return fmt.Errorf("missionrunner: read memory: %w", err)
		}
		if _, err := r.fleet.UpdateMemory(ctx, m.SatelliteID, state.MemoryUsed+m.RequiredMemory); err != nil {
			return fmt.Errorf("missionrunner: spend memory: %w", err)
		}
	}
	return nil
}

// applyBurn nudges the satellite's recorded position along the commanded
// delta-v direction, a simplified stand-in for the real propagation update
// that would follow a completed burn (the SGP4 propagator is an external
// service).
func (r *Runner) applyBurn(ctx context.Context, m store.Mission) error {
	if r.fleet == nil {
		return nil
	}
	deltaV := m.Payload.Get("delta_v_ms").Float()
	dir := m.Payload.Get("direction")
	dx, dy, dz := dir.Get("X").Float(), dir.Get("Y").Float(), dir.Get("Z").Float()

	state, err := r.fleet.GetState(ctx, m.SatelliteID)
	if err != nil {
		return fmt.Errorf("missionrunner: read position: %w", err)
	}
	nudgeKM := deltaV / 1000
	newPos := satellite.Position{
		X: state.Position.X + dx*nudgeKM,
		Y: state.Position.Y + dy*nudgeKM,
		Z: state.Position.Z + dz*nudgeKM,
	}
	if _, err := r.fleet.UpdatePosition(ctx, m.SatelliteID, newPos); err != nil {
		return fmt.Errorf("missionrunner: apply burn: %w", err)
	}
	return nil
}

// Package mission implements the Mission Validator: structural field
// checks layered under hand-written business rules, separating
// transport-level validation from service-level checks.
package mission

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/xerrors"
)

// Fields that must be set on every mission before semantic checks run.
type structuralFields struct {
	SatelliteID string  `validate:"required"`
	Type        string  `validate:"required"`
	Priority    int     `validate:"gte=0,lte=3"`
}

// Validator implements validate and validate_for_execution.
type Validator struct {
	fleet          *satellite.Fleet
	groundStations store.GroundStationStore
	clk            clock.Clock
	structural     *validator.Validate
}

// New builds a Validator.
func New(fleet *satellite.Fleet, groundStations store.GroundStationStore, clk clock.Clock) *Validator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Validator{fleet: fleet, groundStations: groundStations, clk: clk, structural: validator.New()}
}

// Options toggles strict mode (doubles the energy requirement).
type Options struct {
	Strict bool
}

// Validate runs the pre-admission checks: satellite existence, resource
// headroom (strict mode doubles the energy requirement), deadline rules and
// type-specific rules.
func (v *Validator) Validate(ctx context.Context, m store.Mission, opts Options) error {
	sf := structuralFields{SatelliteID: m.SatelliteID, Type: m.Type, Priority: int(m.Priority)}
	if err := v.structural.Struct(sf); err != nil {
		return xerrors.ValidationFailed(err.Error())
	}

	var fields []string

	state, err := v.fleet.GetState(ctx, m.SatelliteID)
	if err != nil {
		fields = append(fields, "satellite_id: satellite does not exist or is unreachable")
	} else {
		energyNeeded := m.RequiredEnergy
		if opts.Strict {
			energyNeeded *= 2
		}
		if state.Energy < energyNeeded {
			fields = append(fields, "required_energy: satellite lacks sufficient energy headroom")
		}
		if state.MemoryUsed+m.RequiredMemory > 100 {
			fields = append(fields, "required_memory: satellite lacks sufficient memory headroom")
		}
	}

	if err := v.validateDeadline(m); err != "" {
		fields = append(fields, err)
	}

	fields = append(fields, v.validateTypeRules(ctx, m)...)

	if len(fields) > 0 {
		return xerrors.ValidationFailed(fields...)
	}
	return nil
}

func (v *Validator) validateDeadline(m store.Mission) string {
	now := v.clk.Now()
	if m.Priority == store.PriorityCritical && m.Deadline == nil {
		return "deadline: critical missions must have a deadline"
	}
	if m.Deadline == nil {
		return ""
	}
	if m.Deadline.Before(now) || m.Deadline.Sub(now) < 5*time.Minute {
		return "deadline: must be at least 5 minutes in the future"
	}
	if m.Priority == store.PriorityCritical && m.Deadline.Sub(now) > 24*time.Hour {
		return "deadline: critical missions must have a deadline within 24 hours"
	}
	return ""
}

func (v *Validator) validateTypeRules(ctx context.Context, m store.Mission) []string {
	var fields []string
	switch m.Type {
	case "downlink":
		gsID := m.Payload.Get("ground_station_id").String()
		if gsID == "" {
			fields = append(fields, "payload.ground_station_id: required for downlink missions")
			break
		}
		gs, ok, err := v.groundStations.Get(ctx, gsID)
		if err != nil || !ok || !gs.Online {
			fields = append(fields, "payload.ground_station_id: ground station must exist and be online")
		}
	case "imaging":
		lat := m.Payload.Get("latitude_deg")
		lon := m.Payload.Get("longitude_deg")
		if !lat.Exists() || !lon.Exists() || lat.Num < -90 || lat.Num > 90 || lon.Num < -180 || lon.Num > 180 {
			fields = append(fields, "payload: imaging missions require a valid latitude_deg/longitude_deg")
		}
	case "orbit_adjust":
		state, err := v.fleet.GetState(ctx, m.SatelliteID)
		if err != nil || state.Energy < 20 {
			fields = append(fields, "required_energy: orbit_adjust missions require at least 20% satellite energy")
		}
	}
	return fields
}

// ValidateForExecution consults live actor mode and real-time resource
// levels on top of Validate: no missions in survival mode, only critical
// missions in safe mode.
func (v *Validator) ValidateForExecution(ctx context.Context, m store.Mission) error {
	if err := v.Validate(ctx, m, Options{}); err != nil {
		return err
	}

	state, err := v.fleet.GetState(ctx, m.SatelliteID)
	if err != nil {
		return xerrors.ValidationFailed("satellite_id: satellite unreachable at execution time")
	}

	var fields []string
	switch state.Mode {
	case satellite.ModeSurvival:
		fields = append(fields, "satellite: no missions may execute while satellite is in survival mode")
	case satellite.ModeSafe:
		if m.Priority != store.PriorityCritical {
			fields = append(fields, "satellite: only critical missions may execute while satellite is in safe mode")
		}
	}
	if state.Energy < m.RequiredEnergy {
		fields = append(fields, "required_energy: insufficient energy at execution time")
	}
	if state.MemoryUsed+m.RequiredMemory > 100 {
		fields = append(fields, "required_memory: insufficient memory headroom at execution time")
	}

	if len(fields) > 0 {
		return xerrors.ValidationFailed(fields...)
	}
	return nil
}

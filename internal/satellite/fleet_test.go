package satellite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/pkg/logger"
)

func newTestFleet(t *testing.T) (*Fleet, *clock.Mock) {
	t.Helper()
	clk := &clock.Mock{}
	f := NewFleet(clk, logger.NewDefault("test"))
	_, err := f.StartSatellite("sat-1", StartOptions{Energy: 100})
	require.NoError(t, err)
	return f, clk
}

func TestEnergyClampedToRange(t *testing.T) {
	f, _ := newTestFleet(t)
	ctx := context.Background()

	s, err := f.UpdateEnergy(ctx, "sat-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.Energy)

	s, err = f.UpdateEnergy(ctx, "sat-1", -1000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Energy)
}

func TestModeHysteresisBoundaries(t *testing.T) {
	f, _ := newTestFleet(t)
	ctx := context.Background()

	s, err := f.UpdateEnergy(ctx, "sat-1", -95.1) // 100 -> 4.9
	require.NoError(t, err)
	assert.InDelta(t, 4.9, s.Energy, 1e-9)
	assert.Equal(t, ModeSurvival, s.Mode)

	s, err = f.UpdateEnergy(ctx, "sat-1", 5.0) // 4.9 -> 9.9
	require.NoError(t, err)
	assert.InDelta(t, 9.9, s.Energy, 1e-9)
	assert.Equal(t, ModeSurvival, s.Mode, "9.9 must remain survival, below the 10.0 recovery threshold")

	s, err = f.UpdateEnergy(ctx, "sat-1", 0.1) // 9.9 -> 10.0
	require.NoError(t, err)
	assert.InDelta(t, 10.0, s.Energy, 1e-9)
	assert.Equal(t, ModeSafe, s.Mode)

	s, err = f.UpdateEnergy(ctx, "sat-1", 19.9) // 10.0 -> 29.9
	require.NoError(t, err)
	assert.InDelta(t, 29.9, s.Energy, 1e-9)
	assert.Equal(t, ModeSafe, s.Mode, "29.9 must remain safe, below the 30.0 recovery threshold")

	s, err = f.UpdateEnergy(ctx, "sat-1", 0.1) // 29.9 -> 30.0
	require.NoError(t, err)
	assert.InDelta(t, 30.0, s.Energy, 1e-9)
	assert.Equal(t, ModeNominal, s.Mode)
}

func TestSetModeOverridesDerivation(t *testing.T) {
	f, _ := newTestFleet(t)
	ctx := context.Background()

	s, err := f.SetMode(ctx, "sat-1", ModeSafe)
	require.NoError(t, err)
	assert.Equal(t, ModeSafe, s.Mode)
	assert.True(t, s.ModeOverridden)

	// Explicit override survives an energy update that would otherwise
	// re-derive nominal from full energy.
	s, err = f.UpdateEnergy(ctx, "sat-1", 0)
	require.NoError(t, err)
	assert.Equal(t, ModeSafe, s.Mode)
}

func TestGetStateUnknownSatelliteNotFound(t *testing.T) {
	f, _ := newTestFleet(t)
	_, err := f.GetState(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestStopSatelliteRemovesFromRegistry(t *testing.T) {
	f, _ := newTestFleet(t)
	ok, err := f.StopSatellite(context.Background(), "sat-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, f.Count())
}

func TestStartSatelliteDefaultsMass(t *testing.T) {
	f := NewFleet(clock.System{}, logger.NewDefault("test"))
	s, err := f.StartSatellite("sat-2", StartOptions{Energy: 50})
	require.NoError(t, err)
	assert.Equal(t, 500.0, s.MassKg)
}

func TestStartSatelliteDuplicateIDFails(t *testing.T) {
	f, _ := newTestFleet(t)
	_, err := f.StartSatellite("sat-1", StartOptions{Energy: 50})
	assert.Error(t, err)
}

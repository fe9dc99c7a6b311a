package coa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/conjunction"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/pkg/logger"
)

func newTestPlanner(t *testing.T, now time.Time) (*Planner, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(now)
	fleet := satellite.NewFleet(clk, logger.NewDefault("test"))
	st := store.NewMemoryCOAStore()
	bus := eventbus.New(logger.NewDefault("test"))
	return New(Config{}, fleet, st, bus, clk, logger.NewDefault("test")), clk
}

const leoRadiusKM = earthRadiusKMWGS84 + 550

func TestGenerateReturnsNilWhenTCAHasPassed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(t, now)
	conj := store.Conjunction{ID: "c1", TCA: now.Add(-time.Minute), MissDistanceKM: 2}
	assert.Nil(t, p.Generate(conj, leoRadiusKM, 500))
}

func TestGenerateGatesInfeasibleTypesByTimeToTCA(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(t, now)
	conj := store.Conjunction{ID: "c1", TCA: now.Add(time.Hour), MissDistanceKM: 2}

	coas := p.Generate(conj, leoRadiusKM, 500)
	require.Len(t, coas, 1, "only station_keeping is feasible inside 1 hour")
	assert.Equal(t, store.COAStationKeeping, coas[0].Type)
}

func TestGenerateProducesAllTypesSortedAscendingByRisk(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(t, now)
	conj := store.Conjunction{ID: "c1", TCA: now.Add(6 * time.Hour), MissDistanceKM: 2}

	coas := p.Generate(conj, leoRadiusKM, 500)
	require.Len(t, coas, 5, "all 5 COA types are feasible at 6 hours to TCA")

	for i := 1; i < len(coas); i++ {
		assert.LessOrEqual(t, coas[i-1].RiskScore, coas[i].RiskScore, "COAs must sort ascending by risk")
	}

	// station_keeping proposes no maneuver at all, so its improvement
	// component maxes out risk: it sorts last, not first.
	assert.Equal(t, store.COAStationKeeping, coas[len(coas)-1].Type)
	assert.NotEqual(t, store.COAStationKeeping, coas[0].Type)
}

func TestPlannerConsumesConjunctionDetectedAndPublishesProposals(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	fleet := satellite.NewFleet(clk, logger.NewDefault("test"))
	_, err := fleet.StartSatellite("sat-1", satellite.StartOptions{
		Energy: 100, Position: satellite.Position{X: leoRadiusKM}, MassKg: 500,
	})
	require.NoError(t, err)
	st := store.NewMemoryCOAStore()
	bus := eventbus.New(logger.NewDefault("test"))
	p := New(Config{}, fleet, st, bus, clk, logger.NewDefault("test"))

	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Stop(ctx) }()

	coaCh, cancel := bus.Subscribe(eventbus.TopicSSACOA)
	defer cancel()

	conj := store.Conjunction{ID: "c1", AssetID: "sat-1", TCA: now.Add(6 * time.Hour), MissDistanceKM: 0.8}
	bus.Publish(ctx, eventbus.TopicSSAConjunctions, conjunction.ConjunctionDetected{Conjunction: conj})

	select {
	case msg := <-coaCh:
		gen, ok := msg.Payload.(COAsGenerated)
		require.True(t, ok)
		require.Len(t, gen.COAs, 5)
		for i := 1; i < len(gen.COAs); i++ {
			assert.LessOrEqual(t, gen.COAs[i-1].RiskScore, gen.COAs[i].RiskScore)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a COAsGenerated event on ssa:coa")
	}

	saved, err := st.ByConjunction(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, saved, 5)
}

func TestGenerateCapsDeltaVAndAppliesManeuverLeadTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	fleet := satellite.NewFleet(clk, logger.NewDefault("test"))
	p := New(Config{MaxDeltaVMS: 1, ManeuverLeadTimeHours: 1, FuelDensityKGPerMS: 0.05},
		fleet, store.NewMemoryCOAStore(), eventbus.New(logger.NewDefault("test")), clk, logger.NewDefault("test"))
	conj := store.Conjunction{ID: "c1", TCA: now.Add(6 * time.Hour), MissDistanceKM: 2}

	coas := p.Generate(conj, leoRadiusKM, 500)
	require.Len(t, coas, 5)
	for _, c := range coas {
		assert.LessOrEqual(t, c.DeltaVMagnitudeMS, 1.0, "%s delta-v must respect the configured cap", c.Type)
		if c.Type == store.COAStationKeeping {
			continue
		}
		assert.Equal(t, conj.TCA.Add(-time.Hour), c.BurnStartTime,
			"%s burn must start the configured lead time before TCA", c.Type)
	}
}

func TestGenerateShortensLeadTimeWhenTCAIsClose(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(t, now)
	// Default lead time is 12h but TCA is only 6h out: the lead collapses to
	// half the remaining window so the burn still precedes TCA comfortably.
	conj := store.Conjunction{ID: "c1", TCA: now.Add(6 * time.Hour), MissDistanceKM: 2}

	coas := p.Generate(conj, leoRadiusKM, 500)
	require.NotEmpty(t, coas)
	for _, c := range coas {
		if c.Type == store.COAStationKeeping {
			continue
		}
		assert.Equal(t, conj.TCA.Add(-3*time.Hour), c.BurnStartTime)
	}
}

func TestGenerateFuelFallsBackToLinearDensityWithoutMass(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(t, now)
	conj := store.Conjunction{ID: "c1", TCA: now.Add(6 * time.Hour), MissDistanceKM: 2}

	coas := p.Generate(conj, leoRadiusKM, 0)
	require.NotEmpty(t, coas)
	for _, c := range coas {
		assert.InDelta(t, c.DeltaVMagnitudeMS*0.05, c.EstimatedFuelKG, 1e-9,
			"%s fuel must come from the default 0.05 kg per m/s density when mass is unknown", c.Type)
	}
}

func TestBuildCOAStationKeepingHasZeroDeltaV(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(t, now)
	conj := store.Conjunction{ID: "c1", TCA: now.Add(time.Hour), MissDistanceKM: 2}

	c := p.buildCOA(conj, store.COAStationKeeping, leoRadiusKM, 500, time.Hour, store.OrbitSnapshot{SemiMajorAxisKM: leoRadiusKM}, now)
	assert.Equal(t, 0.0, c.DeltaVMagnitudeMS)
	assert.Equal(t, 0.0, c.EstimatedFuelKG)
	assert.Equal(t, conj.MissDistanceKM, c.PredictedMissDistanceKM)
}

func TestRiskScoreWeighting(t *testing.T) {
	// fuel=0, ttca>=12h(10), improvement=0(100), complexity=0(station_keeping)
	got := riskScore(0, 24*time.Hour, 0, store.COAStationKeeping)
	want := 0.30*0 + 0.25*10 + 0.30*100 + 0.15*0
	assert.InDelta(t, want, got, 1e-9)
}

func TestFeasibilityGates(t *testing.T) {
	assert.True(t, feasible(store.COAStationKeeping, time.Minute, time.Hour))
	assert.False(t, feasible(store.COARetrogradeBurn, time.Hour+59*time.Minute, time.Hour))
	assert.True(t, feasible(store.COARetrogradeBurn, 2*time.Hour, time.Hour))
	assert.False(t, feasible(store.COAInclinationChange, 3*time.Hour+59*time.Minute, time.Hour))
	assert.True(t, feasible(store.COAInclinationChange, 4*time.Hour, time.Hour))
	assert.False(t, feasible(store.COAPhasing, 90*time.Minute, time.Hour))
	assert.True(t, feasible(store.COAPhasing, 2*time.Hour, time.Hour))
}

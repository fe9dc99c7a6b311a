package conjunction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/orbital"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/pkg/logger"
)

// scriptedOrbital returns a fixed trajectory per id, letting tests engineer
// an exact closest-approach distance at a known timestamp.
type scriptedOrbital struct {
	byID map[string][]store.TrajectoryPoint
}

func (s *scriptedOrbital) PropagatePosition(context.Context, string, string, string, time.Time) (orbital.Position, error) {
	return orbital.Position{}, nil
}

func (s *scriptedOrbital) PropagateTrajectory(_ context.Context, id, _, _ string, _, _ time.Time, _ int) ([]store.TrajectoryPoint, error) {
	return s.byID[id], nil
}

func (s *scriptedOrbital) CalculateVisibility(context.Context, string, string, string, store.GroundStation, time.Time, time.Time) ([]orbital.Pass, error) {
	return nil, nil
}

func (s *scriptedOrbital) Health(context.Context) (orbital.Health, error) {
	return orbital.Health{Healthy: true}, nil
}

var _ orbital.Caller = (*scriptedOrbital)(nil)

func newTestDetector(t *testing.T, orb orbital.Caller, cstore store.ConjunctionStore, catalog store.CatalogStore) (*Detector, *satellite.Fleet, *alarmbus.Bus, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fleet := satellite.NewFleet(clk, logger.NewDefault("test"))
	alarms := alarmbus.New(alarmbus.Config{}, store.NewMemoryAlarmStore(), eventbus.New(logger.NewDefault("test")), clk, logger.NewDefault("test"))
	bus := eventbus.New(logger.NewDefault("test"))
	d := New(Config{MissDistanceThreshold: 10}, fleet, orb, catalog, cstore, bus, alarms, clk, logger.NewDefault("test"))
	return d, fleet, alarms, clk
}

func TestRunCycleDetectsCriticalConjunctionAndRaisesAlarm(t *testing.T) {
	ts := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC).Unix()
	orb := &scriptedOrbital{byID: map[string][]store.TrajectoryPoint{
		"sat-1": {{TimestampSec: ts, Position: store.Vector3{X: 0, Y: 0, Z: 0}}},
		"obj-1": {{TimestampSec: ts, Position: store.Vector3{X: 0.5, Y: 0, Z: 0}}}, // 0.5km -> critical
	}}
	cstore := store.NewMemoryConjunctionStore()
	catalog := store.NewMemoryCatalogStore(store.CatalogObject{ID: "obj-1", TLELine1: "l1", TLELine2: "l2"})

	d, fleet, alarms, clk := newTestDetector(t, orb, cstore, catalog)
	_, err := fleet.StartSatellite("sat-1", satellite.StartOptions{TLE: &satellite.TLE{Line1: "a", Line2: "b"}})
	require.NoError(t, err)

	d.RunCycle(context.Background())

	conj, ok, err := cstore.ByAssetAndSecondary(context.Background(), "sat-1", "obj-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.ConjunctionCritical, conj.Severity)
	assert.InDelta(t, 0.5, conj.MissDistanceKM, 1e-9)

	sum := alarms.Summary()
	assert.Equal(t, 1, sum.ActiveCritical)
	_ = clk
}

func TestRunCycleIgnoresBeyondThreshold(t *testing.T) {
	ts := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC).Unix()
	orb := &scriptedOrbital{byID: map[string][]store.TrajectoryPoint{
		"sat-1": {{TimestampSec: ts, Position: store.Vector3{X: 0, Y: 0, Z: 0}}},
		"obj-1": {{TimestampSec: ts, Position: store.Vector3{X: 50, Y: 0, Z: 0}}}, // 50km, far beyond threshold
	}}
	cstore := store.NewMemoryConjunctionStore()
	catalog := store.NewMemoryCatalogStore(store.CatalogObject{ID: "obj-1", TLELine1: "l1", TLELine2: "l2"})

	d, fleet, _, _ := newTestDetector(t, orb, cstore, catalog)
	_, err := fleet.StartSatellite("sat-1", satellite.StartOptions{TLE: &satellite.TLE{Line1: "a", Line2: "b"}})
	require.NoError(t, err)

	d.RunCycle(context.Background())

	all, err := cstore.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunCycleSkipsSatellitesWithoutTLE(t *testing.T) {
	cstore := store.NewMemoryConjunctionStore()
	catalog := store.NewMemoryCatalogStore()
	d, fleet, _, _ := newTestDetector(t, &scriptedOrbital{byID: map[string][]store.TrajectoryPoint{}}, cstore, catalog)

	_, err := fleet.StartSatellite("sat-1", satellite.StartOptions{})
	require.NoError(t, err)

	assert.NotPanics(t, func() { d.RunCycle(context.Background()) })
}

func TestExpirePastTCAMarksExpiredWithoutReraisingAlarm(t *testing.T) {
	cstore := store.NewMemoryConjunctionStore()
	catalog := store.NewMemoryCatalogStore()
	d, _, alarms, clk := newTestDetector(t, &scriptedOrbital{byID: map[string][]store.TrajectoryPoint{}}, cstore, catalog)

	past := clk.Now().Add(-time.Hour)
	require.NoError(t, cstore.Upsert(context.Background(), store.Conjunction{
		ID: "c1", AssetID: "sat-1", SecondaryObjectID: "obj-1",
		TCA: past, Severity: store.ConjunctionCritical, Status: store.ConjunctionPredicted,
	}))

	d.RunCycle(context.Background())

	got, ok, err := cstore.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.ConjunctionExpired, got.Status)
	assert.Equal(t, 0, alarms.Summary().ActiveCritical, "expiry alone must not raise a new alarm")
}

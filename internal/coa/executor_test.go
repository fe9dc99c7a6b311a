package coa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/pkg/logger"
)

type fakeEnqueuer struct {
	enqueued []store.Mission
}

func (f *fakeEnqueuer) Enqueue(m store.Mission) store.Mission {
	f.enqueued = append(f.enqueued, m)
	return m
}

func newTestCOAExecutor(t *testing.T) (*Executor, *fakeEnqueuer, store.COAStore, store.MissionStore, *alarmbus.Bus, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	coas := store.NewMemoryCOAStore()
	missions := store.NewMemoryMissionStore()
	enqueuer := &fakeEnqueuer{}
	alarms := alarmbus.New(alarmbus.Config{}, store.NewMemoryAlarmStore(), eventbus.New(logger.NewDefault("test")), clk, logger.NewDefault("test"))
	bus := eventbus.New(logger.NewDefault("test"))
	exec := NewExecutor(missions, coas, enqueuer, alarms, bus, clk, logger.NewDefault("test"))
	return exec, enqueuer, coas, missions, alarms, clk
}

func TestExecuteCOARejectsNonSelectedStatus(t *testing.T) {
	exec, _, _, _, _, _ := newTestCOAExecutor(t)
	c := store.COA{ID: "c1", Status: store.COAProposed}
	_, _, err := exec.ExecuteCOA(context.Background(), c, "sat-1")
	assert.Error(t, err)
}

func TestExecuteCOAStationKeepingCompletesImmediatelyWithoutMissions(t *testing.T) {
	exec, enqueuer, coas, _, _, _ := newTestCOAExecutor(t)
	c := store.COA{ID: "c1", Type: store.COAStationKeeping, Status: store.COASelected}

	got, missions, err := exec.ExecuteCOA(context.Background(), c, "sat-1")
	require.NoError(t, err)
	assert.Nil(t, missions)
	assert.Equal(t, store.COACompleted, got.Status)
	assert.Empty(t, enqueuer.enqueued)

	saved, ok, err := coas.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.COACompleted, saved.Status)
}

func TestExecuteCOABuildsThreeMissionSequenceWithExactTiming(t *testing.T) {
	exec, enqueuer, _, _, _, _ := newTestCOAExecutor(t)
	burnStart := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := store.COA{
		ID: "c1", Type: store.COARetrogradeBurn, Status: store.COASelected,
		BurnStartTime: burnStart, BurnDurationSeconds: 120,
	}

	_, missions, err := exec.ExecuteCOA(context.Background(), c, "sat-1")
	require.NoError(t, err)
	require.Len(t, missions, 3)
	require.Len(t, enqueuer.enqueued, 3)

	preBurn, burn, verify := missions[0], missions[1], missions[2]
	assert.Equal(t, "coa_pre_burn", preBurn.Type)
	assert.Equal(t, store.PriorityHigh, preBurn.Priority)
	assert.Equal(t, burnStart.Add(-30*time.Minute), *preBurn.ScheduledStart)
	assert.Equal(t, burnStart, *preBurn.Deadline)

	assert.Equal(t, "coa_burn", burn.Type)
	assert.Equal(t, store.PriorityCritical, burn.Priority)
	assert.Equal(t, burnStart, *burn.ScheduledStart)
	burnEnd := burnStart.Add(120 * time.Second)
	assert.Equal(t, burnEnd.Add(300*time.Second), *burn.Deadline)

	assert.Equal(t, "maneuver_verify", verify.Type)
	assert.Equal(t, store.PriorityHigh, verify.Priority)
	assert.Equal(t, burnEnd.Add(60*time.Second), *verify.ScheduledStart)
	assert.Equal(t, burnEnd.Add(60*time.Second).Add(3600*time.Second), *verify.Deadline)

	for _, m := range missions {
		assert.Equal(t, "c1", m.COAID)
		assert.Equal(t, "sat-1", m.SatelliteID)
	}
}

func TestHandleMissionCompleteOnlyTriggersOnVerifyMission(t *testing.T) {
	exec, _, coas, _, _, _ := newTestCOAExecutor(t)
	burnStart := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := store.COA{ID: "c1", Type: store.COARetrogradeBurn, Status: store.COASelected, BurnStartTime: burnStart, BurnDurationSeconds: 60}
	require.NoError(t, coas.Save(context.Background(), c))

	_, missions, err := exec.ExecuteCOA(context.Background(), c, "sat-1")
	require.NoError(t, err)

	exec.HandleMissionComplete(context.Background(), missions[0]) // pre-burn completes
	saved, _, _ := coas.Get(context.Background(), "c1")
	assert.Equal(t, store.COAExecuting, saved.Status, "non-verify completions must not close the COA")

	exec.HandleMissionComplete(context.Background(), missions[2]) // verify completes
	saved, _, _ = coas.Get(context.Background(), "c1")
	assert.Equal(t, store.COACompleted, saved.Status)
}

func TestHandleMissionFailureMarksCOAFailedAndRaisesAlarm(t *testing.T) {
	exec, _, coas, _, alarms, _ := newTestCOAExecutor(t)
	burnStart := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := store.COA{ID: "c1", Type: store.COARetrogradeBurn, Status: store.COASelected, BurnStartTime: burnStart, BurnDurationSeconds: 60}
	require.NoError(t, coas.Save(context.Background(), c))

	_, missions, err := exec.ExecuteCOA(context.Background(), c, "sat-1")
	require.NoError(t, err)

	exec.HandleMissionFailure(context.Background(), missions[1], "burn aborted")

	saved, ok, err := coas.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.COAFailed, saved.Status)
	assert.Equal(t, "burn aborted", saved.FailureReason)
	assert.Equal(t, 1, alarms.Summary().ActiveMajor)
}

func TestSelectionEventDrivesExecutor(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	coas := store.NewMemoryCOAStore()
	conjunctions := store.NewMemoryConjunctionStore()
	missions := store.NewMemoryMissionStore()
	bus := eventbus.New(logger.NewDefault("test"))
	alarms := alarmbus.New(alarmbus.Config{}, store.NewMemoryAlarmStore(), bus, clk, logger.NewDefault("test"))
	exec := NewExecutor(missions, coas, &fakeEnqueuer{}, alarms, bus, clk, logger.NewDefault("test"))

	require.NoError(t, exec.Start(ctx))
	defer func() { _ = exec.Stop(ctx) }()

	require.NoError(t, conjunctions.Upsert(ctx, store.Conjunction{ID: "conj-1", AssetID: "sat-1"}))
	require.NoError(t, coas.Save(ctx, store.COA{
		ID: "c1", ConjunctionID: "conj-1", Type: store.COARetrogradeBurn, Status: store.COAProposed,
		BurnStartTime: clk.Now().Add(2 * time.Hour), BurnDurationSeconds: 60,
	}))

	sel := NewSelection(coas, conjunctions, bus, clk)
	_, err := sel.Select(ctx, "c1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok, err := coas.Get(ctx, "c1")
		return err == nil && ok && c.Status == store.COAExecuting
	}, time.Second, time.Millisecond, "the COASelected event should drive the executor to executing")
}

func TestGetExecutionStatusAggregatesMissionCounts(t *testing.T) {
	exec, _, _, missions, _, _ := newTestCOAExecutor(t)
	require.NoError(t, missions.Save(context.Background(), store.Mission{ID: "m1", COAID: "c1", Status: store.MissionCompleted}))
	require.NoError(t, missions.Save(context.Background(), store.Mission{ID: "m2", COAID: "c1", Status: store.MissionFailed}))
	require.NoError(t, missions.Save(context.Background(), store.Mission{ID: "m3", COAID: "c1", Status: store.MissionRunning}))

	status, err := exec.GetExecutionStatus(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalMissions)
	assert.Equal(t, 1, status.CompletedCount)
	assert.Equal(t, 1, status.FailedCount)
	assert.InDelta(t, 100.0/3, status.PercentProgress, 1e-9)
}

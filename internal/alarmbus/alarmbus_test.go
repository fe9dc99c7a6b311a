package alarmbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
	"github.com/stellarops/core/pkg/logger"
)

func newTestBus(t *testing.T) (*Bus, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := New(Config{}, store.NewMemoryAlarmStore(), eventbus.New(logger.NewDefault("test")), clk, logger.NewDefault("test"))
	return bus, clk
}

func TestRaiseProducesDistinctIDsForSameTypeAndSource(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	a1 := b.Raise(ctx, "stale_tle_data", store.SeverityWarning, "m", "tle-watcher", values.Null)
	a2 := b.Raise(ctx, "stale_tle_data", store.SeverityWarning, "m", "tle-watcher", values.Null)
	assert.NotEqual(t, a1.ID, a2.ID)
}

func TestAcknowledgeIsIdempotentAndMonotonic(t *testing.T) {
	b, clk := newTestBus(t)
	ctx := context.Background()

	a := b.Raise(ctx, "coa_execution_failed", store.SeverityMajor, "m", "mission:x", values.Null)

	ack1, err := b.Acknowledge(ctx, a.ID, "op")
	require.NoError(t, err)
	assert.Equal(t, store.AlarmAcknowledged, ack1.Status)
	assert.Equal(t, "op", *ack1.AcknowledgedBy)
	firstAckTime := *ack1.AcknowledgedAt

	clk.Advance(time.Hour)
	ack2, err := b.Acknowledge(ctx, a.ID, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, store.AlarmAcknowledged, ack2.Status)
	assert.Equal(t, "op", *ack2.AcknowledgedBy, "already-acknowledged fields must not change")
	assert.Equal(t, firstAckTime, *ack2.AcknowledgedAt, "timestamp must not regress or advance once set")
}

func TestResolveAfterAcknowledgeLifecycle(t *testing.T) {
	b, clk := newTestBus(t)
	ctx := context.Background()

	a := b.Raise(ctx, "stale_tle_data", store.SeverityWarning, "m", "tle-watcher", values.Null)
	assert.Equal(t, store.AlarmActive, a.Status)

	clk.Advance(time.Minute)
	acked, err := b.Acknowledge(ctx, a.ID, "op")
	require.NoError(t, err)
	require.Equal(t, store.AlarmAcknowledged, acked.Status)

	clk.Advance(time.Minute)
	resolved, err := b.Resolve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AlarmResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.After(*resolved.AcknowledgedAt) || resolved.ResolvedAt.Equal(*resolved.AcknowledgedAt))

	// A subsequent acknowledge on a resolved alarm is a no-op that still
	// succeeds without changing any field.
	again, err := b.Acknowledge(ctx, a.ID, "another-op")
	require.NoError(t, err)
	assert.Equal(t, store.AlarmResolved, again.Status)
}

func TestSummaryCountsActiveCriticalAndMajor(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	b.Raise(ctx, "a", store.SeverityCritical, "m", "s", values.Null)
	b.Raise(ctx, "b", store.SeverityMajor, "m", "s", values.Null)
	b.Raise(ctx, "c", store.SeverityMinor, "m", "s", values.Null)

	sum := b.Summary()
	assert.Equal(t, 1, sum.ActiveCritical)
	assert.Equal(t, 1, sum.ActiveMajor)
	assert.Equal(t, 3, sum.ByStatus[store.AlarmActive])
}

func TestListIsMostRecentFirst(t *testing.T) {
	b, clk := newTestBus(t)
	ctx := context.Background()

	first := b.Raise(ctx, "a", store.SeverityInfo, "m", "s", values.Null)
	clk.Advance(time.Second)
	second := b.Raise(ctx, "a", store.SeverityInfo, "m", "s", values.Null)

	list := b.List(ListFilter{})
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestPurgeResolvedOnlyRemovesOldResolvedAlarms(t *testing.T) {
	b, clk := newTestBus(t)
	ctx := context.Background()

	a := b.Raise(ctx, "a", store.SeverityInfo, "m", "s", values.Null)
	_, err := b.Resolve(ctx, a.ID)
	require.NoError(t, err)

	stillActive := b.Raise(ctx, "b", store.SeverityInfo, "m", "s", values.Null)

	clk.Advance(2 * time.Hour)
	n := b.PurgeResolved(ctx, clk.Now().Add(-time.Hour))
	assert.Equal(t, 1, n)

	list := b.List(ListFilter{})
	require.Len(t, list, 1)
	assert.Equal(t, stillActive.ID, list[0].ID)
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"orbital": {FailureThreshold: 3, FailureWindow: time.Minute, ResetTimeout: 50 * time.Millisecond},
	}, nil)
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := r.Call(ctx, "orbital", func(ctx context.Context) error { return boom }, nil)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, r.Breaker("orbital").State())

	// Next call is rejected outright; fn is never invoked.
	called := false
	err := r.Call(ctx, "orbital", func(ctx context.Context) error { called = true; return nil }, nil)
	require.Error(t, err)
	assert.False(t, called)

	counters := r.Breaker("orbital").Counters()
	assert.Equal(t, int64(3), counters.Failure)
	assert.Equal(t, int64(1), counters.Rejected)
}

func TestBreakerFallbackServedWhileOpen(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"celestrak": {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: 50 * time.Millisecond},
	}, nil)
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.Call(ctx, "celestrak", func(ctx context.Context) error { return boom }, nil)
	assert.ErrorIs(t, err, boom)
	require.Equal(t, StateOpen, r.Breaker("celestrak").State())

	fallbackRan := false
	err = r.Call(ctx, "celestrak", func(ctx context.Context) error { return nil }, func(ctx context.Context) error {
		fallbackRan = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, fallbackRan)
	assert.Equal(t, int64(1), r.Breaker("celestrak").Counters().Fallback)
}

func TestBreakerHalfOpenRecoversOnSingleSuccess(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"spacetrack": {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: 20 * time.Millisecond},
	}, nil)
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, r.Call(ctx, "spacetrack", func(ctx context.Context) error { return boom }, nil), boom)
	require.Equal(t, StateOpen, r.Breaker("spacetrack").State())

	time.Sleep(30 * time.Millisecond)

	err := r.Call(ctx, "spacetrack", func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, r.Breaker("spacetrack").State())
}

func TestOperationalModeDerivation(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"orbital":    {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: time.Hour},
		"celestrak":  {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: time.Hour},
		"spacetrack": {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: time.Hour},
		"intel":      {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: time.Hour},
	}, nil)
	ctx := context.Background()
	assert.Equal(t, ModeFull, r.OperationalMode())

	boom := errors.New("boom")
	r.Call(ctx, "celestrak", func(ctx context.Context) error { return boom }, nil)
	assert.Equal(t, ModeDegraded, r.OperationalMode())

	r.Call(ctx, "spacetrack", func(ctx context.Context) error { return boom }, nil)
	assert.Equal(t, ModeCritical, r.OperationalMode())

	r.Call(ctx, "intel", func(ctx context.Context) error { return boom }, nil)
	assert.Equal(t, ModeEmergency, r.OperationalMode())

	// Orbital open always forces critical, regardless of open count elsewhere.
	r2 := NewRegistry(map[string]Config{
		"orbital": {FailureThreshold: 1, FailureWindow: time.Minute, ResetTimeout: time.Hour},
	}, nil)
	r2.Call(ctx, "orbital", func(ctx context.Context) error { return boom }, nil)
	assert.Equal(t, ModeCritical, r2.OperationalMode())
}

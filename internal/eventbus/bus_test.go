package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarops/core/pkg/logger"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New(logger.NewDefault("test"))
	ch1, cancel1 := b.Subscribe("topic-a")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("topic-a")
	defer cancel2()

	b.Publish(context.Background(), "topic-a", "hello")

	m1 := <-ch1
	m2 := <-ch2
	assert.Equal(t, "hello", m1.Payload)
	assert.Equal(t, "hello", m2.Payload)
}

func TestPublishNeverBlocksWhenSubscriberQueueIsFull(t *testing.T) {
	b := New(logger.NewDefault("test"))
	ch, cancel := b.Subscribe("topic-full")
	defer cancel()

	// Fill the subscriber's bounded queue well past capacity without ever
	// draining it; Publish must never block the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueSize*4; i++ {
			b.Publish(context.Background(), "topic-full", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ch: // drain one in case a test runner schedules slowly
	}
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New(logger.NewDefault("test"))
	assert.NotPanics(t, func() {
		b.Publish(context.Background(), "nobody-listens", 1)
	})
}

func TestSubscriberCountReflectsCancel(t *testing.T) {
	b := New(logger.NewDefault("test"))
	assert.Equal(t, 0, b.SubscriberCount("t"))
	_, cancel := b.Subscribe("t")
	assert.Equal(t, 1, b.SubscriberCount("t"))
	cancel()
	assert.Equal(t, 0, b.SubscriberCount("t"))
}

func TestAlarmSourceTopic(t *testing.T) {
	assert.Equal(t, "alarms:satellite-1", AlarmSourceTopic("satellite-1"))
}

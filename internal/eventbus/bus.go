// Package eventbus implements topic-based pub/sub fan-out: per-topic FIFO
// delivery to each subscriber, no durability, and drop-oldest back-pressure
// so a slow subscriber can never stall a publisher.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellarops/core/pkg/logger"
)

// Message is one published event: its topic and an opaque payload. Payload
// shapes are documented at each publisher.
type Message struct {
	Topic     string
	Payload   any
	Published time.Time
}

// subscriberQueueSize bounds each subscriber's inbox. Once full, the oldest
// queued message is dropped to make room for the newest.
const subscriberQueueSize = 256

type subscription struct {
	id     uint64
	ch     chan Message
	mu     sync.Mutex
	closed bool
}

func (s *subscription) deliver(msg Message, dropped *prometheus.CounterVec, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
		return
	default:
	}
	// Full: drop the oldest queued message, then enqueue the new one.
	select {
	case <-s.ch:
		if dropped != nil {
			dropped.WithLabelValues(topic).Inc()
		}
	default:
	}
	select {
	case s.ch <- msg:
	default:
		// Lost the race against another deliver; message is dropped too.
		if dropped != nil {
			dropped.WithLabelValues(topic).Inc()
		}
	}
}

// Bus is a topic table guarded by a read-write mutex: publishers never
// block on subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*subscription
	nextID  uint64
	log     *logger.Logger
	dropped *prometheus.CounterVec
}

// New creates an empty Bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("event-bus")
	}
	return &Bus{
		subs: make(map[string][]*subscription),
		log:  log,
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stellarops_eventbus_dropped_messages_total",
			Help: "Messages dropped from a subscriber's queue due to back-pressure.",
		}, []string{"topic"}),
	}
}

// Collector exposes the bus's Prometheus metrics for registration by the
// entrypoint; the bus itself never registers with a global registry.
func (b *Bus) Collector() prometheus.Collector { return b.dropped }

// Subscribe returns a receive-only channel of messages published to topic.
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe(topic string) (<-chan Message, func()) {
	sub := &subscription{ch: make(chan Message, subscriberQueueSize)}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		list := b.subs[topic]
		for i, s := range list {
			if s == sub {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish fans msg out to every subscriber of topic. It never blocks on a
// slow subscriber: full queues drop their oldest entry.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	msg := Message{Topic: topic, Payload: payload, Published: time.Now().UTC()}
	for _, s := range subs {
		s.deliver(msg, b.dropped, topic)
	}
}

// SubscriberCount reports how many subscribers a topic currently has
// (diagnostic / test use).
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Well-known topics.
const (
	TopicAlarmsAll        = "alarms:all"
	TopicSSAConjunctions  = "ssa:conjunctions"
	TopicSSACOA           = "ssa:coa"
	TopicMissionsAll      = "missions:all"
	TopicCOAUpdates       = "coa:updates"
)

// AlarmSourceTopic builds the per-source alarm topic "alarms:{source}".
func AlarmSourceTopic(source string) string {
	return "alarms:" + source
}

// MissionTopic builds the per-satellite mission topic
// "missions:{satellite_id}".
func MissionTopic(satelliteID string) string {
	return "missions:" + satelliteID
}

// Package alarmbus implements the authoritative in-memory alarm index with
// DB write-through. The index is single-owner and serialized, so readers
// never race a writer.
package alarmbus

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
	"github.com/stellarops/core/internal/xerrors"
	"github.com/stellarops/core/pkg/logger"
)

// AlarmRaised is the payload published on "alarms:all" and
// "alarms:{source}".
type AlarmRaised struct {
	Alarm store.Alarm
}

// Config controls retention.
type Config struct {
	RetentionSeconds int
}

// Bus is the alarm bus component.
type Bus struct {
	cfg   Config
	store store.AlarmStore
	bus   *eventbus.Bus
	clk   clock.Clock
	ids   clock.IDGenerator
	log   *logger.Logger

	mu    sync.Mutex // serializes all index mutation
	index map[string]store.Alarm
	order []string // created_at desc, id desc
}

// New builds an alarm Bus.
func New(cfg Config, st store.AlarmStore, bus *eventbus.Bus, clk clock.Clock, log *logger.Logger) *Bus {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("alarm-bus")
	}
	if cfg.RetentionSeconds <= 0 {
		cfg.RetentionSeconds = 86400
	}
	return &Bus{
		cfg:   cfg,
		store: st,
		bus:   bus,
		clk:   clk,
		ids:   clock.UUIDGenerator{},
		log:   log,
		index: make(map[string]store.Alarm),
	}
}

// Name identifies this component for the supervising entrypoint.
func (b *Bus) Name() string { return "alarm-bus" }

// Start rehydrates the in-memory index from the store.
func (b *Bus) Start(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	alarms, err := b.store.LoadAll(ctx)
	if err != nil {
		b.log.WithError(err).Warn("alarm bus rehydration failed, starting empty")
		return nil
	}
	b.mu.Lock()
	for _, a := range alarms {
		b.index[a.ID] = a
	}
	b.reorderLocked()
	b.mu.Unlock()
	return nil
}

// Stop is a no-op; the bus holds no background goroutine.
func (b *Bus) Stop(_ context.Context) error { return nil }

// Ready always reports ready.
func (b *Bus) Ready(_ context.Context) error { return nil }

// Raise creates and indexes a new alarm. Persist failures degrade to an
// in-memory-only alarm with a warning log; they never propagate to the
// caller.
func (b *Bus) Raise(ctx context.Context, alarmType string, severity store.AlarmSeverity, message, source string, details values.Value) store.Alarm {
	a := store.Alarm{
		ID:        b.ids.NewID(),
		Type:      alarmType,
		Severity:  severity,
		Message:   message,
		Source:    source,
		Details:   details,
		Status:    store.AlarmActive,
		CreatedAt: b.clk.Now(),
	}

	if b.store != nil {
		if err := b.store.Save(ctx, a); err != nil {
			b.log.WithError(err).WithField("alarm_id", a.ID).Warn("alarm persist failed, continuing in-memory only")
		}
	}

	b.mu.Lock()
	b.index[a.ID] = a
	b.reorderLocked()
	b.mu.Unlock()

	b.bus.Publish(ctx, eventbus.TopicAlarmsAll, AlarmRaised{Alarm: a})
	b.bus.Publish(ctx, eventbus.AlarmSourceTopic(source), AlarmRaised{Alarm: a})

	return a
}

// Acknowledge sets status to acknowledged; idempotent on fields already
// set.
func (b *Bus) Acknowledge(ctx context.Context, id, user string) (store.Alarm, error) {
	b.mu.Lock()
	a, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return store.Alarm{}, xerrors.NotFound("alarm", id)
	}
	if a.Status == store.AlarmActive {
		now := b.clk.Now()
		a.Status = store.AlarmAcknowledged
		a.AcknowledgedAt = &now
		u := user
		a.AcknowledgedBy = &u
		b.index[id] = a
	}
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(ctx, a); err != nil {
			b.log.WithError(err).WithField("alarm_id", id).Warn("alarm ack persist failed")
		}
	}
	b.bus.Publish(ctx, eventbus.TopicAlarmsAll, AlarmRaised{Alarm: a})
	return a, nil
}

// Resolve sets status to resolved (monotonic; resolved alarms stay
// queryable until purged).
func (b *Bus) Resolve(ctx context.Context, id string) (store.Alarm, error) {
	b.mu.Lock()
	a, ok := b.index[id]
	if !ok {
		b.mu.Unlock()
		return store.Alarm{}, xerrors.NotFound("alarm", id)
	}
	if a.Status != store.AlarmResolved {
		now := b.clk.Now()
		a.Status = store.AlarmResolved
		a.ResolvedAt = &now
		b.index[id] = a
	}
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(ctx, a); err != nil {
			b.log.WithError(err).WithField("alarm_id", id).Warn("alarm resolve persist failed")
		}
	}
	b.bus.Publish(ctx, eventbus.TopicAlarmsAll, AlarmRaised{Alarm: a})
	return a, nil
}

// ListFilter configures List.
type ListFilter struct {
	Status       *store.AlarmStatus
	Severity     *store.AlarmSeverity
	SourcePrefix string
	Limit        int
}

// List returns alarms most-recent-first (created_at desc, id desc
// secondary).
func (b *Bus) List(filter ListFilter) []store.Alarm {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]store.Alarm, 0, len(b.order))
	for _, id := range b.order {
		a := b.index[id]
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.Severity != nil && a.Severity != *filter.Severity {
			continue
		}
		if filter.SourcePrefix != "" && !strings.HasPrefix(a.Source, filter.SourcePrefix) {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Summary is the counts breakdown by status and severity.
type Summary struct {
	ByStatus       map[store.AlarmStatus]int
	BySeverity     map[store.AlarmSeverity]int
	ActiveCritical int
	ActiveMajor    int
}

// Summary computes counts grouped by status and severity plus precomputed
// active_critical and active_major.
func (b *Bus) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Summary{ByStatus: make(map[store.AlarmStatus]int), BySeverity: make(map[store.AlarmSeverity]int)}
	for _, a := range b.index {
		s.ByStatus[a.Status]++
		s.BySeverity[a.Severity]++
		if a.Status == store.AlarmActive {
			if a.Severity == store.SeverityCritical {
				s.ActiveCritical++
			}
			if a.Severity == store.SeverityMajor {
				s.ActiveMajor++
			}
		}
	}
	return s
}

// PurgeResolved deletes resolved alarms older than olderThan from both the
// in-memory index and the store, returning the count deleted.
func (b *Bus) PurgeResolved(ctx context.Context, olderThan time.Time) int {
	b.mu.Lock()
	var toDelete []string
	for id, a := range b.index {
		if a.Status == store.AlarmResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(olderThan) {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		delete(b.index, id)
	}
	b.reorderLocked()
	b.mu.Unlock()

	if b.store != nil {
		for _, id := range toDelete {
			if err := b.store.Delete(ctx, id); err != nil {
				b.log.WithError(err).WithField("alarm_id", id).Warn("alarm purge persist failed")
			}
		}
	}
	return len(toDelete)
}

// reorderLocked rebuilds b.order; callers must hold b.mu.
func (b *Bus) reorderLocked() {
	ids := make([]string, 0, len(b.index))
	for id := range b.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ai, aj := b.index[ids[i]], b.index[ids[j]]
		if !ai.CreatedAt.Equal(aj.CreatedAt) {
			return ai.CreatedAt.After(aj.CreatedAt)
		}
		return ai.ID > aj.ID
	})
	b.order = ids
}

// Package scheduler implements the priority Mission Scheduler: a priority
// queue ordered by (priority, deadline ascending nil-last, enqueue-order
// ascending), admitting missions against satellite eligibility from a
// ticker-driven dispatch loop. The queue itself is container/heap.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/mission"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/xerrors"
	"github.com/stellarops/core/pkg/logger"
)

// Admitter hands an admitted (pending->scheduled) mission to its executor.
type Admitter interface {
	Admit(ctx context.Context, m store.Mission)
}

// Config controls the scheduler's dispatch loop.
type Config struct {
	TickInterval time.Duration
	BackoffBase  time.Duration
}

// item is one entry in the heap.
type item struct {
	mission  store.Mission
	notReadyUntil time.Time
	index    int
}

type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	a, b := pq[i].mission, pq[j].mission
	if a.Priority != b.Priority {
		return a.Priority < b.Priority // critical(0) < high(1) < normal(2) < low(3)
	}
	if (a.Deadline == nil) != (b.Deadline == nil) {
		return a.Deadline != nil // non-nil deadline sorts before nil
	}
	if a.Deadline != nil && !a.Deadline.Equal(*b.Deadline) {
		return a.Deadline.Before(*b.Deadline)
	}
	return a.EnqueueSeq < b.EnqueueSeq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// Scheduler is the priority Mission Scheduler.
type Scheduler struct {
	cfg       Config
	fleet     *satellite.Fleet
	validator *mission.Validator
	missions  store.MissionStore
	admitter  Admitter
	clk       clock.Clock
	log       *logger.Logger
	ids       clock.IDGenerator

	mu       sync.Mutex
	pq       priorityQueue
	seq      int64
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New builds a Scheduler.
func New(cfg Config, fleet *satellite.Fleet, validator *mission.Validator, missions store.MissionStore, admitter Admitter, clk clock.Clock, log *logger.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 1 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("mission-scheduler")
	}
	return &Scheduler{
		cfg: cfg, fleet: fleet, validator: validator, missions: missions, admitter: admitter,
		clk: clk, log: log, ids: clock.UUIDGenerator{},
		pq: make(priorityQueue, 0), stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// Name identifies this component for the supervising entrypoint.
func (s *Scheduler) Name() string { return "mission-scheduler" }

// SetAdmitter rebinds the Admitter after construction. The entrypoint's
// wiring is a three-way cycle (scheduler -> executor -> coa executor ->
// scheduler), so the executor is built after the scheduler and wired back in.
func (s *Scheduler) SetAdmitter(a Admitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admitter = a
}

// Start begins the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()
	go s.run(ctx)
	return nil
}

// Stop halts the dispatch loop and waits for it to exit.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopCh)
	<-s.doneCh
	return nil
}

// Ready always reports ready.
func (s *Scheduler) Ready(_ context.Context) error { return nil }

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.dispatchReady(ctx)
		}
	}
}

// Enqueue adds a pending mission to the queue, stamping its enqueue sequence.
func (s *Scheduler) Enqueue(m store.Mission) store.Mission {
	s.mu.Lock()
	s.seq++
	m.EnqueueSeq = s.seq
	m.Status = store.MissionPending
	heap.Push(&s.pq, &item{mission: m})
	s.mu.Unlock()
	return m
}

// dispatchReady pops missions whose satellite is currently eligible and
// hands them to the Admitter; non-eligible missions are reinserted with a
// back-off.
func (s *Scheduler) dispatchReady(ctx context.Context) {
	now := s.clk.Now()
	for {
		m, ok := s.popReady(now)
		if !ok {
			return
		}
		if err := s.validator.ValidateForExecution(ctx, m); err != nil {
			s.reinsertWithBackoff(m, now)
			continue
		}
		m.Status = store.MissionScheduled
		m.UpdatedAt = now
		if s.missions != nil {
			if saveErr := s.missions.Save(ctx, m); saveErr != nil {
				s.log.WithError(saveErr).WithField("mission_id", m.ID).Warn("mission scheduled-state persist failed")
			}
		}
		s.admitter.Admit(ctx, m)
	}
}

// popReady returns the next ready mission in priority order, skipping past
// (and reinserting) any heap entries still backed off. A single
// temporarily-ineligible mission at the root must not block dispatch of
// lower-priority missions behind it.
func (s *Scheduler) popReady(now time.Time) (store.Mission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []*item
	var found *item
	for s.pq.Len() > 0 {
		top := s.pq[0]
		if top.notReadyUntil.After(now) {
			skipped = append(skipped, heap.Pop(&s.pq).(*item))
			continue
		}
		found = heap.Pop(&s.pq).(*item)
		break
	}
	for _, it := range skipped {
		heap.Push(&s.pq, it)
	}
	if found == nil {
		return store.Mission{}, false
	}
	return found.mission, true
}

func (s *Scheduler) reinsertWithBackoff(m store.Mission, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.pq, &item{mission: m, notReadyUntil: now.Add(s.cfg.BackoffBase)})
}

// Cancel marks a pending or scheduled mission canceled. Cancellation is
// cooperative and only legal in {pending, scheduled}.
func (s *Scheduler) Cancel(ctx context.Context, missionID string) error {
	s.mu.Lock()
	for _, it := range s.pq {
		if it.mission.ID == missionID {
			if it.mission.Status != store.MissionPending && it.mission.Status != store.MissionScheduled {
				s.mu.Unlock()
				return xerrors.InvalidState("mission is not cancelable from status " + it.mission.Status.String())
			}
			it.mission.Status = store.MissionCanceled
			it.mission.UpdatedAt = s.clk.Now()
			canceled := it.mission
			s.removeLocked(it)
			s.mu.Unlock()
			if s.missions != nil {
				return s.missions.Save(ctx, canceled)
			}
			return nil
		}
	}
	s.mu.Unlock()
	return xerrors.NotFound("mission", missionID)
}

func (s *Scheduler) removeLocked(it *item) {
	if it.index < 0 || it.index >= s.pq.Len() {
		return
	}
	heap.Remove(&s.pq, it.index)
}

// Len reports the number of missions currently queued (diagnostic/test use).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pq.Len()
}

package coa

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
	"github.com/stellarops/core/internal/xerrors"
	"github.com/stellarops/core/pkg/logger"
)

// MissionEnqueuer is the subset of scheduler.Scheduler the COA Executor
// depends on: it only ever enqueues new missions, never dispatches them.
type MissionEnqueuer interface {
	Enqueue(m store.Mission) store.Mission
}

// Executor is the COA Executor component: it converts a selected COA into
// its mission chain and tracks the chain's outcome.
type Executor struct {
	missions store.MissionStore
	coas     store.COAStore
	scheduler MissionEnqueuer
	alarms   *alarmbus.Bus
	bus      *eventbus.Bus
	clk      clock.Clock
	ids      clock.IDGenerator
	log      *logger.Logger

	mu          sync.Mutex
	missionToCOA map[string]string // mission id -> coa id, for routing completions

	unsubscribe func()
}

// NewExecutor builds a COA Executor.
func NewExecutor(missions store.MissionStore, coas store.COAStore, scheduler MissionEnqueuer, alarms *alarmbus.Bus, bus *eventbus.Bus, clk clock.Clock, log *logger.Logger) *Executor {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("coa-executor")
	}
	return &Executor{
		missions: missions, coas: coas, scheduler: scheduler, alarms: alarms, bus: bus,
		clk: clk, ids: clock.UUIDGenerator{}, log: log, missionToCOA: make(map[string]string),
	}
}

// Name identifies this component for the supervising entrypoint.
func (e *Executor) Name() string { return "coa-executor" }

// Start subscribes to ssa:coa so COAs selected through the Selection
// service are executed without the caller holding a reference to this
// executor. Mission completions are still routed in explicitly via
// HandleMissionComplete/HandleMissionFailure.
func (e *Executor) Start(ctx context.Context) error {
	ch, cancel := e.bus.Subscribe(eventbus.TopicSSACOA)
	e.unsubscribe = cancel
	go e.consumeSelections(ctx, ch)
	return nil
}

// Stop releases the ssa:coa subscription.
func (e *Executor) Stop(_ context.Context) error {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	return nil
}

// Ready always reports ready.
func (e *Executor) Ready(_ context.Context) error { return nil }

func (e *Executor) consumeSelections(ctx context.Context, ch <-chan eventbus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			selected, ok := msg.Payload.(COASelected)
			if !ok {
				continue
			}
			if selected.AssetID == "" {
				e.log.WithField("coa_id", selected.COA.ID).Warn("coa selected without a resolvable asset, not executing")
				continue
			}
			if _, _, err := e.ExecuteCOA(ctx, selected.COA, selected.AssetID); err != nil {
				e.log.WithError(err).WithField("coa_id", selected.COA.ID).Warn("selected coa failed to execute")
			}
		}
	}
}

// ExecuteCOA transitions a COA from selected to executing, builds its
// mission sequence and enqueues it. On any creation failure the COA is
// reverted to selected. assetID is the satellite the underlying conjunction
// protects, resolved by the caller from the conjunction record (the COA
// entity itself only carries conjunction_id).
func (e *Executor) ExecuteCOA(ctx context.Context, c store.COA, assetID string) (store.COA, []store.Mission, error) {
	if c.Status != store.COASelected {
		return c, nil, xerrors.InvalidState("coa must be selected to execute, got " + c.Status.String())
	}

	c.Status = store.COAExecuting
	c.UpdatedAt = e.clk.Now()
	if err := e.coas.Save(ctx, c); err != nil {
		return c, nil, xerrors.Wrap(xerrors.KindTransient, "coa status persist failed", err)
	}

	if c.Type == store.COAStationKeeping {
		c.Status = store.COACompleted
		c.UpdatedAt = e.clk.Now()
		if err := e.coas.Save(ctx, c); err != nil {
			e.log.WithError(err).WithField("coa_id", c.ID).Warn("coa completion persist failed")
		}
		e.bus.Publish(ctx, eventbus.TopicCOAUpdates, COACompleted{COA: c})
		return c, nil, nil
	}

	missions, err := e.buildMissionSequence(c, assetID)
	if err != nil {
		c.Status = store.COASelected
		c.UpdatedAt = e.clk.Now()
		if saveErr := e.coas.Save(ctx, c); saveErr != nil {
			e.log.WithError(saveErr).WithField("coa_id", c.ID).Warn("coa revert persist failed")
		}
		return c, nil, err
	}

	e.mu.Lock()
	for _, m := range missions {
		e.missionToCOA[m.ID] = c.ID
	}
	e.mu.Unlock()

	for i, m := range missions {
		enqueued := e.scheduler.Enqueue(m)
		missions[i] = enqueued
		if e.missions != nil {
			if err := e.missions.Save(ctx, enqueued); err != nil {
				e.log.WithError(err).WithField("mission_id", enqueued.ID).Warn("mission persist failed")
			}
		}
	}

	e.bus.Publish(ctx, eventbus.TopicCOAUpdates, COAExecuting{COA: c, Missions: missions})
	return c, missions, nil
}

// buildMissionSequence builds the 3-mission chain for non-station-keeping
// COAs: pre-burn, burn, verify.
func (e *Executor) buildMissionSequence(c store.COA, assetID string) ([]store.Mission, error) {
	burnStart := c.BurnStartTime
	burnEnd := burnStart.Add(time.Duration(c.BurnDurationSeconds) * time.Second)

	preBurnStart := burnStart.Add(-30 * time.Minute)
	preBurnDeadline := burnStart
	burnDeadline := burnEnd.Add(300 * time.Second)
	verifyStart := burnEnd.Add(60 * time.Second)
	verifyDeadline := verifyStart.Add(3600 * time.Second)

	now := e.clk.Now()

	preBurn := store.Mission{
		ID: e.ids.NewID(), SatelliteID: assetID, COAID: c.ID, Type: "coa_pre_burn",
		Priority: store.PriorityHigh, Status: store.MissionPending,
		ScheduledStart: &preBurnStart, Deadline: &preBurnDeadline,
		RequiredEnergy: 10, RequiredMemory: 5,
		Payload:   values.FromAny(map[string]any{"delta_v_ms": c.DeltaVMagnitudeMS, "direction": c.DeltaVDirection}),
		MaxRetries: 2, CreatedAt: now, UpdatedAt: now,
	}
	burn := store.Mission{
		ID: e.ids.NewID(), SatelliteID: assetID, COAID: c.ID, Type: "coa_burn",
		Priority: store.PriorityCritical, Status: store.MissionPending,
		ScheduledStart: &burnStart, Deadline: &burnDeadline,
		RequiredEnergy: 30,
		Payload: values.FromAny(map[string]any{
			"delta_v_ms": c.DeltaVMagnitudeMS, "direction": c.DeltaVDirection,
			"duration_seconds": c.BurnDurationSeconds, "fuel_estimate_kg": c.EstimatedFuelKG,
		}),
		MaxRetries: 2, CreatedAt: now, UpdatedAt: now,
	}
	verify := store.Mission{
		ID: e.ids.NewID(), SatelliteID: assetID, COAID: c.ID, Type: "maneuver_verify",
		Priority: store.PriorityHigh, Status: store.MissionPending,
		ScheduledStart: &verifyStart, Deadline: &verifyDeadline,
		RequiredEnergy: 15, RequiredBandwidth: 1,
		Payload:    values.FromAny(map[string]any{"pre_burn_orbit": c.PreBurnOrbit, "post_burn_orbit": c.PostBurnOrbit}),
		MaxRetries: 2, CreatedAt: now, UpdatedAt: now,
	}
	return []store.Mission{preBurn, burn, verify}, nil
}

// HandleMissionComplete closes the COA when its verify mission completes:
// the COA transitions to completed and the post-burn orbit is checked
// against the prediction. Completions of other mission types are no-ops.
func (e *Executor) HandleMissionComplete(ctx context.Context, m store.Mission) {
	coaID, ok := e.coaIDFor(m.ID)
	if !ok || m.Type != "maneuver_verify" {
		return
	}
	c, found, err := e.coas.Get(ctx, coaID)
	if err != nil || !found {
		return
	}
	c.Status = store.COACompleted
	c.UpdatedAt = e.clk.Now()
	if err := e.coas.Save(ctx, c); err != nil {
		e.log.WithError(err).WithField("coa_id", c.ID).Warn("coa completion persist failed")
	}

	deviation := rmsDeviation(c.PreBurnOrbit, c.PostBurnOrbit)
	if deviation > 0.01 {
		e.log.WithFields(map[string]interface{}{
			"coa_id": c.ID, "rms_deviation": deviation,
		}).Warn("post-burn verification exceeded tolerance; correction COA would be requested")
	}

	e.bus.Publish(ctx, eventbus.TopicCOAUpdates, COACompleted{COA: c})
}

// HandleMissionFailure fails the COA with the mission's terminal failure
// reason and raises a major alarm.
func (e *Executor) HandleMissionFailure(ctx context.Context, m store.Mission, reason string) {
	coaID, ok := e.coaIDFor(m.ID)
	if !ok {
		return
	}
	c, found, err := e.coas.Get(ctx, coaID)
	if err != nil || !found {
		return
	}
	c.Status = store.COAFailed
	c.FailureReason = reason
	c.UpdatedAt = e.clk.Now()
	if err := e.coas.Save(ctx, c); err != nil {
		e.log.WithError(err).WithField("coa_id", c.ID).Warn("coa failure persist failed")
	}
	e.alarms.Raise(ctx, "coa_execution_failed", store.SeverityMajor, "coa execution failed: "+reason, "mission:"+m.ID, values.FromAny(map[string]any{"coa_id": c.ID}))
	e.bus.Publish(ctx, eventbus.TopicCOAUpdates, COAFailed{COA: c, Reason: reason})
}

func (e *Executor) coaIDFor(missionID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.missionToCOA[missionID]
	return id, ok
}

// ExecutionStatus aggregates mission statuses for a COA.
type ExecutionStatus struct {
	COAID           string
	TotalMissions   int
	CompletedCount  int
	FailedCount     int
	PercentProgress float64
}

// GetExecutionStatus reports per-COA mission counts and percent progress.
func (e *Executor) GetExecutionStatus(ctx context.Context, coaID string) (ExecutionStatus, error) {
	missions, err := e.missions.ByCOA(ctx, coaID)
	if err != nil {
		return ExecutionStatus{}, err
	}
	status := ExecutionStatus{COAID: coaID, TotalMissions: len(missions)}
	for _, m := range missions {
		switch m.Status {
		case store.MissionCompleted:
			status.CompletedCount++
		case store.MissionFailed:
			status.FailedCount++
		}
	}
	if status.TotalMissions > 0 {
		status.PercentProgress = float64(status.CompletedCount) / float64(status.TotalMissions) * 100
	}
	return status, nil
}

func rmsDeviation(pre, post store.OrbitSnapshot) float64 {
	da := relDelta(pre.SemiMajorAxisKM, post.SemiMajorAxisKM)
	de := relDelta(pre.Eccentricity, post.Eccentricity)
	di := relDelta(pre.InclinationDeg, post.InclinationDeg)
	return math.Sqrt((da*da + de*de + di*di) / 3)
}

func relDelta(pre, post float64) float64 {
	if pre == 0 {
		if post == 0 {
			return 0
		}
		return 1
	}
	return (post - pre) / pre
}

// COAExecuting is published on coa:updates when a selected COA begins
// executing.
type COAExecuting struct {
	COA      store.COA
	Missions []store.Mission
}

// COACompleted is published on coa:updates when a COA completes.
type COACompleted struct {
	COA store.COA
}

// COAFailed is published on coa:updates when a COA fails.
type COAFailed struct {
	COA    store.COA
	Reason string
}

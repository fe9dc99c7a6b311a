// Package conjunction implements the Conjunction Detector pipeline: a
// non-overlapping ticker cycle that propagates every protected asset and
// catalog object, finds the closest approach, classifies severity, and
// upserts+publishes+alarms. Catalog screening fans out under a bounded
// semaphore.
package conjunction

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/orbital"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
	"github.com/stellarops/core/pkg/logger"
)

// Config controls the detector's cycle.
type Config struct {
	IntervalMS            int
	HorizonHours          int
	StepSeconds           int
	MissDistanceThreshold float64
	CatalogConcurrency    int
}

// ConjunctionDetected is published on ssa:conjunctions.
type ConjunctionDetected struct {
	Conjunction store.Conjunction
}

// Detector is the Conjunction Detector component.
type Detector struct {
	cfg      Config
	fleet    *satellite.Fleet
	orbitalC orbital.Caller
	catalog  store.CatalogStore
	store    store.ConjunctionStore
	bus      *eventbus.Bus
	alarms   *alarmbus.Bus
	clk      clock.Clock
	ids      clock.IDGenerator
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Detector.
func New(cfg Config, fleet *satellite.Fleet, orbitalC orbital.Caller, catalog store.CatalogStore, cstore store.ConjunctionStore, bus *eventbus.Bus, alarms *alarmbus.Bus, clk clock.Clock, log *logger.Logger) *Detector {
	if cfg.IntervalMS <= 0 {
		cfg.IntervalMS = 60000
	}
	if cfg.HorizonHours <= 0 {
		cfg.HorizonHours = 24
	}
	if cfg.StepSeconds <= 0 {
		cfg.StepSeconds = 60
	}
	if cfg.MissDistanceThreshold <= 0 {
		cfg.MissDistanceThreshold = 10
	}
	if cfg.CatalogConcurrency <= 0 {
		cfg.CatalogConcurrency = 10
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("conjunction-detector")
	}
	return &Detector{
		cfg: cfg, fleet: fleet, orbitalC: orbitalC, catalog: catalog, store: cstore, bus: bus, alarms: alarms,
		clk: clk, ids: clock.UUIDGenerator{}, log: log, stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// Name identifies this component for the supervising entrypoint.
func (d *Detector) Name() string { return "conjunction-detector" }

// Start begins the ticking cycle.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()
	go d.loop(ctx)
	return nil
}

// Stop halts the ticking cycle.
func (d *Detector) Stop(_ context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()
	close(d.stopCh)
	<-d.doneCh
	return nil
}

// Ready always reports ready.
func (d *Detector) Ready(_ context.Context) error { return nil }

func (d *Detector) loop(ctx context.Context) {
	defer close(d.doneCh)
	ticker := time.NewTicker(time.Duration(d.cfg.IntervalMS) * time.Millisecond)
	defer ticker.Stop()

	var cycleMu sync.Mutex
	cycleInFlight := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			cycleMu.Lock()
			if cycleInFlight {
				cycleMu.Unlock()
				d.log.Warn("conjunction detector cycle skipped: previous cycle still running")
				continue
			}
			cycleInFlight = true
			cycleMu.Unlock()

			d.RunCycle(ctx)

			cycleMu.Lock()
			cycleInFlight = false
			cycleMu.Unlock()
		}
	}
}

// RunCycle executes one detection cycle synchronously. Exported so the
// supervising entrypoint or a cron trigger can invoke it directly in
// addition to the internal ticker.
func (d *Detector) RunCycle(ctx context.Context) {
	now := d.clk.Now()
	horizon := now.Add(time.Duration(d.cfg.HorizonHours) * time.Hour)

	assets := d.fleet.ListStates(ctx)
	catalogObjects, err := d.catalog.LoadAll(ctx)
	if err != nil {
		d.log.WithError(err).Warn("conjunction detector: catalog load failed, skipping cycle")
		return
	}

	for _, asset := range assets {
		if asset.TLE == nil {
			continue
		}
		assetTraj, err := d.orbitalC.PropagateTrajectory(ctx, asset.ID, asset.TLE.Line1, asset.TLE.Line2, now, horizon, d.cfg.StepSeconds)
		if err != nil {
			d.log.WithError(err).WithField("satellite_id", asset.ID).Warn("conjunction detector: asset propagation failed")
			continue
		}
		assetByTS := indexByTimestamp(assetTraj)

		d.screenAgainstCatalog(ctx, asset.ID, assetByTS, catalogObjects, now, horizon)
	}

	d.expirePastTCA(ctx, now)
}

func (d *Detector) screenAgainstCatalog(ctx context.Context, assetID string, assetByTS map[int64]store.Vector3, catalogObjects []store.CatalogObject, now, horizon time.Time) {
	sem := make(chan struct{}, d.cfg.CatalogConcurrency)
	var wg sync.WaitGroup

	for _, obj := range catalogObjects {
		if obj.TLELine1 == "" || obj.TLELine2 == "" {
			continue
		}
		obj := obj
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d.screenPair(ctx, assetID, assetByTS, obj, now, horizon)
		}()
	}
	wg.Wait()
}

func (d *Detector) screenPair(ctx context.Context, assetID string, assetByTS map[int64]store.Vector3, obj store.CatalogObject, now, horizon time.Time) {
	secTraj, err := d.orbitalC.PropagateTrajectory(ctx, obj.ID, obj.TLELine1, obj.TLELine2, now, horizon, d.cfg.StepSeconds)
	if err != nil {
		d.log.WithError(err).WithField("object_id", obj.ID).Warn("conjunction detector: catalog object propagation failed")
		return
	}

	minDist := math.Inf(1)
	var minTS int64
	var assetPos, secPos store.Vector3
	found := false

	for _, p := range secTraj {
		ap, ok := assetByTS[p.TimestampSec]
		if !ok {
			continue
		}
		dist := euclidean(ap, p.Position)
		if dist < minDist || (dist == minDist && (!found || p.TimestampSec < minTS)) {
			minDist = dist
			minTS = p.TimestampSec
			assetPos = ap
			secPos = p.Position
			found = true
		}
	}
	if !found || minDist >= d.cfg.MissDistanceThreshold {
		return
	}

	severity := store.ClassifySeverity(minDist)
	conj := store.Conjunction{
		ID:                     d.ids.NewID(),
		AssetID:                assetID,
		SecondaryObjectID:      obj.ID,
		TCA:                    time.Unix(minTS, 0).UTC(),
		MissDistanceKM:         minDist,
		Severity:               severity,
		Status:                 store.ConjunctionPredicted,
		AssetPositionAtTCA:     assetPos,
		SecondaryPositionAtTCA: secPos,
		CreatedAt:              d.clk.Now(),
		UpdatedAt:              d.clk.Now(),
	}
	if existing, ok, _ := d.store.ByAssetAndSecondary(ctx, assetID, obj.ID); ok {
		conj.ID = existing.ID
		conj.CreatedAt = existing.CreatedAt
	}

	if err := d.store.Upsert(ctx, conj); err != nil {
		d.log.WithError(err).WithField("conjunction_id", conj.ID).Warn("conjunction persist failed")
	}
	d.bus.Publish(ctx, eventbus.TopicSSAConjunctions, ConjunctionDetected{Conjunction: conj})

	if severity == store.ConjunctionCritical || severity == store.ConjunctionHigh {
		alarmSeverity := store.SeverityMinor
		switch severity {
		case store.ConjunctionCritical:
			alarmSeverity = store.SeverityCritical
		case store.ConjunctionHigh:
			alarmSeverity = store.SeverityMajor
		}
		d.alarms.Raise(ctx, "conjunction_detected", alarmSeverity, "conjunction detected below threshold", "satellite:"+assetID,
			values.FromAny(map[string]any{"conjunction_id": conj.ID, "miss_distance_km": minDist, "secondary_object_id": obj.ID}))
	}
}

func (d *Detector) expirePastTCA(ctx context.Context, now time.Time) {
	all, err := d.store.LoadAll(ctx)
	if err != nil {
		d.log.WithError(err).Warn("conjunction detector: expiry load failed")
		return
	}
	for _, c := range all {
		if c.TCA.Before(now) && c.Status != store.ConjunctionExpired && c.Status != store.ConjunctionResolved {
			c.Status = store.ConjunctionExpired
			c.UpdatedAt = now
			if err := d.store.Upsert(ctx, c); err != nil {
				d.log.WithError(err).WithField("conjunction_id", c.ID).Warn("conjunction expiry persist failed")
			}
		}
	}
}

func indexByTimestamp(traj []store.TrajectoryPoint) map[int64]store.Vector3 {
	m := make(map[int64]store.Vector3, len(traj))
	for _, p := range traj {
		m[p.TimestampSec] = p.Position
	}
	return m
}

func euclidean(a, b store.Vector3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

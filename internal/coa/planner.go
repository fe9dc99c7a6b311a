// Package coa implements the COA Planner and COA Executor: deterministic
// orbital-mechanics formulas for candidate maneuver plans, a weighted risk
// score, the operator selection lifecycle, and the state machine that turns
// a selected COA into an ordered mission chain. The arithmetic is
// deliberately simplified (circular orbits, single-burn Hohmann, fixed
// thrust) so that risk scores are deterministic and testable.
package coa

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/conjunction"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/pkg/logger"
)

const (
	muEarthKM3S2   = 398600.4418
	earthRadiusKMWGS84 = 6378.137
	g0MS2          = 9.80665
	ispSeconds     = 300
	thrustMS2      = 0.1
	altitudeDeltaKM = 10
	inclinationDeltaDeg = 0.1
)

// Config holds the planner's tunables. MaxDeltaVMS caps the commanded burn
// magnitude, FuelDensityKGPerMS prices a burn when the asset's wet mass is
// unknown, and ManeuverLeadTimeHours is how far ahead of TCA a burn is
// scheduled (shortened when the conjunction is closer than that).
type Config struct {
	MaxDeltaVMS          float64
	FuelDensityKGPerMS   float64
	ManeuverLeadTimeHours float64
}

// Planner is the COA Planner component.
type Planner struct {
	cfg   Config
	fleet *satellite.Fleet
	store store.COAStore
	bus   *eventbus.Bus
	clk   clock.Clock
	ids   clock.IDGenerator
	log   *logger.Logger

	unsubscribe func()
}

// New builds a Planner.
func New(cfg Config, fleet *satellite.Fleet, st store.COAStore, bus *eventbus.Bus, clk clock.Clock, log *logger.Logger) *Planner {
	if cfg.MaxDeltaVMS <= 0 {
		cfg.MaxDeltaVMS = 10
	}
	if cfg.FuelDensityKGPerMS <= 0 {
		cfg.FuelDensityKGPerMS = 0.05
	}
	if cfg.ManeuverLeadTimeHours <= 0 {
		cfg.ManeuverLeadTimeHours = 12
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NewDefault("coa-planner")
	}
	return &Planner{cfg: cfg, fleet: fleet, store: st, bus: bus, clk: clk, ids: clock.UUIDGenerator{}, log: log}
}

// Name identifies this component for the supervising entrypoint.
func (p *Planner) Name() string { return "coa-planner" }

// Start subscribes to conjunction_detected events; the planner holds no
// ticking loop of its own.
func (p *Planner) Start(ctx context.Context) error {
	ch, cancel := p.bus.Subscribe(eventbus.TopicSSAConjunctions)
	p.unsubscribe = cancel
	go p.consume(ctx, ch)
	return nil
}

// Stop releases the conjunction_detected subscription.
func (p *Planner) Stop(_ context.Context) error {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	return nil
}

// Ready always reports ready.
func (p *Planner) Ready(_ context.Context) error { return nil }

func (p *Planner) consume(ctx context.Context, ch <-chan eventbus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			detected, ok := msg.Payload.(conjunction.ConjunctionDetected)
			if !ok {
				continue
			}
			p.handleDetected(ctx, detected.Conjunction)
		}
	}
}

func (p *Planner) handleDetected(ctx context.Context, conj store.Conjunction) {
	state, err := p.fleet.GetState(ctx, conj.AssetID)
	if err != nil {
		p.log.WithField("asset_id", conj.AssetID).Warn("coa planner: no satellite linkage found, generating nothing")
		return
	}
	r := math.Sqrt(state.Position.X*state.Position.X + state.Position.Y*state.Position.Y + state.Position.Z*state.Position.Z)
	if r < earthRadiusKMWGS84 {
		r = earthRadiusKMWGS84 + 500 // fall back to a nominal LEO radius if no position has been observed yet
	}
	coas := p.Generate(conj, r, state.MassKg)
	if len(coas) == 0 {
		return
	}
	for _, c := range coas {
		if err := p.store.Save(ctx, c); err != nil {
			p.log.WithError(err).WithField("coa_id", c.ID).Warn("coa persist failed")
		}
	}
	p.bus.Publish(ctx, eventbus.TopicSSACOA, COAsGenerated{Conjunction: conj, COAs: coas})
}

// COAsGenerated is published on ssa:coa.
type COAsGenerated struct {
	Conjunction store.Conjunction
	COAs        []store.COA
}

// visVivaSpeed implements v = sqrt(mu * (2/r - 1/a)).
func visVivaSpeed(r, a float64) float64 {
	return math.Sqrt(muEarthKM3S2 * (2/r - 1/a))
}

// hohmannDeltaVMS returns the single-burn delta-v (m/s) for an altitude
// change of +/- altitudeDeltaKM at semi-major axis a (km, circular orbit
// assumption r == a).
func hohmannDeltaVMS(r float64, sign float64) float64 {
	r2 := r + sign*altitudeDeltaKM
	v1 := visVivaSpeed(r, r)
	v2 := visVivaSpeed(r2, r2)
	return math.Abs(v1-v2) * 1000 // km/s -> m/s
}

// planeChangeDeltaVMS implements delta_v = 2*v*sin(delta_i/2).
func planeChangeDeltaVMS(r float64) float64 {
	v := visVivaSpeed(r, r) * 1000
	deltaIRad := inclinationDeltaDeg * math.Pi / 180
	return 2 * v * math.Sin(deltaIRad/2)
}

// tsiolkovskyFuelKG implements m_f = m0 * (1 - e^(-dv/(g0*isp))).
func tsiolkovskyFuelKG(deltaVMS, massKG float64) float64 {
	return massKG * (1 - math.Exp(-deltaVMS/(g0MS2*ispSeconds)))
}

// estimateFuelKG prices a burn with the rocket equation when the asset's
// wet mass is known, falling back to the configured linear fuel density
// otherwise.
func (p *Planner) estimateFuelKG(deltaVMS, massKG float64) float64 {
	if massKG <= 0 {
		return deltaVMS * p.cfg.FuelDensityKGPerMS
	}
	return tsiolkovskyFuelKG(deltaVMS, massKG)
}

// burnDurationSeconds assumes constant thrust: duration = dv / thrust,
// with deltaVMS already in m/s.
func burnDurationSeconds(deltaVMS float64) float64 {
	return deltaVMS / thrustMS2
}

// missImprovementBonusKM is the fixed additive bonus per COA type.
func missImprovementBonusKM(t store.COAType) float64 {
	switch t {
	case store.COARetrogradeBurn, store.COAProgradeBurn:
		return 5
	case store.COAPhasing:
		return 8
	case store.COAInclinationChange:
		return 20
	default: // station_keeping
		return 0
	}
}

func fuelRiskComponent(fuelKG float64) float64 {
	return math.Min(fuelKG/50*100, 100)
}

func timeToTCARiskComponent(timeToTCA time.Duration) float64 {
	switch {
	case timeToTCA < time.Hour:
		return 100
	case timeToTCA < 2*time.Hour:
		return 75
	case timeToTCA < 4*time.Hour:
		return 50
	case timeToTCA < 12*time.Hour:
		return 25
	default:
		return 10
	}
}

func improvementRiskComponent(improvementKM float64) float64 {
	switch {
	case improvementKM >= 20:
		return 0
	case improvementKM >= 10:
		return 20
	case improvementKM >= 5:
		return 40
	case improvementKM >= 1:
		return 60
	case improvementKM > 0:
		return 80
	default:
		return 100
	}
}

func complexityRiskComponent(t store.COAType) float64 {
	switch t {
	case store.COAStationKeeping:
		return 0
	case store.COAProgradeBurn, store.COARetrogradeBurn:
		return 20
	case store.COAPhasing:
		return 50
	case store.COAInclinationChange:
		return 80
	default:
		return 50
	}
}

// riskScore is the weighted sum: fuel 30%, time-to-TCA 25%, improvement
// 30%, complexity 15%. 0 is best, 100 worst.
func riskScore(fuelKG float64, timeToTCA time.Duration, improvementKM float64, t store.COAType) float64 {
	return 0.30*fuelRiskComponent(fuelKG) +
		0.25*timeToTCARiskComponent(timeToTCA) +
		0.30*improvementRiskComponent(improvementKM) +
		0.15*complexityRiskComponent(t)
}

// feasible applies the per-type feasibility gates: burns need 2h to TCA,
// inclination changes 4h, phasing two orbital periods; station-keeping is
// always feasible.
func feasible(t store.COAType, timeToTCA time.Duration, orbitalPeriod time.Duration) bool {
	switch t {
	case store.COARetrogradeBurn, store.COAProgradeBurn:
		return timeToTCA >= 2*time.Hour
	case store.COAInclinationChange:
		return timeToTCA >= 4*time.Hour
	case store.COAPhasing:
		return orbitalPeriod > 0 && timeToTCA >= 2*orbitalPeriod
	default: // station_keeping
		return true
	}
}

func orbitalPeriodSeconds(r float64) time.Duration {
	periodSec := 2 * math.Pi * math.Sqrt(r*r*r/muEarthKM3S2)
	return time.Duration(periodSec) * time.Second
}

// Generate synthesizes every feasible COA type for a conjunction, scores
// them, and returns them sorted ascending by risk (best first). semiMajorAxisKM
// is the primary asset's orbital radius (assumed circular) used for the
// vis-viva/Hohmann/plane-change formulas; assetMassKG is its wet mass, or 0
// when unknown, in which case fuel is priced by the configured linear
// density instead of the rocket equation.
func (p *Planner) Generate(conj store.Conjunction, semiMajorAxisKM, assetMassKG float64) []store.COA {
	now := p.clk.Now()
	timeToTCA := conj.TCA.Sub(now)
	if timeToTCA <= 0 {
		return nil
	}
	period := orbitalPeriodSeconds(semiMajorAxisKM)

	types := []store.COAType{
		store.COARetrogradeBurn, store.COAProgradeBurn, store.COAInclinationChange,
		store.COAPhasing, store.COAStationKeeping,
	}

	pre := store.OrbitSnapshot{SemiMajorAxisKM: semiMajorAxisKM, Eccentricity: 0, InclinationDeg: 0}

	var out []store.COA
	for _, t := range types {
		if !feasible(t, timeToTCA, period) {
			continue
		}
		out = append(out, p.buildCOA(conj, t, semiMajorAxisKM, assetMassKG, timeToTCA, pre, now))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RiskScore < out[j].RiskScore })
	return out
}

func (p *Planner) buildCOA(conj store.Conjunction, t store.COAType, r, massKG float64, timeToTCA time.Duration, pre store.OrbitSnapshot, now time.Time) store.COA {
	var deltaVMS float64
	var direction store.Vector3
	post := pre

	switch t {
	case store.COARetrogradeBurn:
		deltaVMS = hohmannDeltaVMS(r, -1)
		direction = store.Vector3{X: -1, Y: 0, Z: 0}
		post.SemiMajorAxisKM = r - altitudeDeltaKM
	case store.COAProgradeBurn:
		deltaVMS = hohmannDeltaVMS(r, 1)
		direction = store.Vector3{X: 1, Y: 0, Z: 0}
		post.SemiMajorAxisKM = r + altitudeDeltaKM
	case store.COAInclinationChange:
		deltaVMS = planeChangeDeltaVMS(r)
		direction = store.Vector3{X: 0, Y: 0, Z: 1}
		post.InclinationDeg = pre.InclinationDeg + inclinationDeltaDeg
	case store.COAPhasing:
		deltaVMS = hohmannDeltaVMS(r, 1) * 2 // out-and-back phasing burn pair
		direction = store.Vector3{X: 1, Y: 0, Z: 0}
	default: // station_keeping
		deltaVMS = 0
		direction = store.Vector3{}
	}

	if deltaVMS > p.cfg.MaxDeltaVMS {
		deltaVMS = p.cfg.MaxDeltaVMS
	}

	fuelKG := p.estimateFuelKG(deltaVMS, massKG)
	durationSec := burnDurationSeconds(deltaVMS)
	improvement := missImprovementBonusKM(t)
	risk := riskScore(fuelKG, timeToTCA, improvement, t)

	lead := time.Duration(p.cfg.ManeuverLeadTimeHours * float64(time.Hour))
	if lead > timeToTCA/2 {
		lead = timeToTCA / 2
	}
	burnStart := conj.TCA.Add(-lead)
	if t == store.COAStationKeeping {
		burnStart = now
	}

	return store.COA{
		ID:                      p.ids.NewID(),
		ConjunctionID:           conj.ID,
		Type:                    t,
		DeltaVMagnitudeMS:       deltaVMS,
		DeltaVDirection:         direction,
		BurnStartTime:           burnStart,
		BurnDurationSeconds:     durationSec,
		EstimatedFuelKG:         fuelKG,
		PredictedMissDistanceKM: conj.MissDistanceKM + improvement,
		PreBurnOrbit:            pre,
		PostBurnOrbit:           post,
		RiskScore:               risk,
		Status:                  store.COAProposed,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

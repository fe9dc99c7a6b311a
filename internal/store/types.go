// Package store defines the persisted state shapes and store contracts:
// Go interfaces per entity, an in-memory implementation that is
// authoritative at runtime, and an optional Postgres-backed implementation
// (internal/store/postgres) of the AlarmStore and MissionStore interfaces
// for boot-time rehydration. The other stores have no Postgres adapter.
package store

import (
	"time"

	"github.com/stellarops/core/internal/values"
)

// AlarmSeverity is one of {critical, major, minor, warning, info}.
type AlarmSeverity int

const (
	SeverityCritical AlarmSeverity = iota
	SeverityMajor
	SeverityMinor
	SeverityWarning
	SeverityInfo
)

func (s AlarmSeverity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityMajor:
		return "major"
	case SeverityMinor:
		return "minor"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// AlarmStatus advances monotonically: active -> acknowledged -> resolved.
type AlarmStatus int

const (
	AlarmActive AlarmStatus = iota
	AlarmAcknowledged
	AlarmResolved
)

func (s AlarmStatus) String() string {
	switch s {
	case AlarmActive:
		return "active"
	case AlarmAcknowledged:
		return "acknowledged"
	case AlarmResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Alarm is one raised alarm record.
type Alarm struct {
	ID             string
	Type           string
	Severity       AlarmSeverity
	Message        string
	Source         string // convention "kind:id"
	Details        values.Value
	Status         AlarmStatus
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
	ResolvedAt     *time.Time
}

// ConjunctionSeverity is a deterministic function of miss distance at
// creation: critical<1km, high<5km, medium<10km, low>=10km.
type ConjunctionSeverity int

const (
	ConjunctionCritical ConjunctionSeverity = iota
	ConjunctionHigh
	ConjunctionMedium
	ConjunctionLow
)

func (s ConjunctionSeverity) String() string {
	switch s {
	case ConjunctionCritical:
		return "critical"
	case ConjunctionHigh:
		return "high"
	case ConjunctionMedium:
		return "medium"
	case ConjunctionLow:
		return "low"
	default:
		return "unknown"
	}
}

// ClassifySeverity implements the deterministic classification rule.
func ClassifySeverity(missDistanceKM float64) ConjunctionSeverity {
	switch {
	case missDistanceKM < 1:
		return ConjunctionCritical
	case missDistanceKM < 5:
		return ConjunctionHigh
	case missDistanceKM < 10:
		return ConjunctionMedium
	default:
		return ConjunctionLow
	}
}

// ConjunctionStatus is the conjunction record's lifecycle state.
type ConjunctionStatus int

const (
	ConjunctionPredicted ConjunctionStatus = iota
	ConjunctionActive
	ConjunctionMonitoring
	ConjunctionResolved
	ConjunctionExpired
)

func (s ConjunctionStatus) String() string {
	switch s {
	case ConjunctionPredicted:
		return "predicted"
	case ConjunctionActive:
		return "active"
	case ConjunctionMonitoring:
		return "monitoring"
	case ConjunctionResolved:
		return "resolved"
	case ConjunctionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Vector3 is a simple Cartesian vector in km (position) or km/s (velocity).
type Vector3 struct {
	X, Y, Z float64
}

// Conjunction is one predicted close approach between a protected asset
// and a catalog object.
type Conjunction struct {
	ID                   string
	AssetID              string
	SecondaryObjectID    string
	TCA                  time.Time
	MissDistanceKM       float64
	RelativeVelocityKMS  float64
	CollisionProbability *float64
	Severity             ConjunctionSeverity
	Status               ConjunctionStatus
	AssetPositionAtTCA   Vector3
	SecondaryPositionAtTCA Vector3
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// COAType is one of the five maneuver classes a planner can propose.
type COAType int

const (
	COARetrogradeBurn COAType = iota
	COAProgradeBurn
	COAInclinationChange
	COAPhasing
	COAStationKeeping
)

func (t COAType) String() string {
	switch t {
	case COARetrogradeBurn:
		return "retrograde_burn"
	case COAProgradeBurn:
		return "prograde_burn"
	case COAInclinationChange:
		return "inclination_change"
	case COAPhasing:
		return "phasing"
	case COAStationKeeping:
		return "station_keeping"
	default:
		return "unknown"
	}
}

// COAStatus is the COA's lifecycle state.
type COAStatus int

const (
	COAProposed COAStatus = iota
	COASelected
	COARejected
	COAExecuting
	COACompleted
	COAFailed
)

func (s COAStatus) String() string {
	switch s {
	case COAProposed:
		return "proposed"
	case COASelected:
		return "selected"
	case COARejected:
		return "rejected"
	case COAExecuting:
		return "executing"
	case COACompleted:
		return "completed"
	case COAFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OrbitSnapshot is a simplified Keplerian-element snapshot used for
// pre/post-burn comparisons.
type OrbitSnapshot struct {
	SemiMajorAxisKM float64 // a
	Eccentricity    float64 // e
	InclinationDeg  float64 // i
}

// COA is one Course-of-Action: a candidate maneuver plan responding to a
// conjunction.
type COA struct {
	ID                     string
	ConjunctionID          string
	Type                   COAType
	DeltaVMagnitudeMS      float64
	DeltaVDirection        Vector3 // unit vector
	BurnStartTime          time.Time
	BurnDurationSeconds    float64
	EstimatedFuelKG        float64
	PredictedMissDistanceKM float64
	PreBurnOrbit           OrbitSnapshot
	PostBurnOrbit          OrbitSnapshot
	RiskScore              float64 // [0,100]
	Status                 COAStatus
	FailureReason          string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// MissionPriority orders the scheduler's priority queue: critical < high <
// normal < low (lower value = higher priority).
type MissionPriority int

const (
	PriorityCritical MissionPriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p MissionPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// MissionStatus is the mission's lifecycle state.
type MissionStatus int

const (
	MissionPending MissionStatus = iota
	MissionScheduled
	MissionRunning
	MissionCompleted
	MissionFailed
	MissionCanceled
)

func (s MissionStatus) String() string {
	switch s {
	case MissionPending:
		return "pending"
	case MissionScheduled:
		return "scheduled"
	case MissionRunning:
		return "running"
	case MissionCompleted:
		return "completed"
	case MissionFailed:
		return "failed"
	case MissionCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Mission is one schedulable unit of satellite work.
type Mission struct {
	ID                string
	SatelliteID       string
	COAID             string // optional, empty if none
	Type              string
	Priority          MissionPriority
	Status            MissionStatus
	ScheduledStart    *time.Time
	Deadline          *time.Time
	RequiredEnergy    float64
	RequiredMemory    float64
	RequiredBandwidth float64
	Payload           values.Value
	RetryCount        int
	MaxRetries        int
	EnqueueSeq        int64 // tie-breaker: enqueue order, ascending
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TrajectoryPoint is one sample of a propagated trajectory.
type TrajectoryPoint struct {
	TimestampSec int64
	Position     Vector3
	Velocity     *Vector3
}

// SatelliteSnapshot is the periodically-checkpointed persisted view of a
// satellite actor's state, read back at boot to rehydrate the fleet.
type SatelliteSnapshot struct {
	ID         string
	Mode       string
	Energy     float64
	MemoryUsed float64
	Position   Vector3
	TLELine1   string
	TLELine2   string
	MassKg     float64
	UpdatedAt  time.Time
}

// GroundStation is consulted by the Mission Validator's downlink rule and
// the COA Executor's post-burn verify mission.
type GroundStation struct {
	ID             string
	Name           string
	LatitudeDeg    float64
	LongitudeDeg   float64
	AltitudeM      float64
	MinElevationDeg float64
	Online         bool
	BandwidthMbps  float64
}

// CatalogObject is a tracked object the Conjunction Detector screens
// protected assets against.
type CatalogObject struct {
	ID           string
	Name         string
	TLELine1     string
	TLELine2     string
	LastObserved time.Time
}

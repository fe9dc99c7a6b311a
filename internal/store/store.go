package store

import "context"

// AlarmStore persists alarms. Raise() on the owning bus writes through this
// interface before the alarm enters the in-memory index.
type AlarmStore interface {
	Save(ctx context.Context, a Alarm) error
	Get(ctx context.Context, id string) (Alarm, bool, error)
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]Alarm, error)
}

// ConjunctionStore persists conjunction records, written exclusively by the
// Conjunction Detector's cycle.
type ConjunctionStore interface {
	Upsert(ctx context.Context, c Conjunction) error
	Get(ctx context.Context, id string) (Conjunction, bool, error)
	LoadAll(ctx context.Context) ([]Conjunction, error)
	// ByAssetAndSecondary supports the detector's upsert-by-pair semantics.
	ByAssetAndSecondary(ctx context.Context, assetID, secondaryID string) (Conjunction, bool, error)
}

// COAStore persists COA candidates. The COA Executor owns status writes;
// the Planner writes new proposals.
type COAStore interface {
	Save(ctx context.Context, c COA) error
	Get(ctx context.Context, id string) (COA, bool, error)
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]COA, error)
	ByConjunction(ctx context.Context, conjunctionID string) ([]COA, error)
}

// MissionStore persists missions. The Scheduler owns pending->scheduled
// and {pending,scheduled}->canceled writes; the Executor owns
// scheduled->running->{completed,failed} and the running->scheduled retry.
type MissionStore interface {
	Save(ctx context.Context, m Mission) error
	Get(ctx context.Context, id string) (Mission, bool, error)
	LoadAll(ctx context.Context) ([]Mission, error)
	ByCOA(ctx context.Context, coaID string) ([]Mission, error)
}

// SatelliteSnapshotStore persists periodic satellite checkpoints for boot
// rehydration.
type SatelliteSnapshotStore interface {
	Save(ctx context.Context, s SatelliteSnapshot) error
	LoadAll(ctx context.Context) ([]SatelliteSnapshot, error)
}

// GroundStationStore persists ground station records consulted by the
// Mission Validator and COA Executor.
type GroundStationStore interface {
	Get(ctx context.Context, id string) (GroundStation, bool, error)
	LoadAll(ctx context.Context) ([]GroundStation, error)
}

// CatalogStore persists the tracked-object catalog the Conjunction
// Detector screens against.
type CatalogStore interface {
	LoadAll(ctx context.Context) ([]CatalogObject, error)
}

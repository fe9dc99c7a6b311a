// Package postgres provides optional Postgres-backed implementations of
// the internal/store AlarmStore and MissionStore interfaces (sqlx + lib/pq,
// explicit column lists on writes; reads select every column).
// This package exists so boot-time DB rehydration has somewhere real to
// plug in; the in-memory store remains authoritative at runtime.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/values"
)

// Open connects to a Postgres DSN via lib/pq and wraps it with sqlx for the
// convenience query helpers the store adapters use.
func Open(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	return db, nil
}

// AlarmStore is a Postgres-backed store.AlarmStore.
type AlarmStore struct{ db *sqlx.DB }

// NewAlarmStore wraps db as a store.AlarmStore.
func NewAlarmStore(db *sqlx.DB) *AlarmStore { return &AlarmStore{db: db} }

var _ store.AlarmStore = (*AlarmStore)(nil)

type alarmRow struct {
	ID             string         `db:"id"`
	Type           string         `db:"type"`
	Severity       string         `db:"severity"`
	Message        string         `db:"message"`
	Source         string         `db:"source"`
	Details        []byte         `db:"details"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	AcknowledgedAt sql.NullTime   `db:"acknowledged_at"`
	AcknowledgedBy sql.NullString `db:"acknowledged_by"`
	ResolvedAt     sql.NullTime   `db:"resolved_at"`
}

func (s *AlarmStore) Save(ctx context.Context, a store.Alarm) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ssa_alarms (id, type, severity, message, source, details, status, created_at, acknowledged_at, acknowledged_by, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			acknowledged_at = EXCLUDED.acknowledged_at,
			acknowledged_by = EXCLUDED.acknowledged_by,
			resolved_at = EXCLUDED.resolved_at
	`, a.ID, a.Type, a.Severity.String(), a.Message, a.Source, details, a.Status.String(),
		a.CreatedAt, toNullTime(a.AcknowledgedAt), toNullString(a.AcknowledgedBy), toNullTime(a.ResolvedAt))
	return err
}

func (s *AlarmStore) Get(ctx context.Context, id string) (store.Alarm, bool, error) {
	var row alarmRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM ssa_alarms WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return store.Alarm{}, false, nil
	}
	if err != nil {
		return store.Alarm{}, false, err
	}
	a, err := rowToAlarm(row)
	return a, true, err
}

func (s *AlarmStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ssa_alarms WHERE id = $1`, id)
	return err
}

func (s *AlarmStore) LoadAll(ctx context.Context) ([]store.Alarm, error) {
	var rows []alarmRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM ssa_alarms ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	out := make([]store.Alarm, 0, len(rows))
	for _, r := range rows {
		a, err := rowToAlarm(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func rowToAlarm(r alarmRow) (store.Alarm, error) {
	a := store.Alarm{
		ID: r.ID, Type: r.Type, Message: r.Message, Source: r.Source,
		Details: values.FromJSON(r.Details), CreatedAt: r.CreatedAt,
	}
	a.Severity = parseSeverity(r.Severity)
	a.Status = parseAlarmStatus(r.Status)
	if r.AcknowledgedAt.Valid {
		t := r.AcknowledgedAt.Time
		a.AcknowledgedAt = &t
	}
	if r.AcknowledgedBy.Valid {
		b := r.AcknowledgedBy.String
		a.AcknowledgedBy = &b
	}
	if r.ResolvedAt.Valid {
		t := r.ResolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}

func parseSeverity(s string) store.AlarmSeverity {
	switch s {
	case "critical":
		return store.SeverityCritical
	case "major":
		return store.SeverityMajor
	case "minor":
		return store.SeverityMinor
	case "warning":
		return store.SeverityWarning
	default:
		return store.SeverityInfo
	}
}

func parseAlarmStatus(s string) store.AlarmStatus {
	switch s {
	case "acknowledged":
		return store.AlarmAcknowledged
	case "resolved":
		return store.AlarmResolved
	default:
		return store.AlarmActive
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// MissionStore is a Postgres-backed store.MissionStore.
type MissionStore struct{ db *sqlx.DB }

// NewMissionStore wraps db as a store.MissionStore.
func NewMissionStore(db *sqlx.DB) *MissionStore { return &MissionStore{db: db} }

var _ store.MissionStore = (*MissionStore)(nil)

type missionRow struct {
	ID                string         `db:"id"`
	SatelliteID       string         `db:"satellite_id"`
	COAID             sql.NullString `db:"coa_id"`
	Type              string         `db:"type"`
	Priority          int            `db:"priority"`
	Status            int            `db:"status"`
	ScheduledStart    sql.NullTime   `db:"scheduled_start"`
	Deadline          sql.NullTime   `db:"deadline"`
	RequiredEnergy    float64        `db:"required_energy"`
	RequiredMemory    float64        `db:"required_memory"`
	RequiredBandwidth float64        `db:"required_bandwidth"`
	Payload           []byte         `db:"payload"`
	RetryCount        int            `db:"retry_count"`
	MaxRetries        int            `db:"max_retries"`
	EnqueueSeq        int64          `db:"enqueue_seq"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (s *MissionStore) Save(ctx context.Context, m store.Mission) error {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ssa_missions (id, satellite_id, coa_id, type, priority, status, scheduled_start, deadline,
			required_energy, required_memory, required_bandwidth, payload, retry_count, max_retries, enqueue_seq, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, scheduled_start = EXCLUDED.scheduled_start,
			retry_count = EXCLUDED.retry_count, updated_at = EXCLUDED.updated_at
	`, m.ID, m.SatelliteID, nullableString(m.COAID), m.Type, int(m.Priority), int(m.Status),
		toNullTime(m.ScheduledStart), toNullTime(m.Deadline), m.RequiredEnergy, m.RequiredMemory,
		m.RequiredBandwidth, payload, m.RetryCount, m.MaxRetries, m.EnqueueSeq, m.CreatedAt, m.UpdatedAt)
	return err
}

func (s *MissionStore) Get(ctx context.Context, id string) (store.Mission, bool, error) {
	var row missionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM ssa_missions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return store.Mission{}, false, nil
	}
	if err != nil {
		return store.Mission{}, false, err
	}
	return rowToMission(row), true, nil
}

func (s *MissionStore) LoadAll(ctx context.Context) ([]store.Mission, error) {
	var rows []missionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM ssa_missions ORDER BY created_at ASC`); err != nil {
		return nil, err
	}
	out := make([]store.Mission, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToMission(r))
	}
	return out, nil
}

func (s *MissionStore) ByCOA(ctx context.Context, coaID string) ([]store.Mission, error) {
	var rows []missionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM ssa_missions WHERE coa_id = $1 ORDER BY scheduled_start ASC`, coaID); err != nil {
		return nil, err
	}
	out := make([]store.Mission, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToMission(r))
	}
	return out, nil
}

func rowToMission(r missionRow) store.Mission {
	m := store.Mission{
		ID: r.ID, SatelliteID: r.SatelliteID, Type: r.Type,
		Priority: store.MissionPriority(r.Priority), Status: store.MissionStatus(r.Status),
		RequiredEnergy: r.RequiredEnergy, RequiredMemory: r.RequiredMemory, RequiredBandwidth: r.RequiredBandwidth,
		Payload: values.FromJSON(r.Payload), RetryCount: r.RetryCount, MaxRetries: r.MaxRetries,
		EnqueueSeq: r.EnqueueSeq, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.COAID.Valid {
		m.COAID = r.COAID.String
	}
	if r.ScheduledStart.Valid {
		t := r.ScheduledStart.Time
		m.ScheduledStart = &t
	}
	if r.Deadline.Valid {
		t := r.Deadline.Time
		m.Deadline = &t
	}
	return m
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Package clock provides an injectable time source and id minting so
// components that need "now" or a fresh identifier can depend on an
// interface instead of calling time.Now()/uuid.New() directly. That keeps
// detector cycles, mission deadlines and alarm timestamps deterministic in
// tests.
package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is the time source injected into every component.
type Clock interface {
	// Now returns the current UTC wall-clock time.
	Now() time.Time
	// Monotonic returns a monotonic instant suitable only for measuring
	// elapsed durations (not for wall-clock comparisons).
	Monotonic() time.Time
}

// System is the real wall-clock Clock.
type System struct{}

// Now returns time.Now().UTC().
func (System) Now() time.Time { return time.Now().UTC() }

// Monotonic returns time.Now(), which on Go's runtime carries a monotonic
// reading alongside the wall clock.
func (System) Monotonic() time.Time { return time.Now() }

// Mock is a deterministic Clock for tests, advanced explicitly by calling
// code rather than by wall-clock time.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock creates a Mock clock pinned at t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t.UTC()}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Monotonic returns the same pinned time; tests that need elapsed-duration
// behavior should Advance() between reads.
func (m *Mock) Monotonic() time.Time {
	return m.Now()
}

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set pins the mock clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

// IDGenerator mints unique string ids. Satellite ids are caller-supplied;
// this is used for alarms, conjunctions, COAs and missions.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator mints RFC 4122 ids via google/uuid.
type UUIDGenerator struct{}

// NewID returns a fresh random UUID string.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// PrefixedUUIDGenerator mints ids of the form "<prefix>-<uuid>", matching
// the "<kind>:<id>" alarm source convention's spirit for readability in
// logs without encoding it into the id itself.
type PrefixedUUIDGenerator struct {
	Prefix string
}

// NewID returns prefix-uuid.
func (p PrefixedUUIDGenerator) NewID() string {
	if p.Prefix == "" {
		return uuid.NewString()
	}
	return p.Prefix + "-" + uuid.NewString()
}

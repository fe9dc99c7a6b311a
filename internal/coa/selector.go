package coa

import (
	"context"
	"sync"

	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/xerrors"
)

// Selection implements the operator-facing COA lifecycle operations the
// external API layer calls into: selecting one proposed COA (which
// atomically rejects every other proposed COA for the same conjunction),
// rejecting a single proposal, and deleting a proposal. Deletion is
// forbidden once a COA's status has left proposed.
type Selection struct {
	coas         store.COAStore
	conjunctions store.ConjunctionStore
	bus          *eventbus.Bus
	clk          clock.Clock

	mu sync.Mutex // serializes concurrent selects against the same conjunction
}

// NewSelection builds a Selection service.
func NewSelection(coas store.COAStore, conjunctions store.ConjunctionStore, bus *eventbus.Bus, clk clock.Clock) *Selection {
	if clk == nil {
		clk = clock.System{}
	}
	return &Selection{coas: coas, conjunctions: conjunctions, bus: bus, clk: clk}
}

// COASelected is published on ssa:coa when an operator selects a COA. The
// AssetID is resolved from the conjunction record so the COA Executor can
// build the mission sequence without a second lookup.
type COASelected struct {
	COA     store.COA
	AssetID string
}

// Select transitions coaID from proposed to selected and rejects every
// sibling proposal for the same conjunction, keeping the invariant that at
// most one COA per conjunction is ever in {selected, executing, completed}.
func (s *Selection) Select(ctx context.Context, coaID string) (store.COA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok, err := s.coas.Get(ctx, coaID)
	if err != nil {
		return store.COA{}, xerrors.Wrap(xerrors.KindTransient, "coa lookup failed", err)
	}
	if !ok {
		return store.COA{}, xerrors.NotFound("coa", coaID)
	}
	if c.Status != store.COAProposed {
		return store.COA{}, xerrors.InvalidState("only a proposed coa can be selected, got " + c.Status.String())
	}

	siblings, err := s.coas.ByConjunction(ctx, c.ConjunctionID)
	if err != nil {
		return store.COA{}, xerrors.Wrap(xerrors.KindTransient, "coa sibling lookup failed", err)
	}
	for _, sib := range siblings {
		switch sib.Status {
		case store.COASelected, store.COAExecuting, store.COACompleted:
			return store.COA{}, xerrors.InvalidState("conjunction " + c.ConjunctionID + " already has an active coa")
		}
	}

	now := s.clk.Now()
	c.Status = store.COASelected
	c.UpdatedAt = now
	if err := s.coas.Save(ctx, c); err != nil {
		return store.COA{}, xerrors.Wrap(xerrors.KindTransient, "coa selection persist failed", err)
	}
	for _, sib := range siblings {
		if sib.ID == c.ID || sib.Status != store.COAProposed {
			continue
		}
		sib.Status = store.COARejected
		sib.UpdatedAt = now
		if err := s.coas.Save(ctx, sib); err != nil {
			return store.COA{}, xerrors.Wrap(xerrors.KindTransient, "coa sibling rejection persist failed", err)
		}
	}

	assetID := ""
	if s.conjunctions != nil {
		if conj, found, _ := s.conjunctions.Get(ctx, c.ConjunctionID); found {
			assetID = conj.AssetID
		}
	}
	if s.bus != nil {
		s.bus.Publish(ctx, eventbus.TopicSSACOA, COASelected{COA: c, AssetID: assetID})
	}
	return c, nil
}

// Reject transitions a single proposed COA to rejected.
func (s *Selection) Reject(ctx context.Context, coaID string) (store.COA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok, err := s.coas.Get(ctx, coaID)
	if err != nil {
		return store.COA{}, xerrors.Wrap(xerrors.KindTransient, "coa lookup failed", err)
	}
	if !ok {
		return store.COA{}, xerrors.NotFound("coa", coaID)
	}
	if c.Status != store.COAProposed {
		return store.COA{}, xerrors.InvalidState("only a proposed coa can be rejected, got " + c.Status.String())
	}
	c.Status = store.COARejected
	c.UpdatedAt = s.clk.Now()
	if err := s.coas.Save(ctx, c); err != nil {
		return store.COA{}, xerrors.Wrap(xerrors.KindTransient, "coa rejection persist failed", err)
	}
	return c, nil
}

// Delete removes a COA from the store. Forbidden once status has left
// proposed.
func (s *Selection) Delete(ctx context.Context, coaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok, err := s.coas.Get(ctx, coaID)
	if err != nil {
		return xerrors.Wrap(xerrors.KindTransient, "coa lookup failed", err)
	}
	if !ok {
		return xerrors.NotFound("coa", coaID)
	}
	if c.Status != store.COAProposed {
		return xerrors.InvalidState("a coa can only be deleted while proposed, got " + c.Status.String())
	}
	return s.coas.Delete(ctx, coaID)
}

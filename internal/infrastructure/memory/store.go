// Package memory provides an in-process negotiation store. It implements
// the same contract as the postgres store and is intended for tests and
// single-node setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/events"
	"github.com/contract-hub/contract-hub/internal/query"
)

// Store keeps negotiations, agreements and leases in process memory,
// guarded by a single RWMutex. Returned entities are deep copies; callers
// never observe internal state.
type Store struct {
	clock         clock.Clock
	holder        string
	leaseDuration time.Duration
	publisher     events.Publisher

	mu           sync.RWMutex
	negotiations map[string]*negotiation.Negotiation
	agreements   map[string]*negotiation.Agreement
	leases       map[string]*negotiation.Lease
}

// NewStore builds an empty store. holder identifies this runtime in lease
// rows; publisher may be nil to disable event emission.
func NewStore(clk clock.Clock, holder string, leaseDuration time.Duration, publisher events.Publisher) *Store {
	return &Store{
		clock:         clk,
		holder:        holder,
		leaseDuration: leaseDuration,
		publisher:     publisher,
		negotiations:  make(map[string]*negotiation.Negotiation),
		agreements:    make(map[string]*negotiation.Agreement),
		leases:        make(map[string]*negotiation.Lease),
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.negotiations[id]
	if !ok {
		return nil, negotiation.ErrNotFound
	}
	return n.Copy(), nil
}

func (s *Store) FindByCorrelationID(ctx context.Context, correlationID string) (*negotiation.Negotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.byCorrelationLocked(correlationID)
	if err != nil {
		return nil, err
	}
	return n.Copy(), nil
}

func (s *Store) FindAgreement(ctx context.Context, agreementID string) (*negotiation.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return nil, negotiation.ErrNotFound
	}
	return a.Copy(), nil
}

// Save upserts n and its agreement, releasing the caller's lease on the
// id in the same step. A live lease held by another runtime fails the
// save before anything is written.
func (s *Store) Save(ctx context.Context, n *negotiation.Negotiation) error {
	if n == nil || n.ID == "" {
		return negotiation.NewStorageError("save", fmt.Errorf("negotiation id is required"))
	}

	s.mu.Lock()
	_, existed := s.negotiations[n.ID]
	if err := s.breakLocked(n.ID, s.holder); err != nil {
		s.mu.Unlock()
		return err
	}
	cp := n.Copy()
	cp.UpdatedAt = s.clock.NowMillis()
	if !existed && cp.CreatedAt == 0 {
		cp.CreatedAt = cp.UpdatedAt
	}
	if cp.ContractAgreement != nil {
		s.agreements[cp.ContractAgreement.ID] = cp.ContractAgreement
	}
	s.negotiations[cp.ID] = cp
	s.mu.Unlock()

	if !existed {
		s.emit(ctx, events.TypeNegotiationCreated, cp)
	}
	return nil
}

// Delete removes a negotiation after claiming its lease. Negotiations
// that own an agreement are never deleted. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	n, ok := s.negotiations[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if n.ContractAgreement != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: negotiation %s owns agreement %s", negotiation.ErrConflict, id, n.ContractAgreement.ID)
	}
	if err := s.acquireLocked(id, s.holder); err != nil {
		s.mu.Unlock()
		return err
	}
	deleted := n.Copy()
	delete(s.negotiations, id)
	delete(s.leases, id)
	s.mu.Unlock()

	s.emit(ctx, events.TypeNegotiationDeleted, deleted)
	return nil
}

func (s *Store) QueryNegotiations(ctx context.Context, spec query.Spec) ([]*negotiation.Negotiation, error) {
	if err := negotiation.ValidateNegotiationQuery(spec); err != nil {
		return nil, err
	}
	spec = spec.Normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*negotiation.Negotiation
	for _, n := range s.negotiations {
		if matchesNegotiation(n, spec.Filter) {
			matched = append(matched, n)
		}
	}
	sortNegotiations(matched, spec)
	matched = page(matched, spec.Offset, spec.Limit)

	out := make([]*negotiation.Negotiation, len(matched))
	for i, n := range matched {
		out[i] = n.Copy()
	}
	return out, nil
}

func (s *Store) QueryAgreements(ctx context.Context, spec query.Spec) ([]*negotiation.Agreement, error) {
	if err := negotiation.ValidateAgreementQuery(spec); err != nil {
		return nil, err
	}
	spec = spec.Normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*negotiation.Agreement
	for _, a := range s.agreements {
		if matchesAgreement(a, spec.Filter) {
			matched = append(matched, a)
		}
	}
	sortAgreements(matched, spec)
	matched = page(matched, spec.Offset, spec.Limit)

	out := make([]*negotiation.Agreement, len(matched))
	for i, a := range matched {
		out[i] = a.Copy()
	}
	return out, nil
}

// NextNotLeased returns up to max negotiations matching criteria that are
// not under a live lease, oldest state timestamp first, and leases every
// returned row to this runtime before returning.
func (s *Store) NextNotLeased(ctx context.Context, max int, criteria ...query.Criterion) ([]*negotiation.Negotiation, error) {
	if err := negotiation.ValidateNegotiationCriteria(criteria...); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*negotiation.Negotiation
	for _, n := range s.negotiations {
		if !matchesNegotiation(n, criteria) {
			continue
		}
		if s.liveLeaseLocked(n.ID) != nil {
			continue
		}
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.StateTimestamp != b.StateTimestamp {
			return a.StateTimestamp < b.StateTimestamp
		}
		return a.ID < b.ID
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	out := make([]*negotiation.Negotiation, len(candidates))
	for i, n := range candidates {
		if err := s.acquireLocked(n.ID, s.holder); err != nil {
			for _, taken := range candidates[:i] {
				delete(s.leases, taken.ID)
			}
			return nil, err
		}
		out[i] = n.Copy()
	}
	return out, nil
}

func (s *Store) FindByIDAndLease(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.negotiations[id]
	if !ok {
		return nil, negotiation.ErrNotFound
	}
	if err := s.acquireLocked(id, s.holder); err != nil {
		return nil, err
	}
	return n.Copy(), nil
}

func (s *Store) FindByCorrelationIDAndLease(ctx context.Context, correlationID string) (*negotiation.Negotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.byCorrelationLocked(correlationID)
	if err != nil {
		return nil, err
	}
	if err := s.acquireLocked(n.ID, s.holder); err != nil {
		return nil, err
	}
	return n.Copy(), nil
}

func (s *Store) Acquire(ctx context.Context, entityID, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireLocked(entityID, holderID)
}

func (s *Store) Break(ctx context.Context, entityID, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakLocked(entityID, holderID)
}

func (s *Store) ActiveLease(ctx context.Context, entityID string) (*negotiation.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.liveLeaseLocked(entityID)
	if l == nil {
		return nil, negotiation.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *Store) IsLeased(ctx context.Context, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLeaseLocked(entityID) != nil, nil
}

// byCorrelationLocked resolves a correlation id to exactly one
// negotiation. More than one match is a consistency fault.
func (s *Store) byCorrelationLocked(correlationID string) (*negotiation.Negotiation, error) {
	if correlationID == "" {
		return nil, negotiation.ErrNotFound
	}
	var matches int
	var found *negotiation.Negotiation
	for _, n := range s.negotiations {
		if n.CorrelationID == correlationID {
			matches++
			found = n
		}
	}
	switch matches {
	case 0:
		return nil, negotiation.ErrNotFound
	case 1:
		return found, nil
	default:
		return nil, &negotiation.ConsistencyError{CorrelationID: correlationID, Matches: matches}
	}
}

// liveLeaseLocked returns the unexpired lease on entityID, if any.
// Expired rows are ignored, not removed.
func (s *Store) liveLeaseLocked(entityID string) *negotiation.Lease {
	l, ok := s.leases[entityID]
	if !ok || l.IsExpired(s.clock.NowMillis()) {
		return nil
	}
	return l
}

// acquireLocked claims entityID for holderID, refreshing the timestamp on
// re-entrant acquisition. The caller must hold the write lock.
func (s *Store) acquireLocked(entityID, holderID string) error {
	if l := s.liveLeaseLocked(entityID); l != nil && l.HolderID != holderID {
		return negotiation.ErrAlreadyLeased
	}
	s.leases[entityID] = &negotiation.Lease{
		EntityID:      entityID,
		HolderID:      holderID,
		LeasedAt:      s.clock.NowMillis(),
		LeaseDuration: s.leaseDuration.Milliseconds(),
	}
	return nil
}

// breakLocked releases holderID's lease on entityID. Absent and expired
// leases count as already broken; a live lease held by another runtime
// does not.
func (s *Store) breakLocked(entityID, holderID string) error {
	l, ok := s.leases[entityID]
	if !ok {
		return nil
	}
	if !l.IsExpired(s.clock.NowMillis()) && l.HolderID != holderID {
		return negotiation.ErrAlreadyLeased
	}
	delete(s.leases, entityID)
	return nil
}

func (s *Store) emit(ctx context.Context, eventType string, n *negotiation.Negotiation) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.NewEnvelope(eventType, s.clock.NowMillis(), n))
}

func matchesNegotiation(n *negotiation.Negotiation, criteria []query.Criterion) bool {
	for _, c := range criteria {
		if !query.Match(c, negotiation.NegotiationFieldValues(n, c.OperandLeft)) {
			return false
		}
	}
	return true
}

func matchesAgreement(a *negotiation.Agreement, criteria []query.Criterion) bool {
	for _, c := range criteria {
		if !query.Match(c, negotiation.AgreementFieldValues(a, c.OperandLeft)) {
			return false
		}
	}
	return true
}

// sortNegotiations orders by the requested scalar field with a stable id
// tie-break. Without a sort field the order is by id, so pagination stays
// deterministic.
func sortNegotiations(items []*negotiation.Negotiation, spec query.Spec) {
	desc := spec.SortOrder == query.SortDesc
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if spec.SortField != "" {
			c := query.Compare(
				firstValue(negotiation.NegotiationFieldValues(a, spec.SortField)),
				firstValue(negotiation.NegotiationFieldValues(b, spec.SortField)),
			)
			if c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return a.ID < b.ID
	})
}

func sortAgreements(items []*negotiation.Agreement, spec query.Spec) {
	desc := spec.SortOrder == query.SortDesc
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if spec.SortField != "" {
			c := query.Compare(
				firstValue(negotiation.AgreementFieldValues(a, spec.SortField)),
				firstValue(negotiation.AgreementFieldValues(b, spec.SortField)),
			)
			if c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return a.ID < b.ID
	})
}

func firstValue(values []any) any {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

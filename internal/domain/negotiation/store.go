package negotiation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_store.go -package=mocks . Store,LeaseManager

import (
	"context"

	"github.com/contract-hub/contract-hub/internal/query"
)

// Store is the durable repository for negotiations and their agreements.
// Every operation is transactional per call; expected negative outcomes are
// the sentinel errors in this package, backend failures come wrapped in a
// *StorageError.
type Store interface {
	// FindByID returns the negotiation or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Negotiation, error)

	// FindByCorrelationID resolves the negotiation a remote message refers
	// to. Returns ErrNotFound if absent and a *ConsistencyError if more
	// than one record matches.
	FindByCorrelationID(ctx context.Context, correlationID string) (*Negotiation, error)

	// FindAgreement returns the agreement or ErrNotFound.
	FindAgreement(ctx context.Context, agreementID string) (*Agreement, error)

	// Save upserts the negotiation and, when present, its agreement in one
	// atomic unit. Updating an existing record breaks the caller's lease
	// on it; this is the only path that couples persisting a new state
	// with releasing the claim taken to compute it.
	Save(ctx context.Context, n *Negotiation) error

	// Delete removes a negotiation for administrative cleanup. Fails with
	// ErrConflict while an agreement is owned and with ErrAlreadyLeased if
	// another holder has the lease. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// QueryNegotiations applies the spec to the negotiation projection,
	// joining in the owned agreement when one exists.
	QueryNegotiations(ctx context.Context, spec query.Spec) ([]*Negotiation, error)

	// QueryAgreements applies the spec to the agreement projection.
	QueryAgreements(ctx context.Context, spec query.Spec) ([]*Agreement, error)

	// NextNotLeased atomically selects up to max negotiations that match
	// the criteria and are not under a live lease, oldest state timestamp
	// first, and leases each returned row to this store's holder. If any
	// single lease acquisition fails the whole call fails.
	NextNotLeased(ctx context.Context, max int, criteria ...query.Criterion) ([]*Negotiation, error)

	// FindByIDAndLease reads and claims in one call. Returns ErrNotFound
	// or ErrAlreadyLeased without side effects on failure.
	FindByIDAndLease(ctx context.Context, id string) (*Negotiation, error)

	// FindByCorrelationIDAndLease is FindByIDAndLease keyed by correlation
	// id. An unknown correlation id creates no lease.
	FindByCorrelationIDAndLease(ctx context.Context, correlationID string) (*Negotiation, error)
}

// Lease is a time-bounded exclusive claim on an entity id. Expiry is
// computed at read time; expired leases are never swept, only ignored and
// overwritten.
type Lease struct {
	EntityID      string `json:"entityId"`
	HolderID      string `json:"holderId"`
	LeasedAt      int64  `json:"leasedAt"`
	LeaseDuration int64  `json:"leaseDuration"`
}

func (l Lease) ExpiresAt() int64 {
	return l.LeasedAt + l.LeaseDuration
}

func (l Lease) IsExpired(nowMillis int64) bool {
	return l.ExpiresAt() <= nowMillis
}

// LeaseManager arbitrates write eligibility. Liveness is judged against the
// injected clock on every read; there is no background sweep, so a crashed
// holder's lease recovers purely by the passage of time. Holders on
// different machines see expiry through their own clocks, so skew between
// them shifts the effective lease duration.
type LeaseManager interface {
	// Acquire claims entityID for holderID, overwriting an expired lease.
	// Re-acquiring an own live lease is a no-op success; a live lease
	// under a different holder fails with ErrAlreadyLeased.
	Acquire(ctx context.Context, entityID, holderID string) error

	// Break releases holderID's lease. Breaking an absent or expired
	// lease succeeds so that insert paths can break unconditionally; a
	// live lease under a different holder fails with ErrAlreadyLeased.
	Break(ctx context.Context, entityID, holderID string) error

	// ActiveLease returns the live lease on entityID or ErrNotFound.
	ActiveLease(ctx context.Context, entityID string) (*Lease, error)

	// IsLeased reports whether a live lease exists on entityID.
	IsLeased(ctx context.Context, entityID string) (bool, error)
}

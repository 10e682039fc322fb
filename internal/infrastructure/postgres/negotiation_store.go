// Package postgres persists negotiations, agreements, and leases in
// PostgreSQL. Mutating operations run in a single transaction so a partial
// write is never observable, and lease liveness is always judged against
// the injected clock rather than the database's.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/events"
	"github.com/contract-hub/contract-hub/internal/query"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same helpers serve both transactional and single-statement paths.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed negotiation store.
type Store struct {
	pool          *pgxpool.Pool
	statements    *Statements
	clock         clock.Clock
	holder        string
	leaseDuration time.Duration
	publisher     events.Publisher
}

// NewStore wires the store to a pool. holder identifies this runtime in the
// lease table; publisher may be nil when nothing consumes lifecycle events.
func NewStore(pool *pgxpool.Pool, statements *Statements, clk clock.Clock, holder string, leaseDuration time.Duration, publisher events.Publisher) *Store {
	return &Store{
		pool:          pool,
		statements:    statements,
		clock:         clk,
		holder:        holder,
		leaseDuration: leaseDuration,
		publisher:     publisher,
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	return s.findNegotiation(ctx, s.pool, "find by id", s.statements.SelectNegotiationByID(), id)
}

func (s *Store) FindByCorrelationID(ctx context.Context, correlationID string) (*negotiation.Negotiation, error) {
	return s.byCorrelationID(ctx, s.pool, correlationID)
}

func (s *Store) FindAgreement(ctx context.Context, agreementID string) (*negotiation.Agreement, error) {
	a, err := scanAgreement(s.pool.QueryRow(ctx, s.statements.SelectAgreementByID(), agreementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, negotiation.NewStorageError("find agreement", err)
	}
	return a, nil
}

func (s *Store) Save(ctx context.Context, n *negotiation.Negotiation) error {
	if n == nil || n.ID == "" {
		return negotiation.NewStorageError("save", fmt.Errorf("negotiation id is required"))
	}
	offers, callbacks, trace, err := marshalPayloads(n)
	if err != nil {
		return negotiation.NewStorageError("save", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return negotiation.NewStorageError("save: begin tx", err)
	}
	defer tx.Rollback(ctx)

	var existed bool
	if err := tx.QueryRow(ctx, s.statements.NegotiationExists(), n.ID).Scan(&existed); err != nil {
		return negotiation.NewStorageError("save", err)
	}
	if err := s.breakLease(ctx, tx, n.ID, s.holder); err != nil {
		return err
	}

	updatedAt := s.clock.NowMillis()
	createdAt := n.CreatedAt
	if !existed && createdAt == 0 {
		createdAt = updatedAt
	}

	var agreementID *string
	if n.ContractAgreement != nil {
		a := n.ContractAgreement
		if _, err := tx.Exec(ctx, s.statements.UpsertAgreement(),
			a.ID, a.ProviderID, a.ConsumerID, a.AssetID, a.SigningDate, []byte(a.Policy)); err != nil {
			return negotiation.NewStorageError("save agreement", err)
		}
		agreementID = &a.ID
	}

	if _, err := tx.Exec(ctx, s.statements.UpsertNegotiation(),
		n.ID, n.CorrelationID, n.CounterPartyID, n.CounterPartyAddress, n.Protocol,
		n.Type, n.State, n.StateCount, n.StateTimestamp, n.Pending, n.ErrorDetail,
		offers, callbacks, trace, agreementID, createdAt, updatedAt); err != nil {
		return negotiation.NewStorageError("save negotiation", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return negotiation.NewStorageError("save: commit tx", err)
	}

	if !existed {
		// The event carries the row as persisted, stamps included.
		cp := n.Copy()
		cp.CreatedAt = createdAt
		cp.UpdatedAt = updatedAt
		s.emit(ctx, events.TypeNegotiationCreated, cp)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return negotiation.NewStorageError("delete: begin tx", err)
	}
	defer tx.Rollback(ctx)

	n, err := s.findNegotiation(ctx, tx, "delete", s.statements.SelectNegotiationByID(), id)
	if errors.Is(err, negotiation.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if n.ContractAgreement != nil {
		return fmt.Errorf("%w: negotiation %s owns agreement %s", negotiation.ErrConflict, id, n.ContractAgreement.ID)
	}
	if err := s.acquireLease(ctx, tx, id, s.holder); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, s.statements.DeleteNegotiation(), id); err != nil {
		return negotiation.NewStorageError("delete", err)
	}
	if _, err := tx.Exec(ctx, s.statements.DeleteLease(), id); err != nil {
		return negotiation.NewStorageError("delete lease", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return negotiation.NewStorageError("delete: commit tx", err)
	}

	s.emit(ctx, events.TypeNegotiationDeleted, n)
	return nil
}

func (s *Store) QueryNegotiations(ctx context.Context, spec query.Spec) ([]*negotiation.Negotiation, error) {
	if err := negotiation.ValidateNegotiationQuery(spec); err != nil {
		return nil, err
	}
	sqlStr, args, err := s.statements.QueryNegotiations(spec.Normalized())
	if err != nil {
		return nil, err
	}
	list, err := s.listNegotiations(ctx, s.pool, sqlStr, args...)
	if err != nil {
		return nil, negotiation.NewStorageError("query negotiations", err)
	}
	return list, nil
}

func (s *Store) QueryAgreements(ctx context.Context, spec query.Spec) ([]*negotiation.Agreement, error) {
	if err := negotiation.ValidateAgreementQuery(spec); err != nil {
		return nil, err
	}
	sqlStr, args, err := s.statements.QueryAgreements(spec.Normalized())
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, negotiation.NewStorageError("query agreements", err)
	}
	defer rows.Close()

	var list []*negotiation.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, negotiation.NewStorageError("query agreements", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, negotiation.NewStorageError("query agreements", err)
	}
	return list, nil
}

func (s *Store) NextNotLeased(ctx context.Context, max int, criteria ...query.Criterion) ([]*negotiation.Negotiation, error) {
	if err := negotiation.ValidateNegotiationCriteria(criteria...); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}
	sqlStr, args, err := s.statements.NextNotLeased(max, s.clock.NowMillis(), criteria...)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, negotiation.NewStorageError("next not leased: begin tx", err)
	}
	defer tx.Rollback(ctx)

	list, err := s.listNegotiations(ctx, tx, sqlStr, args...)
	if err != nil {
		return nil, negotiation.NewStorageError("next not leased", err)
	}
	// Leasing is all or nothing: one contended row fails the whole batch
	// and the rollback releases the leases taken so far.
	for _, n := range list {
		if err := s.acquireLease(ctx, tx, n.ID, s.holder); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, negotiation.NewStorageError("next not leased: commit tx", err)
	}
	return list, nil
}

func (s *Store) FindByIDAndLease(ctx context.Context, id string) (*negotiation.Negotiation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, negotiation.NewStorageError("find and lease: begin tx", err)
	}
	defer tx.Rollback(ctx)

	n, err := s.findNegotiation(ctx, tx, "find and lease", s.statements.SelectNegotiationByID(), id)
	if err != nil {
		return nil, err
	}
	if err := s.acquireLease(ctx, tx, id, s.holder); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, negotiation.NewStorageError("find and lease: commit tx", err)
	}
	return n, nil
}

func (s *Store) FindByCorrelationIDAndLease(ctx context.Context, correlationID string) (*negotiation.Negotiation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, negotiation.NewStorageError("find and lease: begin tx", err)
	}
	defer tx.Rollback(ctx)

	n, err := s.byCorrelationID(ctx, tx, correlationID)
	if err != nil {
		return nil, err
	}
	if err := s.acquireLease(ctx, tx, n.ID, s.holder); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, negotiation.NewStorageError("find and lease: commit tx", err)
	}
	return n, nil
}

func (s *Store) Acquire(ctx context.Context, entityID, holderID string) error {
	return s.acquireLease(ctx, s.pool, entityID, holderID)
}

func (s *Store) Break(ctx context.Context, entityID, holderID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return negotiation.NewStorageError("break lease: begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := s.breakLease(ctx, tx, entityID, holderID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return negotiation.NewStorageError("break lease: commit tx", err)
	}
	return nil
}

func (s *Store) ActiveLease(ctx context.Context, entityID string) (*negotiation.Lease, error) {
	l := negotiation.Lease{EntityID: entityID}
	err := s.pool.QueryRow(ctx, s.statements.SelectLease(), entityID).
		Scan(&l.HolderID, &l.LeasedAt, &l.LeaseDuration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, negotiation.ErrNotFound
	}
	if err != nil {
		return nil, negotiation.NewStorageError("lease lookup", err)
	}
	if l.IsExpired(s.clock.NowMillis()) {
		return nil, negotiation.ErrNotFound
	}
	return &l, nil
}

func (s *Store) IsLeased(ctx context.Context, entityID string) (bool, error) {
	_, err := s.ActiveLease(ctx, entityID)
	if errors.Is(err, negotiation.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// acquireLease claims or refreshes the lease in one statement; zero
// affected rows means a live lease under another holder.
func (s *Store) acquireLease(ctx context.Context, q querier, entityID, holderID string) error {
	tag, err := q.Exec(ctx, s.statements.UpsertLease(),
		entityID, holderID, s.clock.NowMillis(), s.leaseDuration.Milliseconds())
	if err != nil {
		return negotiation.NewStorageError("lease acquire", err)
	}
	if tag.RowsAffected() == 0 {
		return negotiation.ErrAlreadyLeased
	}
	return nil
}

// breakLease releases holderID's lease. Absent and expired leases break
// successfully; a live lease under another holder does not.
func (s *Store) breakLease(ctx context.Context, q querier, entityID, holderID string) error {
	var holder string
	var leasedAt, duration int64
	err := q.QueryRow(ctx, s.statements.SelectLease(), entityID).Scan(&holder, &leasedAt, &duration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return negotiation.NewStorageError("lease lookup", err)
	}
	current := negotiation.Lease{EntityID: entityID, HolderID: holder, LeasedAt: leasedAt, LeaseDuration: duration}
	if !current.IsExpired(s.clock.NowMillis()) && current.HolderID != holderID {
		return negotiation.ErrAlreadyLeased
	}
	if _, err := q.Exec(ctx, s.statements.DeleteLease(), entityID); err != nil {
		return negotiation.NewStorageError("lease release", err)
	}
	return nil
}

func (s *Store) byCorrelationID(ctx context.Context, q querier, correlationID string) (*negotiation.Negotiation, error) {
	if correlationID == "" {
		return nil, negotiation.ErrNotFound
	}
	list, err := s.listNegotiations(ctx, q, s.statements.SelectNegotiationsByCorrelationID(), correlationID)
	if err != nil {
		return nil, negotiation.NewStorageError("find by correlation id", err)
	}
	switch len(list) {
	case 0:
		return nil, negotiation.ErrNotFound
	case 1:
		return list[0], nil
	default:
		return nil, &negotiation.ConsistencyError{CorrelationID: correlationID, Matches: len(list)}
	}
}

func (s *Store) findNegotiation(ctx context.Context, q querier, op, sqlStr string, args ...any) (*negotiation.Negotiation, error) {
	n, err := scanNegotiation(q.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, negotiation.ErrNotFound
		}
		return nil, negotiation.NewStorageError(op, err)
	}
	return n, nil
}

func (s *Store) listNegotiations(ctx context.Context, q querier, sqlStr string, args ...any) ([]*negotiation.Negotiation, error) {
	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*negotiation.Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (s *Store) emit(ctx context.Context, eventType string, n *negotiation.Negotiation) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.NewEnvelope(eventType, s.clock.NowMillis(), n))
}

// scanNegotiation reads one row of the base negotiation select, including
// the left-joined agreement columns.
func scanNegotiation(row pgx.Row) (*negotiation.Negotiation, error) {
	var n negotiation.Negotiation
	var offers, callbacks, trace []byte
	var agrID, agrProvider, agrConsumer, agrAsset *string
	var agrSigning *int64
	var agrPolicy []byte

	err := row.Scan(
		&n.ID, &n.CorrelationID, &n.CounterPartyID, &n.CounterPartyAddress, &n.Protocol,
		&n.Type, &n.State, &n.StateCount, &n.StateTimestamp, &n.Pending, &n.ErrorDetail,
		&offers, &callbacks, &trace, &n.CreatedAt, &n.UpdatedAt,
		&agrID, &agrProvider, &agrConsumer, &agrAsset, &agrSigning, &agrPolicy,
	)
	if err != nil {
		return nil, err
	}

	// jsonb keeps empty collections distinct from NULL; readers treat both
	// as absent.
	if len(offers) > 0 {
		if err := json.Unmarshal(offers, &n.ContractOffers); err != nil {
			return nil, fmt.Errorf("unmarshal contract offers: %w", err)
		}
		if len(n.ContractOffers) == 0 {
			n.ContractOffers = nil
		}
	}
	if len(callbacks) > 0 {
		if err := json.Unmarshal(callbacks, &n.CallbackAddresses); err != nil {
			return nil, fmt.Errorf("unmarshal callback addresses: %w", err)
		}
		if len(n.CallbackAddresses) == 0 {
			n.CallbackAddresses = nil
		}
	}
	if len(trace) > 0 {
		if err := json.Unmarshal(trace, &n.TraceContext); err != nil {
			return nil, fmt.Errorf("unmarshal trace context: %w", err)
		}
		if len(n.TraceContext) == 0 {
			n.TraceContext = nil
		}
	}

	if agrID != nil {
		n.ContractAgreement = &negotiation.Agreement{
			ID:          *agrID,
			ProviderID:  *agrProvider,
			ConsumerID:  *agrConsumer,
			AssetID:     *agrAsset,
			SigningDate: *agrSigning,
			Policy:      json.RawMessage(agrPolicy),
		}
	}
	return &n, nil
}

func scanAgreement(row pgx.Row) (*negotiation.Agreement, error) {
	var a negotiation.Agreement
	var policy []byte
	if err := row.Scan(&a.ID, &a.ProviderID, &a.ConsumerID, &a.AssetID, &a.SigningDate, &policy); err != nil {
		return nil, err
	}
	a.Policy = json.RawMessage(policy)
	return &a, nil
}

func marshalPayloads(n *negotiation.Negotiation) (offers, callbacks, trace []byte, err error) {
	if len(n.ContractOffers) > 0 {
		if offers, err = json.Marshal(n.ContractOffers); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal contract offers: %w", err)
		}
	}
	if len(n.CallbackAddresses) > 0 {
		if callbacks, err = json.Marshal(n.CallbackAddresses); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal callback addresses: %w", err)
		}
	}
	if len(n.TraceContext) > 0 {
		if trace, err = json.Marshal(n.TraceContext); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal trace context: %w", err)
		}
	}
	return offers, callbacks, trace, nil
}

// Package storetest exercises the negotiation store contract against any
// backend. Store implementations wire it up from their own tests by
// supplying a fresh harness per subtest.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/query"
)

const otherHolder = "other-runtime"

// Harness bundles a store under test with the knobs the suite drives.
// Store and Leases must share state, and Clock must be the clock the
// store reads, so tests can force lease expiry.
type Harness struct {
	Store         negotiation.Store
	Leases        negotiation.LeaseManager
	Clock         *clock.Manual
	Holder        string
	LeaseDuration time.Duration
}

// Run exercises the full store contract. open must return an isolated
// harness and is called once per subtest.
func Run(t *testing.T, open func(t *testing.T) *Harness) {
	t.Run("save and find by id", func(t *testing.T) { testSaveAndFind(t, open(t)) })
	t.Run("find by id not found", func(t *testing.T) { testFindByIDNotFound(t, open(t)) })
	t.Run("save upserts", func(t *testing.T) { testSaveUpsert(t, open(t)) })
	t.Run("save upserts the agreement", func(t *testing.T) { testSaveUpsertsAgreement(t, open(t)) })
	t.Run("save releases the caller lease", func(t *testing.T) { testSaveReleasesLease(t, open(t)) })
	t.Run("save rejects a foreign lease", func(t *testing.T) { testSaveRejectsForeignLease(t, open(t)) })
	t.Run("delete of unknown id is a no-op", func(t *testing.T) { testDeleteAbsent(t, open(t)) })
	t.Run("delete guards owned agreements", func(t *testing.T) { testDeleteAgreementGuard(t, open(t)) })
	t.Run("delete removes row and lease", func(t *testing.T) { testDeleteRemovesRowAndLease(t, open(t)) })
	t.Run("delete rejects a foreign lease", func(t *testing.T) { testDeleteRejectsForeignLease(t, open(t)) })
	t.Run("find by correlation id", func(t *testing.T) { testCorrelation(t, open(t)) })
	t.Run("duplicate correlation is a consistency fault", func(t *testing.T) { testCorrelationConsistencyFault(t, open(t)) })
	t.Run("lease exclusivity", func(t *testing.T) { testLeaseExclusivity(t, open(t)) })
	t.Run("lease expiry", func(t *testing.T) { testLeaseExpiry(t, open(t)) })
	t.Run("reacquisition refreshes the lease", func(t *testing.T) { testLeaseReacquireRefreshes(t, open(t)) })
	t.Run("break semantics", func(t *testing.T) { testBreakSemantics(t, open(t)) })
	t.Run("find by id and lease", func(t *testing.T) { testFindByIDAndLease(t, open(t)) })
	t.Run("find by correlation id and lease", func(t *testing.T) { testFindByCorrelationIDAndLease(t, open(t)) })
	t.Run("next not leased drains oldest first", func(t *testing.T) { testNextNotLeasedScenario(t, open(t)) })
	t.Run("next not leased honors criteria and leases", func(t *testing.T) { testNextNotLeasedCriteriaAndLeases(t, open(t)) })
	t.Run("next not leased validates criteria", func(t *testing.T) { testNextNotLeasedValidatesCriteria(t, open(t)) })
	t.Run("next not leased with non-positive max", func(t *testing.T) { testNextNotLeasedNonPositiveMax(t, open(t)) })
	t.Run("next not leased does not exclude terminal rows", func(t *testing.T) { testNextNotLeasedIncludesTerminal(t, open(t)) })
	t.Run("query negotiations filters", func(t *testing.T) { testQueryNegotiationsFilters(t, open(t)) })
	t.Run("query negotiations sort and pagination", func(t *testing.T) { testQuerySortAndPagination(t, open(t)) })
	t.Run("query negotiations default page size", func(t *testing.T) { testQueryDefaultLimit(t, open(t)) })
	t.Run("query agreements", func(t *testing.T) { testQueryAgreements(t, open(t)) })
	t.Run("query rejects invalid specs", func(t *testing.T) { testQueryInvalidSpecs(t, open(t)) })
	t.Run("concurrent claims never overlap", func(t *testing.T) { testConcurrentNextNotLeased(t, open(t)) })
}

func testSaveAndFind(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	n.CorrelationID = "corr-100"
	n.TraceContext = map[string]string{"traceparent": "00-4bf92f35-01"}
	offer, err := negotiation.NewContractOffer("offer-1", "asset-1", json.RawMessage(`{"permissions":[]}`))
	require.NoError(t, err)
	n.AddContractOffer(offer)
	cb, err := negotiation.NewCallbackAddress("https://callback.example/hook", []string{"finalized"}, true, "auth", "code-1")
	require.NoError(t, err)
	n.CallbackAddresses = []negotiation.CallbackAddress{cb}

	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	requireSameNegotiation(t, n, got)

	// Returned snapshots must not alias store state.
	got.State = negotiation.StateTerminated
	got.ContractOffers[0].AssetID = "changed"
	again, err := h.Store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateInitial, again.State)
	assert.Equal(t, "asset-1", again.ContractOffers[0].AssetID)
}

func testFindByIDNotFound(t *testing.T, h *Harness) {
	_, err := h.Store.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, negotiation.ErrNotFound)
}

func testSaveUpsert(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))

	h.Clock.Advance(5 * time.Second)
	now := h.Clock.NowMillis()
	require.NoError(t, n.TransitionTo(negotiation.StateRequesting, now))
	n.SetPending(true)
	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateRequesting, got.State)
	assert.True(t, got.Pending)
	assert.Equal(t, now, got.StateTimestamp)
	assert.Equal(t, now, got.UpdatedAt)

	all, err := h.Store.QueryNegotiations(ctx, query.None())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testSaveUpsertsAgreement(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	a := newAgreement(t, "agreement-1", "asset-7", h.Clock.NowMillis())
	require.NoError(t, n.SetAgreement(a))
	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.FindAgreement(ctx, "agreement-1")
	require.NoError(t, err)
	requireSameAgreement(t, a, got)

	// The agreement stays writable through the negotiation save path.
	a.Policy = json.RawMessage(`{"permissions":[{"action":"use"}]}`)
	require.NoError(t, h.Store.Save(ctx, n))

	got, err = h.Store.FindAgreement(ctx, "agreement-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"permissions":[{"action":"use"}]}`, string(got.Policy))

	_, err = h.Store.FindAgreement(ctx, "missing")
	require.ErrorIs(t, err, negotiation.ErrNotFound)
}

func testSaveReleasesLease(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))

	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))
	require.NoError(t, n.TransitionTo(negotiation.StateRequesting, h.Clock.NowMillis()))
	require.NoError(t, h.Store.Save(ctx, n))

	// The lease is gone; a different runtime can claim immediately.
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, otherHolder))
}

func testSaveRejectsForeignLease(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, otherHolder))

	mod := n.Copy()
	require.NoError(t, mod.TransitionTo(negotiation.StateRequesting, h.Clock.NowMillis()))
	err := h.Store.Save(ctx, mod)
	require.ErrorIs(t, err, negotiation.ErrAlreadyLeased)

	got, err := h.Store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateInitial, got.State)
}

func testDeleteAbsent(t *testing.T, h *Harness) {
	require.NoError(t, h.Store.Delete(context.Background(), "missing"))
}

func testDeleteAgreementGuard(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, n.SetAgreement(newAgreement(t, "agreement-1", "asset-1", h.Clock.NowMillis())))
	require.NoError(t, h.Store.Save(ctx, n))

	err := h.Store.Delete(ctx, n.ID)
	require.ErrorIs(t, err, negotiation.ErrConflict)

	_, err = h.Store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	leased, err := h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, leased)
}

func testDeleteRemovesRowAndLease(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))

	require.NoError(t, h.Store.Delete(ctx, n.ID))

	_, err := h.Store.FindByID(ctx, n.ID)
	require.ErrorIs(t, err, negotiation.ErrNotFound)
	leased, err := h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, leased)
}

func testDeleteRejectsForeignLease(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, otherHolder))

	err := h.Store.Delete(ctx, n.ID)
	require.ErrorIs(t, err, negotiation.ErrAlreadyLeased)

	_, err = h.Store.FindByID(ctx, n.ID)
	require.NoError(t, err)
}

func testCorrelation(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	n.CorrelationID = "corr-1"
	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.FindByCorrelationID(ctx, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	_, err = h.Store.FindByCorrelationID(ctx, "corr-unknown")
	require.ErrorIs(t, err, negotiation.ErrNotFound)

	_, err = h.Store.FindByCorrelationID(ctx, "")
	require.ErrorIs(t, err, negotiation.ErrNotFound)
}

func testCorrelationConsistencyFault(t *testing.T, h *Harness) {
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		n := newNegotiation(t, h.Clock.NowMillis())
		n.CorrelationID = "corr-dup"
		require.NoError(t, h.Store.Save(ctx, n))
	}

	_, err := h.Store.FindByCorrelationID(ctx, "corr-dup")
	var cerr *negotiation.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "corr-dup", cerr.CorrelationID)
	assert.Equal(t, 2, cerr.Matches)
	assert.False(t, negotiation.IsStorageError(err))

	_, err = h.Store.FindByCorrelationIDAndLease(ctx, "corr-dup")
	require.ErrorAs(t, err, &cerr)
}

func testLeaseExclusivity(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))

	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))
	err := h.Leases.Acquire(ctx, n.ID, otherHolder)
	require.ErrorIs(t, err, negotiation.ErrAlreadyLeased)

	// Re-entrant for the same holder.
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))

	lease, err := h.Leases.ActiveLease(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, lease.EntityID)
	assert.Equal(t, h.Holder, lease.HolderID)
	assert.Equal(t, h.LeaseDuration.Milliseconds(), lease.LeaseDuration)

	require.NoError(t, h.Leases.Break(ctx, n.ID, h.Holder))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, otherHolder))
}

func testLeaseExpiry(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))

	leased, err := h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, leased)

	h.Clock.Advance(h.LeaseDuration)

	leased, err = h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, leased)
	_, err = h.Leases.ActiveLease(ctx, n.ID)
	require.ErrorIs(t, err, negotiation.ErrNotFound)

	// Expired leases are overwritten, not swept.
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, otherHolder))
	lease, err := h.Leases.ActiveLease(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, otherHolder, lease.HolderID)
}

func testLeaseReacquireRefreshes(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))

	h.Clock.Advance(h.LeaseDuration / 2)
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, h.Holder))
	h.Clock.Advance(h.LeaseDuration / 2)

	// The original stamp would have expired by now; the refreshed one
	// has not.
	leased, err := h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, leased)
}

func testBreakSemantics(t *testing.T, h *Harness) {
	ctx := context.Background()
	require.NoError(t, h.Leases.Break(ctx, "missing", h.Holder))

	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))
	require.NoError(t, h.Leases.Acquire(ctx, n.ID, otherHolder))

	err := h.Leases.Break(ctx, n.ID, h.Holder)
	require.ErrorIs(t, err, negotiation.ErrAlreadyLeased)

	h.Clock.Advance(h.LeaseDuration)
	require.NoError(t, h.Leases.Break(ctx, n.ID, h.Holder))
	leased, err := h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, leased)
}

func testFindByIDAndLease(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.FindByIDAndLease(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	lease, err := h.Leases.ActiveLease(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, h.Holder, lease.HolderID)

	_, err = h.Store.FindByIDAndLease(ctx, "missing")
	require.ErrorIs(t, err, negotiation.ErrNotFound)

	m := newNegotiation(t, h.Clock.NowMillis())
	require.NoError(t, h.Store.Save(ctx, m))
	require.NoError(t, h.Leases.Acquire(ctx, m.ID, otherHolder))
	_, err = h.Store.FindByIDAndLease(ctx, m.ID)
	require.ErrorIs(t, err, negotiation.ErrAlreadyLeased)
}

func testFindByCorrelationIDAndLease(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	n.CorrelationID = "corr-9"
	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.FindByCorrelationIDAndLease(ctx, "corr-9")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	lease, err := h.Leases.ActiveLease(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, h.Holder, lease.HolderID)

	// An unknown correlation id must not leave a lease behind.
	m := newNegotiation(t, h.Clock.NowMillis())
	m.CorrelationID = "corr-10"
	require.NoError(t, h.Store.Save(ctx, m))
	_, err = h.Store.FindByCorrelationIDAndLease(ctx, "corr-unknown")
	require.ErrorIs(t, err, negotiation.ErrNotFound)
	leased, err := h.Leases.IsLeased(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, leased)

	require.NoError(t, h.Leases.Acquire(ctx, m.ID, otherHolder))
	_, err = h.Store.FindByCorrelationIDAndLease(ctx, "corr-10")
	require.ErrorIs(t, err, negotiation.ErrAlreadyLeased)
}

func testNextNotLeasedScenario(t *testing.T, h *Harness) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 50; i++ {
		now := h.Clock.NowMillis()
		n := newNegotiation(t, now)
		require.NoError(t, n.TransitionTo(negotiation.StateRequesting, now))
		require.NoError(t, h.Store.Save(ctx, n))
		ids = append(ids, n.ID)
		h.Clock.Advance(time.Millisecond)
	}
	criterion := query.NewCriterion("state", query.OpEqual, negotiation.StateRequesting.Code())

	first, err := h.Store.NextNotLeased(ctx, 20, criterion)
	require.NoError(t, err)
	require.Len(t, first, 20)
	assert.Equal(t, ids[:20], idsOf(first))
	for _, n := range first {
		lease, err := h.Leases.ActiveLease(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, h.Holder, lease.HolderID)
	}

	second, err := h.Store.NextNotLeased(ctx, 20, criterion)
	require.NoError(t, err)
	assert.Equal(t, ids[20:40], idsOf(second))

	third, err := h.Store.NextNotLeased(ctx, 20, criterion)
	require.NoError(t, err)
	assert.Equal(t, ids[40:], idsOf(third))
}

func testNextNotLeasedCriteriaAndLeases(t *testing.T, h *Harness) {
	ctx := context.Background()
	now := h.Clock.NowMillis()

	requesting := newNegotiation(t, now)
	require.NoError(t, requesting.TransitionTo(negotiation.StateRequesting, now))
	claimed := newNegotiation(t, now)
	require.NoError(t, claimed.TransitionTo(negotiation.StateRequesting, now))
	offered := newNegotiation(t, now)
	offered.State = negotiation.StateOffered
	expired := newNegotiation(t, now)
	require.NoError(t, expired.TransitionTo(negotiation.StateRequesting, now))

	for _, n := range []*negotiation.Negotiation{requesting, claimed, offered, expired} {
		require.NoError(t, h.Store.Save(ctx, n))
	}
	require.NoError(t, h.Leases.Acquire(ctx, expired.ID, otherHolder))
	h.Clock.Advance(h.LeaseDuration)
	require.NoError(t, h.Leases.Acquire(ctx, claimed.ID, otherHolder))

	got, err := h.Store.NextNotLeased(ctx, 10, query.NewCriterion("state", query.OpEqual, negotiation.StateRequesting.Code()))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{requesting.ID, expired.ID}, idsOf(got))
	for _, n := range got {
		lease, err := h.Leases.ActiveLease(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, h.Holder, lease.HolderID)
	}
}

func testNextNotLeasedValidatesCriteria(t *testing.T, h *Harness) {
	_, err := h.Store.NextNotLeased(context.Background(), 5, query.NewCriterion("bogus", query.OpEqual, 1))
	require.ErrorIs(t, err, query.ErrInvalidQuery)
}

func testNextNotLeasedNonPositiveMax(t *testing.T, h *Harness) {
	ctx := context.Background()
	now := h.Clock.NowMillis()
	n := newNegotiation(t, now)
	require.NoError(t, n.TransitionTo(negotiation.StateRequesting, now))
	require.NoError(t, h.Store.Save(ctx, n))

	got, err := h.Store.NextNotLeased(ctx, 0, query.NewCriterion("state", query.OpEqual, negotiation.StateRequesting.Code()))
	require.NoError(t, err)
	assert.Empty(t, got)
	leased, err := h.Leases.IsLeased(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, leased)
}

func testNextNotLeasedIncludesTerminal(t *testing.T, h *Harness) {
	ctx := context.Background()
	n := newNegotiation(t, h.Clock.NowMillis())
	n.State = negotiation.StateTerminated
	require.NoError(t, h.Store.Save(ctx, n))

	// Terminal rows are not excluded here; keeping them out of worker
	// batches is the caller's criteria concern.
	got, err := h.Store.NextNotLeased(ctx, 5, query.NewCriterion("state", query.OpEqual, negotiation.StateTerminated.Code()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, n.ID, got[0].ID)
}

func testQueryNegotiationsFilters(t *testing.T, h *Harness) {
	ctx := context.Background()
	now := h.Clock.NowMillis()

	n1 := newNegotiation(t, now)
	n1.CorrelationID = "corr-1"
	n1.CounterPartyAddress = "https://alpha.example/api"
	require.NoError(t, n1.TransitionTo(negotiation.StateRequesting, now))
	offer1, err := negotiation.NewContractOffer("offer-1", "asset-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	n1.AddContractOffer(offer1)
	cb, err := negotiation.NewCallbackAddress("https://callback.example/hook", []string{"accepted", "finalized"}, false, "", "")
	require.NoError(t, err)
	n1.CallbackAddresses = []negotiation.CallbackAddress{cb}
	n1.TraceContext = map[string]string{"traceparent": "00-4bf9-01"}

	n2, err := negotiation.New(negotiation.TypeResponder, "counter-party", "https://beta.example/api", "dataspace-protocol-http", now)
	require.NoError(t, err)
	n2.CorrelationID = "corr-2"
	n2.State = negotiation.StateOffered
	offer2, err := negotiation.NewContractOffer("offer-2", "asset-2", json.RawMessage(`{}`))
	require.NoError(t, err)
	offer3, err := negotiation.NewContractOffer("offer-3", "asset-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	n2.AddContractOffer(offer2)
	n2.AddContractOffer(offer3)

	n3 := newNegotiation(t, now)
	n3.State = negotiation.StateFinalized
	require.NoError(t, n3.SetAgreement(newAgreement(t, "agreement-1", "asset-9", now)))

	for _, n := range []*negotiation.Negotiation{n1, n2, n3} {
		require.NoError(t, h.Store.Save(ctx, n))
	}

	tests := []struct {
		name      string
		criterion query.Criterion
		want      []string
	}{
		{"state equality", query.NewCriterion("state", query.OpEqual, negotiation.StateRequesting.Code()), []string{n1.ID}},
		{"state membership", query.NewCriterion("state", query.OpIn, []any{negotiation.StateRequesting.Code(), negotiation.StateOffered.Code()}), []string{n1.ID, n2.ID}},
		{"type", query.NewCriterion("type", query.OpEqual, "RESPONDER"), []string{n2.ID}},
		{"correlation id", query.NewCriterion("correlationId", query.OpEqual, "corr-2"), []string{n2.ID}},
		{"offer asset matches any element", query.NewCriterion("contractOffers.assetId", query.OpEqual, "asset-1"), []string{n1.ID, n2.ID}},
		{"offer id negation excludes structural mismatch", query.NewCriterion("contractOffers.id", query.OpNotEqual, "offer-1"), []string{n2.ID}},
		{"callback event", query.NewCriterion("callbackAddresses.events", query.OpEqual, "accepted"), []string{n1.ID}},
		{"trace context key", query.NewCriterion("traceContext.traceparent", query.OpEqual, "00-4bf9-01"), []string{n1.ID}},
		{"agreement asset", query.NewCriterion("contractAgreement.assetId", query.OpEqual, "asset-9"), []string{n3.ID}},
		{"address pattern", query.NewCriterion("counterPartyAddress", query.OpLike, "%alpha%"), []string{n1.ID}},
		{"address pattern case-insensitive", query.NewCriterion("counterPartyAddress", query.OpILike, "%ALPHA%"), []string{n1.ID}},
		{"no match", query.NewCriterion("state", query.OpEqual, negotiation.StateVerified.Code()), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Store.QueryNegotiations(ctx, query.New(tt.criterion))
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, idsOf(got))
		})
	}

	t.Run("criteria are conjunctive", func(t *testing.T) {
		got, err := h.Store.QueryNegotiations(ctx, query.New(
			query.NewCriterion("contractOffers.assetId", query.OpEqual, "asset-1"),
			query.NewCriterion("type", query.OpEqual, "INITIATOR"),
		))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{n1.ID}, idsOf(got))
	})
}

func testQuerySortAndPagination(t *testing.T, h *Harness) {
	ctx := context.Background()
	base := h.Clock.NowMillis()
	ids := make([]string, 0, 9)
	for i := 0; i < 9; i++ {
		n := newNegotiation(t, base)
		n.ID = fmt.Sprintf("neg-%02d", i)
		n.StateTimestamp = base + int64(i)
		require.NoError(t, h.Store.Save(ctx, n))
		ids = append(ids, n.ID)
	}

	t.Run("ascending with offset and limit", func(t *testing.T) {
		got, err := h.Store.QueryNegotiations(ctx, query.Spec{
			SortField: "stateTimestamp",
			SortOrder: query.SortAsc,
			Offset:    3,
			Limit:     4,
		})
		require.NoError(t, err)
		assert.Equal(t, ids[3:7], idsOf(got))
	})

	t.Run("descending", func(t *testing.T) {
		got, err := h.Store.QueryNegotiations(ctx, query.Spec{
			SortField: "stateTimestamp",
			SortOrder: query.SortDesc,
			Limit:     100,
		})
		require.NoError(t, err)
		want := make([]string, 0, len(ids))
		for i := len(ids) - 1; i >= 0; i-- {
			want = append(want, ids[i])
		}
		assert.Equal(t, want, idsOf(got))
	})

	t.Run("id tie-break keeps pages disjoint", func(t *testing.T) {
		// Every row has the same state, so ordering falls back to id.
		spec := query.Spec{SortField: "state", SortOrder: query.SortAsc, Limit: 5}
		pageOne, err := h.Store.QueryNegotiations(ctx, spec)
		require.NoError(t, err)
		spec.Offset = 5
		pageTwo, err := h.Store.QueryNegotiations(ctx, spec)
		require.NoError(t, err)
		assert.Equal(t, ids[:5], idsOf(pageOne))
		assert.Equal(t, ids[5:], idsOf(pageTwo))
	})

	t.Run("offset beyond result set", func(t *testing.T) {
		got, err := h.Store.QueryNegotiations(ctx, query.Spec{Offset: 50, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func testQueryDefaultLimit(t *testing.T, h *Harness) {
	ctx := context.Background()
	for i := 0; i < query.DefaultLimit+5; i++ {
		require.NoError(t, h.Store.Save(ctx, newNegotiation(t, h.Clock.NowMillis())))
	}

	got, err := h.Store.QueryNegotiations(ctx, query.Spec{})
	require.NoError(t, err)
	assert.Len(t, got, query.DefaultLimit)
}

func testQueryAgreements(t *testing.T, h *Harness) {
	ctx := context.Background()
	now := h.Clock.NowMillis()

	seed := []struct {
		id, provider, asset string
		signedAt            int64
	}{
		{"agr-a", "provider-1", "asset-1", now + 1},
		{"agr-b", "provider-2", "asset-2", now + 2},
		{"agr-c", "provider-1", "asset-3", now + 3},
	}
	for _, s := range seed {
		a, err := negotiation.NewAgreement(s.id, s.provider, "consumer-1", s.asset, s.signedAt, json.RawMessage(`{"permissions":[]}`))
		require.NoError(t, err)
		n := newNegotiation(t, now)
		require.NoError(t, n.SetAgreement(a))
		require.NoError(t, h.Store.Save(ctx, n))
	}

	t.Run("filter by asset", func(t *testing.T) {
		got, err := h.Store.QueryAgreements(ctx, query.New(query.NewCriterion("assetId", query.OpEqual, "asset-1")))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "agr-a", got[0].ID)
	})

	t.Run("filter by provider", func(t *testing.T) {
		got, err := h.Store.QueryAgreements(ctx, query.New(query.NewCriterion("providerId", query.OpEqual, "provider-1")))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"agr-a", "agr-c"}, agreementIDs(got))
	})

	t.Run("sort by signing date descending", func(t *testing.T) {
		got, err := h.Store.QueryAgreements(ctx, query.Spec{
			SortField: "signingDate",
			SortOrder: query.SortDesc,
			Limit:     10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"agr-c", "agr-b", "agr-a"}, agreementIDs(got))
	})

	t.Run("pagination", func(t *testing.T) {
		got, err := h.Store.QueryAgreements(ctx, query.Spec{
			SortField: "signingDate",
			SortOrder: query.SortAsc,
			Offset:    1,
			Limit:     1,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"agr-b"}, agreementIDs(got))
	})

	t.Run("unknown path", func(t *testing.T) {
		_, err := h.Store.QueryAgreements(ctx, query.New(query.NewCriterion("policy", query.OpEqual, "x")))
		require.ErrorIs(t, err, query.ErrInvalidQuery)
	})
}

func testQueryInvalidSpecs(t *testing.T, h *Harness) {
	ctx := context.Background()
	tests := []struct {
		name string
		spec query.Spec
	}{
		{"unknown path", query.New(query.NewCriterion("bogus", query.OpEqual, 1))},
		{"unsupported operator", query.New(query.NewCriterion("state", "~", 1))},
		{"membership without collection", query.New(query.NewCriterion("state", query.OpIn, 50))},
		{"negative offset", query.Spec{Offset: -1, Limit: 10}},
		{"nested sort field", query.Spec{SortField: "contractOffers.id", Limit: 10}},
		{"unknown sort order", query.Spec{SortField: "state", SortOrder: "SIDEWAYS", Limit: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Store.QueryNegotiations(ctx, tt.spec)
			require.ErrorIs(t, err, query.ErrInvalidQuery)
		})
	}
}

func testConcurrentNextNotLeased(t *testing.T, h *Harness) {
	ctx := context.Background()
	const total, workers, batch = 40, 4, 15
	for i := 0; i < total; i++ {
		now := h.Clock.NowMillis()
		n := newNegotiation(t, now)
		require.NoError(t, n.TransitionTo(negotiation.StateRequesting, now))
		require.NoError(t, h.Store.Save(ctx, n))
		h.Clock.Advance(time.Millisecond)
	}
	criterion := query.NewCriterion("state", query.OpEqual, negotiation.StateRequesting.Code())

	var mu sync.Mutex
	claimed := make(map[string]int)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			rows, err := h.Store.NextNotLeased(gctx, batch, criterion)
			if err != nil {
				// Colliding claimers may fail their whole batch; double
				// claims are the only forbidden outcome.
				if errors.Is(err, negotiation.ErrAlreadyLeased) {
					return nil
				}
				return err
			}
			mu.Lock()
			for _, n := range rows {
				claimed[n.ID]++
			}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.NotEmpty(t, claimed)
	for id, count := range claimed {
		assert.Equalf(t, 1, count, "negotiation %s claimed by more than one batch", id)
	}
}

func newNegotiation(t *testing.T, now int64) *negotiation.Negotiation {
	t.Helper()
	n, err := negotiation.New(negotiation.TypeInitiator, "counter-party", "https://counter.example/api", "dataspace-protocol-http", now)
	require.NoError(t, err)
	return n
}

func newAgreement(t *testing.T, id, assetID string, signedAt int64) *negotiation.Agreement {
	t.Helper()
	a, err := negotiation.NewAgreement(id, "provider-1", "consumer-1", assetID, signedAt, json.RawMessage(`{"permissions":[]}`))
	require.NoError(t, err)
	return a
}

func idsOf(items []*negotiation.Negotiation) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.ID)
	}
	return out
}

func agreementIDs(items []*negotiation.Agreement) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func requireSameNegotiation(t *testing.T, want, got *negotiation.Negotiation) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.CorrelationID, got.CorrelationID)
	assert.Equal(t, want.CounterPartyID, got.CounterPartyID)
	assert.Equal(t, want.CounterPartyAddress, got.CounterPartyAddress)
	assert.Equal(t, want.Protocol, got.Protocol)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.StateCount, got.StateCount)
	assert.Equal(t, want.StateTimestamp, got.StateTimestamp)
	assert.Equal(t, want.Pending, got.Pending)
	assert.Equal(t, want.ErrorDetail, got.ErrorDetail)
	assert.Equal(t, want.TraceContext, got.TraceContext)
	assert.Equal(t, want.CreatedAt, got.CreatedAt)
	assert.Equal(t, want.UpdatedAt, got.UpdatedAt)

	require.Len(t, got.ContractOffers, len(want.ContractOffers))
	for i := range want.ContractOffers {
		assert.Equal(t, want.ContractOffers[i].ID, got.ContractOffers[i].ID)
		assert.Equal(t, want.ContractOffers[i].AssetID, got.ContractOffers[i].AssetID)
		assert.JSONEq(t, string(want.ContractOffers[i].Policy), string(got.ContractOffers[i].Policy))
	}
	assert.Equal(t, want.CallbackAddresses, got.CallbackAddresses)

	if want.ContractAgreement == nil {
		assert.Nil(t, got.ContractAgreement)
	} else {
		requireSameAgreement(t, want.ContractAgreement, got.ContractAgreement)
	}
}

func requireSameAgreement(t *testing.T, want, got *negotiation.Agreement) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.ProviderID, got.ProviderID)
	assert.Equal(t, want.ConsumerID, got.ConsumerID)
	assert.Equal(t, want.AssetID, got.AssetID)
	assert.Equal(t, want.SigningDate, got.SigningDate)
	assert.JSONEq(t, string(want.Policy), string(got.Policy))
}

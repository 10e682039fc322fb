package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/infrastructure/memory"
	"github.com/contract-hub/contract-hub/internal/query"
)

const testLeaseDuration = 30 * time.Second

func newWorkerStore(t *testing.T) (*memory.Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	return memory.NewStore(clk, "worker-test", testLeaseDuration, nil), clk
}

func seedRequested(t *testing.T, store *memory.Store, clk *clock.Manual) *negotiation.Negotiation {
	t.Helper()
	n, err := negotiation.New(negotiation.TypeInitiator, "counter-party", "https://counter.example/api", "dataspace-protocol-http", clk.NowMillis())
	require.NoError(t, err)
	n.State = negotiation.StateRequested
	require.NoError(t, store.Save(context.Background(), n))
	return n
}

// countingStore counts claim attempts without changing store behavior.
type countingStore struct {
	negotiation.Store
	polls atomic.Int64
}

func (c *countingStore) NextNotLeased(ctx context.Context, max int, criteria ...query.Criterion) ([]*negotiation.Negotiation, error) {
	c.polls.Add(1)
	return c.Store.NextNotLeased(ctx, max, criteria...)
}

// failingStore fails every claim attempt.
type failingStore struct {
	negotiation.Store
	polls atomic.Int64
}

func (f *failingStore) NextNotLeased(ctx context.Context, max int, criteria ...query.Criterion) ([]*negotiation.Negotiation, error) {
	f.polls.Add(1)
	return nil, negotiation.NewStorageError("next not leased", errors.New("connection reset"))
}

func TestDispatcherProcessesBatch(t *testing.T) {
	store, clk := newWorkerStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := seedRequested(t, store, clk)
	n2 := seedRequested(t, store, clk)

	var mu sync.Mutex
	processed := make(map[string]bool)

	d := NewDispatcher(store, clk, zerolog.Nop())
	d.Interval = 10 * time.Millisecond
	d.Criteria = []query.Criterion{query.NewCriterion("state", query.OpEqual, negotiation.StateRequested.Code())}
	d.Process = func(ctx context.Context, n *negotiation.Negotiation) error {
		if err := n.TransitionTo(negotiation.StateTerminated, clk.NowMillis()); err != nil {
			return err
		}
		if err := store.Save(ctx, n); err != nil {
			return err
		}
		mu.Lock()
		processed[n.ID] = true
		done := len(processed) == 2
		mu.Unlock()
		if done {
			cancel()
		}
		return nil
	}

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	assert.True(t, processed[n1.ID])
	assert.True(t, processed[n2.ID])
	mu.Unlock()

	// Saving released the claims and persisted the new state.
	for _, id := range []string{n1.ID, n2.ID} {
		leased, err := store.IsLeased(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, leased)
		got, err := store.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, negotiation.StateTerminated, got.State)
	}
}

func TestDispatcherKeepsLeaseOnFailure(t *testing.T) {
	store, clk := newWorkerStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := seedRequested(t, store, clk)

	d := NewDispatcher(store, clk, zerolog.Nop())
	d.Interval = 10 * time.Millisecond
	d.Criteria = []query.Criterion{query.NewCriterion("state", query.OpEqual, negotiation.StateRequested.Code())}
	d.Process = func(ctx context.Context, n *negotiation.Negotiation) error {
		cancel()
		return errors.New("counterparty unreachable")
	}

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The claim stays until it expires, then the row is eligible again.
	leased, err := store.IsLeased(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, leased)

	got, err := store.FindByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateRequested, got.State)

	clk.Advance(testLeaseDuration)
	leased, err = store.IsLeased(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, leased)
}

func TestDispatcherWaitsWhenIdle(t *testing.T) {
	store, clk := newWorkerStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cs := &countingStore{Store: store}
	d := NewDispatcher(cs, clk, zerolog.Nop())
	d.Interval = time.Hour
	d.Process = func(ctx context.Context, n *negotiation.Negotiation) error { return nil }

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Equal(t, int64(1), cs.polls.Load())
}

func TestDispatcherRetriesAfterStorageError(t *testing.T) {
	store, clk := newWorkerStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &failingStore{Store: store}
	d := NewDispatcher(fs, clk, zerolog.Nop())
	d.Interval = 10 * time.Millisecond
	d.Process = func(ctx context.Context, n *negotiation.Negotiation) error { return nil }

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return fs.polls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherRequiresProcessFunc(t *testing.T) {
	store, clk := newWorkerStore(t)
	d := NewDispatcher(store, clk, zerolog.Nop())

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process function")
}

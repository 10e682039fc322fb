// Package worker drives background processing of negotiations. A
// dispatcher claims batches through the store's lease protocol, so several
// connector instances can poll the same database without double-processing
// an entity.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/query"
)

const (
	DefaultBatchSize = 10
	DefaultInterval  = time.Second
)

// ProcessFunc handles one claimed negotiation. The callee owns the lease:
// saving the negotiation releases it, anything else leaves it to expire.
type ProcessFunc func(ctx context.Context, n *negotiation.Negotiation) error

// Dispatcher polls the store for claimable negotiations and fans each
// batch out to Process.
type Dispatcher struct {
	store  negotiation.Store
	clock  clock.Clock
	logger zerolog.Logger

	// BatchSize caps both the rows claimed per poll and the number of
	// concurrent Process calls.
	BatchSize int
	// Interval is how long to wait after an empty batch or a failed
	// claim before polling again.
	Interval time.Duration
	// Criteria select the negotiations this dispatcher is responsible
	// for, typically a state filter.
	Criteria []query.Criterion
	// Process is invoked once per claimed negotiation.
	Process ProcessFunc
}

func NewDispatcher(store negotiation.Store, clk clock.Clock, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		clock:     clk,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		BatchSize: DefaultBatchSize,
		Interval:  DefaultInterval,
	}
}

// Run polls until ctx is cancelled. A batch with work polls again
// immediately; empty batches and failed claims wait Interval.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Process == nil {
		return errors.New("dispatcher requires a process function")
	}
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		count, err := d.dispatchOnce(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, negotiation.ErrAlreadyLeased):
			// Another instance claimed the batch first.
			d.logger.Debug().Msg("batch contended, backing off")
		default:
			d.logger.Error().Err(err).Msg("claim batch failed")
		}
		if count > 0 && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatchOnce claims one batch and processes it, returning how many
// negotiations were claimed.
func (d *Dispatcher) dispatchOnce(ctx context.Context) (int, error) {
	size := d.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batch, err := d.store.NextNotLeased(ctx, size, d.Criteria...)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	started := d.clock.NowMillis()
	g, gctx := errgroup.WithContext(ctx)
	// The limit also guards against a store handing back more rows than
	// requested.
	g.SetLimit(size)
	for _, n := range batch {
		g.Go(func() error {
			if err := d.Process(gctx, n); err != nil {
				d.logger.Error().Err(err).
					Str("negotiation_id", n.ID).
					Str("state", n.State.String()).
					Msg("process negotiation failed")
			}
			// A failed negotiation keeps its lease until expiry; the
			// rest of the batch still runs.
			return nil
		})
	}
	_ = g.Wait()
	d.logger.Debug().
		Int("count", len(batch)).
		Int64("elapsed_ms", d.clock.NowMillis()-started).
		Msg("dispatched batch")
	return len(batch), nil
}

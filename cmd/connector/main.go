package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/contract-hub/contract-hub/internal/api/http"
	appNegotiation "github.com/contract-hub/contract-hub/internal/application/negotiation"
	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/config"
	"github.com/contract-hub/contract-hub/internal/domain/negotiation"
	"github.com/contract-hub/contract-hub/internal/events"
	"github.com/contract-hub/contract-hub/internal/infrastructure/postgres"
	"github.com/contract-hub/contract-hub/internal/query"
	"github.com/contract-hub/contract-hub/internal/worker"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	clk := clock.NewSystem()
	router := events.NewRouter(logger)
	defer router.Close()

	store := postgres.NewStore(pool, postgres.NewStatements(), clk, cfg.ConnectorID, cfg.LeaseDuration, router)
	negotiationSvc := appNegotiation.NewService(store, logger)

	// lifecycle event log
	eventCh, unsubscribe := router.Subscribe(64)
	defer unsubscribe()
	go func() {
		for e := range eventCh {
			logger.Info().
				Str("event", e.Type).
				Str("event_id", e.ID).
				Int64("occurred_at", e.OccurredAt).
				RawJSON("payload", e.Payload).
				Msg("negotiation event")
		}
	}()

	// Terminations finish in the background: protocol drivers park a
	// negotiation in TERMINATING and the dispatcher settles it.
	dispatcher := worker.NewDispatcher(store, clk, logger)
	dispatcher.BatchSize = cfg.WorkerBatch
	dispatcher.Interval = cfg.WorkerInterval
	dispatcher.Criteria = []query.Criterion{
		query.NewCriterion("state", query.OpEqual, negotiation.StateTerminating.Code()),
		query.NewCriterion("pending", query.OpEqual, false),
	}
	dispatcher.Process = func(ctx context.Context, n *negotiation.Negotiation) error {
		if err := n.TransitionTo(negotiation.StateTerminated, clk.NowMillis()); err != nil {
			return err
		}
		return store.Save(ctx, n)
	}
	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("dispatcher stopped")
		}
	}()

	// API server
	apiServer := httpapi.NewServer(negotiationSvc, router)
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().
			Str("addr", cfg.ServerAddr).
			Str("connector_id", cfg.ConnectorID).
			Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}

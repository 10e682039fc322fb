//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/contract-hub/contract-hub/internal/clock"
	"github.com/contract-hub/contract-hub/internal/storetest"
)

const (
	testHolder        = "connector-under-test"
	testLeaseDuration = 30 * time.Second
	migrationsDir     = "../../../migrations"
)

var testPool *pgxpool.Pool

// TestMain provisions one database for the whole package: a disposable
// container by default, or the database at TEST_DATABASE_URL when set.
func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	terminate := func() {}
	if dsn == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16",
			tcpostgres.WithDatabase("contracthub"),
			tcpostgres.WithUsername("contracthub"),
			tcpostgres.WithPassword("contracthub"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
			os.Exit(1)
		}
		terminate = func() { _ = container.Terminate(ctx) }
		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			fmt.Fprintf(os.Stderr, "container dsn: %v\n", err)
			os.Exit(1)
		}
	}

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		terminate()
		fmt.Fprintf(os.Stderr, "db pool: %v\n", err)
		os.Exit(1)
	}
	if err := RunMigrations(ctx, pool, migrationsDir); err != nil {
		pool.Close()
		terminate()
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	code := m.Run()
	pool.Close()
	terminate()
	os.Exit(code)
}

// openHarness resets the schema and hands the contract suite a store on a
// manual clock, so tests control lease expiry.
func openHarness(t *testing.T) *storetest.Harness {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, `TRUNCATE contract_negotiations, contract_agreements, leases`)
	require.NoError(t, err)

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	s := NewStore(testPool, NewStatements(), clk, testHolder, testLeaseDuration, nil)
	return &storetest.Harness{
		Store:         s,
		Leases:        s,
		Clock:         clk,
		Holder:        testHolder,
		LeaseDuration: testLeaseDuration,
	}
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, openHarness)
}

func TestMigrationsIdempotent(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), testPool, migrationsDir))
}

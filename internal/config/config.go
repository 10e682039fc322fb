package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Config holds connector configuration.
type Config struct {
	DatabaseURL    string
	ServerAddr     string
	ConnectorID    string
	LeaseDuration  time.Duration
	MigrationsDir  string
	WorkerInterval time.Duration
	WorkerBatch    int
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "contract_hub")
		pass := getenv("POSTGRES_PASSWORD", "contract_hub_pass")
		db := getenv("POSTGRES_DB", "contract_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	leaseDuration := parseDuration(getenv("LEASE_DURATION", "60s"), 60*time.Second)
	migrationsDir := getenv("MIGRATIONS_DIR", "migrations")
	workerInterval := parseDuration(getenv("WORKER_POLL_INTERVAL", "1s"), time.Second)
	workerBatch := parseInt(getenv("WORKER_BATCH_SIZE", "10"), 10)

	return &Config{
		DatabaseURL:    dsn,
		ServerAddr:     addr,
		ConnectorID:    connectorID(),
		LeaseDuration:  leaseDuration,
		MigrationsDir:  migrationsDir,
		WorkerInterval: workerInterval,
		WorkerBatch:    workerBatch,
	}, nil
}

// connectorID names this instance as a lease holder, so the fallback must
// still be unique per runtime instance.
func connectorID() string {
	if id := os.Getenv("CONNECTOR_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/persistence"
)

// Config holds journal connection configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	ConnectTimeout  time.Duration // total retry budget for the first ping
}

// DefaultConfig returns reasonable defaults for journal connections
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
		ConnectTimeout:  30 * time.Second,
	}
}

// Manager owns the journal connection and its repository
type Manager struct {
	db      *sqlx.DB
	journal persistence.JournalRepo
	timeout time.Duration
}

// Connect opens the journal, retrying the first ping with exponential backoff,
// and applies Schema
func Connect(ctx context.Context, config Config) (*Manager, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = config.ConnectTimeout

	attempt := 0
	operation := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Journal ping failed")
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
	}

	m := NewManager(db, config.QueryTimeout)
	if err := m.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Int("attempts", attempt).Msg("Decision journal connected")
	return m, nil
}

// NewManager wraps an open connection
func NewManager(db *sqlx.DB, queryTimeout time.Duration) *Manager {
	if queryTimeout <= 0 {
		queryTimeout = DefaultConfig().QueryTimeout
	}
	return &Manager{
		db:      db,
		journal: NewJournalRepo(db, queryTimeout),
		timeout: queryTimeout,
	}
}

// Migrate creates the journal table when missing
func (m *Manager) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return nil
}

// Journal returns the decision journal repository
func (m *Manager) Journal() persistence.JournalRepo {
	return m.journal
}

// Health returns current repository health status
func (m *Manager) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()

	var errs []string
	if err := m.Ping(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
	}

	stats := m.db.Stats()
	return persistence.HealthCheck{
		Healthy: len(errs) == 0,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open": stats.MaxOpenConnections,
			"open":     stats.OpenConnections,
			"in_use":   stats.InUse,
			"idle":     stats.Idle,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// Ping tests basic connectivity to the database
func (m *Manager) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.db.PingContext(pingCtx)
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/optionsrun/internal/persistence"
)

// Schema creates the decision journal table
const Schema = `
CREATE TABLE IF NOT EXISTS decision_journal (
	id         UUID PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	kind       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS decision_journal_symbol_ts ON decision_journal (symbol, ts DESC);`

const journalColumns = `id, ts, kind, symbol, input_hash, outcome, payload, created_at`

// journalRepo implements JournalRepo for PostgreSQL
type journalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewJournalRepo creates a new PostgreSQL decision journal
func NewJournalRepo(db *sqlx.DB, timeout time.Duration) persistence.JournalRepo {
	return &journalRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert appends a decision; the entry gets a fresh UUID when it has none
func (r *journalRepo) Insert(ctx context.Context, entry *persistence.JournalEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if !entry.Kind.Valid() {
		return fmt.Errorf("invalid journal kind: %s", entry.Kind)
	}
	if len(entry.Payload) == 0 {
		return fmt.Errorf("journal entry %s has no payload", entry.Kind)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO decision_journal (id, ts, kind, symbol, input_hash, outcome, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		entry.ID, entry.Timestamp, entry.Kind, entry.Symbol,
		entry.InputHash, entry.Outcome, []byte(entry.Payload)).
		Scan(&entry.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate journal entry %s: %w", entry.ID, err)
		}
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	return nil
}

// GetByID retrieves one entry
func (r *journalRepo) GetByID(ctx context.Context, id string) (*persistence.JournalEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var entry persistence.JournalEntry
	err := r.db.GetContext(ctx, &entry,
		`SELECT `+journalColumns+` FROM decision_journal WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}

	return &entry, nil
}

// ListBySymbol retrieves entries for a symbol within the range, newest first
func (r *journalRepo) ListBySymbol(ctx context.Context, symbol string, tr persistence.TimeRange, limit int) ([]persistence.JournalEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + journalColumns + `
		FROM decision_journal
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4`

	var entries []persistence.JournalEntry
	if err := r.db.SelectContext(ctx, &entries, query, symbol, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	return entries, nil
}

// CountByOutcome groups one kind of decision by its outcome
func (r *journalRepo) CountByOutcome(ctx context.Context, kind persistence.Kind, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT outcome, COUNT(*)
		FROM decision_journal
		WHERE kind = $1 AND ts >= $2 AND ts <= $3
		GROUP BY outcome
		ORDER BY outcome`

	rows, err := r.db.QueryxContext(ctx, query, kind, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count journal outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a journal entry does not exist
var ErrNotFound = errors.New("journal entry not found")

// Kind names the engine operation that produced a journal entry
type Kind string

const (
	KindRegime     Kind = "regime"
	KindStrategies Kind = "strategies"
	KindMonitor    Kind = "monitor"
	KindAutopsy    Kind = "autopsy"
	KindAnalysis   Kind = "analysis"
)

// Valid reports whether k is a known operation kind
func (k Kind) Valid() bool {
	switch k {
	case KindRegime, KindStrategies, KindMonitor, KindAutopsy, KindAnalysis:
		return true
	}
	return false
}

// TimeRange represents a time window for journal queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// JournalEntry is one emitted engine decision, stored verbatim for later review
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Timestamp time.Time       `json:"ts" db:"ts"`
	Kind      Kind            `json:"kind" db:"kind"`
	Symbol    string          `json:"symbol" db:"symbol"`
	InputHash string          `json:"input_hash" db:"input_hash"`
	Outcome   string          `json:"outcome" db:"outcome"` // recommended action, health or mistake
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// JournalRepo persists decisions in append-only fashion
type JournalRepo interface {
	// Insert appends an entry; ID and CreatedAt are filled in
	Insert(ctx context.Context, entry *JournalEntry) error

	// GetByID returns ErrNotFound when the entry is absent
	GetByID(ctx context.Context, id string) (*JournalEntry, error)

	// ListBySymbol returns entries for a symbol within the range, newest first
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]JournalEntry, error)

	// CountByOutcome groups entries of one kind by outcome
	CountByOutcome(ctx context.Context, kind Kind, tr TimeRange) (map[string]int64, error)
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}

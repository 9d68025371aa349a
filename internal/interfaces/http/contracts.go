package http

import (
	"time"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/persistence"
	"github.com/sawpanic/optionsrun/internal/policy"
	"github.com/sawpanic/optionsrun/internal/regime"
)

// StrategiesRequest asks for ranked strategies; the regime is classified from
// the snapshot when the caller does not supply one
type StrategiesRequest struct {
	Snapshot *models.MarketSnapshot `json:"snapshot"`
	Regime   *regime.Output         `json:"regime,omitempty"`
	Profile  *models.UserProfile    `json:"profile"`
}

// MonitorRequest asks for a health check of an open trade against a fresh snapshot
type MonitorRequest struct {
	Trade    *models.Trade          `json:"trade"`
	Snapshot *models.MarketSnapshot `json:"snapshot"`
}

// AnalysisRequest asks for the combined strategic report
type AnalysisRequest struct {
	Snapshot       *models.MarketSnapshot `json:"snapshot"`
	Profile        *models.UserProfile    `json:"profile"`
	ActiveTrade    *models.Trade          `json:"active_trade,omitempty"`
	CompletedTrade *models.TradeLifecycle `json:"completed_trade,omitempty"`
}

// JournalListResponse pages decisions recorded for one symbol
type JournalListResponse struct {
	Symbol  string                     `json:"symbol"`
	From    time.Time                  `json:"from"`
	To      time.Time                  `json:"to"`
	Count   int                        `json:"count"`
	Entries []persistence.JournalEntry `json:"entries"`
}

// OutcomeCountsResponse tallies one kind of decision by outcome
type OutcomeCountsResponse struct {
	Kind   persistence.Kind `json:"kind"`
	From   time.Time        `json:"from"`
	To     time.Time        `json:"to"`
	Counts map[string]int64 `json:"counts"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Component string              `json:"component,omitempty"`
	Fields    []policy.FieldError `json:"fields,omitempty"`
	RequestID string              `json:"request_id"`
	Timestamp time.Time           `json:"timestamp"`
}

// Error codes
const (
	CodeValidation  = "validation_failed"
	CodeBadJSON     = "malformed_json"
	CodeRateLimited = "rate_limited"
	CodeNotFound    = "endpoint_not_found"
	CodeInternal    = "internal_error"
	CodeBadQuery    = "invalid_query"
	CodeNoEntry     = "entry_not_found"
	CodeUnavailable = "journal_unavailable"
)

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/infra/breakers"
	"github.com/sawpanic/optionsrun/internal/persistence"
)

const (
	defaultJournalWindow = 24 * time.Hour
	maxJournalLimit      = 500
)

// GetJournalEntry returns one recorded decision by its request id
func (s *Server) GetJournalEntry(w http.ResponseWriter, r *http.Request) {
	if !s.journalReady(w, r) {
		return
	}

	id := mux.Vars(r)["id"]
	// Not found does not count against the breaker
	v, err := s.journalBreaker.Execute(func() (any, error) {
		entry, err := s.journal.GetByID(r.Context(), id)
		if errors.Is(err, persistence.ErrNotFound) {
			return (*persistence.JournalEntry)(nil), nil
		}
		return entry, err
	})
	if err != nil {
		s.writeJournalError(w, r, err)
		return
	}

	entry := v.(*persistence.JournalEntry)
	if entry == nil {
		s.writeError(w, r, http.StatusNotFound, CodeNoEntry, fmt.Sprintf("No journal entry %s", id))
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// ListJournal returns decisions for ?symbol= within ?from=&to= (RFC3339), newest first
func (s *Server) ListJournal(w http.ResponseWriter, r *http.Request) {
	if !s.journalReady(w, r) {
		return
	}

	query := r.URL.Query()
	symbol := query.Get("symbol")
	if symbol == "" {
		s.writeError(w, r, http.StatusBadRequest, CodeBadQuery, "symbol query parameter is required")
		return
	}

	tr, err := s.timeRange(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeBadQuery, err.Error())
		return
	}

	limit := 100
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxJournalLimit {
			s.writeError(w, r, http.StatusBadRequest, CodeBadQuery, fmt.Sprintf("limit must be between 1 and %d", maxJournalLimit))
			return
		}
	}

	v, err := s.journalBreaker.Execute(func() (any, error) {
		return s.journal.ListBySymbol(r.Context(), symbol, tr, limit)
	})
	if err != nil {
		s.writeJournalError(w, r, err)
		return
	}

	entries := v.([]persistence.JournalEntry)
	if entries == nil {
		entries = []persistence.JournalEntry{}
	}
	s.writeJSON(w, http.StatusOK, JournalListResponse{
		Symbol:  symbol,
		From:    tr.From,
		To:      tr.To,
		Count:   len(entries),
		Entries: entries,
	})
}

// JournalOutcomes tallies ?kind= decisions by outcome within ?from=&to=
func (s *Server) JournalOutcomes(w http.ResponseWriter, r *http.Request) {
	if !s.journalReady(w, r) {
		return
	}

	kind := persistence.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		s.writeError(w, r, http.StatusBadRequest, CodeBadQuery, fmt.Sprintf("unknown kind %q", kind))
		return
	}

	tr, err := s.timeRange(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeBadQuery, err.Error())
		return
	}

	v, err := s.journalBreaker.Execute(func() (any, error) {
		return s.journal.CountByOutcome(r.Context(), kind, tr)
	})
	if err != nil {
		s.writeJournalError(w, r, err)
		return
	}

	counts := v.(map[string]int64)
	if counts == nil {
		counts = map[string]int64{}
	}
	s.writeJSON(w, http.StatusOK, OutcomeCountsResponse{Kind: kind, From: tr.From, To: tr.To, Counts: counts})
}

func (s *Server) journalReady(w http.ResponseWriter, r *http.Request) bool {
	if s.journal == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "Decision journal is not configured")
		return false
	}
	return true
}

// timeRange parses from/to, defaulting to the last 24 hours
func (s *Server) timeRange(r *http.Request) (persistence.TimeRange, error) {
	query := r.URL.Query()
	tr := persistence.TimeRange{To: s.now().UTC()}

	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return tr, fmt.Errorf("to: %w", err)
		}
		tr.To = to.UTC()
	}

	tr.From = tr.To.Add(-defaultJournalWindow)
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return tr, fmt.Errorf("from: %w", err)
		}
		tr.From = from.UTC()
	}

	if tr.From.After(tr.To) {
		return tr, fmt.Errorf("from %s is after to %s", tr.From.Format(time.RFC3339), tr.To.Format(time.RFC3339))
	}
	return tr, nil
}

// writeJournalError reports an open breaker or a failed read as 503
func (s *Server) writeJournalError(w http.ResponseWriter, r *http.Request, err error) {
	if breakers.IsOpen(err) {
		w.Header().Set("Retry-After", "60")
	} else {
		log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("Journal read failed")
	}
	s.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "Decision journal is unavailable")
}

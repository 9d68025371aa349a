package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/infra/breakers"
	"github.com/sawpanic/optionsrun/internal/persistence"
)

// Cache and journal are best-effort: their failures are logged and counted,
// never returned to the caller.

// cached loads a previously computed report into dst. A request carrying
// Cache-Control: no-cache evicts the entry and is recomputed.
func (s *Server) cached(r *http.Request, kind, hash string, dst interface{}) bool {
	if s.cache == nil || hash == "" {
		return false
	}
	if strings.Contains(r.Header.Get("Cache-Control"), "no-cache") {
		s.evict(r, kind, hash)
		s.metrics.CacheMisses.WithLabelValues(kind).Inc()
		return false
	}

	var found bool
	err := s.cacheBreaker.Do(func() error {
		var err error
		found, err = s.cache.Get(r.Context(), kind, hash, dst)
		return err
	})
	if err != nil && !breakers.IsOpen(err) {
		log.Warn().Err(err).Str("operation", kind).Msg("Report cache read failed")
	}

	if found {
		s.metrics.CacheHits.WithLabelValues(kind).Inc()
	} else {
		s.metrics.CacheMisses.WithLabelValues(kind).Inc()
	}
	return found
}

// evict drops a cached report
func (s *Server) evict(r *http.Request, kind, hash string) {
	err := s.cacheBreaker.Do(func() error {
		return s.cache.Delete(r.Context(), kind, hash)
	})
	if err != nil && !breakers.IsOpen(err) {
		log.Warn().Err(err).Str("operation", kind).Msg("Report cache eviction failed")
	}
}

// store saves a freshly computed report
func (s *Server) store(r *http.Request, kind, hash string, report interface{}) {
	if s.cache == nil || hash == "" {
		return
	}

	err := s.cacheBreaker.Do(func() error {
		return s.cache.Set(r.Context(), kind, hash, report)
	})
	if err != nil && !breakers.IsOpen(err) {
		log.Warn().Err(err).Str("operation", kind).Msg("Report cache write failed")
	}
}

// record appends the decision to the journal under the request id
func (s *Server) record(r *http.Request, kind persistence.Kind, symbol, hash, outcome string, payload interface{}) {
	if s.journal == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.metrics.JournalWrites.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Journal payload not serializable")
		return
	}

	entry := &persistence.JournalEntry{
		ID:        RequestID(r.Context()),
		Timestamp: s.now().UTC(),
		Kind:      kind,
		Symbol:    symbol,
		InputHash: hash,
		Outcome:   outcome,
		Payload:   data,
	}

	err = s.journalBreaker.Do(func() error {
		return s.journal.Insert(r.Context(), entry)
	})

	switch {
	case err == nil:
		s.metrics.JournalWrites.WithLabelValues("ok").Inc()
	case breakers.IsOpen(err):
		s.metrics.JournalWrites.WithLabelValues("skipped").Inc()
	default:
		s.metrics.JournalWrites.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Journal write failed")
	}
}

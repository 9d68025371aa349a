package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionsrun/internal/overlay"
	"github.com/sawpanic/optionsrun/internal/persistence"
	"github.com/sawpanic/optionsrun/internal/strategy"
)

func getJSON(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestJournal_GetByRequestID(t *testing.T) {
	journal := &fakeJournal{}
	s := newTestServer(t, Deps{Journal: journal})

	analyzed := postJSON(t, s, "/v1/market/analyze", niftySnapshot())
	require.Equal(t, http.StatusOK, analyzed.Code)
	id := analyzed.Header().Get("X-Request-ID")

	rec := getJSON(t, s, "/v1/journal/"+id)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var entry persistence.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, persistence.KindRegime, entry.Kind)
	assert.Contains(t, string(entry.Payload), `"symbol":"NIFTY"`)
}

func TestJournal_MissingEntryDoesNotTripBreaker(t *testing.T) {
	s := newTestServer(t, Deps{Journal: &fakeJournal{}})

	for i := 0; i < 3; i++ {
		rec := getJSON(t, s, "/v1/journal/no-such-id")
		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, CodeNoEntry, resp.Code)
	}
	assert.Equal(t, "closed", s.journalBreaker.State().String())
}

func TestJournal_ListBySymbol(t *testing.T) {
	journal := &fakeJournal{}
	s := newTestServer(t, Deps{Journal: journal})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, postJSON(t, s, "/v1/market/analyze", niftySnapshot()).Code)
	}

	rec := getJSON(t, s, "/v1/journal?symbol=NIFTY&limit=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp JournalListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NIFTY", resp.Symbol)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Entries, 2)
	assert.Equal(t, fixedClock(), resp.To)
	assert.Equal(t, fixedClock().Add(-24*time.Hour), resp.From)

	empty := getJSON(t, s, "/v1/journal?symbol=BANKNIFTY")
	require.Equal(t, http.StatusOK, empty.Code)
	assert.Contains(t, empty.Body.String(), `"entries":[]`)
}

func TestJournal_OutcomeCounts(t *testing.T) {
	journal := &fakeJournal{}
	s := newTestServer(t, Deps{Journal: journal})

	req := StrategiesRequest{Snapshot: niftySnapshot(), Profile: moderateProfile()}
	require.Equal(t, http.StatusOK, postJSON(t, s, "/v1/strategies", req).Code)
	require.Equal(t, http.StatusOK, postJSON(t, s, "/v1/strategies", req).Code)

	rec := getJSON(t, s, "/v1/journal/outcomes?kind=strategies&from=2025-10-06T00:00:00Z&to=2025-10-07T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OutcomeCountsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, persistence.KindStrategies, resp.Kind)
	assert.Equal(t, map[string]int64{"Bull Put Spread": 2}, resp.Counts)
}

func TestJournal_QueryErrors(t *testing.T) {
	s := newTestServer(t, Deps{Journal: &fakeJournal{}})

	tests := []struct {
		name string
		path string
	}{
		{"missing symbol", "/v1/journal"},
		{"bad limit", "/v1/journal?symbol=NIFTY&limit=0"},
		{"limit too large", "/v1/journal?symbol=NIFTY&limit=501"},
		{"bad from", "/v1/journal?symbol=NIFTY&from=yesterday"},
		{"inverted range", "/v1/journal?symbol=NIFTY&from=2025-10-07T00:00:00Z&to=2025-10-06T00:00:00Z"},
		{"unknown kind", "/v1/journal/outcomes?kind=orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := getJSON(t, s, tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, CodeBadQuery, resp.Code)
		})
	}
}

func TestJournal_Unavailable(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, Deps{})
		rec := getJSON(t, s, "/v1/journal?symbol=NIFTY")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("read failures open the breaker", func(t *testing.T) {
		s := newTestServer(t, Deps{Journal: &fakeJournal{err: errors.New("connection refused")}})

		first := getJSON(t, s, "/v1/journal?symbol=NIFTY")
		require.Equal(t, http.StatusServiceUnavailable, first.Code)
		assert.Empty(t, first.Header().Get("Retry-After"))

		second := getJSON(t, s, "/v1/journal/outcomes?kind=regime")
		require.Equal(t, http.StatusServiceUnavailable, second.Code)
		assert.Equal(t, "60", second.Header().Get("Retry-After"))
	})
}

func TestCache_HitIsRestampedAndJournaled(t *testing.T) {
	cache := newFakeCache()
	journal := &fakeJournal{}
	s := newTestServer(t, Deps{Cache: cache, Journal: journal})

	snapshot := niftySnapshot()
	snapshot.IVRank, snapshot.IVPercentile = 95, 97
	req := AnalysisRequest{Snapshot: snapshot, Profile: moderateProfile()}

	first := postJSON(t, s, "/v1/analysis", req)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	later := fixedClock().Add(time.Hour)
	s.now = func() time.Time { return later }

	second := postJSON(t, s, "/v1/analysis", req)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CacheHits.WithLabelValues("analysis")))

	var out overlay.Output
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &out))
	assert.Equal(t, later, out.Meta.Timestamp)
	assert.NotEmpty(t, out.StrategyDecision.FallbackReason)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.FallbackEmitted), "fallback counted on every emitted report")
	assert.Len(t, journal.recorded(), 2)
}

func TestCache_NoCacheEvicts(t *testing.T) {
	cache := newFakeCache()
	s := newTestServer(t, Deps{Cache: cache})

	body := StrategiesRequest{Snapshot: niftySnapshot(), Profile: moderateProfile()}
	require.Equal(t, http.StatusOK, postJSON(t, s, "/v1/strategies", body).Code)
	require.Equal(t, 1, cache.sets)

	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/strategies", bytes.NewReader(buf))
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("Cache-Control", "no-cache")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var recs strategy.Recommendations
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	assert.NotEmpty(t, recs.Strategies)

	assert.Equal(t, 1, cache.deletes)
	assert.Equal(t, 2, cache.sets, "recomputed report is stored again")
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.CacheHits.WithLabelValues("strategies")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.CacheMisses.WithLabelValues("strategies")))
}

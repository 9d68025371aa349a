package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/monitor"
	"github.com/sawpanic/optionsrun/internal/overlay"
	"github.com/sawpanic/optionsrun/internal/persistence"
	"github.com/sawpanic/optionsrun/internal/policy"
	"github.com/sawpanic/optionsrun/internal/strategy"
)

const maxBodyBytes = 1 << 20

// AnalyzeMarket classifies the regime of a snapshot
func (s *Server) AnalyzeMarket(w http.ResponseWriter, r *http.Request) {
	var snapshot models.MarketSnapshot
	if !s.decode(w, r, &snapshot) {
		return
	}

	timer := s.metrics.StartStepTimer("regime")
	out, err := s.engine.Classifier().Analyze(&snapshot)
	if err != nil {
		timer.Stop("invalid")
		s.writeEngineError(w, r, err)
		return
	}
	timer.Stop("ok")

	s.record(r, persistence.KindRegime, snapshot.Symbol, hashOf(&snapshot), regimeOutcome(out.Regime), out)
	s.writeJSON(w, http.StatusOK, out)
}

// Strategies ranks candidate structures for a snapshot and profile
func (s *Server) Strategies(w http.ResponseWriter, r *http.Request) {
	var req StrategiesRequest
	if !s.decode(w, r, &req) {
		return
	}

	hash := hashOf(req.Snapshot, req.Regime, req.Profile)
	out := &strategy.Recommendations{}
	if s.cached(r, string(persistence.KindStrategies), hash, out) {
		out.Timestamp = s.now().UTC()
	} else {
		timer := s.metrics.StartStepTimer("strategies")
		regimeOut := req.Regime
		if regimeOut == nil {
			var err error
			if regimeOut, err = s.engine.Classifier().Analyze(req.Snapshot); err != nil {
				timer.Stop("invalid")
				s.writeEngineError(w, r, err)
				return
			}
		}

		var err error
		out, err = s.engine.Generator().Generate(req.Snapshot, regimeOut, req.Profile)
		if err != nil {
			timer.Stop("invalid")
			s.writeEngineError(w, r, err)
			return
		}
		timer.Stop("ok")

		s.store(r, string(persistence.KindStrategies), hash, out)
	}

	if out.HasFallback() {
		s.metrics.FallbackEmitted.Inc()
	}

	s.record(r, persistence.KindStrategies, out.Symbol, hash, out.Top().Name, out)
	s.writeJSON(w, http.StatusOK, out)
}

// MonitorTrade reports the health of one open trade
func (s *Server) MonitorTrade(w http.ResponseWriter, r *http.Request) {
	var req MonitorRequest
	if !s.decode(w, r, &req) {
		return
	}

	health, err := s.checkTrade(req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	s.record(r, persistence.KindMonitor, health.Symbol, hashOf(req.Trade, req.Snapshot), string(health.Health), health)
	s.writeJSON(w, http.StatusOK, health)
}

// Autopsy reviews a closed trade
func (s *Server) Autopsy(w http.ResponseWriter, r *http.Request) {
	var lifecycle models.TradeLifecycle
	if !s.decode(w, r, &lifecycle) {
		return
	}

	timer := s.metrics.StartStepTimer("autopsy")
	report, err := s.engine.Analyzer().Analyze(&lifecycle)
	if err != nil {
		timer.Stop("invalid")
		s.writeEngineError(w, r, err)
		return
	}
	timer.Stop("ok")

	s.record(r, persistence.KindAutopsy, report.Symbol, hashOf(&lifecycle), string(report.Mistake), report)
	s.writeJSON(w, http.StatusOK, report)
}

// Analysis produces the combined strategic report
func (s *Server) Analysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if !s.decode(w, r, &req) {
		return
	}

	hash := hashOf(req.Snapshot, req.Profile, req.ActiveTrade, req.CompletedTrade)
	out := &overlay.Output{}
	if s.cached(r, string(persistence.KindAnalysis), hash, out) {
		out.Meta.Timestamp = s.now().UTC()
	} else {
		timer := s.metrics.StartStepTimer("analysis")
		var err error
		out, err = s.engine.GenerateAnalysis(req.Snapshot, req.Profile, req.ActiveTrade, req.CompletedTrade)
		if err != nil {
			timer.Stop("invalid")
			s.writeEngineError(w, r, err)
			return
		}
		timer.Stop("ok")

		s.store(r, string(persistence.KindAnalysis), hash, out)
	}

	if out.StrategyDecision.FallbackReason != "" {
		s.metrics.FallbackEmitted.Inc()
	}
	if h := out.TradeManagement.Health; h != nil && h.ThesisBroken {
		s.metrics.ThesisBreaks.WithLabelValues(h.ThesisBreak.String()).Inc()
	}

	s.record(r, persistence.KindAnalysis, out.MarketView.Symbol, hash, out.StrategyDecision.RecommendedAction, out)
	s.writeJSON(w, http.StatusOK, out)
}

// NotFound handles 404 responses
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, r, http.StatusNotFound, CodeNotFound, "The requested endpoint does not exist")
}

// checkTrade classifies the current regime from the snapshot and checks the trade against it
func (s *Server) checkTrade(req MonitorRequest) (*monitor.HealthCheck, error) {
	timer := s.metrics.StartStepTimer("monitor")

	regimeOut, err := s.engine.Classifier().Analyze(req.Snapshot)
	if err != nil {
		timer.Stop("invalid")
		return nil, err
	}

	current := regimeOut.Regime
	health, err := s.engine.Monitor().Check(req.Trade, req.Snapshot, &current)
	if err != nil {
		timer.Stop("invalid")
		return nil, err
	}
	timer.Stop("ok")

	if health.ThesisBroken {
		s.metrics.ThesisBreaks.WithLabelValues(health.ThesisBreak.String()).Inc()
	}
	return health, nil
}

// decode reads a JSON body, replying 400 on malformed input
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, CodeBadJSON, fmt.Sprintf("Request body is not valid JSON: %v", err))
		return false
	}
	return true
}

// writeEngineError maps validation failures to 422 and anything else to 500
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr policy.ValidationError
	if errors.As(err, &validationErr) {
		s.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     http.StatusText(http.StatusUnprocessableEntity),
			Code:      CodeValidation,
			Message:   validationErr.Error(),
			Component: validationErr.Component,
			Fields:    validationErr.Fields,
			RequestID: RequestID(r.Context()),
			Timestamp: s.now().UTC(),
		})
		return
	}

	log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("Engine failure")
	s.writeError(w, r, http.StatusInternalServerError, CodeInternal, "Internal error")
}

// writeJSON writes JSON response with proper error handling
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes standardized error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
		Timestamp: s.now().UTC(),
	})
}

func hashOf(inputs ...interface{}) string {
	hash, err := overlay.InputHash(inputs...)
	if err != nil {
		return ""
	}
	return hash
}

func regimeOutcome(r models.RegimeAnalysis) string {
	return fmt.Sprintf("%s/%s/%s", r.Volatility, r.Structure, r.Direction)
}


package overlay

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/autopsy"
	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/monitor"
	"github.com/sawpanic/optionsrun/internal/regime"
	"github.com/sawpanic/optionsrun/internal/strategy"
)

// SchemaVersion tags every report so stored output can be migrated
const SchemaVersion = "v1.0"

// Config bundles the thresholds of every composed component
type Config struct {
	Regime            regime.Config   `yaml:"regime"`
	Strategy          strategy.Config `yaml:"strategy"`
	Monitor           monitor.Config  `yaml:"monitor"`
	Autopsy           autopsy.Config  `yaml:"autopsy"`
	GammaRiskDTE      int             `yaml:"gamma_risk_dte"`      // 5
	NoTradeConfidence float64         `yaml:"no_trade_confidence"` // 0.6
}

// DefaultConfig returns production thresholds for all components
func DefaultConfig() Config {
	return Config{
		Regime:            regime.DefaultConfig(),
		Strategy:          strategy.DefaultConfig(),
		Monitor:           monitor.DefaultConfig(),
		Autopsy:           autopsy.DefaultConfig(),
		GammaRiskDTE:      5,
		NoTradeConfidence: 0.6,
	}
}

// Overlay composes classification, generation, monitoring and review into one
// report. It holds no mutable state and is safe for concurrent use.
type Overlay struct {
	config     Config
	classifier regime.Classifier
	generator  strategy.Generator
	monitor    monitor.Monitor
	analyzer   autopsy.Analyzer
	now        func() time.Time
}

// New creates an overlay from component configs; zero sub-configs use their defaults
func New(config Config) Overlay {
	if config.GammaRiskDTE <= 0 {
		config.GammaRiskDTE = 5
	}
	if config.NoTradeConfidence <= 0 {
		config.NoTradeConfidence = 0.6
	}
	return Overlay{
		config:     config,
		classifier: regime.NewClassifier(config.Regime),
		generator:  strategy.NewGenerator(config.Strategy),
		monitor:    monitor.NewMonitor(config.Monitor),
		analyzer:   autopsy.NewAnalyzer(config.Autopsy),
		now:        time.Now,
	}
}

// WithClock returns a copy of the overlay stamping reports with the given clock
func (o Overlay) WithClock(now func() time.Time) Overlay {
	o.now = now
	o.generator = o.generator.WithClock(now)
	return o
}

// Classifier exposes the composed regime classifier
func (o Overlay) Classifier() regime.Classifier { return o.classifier }

// Generator exposes the composed strategy generator
func (o Overlay) Generator() strategy.Generator { return o.generator }

// Monitor exposes the composed trade monitor
func (o Overlay) Monitor() monitor.Monitor { return o.monitor }

// Analyzer exposes the composed trade autopsy
func (o Overlay) Analyzer() autopsy.Analyzer { return o.analyzer }

// GenerateAnalysis always classifies and generates; it monitors only when an
// active trade is given and reviews only when a completed lifecycle is given.
// Validation errors from any component are returned unchanged.
func (o Overlay) GenerateAnalysis(
	snapshot *models.MarketSnapshot,
	profile *models.UserProfile,
	activeTrade *models.Trade,
	completed *models.TradeLifecycle,
) (*Output, error) {

	regimeOut, err := o.classifier.Analyze(snapshot)
	if err != nil {
		return nil, err
	}

	recs, err := o.generator.Generate(snapshot, regimeOut, profile)
	if err != nil {
		return nil, err
	}

	var health *monitor.HealthCheck
	if activeTrade != nil {
		current := regimeOut.Regime
		if health, err = o.monitor.Check(activeTrade, snapshot, &current); err != nil {
			return nil, err
		}
	}

	var review *autopsy.Report
	if completed != nil {
		if review, err = o.analyzer.Analyze(completed); err != nil {
			return nil, err
		}
	}

	hash, err := InputHash(snapshot, profile, activeTrade, completed)
	if err != nil {
		log.Warn().Err(err).Msg("Input hash unavailable")
	}

	out := &Output{
		Meta: Meta{
			Timestamp: o.timestamp(),
			InputHash: hash,
			Version:   SchemaVersion,
		},
		MarketView:       o.marketView(snapshot, regimeOut),
		StrategyDecision: o.strategyDecision(regimeOut, recs),
		TradeManagement:  tradeManagement(health),
		LearningOutput:   learningOutput(review),
		MetaNotes:        metaNotes(regimeOut, recs),
	}

	log.Debug().
		Str("symbol", snapshot.Symbol).
		Str("recommended_action", out.StrategyDecision.RecommendedAction).
		Bool("trade_management", out.TradeManagement.Applicable).
		Bool("learning", out.LearningOutput.Available).
		Msg("Strategic analysis generated")

	return out, nil
}

func (o Overlay) timestamp() time.Time {
	if o.now == nil {
		return time.Now().UTC()
	}
	return o.now().UTC()
}

func (o Overlay) marketView(s *models.MarketSnapshot, r *regime.Output) MarketView {
	view := MarketView{
		Symbol:     s.Symbol,
		Volatility: describeVolatility(r.Regime.Volatility),
		Structure:  softenStructure(r.Regime.Structure),
		Direction:  softenDirection(r.Regime.Direction),
		Confidence: r.Regime.Confidence,
		Support:    nonNil(r.Levels.Support),
		Resistance: nonNil(r.Levels.Resistance),
		ValueArea:  r.Levels.ValueArea,
		DoNotTrade: nonNilStrings(r.DoNotTrade),
		Warnings:   nonNilStrings(r.Warnings),
		Notes:      r.Notes,
		RiskNotes:  []string{},
	}

	if s.DTE <= o.config.GammaRiskDTE {
		view.RiskNotes = append(view.RiskNotes,
			fmt.Sprintf("%d days to expiry: gamma risk is elevated, size down and manage actively", s.DTE))
	}

	return view
}

func (o Overlay) strategyDecision(r *regime.Output, recs *strategy.Recommendations) StrategyDecision {
	decision := StrategyDecision{
		RecommendedAction: RecommendTrade,
		Primary:           recs.Top().Name,
		Candidates:        make([]CandidateView, 0, len(recs.Strategies)),
		Removed:           recs.Removed,
		FallbackReason:    recs.FallbackReason,
	}

	if len(r.DoNotTrade) > 0 && r.Regime.Confidence < o.config.NoTradeConfidence {
		decision.RecommendedAction = RecommendNoTrade
	}

	for _, s := range recs.Strategies {
		decision.Candidates = append(decision.Candidates, CandidateView{
			Rank:         s.Rank,
			Name:         s.Name,
			Family:       s.Family,
			POP:          s.POP,
			MaxProfit:    s.MaxProfit,
			MaxLoss:      s.MaxLoss,
			Breakeven:    s.Breakeven,
			RiskLevel:    s.RiskLevel,
			Legs:         s.Legs,
			Rationale:    rationale(s, r.Regime),
			Invalidation: invalidation(s),
		})
	}

	return decision
}

func tradeManagement(health *monitor.HealthCheck) TradeManagement {
	if health == nil {
		return TradeManagement{Applicable: false, Summary: "not applicable: no active trade supplied"}
	}
	return TradeManagement{Applicable: true, Health: health, Summary: health.Summary()}
}

func learningOutput(review *autopsy.Report) LearningOutput {
	if review == nil {
		return LearningOutput{Available: false, Lessons: []string{}}
	}
	return LearningOutput{Available: true, Autopsy: review, Lessons: []string{review.Lesson}}
}

func metaNotes(r *regime.Output, recs *strategy.Recommendations) []string {
	notes := []string{
		"Premiums are price×IV/100 heuristics, not model prices.",
		"Greeks and IV change are zero placeholders.",
	}

	floored := 0
	for _, s := range recs.Strategies {
		if !s.IsNoTrade() && s.MaxLoss == 0 {
			floored++
		}
	}
	if floored > 0 {
		notes = append(notes, fmt.Sprintf("%d candidate(s) show zero max loss because the estimated credit exceeds the wing width.", floored))
	}

	for _, w := range r.Warnings {
		notes = append(notes, "Input warning: "+w)
	}
	return notes
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

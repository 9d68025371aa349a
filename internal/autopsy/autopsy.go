package autopsy

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/policy"
)

// Timing classifies when adjustments were made relative to need
type Timing string

const (
	TimingNoneNeeded  Timing = "none-needed"
	TimingAppropriate Timing = "appropriate"
	TimingEarly       Timing = "early"
	TimingLate        Timing = "late"
)

// Mistake is the single primary error attributed to a closed trade
type Mistake string

const (
	MistakeNone               Mistake = "none"
	MistakeRegimeMisread      Mistake = "regime-misread"
	MistakeStrategyUnsuitable Mistake = "strategy-unsuitable"
	MistakeLateAdjustment     Mistake = "late-adjustment"
	MistakeEarlyAdjustment    Mistake = "early-adjustment"
)

// Verdict is a pass/fail judgement with the sub-check that produced it
type Verdict struct {
	Correct bool   `json:"correct"`
	Detail  string `json:"detail"`
}

// AdjustmentTiming is the timing judgement with its detail
type AdjustmentTiming struct {
	Timing Timing `json:"timing"`
	Detail string `json:"detail"`
}

// Report is the post-trade review of one closed lifecycle
type Report struct {
	TradeID            string           `json:"tradeId"`
	Symbol             string           `json:"symbol"`
	Strategy           string           `json:"strategy"`
	RegimeAccuracy     Verdict          `json:"regimeAccuracy"`
	Suitability        Verdict          `json:"suitability"`
	AdjustmentTiming   AdjustmentTiming `json:"adjustmentTiming"`
	Mistake            Mistake          `json:"mistake"`
	Lesson             string           `json:"lesson"`
	ConfidenceError    float64          `json:"confidenceError"` // + pessimistic pop, - optimistic pop
	RepeatStrategy     bool             `json:"repeatStrategy"`
	HoldDays           int              `json:"holdDays"`
	CorrectDecisions   []string         `json:"correctDecisions"`
	IncorrectDecisions []string         `json:"incorrectDecisions"`
	ExpectedPnL        float64          `json:"expectedPnL"`
	ActualPnL          float64          `json:"actualPnL"`
	PnLVsExpected      float64          `json:"pnlVsExpected"`
}

// Profitable reports whether the trade closed with a gain
func (r *Report) Profitable() bool {
	return r.ActualPnL > 0
}

// Summary returns a one-line verdict
func (r *Report) Summary() string {
	outcome := "LOSS"
	if r.Profitable() {
		outcome = "WIN"
	}
	return fmt.Sprintf("%s %s %s %.2f (expected %.2f), mistake=%s, repeat=%t, held %dd",
		r.TradeID, r.Strategy, outcome, r.ActualPnL, r.ExpectedPnL, r.Mistake, r.RepeatStrategy, r.HoldDays)
}

// Config holds the review thresholds
type Config struct {
	VolConfidenceDelta float64 `yaml:"vol_confidence_delta"` // 0.3
	LateLossFraction   float64 `yaml:"late_loss_fraction"`   // loss beyond 75% of maxLoss
	EarlyAdjustments   int     `yaml:"early_adjustments"`    // 3 on a winner
	RepeatLossFraction float64 `yaml:"repeat_loss_fraction"` // controlled loss within 50%
}

// DefaultConfig returns the production review thresholds
func DefaultConfig() Config {
	return Config{
		VolConfidenceDelta: 0.3,
		LateLossFraction:   0.75,
		EarlyAdjustments:   3,
		RepeatLossFraction: 0.5,
	}
}

// Structures that only make sense when implied volatility is cheap
var lowIVStructures = map[string]bool{
	models.StrategyIronButterfly: true,
	models.StrategyCalendar:      true,
}

// Structures that profit only when the underlying holds or rises
var bullishStructures = map[string]bool{
	models.StrategyBullPutSpread: true,
}

// Analyzer reviews closed trades. It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	config Config
}

// withDefaults replaces every unset threshold with its DefaultConfig value
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VolConfidenceDelta <= 0 {
		c.VolConfidenceDelta = d.VolConfidenceDelta
	}
	if c.LateLossFraction <= 0 {
		c.LateLossFraction = d.LateLossFraction
	}
	if c.EarlyAdjustments <= 0 {
		c.EarlyAdjustments = d.EarlyAdjustments
	}
	if c.RepeatLossFraction <= 0 {
		c.RepeatLossFraction = d.RepeatLossFraction
	}
	return c
}

// NewAnalyzer creates an analyzer; unset thresholds fall back to DefaultConfig
func NewAnalyzer(config Config) Analyzer {
	return Analyzer{config: config.withDefaults()}
}

// Analyze reviews a closed trade lifecycle
func (a Analyzer) Analyze(lifecycle *models.TradeLifecycle) (*Report, error) {
	if err := policy.ValidateLifecycle(lifecycle); err != nil {
		return nil, err
	}

	trade := lifecycle.Trade
	pnl := *lifecycle.ActualPnL

	report := &Report{
		TradeID:   trade.ID,
		Symbol:    trade.Symbol,
		Strategy:  trade.Strategy,
		ActualPnL: pnl,
		HoldDays:  holdDays(trade, lifecycle),
	}

	report.RegimeAccuracy = a.regimeAccuracy(lifecycle.EntryRegime, lifecycle.ExitRegime)
	report.Suitability = a.suitability(trade.Strategy, lifecycle.EntryRegime, pnl, report.RegimeAccuracy)
	report.AdjustmentTiming = a.adjustmentTiming(len(lifecycle.Adjustments), pnl, trade.MaxLoss)
	report.Mistake = classify(report)
	report.Lesson = lesson(report)

	outcome := 0.0
	if pnl > 0 {
		outcome = 1.0
	}
	report.ConfidenceError = (outcome - trade.POP/100) * lifecycle.EntryRegime.Confidence

	p := trade.POP / 100
	report.ExpectedPnL = p*trade.MaxProfit - (1-p)*trade.MaxLoss
	report.PnLVsExpected = pnl - report.ExpectedPnL

	report.RepeatStrategy = a.repeat(report, trade.MaxLoss)
	report.CorrectDecisions, report.IncorrectDecisions = decisions(report)

	log.Debug().
		Str("trade_id", trade.ID).
		Str("mistake", string(report.Mistake)).
		Bool("repeat", report.RepeatStrategy).
		Float64("pnl", pnl).
		Msg("Trade autopsy complete")

	return report, nil
}

// regimeAccuracy compares the entry read with the regime at exit
func (a Analyzer) regimeAccuracy(entry, exit *models.RegimeAnalysis) Verdict {
	if entry.Volatility == exit.Volatility && entry.Structure == exit.Structure && entry.Direction == exit.Direction {
		return Verdict{Correct: true, Detail: "regime held from entry to exit"}
	}

	delta := math.Abs(entry.Confidence - exit.Confidence)
	if entry.Volatility != exit.Volatility && delta > a.config.VolConfidenceDelta {
		return Verdict{
			Correct: false,
			Detail: fmt.Sprintf("volatility misread: %s at entry became %s (confidence moved %.2f)",
				entry.Volatility, exit.Volatility, delta),
		}
	}

	if entry.Structure != exit.Structure && entry.Volatility == exit.Volatility {
		return Verdict{
			Correct: false,
			Detail:  fmt.Sprintf("structure misread: %s at entry became %s", entry.Structure, exit.Structure),
		}
	}

	return Verdict{Correct: true, Detail: "minor regime drift within tolerance"}
}

// suitability applies the first matching rule
func (a Analyzer) suitability(strategy string, entry *models.RegimeAnalysis, pnl float64, accuracy Verdict) Verdict {
	if lowIVStructures[strategy] &&
		(entry.Volatility == models.VolatilityHigh || entry.Volatility == models.VolatilityExtreme) {
		return Verdict{
			Correct: false,
			Detail:  fmt.Sprintf("%s targets low IV but was entered in %s volatility", strategy, entry.Volatility),
		}
	}

	if bullishStructures[strategy] && entry.Direction == models.DirectionBearish && pnl < 0 {
		return Verdict{
			Correct: false,
			Detail:  fmt.Sprintf("%s is bullish-only but was entered against a bearish direction", strategy),
		}
	}

	if pnl > 0 && !accuracy.Correct {
		return Verdict{
			Correct: false,
			Detail:  "profit came despite an inaccurate regime read: lucky, not skillful",
		}
	}

	return Verdict{Correct: true, Detail: fmt.Sprintf("%s fit the entry regime", strategy)}
}

// adjustmentTiming judges the adjustment count against the outcome
func (a Analyzer) adjustmentTiming(count int, pnl, maxLoss float64) AdjustmentTiming {
	switch {
	case count == 0 && pnl < 0:
		return AdjustmentTiming{Timing: TimingLate, Detail: "losing trade was never adjusted"}
	case count == 0:
		return AdjustmentTiming{Timing: TimingNoneNeeded, Detail: "no adjustment was needed"}
	case count >= a.config.EarlyAdjustments && pnl > 0:
		return AdjustmentTiming{Timing: TimingEarly, Detail: fmt.Sprintf("%d adjustments on a winning trade", count)}
	case pnl < -a.config.LateLossFraction*maxLoss:
		return AdjustmentTiming{
			Timing: TimingLate,
			Detail: fmt.Sprintf("loss of %.2f exceeded %.0f%% of max loss despite %d adjustments", -pnl, a.config.LateLossFraction*100, count),
		}
	default:
		return AdjustmentTiming{Timing: TimingAppropriate, Detail: fmt.Sprintf("%d adjustments kept the trade within plan", count)}
	}
}

// classify picks the primary mistake: regime > suitability > late > early
func classify(r *Report) Mistake {
	switch {
	case !r.RegimeAccuracy.Correct:
		return MistakeRegimeMisread
	case !r.Suitability.Correct:
		return MistakeStrategyUnsuitable
	case r.AdjustmentTiming.Timing == TimingLate:
		return MistakeLateAdjustment
	case r.AdjustmentTiming.Timing == TimingEarly:
		return MistakeEarlyAdjustment
	default:
		return MistakeNone
	}
}

func lesson(r *Report) string {
	switch r.Mistake {
	case MistakeRegimeMisread:
		return fmt.Sprintf("Re-check the regime inputs before entry: %s.", r.RegimeAccuracy.Detail)
	case MistakeStrategyUnsuitable:
		return fmt.Sprintf("Match the structure to the regime: %s.", r.Suitability.Detail)
	case MistakeLateAdjustment:
		return fmt.Sprintf("Act on breach signals sooner: %s.", r.AdjustmentTiming.Detail)
	case MistakeEarlyAdjustment:
		return fmt.Sprintf("Let winners work: %s.", r.AdjustmentTiming.Detail)
	default:
		return "Process followed; repeat the setup when the same regime appears."
	}
}

// repeat decides whether the same strategy deserves another run in the same regime
func (a Analyzer) repeat(r *Report, maxLoss float64) bool {
	switch {
	case !r.Suitability.Correct:
		return false
	case r.Mistake == MistakeRegimeMisread:
		return false
	case r.ActualPnL > 0:
		return true
	case math.Abs(r.ActualPnL) <= a.config.RepeatLossFraction*maxLoss && r.Mistake == MistakeNone:
		return true
	default:
		return false
	}
}

func decisions(r *Report) (correct, incorrect []string) {
	correct, incorrect = []string{}, []string{}

	add := func(ok bool, label, detail string) {
		line := fmt.Sprintf("%s: %s", label, detail)
		if ok {
			correct = append(correct, line)
		} else {
			incorrect = append(incorrect, line)
		}
	}

	add(r.RegimeAccuracy.Correct, "Regime read", r.RegimeAccuracy.Detail)
	add(r.Suitability.Correct, "Strategy choice", r.Suitability.Detail)
	add(r.AdjustmentTiming.Timing == TimingNoneNeeded || r.AdjustmentTiming.Timing == TimingAppropriate,
		"Adjustments", r.AdjustmentTiming.Detail)

	return correct, incorrect
}

// holdDays counts whole days between entry and exit
func holdDays(trade *models.Trade, lifecycle *models.TradeLifecycle) int {
	if trade.EntryDate.IsZero() || lifecycle.ExitDate.IsZero() {
		return 0
	}
	days := int(lifecycle.ExitDate.Sub(trade.EntryDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

package overlay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/optionsrun/internal/autopsy"
	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/monitor"
	"github.com/sawpanic/optionsrun/internal/strategy"
)

// Recommended actions in the strategy decision
const (
	RecommendTrade   = "trade"
	RecommendNoTrade = "no_trade"
)

// Output is the combined strategic reasoning report
type Output struct {
	Meta             Meta             `json:"meta"`
	MarketView       MarketView       `json:"market_view"`
	StrategyDecision StrategyDecision `json:"strategy_decision"`
	TradeManagement  TradeManagement  `json:"trade_management"`
	LearningOutput   LearningOutput   `json:"learning_output"`
	MetaNotes        []string         `json:"meta_notes"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	InputHash string    `json:"input_hash"`
	Version   string    `json:"version"`
}

// MarketView is the softened, human-facing projection of the regime read
type MarketView struct {
	Symbol     string           `json:"symbol"`
	Volatility string           `json:"volatility"`
	Structure  string           `json:"structure"`
	Direction  string           `json:"direction"`
	Confidence float64          `json:"confidence"`
	Support    []float64        `json:"support"`
	Resistance []float64        `json:"resistance"`
	ValueArea  models.ValueArea `json:"value_area"`
	DoNotTrade []string         `json:"do_not_trade"`
	Warnings   []string         `json:"warnings"`
	Notes      string           `json:"notes"`
	RiskNotes  []string         `json:"risk_notes"`
}

type CandidateView struct {
	Rank         int              `json:"rank"`
	Name         string           `json:"name"`
	Family       string           `json:"family"`
	POP          float64          `json:"pop"`
	MaxProfit    float64          `json:"max_profit"`
	MaxLoss      float64          `json:"max_loss"`
	Breakeven    []float64        `json:"breakeven"`
	RiskLevel    models.RiskLevel `json:"risk_level"`
	Legs         []models.Leg     `json:"legs"`
	Rationale    string           `json:"rationale"`
	Invalidation string           `json:"invalidation"`
}

type StrategyDecision struct {
	RecommendedAction string             `json:"recommended_action"`
	Primary           string             `json:"primary"`
	Candidates        []CandidateView    `json:"candidates"`
	Removed           []strategy.Removal `json:"removed"`
	FallbackReason    string             `json:"fallback_reason,omitempty"`
}

// TradeManagement is not applicable when no active trade was supplied
type TradeManagement struct {
	Applicable bool                 `json:"applicable"`
	Health     *monitor.HealthCheck `json:"health,omitempty"`
	Summary    string               `json:"summary"`
}

// LearningOutput is an empty record when no completed lifecycle was supplied
type LearningOutput struct {
	Available bool            `json:"available"`
	Autopsy   *autopsy.Report `json:"autopsy,omitempty"`
	Lessons   []string        `json:"lessons"`
}

// Summary renders the decision, and any trade review, on one line
func (o *Output) Summary() string {
	line := fmt.Sprintf("%s %s: %s", o.MarketView.Symbol, o.StrategyDecision.RecommendedAction, o.StrategyDecision.Primary)
	if o.StrategyDecision.FallbackReason != "" {
		line += " (" + o.StrategyDecision.FallbackReason + ")"
	}
	if o.TradeManagement.Health != nil {
		line += " | open trade " + o.TradeManagement.Health.Summary()
	}
	if o.LearningOutput.Autopsy != nil {
		line += " | last trade " + o.LearningOutput.Autopsy.Summary()
	}
	return line
}

// InputHash fingerprints the request inputs so identical requests map to one report
func InputHash(inputs ...interface{}) (string, error) {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "v1_" + hex.EncodeToString(sum[:16]), nil
}

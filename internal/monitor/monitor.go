package monitor

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/policy"
)

// ThesisBreak identifies which entry condition stopped holding, in check order
type ThesisBreak int

const (
	NoBreak             ThesisBreak = iota
	VolatilityExpansion             // entered in low vol, now high or extreme
	RangeBreakout                   // entered range-bound, now trending
	DirectionReversal               // bullish and bearish flipped
	BreakevenCrossed                // price crossed a recorded breakeven since entry
)

func (tb ThesisBreak) String() string {
	switch tb {
	case NoBreak:
		return "none"
	case VolatilityExpansion:
		return "volatility_expansion"
	case RangeBreakout:
		return "range_breakout"
	case DirectionReversal:
		return "direction_reversal"
	case BreakevenCrossed:
		return "breakeven_crossed"
	default:
		return "unknown"
	}
}

// MarshalText renders the break by name in JSON output
func (tb ThesisBreak) MarshalText() ([]byte, error) {
	return []byte(tb.String()), nil
}

// UnmarshalText accepts the names MarshalText produces, so cached reports decode
func (tb *ThesisBreak) UnmarshalText(text []byte) error {
	for b := NoBreak; b <= BreakevenCrossed; b++ {
		if b.String() == string(text) {
			*tb = b
			return nil
		}
	}
	return fmt.Errorf("unknown thesis break %q", text)
}

// Health is the overall position status
type Health string

const (
	HealthHealthy      Health = "healthy"
	HealthCaution      Health = "caution"
	HealthCritical     Health = "critical"
	HealthThesisBroken Health = "thesis-broken"
)

// Action is the management recommendation
type Action string

const (
	ActionHold   Action = "hold"
	ActionAdjust Action = "adjust"
	ActionClose  Action = "close"
)

// Urgency of the recommended action
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// Greeks are not modeled; every field reports zero
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// HealthCheck contains the position evaluation outcome
type HealthCheck struct {
	TradeID        string      `json:"tradeId"`
	Symbol         string      `json:"symbol"`
	Strategy       string      `json:"strategy"`
	Health         Health      `json:"health"`
	ThesisBroken   bool        `json:"thesisBroken"`
	ThesisBreak    ThesisBreak `json:"thesisBreak"`
	ThesisReason   string      `json:"thesisReason,omitempty"`
	BreachDetected bool        `json:"breachDetected"`
	BreachSeverity float64     `json:"breachSeverity"` // 0.0-1.0
	BreachReason   string      `json:"breachReason,omitempty"`
	Action         Action      `json:"action"`
	Urgency        Urgency     `json:"urgency"`
	Reason         string      `json:"reason"`
	CurrentPrice   float64     `json:"currentPrice"`
	CurrentPnL     float64     `json:"currentPnL"`
	PnLPercent     float64     `json:"pnlPercent"` // currentPnL as % of maxLoss
	DaysRemaining  int         `json:"daysRemaining"`
	Greeks         Greeks      `json:"greeks"`
	IVChange       float64     `json:"ivChange"`
}

// Config contains the breach and exit thresholds
type Config struct {
	CriticalLossPct  float64 `yaml:"critical_loss_pct"`  // -80% of maxLoss -> severity 1.0
	SevereLossPct    float64 `yaml:"severe_loss_pct"`    // -50% -> 0.75
	ModerateLossPct  float64 `yaml:"moderate_loss_pct"`  // -25% -> 0.5
	ExpiryRiskDays   int     `yaml:"expiry_risk_days"`   // losing with fewer days -> 0.6
	ProfitTakePct    float64 `yaml:"profit_take_pct"`    // 50
	ExpiryProfitDays int     `yaml:"expiry_profit_days"` // take any profit with fewer days: 5
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		CriticalLossPct:  -80,
		SevereLossPct:    -50,
		ModerateLossPct:  -25,
		ExpiryRiskDays:   3,
		ProfitTakePct:    50,
		ExpiryProfitDays: 5,
	}
}

// Monitor evaluates open positions against their entry thesis and loss limits.
// It holds no mutable state and is safe for concurrent use.
type Monitor struct {
	config Config
}

// withDefaults replaces every unset threshold with its DefaultConfig value.
// Loss thresholds are negative percentages; zero or positive means unset.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CriticalLossPct >= 0 {
		c.CriticalLossPct = d.CriticalLossPct
	}
	if c.SevereLossPct >= 0 {
		c.SevereLossPct = d.SevereLossPct
	}
	if c.ModerateLossPct >= 0 {
		c.ModerateLossPct = d.ModerateLossPct
	}
	if c.ExpiryRiskDays <= 0 {
		c.ExpiryRiskDays = d.ExpiryRiskDays
	}
	if c.ProfitTakePct <= 0 {
		c.ProfitTakePct = d.ProfitTakePct
	}
	if c.ExpiryProfitDays <= 0 {
		c.ExpiryProfitDays = d.ExpiryProfitDays
	}
	return c
}

// NewMonitor creates a monitor; unset thresholds fall back to DefaultConfig
func NewMonitor(config Config) Monitor {
	return Monitor{config: config.withDefaults()}
}

// Check evaluates the trade under the current regime. The current price comes
// from the snapshot when one is supplied, otherwise from the trade record.
func (m Monitor) Check(trade *models.Trade, snapshot *models.MarketSnapshot, current *models.RegimeAnalysis) (*HealthCheck, error) {
	if err := policy.ValidateTrade(trade); err != nil {
		return nil, err
	}
	if err := policy.ValidateRegime("monitor", current); err != nil {
		return nil, err
	}

	price := trade.CurrentPrice
	if snapshot != nil && snapshot.Price > 0 && !math.IsNaN(snapshot.Price) {
		price = snapshot.Price
	}

	result := &HealthCheck{
		TradeID:       trade.ID,
		Symbol:        trade.Symbol,
		Strategy:      trade.Strategy,
		CurrentPrice:  price,
		CurrentPnL:    trade.CurrentPnL,
		PnLPercent:    trade.CurrentPnL / trade.MaxLoss * 100,
		DaysRemaining: trade.DaysRemaining,
	}

	result.ThesisBreak, result.ThesisReason = m.checkThesis(trade, price, current)
	result.ThesisBroken = result.ThesisBreak != NoBreak
	result.BreachSeverity, result.BreachReason = m.breachSeverity(trade, result.PnLPercent)
	result.BreachDetected = result.ThesisBroken || result.BreachSeverity > 0

	m.decide(result)

	if result.ThesisBroken {
		log.Debug().
			Str("trade_id", trade.ID).
			Str("break", result.ThesisBreak.String()).
			Str("reason", result.ThesisReason).
			Msg("Trade thesis broken")
	}

	return result, nil
}

// checkThesis evaluates invalidation checks in order; the first true wins
func (m Monitor) checkThesis(trade *models.Trade, price float64, current *models.RegimeAnalysis) (ThesisBreak, string) {
	entry := trade.EntryRegime

	// 1. Volatility expansion
	if entry.Volatility == models.VolatilityLow &&
		(current.Volatility == models.VolatilityHigh || current.Volatility == models.VolatilityExtreme) {
		return VolatilityExpansion, fmt.Sprintf("Volatility expanded from %s to %s since entry", entry.Volatility, current.Volatility)
	}

	// 2. Range breakout
	if entry.Structure == models.StructureRangeBound && current.Structure.IsTrending() {
		return RangeBreakout, fmt.Sprintf("Range-bound structure broke into %s", current.Structure)
	}

	// 3. Direction reversal, neutral excluded
	if entry.Direction.Opposes(current.Direction) {
		return DirectionReversal, fmt.Sprintf("Direction reversed from %s to %s", entry.Direction, current.Direction)
	}

	// 4. Breakeven crossed relative to entry price
	for _, b := range trade.Breakeven {
		if (trade.EntryPrice > b && price <= b) || (trade.EntryPrice < b && price >= b) {
			return BreakevenCrossed, fmt.Sprintf("Price %.2f crossed breakeven %.2f (entry %.2f)", price, b, trade.EntryPrice)
		}
	}

	return NoBreak, ""
}

// breachSeverity maps loss depth, most severe first, then expiration risk
func (m Monitor) breachSeverity(trade *models.Trade, pnlPercent float64) (float64, string) {
	switch {
	case pnlPercent < m.config.CriticalLossPct:
		return 1.0, fmt.Sprintf("Loss at %.1f%% of max loss", pnlPercent)
	case pnlPercent < m.config.SevereLossPct:
		return 0.75, fmt.Sprintf("Loss at %.1f%% of max loss", pnlPercent)
	case pnlPercent < m.config.ModerateLossPct:
		return 0.5, fmt.Sprintf("Loss at %.1f%% of max loss", pnlPercent)
	case trade.DaysRemaining < m.config.ExpiryRiskDays && trade.CurrentPnL < 0:
		return 0.6, fmt.Sprintf("Losing position with %d days to expiry", trade.DaysRemaining)
	default:
		return 0, ""
	}
}

// decide applies action precedence and sets health
func (m Monitor) decide(r *HealthCheck) {
	switch {
	case r.ThesisBroken:
		r.Action, r.Urgency, r.Reason = ActionClose, UrgencyImmediate, r.ThesisReason
	case r.BreachSeverity >= 0.75:
		r.Action, r.Urgency, r.Reason = ActionClose, UrgencyImmediate, r.BreachReason
	case r.BreachSeverity >= 0.5:
		r.Action, r.Urgency, r.Reason = ActionAdjust, UrgencyHigh, r.BreachReason
	case r.BreachSeverity >= 0.25:
		r.Action, r.Urgency, r.Reason = ActionAdjust, UrgencyMedium, r.BreachReason
	case r.PnLPercent > m.config.ProfitTakePct:
		r.Action, r.Urgency = ActionClose, UrgencyLow
		r.Reason = fmt.Sprintf("Profit at %.1f%% of max loss: take it", r.PnLPercent)
	case r.DaysRemaining < m.config.ExpiryProfitDays && r.CurrentPnL > 0:
		r.Action, r.Urgency = ActionClose, UrgencyLow
		r.Reason = fmt.Sprintf("Profitable with %d days left: close before expiration", r.DaysRemaining)
	default:
		r.Action, r.Urgency = ActionHold, UrgencyLow
		r.Reason = "Thesis intact and losses within plan"
	}

	switch {
	case r.ThesisBroken:
		r.Health = HealthThesisBroken
	case r.BreachSeverity >= 0.75:
		r.Health = HealthCritical
	case r.BreachSeverity > 0:
		r.Health = HealthCaution
	default:
		r.Health = HealthHealthy
	}
}

// Summary returns a concise health check summary
func (r *HealthCheck) Summary() string {
	return fmt.Sprintf("%s %s [%s]: %s/%s, %.1f%% of max loss, %dd left: %s",
		r.TradeID, r.Strategy, r.Health, r.Action, r.Urgency, r.PnLPercent, r.DaysRemaining, r.Reason)
}

package models

// Action is the side of an option leg
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OptionType is the option right of a leg
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// Expiry distinguishes the two expirations of a time spread. Empty for single-expiry structures.
type Expiry string

const (
	ExpiryFront Expiry = "front"
	ExpiryBack  Expiry = "back"
)

// Leg is one option position within a strategy
type Leg struct {
	Action   Action     `json:"action"`
	Type     OptionType `json:"type"`
	Strike   float64    `json:"strike"`
	Quantity int        `json:"quantity"`
	Premium  float64    `json:"premium"`
	Expiry   Expiry     `json:"expiry,omitempty"`
}

// RiskLevel is a coarse risk label for a strategy
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Strategy names produced by the generator
const (
	StrategyIronButterfly = "Iron Butterfly"
	StrategyBullPutSpread = "Bull Put Spread"
	StrategyCalendar      = "Calendar Spread"
	StrategyIronCondor    = "Iron Condor"
	StrategyNoTrade       = "NO_TRADE"
)

// Strategy families
const (
	FamilyNeutral      = "neutral"
	FamilyDirectional  = "directional"
	FamilyTime         = "time"
	FamilyPreservation = "capital-preservation"
)

// Strategy is an immutable candidate structure once generated
type Strategy struct {
	Name        string    `json:"name"`
	Family      string    `json:"family"`
	Description string    `json:"description"`
	MaxProfit   float64   `json:"maxProfit"`
	MaxLoss     float64   `json:"maxLoss"`
	Breakeven   []float64 `json:"breakeven"`
	POP         float64   `json:"pop"` // 0-100
	RiskLevel   RiskLevel `json:"riskLevel"`
	Legs        []Leg     `json:"legs"`
	InvalidWhen []string  `json:"invalidWhen"`
	IdealWhen   []string  `json:"idealWhen"`
	Rank        int       `json:"rank"`
}

// IsNoTrade reports whether the strategy is the capital-preservation fallback
func (s Strategy) IsNoTrade() bool {
	return s.Name == StrategyNoTrade
}

// RiskTolerance of the account owner
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

// UserProfile carries the caller's risk constraints
type UserProfile struct {
	RiskTolerance     RiskTolerance `json:"riskTolerance" yaml:"riskTolerance"`
	MaxLossPerTrade   float64       `json:"maxLossPerTrade" yaml:"maxLossPerTrade"`
	MaxPortfolioRisk  float64       `json:"maxPortfolioRisk" yaml:"maxPortfolioRisk"`
	MinPOP            *float64      `json:"minPOP,omitempty" yaml:"minPOP,omitempty"`
	AllowedStrategies []string      `json:"allowedStrategies,omitempty" yaml:"allowedStrategies,omitempty"`
	BannedStrategies  []string      `json:"bannedStrategies,omitempty" yaml:"bannedStrategies,omitempty"`
	AccountSize       float64       `json:"accountSize" yaml:"accountSize"`
}

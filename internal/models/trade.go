package models

import "time"

// Trade is an open position as recorded by the caller. The engine reads it and never mutates it.
type Trade struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Strategy      string          `json:"strategy"`
	EntryDate     time.Time       `json:"entryDate"`
	EntryPrice    float64         `json:"entryPrice"`
	Legs          []Leg           `json:"legs"`
	EntryRegime   *RegimeAnalysis `json:"entryRegime"`
	MaxLoss       float64         `json:"maxLoss"`
	MaxProfit     float64         `json:"maxProfit"`
	Breakeven     []float64       `json:"breakeven"`
	POP           float64         `json:"pop"`
	CurrentPrice  float64         `json:"currentPrice"`
	CurrentPnL    float64         `json:"currentPnL"`
	DaysRemaining int             `json:"daysRemaining"`
}

// Adjustment is one management action taken while the trade was open
type Adjustment struct {
	Date   time.Time `json:"date"`
	Action string    `json:"action"`
	Reason string    `json:"reason"`
}

// TradeLifecycle is the full record of a closed trade, assembled once after closure
type TradeLifecycle struct {
	Trade         *Trade          `json:"trade"`
	EntrySnapshot *MarketSnapshot `json:"entrySnapshot,omitempty"`
	ExitSnapshot  *MarketSnapshot `json:"exitSnapshot,omitempty"`
	EntryRegime   *RegimeAnalysis `json:"entryRegime"`
	ExitRegime    *RegimeAnalysis `json:"exitRegime"`
	Adjustments   []Adjustment    `json:"adjustments"`
	ExitReason    string          `json:"exitReason"`
	ActualPnL     *float64        `json:"actualPnL"`
	ExitDate      time.Time       `json:"exitDate"`
}

package overlay

import (
	"fmt"
	"strings"

	"github.com/sawpanic/optionsrun/internal/models"
)

func softenStructure(s models.Structure) string {
	switch s {
	case models.StructureTrendingUp:
		return "upward drift"
	case models.StructureTrendingDown:
		return "downward drift"
	case models.StructureRangeBound:
		return "rotating inside a range"
	case models.StructureChoppy:
		return "two-way and unclear"
	default:
		return string(s)
	}
}

func softenDirection(d models.Direction) string {
	switch d {
	case models.DirectionBullish:
		return "leaning bullish"
	case models.DirectionBearish:
		return "leaning bearish"
	default:
		return "no clear lean"
	}
}

func describeVolatility(v models.Volatility) string {
	switch v {
	case models.VolatilityLow:
		return "cheap premium (low IV)"
	case models.VolatilityNormal:
		return "fairly priced premium"
	case models.VolatilityHigh:
		return "rich premium (high IV)"
	case models.VolatilityExtreme:
		return "extreme IV, stand aside"
	default:
		return string(v)
	}
}

// rationale explains why a ranked structure fits the regime
func rationale(s models.Strategy, r models.RegimeAnalysis) string {
	switch s.Name {
	case models.StrategyIronButterfly:
		return fmt.Sprintf("Low IV with price %s favours collecting premium at the pin; %.0f%% pop for a capped %.2f loss.",
			softenStructure(r.Structure), s.POP, s.MaxLoss)
	case models.StrategyBullPutSpread:
		return fmt.Sprintf("Direction is %s; selling puts under support earns %.2f with %.0f%% pop.",
			softenDirection(r.Direction), s.MaxProfit, s.POP)
	case models.StrategyCalendar:
		return fmt.Sprintf("Enough time to expiry for front-month decay; risk is limited to the %.2f debit.", s.MaxLoss)
	case models.StrategyIronCondor:
		return fmt.Sprintf("With %s and no chop, a wide neutral structure has room; %.0f%% pop.",
			describeVolatility(r.Volatility), s.POP)
	case models.StrategyNoTrade:
		return fmt.Sprintf("Capital preservation: %s.", s.Description)
	default:
		return s.Description
	}
}

// invalidation states what would end the trade idea
func invalidation(s models.Strategy) string {
	if s.IsNoTrade() {
		return "Re-run the analysis when the blocking condition clears."
	}
	if len(s.InvalidWhen) == 0 {
		return "No explicit invalidation recorded."
	}
	return "Exit if " + strings.Join(s.InvalidWhen, ", or ") + "."
}

package strategy

import (
	"fmt"
	"math"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/regime"
)

// EligibilityCheck records the entry gate a candidate structure passed
type EligibilityCheck struct {
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
}

// candidate pairs an entry gate with the construction it guards
type candidate struct {
	name  string
	gate  func(g Generator, s *models.MarketSnapshot, r models.RegimeAnalysis) EligibilityCheck
	build func(g Generator, s *models.MarketSnapshot, out *regime.Output) models.Strategy
}

// candidates are evaluated in this order; ineligible ones are omitted, not flagged
var candidates = []candidate{
	{name: models.StrategyIronButterfly, gate: ironButterflyGate, build: buildIronButterfly},
	{name: models.StrategyBullPutSpread, gate: bullPutGate, build: buildBullPutSpread},
	{name: models.StrategyCalendar, gate: calendarGate, build: buildCalendarSpread},
	{name: models.StrategyIronCondor, gate: ironCondorGate, build: buildIronCondor},
}

func ironButterflyGate(_ Generator, _ *models.MarketSnapshot, r models.RegimeAnalysis) EligibilityCheck {
	return EligibilityCheck{
		Name:        models.StrategyIronButterfly,
		Passed:      r.Volatility == models.VolatilityLow && r.Structure == models.StructureRangeBound,
		Description: fmt.Sprintf("needs low volatility and range-bound structure (have %s, %s)", r.Volatility, r.Structure),
	}
}

func bullPutGate(_ Generator, _ *models.MarketSnapshot, r models.RegimeAnalysis) EligibilityCheck {
	return EligibilityCheck{
		Name:        models.StrategyBullPutSpread,
		Passed:      r.Direction != models.DirectionBearish,
		Description: fmt.Sprintf("needs non-bearish direction (have %s)", r.Direction),
	}
}

func calendarGate(g Generator, s *models.MarketSnapshot, _ models.RegimeAnalysis) EligibilityCheck {
	return EligibilityCheck{
		Name:        models.StrategyCalendar,
		Passed:      s.DTE >= g.config.MinCalendarDTE,
		Description: fmt.Sprintf("needs dte ≥ %d (have %d)", g.config.MinCalendarDTE, s.DTE),
	}
}

func ironCondorGate(_ Generator, _ *models.MarketSnapshot, r models.RegimeAnalysis) EligibilityCheck {
	return EligibilityCheck{
		Name:        models.StrategyIronCondor,
		Passed:      r.Volatility != models.VolatilityExtreme && r.Structure != models.StructureChoppy,
		Description: fmt.Sprintf("needs non-extreme volatility and non-choppy structure (have %s, %s)", r.Volatility, r.Structure),
	}
}

func leg(action models.Action, typ models.OptionType, strike, premium float64) models.Leg {
	return models.Leg{Action: action, Type: typ, Strike: strike, Quantity: 1, Premium: premium}
}

// buildIronButterfly sells the ATM straddle and buys wings one WingWidth away
func buildIronButterfly(g Generator, s *models.MarketSnapshot, _ *regime.Output) models.Strategy {
	c := g.config
	center := snapStrike(s.Price, c.StrikeStep)
	short := estimatePremium(s.Price, s.IV, 0.4)
	long := estimatePremium(s.Price, s.IV, 0.25)

	credit := netPremium([]float64{short, short}, []float64{long, long})

	return models.Strategy{
		Name:        models.StrategyIronButterfly,
		Family:      models.FamilyNeutral,
		Description: fmt.Sprintf("Short straddle at %.0f with wings at %.0f/%.0f", center, center-c.WingWidth, center+c.WingWidth),
		MaxProfit:   credit,
		MaxLoss:     creditMaxLoss(c.WingWidth, credit),
		Breakeven:   []float64{round2(center - credit), round2(center + credit)},
		POP:         35,
		RiskLevel:   models.RiskMedium,
		Legs: []models.Leg{
			leg(models.ActionSell, models.OptionCall, center, short),
			leg(models.ActionSell, models.OptionPut, center, short),
			leg(models.ActionBuy, models.OptionCall, center+c.WingWidth, long),
			leg(models.ActionBuy, models.OptionPut, center-c.WingWidth, long),
		},
		InvalidWhen: []string{
			"volatility expands out of the low bucket",
			"price trends away from the center strike",
		},
		IdealWhen: []string{
			"low volatility with price pinned in a tight range",
		},
	}
}

// buildBullPutSpread sells a put at the nearest support, or 2% below price without one
func buildBullPutSpread(g Generator, s *models.MarketSnapshot, out *regime.Output) models.Strategy {
	c := g.config
	anchor := s.Price * 0.98
	if len(out.Levels.Support) > 0 {
		anchor = out.Levels.Support[0]
	}
	shortStrike := snapStrike(anchor, c.StrikeStep)
	longStrike := shortStrike - c.SpreadWidth

	short := estimatePremium(s.Price, s.IV, 0.35)
	long := estimatePremium(s.Price, s.IV, 0.28)
	credit := netPremium([]float64{short}, []float64{long})

	pop := 65.0
	if out.Regime.Direction == models.DirectionBullish {
		pop = 70
	}

	return models.Strategy{
		Name:        models.StrategyBullPutSpread,
		Family:      models.FamilyDirectional,
		Description: fmt.Sprintf("Sell %.0f put, buy %.0f put below support", shortStrike, longStrike),
		MaxProfit:   credit,
		MaxLoss:     creditMaxLoss(c.SpreadWidth, credit),
		Breakeven:   []float64{round2(shortStrike - credit)},
		POP:         pop,
		RiskLevel:   models.RiskMedium,
		Legs: []models.Leg{
			leg(models.ActionSell, models.OptionPut, shortStrike, short),
			leg(models.ActionBuy, models.OptionPut, longStrike, long),
		},
		InvalidWhen: []string{
			"direction turns bearish",
			fmt.Sprintf("price closes below the %.0f short strike", shortStrike),
		},
		IdealWhen: []string{
			"bullish or neutral direction with support holding",
		},
	}
}

// buildCalendarSpread sells the front expiry and buys the back expiry at one strike
func buildCalendarSpread(g Generator, s *models.MarketSnapshot, _ *regime.Output) models.Strategy {
	strike := snapStrike(s.Price, g.config.StrikeStep)
	front := estimatePremium(s.Price, s.IV, 0.4)
	back := estimatePremium(s.Price, s.IV, 0.6)

	debit := netPremium([]float64{back}, []float64{front})
	band := round2(debit * 1.5)

	frontLeg := leg(models.ActionSell, models.OptionCall, strike, front)
	frontLeg.Expiry = models.ExpiryFront
	backLeg := leg(models.ActionBuy, models.OptionCall, strike, back)
	backLeg.Expiry = models.ExpiryBack

	return models.Strategy{
		Name:        models.StrategyCalendar,
		Family:      models.FamilyTime,
		Description: fmt.Sprintf("Sell front, buy back expiry at %.0f", strike),
		MaxProfit:   round2(debit * 1.5),
		MaxLoss:     debit,
		Breakeven:   []float64{round2(strike - band), round2(strike + band)},
		POP:         45,
		RiskLevel:   models.RiskLow,
		Legs:        []models.Leg{frontLeg, backLeg},
		InvalidWhen: []string{
			"price moves far from the strike before front expiry",
			"back-month implied volatility collapses",
		},
		IdealWhen: []string{
			"enough time to expiry for front-month decay to outpace the back month",
		},
	}
}

// buildIronCondor sells wings one WingWidth out and buys protection OuterWingWidth out
func buildIronCondor(g Generator, s *models.MarketSnapshot, out *regime.Output) models.Strategy {
	c := g.config
	center := snapStrike(s.Price, c.StrikeStep)
	shortCall, shortPut := center+c.WingWidth, center-c.WingWidth
	longCall, longPut := center+c.OuterWingWidth, center-c.OuterWingWidth

	short := estimatePremium(s.Price, s.IV, 0.32)
	long := estimatePremium(s.Price, s.IV, 0.2)
	credit := netPremium([]float64{short, short}, []float64{long, long})

	pop := 68.0
	if out.Regime.Volatility == models.VolatilityHigh {
		pop = 72
	}

	return models.Strategy{
		Name:        models.StrategyIronCondor,
		Family:      models.FamilyNeutral,
		Description: fmt.Sprintf("Short %.0f/%.0f strangle with %.0f/%.0f protection", shortPut, shortCall, longPut, longCall),
		MaxProfit:   credit,
		MaxLoss:     creditMaxLoss(c.OuterWingWidth-c.WingWidth, credit),
		Breakeven:   []float64{round2(shortPut - credit), round2(shortCall + credit)},
		POP:         pop,
		RiskLevel:   models.RiskMedium,
		Legs: []models.Leg{
			leg(models.ActionSell, models.OptionPut, shortPut, short),
			leg(models.ActionBuy, models.OptionPut, longPut, long),
			leg(models.ActionSell, models.OptionCall, shortCall, short),
			leg(models.ActionBuy, models.OptionCall, longCall, long),
		},
		InvalidWhen: []string{
			"structure turns choppy or starts trending hard",
			"volatility moves into the extreme bucket",
		},
		IdealWhen: []string{
			"non-extreme volatility with price oscillating inside the short strikes",
		},
	}
}

// creditMaxLoss is spread width minus credit, floored at zero when the
// heuristic premiums exceed the width
func creditMaxLoss(width, credit float64) float64 {
	return round2(math.Max(width-credit, 0))
}

// NoTrade is the capital-preservation fallback: no legs, no P&L, certain outcome
func NoTrade(reason string) models.Strategy {
	return models.Strategy{
		Name:        models.StrategyNoTrade,
		Family:      models.FamilyPreservation,
		Description: reason,
		MaxProfit:   0,
		MaxLoss:     0,
		Breakeven:   []float64{},
		POP:         100,
		RiskLevel:   models.RiskNone,
		Legs:        []models.Leg{},
		InvalidWhen: []string{},
		IdealWhen:   []string{"no structure offers an edge under current conditions"},
		Rank:        0,
	}
}

package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/policy"
	"github.com/sawpanic/optionsrun/internal/regime"
)

var fixedClock = func() time.Time { return time.Date(2025, 10, 6, 9, 15, 0, 0, time.UTC) }

func testSnapshot() *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Symbol:       "TEST",
		Price:        1000,
		IV:           10,
		IVRank:       15,
		IVPercentile: 15,
		DTE:          21,
		High52w:      1200,
		Low52w:       800,
	}
}

func testRegime(vol models.Volatility, structure models.Structure, direction models.Direction, confidence float64) *regime.Output {
	return &regime.Output{
		Symbol: "TEST",
		Regime: models.RegimeAnalysis{
			Volatility: vol,
			Structure:  structure,
			Direction:  direction,
			Confidence: confidence,
		},
		Levels: models.MarketLevels{Support: []float64{980, 950}, Resistance: []float64{1040}},
	}
}

func looseProfile() *models.UserProfile {
	return &models.UserProfile{
		RiskTolerance:   models.RiskAggressive,
		MaxLossPerTrade: 1_000_000,
		AccountSize:     10_000_000,
	}
}

func newTestGenerator() Generator {
	return NewGenerator(DefaultConfig()).WithClock(fixedClock)
}

func names(strategies []models.Strategy) []string {
	out := make([]string, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s.Name)
	}
	return out
}

func TestGenerate_AllCandidatesRankedByPOP(t *testing.T) {
	rec, err := newTestGenerator().Generate(testSnapshot(),
		testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.85), looseProfile())
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.StrategyIronCondor,
		models.StrategyBullPutSpread,
		models.StrategyCalendar,
		models.StrategyIronButterfly,
	}, names(rec.Strategies))
	for i, s := range rec.Strategies {
		assert.Equal(t, i+1, s.Rank)
	}
	assert.False(t, rec.HasFallback())
	assert.Empty(t, rec.Removed)
	assert.Len(t, rec.Eligibility, 4)
	assert.Equal(t, fixedClock(), rec.Timestamp)
}

func TestGenerate_Construction(t *testing.T) {
	rec, err := newTestGenerator().Generate(testSnapshot(),
		testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.85), looseProfile())
	require.NoError(t, err)

	byName := map[string]models.Strategy{}
	for _, s := range rec.Strategies {
		byName[s.Name] = s
	}

	fly := byName[models.StrategyIronButterfly]
	assert.InDelta(t, 30, fly.MaxProfit, 1e-9)
	assert.InDelta(t, 70, fly.MaxLoss, 1e-9)
	assert.Equal(t, []float64{970, 1030}, fly.Breakeven)
	assert.Len(t, fly.Legs, 4)
	assert.Equal(t, 1100.0, fly.Legs[2].Strike)
	assert.Equal(t, 900.0, fly.Legs[3].Strike)

	bullPut := byName[models.StrategyBullPutSpread]
	assert.Equal(t, 1000.0, bullPut.Legs[0].Strike, "980 support snaps to 1000")
	assert.Equal(t, 950.0, bullPut.Legs[1].Strike)
	assert.InDelta(t, 7, bullPut.MaxProfit, 1e-9)
	assert.InDelta(t, 43, bullPut.MaxLoss, 1e-9)
	assert.Equal(t, []float64{993}, bullPut.Breakeven)
	assert.Equal(t, 65.0, bullPut.POP)

	calendar := byName[models.StrategyCalendar]
	assert.InDelta(t, 20, calendar.MaxLoss, 1e-9)
	assert.InDelta(t, 30, calendar.MaxProfit, 1e-9)
	assert.Equal(t, models.ExpiryFront, calendar.Legs[0].Expiry)
	assert.Equal(t, models.ActionSell, calendar.Legs[0].Action)
	assert.Equal(t, models.ExpiryBack, calendar.Legs[1].Expiry)

	condor := byName[models.StrategyIronCondor]
	assert.InDelta(t, 24, condor.MaxProfit, 1e-9)
	assert.InDelta(t, 26, condor.MaxLoss, 1e-9)
	assert.Equal(t, []float64{876, 1124}, condor.Breakeven)
}

func TestGenerate_ConstraintFilters(t *testing.T) {
	minPOP := 60.0

	tests := []struct {
		name     string
		mutate   func(p *models.UserProfile)
		expected []string
		removed  []Removal
	}{
		{
			name:     "max_loss",
			mutate:   func(p *models.UserProfile) { p.MaxLossPerTrade = 30 },
			expected: []string{models.StrategyIronCondor, models.StrategyCalendar},
			removed: []Removal{
				{Strategy: models.StrategyIronButterfly, Reason: "max loss 70.00 exceeds per-trade limit 30.00"},
				{Strategy: models.StrategyBullPutSpread, Reason: "max loss 43.00 exceeds per-trade limit 30.00"},
			},
		},
		{
			name:     "min_pop",
			mutate:   func(p *models.UserProfile) { p.MinPOP = &minPOP },
			expected: []string{models.StrategyIronCondor, models.StrategyBullPutSpread},
			removed: []Removal{
				{Strategy: models.StrategyIronButterfly, Reason: "pop 35% below minimum 60%"},
				{Strategy: models.StrategyCalendar, Reason: "pop 45% below minimum 60%"},
			},
		},
		{
			name:     "allowed_list",
			mutate:   func(p *models.UserProfile) { p.AllowedStrategies = []string{models.StrategyCalendar} },
			expected: []string{models.StrategyCalendar},
		},
		{
			name:     "banned_list",
			mutate:   func(p *models.UserProfile) { p.BannedStrategies = []string{models.StrategyIronCondor} },
			expected: []string{models.StrategyBullPutSpread, models.StrategyCalendar, models.StrategyIronButterfly},
			removed:  []Removal{{Strategy: models.StrategyIronCondor, Reason: "strategy is banned by profile"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := looseProfile()
			tt.mutate(profile)

			rec, err := newTestGenerator().Generate(testSnapshot(),
				testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.85), profile)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, names(rec.Strategies))
			if tt.removed != nil {
				assert.Equal(t, tt.removed, rec.Removed)
			} else {
				assert.Len(t, rec.Removed, 4-len(tt.expected))
			}
		})
	}
}

func TestGenerate_EverythingFilteredFallsBack(t *testing.T) {
	profile := looseProfile()
	profile.MaxLossPerTrade = 10

	rec, err := newTestGenerator().Generate(testSnapshot(),
		testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.85), profile)
	require.NoError(t, err)

	require.Len(t, rec.Strategies, 1)
	fallback := rec.Top()
	assert.True(t, fallback.IsNoTrade())
	assert.Equal(t, 0, fallback.Rank)
	assert.Equal(t, 100.0, fallback.POP)
	assert.Empty(t, fallback.Legs)
	assert.Zero(t, fallback.MaxLoss)
	assert.Zero(t, fallback.MaxProfit)
	assert.Equal(t, "No candidate structure satisfies the risk profile", rec.FallbackReason)
	assert.Len(t, rec.Removed, 4)
}

func TestGenerate_ExtremeVolatilityOnlyFallback(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.IVRank, snapshot.IVPercentile = 85, 92

	out, err := regime.NewClassifier(regime.DefaultConfig()).Analyze(snapshot)
	require.NoError(t, err)
	require.Equal(t, models.VolatilityExtreme, out.Regime.Volatility)

	profile := looseProfile()
	minPOP := 0.0
	profile.MinPOP = &minPOP

	rec, err := newTestGenerator().Generate(snapshot, out, profile)
	require.NoError(t, err)

	require.Len(t, rec.Strategies, 1)
	assert.True(t, rec.Top().IsNoTrade())
	assert.Contains(t, rec.FallbackReason, "Extreme volatility")
	assert.Contains(t, rec.Summary(), "STAND ASIDE")
}

func TestGenerate_LowConfidencePrependsFallback(t *testing.T) {
	rec, err := newTestGenerator().Generate(testSnapshot(),
		testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.55), looseProfile())
	require.NoError(t, err)

	require.Len(t, rec.Strategies, 5)
	assert.True(t, rec.HasFallback())
	for i, s := range rec.Strategies {
		assert.Equal(t, i, s.Rank)
	}
	assert.Contains(t, rec.FallbackReason, "Regime confidence 0.55 below 0.60")
}

func TestGenerate_DoNotTradeReasonBecomesFallbackReason(t *testing.T) {
	out := testRegime(models.VolatilityHigh, models.StructureTrendingUp, models.DirectionBullish, 0.85)
	out.DoNotTrade = []string{"Price within 1% of 52-week high (1005.00)", "second reason"}

	rec, err := newTestGenerator().Generate(testSnapshot(), out, looseProfile())
	require.NoError(t, err)

	assert.Equal(t, "Price within 1% of 52-week high (1005.00)", rec.FallbackReason)
	assert.Equal(t, []string{
		models.StrategyNoTrade,
		models.StrategyIronCondor,
		models.StrategyBullPutSpread,
		models.StrategyCalendar,
	}, names(rec.Strategies))
	assert.Equal(t, 72.0, rec.Strategies[1].POP, "condor pop lifts in high volatility")
	assert.Equal(t, 70.0, rec.Strategies[2].POP, "bull put pop lifts when bullish")
}

func TestGenerate_Eligibility(t *testing.T) {
	tests := []struct {
		name     string
		out      *regime.Output
		dte      int
		expected []string
	}{
		{
			name:     "bearish_choppy_short_dte",
			out:      testRegime(models.VolatilityNormal, models.StructureChoppy, models.DirectionBearish, 0.9),
			dte:      7,
			expected: []string{models.StrategyNoTrade},
		},
		{
			name:     "bearish_trend_long_dte",
			out:      testRegime(models.VolatilityNormal, models.StructureTrendingDown, models.DirectionBearish, 0.9),
			dte:      30,
			expected: []string{models.StrategyIronCondor, models.StrategyCalendar},
		},
		{
			name:     "calendar_boundary",
			out:      testRegime(models.VolatilityNormal, models.StructureChoppy, models.DirectionBearish, 0.9),
			dte:      14,
			expected: []string{models.StrategyCalendar},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := testSnapshot()
			snapshot.DTE = tt.dte

			rec, err := newTestGenerator().Generate(snapshot, tt.out, looseProfile())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names(rec.Strategies))

			// Ineligible structures are omitted, never reported as failed gates
			admitted := make([]string, 0, len(rec.Eligibility))
			for _, check := range rec.Eligibility {
				assert.True(t, check.Passed, check.Name)
				admitted = append(admitted, check.Name)
			}
			for _, s := range rec.Strategies {
				if !s.IsNoTrade() {
					assert.Contains(t, admitted, s.Name)
				}
			}
			assert.Len(t, admitted, len(tt.expected)-boolToInt(rec.HasFallback()))
		})
	}
}

func TestGenerate_MaxLossNeverExceedsProfile(t *testing.T) {
	limits := []float64{1, 15, 20, 25, 26, 30, 43, 50, 69.99, 70, 500}
	regimes := []*regime.Output{
		testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.85),
		testRegime(models.VolatilityHigh, models.StructureTrendingUp, models.DirectionBullish, 0.4),
		testRegime(models.VolatilityNormal, models.StructureTrendingDown, models.DirectionBearish, 0.7),
	}

	for _, limit := range limits {
		for _, out := range regimes {
			profile := looseProfile()
			profile.MaxLossPerTrade = limit

			rec, err := newTestGenerator().Generate(testSnapshot(), out, profile)
			require.NoError(t, err)
			require.NotEmpty(t, rec.Strategies)
			assert.LessOrEqual(t, len(rec.Strategies), 5)

			for _, s := range rec.Strategies {
				if s.IsNoTrade() {
					continue
				}
				assert.LessOrEqual(t, s.MaxLoss, limit)
				assert.GreaterOrEqual(t, s.MaxLoss, 0.0)
			}
		}
	}
}

func TestGenerate_ClassifiedNiftyMarket(t *testing.T) {
	snapshot := &models.MarketSnapshot{
		Symbol: "NIFTY", Price: 25925.95, IV: 12.5, IVRank: 18, IVPercentile: 22, DTE: 21,
		High52w: 26277, Low52w: 21743,
		MovingAverages: &models.MovingAverages{MA20: 25890, MA50: 25740, MA200: 25120},
	}
	out, err := regime.NewClassifier(regime.DefaultConfig()).Analyze(snapshot)
	require.NoError(t, err)

	rec, err := newTestGenerator().Generate(snapshot, out, looseProfile())
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.StrategyBullPutSpread,
		models.StrategyIronCondor,
		models.StrategyCalendar,
	}, names(rec.Strategies))

	bullPut := rec.Strategies[0]
	assert.Equal(t, 25900.0, bullPut.Legs[0].Strike, "nearest support 25890 snaps to 25900")
	assert.Equal(t, 25850.0, bullPut.Legs[1].Strike)
	assert.Equal(t, 70.0, bullPut.POP)
}

func TestGenerate_Validation(t *testing.T) {
	g := newTestGenerator()
	out := testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.85)

	_, err := g.Generate(testSnapshot(), out, &models.UserProfile{RiskTolerance: models.RiskModerate})
	var validationErr policy.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "strategy", validationErr.Component)
	assert.ElementsMatch(t, []string{"maxLossPerTrade", "accountSize"}, validationErr.Missing())

	_, err = g.Generate(testSnapshot(), nil, looseProfile())
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"regime"}, validationErr.Missing())
}

func TestPricingHelpers(t *testing.T) {
	assert.Equal(t, 25900.0, snapStrike(25890, 50))
	assert.Equal(t, 26000.0, snapStrike(25975, 50), "half rounds away from zero")
	assert.Equal(t, 25400.0, snapStrike(25407.5, 50))
	assert.Equal(t, 1296.3, estimatePremium(25925.95, 12.5, 0.4))
	assert.Equal(t, 7.0, netPremium([]float64{35}, []float64{28}))
}

func TestNewGenerator_UnsetParametersUseDefaults(t *testing.T) {
	config := DefaultConfig()
	config.MaxStrategies = 0
	config.StrikeStep = 0
	config.FallbackConfidence = -1

	g := NewGenerator(config).WithClock(fixedClock)
	assert.Equal(t, DefaultConfig(), g.config)

	out, err := g.Generate(testSnapshot(), testRegime(models.VolatilityLow, models.StructureRangeBound, models.DirectionNeutral, 0.8), looseProfile())
	require.NoError(t, err)
	require.NotEmpty(t, out.Strategies)
	assert.NotPanics(t, func() { out.Top() })
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

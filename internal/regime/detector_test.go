package regime

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/policy"
)

func niftySnapshot() *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Symbol:       "NIFTY",
		Price:        25925.95,
		IV:           12.5,
		IVRank:       18,
		IVPercentile: 22,
		DTE:          21,
		High52w:      26277,
		Low52w:       21743,
		MovingAverages: &models.MovingAverages{
			MA20:  25890,
			MA50:  25740,
			MA200: 25120,
		},
	}
}

func TestAnalyze_LowVolUptrend(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	out, err := c.Analyze(niftySnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.VolatilityLow, out.Regime.Volatility)
	assert.Equal(t, models.StructureTrendingUp, out.Regime.Structure)
	assert.Equal(t, models.DirectionBullish, out.Regime.Direction)

	assert.InDelta(t, 0.7, out.Breakdown.Volatility.Confidence, 1e-9)
	assert.InDelta(t, 0.65, out.Breakdown.Direction.Confidence, 1e-9)
	assert.InDelta(t, 0.65, out.Regime.Confidence, 1e-9)

	assert.Empty(t, out.DoNotTrade)
	assert.True(t, out.ShouldTrade())
	assert.Contains(t, out.Notes, "Caution")
	assert.Len(t, out.Warnings, 1, "only the volume profile warning")
}

func TestAnalyze_ConfidenceIsWeakestDimension(t *testing.T) {
	c := NewClassifier(Config{})

	snapshots := []*models.MarketSnapshot{
		niftySnapshot(),
		func() *models.MarketSnapshot { s := niftySnapshot(); s.MovingAverages = nil; return s }(),
		func() *models.MarketSnapshot { s := niftySnapshot(); s.IVRank, s.IVPercentile = 60, 70; return s }(),
		func() *models.MarketSnapshot { s := niftySnapshot(); s.IVRank, s.IVPercentile = 95, 99; return s }(),
		func() *models.MarketSnapshot {
			s := niftySnapshot()
			s.MovingAverages = &models.MovingAverages{MA20: 25500, MA50: 26400, MA200: 25000}
			return s
		}(),
	}

	for _, s := range snapshots {
		out, err := c.Analyze(s)
		require.NoError(t, err)

		b := out.Breakdown
		expected := math.Min(b.Volatility.Confidence, math.Min(b.Structure.Confidence, b.Direction.Confidence))
		assert.InDelta(t, expected, out.Regime.Confidence, 1e-9)
		assert.GreaterOrEqual(t, out.Regime.Confidence, 0.0)
		assert.LessOrEqual(t, out.Regime.Confidence, 1.0)
	}
}

func TestAnalyzeVolatility(t *testing.T) {
	tests := []struct {
		name       string
		rank, pct  float64
		expected   models.Volatility
		confidence float64
	}{
		{"zero_iv", 0, 0, models.VolatilityLow, 1.0},
		{"low_ceiling_inclusive", 18, 22, models.VolatilityLow, 0.7},
		{"normal", 30, 40, models.VolatilityNormal, 0.8},
		{"high", 60, 70, models.VolatilityHigh, 0.85},
		{"extreme_floor", 80, 80, models.VolatilityExtreme, 0.9},
		{"extreme_max", 100, 100, models.VolatilityExtreme, 1.0},
	}

	c := NewClassifier(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := niftySnapshot()
			s.IVRank, s.IVPercentile = tt.rank, tt.pct

			r := c.analyzeVolatility(s)
			assert.Equal(t, string(tt.expected), r.Label)
			assert.InDelta(t, tt.confidence, r.Confidence, 1e-9)
		})
	}
}

func TestAnalyzeStructure(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		ma       *models.MovingAverages
		expected models.Structure
	}{
		{"strict_ascending", 105, &models.MovingAverages{MA20: 103, MA50: 100, MA200: 90}, models.StructureTrendingUp},
		{"strict_descending", 85, &models.MovingAverages{MA20: 88, MA50: 92, MA200: 100}, models.StructureTrendingDown},
		{"tight_spread", 100, &models.MovingAverages{MA20: 100.5, MA50: 99.8, MA200: 100.9}, models.StructureRangeBound},
		{"tangled", 100, &models.MovingAverages{MA20: 95, MA50: 104, MA200: 97}, models.StructureChoppy},
		{"no_mas_mid_range", 24000, nil, models.StructureRangeBound},
		{"no_mas_near_high", 25900, nil, models.StructureTrendingUp},
		{"no_mas_near_low", 22000, nil, models.StructureTrendingDown},
	}

	c := NewClassifier(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := niftySnapshot()
			s.Price = tt.price
			s.MovingAverages = tt.ma

			r := c.analyzeStructure(s)
			assert.Equal(t, string(tt.expected), r.Label)
			assert.LessOrEqual(t, r.Confidence, 0.95)
		})
	}
}

func TestAnalyzeDirection(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		ma         *models.MovingAverages
		expected   models.Direction
		confidence float64
	}{
		{"above_ma50_band", 110, &models.MovingAverages{MA20: 108, MA50: 100, MA200: 95}, models.DirectionBullish, 0.85},
		{"below_ma50_band", 90, &models.MovingAverages{MA20: 92, MA50: 100, MA200: 105}, models.DirectionBearish, 0.85},
		{"above_ma20_only", 101, &models.MovingAverages{MA20: 100.5, MA50: 100, MA200: 99}, models.DirectionBullish, 0.65},
		{"below_ma20_only", 99.5, &models.MovingAverages{MA20: 100, MA50: 100, MA200: 101}, models.DirectionBearish, 0.65},
		{"at_ma20", 100, &models.MovingAverages{MA20: 100, MA50: 100, MA200: 100}, models.DirectionNeutral, 0.8},
		{"no_mas", 100, nil, models.DirectionNeutral, 0.5},
	}

	c := NewClassifier(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := niftySnapshot()
			s.Price = tt.price
			s.MovingAverages = tt.ma

			r := c.analyzeDirection(s)
			assert.Equal(t, string(tt.expected), r.Label)
			assert.InDelta(t, tt.confidence, r.Confidence, 1e-9)
		})
	}
}

func TestAnalyze_DoNotTrade(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *models.MarketSnapshot)
		contains string
	}{
		{
			name:     "extreme_volatility",
			mutate:   func(s *models.MarketSnapshot) { s.IVRank, s.IVPercentile = 85, 92 },
			contains: "Extreme volatility",
		},
		{
			name: "choppy_structure",
			mutate: func(s *models.MarketSnapshot) {
				s.Price = 25000
				s.MovingAverages = &models.MovingAverages{MA20: 24500, MA50: 25600, MA200: 24800}
			},
			contains: "Choppy structure",
		},
		{
			name: "short_dte_high_rank",
			mutate: func(s *models.MarketSnapshot) {
				s.DTE = 2
				s.IVRank, s.IVPercentile = 75, 60
			},
			contains: "Expiration in 2 days",
		},
		{
			name:     "near_52w_high",
			mutate:   func(s *models.MarketSnapshot) { s.Price = 26100 },
			contains: "52-week high",
		},
	}

	c := NewClassifier(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := niftySnapshot()
			tt.mutate(s)

			out, err := c.Analyze(s)
			require.NoError(t, err)
			require.NotEmpty(t, out.DoNotTrade)
			assert.False(t, out.ShouldTrade())

			assert.Contains(t, strings.Join(out.DoNotTrade, "\n"), tt.contains)
		})
	}
}

func TestAnalyze_LowConfidenceFlag(t *testing.T) {
	config := DefaultConfig()
	config.MinConfidence = 0.6

	s := niftySnapshot()
	s.Price = 24000
	s.MovingAverages = nil

	out, err := NewClassifier(config).Analyze(s)
	require.NoError(t, err)
	require.Len(t, out.DoNotTrade, 1)
	assert.Contains(t, out.DoNotTrade[0], "Low classification confidence (0.50 < 0.60)")
}

func TestAnalyze_MissingMovingAveragesDegrades(t *testing.T) {
	s := niftySnapshot()
	s.MovingAverages = nil
	s.Price = 24000

	out, err := NewClassifier(DefaultConfig()).Analyze(s)
	require.NoError(t, err)

	assert.Equal(t, models.StructureRangeBound, out.Regime.Structure)
	assert.Equal(t, models.DirectionNeutral, out.Regime.Direction)
	assert.InDelta(t, 0.5, out.Regime.Confidence, 1e-9)
	assert.Len(t, out.Warnings, 2)
}

func TestAnalyze_ValidationError(t *testing.T) {
	s := niftySnapshot()
	s.IVRank = 140
	s.Symbol = ""

	out, err := NewClassifier(DefaultConfig()).Analyze(s)
	assert.Nil(t, out)

	var validationErr policy.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"symbol"}, validationErr.Missing())
	assert.Len(t, validationErr.Fields, 2)
}

func TestOutput_Summary(t *testing.T) {
	out := &Output{
		Symbol: "NIFTY",
		Regime: models.RegimeAnalysis{
			Volatility: models.VolatilityHigh,
			Structure:  models.StructureRangeBound,
			Direction:  models.DirectionNeutral,
			Confidence: 0.62,
		},
	}
	assert.Equal(t, "NIFTY: high volatility, range-bound, neutral (confidence 0.62)", out.Summary())

	out.DoNotTrade = []string{"Expiry in 2 days with IV rank 75"}
	assert.Contains(t, out.Summary(), "| DO NOT TRADE: Expiry in 2 days")
}

func TestNewClassifier_UnsetThresholdsUseDefaults(t *testing.T) {
	config := DefaultConfig()
	config.LowVolCeiling = 0
	config.MaxLevels = 0

	c := NewClassifier(config)
	assert.Equal(t, DefaultConfig(), c.Config())

	s := niftySnapshot()
	s.IVRank, s.IVPercentile = 0, 0

	out, err := c.Analyze(s)
	require.NoError(t, err)
	assert.Equal(t, models.VolatilityLow, out.Regime.Volatility)
	assert.False(t, math.IsNaN(out.Breakdown.Volatility.Confidence))
	assert.GreaterOrEqual(t, out.Regime.Confidence, 0.0)
	assert.LessOrEqual(t, out.Regime.Confidence, 1.0)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(math.NaN()))
	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.4, clamp01(0.4))
}

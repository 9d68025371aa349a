package regime

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/policy"
)

// Reading is the outcome of one classification dimension
type Reading struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
	Reason     string  `json:"reason"`
}

// Breakdown holds the per-dimension readings behind the overall regime
type Breakdown struct {
	Volatility Reading `json:"volatility"`
	Structure  Reading `json:"structure"`
	Direction  Reading `json:"direction"`
}

// Output contains the regime classification result
type Output struct {
	Symbol     string                `json:"symbol"`
	Regime     models.RegimeAnalysis `json:"regime"`
	Breakdown  Breakdown             `json:"breakdown"`
	Levels     models.MarketLevels   `json:"levels"`
	DoNotTrade []string              `json:"doNotTrade"`
	Warnings   []string              `json:"warnings"`
	Notes      string                `json:"notes"`
}

// ShouldTrade reports whether no do-not-trade condition was raised
func (o *Output) ShouldTrade() bool {
	return len(o.DoNotTrade) == 0
}

// Summary renders the classification on one line
func (o *Output) Summary() string {
	line := fmt.Sprintf("%s: %s volatility, %s, %s (confidence %.2f)",
		o.Symbol, o.Regime.Volatility, o.Regime.Structure, o.Regime.Direction, o.Regime.Confidence)
	if !o.ShouldTrade() {
		line += " | DO NOT TRADE: " + strings.Join(o.DoNotTrade, "; ")
	}
	return line
}

// Config holds the classification thresholds
type Config struct {
	LowVolCeiling    float64 `yaml:"low_vol_ceiling"`    // avg IV rank/percentile, inclusive: 20
	NormalVolCeiling float64 `yaml:"normal_vol_ceiling"` // 50
	HighVolCeiling   float64 `yaml:"high_vol_ceiling"`   // 80, extreme at or above

	RangeProximityPct  float64 `yaml:"range_proximity_pct"`  // 52w high/low proximity: 0.05
	MASpreadPct        float64 `yaml:"ma_spread_pct"`        // range-bound MA spread: 0.02
	DirectionBandPct   float64 `yaml:"direction_band_pct"`   // band around MA50: 0.02
	TrendConfidenceCap float64 `yaml:"trend_confidence_cap"` // 0.95

	ExtremeLevelPct   float64 `yaml:"extreme_level_pct"`  // within 1% of 52w high/low
	MinConfidence     float64 `yaml:"min_confidence"`     // do-not-trade below 0.5
	CautionConfidence float64 `yaml:"caution_confidence"` // caution note below 0.7
	ChoppyConfidence  float64 `yaml:"choppy_confidence"`  // do-not-trade when choppy above 0.7
	ShortDTE          int     `yaml:"short_dte"`          // 3
	ShortDTEIVRank    float64 `yaml:"short_dte_iv_rank"`  // 70

	MaxLevels int `yaml:"max_levels"` // 3 per side
}

// DefaultConfig returns the production classification thresholds
func DefaultConfig() Config {
	return Config{
		LowVolCeiling:      20,
		NormalVolCeiling:   50,
		HighVolCeiling:     80,
		RangeProximityPct:  0.05,
		MASpreadPct:        0.02,
		DirectionBandPct:   0.02,
		TrendConfidenceCap: 0.95,
		ExtremeLevelPct:    0.01,
		MinConfidence:      0.5,
		CautionConfidence:  0.7,
		ChoppyConfidence:   0.7,
		ShortDTE:           3,
		ShortDTEIVRank:     70,
		MaxLevels:          3,
	}
}

// Classifier classifies volatility, structure and direction from a market snapshot.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	config Config
}

// withDefaults replaces every unset threshold with its DefaultConfig value
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	fill := func(v *float64, def float64) {
		if *v <= 0 || math.IsNaN(*v) {
			*v = def
		}
	}
	fill(&c.LowVolCeiling, d.LowVolCeiling)
	fill(&c.NormalVolCeiling, d.NormalVolCeiling)
	fill(&c.HighVolCeiling, d.HighVolCeiling)
	fill(&c.RangeProximityPct, d.RangeProximityPct)
	fill(&c.MASpreadPct, d.MASpreadPct)
	fill(&c.DirectionBandPct, d.DirectionBandPct)
	fill(&c.TrendConfidenceCap, d.TrendConfidenceCap)
	fill(&c.ExtremeLevelPct, d.ExtremeLevelPct)
	fill(&c.MinConfidence, d.MinConfidence)
	fill(&c.CautionConfidence, d.CautionConfidence)
	fill(&c.ChoppyConfidence, d.ChoppyConfidence)
	fill(&c.ShortDTEIVRank, d.ShortDTEIVRank)
	if c.ShortDTE <= 0 {
		c.ShortDTE = d.ShortDTE
	}
	if c.MaxLevels <= 0 {
		c.MaxLevels = d.MaxLevels
	}
	return c
}

// NewClassifier creates a classifier; unset thresholds fall back to DefaultConfig
func NewClassifier(config Config) Classifier {
	return Classifier{config: config.withDefaults()}
}

// Config returns the thresholds in use
func (c Classifier) Config() Config {
	return c.config
}

// Analyze classifies the snapshot. It fails with a policy.ValidationError when a
// required field is missing or out of range; missing optional inputs only add warnings.
func (c Classifier) Analyze(snapshot *models.MarketSnapshot) (*Output, error) {
	if err := policy.ValidateSnapshot(snapshot); err != nil {
		return nil, err
	}

	out := &Output{Symbol: snapshot.Symbol}

	if snapshot.MovingAverages == nil {
		out.Warnings = append(out.Warnings, "moving averages missing: structure and direction fall back to 52-week range heuristics")
	}
	if snapshot.VolumeProfile == nil {
		out.Warnings = append(out.Warnings, "volume profile missing: value-area levels unavailable")
	}

	out.Breakdown = Breakdown{
		Volatility: c.analyzeVolatility(snapshot),
		Structure:  c.analyzeStructure(snapshot),
		Direction:  c.analyzeDirection(snapshot),
	}

	// Weakest dimension caps trust in the whole classification
	confidence := math.Min(out.Breakdown.Volatility.Confidence,
		math.Min(out.Breakdown.Structure.Confidence, out.Breakdown.Direction.Confidence))

	out.Regime = models.RegimeAnalysis{
		Volatility: models.Volatility(out.Breakdown.Volatility.Label),
		Structure:  models.Structure(out.Breakdown.Structure.Label),
		Direction:  models.Direction(out.Breakdown.Direction.Label),
		Confidence: clamp01(confidence),
	}

	out.Levels = c.computeLevels(snapshot)
	out.DoNotTrade = c.doNotTradeReasons(snapshot, out)
	out.Notes = c.buildNotes(snapshot, out)

	log.Debug().
		Str("symbol", snapshot.Symbol).
		Str("volatility", string(out.Regime.Volatility)).
		Str("structure", string(out.Regime.Structure)).
		Str("direction", string(out.Regime.Direction)).
		Float64("confidence", out.Regime.Confidence).
		Int("do_not_trade", len(out.DoNotTrade)).
		Msg("Regime classified")

	return out, nil
}

// averageIV is the mean of IV rank and IV percentile
func averageIV(s *models.MarketSnapshot) float64 {
	return (s.IVRank + s.IVPercentile) / 2
}

// analyzeVolatility buckets the average IV rank/percentile
func (c Classifier) analyzeVolatility(s *models.MarketSnapshot) Reading {
	avg := averageIV(s)
	reason := fmt.Sprintf("avg IV rank/percentile %.1f", avg)

	if avg <= c.config.LowVolCeiling {
		// 1.0 at zero, decaying to 0.7 at the ceiling
		return Reading{
			Label:      string(models.VolatilityLow),
			Confidence: 1.0 - 0.3*(avg/c.config.LowVolCeiling),
			Reason:     reason,
		}
	}
	if avg < c.config.NormalVolCeiling {
		return Reading{Label: string(models.VolatilityNormal), Confidence: 0.8, Reason: reason}
	}
	if avg < c.config.HighVolCeiling {
		return Reading{Label: string(models.VolatilityHigh), Confidence: 0.85, Reason: reason}
	}

	// 0.9 at the extreme floor, climbing toward 1.0 at 100
	span := 100 - c.config.HighVolCeiling
	conf := 0.9
	if span > 0 {
		conf += 0.1 * (avg - c.config.HighVolCeiling) / span
	}
	return Reading{
		Label:      string(models.VolatilityExtreme),
		Confidence: math.Min(conf, 1.0),
		Reason:     reason,
	}
}

// analyzeStructure reads MA ordering, or 52-week range position when MAs are absent
func (c Classifier) analyzeStructure(s *models.MarketSnapshot) Reading {
	ma := s.MovingAverages
	if ma == nil {
		return c.analyzeRangePosition(s)
	}

	price := s.Price
	if price > ma.MA20 && ma.MA20 > ma.MA50 && ma.MA50 > ma.MA200 {
		separation := (ma.MA20 - ma.MA200) / price
		return Reading{
			Label:      string(models.StructureTrendingUp),
			Confidence: math.Min(c.config.TrendConfidenceCap, 0.7+separation*5),
			Reason:     "price > MA20 > MA50 > MA200",
		}
	}
	if price < ma.MA20 && ma.MA20 < ma.MA50 && ma.MA50 < ma.MA200 {
		separation := (ma.MA200 - ma.MA20) / price
		return Reading{
			Label:      string(models.StructureTrendingDown),
			Confidence: math.Min(c.config.TrendConfidenceCap, 0.7+separation*5),
			Reason:     "price < MA20 < MA50 < MA200",
		}
	}

	hi := math.Max(ma.MA20, math.Max(ma.MA50, ma.MA200))
	lo := math.Min(ma.MA20, math.Min(ma.MA50, ma.MA200))
	if spread := (hi - lo) / price; spread < c.config.MASpreadPct {
		return Reading{
			Label:      string(models.StructureRangeBound),
			Confidence: 0.85,
			Reason:     fmt.Sprintf("MA spread %.2f%% of price", spread*100),
		}
	}

	return Reading{
		Label:      string(models.StructureChoppy),
		Confidence: 0.75,
		Reason:     "moving averages out of order",
	}
}

func (c Classifier) analyzeRangePosition(s *models.MarketSnapshot) Reading {
	if s.High52w > 0 && s.Price >= s.High52w*(1-c.config.RangeProximityPct) {
		return Reading{
			Label:      string(models.StructureTrendingUp),
			Confidence: 0.6,
			Reason:     "price near 52-week high",
		}
	}
	if s.Low52w > 0 && s.Price <= s.Low52w*(1+c.config.RangeProximityPct) {
		return Reading{
			Label:      string(models.StructureTrendingDown),
			Confidence: 0.6,
			Reason:     "price near 52-week low",
		}
	}
	return Reading{
		Label:      string(models.StructureRangeBound),
		Confidence: 0.5,
		Reason:     "price inside 52-week range",
	}
}

// analyzeDirection compares price against MA50 first, then MA20
func (c Classifier) analyzeDirection(s *models.MarketSnapshot) Reading {
	ma := s.MovingAverages
	if ma == nil {
		return Reading{Label: string(models.DirectionNeutral), Confidence: 0.5, Reason: "no moving averages"}
	}

	price := s.Price
	switch {
	case price > ma.MA50*(1+c.config.DirectionBandPct):
		return Reading{Label: string(models.DirectionBullish), Confidence: 0.85, Reason: "price above MA50 band"}
	case price < ma.MA50*(1-c.config.DirectionBandPct):
		return Reading{Label: string(models.DirectionBearish), Confidence: 0.85, Reason: "price below MA50 band"}
	case price > ma.MA20:
		return Reading{Label: string(models.DirectionBullish), Confidence: 0.65, Reason: "price above MA20"}
	case price < ma.MA20:
		return Reading{Label: string(models.DirectionBearish), Confidence: 0.65, Reason: "price below MA20"}
	default:
		return Reading{Label: string(models.DirectionNeutral), Confidence: 0.8, Reason: "price at MA20"}
	}
}

// doNotTradeReasons lists every applicable no-trade condition; they are independent
func (c Classifier) doNotTradeReasons(s *models.MarketSnapshot, out *Output) []string {
	var reasons []string

	if out.Regime.Volatility == models.VolatilityExtreme {
		reasons = append(reasons, fmt.Sprintf("Extreme volatility (avg IV rank/percentile %.1f)", averageIV(s)))
	}
	if out.Regime.Structure == models.StructureChoppy && out.Breakdown.Structure.Confidence > c.config.ChoppyConfidence {
		reasons = append(reasons, fmt.Sprintf("Choppy structure (confidence %.2f): no directional or range edge", out.Breakdown.Structure.Confidence))
	}
	if out.Regime.Confidence < c.config.MinConfidence {
		reasons = append(reasons, fmt.Sprintf("Low classification confidence (%.2f < %.2f)", out.Regime.Confidence, c.config.MinConfidence))
	}
	if s.DTE < c.config.ShortDTE && s.IVRank > c.config.ShortDTEIVRank {
		reasons = append(reasons, fmt.Sprintf("Expiration in %d days with IV rank %.0f: gamma and IV crush risk", s.DTE, s.IVRank))
	}
	if s.High52w > 0 && math.Abs(s.Price-s.High52w)/s.High52w <= c.config.ExtremeLevelPct {
		reasons = append(reasons, fmt.Sprintf("Price within 1%% of 52-week high (%.2f)", s.High52w))
	}
	if s.Low52w > 0 && math.Abs(s.Price-s.Low52w)/s.Low52w <= c.config.ExtremeLevelPct {
		reasons = append(reasons, fmt.Sprintf("Price within 1%% of 52-week low (%.2f)", s.Low52w))
	}

	return reasons
}

func (c Classifier) buildNotes(s *models.MarketSnapshot, out *Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Volatility is %s (avg IV rank/percentile %.1f); structure is %s; direction is %s.",
		out.Regime.Volatility, averageIV(s), out.Regime.Structure, out.Regime.Direction)
	if out.Regime.Confidence < c.config.CautionConfidence {
		fmt.Fprintf(&b, " Caution: overall confidence %.2f is below %.2f, treat this read as tentative.",
			out.Regime.Confidence, c.config.CautionConfidence)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

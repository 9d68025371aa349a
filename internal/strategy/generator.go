package strategy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/policy"
	"github.com/sawpanic/optionsrun/internal/regime"
)

// Removal is one audit entry for a candidate dropped by a profile constraint
type Removal struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Recommendations is the ranked output of one generation pass
type Recommendations struct {
	Symbol         string                `json:"symbol"`
	Timestamp      time.Time             `json:"timestamp"`
	Regime         models.RegimeAnalysis `json:"regime"`
	DoNotTrade     []string              `json:"doNotTrade"`
	Strategies     []models.Strategy     `json:"strategies"`
	Eligibility    []EligibilityCheck    `json:"eligibility"` // gates that admitted a candidate
	Removed        []Removal             `json:"removed"`
	FallbackReason string                `json:"fallbackReason,omitempty"`
}

// HasFallback reports whether the capital-preservation option is in the ranking
func (r *Recommendations) HasFallback() bool {
	return len(r.Strategies) > 0 && r.Strategies[0].IsNoTrade()
}

// Top returns the first ranked strategy
func (r *Recommendations) Top() models.Strategy {
	return r.Strategies[0]
}

// Summary returns a concise one-line description of the ranking
func (r *Recommendations) Summary() string {
	if r.HasFallback() {
		return fmt.Sprintf("STAND ASIDE %s: %s (%d alternatives)", r.Symbol, r.FallbackReason, len(r.Strategies)-1)
	}
	names := make([]string, 0, len(r.Strategies))
	for _, s := range r.Strategies {
		names = append(names, fmt.Sprintf("%d. %s (pop %.0f%%)", s.Rank, s.Name, s.POP))
	}
	return fmt.Sprintf("%s: %s", r.Symbol, strings.Join(names, ", "))
}

// Config holds strike construction and ranking parameters
type Config struct {
	StrikeStep         float64 `yaml:"strike_step"`         // 50
	WingWidth          float64 `yaml:"wing_width"`          // 100
	OuterWingWidth     float64 `yaml:"outer_wing_width"`    // 150
	SpreadWidth        float64 `yaml:"spread_width"`        // 50
	MinCalendarDTE     int     `yaml:"min_calendar_dte"`    // 14
	FallbackConfidence float64 `yaml:"fallback_confidence"` // 0.6
	MaxStrategies      int     `yaml:"max_strategies"`      // 5 including the fallback
}

// DefaultConfig returns the production construction parameters
func DefaultConfig() Config {
	return Config{
		StrikeStep:         50,
		WingWidth:          100,
		OuterWingWidth:     150,
		SpreadWidth:        50,
		MinCalendarDTE:     14,
		FallbackConfidence: 0.6,
		MaxStrategies:      5,
	}
}

// Generator builds, filters and ranks candidate structures for a classified market.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	config Config
	now    func() time.Time
}

// withDefaults replaces every unset parameter with its DefaultConfig value
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StrikeStep <= 0 {
		c.StrikeStep = d.StrikeStep
	}
	if c.WingWidth <= 0 {
		c.WingWidth = d.WingWidth
	}
	if c.OuterWingWidth <= 0 {
		c.OuterWingWidth = d.OuterWingWidth
	}
	if c.SpreadWidth <= 0 {
		c.SpreadWidth = d.SpreadWidth
	}
	if c.MinCalendarDTE <= 0 {
		c.MinCalendarDTE = d.MinCalendarDTE
	}
	if c.FallbackConfidence <= 0 {
		c.FallbackConfidence = d.FallbackConfidence
	}
	if c.MaxStrategies <= 0 {
		c.MaxStrategies = d.MaxStrategies
	}
	return c
}

// NewGenerator creates a generator; unset parameters fall back to DefaultConfig
func NewGenerator(config Config) Generator {
	return Generator{config: config.withDefaults(), now: time.Now}
}

// WithClock returns a copy of the generator stamping output with the given clock
func (g Generator) WithClock(now func() time.Time) Generator {
	g.now = now
	return g
}

// Generate returns ranked strategies for the snapshot under the classified regime.
// The result always holds at least one strategy.
func (g Generator) Generate(snapshot *models.MarketSnapshot, regimeOut *regime.Output, profile *models.UserProfile) (*Recommendations, error) {
	if err := policy.ValidateProfile(profile); err != nil {
		return nil, err
	}
	if err := policy.ValidateSnapshot(snapshot); err != nil {
		return nil, err
	}
	if regimeOut == nil {
		return nil, policy.ValidationError{
			Component: "strategy",
			Fields:    []policy.FieldError{{Field: "regime", Reason: policy.ReasonMissingField, Message: "required field is missing"}},
		}
	}
	if err := policy.ValidateRegime("strategy", &regimeOut.Regime); err != nil {
		return nil, err
	}

	rec := &Recommendations{
		Symbol:      snapshot.Symbol,
		Timestamp:   g.timestamp(),
		Regime:      regimeOut.Regime,
		DoNotTrade:  append([]string{}, regimeOut.DoNotTrade...),
		Eligibility: []EligibilityCheck{},
		Removed:     []Removal{},
	}

	// Extreme volatility overrides any profile: stand aside only
	if regimeOut.Regime.Volatility == models.VolatilityExtreme {
		rec.FallbackReason = g.fallbackReason(regimeOut, 0)
		rec.Strategies = []models.Strategy{NoTrade(rec.FallbackReason)}
		log.Debug().Str("symbol", snapshot.Symbol).Str("reason", rec.FallbackReason).Msg("Extreme volatility, fallback only")
		return rec, nil
	}

	var built []models.Strategy
	for _, c := range candidates {
		check := c.gate(g, snapshot, regimeOut.Regime)
		if !check.Passed {
			continue
		}
		rec.Eligibility = append(rec.Eligibility, check)
		built = append(built, c.build(g, snapshot, regimeOut))
	}

	survivors, removed := applyConstraints(built, profile)
	rec.Removed = append(rec.Removed, removed...)

	// Highest POP first; stable so construction order breaks ties
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].POP > survivors[j].POP
	})

	ranked := make([]models.Strategy, 0, g.config.MaxStrategies)
	if len(survivors) == 0 || len(regimeOut.DoNotTrade) > 0 || regimeOut.Regime.Confidence < g.config.FallbackConfidence {
		rec.FallbackReason = g.fallbackReason(regimeOut, len(survivors))
		ranked = append(ranked, NoTrade(rec.FallbackReason))
		log.Debug().Str("symbol", snapshot.Symbol).Str("reason", rec.FallbackReason).Msg("Capital preservation fallback prepended")
	}

	hasFallback := len(ranked) > 0
	for _, s := range survivors {
		if len(ranked) >= g.config.MaxStrategies {
			break
		}
		ranked = append(ranked, s)
	}
	for i := range ranked {
		switch {
		case ranked[i].IsNoTrade():
			ranked[i].Rank = 0
		case hasFallback:
			ranked[i].Rank = i
		default:
			ranked[i].Rank = i + 1
		}
	}
	rec.Strategies = ranked

	return rec, nil
}

func (g Generator) timestamp() time.Time {
	if g.now == nil {
		return time.Now().UTC()
	}
	return g.now().UTC()
}

func (g Generator) fallbackReason(out *regime.Output, survivors int) string {
	if len(out.DoNotTrade) > 0 {
		return out.DoNotTrade[0]
	}
	if out.Regime.Confidence < g.config.FallbackConfidence {
		return fmt.Sprintf("Regime confidence %.2f below %.2f: no reliable edge", out.Regime.Confidence, g.config.FallbackConfidence)
	}
	if survivors == 0 {
		return "No candidate structure satisfies the risk profile"
	}
	return "Low-confidence conditions"
}

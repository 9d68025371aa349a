package policy

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
)

// ReasonCode represents violation reason codes for clear error reporting
type ReasonCode string

const (
	ReasonMissingField ReasonCode = "MISSING_FIELD"
	ReasonOutOfRange   ReasonCode = "OUT_OF_RANGE"
	ReasonInvalidValue ReasonCode = "INVALID_VALUE"
)

// FieldError is a single violated field
type FieldError struct {
	Field   string     `json:"field"`
	Reason  ReasonCode `json:"reason"`
	Message string     `json:"message"`
}

// ValidationError lists every violation found on one input record. It is always
// fatal to the call that returned it.
type ValidationError struct {
	Component string       `json:"component"`
	Fields    []FieldError `json:"fields"`
}

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("[%s] invalid input: %s", e.Component, strings.Join(parts, "; "))
}

// Missing returns the names of the fields reported as missing
func (e ValidationError) Missing() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Reason == ReasonMissingField {
			names = append(names, f.Field)
		}
	}
	return names
}

// collector accumulates field violations for one component
type collector struct {
	component string
	fields    []FieldError
}

func (c *collector) missing(field string) {
	c.fields = append(c.fields, FieldError{
		Field:   field,
		Reason:  ReasonMissingField,
		Message: "required field is missing",
	})
}

func (c *collector) outOfRange(field string, value, lo, hi float64) {
	c.fields = append(c.fields, FieldError{
		Field:   field,
		Reason:  ReasonOutOfRange,
		Message: fmt.Sprintf("%.2f outside [%.0f, %.0f]", value, lo, hi),
	})
}

func (c *collector) invalid(field, message string) {
	c.fields = append(c.fields, FieldError{
		Field:   field,
		Reason:  ReasonInvalidValue,
		Message: message,
	})
}

func (c *collector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	log.Debug().
		Str("component", c.component).
		Int("violations", len(c.fields)).
		Msg("Input validation failed")
	return ValidationError{Component: c.component, Fields: c.fields}
}

// absent treats NaN as "never supplied" and a non-positive value as unusable
func absent(v float64) bool {
	return math.IsNaN(v) || v <= 0
}

// ValidateSnapshot checks the required market fields and the 0-100 IV ranges.
// Optional inputs (moving averages, volume profile) are not checked here.
func ValidateSnapshot(s *models.MarketSnapshot) error {
	c := &collector{component: "regime"}
	if s == nil {
		c.missing("snapshot")
		return c.err()
	}

	if strings.TrimSpace(s.Symbol) == "" {
		c.missing("symbol")
	}
	if absent(s.Price) {
		c.missing("price")
	}
	if absent(s.IV) {
		c.missing("iv")
	}
	checkPercentRange(c, "ivRank", s.IVRank)
	checkPercentRange(c, "ivPercentile", s.IVPercentile)

	return c.err()
}

func checkPercentRange(c *collector, field string, v float64) {
	switch {
	case math.IsNaN(v):
		c.missing(field)
	case v < 0 || v > 100:
		c.outOfRange(field, v, 0, 100)
	}
}

// ValidateProfile checks the user constraints required by strategy generation
func ValidateProfile(p *models.UserProfile) error {
	c := &collector{component: "strategy"}
	if p == nil {
		c.missing("profile")
		return c.err()
	}

	switch p.RiskTolerance {
	case "":
		c.missing("riskTolerance")
	case models.RiskConservative, models.RiskModerate, models.RiskAggressive:
	default:
		c.invalid("riskTolerance", fmt.Sprintf("unknown risk tolerance %q", p.RiskTolerance))
	}
	if absent(p.MaxLossPerTrade) {
		c.missing("maxLossPerTrade")
	}
	if absent(p.AccountSize) {
		c.missing("accountSize")
	}
	if p.MinPOP != nil && (*p.MinPOP < 0 || *p.MinPOP > 100) {
		c.outOfRange("minPOP", *p.MinPOP, 0, 100)
	}

	return c.err()
}

// ValidateTrade checks the open-position fields the monitor depends on
func ValidateTrade(t *models.Trade) error {
	c := &collector{component: "monitor"}
	if t == nil {
		c.missing("trade")
		return c.err()
	}

	if strings.TrimSpace(t.ID) == "" {
		c.missing("id")
	}
	if strings.TrimSpace(t.Strategy) == "" {
		c.missing("strategy")
	}
	if absent(t.MaxLoss) {
		c.missing("maxLoss")
	}
	if t.EntryRegime == nil {
		c.missing("entryRegime")
	}

	return c.err()
}

// ValidateRegime checks a caller-supplied regime record
func ValidateRegime(component string, r *models.RegimeAnalysis) error {
	c := &collector{component: component}
	if r == nil {
		c.missing("regime")
		return c.err()
	}
	if r.Volatility == "" {
		c.missing("regime.volatility")
	}
	if r.Structure == "" {
		c.missing("regime.structure")
	}
	if r.Direction == "" {
		c.missing("regime.direction")
	}
	if r.Confidence < 0 || r.Confidence > 1 || math.IsNaN(r.Confidence) {
		c.outOfRange("regime.confidence", r.Confidence, 0, 1)
	}
	return c.err()
}

// ValidateLifecycle checks the closed-trade record consumed by the autopsy
func ValidateLifecycle(l *models.TradeLifecycle) error {
	c := &collector{component: "autopsy"}
	if l == nil {
		c.missing("lifecycle")
		return c.err()
	}

	if l.Trade == nil {
		c.missing("trade")
	}
	if l.EntryRegime == nil {
		c.missing("entryRegime")
	}
	if l.ExitRegime == nil {
		c.missing("exitRegime")
	}
	if l.ActualPnL == nil {
		c.missing("actualPnL")
	}

	return c.err()
}

package models

import (
	"encoding/json"
	"math"
)

// Volatility buckets derived from IV rank and IV percentile
type Volatility string

const (
	VolatilityLow     Volatility = "low"
	VolatilityNormal  Volatility = "normal"
	VolatilityHigh    Volatility = "high"
	VolatilityExtreme Volatility = "extreme"
)

// Structure describes the price structure relative to the moving averages
type Structure string

const (
	StructureTrendingUp   Structure = "trending-up"
	StructureTrendingDown Structure = "trending-down"
	StructureRangeBound   Structure = "range-bound"
	StructureChoppy       Structure = "choppy"
)

// IsTrending reports whether the structure is either trending variant
func (s Structure) IsTrending() bool {
	return s == StructureTrendingUp || s == StructureTrendingDown
}

// Direction is the directional bias of the underlying
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Opposes reports whether two directions have opposite polarity. Neutral opposes nothing.
func (d Direction) Opposes(other Direction) bool {
	return (d == DirectionBullish && other == DirectionBearish) ||
		(d == DirectionBearish && other == DirectionBullish)
}

// MovingAverages holds the simple moving averages used for structure and direction
type MovingAverages struct {
	MA20  float64 `json:"ma20" yaml:"ma20"`
	MA50  float64 `json:"ma50" yaml:"ma50"`
	MA200 float64 `json:"ma200" yaml:"ma200"`
}

// VolumeProfile holds the traded-volume distribution summary
type VolumeProfile struct {
	POC           float64 `json:"poc" yaml:"poc"`
	ValueAreaHigh float64 `json:"valueAreaHigh" yaml:"valueAreaHigh"`
	ValueAreaLow  float64 `json:"valueAreaLow" yaml:"valueAreaLow"`
}

// MarketSnapshot is the immutable market input supplied fresh for every evaluation.
// Price, IV, IVRank and IVPercentile are required; NaN marks a value the caller never supplied.
type MarketSnapshot struct {
	Symbol         string          `json:"symbol"`
	Price          float64         `json:"price"`
	IV             float64         `json:"iv"`
	IVRank         float64         `json:"ivRank"`       // 0-100
	IVPercentile   float64         `json:"ivPercentile"` // 0-100
	DTE            int             `json:"dte"`
	High52w        float64         `json:"high52w"`
	Low52w         float64         `json:"low52w"`
	ATR            float64         `json:"atr"`
	MovingAverages *MovingAverages `json:"movingAverages,omitempty"`
	VolumeProfile  *VolumeProfile  `json:"volumeProfile,omitempty"`
}

// UnmarshalJSON marks absent required numeric fields as NaN so validation can
// tell "not supplied" apart from a legitimate zero IV rank.
func (s *MarketSnapshot) UnmarshalJSON(data []byte) error {
	type plain MarketSnapshot
	p := plain{
		Price:        math.NaN(),
		IV:           math.NaN(),
		IVRank:       math.NaN(),
		IVPercentile: math.NaN(),
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = MarketSnapshot(p)
	return nil
}

// RegimeAnalysis is the three-dimensional regime classification with its overall confidence
type RegimeAnalysis struct {
	Volatility Volatility `json:"volatility"`
	Structure  Structure  `json:"structure"`
	Direction  Direction  `json:"direction"`
	Confidence float64    `json:"confidence"` // 0.0-1.0
}

// ValueArea is the volume-profile band reported alongside the levels
type ValueArea struct {
	POC  float64 `json:"poc"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// MarketLevels lists up to three support and resistance levels, nearest first
type MarketLevels struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
	ValueArea  ValueArea `json:"valueArea"`
}

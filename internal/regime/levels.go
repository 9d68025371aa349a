package regime

import (
	"math"
	"sort"

	"github.com/sawpanic/optionsrun/internal/models"
)

// computeLevels derives support below price and resistance above it from the
// moving averages, the 52-week extremes and the value area.
func (c Classifier) computeLevels(s *models.MarketSnapshot) models.MarketLevels {
	price := s.Price
	var support, resistance []float64

	side := func(level float64) {
		if !usable(level) {
			return
		}
		if level < price {
			support = append(support, level)
		} else if level > price {
			resistance = append(resistance, level)
		}
	}

	if ma := s.MovingAverages; ma != nil {
		side(ma.MA20)
		side(ma.MA50)
		side(ma.MA200)
	}
	if usable(s.High52w) && s.High52w > price {
		resistance = append(resistance, s.High52w)
	}
	if usable(s.Low52w) && s.Low52w < price {
		support = append(support, s.Low52w)
	}

	var valueArea models.ValueArea
	if vp := s.VolumeProfile; vp != nil {
		valueArea = models.ValueArea{POC: vp.POC, High: vp.ValueAreaHigh, Low: vp.ValueAreaLow}
		if usable(vp.ValueAreaHigh) && vp.ValueAreaHigh > price {
			resistance = append(resistance, vp.ValueAreaHigh)
		}
		if usable(vp.ValueAreaLow) && vp.ValueAreaLow < price {
			support = append(support, vp.ValueAreaLow)
		}
	}

	return models.MarketLevels{
		Support:    nearest(support, price, c.config.MaxLevels),
		Resistance: nearest(resistance, price, c.config.MaxLevels),
		ValueArea:  valueArea,
	}
}

// nearest dedups at cent precision, orders by distance from price and caps the list
func nearest(levels []float64, price float64, limit int) []float64 {
	seen := make(map[int64]bool, len(levels))
	out := make([]float64, 0, len(levels))
	for _, l := range levels {
		key := int64(math.Round(l * 100))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i]-price) < math.Abs(out[j]-price)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

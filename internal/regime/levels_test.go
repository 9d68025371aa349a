package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionsrun/internal/models"
)

func TestComputeLevels_NiftyUptrend(t *testing.T) {
	out, err := NewClassifier(DefaultConfig()).Analyze(niftySnapshot())
	require.NoError(t, err)

	assert.Equal(t, []float64{25890, 25740, 25120}, out.Levels.Support, "nearest three, 52w low dropped by cap")
	assert.Equal(t, []float64{26277}, out.Levels.Resistance)
	assert.Equal(t, models.ValueArea{}, out.Levels.ValueArea)
}

func TestComputeLevels_ValueAreaSideConsistency(t *testing.T) {
	s := niftySnapshot()
	s.MovingAverages = nil
	s.VolumeProfile = &models.VolumeProfile{
		POC:           25800,
		ValueAreaHigh: 25900, // below price, must not become resistance
		ValueAreaLow:  25600,
	}

	out, err := NewClassifier(DefaultConfig()).Analyze(s)
	require.NoError(t, err)

	assert.Equal(t, []float64{25600, 21743}, out.Levels.Support)
	assert.Equal(t, []float64{26277}, out.Levels.Resistance)
	assert.Equal(t, models.ValueArea{POC: 25800, High: 25900, Low: 25600}, out.Levels.ValueArea)
}

func TestComputeLevels_DedupAndStrictSides(t *testing.T) {
	s := niftySnapshot()
	s.Price = 100
	s.High52w = 120
	s.Low52w = 80
	s.MovingAverages = &models.MovingAverages{MA20: 100, MA50: 110, MA200: 110.001}
	s.VolumeProfile = &models.VolumeProfile{POC: 100, ValueAreaHigh: 110, ValueAreaLow: 95}

	levels := NewClassifier(DefaultConfig()).computeLevels(s)

	assert.Equal(t, []float64{95, 80}, levels.Support)
	assert.Equal(t, []float64{110, 120}, levels.Resistance, "MA equal to price is neither side")
}

func TestComputeLevels_Invariants(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	prices := []float64{21000, 21750, 23000, 25100, 25800, 25925.95, 26000, 26300, 30000}
	for _, price := range prices {
		s := niftySnapshot()
		s.Price = price
		s.VolumeProfile = &models.VolumeProfile{POC: 25700, ValueAreaHigh: 26050, ValueAreaLow: 25400}

		levels := c.computeLevels(s)

		assert.LessOrEqual(t, len(levels.Support), 3)
		assert.LessOrEqual(t, len(levels.Resistance), 3)

		for i, l := range levels.Support {
			assert.Less(t, l, price)
			if i > 0 {
				assert.LessOrEqual(t, math.Abs(levels.Support[i-1]-price), math.Abs(l-price))
			}
		}
		for i, l := range levels.Resistance {
			assert.Greater(t, l, price)
			if i > 0 {
				assert.LessOrEqual(t, math.Abs(levels.Resistance[i-1]-price), math.Abs(l-price))
			}
		}
	}
}

func TestNearest(t *testing.T) {
	got := nearest([]float64{90, 100.5, 99.994, 95, 99.9949}, 101, 3)
	assert.Equal(t, []float64{100.5, 99.994, 95}, got)
	assert.Empty(t, nearest(nil, 100, 3))
}

package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"somo-backend/internal/model"
)

func TestInBounds(t *testing.T) {
	assert.True(t, InBounds(0, 0))
	assert.True(t, InBounds(Size-1, Size-1))
	assert.True(t, InBounds(24, 25))
	assert.False(t, InBounds(-1, 0))
	assert.False(t, InBounds(0, -1))
	assert.False(t, InBounds(Size, 0))
	assert.False(t, InBounds(0, Size))
}

func TestTierFor(t *testing.T) {
	// The four cells around the canvas center are legendary.
	for _, c := range [][2]int{{24, 24}, {24, 25}, {25, 24}, {25, 25}} {
		assert.Equal(t, model.TierLegendary, TierFor(c[0], c[1]), "cell %v", c)
	}

	// Corners are the farthest cells and always common.
	for _, c := range [][2]int{{0, 0}, {0, 49}, {49, 0}, {49, 49}} {
		assert.Equal(t, model.TierCommon, TierFor(c[0], c[1]), "cell %v", c)
	}

	// Band boundaries along the vertical through the center column.
	assert.Equal(t, model.TierLegendary, TierFor(25, 31))
	assert.Equal(t, model.TierEpic, TierFor(25, 32))
	assert.Equal(t, model.TierEpic, TierFor(25, 40))
	assert.Equal(t, model.TierRare, TierFor(25, 41))
	assert.Equal(t, model.TierRare, TierFor(0, 30))
	assert.Equal(t, model.TierCommon, TierFor(0, 31))
}

func TestTierForSymmetry(t *testing.T) {
	// Tier assignment is symmetric under the grid's reflections.
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			tier := TierFor(x, y)
			assert.Equal(t, tier, TierFor(Size-1-x, y))
			assert.Equal(t, tier, TierFor(x, Size-1-y))
			assert.Equal(t, tier, TierFor(y, x))
		}
	}
}

func TestPriceFor(t *testing.T) {
	assert.Equal(t, int64(1000), PriceFor(model.TierLegendary))
	assert.Equal(t, int64(500), PriceFor(model.TierEpic))
	assert.Equal(t, int64(250), PriceFor(model.TierRare))
	assert.Equal(t, int64(100), PriceFor(model.TierCommon))
	// Unknown tiers price as common.
	assert.Equal(t, int64(100), PriceFor(model.Tier("mythic")))
}

func TestCells(t *testing.T) {
	cells := Cells()
	require.Len(t, cells, PixelCount)

	seen := make(map[[2]int]struct{}, PixelCount)
	counts := make(map[model.Tier]int)
	for _, c := range cells {
		require.True(t, InBounds(c.X, c.Y))
		key := [2]int{c.X, c.Y}
		_, dup := seen[key]
		require.False(t, dup, "duplicate cell %v", key)
		seen[key] = struct{}{}

		assert.Equal(t, TierFor(c.X, c.Y), c.Tier)
		assert.Equal(t, PriceFor(c.Tier), c.Price)
		counts[c.Tier]++
	}

	// Every tier is represented and rarity ordering holds.
	for _, tier := range model.Tiers() {
		assert.Greater(t, counts[tier], 0, "tier %s missing from canvas", tier)
	}
	assert.Less(t, counts[model.TierLegendary], counts[model.TierEpic])
	assert.Less(t, counts[model.TierEpic], counts[model.TierRare])
}

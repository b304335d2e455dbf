// Package grid defines the canvas geometry: coordinate bounds, tier
// assignment and per-tier pricing.
package grid

import "somo-backend/internal/model"

const (
	// Size is the canvas edge length; coordinates run 0..Size-1.
	Size = 50
	// PixelCount is the total number of pixels on the canvas.
	PixelCount = Size * Size
)

// Tier distance bands, measured as Manhattan distance to the canvas center.
// The center of a 50x50 grid falls between cells, so distances are computed
// on a doubled grid to stay in integers.
const (
	legendaryMaxDist2 = 15  // |2x-49| + |2y-49| <= 15 -> legendary
	epicMaxDist2      = 33  // <= 33 -> epic
	rareMaxDist2      = 61  // <= 61 -> rare, beyond -> common
)

// Prices in CKB per tier.
const (
	PriceLegendary int64 = 1000
	PriceEpic      int64 = 500
	PriceRare      int64 = 250
	PriceCommon    int64 = 100
)

// InBounds reports whether (x, y) is a valid canvas coordinate.
func InBounds(x, y int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size
}

// TierFor returns the tier of coordinate (x, y).
func TierFor(x, y int) model.Tier {
	d := dist2(x, y)
	switch {
	case d <= legendaryMaxDist2:
		return model.TierLegendary
	case d <= epicMaxDist2:
		return model.TierEpic
	case d <= rareMaxDist2:
		return model.TierRare
	default:
		return model.TierCommon
	}
}

// PriceFor returns the fixed CKB price of a tier.
func PriceFor(t model.Tier) int64 {
	switch t {
	case model.TierLegendary:
		return PriceLegendary
	case model.TierEpic:
		return PriceEpic
	case model.TierRare:
		return PriceRare
	default:
		return PriceCommon
	}
}

// dist2 is twice the Manhattan distance from (x, y) to the grid center.
func dist2(x, y int) int {
	dx := 2*x - (Size - 1)
	if dx < 0 {
		dx = -dx
	}
	dy := 2*y - (Size - 1)
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Cell describes one pre-created pixel row.
type Cell struct {
	X     int
	Y     int
	Tier  model.Tier
	Price int64
}

// Cells enumerates every canvas cell with its tier and price, in row-major
// order. Used to seed the pixels table.
func Cells() []Cell {
	cells := make([]Cell, 0, PixelCount)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			t := TierFor(x, y)
			cells = append(cells, Cell{X: x, Y: y, Tier: t, Price: PriceFor(t)})
		}
	}
	return cells
}

package points

import (
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"somo-backend/internal/model"
)

var allTiers = []model.Tier{model.TierLegendary, model.TierEpic, model.TierRare, model.TierCommon}

// drawPixelSet generates a random claimed pixel set held by user 1, with mint
// times spread across and around the accrual window.
func drawPixelSet(t *rapid.T) []OwnedPixel {
	windowStart := accrualStart.Add(-30 * 24 * time.Hour)
	windowEnd := SnapshotCutoff.Add(30 * 24 * time.Hour)

	count := rapid.IntRange(1, 8).Draw(t, "pixelCount")
	pixels := make([]OwnedPixel, 0, count)
	for i := 0; i < count; i++ {
		mintedUnix := rapid.Int64Range(windowStart.Unix(), windowEnd.Unix()).Draw(t, "mintedAt")
		minted := time.Unix(mintedUnix, 0).UTC()
		tier := allTiers[rapid.IntRange(0, len(allTiers)-1).Draw(t, "tier")]
		minterID := int64(1)
		if rapid.Bool().Draw(t, "heldOnly") {
			minterID = 2
		}
		ownerID := int64(1)
		pixels = append(pixels, OwnedPixel{
			PixelID:    int64(i + 1),
			X:          i % 50,
			Y:          i / 50,
			Tier:       tier,
			Claimed:    true,
			MinterID:   &minterID,
			OwnerID:    &ownerID,
			MintedAt:   &minted,
			OwnerSince: &minted,
		})
	}
	return pixels
}

// TestComputeMonotonicProperty verifies that for any pixel set and any two
// ordered instants, the accrued total never decreases as time advances.
func TestComputeMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pixels := drawPixelSet(t)

		lo := accrualStart.Add(-24 * time.Hour).Unix()
		hi := SnapshotCutoff.Add(60 * 24 * time.Hour).Unix()
		t1 := rapid.Int64Range(lo, hi).Draw(t, "t1")
		t2 := rapid.Int64Range(lo, hi).Draw(t, "t2")
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		earlier := Compute(pixels, 1, time.Unix(t1, 0).UTC(), 0, nil)
		later := Compute(pixels, 1, time.Unix(t2, 0).UTC(), 0, nil)

		if later.TotalPoints < earlier.TotalPoints-1e-6 {
			t.Fatalf("total decreased over time: %f at t1 vs %f at t2", earlier.TotalPoints, later.TotalPoints)
		}
	})
}

// TestComputeFrozenAfterCutoffProperty verifies that any instant at or after
// the snapshot cutoff yields exactly the cutoff total and a zero daily rate.
func TestComputeFrozenAfterCutoffProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pixels := drawPixelSet(t)

		atCutoff := Compute(pixels, 1, SnapshotCutoff, 0, nil)

		offset := rapid.Int64Range(0, 365*24*3600).Draw(t, "offsetSeconds")
		after := Compute(pixels, 1, SnapshotCutoff.Add(time.Duration(offset)*time.Second), 0, nil)

		if math.Abs(after.TotalPoints-atCutoff.TotalPoints) > 1e-6 {
			t.Fatalf("total changed after cutoff: %f vs %f", atCutoff.TotalPoints, after.TotalPoints)
		}
		if after.DailyRate != 0 {
			t.Fatalf("daily rate nonzero after cutoff: %f", after.DailyRate)
		}
	})
}

// TestComputeBreakdownSumProperty verifies the per-pixel breakdown always
// sums to the reported totals.
func TestComputeBreakdownSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pixels := drawPixelSet(t)
		nowUnix := rapid.Int64Range(accrualStart.Unix(), SnapshotCutoff.Unix()).Draw(t, "now")
		level := rapid.IntRange(0, 150).Draw(t, "boostLevel")
		expiry := time.Unix(nowUnix, 0).Add(time.Hour)

		res := Compute(pixels, 1, time.Unix(nowUnix, 0).UTC(), level, &expiry)

		var sumPoints, sumRate float64
		for _, b := range res.Breakdown {
			sumPoints += b.Points
			sumRate += b.DailyRate
		}
		if math.Abs(sumPoints-res.TotalPoints) > 1e-6 {
			t.Fatalf("breakdown points sum %f != total %f", sumPoints, res.TotalPoints)
		}
		if math.Abs(sumRate-res.DailyRate) > 1e-6 {
			t.Fatalf("breakdown rate sum %f != daily rate %f", sumRate, res.DailyRate)
		}
	})
}

// TestEstimatedTokensFloorProperty verifies the token estimate is always the
// floor of total points over the conversion rate, and never negative.
func TestEstimatedTokensFloorProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pixels := drawPixelSet(t)
		nowUnix := rapid.Int64Range(accrualStart.Unix(), SnapshotCutoff.Unix()).Draw(t, "now")

		res := Compute(pixels, 1, time.Unix(nowUnix, 0).UTC(), 0, nil)

		if res.EstimatedTokens < 0 {
			t.Fatalf("negative token estimate: %d", res.EstimatedTokens)
		}
		want := int64(math.Floor(res.TotalPoints / PointsPerToken))
		if res.EstimatedTokens != want {
			t.Fatalf("token estimate %d, want floor %d of %f points", res.EstimatedTokens, want, res.TotalPoints)
		}
	})
}

// TestBoostMultiplierRangeProperty verifies the referral boost factor stays
// within [1.0, 2.0] for any level and expiry.
func TestBoostMultiplierRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Unix(rapid.Int64Range(0, 4_000_000_000).Draw(t, "now"), 0).UTC()
		level := rapid.IntRange(-10, 1000).Draw(t, "level")

		var expiry *time.Time
		if rapid.Bool().Draw(t, "hasExpiry") {
			offset := rapid.Int64Range(-86400, 86400).Draw(t, "expiryOffset")
			e := now.Add(time.Duration(offset) * time.Second)
			expiry = &e
		}

		boost := BoostMultiplier(level, expiry, now)
		if boost < 1.0 || boost > 2.0 {
			t.Fatalf("boost %f out of range for level=%d expiry=%v", boost, level, expiry)
		}
	})
}

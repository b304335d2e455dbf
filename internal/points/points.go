// Package points implements the governance point accrual engine. Compute is
// a pure function over a user's pixel set and a point in time, so totals can
// be recomputed by any number of concurrent readers and extrapolated
// client-side between refreshes.
package points

import (
	"math"
	"time"

	"somo-backend/internal/grid"
	"somo-backend/internal/model"
)

const (
	// ParticipantPool is the total governance point pool distributed over
	// the accrual window.
	ParticipantPool = 3_000_000_000.0

	// PointsPerToken converts accrued points to the token estimate.
	PointsPerToken = 1000.0

	hoursPerDay = 24.0
)

// accrualStart is the first day points can accrue.
var accrualStart = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)

// SnapshotCutoff is the instant accrual stops counting. Computing points at
// any later time yields exactly the cutoff total.
var SnapshotCutoff = time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

// monthMultipliers front-load the incentive: 2.0x through the launch months,
// tapering to 1.0x in the final month of the window. Days in months outside
// this table accrue nothing.
var monthMultipliers = map[string]float64{
	"2025-10": 2.0,
	"2025-11": 2.0,
	"2025-12": 2.0,
	"2026-01": 1.5,
	"2026-02": 1.25,
	"2026-03": 1.0,
}

// tierMultipliers scale the base rate by pixel rarity.
var tierMultipliers = map[model.Tier]float64{
	model.TierLegendary: 4.0,
	model.TierEpic:      2.5,
	model.TierRare:      1.5,
	model.TierCommon:    1.0,
}

const (
	minterMultiplier = 1.0
	holderMultiplier = 0.25

	// maxBoostLevel caps the referral boost at 2.0x.
	maxBoostLevel = 100
)

// basePointsPerDay is the pool divided evenly across every pixel-day of the
// accrual window, weighted by month multiplier.
var basePointsPerDay = func() float64 {
	var weightedDays float64
	for m := accrualStart; m.Before(SnapshotCutoff); m = m.AddDate(0, 1, 0) {
		days := m.AddDate(0, 1, 0).Sub(m).Hours() / hoursPerDay
		weightedDays += days * monthMultipliers[m.Format("2006-01")]
	}
	return ParticipantPool / (grid.PixelCount * weightedDays)
}()

// BasePointsPerDay returns the unweighted per-pixel daily rate.
func BasePointsPerDay() float64 {
	return basePointsPerDay
}

// MonthMultiplier returns the multiplier for the month containing t, or 0 if
// t falls outside the accrual window.
func MonthMultiplier(t time.Time) float64 {
	return monthMultipliers[t.UTC().Format("2006-01")]
}

// TierMultiplier returns the rarity multiplier of a tier.
func TierMultiplier(t model.Tier) float64 {
	if m, ok := tierMultipliers[t]; ok {
		return m
	}
	return tierMultipliers[model.TierCommon]
}

// OwnedPixel is the slice of pixel state the engine needs: tier, claim state
// and the two accrual anchors (minted_at for the minter rate, owner_since
// for the holder rate).
type OwnedPixel struct {
	PixelID    int64
	X          int
	Y          int
	Tier       model.Tier
	Claimed    bool
	MinterID   *int64
	OwnerID    *int64
	MintedAt   *time.Time
	OwnerSince *time.Time
}

// PixelPoints is the per-pixel accrual breakdown.
type PixelPoints struct {
	PixelID   int64      `json:"pixelId"`
	X         int        `json:"x"`
	Y         int        `json:"y"`
	Tier      model.Tier `json:"tier"`
	IsMinter  bool       `json:"isMinter"`
	Points    float64    `json:"points"`
	DailyRate float64    `json:"dailyRate"`
}

// Result is the accrual summary for one user at one instant.
type Result struct {
	TotalPoints      float64       `json:"totalPoints"`
	DailyRate        float64       `json:"dailyRate"`
	EstimatedTokens  int64         `json:"estimatedTokens"`
	PixelCount       int           `json:"pixelCount"`
	MinterPixelCount int           `json:"minterPixelCount"`
	HolderPixelCount int           `json:"holderPixelCount"`
	IsFounder        bool          `json:"isFounder"`
	Breakdown        []PixelPoints `json:"breakdown"`
}

// Compute walks each held pixel day by day from its accrual anchor to
// min(now, snapshot cutoff), pro-rating the first and current day so totals
// grow smoothly rather than jumping at midnight. The referral boost
// multiplies both the total and the forward daily rate while unexpired.
// Deterministic and side-effect free for identical inputs.
func Compute(pixels []OwnedPixel, userID int64, now time.Time, boostLevel int, boostExpiry *time.Time) Result {
	now = now.UTC()
	end := now
	if end.After(SnapshotCutoff) {
		end = SnapshotCutoff
	}
	today := utcMidnight(now)

	res := Result{Breakdown: make([]PixelPoints, 0, len(pixels))}

	for _, p := range pixels {
		if p.MintedAt == nil || !p.Claimed {
			continue
		}
		if p.OwnerID == nil || *p.OwnerID != userID {
			continue
		}

		isMinter := p.MinterID != nil && *p.MinterID == userID
		ownership := holderMultiplier
		start := p.MintedAt.UTC()
		if isMinter {
			ownership = minterMultiplier
			res.IsFounder = true
			res.MinterPixelCount++
		} else {
			res.HolderPixelCount++
			if p.OwnerSince != nil {
				start = p.OwnerSince.UTC()
			}
		}
		res.PixelCount++

		if start.After(end) {
			continue
		}

		tierMult := TierMultiplier(p.Tier)
		var accrued, rate float64

		endDay := utcMidnight(end)
		for day := utcMidnight(start); !day.After(endDay); day = day.AddDate(0, 0, 1) {
			monthMult, ok := monthMultipliers[day.Format("2006-01")]
			if !ok {
				continue
			}
			daily := basePointsPerDay * monthMult * tierMult * ownership

			winStart := day
			if start.After(winStart) {
				winStart = start
			}
			winEnd := day.AddDate(0, 0, 1)
			if end.Before(winEnd) {
				winEnd = end
			}
			if frac := winEnd.Sub(winStart).Hours() / hoursPerDay; frac > 0 {
				accrued += daily * frac
			}
			if day.Equal(today) {
				rate += daily
			}
		}

		res.TotalPoints += accrued
		res.DailyRate += rate
		res.Breakdown = append(res.Breakdown, PixelPoints{
			PixelID:   p.PixelID,
			X:         p.X,
			Y:         p.Y,
			Tier:      p.Tier,
			IsMinter:  isMinter,
			Points:    accrued,
			DailyRate: rate,
		})
	}

	if boost := BoostMultiplier(boostLevel, boostExpiry, now); boost > 1 {
		res.TotalPoints *= boost
		res.DailyRate *= boost
		for i := range res.Breakdown {
			res.Breakdown[i].Points *= boost
			res.Breakdown[i].DailyRate *= boost
		}
	}

	res.EstimatedTokens = int64(math.Floor(res.TotalPoints / PointsPerToken))
	return res
}

// BoostMultiplier returns the referral boost factor at the given instant:
// 1 + level/100, capped at level 100 (2.0x), and 1 once expired.
func BoostMultiplier(level int, expiry *time.Time, now time.Time) float64 {
	if level <= 0 || expiry == nil || !now.Before(*expiry) {
		return 1
	}
	if level > maxBoostLevel {
		level = maxBoostLevel
	}
	return 1 + float64(level)/100
}

func utcMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

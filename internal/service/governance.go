package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"somo-backend/internal/metrics"
	"somo-backend/internal/points"
	"somo-backend/internal/repository"
)

// GovernanceService answers "how many points/tokens has this wallet earned"
// by feeding the user's current holdings to the pure accrual engine. It
// performs no mutation and is safe for any number of concurrent readers.
type GovernanceService struct {
	userRepo  *repository.UserRepository
	pixelRepo *repository.PixelRepository
}

// NewGovernanceService creates a new GovernanceService instance.
func NewGovernanceService(userRepo *repository.UserRepository, pixelRepo *repository.PixelRepository) *GovernanceService {
	return &GovernanceService{userRepo: userRepo, pixelRepo: pixelRepo}
}

// PointsSummary is the governance query response.
type PointsSummary struct {
	Address          string               `json:"address"`
	AsOf             time.Time            `json:"asOf"`
	TotalPoints      float64              `json:"totalPoints"`
	DailyRate        float64              `json:"dailyRate"`
	EstimatedTokens  int64                `json:"estimatedTokens"`
	PixelCount       int                  `json:"pixelCount"`
	MinterPixelCount int                  `json:"minterPixelCount"`
	HolderPixelCount int                  `json:"holderPixelCount"`
	IsFounder        bool                 `json:"isFounder"`
	Breakdown        []points.PixelPoints `json:"breakdown"`
}

// Points computes the accrued governance points of a wallet at asOf.
// Unknown wallets get an empty summary rather than an error: a wallet that
// never minted simply has nothing accrued.
func (s *GovernanceService) Points(ctx context.Context, address string, asOf time.Time) (*PointsSummary, error) {
	timer := metrics.NewPointsComputeTimer()
	defer timer.ObserveDuration()

	user, err := s.userRepo.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &PointsSummary{Address: address, AsOf: asOf, Breakdown: []points.PixelPoints{}}, nil
		}
		return nil, err
	}

	pixels, err := s.pixelRepo.ListClaimedByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	owned := make([]points.OwnedPixel, 0, len(pixels))
	for _, p := range pixels {
		owned = append(owned, points.OwnedPixel{
			PixelID:    p.ID,
			X:          p.X,
			Y:          p.Y,
			Tier:       p.Tier,
			Claimed:    p.Claimed,
			MinterID:   p.MinterID,
			OwnerID:    p.OwnerID,
			MintedAt:   p.MintedAt,
			OwnerSince: p.OwnerSince,
		})
	}

	res := points.Compute(owned, user.ID, asOf, user.ReferralBoostLevel, user.ReferralBoostExpiresAt)

	return &PointsSummary{
		Address:          address,
		AsOf:             asOf,
		TotalPoints:      res.TotalPoints,
		DailyRate:        res.DailyRate,
		EstimatedTokens:  res.EstimatedTokens,
		PixelCount:       res.PixelCount,
		MinterPixelCount: res.MinterPixelCount,
		HolderPixelCount: res.HolderPixelCount,
		IsFounder:        res.IsFounder,
		Breakdown:        res.Breakdown,
	}, nil
}

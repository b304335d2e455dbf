// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"somo-backend/internal/grid"
	"somo-backend/internal/metrics"
	"somo-backend/internal/model"
	"somo-backend/internal/pkg/lock"
	"somo-backend/internal/points"
	"somo-backend/internal/repository"
)

// Broadcaster publishes fire-and-forget canvas events to connected UI
// sessions. Implementations must never block the caller.
type Broadcaster interface {
	Broadcast(event any)
}

// PixelEvent is the payload broadcast after a successful finalize, melt or
// transfer so open canvases refresh.
type PixelEvent struct {
	Type             string     `json:"type"`
	X                int        `json:"x"`
	Y                int        `json:"y"`
	Tier             model.Tier `json:"tier"`
	Address          string     `json:"address,omitempty"`
	TierMintNumber   *int64     `json:"tierMintNumber,omitempty"`
	GlobalMintNumber *int64     `json:"globalMintNumber,omitempty"`
}

// ClaimService orchestrates the claim workflow: reserve-or-reuse before the
// wallet builds the blockchain transaction, finalize after it succeeds, plus
// melt and transfer.
type ClaimService struct {
	ledger      *repository.LedgerRepository
	pixelRepo   *repository.PixelRepository
	userRepo    *repository.UserRepository
	broadcaster Broadcaster
	addressLock *lock.AddressLock
}

// NewClaimService creates a new ClaimService instance.
func NewClaimService(
	ledger *repository.LedgerRepository,
	pixelRepo *repository.PixelRepository,
	userRepo *repository.UserRepository,
	broadcaster Broadcaster,
) *ClaimService {
	return &ClaimService{
		ledger:      ledger,
		pixelRepo:   pixelRepo,
		userRepo:    userRepo,
		broadcaster: broadcaster,
		addressLock: lock.NewAddressLock(),
	}
}

// Prepare reserves mint numbers for a claim. Idempotent per user while the
// reservation is live: a retried wallet-signing flow gets the same numbers.
func (s *ClaimService) Prepare(ctx context.Context, x, y int, address string) (*model.Reservation, error) {
	if !grid.InBounds(x, y) {
		return nil, repository.ErrPixelNotFound
	}

	user, _, err := s.userRepo.GetOrCreate(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	// Serialize this wallet's claim flow within the process. The DB
	// constraint remains the authority across processes.
	s.addressLock.Lock(address)
	defer s.addressLock.Unlock(address)

	// One live mint per wallet, pre-checked here so the UI gets the
	// blocking coordinates before any counter is touched. The partial
	// unique index enforces the same rule at finalize.
	if live, err := s.pixelRepo.GetLiveMintByMinter(ctx, user.ID); err != nil {
		return nil, err
	} else if live != nil {
		metrics.ReservationsTotal.WithLabelValues("one_mint_per_wallet").Inc()
		return nil, &repository.OneMintPerWalletError{X: live.X, Y: live.Y}
	}

	res, err := s.ledger.Reserve(ctx, x, y, user.ID)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues(reserveResult(err)).Inc()
		return nil, err
	}

	metrics.ReservationsTotal.WithLabelValues("ok").Inc()
	log.Info().
		Int("x", x).Int("y", y).
		Str("address", address).
		Int64("tier_mint_number", res.TierMintNumber).
		Int64("global_mint_number", res.GlobalMintNumber).
		Bool("was_reserved", res.WasReserved).
		Msg("Pixel reserved")
	return res, nil
}

// Finalize commits a claim after the external transaction succeeded and
// broadcasts the canvas refresh event.
func (s *ClaimService) Finalize(ctx context.Context, x, y int, address, txHash, sporeID string, tierNum, globalNum int64) (*model.Pixel, error) {
	user, err := s.userRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	s.addressLock.Lock(address)
	defer s.addressLock.Unlock(address)

	pixel, err := s.ledger.Finalize(ctx, x, y, user.ID, txHash, sporeID, tierNum, globalNum)
	if err != nil {
		metrics.FinalizesTotal.WithLabelValues(finalizeResult(err)).Inc()
		return nil, err
	}

	metrics.FinalizesTotal.WithLabelValues("ok").Inc()

	// Influence is cumulative and tier-weighted; like spent CKB it is
	// never taken back by a later melt.
	if err := s.userRepo.AddInfluence(ctx, user.ID, points.TierMultiplier(pixel.Tier)); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to add influence")
	}

	log.Info().
		Int("x", x).Int("y", y).
		Str("address", address).
		Str("tx_hash", txHash).
		Msg("Pixel claim finalized")

	s.broadcast(PixelEvent{
		Type:             "pixel_claimed",
		X:                pixel.X,
		Y:                pixel.Y,
		Tier:             pixel.Tier,
		Address:          address,
		TierMintNumber:   pixel.TierMintNumber,
		GlobalMintNumber: pixel.GlobalMintNumber,
	})
	return pixel, nil
}

// Melt destroys the caller's claimed pixel, freeing their one-mint slot.
func (s *ClaimService) Melt(ctx context.Context, x, y int, address string) (*model.Pixel, error) {
	user, err := s.userRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	s.addressLock.Lock(address)
	defer s.addressLock.Unlock(address)

	pixel, err := s.ledger.Melt(ctx, x, y, user.ID)
	if err != nil {
		return nil, err
	}

	log.Info().Int("x", x).Int("y", y).Str("address", address).Msg("Pixel melted")

	s.broadcast(PixelEvent{
		Type: "pixel_melted",
		X:    pixel.X,
		Y:    pixel.Y,
		Tier: pixel.Tier,
	})
	return pixel, nil
}

// Transfer moves a claimed pixel to another wallet, creating the recipient's
// account if needed.
func (s *ClaimService) Transfer(ctx context.Context, x, y int, fromAddress, toAddress string) (*model.Pixel, error) {
	from, err := s.userRepo.GetByAddress(ctx, fromAddress)
	if err != nil {
		return nil, err
	}
	to, _, err := s.userRepo.GetOrCreate(ctx, toAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure recipient: %w", err)
	}

	s.addressLock.Lock(fromAddress)
	defer s.addressLock.Unlock(fromAddress)

	pixel, err := s.ledger.Transfer(ctx, x, y, from.ID, to.ID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("x", x).Int("y", y).
		Str("from", fromAddress).Str("to", toAddress).
		Msg("Pixel transferred")

	s.broadcast(PixelEvent{
		Type:    "pixel_transferred",
		X:       pixel.X,
		Y:       pixel.Y,
		Tier:    pixel.Tier,
		Address: toAddress,
	})
	return pixel, nil
}

func (s *ClaimService) broadcast(event PixelEvent) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(event)
	}
}

// reserveResult maps a Reserve error to a metric label.
func reserveResult(err error) string {
	switch {
	case errors.Is(err, repository.ErrPixelAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, repository.ErrReservationConflict):
		return "conflict"
	case errors.Is(err, repository.ErrPixelNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// finalizeResult maps a Finalize error to a metric label.
func finalizeResult(err error) string {
	var oneMint *repository.OneMintPerWalletError
	switch {
	case errors.Is(err, repository.ErrReservationExpired):
		return "expired"
	case errors.Is(err, repository.ErrMintNumberMismatch):
		return "mismatch"
	case errors.Is(err, repository.ErrPixelAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, repository.ErrPixelNotFound):
		return "not_found"
	case errors.As(err, &oneMint):
		return "one_mint_per_wallet"
	default:
		return "error"
	}
}

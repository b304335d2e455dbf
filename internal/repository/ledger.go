package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"somo-backend/internal/model"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// LedgerRepository owns per-pixel claim state and the mint sequences. Every
// mutation runs as one transaction: the pixel row lock is taken first, then
// the tier counter, then the global counter, so concurrent callers on the
// same pixel serialize on the row and callers on different pixels serialize
// only on the counters, always in the same order.
type LedgerRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewLedgerRepository creates a new LedgerRepository with the given
// reservation TTL.
func NewLedgerRepository(pool *pgxpool.Pool, ttl time.Duration) *LedgerRepository {
	return &LedgerRepository{pool: pool, ttl: ttl}
}

// TTL returns the reservation time-to-live.
func (r *LedgerRepository) TTL() time.Duration {
	return r.ttl
}

// lockPixel loads a pixel row FOR UPDATE inside the transaction. Any read
// used for a decision happens after this lock is held.
func lockPixel(ctx context.Context, tx pgx.Tx, x, y int) (*model.Pixel, error) {
	const query = `SELECT ` + pixelColumns + ` FROM pixels WHERE x = $1 AND y = $2 FOR UPDATE`

	p, err := scanPixel(tx.QueryRow(ctx, query, x, y))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPixelNotFound
		}
		return nil, fmt.Errorf("failed to lock pixel: %w", err)
	}
	return p, nil
}

// reservationLive reports whether a reservation taken at reservedAt still
// blocks other claimants at now.
func reservationLive(reservedAt *time.Time, now time.Time, ttl time.Duration) bool {
	return reservedAt != nil && now.Sub(*reservedAt) < ttl
}

// Reserve atomically assigns (or returns existing) mint numbers for a claim.
//
// Holding the pixel row lock it checks the claim and reservation state,
// assigns the permanent tier number (reusing a previously assigned one) and
// a fresh global number, and persists the reservation. A live reservation by
// the same user is echoed back unchanged so a retried wallet-signing flow
// sees identical numbers; a live reservation by anyone else fails with
// ErrReservationConflict. An expired reservation is silently replaced, its
// numbers abandoned.
func (r *LedgerRepository) Reserve(ctx context.Context, x, y int, userID int64) (*model.Reservation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPixel(ctx, tx, x, y)
	if err != nil {
		return nil, err
	}
	if p.Claimed {
		return nil, ErrPixelAlreadyClaimed
	}

	now := time.Now().UTC()
	if reservationLive(p.ReservedAt, now, r.ttl) {
		if p.ReservedByUserID == nil || *p.ReservedByUserID != userID {
			return nil, ErrReservationConflict
		}
		if p.ReservedTierMintNumber == nil || p.ReservedGlobalMintNumber == nil {
			return nil, fmt.Errorf("reservation on pixel %d has no mint numbers", p.ID)
		}
		// Idempotent re-preparation: same numbers, nothing written.
		return &model.Reservation{
			PixelID:          p.ID,
			X:                p.X,
			Y:                p.Y,
			Tier:             p.Tier,
			Price:            p.Price,
			TierMintNumber:   *p.ReservedTierMintNumber,
			GlobalMintNumber: *p.ReservedGlobalMintNumber,
			ReservedAt:       *p.ReservedAt,
			WasReserved:      true,
		}, nil
	}

	// The permanent tier number is assigned exactly once per coordinate.
	// If it is already set (mint, melt, re-reserve), it is authoritative
	// and the tier counter is not incremented again.
	var tierNum int64
	if p.TierMintNumber != nil {
		tierNum = *p.TierMintNumber
	} else {
		tierNum, err = nextCounterValue(ctx, tx, model.CounterForTier(p.Tier))
		if err != nil {
			return nil, err
		}
	}

	// The global counter advances on every reservation, even when the
	// tier number is reused.
	globalNum, err := nextCounterValue(ctx, tx, model.CounterGlobal)
	if err != nil {
		return nil, err
	}

	const update = `
		UPDATE pixels SET
			reserved_by_user_id = $2,
			reserved_at = $3,
			reserved_tier_mint_number = $4,
			reserved_global_mint_number = $5,
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update, p.ID, userID, now, tierNum, globalNum); err != nil {
		return nil, fmt.Errorf("failed to persist reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reserve: %w", err)
	}

	return &model.Reservation{
		PixelID:          p.ID,
		X:                p.X,
		Y:                p.Y,
		Tier:             p.Tier,
		Price:            p.Price,
		TierMintNumber:   tierNum,
		GlobalMintNumber: globalNum,
		ReservedAt:       now,
		WasReserved:      false,
	}, nil
}

// Finalize commits a claim after the blockchain transaction succeeded.
//
// The reported mint numbers must exactly equal the stored reservation; any
// mismatch fails with ErrMintNumberMismatch and is never corrected. The
// pixel update, the mint event record and the user stats refresh commit
// atomically, so mint numbers can never be consumed without an event record.
func (r *LedgerRepository) Finalize(ctx context.Context, x, y int, userID int64, txHash, sporeID string, tierNum, globalNum int64) (*model.Pixel, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPixel(ctx, tx, x, y)
	if err != nil {
		return nil, err
	}
	if p.Claimed {
		return nil, ErrPixelAlreadyClaimed
	}

	now := time.Now().UTC()
	if !reservationLive(p.ReservedAt, now, r.ttl) ||
		p.ReservedByUserID == nil || *p.ReservedByUserID != userID ||
		p.ReservedTierMintNumber == nil || p.ReservedGlobalMintNumber == nil {
		return nil, ErrReservationExpired
	}
	if *p.ReservedTierMintNumber != tierNum || *p.ReservedGlobalMintNumber != globalNum {
		return nil, ErrMintNumberMismatch
	}

	const update = `
		UPDATE pixels SET
			claimed = TRUE,
			owner_id = $2,
			minter_id = $2,
			owner_since = $3,
			minted_at = $3,
			spore_id = $4,
			tx_hash = $5,
			tier_mint_number = COALESCE(tier_mint_number, $6),
			global_mint_number = $7,
			reserved_by_user_id = NULL,
			reserved_at = NULL,
			reserved_tier_mint_number = NULL,
			reserved_global_mint_number = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + pixelColumns

	updated, err := scanPixel(tx.QueryRow(ctx, update, p.ID, userID, now, sporeID, txHash, tierNum, globalNum))
	if err != nil {
		if isUniqueViolation(err) {
			// One live mint per wallet, enforced by the partial index.
			// Roll back, then look up the blocking pixel for the error.
			_ = tx.Rollback(ctx)
			return nil, r.oneMintPerWalletError(ctx, userID)
		}
		return nil, fmt.Errorf("failed to finalize claim: %w", err)
	}

	err = insertMintEvent(ctx, tx, &model.MintEvent{
		PixelID:          updated.ID,
		UserID:           userID,
		EventType:        model.EventTypeMint,
		Tier:             updated.Tier,
		TierMintNumber:   updated.TierMintNumber,
		GlobalMintNumber: updated.GlobalMintNumber,
		TxHash:           &txHash,
		Price:            updated.Price,
	})
	if err != nil {
		return nil, err
	}

	if err := refreshUserStats(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit finalize: %w", err)
	}
	return updated, nil
}

// Melt destroys a claimed pixel's ownership, freeing the owner's one-mint
// slot. minter_id and both mint numbers are retained: they are immutable
// provenance required for governance eligibility.
func (r *LedgerRepository) Melt(ctx context.Context, x, y int, userID int64) (*model.Pixel, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin melt: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPixel(ctx, tx, x, y)
	if err != nil {
		return nil, err
	}
	if !p.Claimed {
		return nil, ErrPixelNotClaimed
	}
	if p.OwnerID == nil || *p.OwnerID != userID {
		return nil, ErrNotPixelOwner
	}

	const update = `
		UPDATE pixels SET
			claimed = FALSE,
			owner_id = NULL,
			owner_since = NULL,
			minted_at = NULL,
			spore_id = NULL,
			tx_hash = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + pixelColumns

	updated, err := scanPixel(tx.QueryRow(ctx, update, p.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to melt pixel: %w", err)
	}

	err = insertMintEvent(ctx, tx, &model.MintEvent{
		PixelID:          updated.ID,
		UserID:           userID,
		EventType:        model.EventTypeMelt,
		Tier:             updated.Tier,
		TierMintNumber:   updated.TierMintNumber,
		GlobalMintNumber: updated.GlobalMintNumber,
		TxHash:           p.TxHash,
		Price:            0,
	})
	if err != nil {
		return nil, err
	}

	if err := refreshUserStats(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit melt: %w", err)
	}
	return updated, nil
}

// Transfer moves ownership of a claimed pixel. Only owner_id and owner_since
// change; minter_id and the permanent mint numbers never do, so the sender's
// one-mint slot stays occupied until they melt.
func (r *LedgerRepository) Transfer(ctx context.Context, x, y int, fromID, toID int64) (*model.Pixel, error) {
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPixel(ctx, tx, x, y)
	if err != nil {
		return nil, err
	}
	if !p.Claimed {
		return nil, ErrPixelNotClaimed
	}
	if p.OwnerID == nil || *p.OwnerID != fromID {
		return nil, ErrNotPixelOwner
	}

	const update = `
		UPDATE pixels SET
			owner_id = $2,
			owner_since = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + pixelColumns

	updated, err := scanPixel(tx.QueryRow(ctx, update, p.ID, toID, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to transfer pixel: %w", err)
	}

	err = insertMintEvent(ctx, tx, &model.MintEvent{
		PixelID:          updated.ID,
		UserID:           toID,
		EventType:        model.EventTypeTransfer,
		Tier:             updated.Tier,
		TierMintNumber:   updated.TierMintNumber,
		GlobalMintNumber: updated.GlobalMintNumber,
		Price:            0,
	})
	if err != nil {
		return nil, err
	}

	if err := refreshUserStats(ctx, tx, fromID); err != nil {
		return nil, err
	}
	if err := refreshUserStats(ctx, tx, toID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	return updated, nil
}

// ClearExpired nulls out reservation fields older than the TTL. Hygienic
// only: expiry is also checked lazily on every Reserve, and the abandoned
// mint numbers are never reclaimed.
func (r *LedgerRepository) ClearExpired(ctx context.Context) (int64, error) {
	const query = `
		UPDATE pixels SET
			reserved_by_user_id = NULL,
			reserved_at = NULL,
			reserved_tier_mint_number = NULL,
			reserved_global_mint_number = NULL,
			updated_at = NOW()
		WHERE reserved_at IS NOT NULL AND reserved_at < $1 AND NOT claimed
	`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// oneMintPerWalletError builds the user-facing error carrying the blocking
// pixel's coordinates.
func (r *LedgerRepository) oneMintPerWalletError(ctx context.Context, userID int64) error {
	const query = `SELECT x, y FROM pixels WHERE minter_id = $1 AND claimed`

	var x, y int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&x, &y); err != nil {
		// The blocking row disappeared between rollback and lookup; the
		// violation itself is still authoritative.
		return &OneMintPerWalletError{X: -1, Y: -1}
	}
	return &OneMintPerWalletError{X: x, Y: y}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

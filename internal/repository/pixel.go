package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"somo-backend/internal/grid"
	"somo-backend/internal/model"
)

// pixelColumns is the full column list shared by every pixel query.
const pixelColumns = `
	id, x, y, tier, price, claimed,
	owner_id, minter_id, owner_since, minted_at,
	spore_id, tx_hash, tier_mint_number, global_mint_number,
	reserved_by_user_id, reserved_at, reserved_tier_mint_number, reserved_global_mint_number,
	updated_at`

// scanPixel scans one row in pixelColumns order.
func scanPixel(row pgx.Row) (*model.Pixel, error) {
	var p model.Pixel
	err := row.Scan(
		&p.ID, &p.X, &p.Y, &p.Tier, &p.Price, &p.Claimed,
		&p.OwnerID, &p.MinterID, &p.OwnerSince, &p.MintedAt,
		&p.SporeID, &p.TxHash, &p.TierMintNumber, &p.GlobalMintNumber,
		&p.ReservedByUserID, &p.ReservedAt, &p.ReservedTierMintNumber, &p.ReservedGlobalMintNumber,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PixelRepository handles pixel reads and canvas seeding. All claim-state
// mutation goes through LedgerRepository.
type PixelRepository struct {
	pool *pgxpool.Pool
}

// NewPixelRepository creates a new PixelRepository instance.
func NewPixelRepository(pool *pgxpool.Pool) *PixelRepository {
	return &PixelRepository{pool: pool}
}

// SeedCanvas pre-creates the full 50x50 grid. Existing coordinates are left
// untouched, so seeding is safe to run on every start.
func (r *PixelRepository) SeedCanvas(ctx context.Context) (int64, error) {
	const query = `
		INSERT INTO pixels (x, y, tier, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (x, y) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, c := range grid.Cells() {
		batch.Queue(query, c.X, c.Y, string(c.Tier), c.Price)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := 0; i < grid.PixelCount; i++ {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to seed canvas: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// GetByCoord retrieves a pixel by coordinate.
// Returns ErrPixelNotFound for coordinates outside the canvas.
func (r *PixelRepository) GetByCoord(ctx context.Context, x, y int) (*model.Pixel, error) {
	const query = `SELECT ` + pixelColumns + ` FROM pixels WHERE x = $1 AND y = $2`

	p, err := scanPixel(r.pool.QueryRow(ctx, query, x, y))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPixelNotFound
		}
		return nil, fmt.Errorf("failed to get pixel: %w", err)
	}
	return p, nil
}

// ListAll retrieves every pixel in row-major order. Used by the canvas
// snapshot endpoint.
func (r *PixelRepository) ListAll(ctx context.Context) ([]*model.Pixel, error) {
	const query = `SELECT ` + pixelColumns + ` FROM pixels ORDER BY y, x`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pixels: %w", err)
	}
	defer rows.Close()

	return collectPixels(rows)
}

// ListClaimedByOwner retrieves the claimed pixels currently held by a user,
// the input set of the governance point computation.
func (r *PixelRepository) ListClaimedByOwner(ctx context.Context, ownerID int64) ([]*model.Pixel, error) {
	const query = `SELECT ` + pixelColumns + ` FROM pixels WHERE owner_id = $1 AND claimed ORDER BY minted_at`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned pixels: %w", err)
	}
	defer rows.Close()

	return collectPixels(rows)
}

// GetLiveMintByMinter returns the claimed pixel a user minted, if any. This
// is the application-level half of the one-mint-per-wallet rule; the
// idx_pixels_one_live_mint index backs it at the storage layer.
func (r *PixelRepository) GetLiveMintByMinter(ctx context.Context, minterID int64) (*model.Pixel, error) {
	const query = `SELECT ` + pixelColumns + ` FROM pixels WHERE minter_id = $1 AND claimed`

	p, err := scanPixel(r.pool.QueryRow(ctx, query, minterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get live mint: %w", err)
	}
	return p, nil
}

// CountClaimed returns the number of currently claimed pixels.
func (r *PixelRepository) CountClaimed(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pixels WHERE claimed`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count claimed pixels: %w", err)
	}
	return count, nil
}

func collectPixels(rows pgx.Rows) ([]*model.Pixel, error) {
	var pixels []*model.Pixel
	for rows.Next() {
		p, err := scanPixel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pixel: %w", err)
		}
		pixels = append(pixels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pixels: %w", err)
	}
	return pixels, nil
}

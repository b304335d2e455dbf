package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"somo-backend/internal/model"
)

// MintEventRepository handles the append-only mint/melt/transfer log.
type MintEventRepository struct {
	pool *pgxpool.Pool
}

// NewMintEventRepository creates a new MintEventRepository instance.
func NewMintEventRepository(pool *pgxpool.Pool) *MintEventRepository {
	return &MintEventRepository{pool: pool}
}

// insertMintEvent appends an event inside the caller's transaction, so the
// pixel update and its event record commit or roll back together.
func insertMintEvent(ctx context.Context, tx pgx.Tx, e *model.MintEvent) error {
	const query = `
		INSERT INTO mint_events (pixel_id, user_id, event_type, tier, tier_mint_number, global_mint_number, tx_hash, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		e.PixelID, e.UserID, e.EventType, string(e.Tier),
		e.TierMintNumber, e.GlobalMintNumber, e.TxHash, e.Price,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", e.EventType, err)
	}
	return nil
}

// GetByPixel retrieves the event history of a pixel, newest first.
func (r *MintEventRepository) GetByPixel(ctx context.Context, pixelID int64, limit int) ([]*model.MintEvent, error) {
	const query = `
		SELECT id, pixel_id, user_id, event_type, tier, tier_mint_number, global_mint_number, tx_hash, price, created_at
		FROM mint_events
		WHERE pixel_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pixelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pixel events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// GetRecent retrieves the most recent events across the whole canvas.
func (r *MintEventRepository) GetRecent(ctx context.Context, limit int) ([]*model.MintEvent, error) {
	const query = `
		SELECT id, pixel_id, user_id, event_type, tier, tier_mint_number, global_mint_number, tx_hash, price, created_at
		FROM mint_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*model.MintEvent, error) {
	var events []*model.MintEvent
	for rows.Next() {
		var e model.MintEvent
		err := rows.Scan(
			&e.ID, &e.PixelID, &e.UserID, &e.EventType, &e.Tier,
			&e.TierMintNumber, &e.GlobalMintNumber, &e.TxHash, &e.Price, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

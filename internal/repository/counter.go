package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"somo-backend/internal/model"
)

// MintCounterRepository handles the monotonic mint sequences. Counter rows
// are created lazily on first increment.
type MintCounterRepository struct {
	pool *pgxpool.Pool
}

// NewMintCounterRepository creates a new MintCounterRepository instance.
func NewMintCounterRepository(pool *pgxpool.Pool) *MintCounterRepository {
	return &MintCounterRepository{pool: pool}
}

// nextCounterValue assigns the next value of a sequence inside the caller's
// transaction. The upsert takes the counter row lock, so concurrent
// increments for the same counter serialize and never duplicate a value.
func nextCounterValue(ctx context.Context, tx pgx.Tx, counterType string) (int64, error) {
	const query = `
		INSERT INTO mint_counters (counter_type, value, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (counter_type)
		DO UPDATE SET value = mint_counters.value + 1, updated_at = NOW()
		RETURNING value
	`

	var value int64
	if err := tx.QueryRow(ctx, query, counterType).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to increment %s counter: %w", counterType, err)
	}
	return value, nil
}

// Get retrieves the current value of a counter. Returns a zero-valued
// counter if it has never been incremented.
func (r *MintCounterRepository) Get(ctx context.Context, counterType string) (*model.MintCounter, error) {
	const query = `SELECT counter_type, value, updated_at FROM mint_counters WHERE counter_type = $1`

	var c model.MintCounter
	err := r.pool.QueryRow(ctx, query, counterType).Scan(&c.CounterType, &c.Value, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.MintCounter{CounterType: counterType}, nil
		}
		return nil, fmt.Errorf("failed to get counter: %w", err)
	}
	return &c, nil
}

// GetAll retrieves every counter, keyed by counter type.
func (r *MintCounterRepository) GetAll(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT counter_type, value FROM mint_counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]int64)
	for rows.Next() {
		var counterType string
		var value int64
		if err := rows.Scan(&counterType, &value); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		counters[counterType] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counters: %w", err)
	}
	return counters, nil
}

// Package repository provides data access layer implementations.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// RunMigrations creates the schema. Statements are idempotent so the server
// can run them on every start. Shared by tests.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	// Migration 1: users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			address VARCHAR(255) NOT NULL UNIQUE,
			influence DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_ckb BIGINT NOT NULL DEFAULT 0,
			pixel_count INT NOT NULL DEFAULT 0,
			is_founder BOOLEAN NOT NULL DEFAULT FALSE,
			referral_boost_level INT NOT NULL DEFAULT 0,
			referral_boost_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Debug().Msg("Migration 1: users table created")

	// Migration 2: pixels table. One row per coordinate, pre-created and
	// never deleted. minter_id, tier_mint_number and global_mint_number are
	// permanent once set; the reserved_* columns are an ephemeral lock.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pixels (
			id BIGSERIAL PRIMARY KEY,
			x INT NOT NULL,
			y INT NOT NULL,
			tier VARCHAR(16) NOT NULL,
			price BIGINT NOT NULL,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			owner_id BIGINT REFERENCES users(id),
			minter_id BIGINT REFERENCES users(id),
			owner_since TIMESTAMPTZ,
			minted_at TIMESTAMPTZ,
			spore_id TEXT,
			tx_hash TEXT,
			tier_mint_number BIGINT,
			global_mint_number BIGINT,
			reserved_by_user_id BIGINT REFERENCES users(id),
			reserved_at TIMESTAMPTZ,
			reserved_tier_mint_number BIGINT,
			reserved_global_mint_number BIGINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (x, y)
		);
		CREATE INDEX IF NOT EXISTS idx_pixels_owner ON pixels(owner_id) WHERE owner_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_pixels_reserved_at ON pixels(reserved_at) WHERE reserved_at IS NOT NULL;
	`)
	if err != nil {
		return err
	}
	log.Debug().Msg("Migration 2: pixels table created")

	// Migration 3: one live mint per wallet. Scoped to claimed rows so
	// melting frees the slot while minter_id provenance is retained.
	_, err = pool.Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_pixels_one_live_mint
			ON pixels(minter_id) WHERE claimed = TRUE;
	`)
	if err != nil {
		return err
	}
	log.Debug().Msg("Migration 3: live mint uniqueness index created")

	// Migration 4: mint counters, lazily created on first increment
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mint_counters (
			counter_type VARCHAR(16) PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Debug().Msg("Migration 4: mint_counters table created")

	// Migration 5: mint event log
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mint_events (
			id BIGSERIAL PRIMARY KEY,
			pixel_id BIGINT NOT NULL REFERENCES pixels(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			event_type VARCHAR(16) NOT NULL,
			tier VARCHAR(16) NOT NULL,
			tier_mint_number BIGINT,
			global_mint_number BIGINT,
			tx_hash TEXT,
			price BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_mint_events_pixel ON mint_events(pixel_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_mint_events_user ON mint_events(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Debug().Msg("Migration 5: mint_events table created")

	return nil
}

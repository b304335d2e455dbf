package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"somo-backend/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `
	id, address, influence, total_ckb, pixel_count, is_founder,
	referral_boost_level, referral_boost_expires_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Address, &u.Influence, &u.TotalCKB, &u.PixelCount, &u.IsFounder,
		&u.ReferralBoostLevel, &u.ReferralBoostExpiresAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserRepository handles user data persistence, keyed by wallet address.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create creates a new user for the given wallet address.
func (r *UserRepository) Create(ctx context.Context, address string) (*model.User, error) {
	const query = `
		INSERT INTO users (address, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by internal id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByAddress retrieves a user by wallet address.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByAddress(ctx context.Context, address string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE address = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetOrCreate retrieves a user by address, creating one if it doesn't exist.
// Returns the user and whether it was newly created.
func (r *UserRepository) GetOrCreate(ctx context.Context, address string) (*model.User, bool, error) {
	user, err := r.GetByAddress(ctx, address)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, address)
	if err != nil {
		// Handle race condition: another request might have created the user
		user, err = r.GetByAddress(ctx, address)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// SetReferralBoost sets a user's referral boost level and expiry.
func (r *UserRepository) SetReferralBoost(ctx context.Context, id int64, level int, expiresAt time.Time) (*model.User, error) {
	const query = `
		UPDATE users
		SET referral_boost_level = $2, referral_boost_expires_at = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query, id, level, expiresAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set referral boost: %w", err)
	}
	return u, nil
}

// AddInfluence adds governance influence to a user's running total.
func (r *UserRepository) AddInfluence(ctx context.Context, id int64, amount float64) error {
	const query = `UPDATE users SET influence = influence + $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to add influence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// refreshUserStats recomputes the derived columns of a user inside the
// caller's transaction: held pixel count, cumulative spent CKB and the
// founder flag (currently owning at least one self-minted pixel).
func refreshUserStats(ctx context.Context, tx pgx.Tx, userID int64) error {
	const query = `
		UPDATE users SET
			pixel_count = (SELECT COUNT(*) FROM pixels WHERE owner_id = $1 AND claimed),
			total_ckb = COALESCE((SELECT SUM(price) FROM mint_events WHERE user_id = $1 AND event_type = 'mint'), 0),
			is_founder = EXISTS (SELECT 1 FROM pixels WHERE owner_id = $1 AND minter_id = $1 AND claimed),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to refresh user stats: %w", err)
	}
	return nil
}

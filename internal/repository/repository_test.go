// Package repository tests use testcontainers-go to spin up a PostgreSQL
// container, mirroring the production schema via RunMigrations.
package repository

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"somo-backend/internal/grid"
	"somo-backend/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container, applies migrations and seeds
// the canvas. Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	seeded, err := NewPixelRepository(pool).SeedCanvas(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(grid.PixelCount), seeded)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// createTestUser registers a wallet address and returns the user.
func createTestUser(t *testing.T, pool *pgxpool.Pool, address string) *model.User {
	t.Helper()
	user, err := NewUserRepository(pool).Create(context.Background(), address)
	require.NoError(t, err)
	return user
}

// backdateReservation shifts a pixel's reserved_at into the past to simulate
// TTL expiry without sleeping.
func backdateReservation(t *testing.T, pool *pgxpool.Pool, x, y int, by time.Duration) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`UPDATE pixels SET reserved_at = reserved_at - $3::interval WHERE x = $1 AND y = $2`,
		x, y, fmt.Sprintf("%f seconds", by.Seconds()))
	require.NoError(t, err)
}

// pixelsOfTier returns the first n coordinates of a tier in seed order.
func pixelsOfTier(t *testing.T, pool *pgxpool.Pool, tier model.Tier, n int) [][2]int {
	t.Helper()
	rows, err := pool.Query(context.Background(),
		`SELECT x, y FROM pixels WHERE tier = $1 ORDER BY id LIMIT $2`, tier, n)
	require.NoError(t, err)
	defer rows.Close()

	var coords [][2]int
	for rows.Next() {
		var x, y int
		require.NoError(t, rows.Scan(&x, &y))
		coords = append(coords, [2]int{x, y})
	}
	require.NoError(t, rows.Err())
	require.Len(t, coords, n)
	return coords
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, "ckb1qtestaddress1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ckb1qtestaddress1", user.Address)
	assert.Zero(t, user.PixelCount)
	assert.False(t, user.IsFounder)

	again, created, err := repo.GetOrCreate(ctx, "ckb1qtestaddress1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
}

func TestUserRepository_GetByAddress(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	created := createTestUser(t, pool, "ckb1qlookup")

	user, err := repo.GetByAddress(ctx, "ckb1qlookup")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ckb1qlookup", byID.Address)

	_, err = repo.GetByAddress(ctx, "ckb1qnobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.GetByID(ctx, 999999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_SetReferralBoost(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, "ckb1qboosted")
	expires := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)

	updated, err := repo.SetReferralBoost(ctx, user.ID, 42, expires)
	require.NoError(t, err)
	assert.Equal(t, 42, updated.ReferralBoostLevel)
	require.NotNil(t, updated.ReferralBoostExpiresAt)
	assert.WithinDuration(t, expires, *updated.ReferralBoostExpiresAt, time.Second)

	_, err = repo.SetReferralBoost(ctx, 999999, 1, expires)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_AddInfluence(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, "ckb1qinfluence")
	require.NoError(t, repo.AddInfluence(ctx, user.ID, 12.5))
	require.NoError(t, repo.AddInfluence(ctx, user.ID, 7.5))

	updated, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, updated.Influence, 1e-9)
}

// ============================================================================
// PixelRepository Tests
// ============================================================================

func TestPixelRepository_SeedCanvasIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPixelRepository(pool)
	ctx := context.Background()

	// setupTestDB already seeded; a second pass inserts nothing.
	seeded, err := repo.SeedCanvas(ctx)
	require.NoError(t, err)
	assert.Zero(t, seeded)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, grid.PixelCount)

	claimed, err := repo.CountClaimed(ctx)
	require.NoError(t, err)
	assert.Zero(t, claimed)
}

func TestPixelRepository_GetByCoord(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPixelRepository(pool)
	ctx := context.Background()

	center, err := repo.GetByCoord(ctx, 24, 24)
	require.NoError(t, err)
	assert.Equal(t, model.TierLegendary, center.Tier)
	assert.Equal(t, grid.PriceLegendary, center.Price)
	assert.False(t, center.Claimed)
	assert.Nil(t, center.OwnerID)

	corner, err := repo.GetByCoord(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, model.TierCommon, corner.Tier)
	assert.Equal(t, grid.PriceCommon, corner.Price)

	_, err = repo.GetByCoord(ctx, 99, 99)
	assert.ErrorIs(t, err, ErrPixelNotFound)
}

func TestPixelRepository_GetLiveMintByMinter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	pixelRepo := NewPixelRepository(pool)
	ledger := NewLedgerRepository(pool, 5*time.Minute)
	ctx := context.Background()

	user := createTestUser(t, pool, "ckb1qminter")

	live, err := pixelRepo.GetLiveMintByMinter(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, live)

	res, err := ledger.Reserve(ctx, 3, 3, user.ID)
	require.NoError(t, err)
	_, err = ledger.Finalize(ctx, 3, 3, user.ID, "0xabc", "spore-1", res.TierMintNumber, res.GlobalMintNumber)
	require.NoError(t, err)

	live, err = pixelRepo.GetLiveMintByMinter(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, 3, live.X)
	assert.Equal(t, 3, live.Y)

	// After melt the wallet has no live mint again.
	_, err = ledger.Melt(ctx, 3, 3, user.ID)
	require.NoError(t, err)

	live, err = pixelRepo.GetLiveMintByMinter(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, live)
}

// ============================================================================
// MintCounterRepository Tests
// ============================================================================

func TestMintCounterRepository_Get(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMintCounterRepository(pool)
	ledger := NewLedgerRepository(pool, 5*time.Minute)
	ctx := context.Background()

	// Counters are lazily created; before any reservation they read zero.
	counter, err := repo.Get(ctx, model.CounterGlobal)
	require.NoError(t, err)
	assert.Zero(t, counter.Value)

	user := createTestUser(t, pool, "ckb1qcounter")
	res, err := ledger.Reserve(ctx, 0, 0, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.GlobalMintNumber)
	assert.Equal(t, int64(1), res.TierMintNumber)

	counter, err = repo.Get(ctx, model.CounterGlobal)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter.Value)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), all[model.CounterGlobal])
	assert.Equal(t, int64(1), all[model.CounterForTier(model.TierCommon)])
}

package service

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"somo-backend/internal/repository"
)

// setupTestStack spins up a PostgreSQL container and builds the full claim
// stack on top of it. Skips the test if Docker is not available.
func setupTestStack(t *testing.T) (*ClaimService, *GovernanceService, *captureBroadcaster, *pgxpool.Pool, func()) {
	if err := exec.Command("docker", "info").Run(); err != nil {
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

	require.NoError(t, repository.RunMigrations(ctx, pool))
	pixelRepo := repository.NewPixelRepository(pool)
	_, err = pixelRepo.SeedCanvas(ctx)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(pool)
	ledger := repository.NewLedgerRepository(pool, 5*time.Minute)
	broadcaster := &captureBroadcaster{}

	claims := NewClaimService(ledger, pixelRepo, userRepo, broadcaster)
	governance := NewGovernanceService(userRepo, pixelRepo)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return claims, governance, broadcaster, pool, cleanup
}

func TestClaimService_FullClaimFlow(t *testing.T) {
	claims, _, broadcaster, pool, cleanup := setupTestStack(t)
	defer cleanup()

	ctx := context.Background()
	const wallet = "ckb1qflowwallet"

	// Prepare creates the account implicitly and assigns numbers.
	res, err := claims.Prepare(ctx, 5, 49, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.GlobalMintNumber)
	assert.False(t, res.WasReserved)

	// A retry while the reservation is live echoes the same numbers.
	echo, err := claims.Prepare(ctx, 5, 49, wallet)
	require.NoError(t, err)
	assert.True(t, echo.WasReserved)
	assert.Equal(t, res.TierMintNumber, echo.TierMintNumber)

	pixel, err := claims.Finalize(ctx, 5, 49, wallet, "0xabc", "spore-5", res.TierMintNumber, res.GlobalMintNumber)
	require.NoError(t, err)
	assert.True(t, pixel.Claimed)

	// Minting grants tier-weighted influence.
	user, err := repository.NewUserRepository(pool).GetByAddress(ctx, wallet)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, user.Influence, 1e-9)

	// The canvas refresh event went out.
	require.Len(t, broadcaster.events, 1)
	event, ok := broadcaster.events[0].(PixelEvent)
	require.True(t, ok)
	assert.Equal(t, "pixel_claimed", event.Type)
	assert.Equal(t, 5, event.X)
	assert.Equal(t, wallet, event.Address)
}

func TestClaimService_PrepareBlocksSecondLiveMint(t *testing.T) {
	claims, _, _, _, cleanup := setupTestStack(t)
	defer cleanup()

	ctx := context.Background()
	const wallet = "ckb1qonewallet"

	res, err := claims.Prepare(ctx, 6, 49, wallet)
	require.NoError(t, err)
	_, err = claims.Finalize(ctx, 6, 49, wallet, "0xaaa", "spore-6", res.TierMintNumber, res.GlobalMintNumber)
	require.NoError(t, err)

	// With a live mint, a second prepare is rejected with the blocking
	// coordinate before any counter is touched.
	_, err = claims.Prepare(ctx, 7, 49, wallet)
	var oneMint *repository.OneMintPerWalletError
	require.ErrorAs(t, err, &oneMint)
	assert.Equal(t, 6, oneMint.X)
	assert.Equal(t, 49, oneMint.Y)

	// A transfer does not free the slot.
	_, err = claims.Transfer(ctx, 6, 49, wallet, "ckb1qrecipient")
	require.NoError(t, err)
	_, err = claims.Prepare(ctx, 7, 49, wallet)
	require.ErrorAs(t, err, &oneMint)

	// Only melting the pixel frees the minter's slot, and after the
	// transfer only the current owner can melt it.
	_, err = claims.Melt(ctx, 6, 49, "ckb1qrecipient")
	require.NoError(t, err)

	fresh, err := claims.Prepare(ctx, 7, 49, wallet)
	require.NoError(t, err)
	assert.False(t, fresh.WasReserved)
}

func TestClaimService_MeltAndTransferEvents(t *testing.T) {
	claims, _, broadcaster, _, cleanup := setupTestStack(t)
	defer cleanup()

	ctx := context.Background()

	res, err := claims.Prepare(ctx, 8, 49, "ckb1qeventwallet")
	require.NoError(t, err)
	_, err = claims.Finalize(ctx, 8, 49, "ckb1qeventwallet", "0xbbb", "spore-8", res.TierMintNumber, res.GlobalMintNumber)
	require.NoError(t, err)

	_, err = claims.Transfer(ctx, 8, 49, "ckb1qeventwallet", "ckb1qnewowner")
	require.NoError(t, err)

	_, err = claims.Melt(ctx, 8, 49, "ckb1qnewowner")
	require.NoError(t, err)

	require.Len(t, broadcaster.events, 3)
	types := make([]string, 0, 3)
	for _, e := range broadcaster.events {
		types = append(types, e.(PixelEvent).Type)
	}
	assert.Equal(t, []string{"pixel_claimed", "pixel_transferred", "pixel_melted"}, types)
}

func TestGovernanceService_Points(t *testing.T) {
	claims, governance, _, pool, cleanup := setupTestStack(t)
	defer cleanup()

	ctx := context.Background()
	const wallet = "ckb1qpointswallet"

	// Unknown wallets get an empty summary, not an error.
	empty, err := governance.Points(ctx, "ckb1qnobody", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, empty.TotalPoints)
	assert.Zero(t, empty.PixelCount)
	assert.NotNil(t, empty.Breakdown)

	res, err := claims.Prepare(ctx, 9, 49, wallet)
	require.NoError(t, err)
	_, err = claims.Finalize(ctx, 9, 49, wallet, "0xccc", "spore-9", res.TierMintNumber, res.GlobalMintNumber)
	require.NoError(t, err)

	// Backdate the mint into the accrual window so points accrue.
	mintedAt := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	_, err = pool.Exec(ctx,
		`UPDATE pixels SET minted_at = $1, owner_since = $1 WHERE x = 9 AND y = 49`, mintedAt)
	require.NoError(t, err)

	summary, err := governance.Points(ctx, wallet, time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Greater(t, summary.TotalPoints, 0.0)
	assert.Greater(t, summary.DailyRate, 0.0)
	assert.Equal(t, 1, summary.PixelCount)
	assert.Equal(t, 1, summary.MinterPixelCount)
	assert.True(t, summary.IsFounder)
	require.Len(t, summary.Breakdown, 1)
	assert.True(t, summary.Breakdown[0].IsMinter)
}

// Package model defines the data models for the SoMo pixel canvas backend.
package model

import "time"

// Tier is the rarity band of a pixel, fixed at canvas creation from the
// coordinate's distance to the grid center.
type Tier string

const (
	TierLegendary Tier = "legendary"
	TierEpic      Tier = "epic"
	TierRare      Tier = "rare"
	TierCommon    Tier = "common"
)

// Tiers lists all tiers from rarest to most common.
func Tiers() []Tier {
	return []Tier{TierLegendary, TierEpic, TierRare, TierCommon}
}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierLegendary, TierEpic, TierRare, TierCommon:
		return true
	}
	return false
}

// User represents a wallet-addressed account.
type User struct {
	ID                     int64      `db:"id"`
	Address                string     `db:"address"`
	Influence              float64    `db:"influence"`
	TotalCKB               int64      `db:"total_ckb"`
	PixelCount             int        `db:"pixel_count"`
	IsFounder              bool       `db:"is_founder"`
	ReferralBoostLevel     int        `db:"referral_boost_level"`
	ReferralBoostExpiresAt *time.Time `db:"referral_boost_expires_at"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

// Pixel represents one coordinate on the 50x50 canvas. All 2500 rows are
// pre-created and never deleted; claim state and ownership change over time,
// while minter_id, tier_mint_number and global_mint_number are permanent
// provenance once assigned.
type Pixel struct {
	ID      int64 `db:"id"`
	X       int   `db:"x"`
	Y       int   `db:"y"`
	Tier    Tier  `db:"tier"`
	Price   int64 `db:"price"`
	Claimed bool  `db:"claimed"`

	OwnerID    *int64     `db:"owner_id"`
	MinterID   *int64     `db:"minter_id"`
	OwnerSince *time.Time `db:"owner_since"`
	MintedAt   *time.Time `db:"minted_at"`

	SporeID *string `db:"spore_id"`
	TxHash  *string `db:"tx_hash"`

	TierMintNumber   *int64 `db:"tier_mint_number"`
	GlobalMintNumber *int64 `db:"global_mint_number"`

	// Ephemeral reservation lock, live for the reservation TTL.
	ReservedByUserID         *int64     `db:"reserved_by_user_id"`
	ReservedAt               *time.Time `db:"reserved_at"`
	ReservedTierMintNumber   *int64     `db:"reserved_tier_mint_number"`
	ReservedGlobalMintNumber *int64     `db:"reserved_global_mint_number"`

	UpdatedAt time.Time `db:"updated_at"`
}

// Reservation is the result of a reserve-or-reuse call: the provisional mint
// numbers the caller embeds in the blockchain transaction it builds next.
type Reservation struct {
	PixelID          int64
	X                int
	Y                int
	Tier             Tier
	Price            int64
	TierMintNumber   int64
	GlobalMintNumber int64
	ReservedAt       time.Time
	// WasReserved is true when the caller already held a live reservation
	// and the previously assigned numbers were returned unchanged.
	WasReserved bool
}

// CounterGlobal is the counter type of the global mint sequence, which
// advances on every successful mint regardless of tier.
const CounterGlobal = "global"

// CounterForTier returns the counter type key of a tier's sequence.
func CounterForTier(t Tier) string {
	return string(t)
}

// MintCounter is a monotonically increasing sequence row, lazily created on
// first increment.
type MintCounter struct {
	CounterType string    `db:"counter_type"`
	Value       int64     `db:"value"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// MintEvent is an append-only log entry for mint, melt and transfer events.
type MintEvent struct {
	ID               int64     `db:"id"`
	PixelID          int64     `db:"pixel_id"`
	UserID           int64     `db:"user_id"`
	EventType        string    `db:"event_type"`
	Tier             Tier      `db:"tier"`
	TierMintNumber   *int64    `db:"tier_mint_number"`
	GlobalMintNumber *int64    `db:"global_mint_number"`
	TxHash           *string   `db:"tx_hash"`
	Price            int64     `db:"price"`
	CreatedAt        time.Time `db:"created_at"`
}

// Event types for the mint_events log.
const (
	EventTypeMint     = "mint"
	EventTypeMelt     = "melt"
	EventTypeTransfer = "transfer"
)

package repository

import (
	"errors"
	"fmt"
)

// Ledger errors. All are detected inside the respective transaction and
// surfaced to the caller typed; none are silently swallowed.
var (
	// ErrPixelNotFound means the coordinate is outside the canvas or the
	// row is missing. Fatal to the request.
	ErrPixelNotFound = errors.New("pixel not found")

	// ErrPixelAlreadyClaimed means the pixel is live-minted. The caller
	// must pick another pixel.
	ErrPixelAlreadyClaimed = errors.New("pixel already claimed")

	// ErrPixelNotClaimed means a melt or transfer targeted an unclaimed
	// pixel.
	ErrPixelNotClaimed = errors.New("pixel not claimed")

	// ErrNotPixelOwner means the caller does not currently own the pixel.
	ErrNotPixelOwner = errors.New("pixel not owned by caller")

	// ErrSelfTransfer means source and destination wallets are the same.
	ErrSelfTransfer = errors.New("cannot transfer pixel to self")

	// ErrReservationConflict means another user holds a live reservation.
	// Recoverable: retry after the TTL elapses.
	ErrReservationConflict = errors.New("pixel reserved by another user")

	// ErrReservationExpired means finalize found no live reservation held
	// by the caller. The caller must re-run preparation.
	ErrReservationExpired = errors.New("reservation missing or expired")

	// ErrMintNumberMismatch means finalize reported numbers that disagree
	// with the stored reservation. Treated as tampering, never corrected.
	ErrMintNumberMismatch = errors.New("reported mint numbers do not match reservation")
)

// OneMintPerWalletError means the caller already has a live minted pixel.
// It carries the blocking pixel's coordinates so the UI can guide the user
// to melt it first.
type OneMintPerWalletError struct {
	X int
	Y int
}

func (e *OneMintPerWalletError) Error() string {
	return fmt.Sprintf("wallet already has a live minted pixel at (%d, %d)", e.X, e.Y)
}

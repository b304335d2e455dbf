package repository

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestReservationLiveProperty verifies the expiry predicate: a reservation
// blocks other claimants exactly while its age is under the TTL, and a pixel
// with no reservation never blocks.
func TestReservationLiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Unix(rapid.Int64Range(1_600_000_000, 2_000_000_000).Draw(t, "now"), 0).UTC()
		ttlSeconds := rapid.Int64Range(1, 3600).Draw(t, "ttlSeconds")
		ttl := time.Duration(ttlSeconds) * time.Second

		if reservationLive(nil, now, ttl) {
			t.Fatal("nil reservation reported live")
		}

		ageSeconds := rapid.Int64Range(-3600, 7200).Draw(t, "ageSeconds")
		reservedAt := now.Add(-time.Duration(ageSeconds) * time.Second)

		live := reservationLive(&reservedAt, now, ttl)
		wantLive := ageSeconds < ttlSeconds
		if live != wantLive {
			t.Fatalf("reservation aged %ds with ttl %ds: live=%v, want %v", ageSeconds, ttlSeconds, live, wantLive)
		}
	})
}

// TestReservationLiveBoundary pins the boundary: a reservation exactly
// TTL old is expired.
func TestReservationLiveBoundary(t *testing.T) {
	now := time.Now().UTC()
	ttl := 5 * time.Minute

	exact := now.Add(-ttl)
	if reservationLive(&exact, now, ttl) {
		t.Fatal("reservation exactly TTL old should be expired")
	}

	justInside := now.Add(-ttl + time.Nanosecond)
	if !reservationLive(&justInside, now, ttl) {
		t.Fatal("reservation just under TTL should be live")
	}
}

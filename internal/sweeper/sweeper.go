// Package sweeper runs the periodic cleanup of expired pixel reservations.
// The sweep is hygienic: expiry is also checked lazily on every reservation
// attempt, so correctness never depends on it running.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"somo-backend/internal/metrics"
	"somo-backend/internal/repository"
)

// Sweeper clears expired reservation fields on a schedule.
type Sweeper struct {
	ledger   *repository.LedgerRepository
	interval time.Duration
	cron     *cron.Cron
}

// New creates a Sweeper clearing expired reservations every interval.
func New(ledger *repository.LedgerRepository, interval time.Duration) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule reservation sweep: %w", err)
	}
	s.cron.Start()
	log.Info().Dur("interval", s.interval).Msg("Reservation sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Reservation sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cleared, err := s.ledger.ClearExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear expired reservations")
		return
	}
	if cleared > 0 {
		metrics.ExpiredReservationsCleared.Add(float64(cleared))
		log.Info().Int64("cleared", cleared).Msg("Expired reservations cleared")
	}
}

package emergency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sweeper reclaims capacity from reservations that were never used. It runs
// the same Transition path as user requests, so a booking a user moves
// forward between the listing and the sweep is left alone by the legality
// check.
type Sweeper struct {
	svc      *Service
	bookings BookingRepository
	log      zerolog.Logger
}

func NewSweeper(svc *Service, bookings BookingRepository, log zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, bookings: bookings, log: log}
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Expired int
	Skipped int
	Failed  int
}

// SweepOnce expires every overdue reservation. One booking's failure never
// aborts the rest of the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	overdue, err := s.bookings.ListExpired(ctx, time.Now())
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, b := range overdue {
		_, err := s.svc.Transition(ctx, b.ID, uuid.Nil, StatusExpired, "reservation expired")
		switch {
		case err == nil:
			res.Expired++
		case errors.Is(err, ErrInvalidTransition):
			// The booking progressed since the listing; nothing to reclaim.
			res.Skipped++
		default:
			res.Failed++
			s.log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("expiry sweep failed for booking")
		}
	}
	if res.Expired > 0 || res.Failed > 0 {
		s.log.Info().
			Int("expired", res.Expired).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("expiry sweep completed")
	}
	return res, nil
}

// Run sweeps on the interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("expiry sweep pass failed")
			}
		}
	}
}

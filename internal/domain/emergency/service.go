package emergency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doklink/doklink/internal/domain/hospital"
)

// ServiceConfig tunes the booking flow. Zero values fall back to the stock
// defaults applied in NewService.
type ServiceConfig struct {
	EmergencyNumber string
	SpeedKmh        float64
	TriggerRadiusKm float64
	TriggerLimit    int
	Transitions     TransitionTable
}

// Service owns the booking lifecycle: creation couples a bed decrement and
// the booking insert in one transaction, and every status transition runs
// under the booking's row lock so user actions and the expiry sweep cannot
// race each other.
type Service struct {
	bookings    BookingRepository
	ledger      BedLedger
	finder      HospitalFinder
	settlements SettlementFinalizer
	runTx       TxRunner
	transitions TransitionTable
	cfg         ServiceConfig
	log         zerolog.Logger
}

func NewService(bookings BookingRepository, ledger BedLedger, finder HospitalFinder, runTx TxRunner, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.EmergencyNumber == "" {
		cfg.EmergencyNumber = "108"
	}
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = 40
	}
	if cfg.TriggerRadiusKm <= 0 {
		cfg.TriggerRadiusKm = 50
	}
	if cfg.TriggerLimit <= 0 {
		cfg.TriggerLimit = 10
	}
	if cfg.Transitions == nil {
		cfg.Transitions = DefaultTransitions()
	}
	return &Service{
		bookings:    bookings,
		ledger:      ledger,
		finder:      finder,
		runTx:       runTx,
		transitions: cfg.Transitions,
		cfg:         cfg,
		log:         log,
	}
}

// SetSettlementFinalizer attaches the optional discharge financials
// collaborator.
func (s *Service) SetSettlementFinalizer(f SettlementFinalizer) { s.settlements = f }

// Create reserves a bed and opens the booking. Validation happens before any
// mutation so a doomed request never touches the capacity counter; the
// decrement and the insert then commit or roll back together.
func (s *Service) Create(ctx context.Context, b *Booking) error {
	if err := s.validateNew(b); err != nil {
		return err
	}

	h, err := s.ledger.GetByID(ctx, b.HospitalID)
	if err != nil {
		return err
	}

	now := time.Now()
	b.EstimatedArrivalMinutes = s.estimateArrival(b, h)
	b.ReservationExpiresAt = ComputeExpiry(now, b.EstimatedArrivalMinutes)
	b.Status = StatusReserved

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.TryReserveBed(ctx, b.HospitalID, b.BedType); err != nil {
			return err
		}
		return s.bookings.Create(ctx, b)
	})
	if err != nil {
		return err
	}

	s.finder.InvalidateAvailability(ctx, b.HospitalID)
	s.log.Info().
		Str("booking_id", b.ID.String()).
		Str("hospital_id", b.HospitalID.String()).
		Str("bed_type", string(b.BedType)).
		Time("expires_at", b.ReservationExpiresAt).
		Msg("bed reserved")
	return nil
}

func (s *Service) validateNew(b *Booking) error {
	if b.UserID == uuid.Nil {
		return fmt.Errorf("%w: user is required", ErrValidation)
	}
	if b.HospitalID == uuid.Nil {
		return fmt.Errorf("%w: hospital_id is required", ErrValidation)
	}
	if !b.BedType.ValidReservable() {
		return fmt.Errorf("%w: bed_type must be general or icu", ErrValidation)
	}
	if b.ContactPerson == "" {
		return fmt.Errorf("%w: contact_person is required", ErrValidation)
	}
	if b.ContactPhone == "" {
		return fmt.Errorf("%w: contact_phone is required", ErrValidation)
	}
	if (b.Latitude == nil) != (b.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be provided together", ErrValidation)
	}
	if b.HasCoordinates() && !hospital.ValidCoordinates(*b.Latitude, *b.Longitude) {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if b.EstimatedArrivalMinutes < 0 {
		return fmt.Errorf("%w: estimated_arrival_minutes must be non-negative", ErrValidation)
	}
	return nil
}

// estimateArrival prefers a distance-derived eta, then the caller's own
// estimate, then the 30 minute default.
func (s *Service) estimateArrival(b *Booking, h *hospital.Hospital) int {
	if b.HasCoordinates() && h.HasCoordinates() {
		dist := hospital.HaversineKm(*b.Latitude, *b.Longitude, *h.Latitude, *h.Longitude)
		return hospital.EstimateMinutes(dist, s.cfg.SpeedKmh)
	}
	if b.EstimatedArrivalMinutes > 0 {
		return b.EstimatedArrivalMinutes
	}
	return minReservationMinutes
}

// Get returns the booking when it belongs to userID. Other users' bookings
// are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && b.UserID != userID {
		return nil, ErrNotFound
	}
	return b, nil
}

// GetActive returns the user's most recent non-terminal booking.
func (s *Service) GetActive(ctx context.Context, userID uuid.UUID) (*Booking, error) {
	return s.bookings.GetActive(ctx, userID)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.bookings.ListByUser(ctx, userID, limit, offset)
}

// Transition moves the booking to target. The booking row is locked for the
// whole transaction, the legality check runs against the locked state, and a
// repeated call with the same target is a capacity no-op returning the
// current booking. userID of uuid.Nil is the system caller (expiry sweep).
func (s *Service) Transition(ctx context.Context, id, userID uuid.UUID, target Status, notes string) (*Booking, error) {
	var result *Booking
	released := false

	err := s.runTx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if userID != uuid.Nil && b.UserID != userID {
			return ErrNotFound
		}
		if b.Status == target {
			// Idempotent repeat; the stored status already records that any
			// capacity release happened.
			result = b
			return nil
		}
		if !s.transitions.Allows(b.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, target)
		}

		now := time.Now()
		switch target {
		case StatusArrived:
			b.ArrivalTime = &now
		case StatusAdmitted:
			b.AdmissionTime = &now
		case StatusCancelled:
			if notes != "" {
				reason := notes
				b.CancellationReason = &reason
			}
		case StatusDischarged:
			b.DischargeDate = &now
		}
		if notes != "" && target != StatusCancelled {
			b.Notes = &notes
		}
		b.Status = target

		if releasesCapacity(target) {
			moved, err := s.ledger.ReleaseBed(ctx, b.HospitalID, b.BedType)
			if err != nil {
				return err
			}
			if !moved {
				s.log.Warn().
					Str("booking_id", b.ID.String()).
					Str("hospital_id", b.HospitalID.String()).
					Msg("bed release found counter at total, possible double release")
			}
			released = true
		}

		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if released {
		s.finder.InvalidateAvailability(ctx, result.HospitalID)
	}
	if result.Status == StatusDischarged && result.DischargeDate != nil && s.settlements != nil {
		if err := s.settlements.FinalizeDischarge(ctx, result.ID); err != nil {
			s.log.Error().Err(err).Str("booking_id", result.ID.String()).Msg("discharge settlement failed")
		}
	}
	return result, nil
}

// TriggerResult is the emergency dispatch payload: ranked hospitals within
// the trigger radius plus the ambulance number to call.
type TriggerResult struct {
	Hospitals       []hospital.NearbyHospital `json:"hospitals"`
	EmergencyNumber string                    `json:"emergency_number"`
}

// Trigger ranks hospitals around the caller for an emergency dispatch.
func (s *Service) Trigger(ctx context.Context, lat, lon float64, bedType hospital.BedType) (*TriggerResult, error) {
	if bedType == "" {
		bedType = hospital.BedAll
	}
	ranked, err := s.finder.Nearby(ctx, lat, lon, s.cfg.TriggerRadiusKm, bedType)
	if err != nil {
		return nil, err
	}
	if len(ranked) > s.cfg.TriggerLimit {
		ranked = ranked[:s.cfg.TriggerLimit]
	}
	return &TriggerResult{Hospitals: ranked, EmergencyNumber: s.cfg.EmergencyNumber}, nil
}

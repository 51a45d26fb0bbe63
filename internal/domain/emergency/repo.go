package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/domain/hospital"
)

// BookingRepository persists bookings. Mutations to a live booking go
// through GetForUpdate + Update inside a transaction so user transitions and
// the expiry sweep serialize per booking.
type BookingRepository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// GetForUpdate loads the booking holding its row lock for the duration
	// of the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)

	Update(ctx context.Context, b *Booking) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error)

	// GetActive returns the user's most recent booking in a non-terminal
	// status, or ErrNotFound.
	GetActive(ctx context.Context, userID uuid.UUID) (*Booking, error)

	// ListExpired returns bookings still in reserved or patient_on_way whose
	// reservation deadline has passed.
	ListExpired(ctx context.Context, now time.Time) ([]*Booking, error)

	UpdateFinancials(ctx context.Context, id uuid.UUID, total, insurance, outOfPocket decimal.Decimal) error
}

// BedLedger is the slice of the hospital repository the booking flow needs:
// the hospital record plus the atomic bed counter operations.
type BedLedger interface {
	GetByID(ctx context.Context, id uuid.UUID) (*hospital.Hospital, error)
	TryReserveBed(ctx context.Context, id uuid.UUID, bedType hospital.BedType) error
	ReleaseBed(ctx context.Context, id uuid.UUID, bedType hospital.BedType) (bool, error)
}

// HospitalFinder provides ranked geo search and availability cache
// invalidation. Satisfied by the hospital service.
type HospitalFinder interface {
	Nearby(ctx context.Context, lat, lon, radiusKm float64, bedType hospital.BedType) ([]hospital.NearbyHospital, error)
	InvalidateAvailability(ctx context.Context, hospitalID uuid.UUID)
}

// SettlementFinalizer computes discharge financials. Optional collaborator;
// failures are logged, never block the discharge itself.
type SettlementFinalizer interface {
	FinalizeDischarge(ctx context.Context, bookingID uuid.UUID) error
}

// TxRunner executes fn atomically. Repository calls made from fn join the
// same database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

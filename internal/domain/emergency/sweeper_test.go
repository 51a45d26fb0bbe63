package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doklink/doklink/internal/domain/hospital"
)

func expireBooking(f *fixture, id uuid.UUID) {
	f.bookings.mu.Lock()
	defer f.bookings.mu.Unlock()
	f.bookings.bookings[id].ReservationExpiresAt = time.Now().Add(-time.Minute)
}

func TestSweepOnce_ExpiresOverdueReservations(t *testing.T) {
	f := newFixture(2, 0)
	sweeper := NewSweeper(f.svc, f.bookings, zerolog.Nop())
	userID := uuid.New()

	overdue := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), overdue); err != nil {
		t.Fatalf("create: %v", err)
	}
	expireBooking(f, overdue.ID)

	fresh := newBooking(f, uuid.New())
	if err := f.svc.Create(context.Background(), fresh); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Expired != 1 || res.Failed != 0 {
		t.Fatalf("expected 1 expired 0 failed, got %+v", res)
	}

	got, _ := f.bookings.GetByID(context.Background(), overdue.ID)
	if got.Status != StatusExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}
	stillFresh, _ := f.bookings.GetByID(context.Background(), fresh.ID)
	if stillFresh.Status != StatusReserved {
		t.Errorf("fresh booking touched by sweep: %s", stillFresh.Status)
	}
	// One bed back from the expired reservation; the fresh one still holds its bed.
	if avail := f.ledger.available(f.hospital.ID, hospital.BedGeneral); avail != 1 {
		t.Errorf("expected 1 available bed, got %d", avail)
	}
}

func TestSweepOnce_LeavesArrivedAlone(t *testing.T) {
	f := newFixture(1, 0)
	sweeper := NewSweeper(f.svc, f.bookings, zerolog.Nop())
	userID := uuid.New()

	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Transition(context.Background(), b.ID, userID, StatusArrived, ""); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	expireBooking(f, b.ID)

	res, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Expired != 0 {
		t.Errorf("expected nothing expired, got %+v", res)
	}
	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	if got.Status != StatusArrived {
		t.Errorf("arrived booking force-expired: %s", got.Status)
	}
}

// staleListRepo returns a fixed overdue list regardless of current state,
// standing in for a booking that progresses between the listing query and
// the per-item transition.
type staleListRepo struct {
	*mockBookingRepo
	stale []*Booking
}

func (r *staleListRepo) ListExpired(context.Context, time.Time) ([]*Booking, error) {
	return r.stale, nil
}

func TestSweepOnce_SkipsRacedBooking(t *testing.T) {
	f := newFixture(1, 0)
	userID := uuid.New()

	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	listed, _ := f.bookings.GetByID(context.Background(), b.ID)

	// The user marks arrival after the sweep has already listed the booking.
	if _, err := f.svc.Transition(context.Background(), b.ID, userID, StatusArrived, ""); err != nil {
		t.Fatalf("arrived: %v", err)
	}

	sweeper := NewSweeper(f.svc, &staleListRepo{mockBookingRepo: f.bookings, stale: []*Booking{listed}}, zerolog.Nop())
	res, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped != 1 || res.Expired != 0 || res.Failed != 0 {
		t.Errorf("expected the raced booking to be skipped, got %+v", res)
	}
	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	if got.Status != StatusArrived {
		t.Errorf("raced booking force-expired: %s", got.Status)
	}
}

func TestSweepOnce_IsolatesPerItemFailures(t *testing.T) {
	f := newFixture(2, 0)
	sweeper := NewSweeper(f.svc, f.bookings, zerolog.Nop())

	good := newBooking(f, uuid.New())
	if err := f.svc.Create(context.Background(), good); err != nil {
		t.Fatalf("create: %v", err)
	}
	expireBooking(f, good.ID)

	bad := newBooking(f, uuid.New())
	if err := f.svc.Create(context.Background(), bad); err != nil {
		t.Fatalf("create: %v", err)
	}
	expireBooking(f, bad.ID)
	// Point the bad booking at a hospital the ledger no longer knows, so its
	// capacity release fails.
	f.bookings.mu.Lock()
	f.bookings.bookings[bad.ID].HospitalID = uuid.New()
	f.bookings.mu.Unlock()

	res, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Expired != 1 {
		t.Errorf("expected the good booking to expire, got %+v", res)
	}
	if res.Failed != 1 {
		t.Errorf("expected the bad booking to fail in isolation, got %+v", res)
	}
	got, _ := f.bookings.GetByID(context.Background(), good.ID)
	if got.Status != StatusExpired {
		t.Errorf("good booking not expired: %s", got.Status)
	}
}

package emergency

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/domain/hospital"
)

// -- Mocks --

type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (m *mockBookingRepo) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return m.GetByID(ctx, id)
}

func (m *mockBookingRepo) Update(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *mockBookingRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			cp := *b
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, len(result), nil
}

func (m *mockBookingRepo) GetActive(_ context.Context, userID uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Booking
	for _, b := range m.bookings {
		if b.UserID != userID || b.Status.IsTerminal() {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockBookingRepo) ListExpired(_ context.Context, now time.Time) ([]*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Booking
	for _, b := range m.bookings {
		if (b.Status == StatusReserved || b.Status == StatusPatientOnWay) && b.ReservationExpiresAt.Before(now) {
			cp := *b
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockBookingRepo) UpdateFinancials(_ context.Context, id uuid.UUID, total, insurance, outOfPocket decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.TotalBillAmount = total
	b.InsuranceApprovedAmount = insurance
	b.OutOfPocketAmount = outOfPocket
	return nil
}

// mockLedger mirrors the conditional-update semantics of the hospital
// repository with a mutex.
type mockLedger struct {
	mu           sync.Mutex
	hospitals    map[uuid.UUID]*hospital.Hospital
	releaseCalls int
}

func newMockLedger() *mockLedger {
	return &mockLedger{hospitals: make(map[uuid.UUID]*hospital.Hospital)}
}

func (m *mockLedger) add(h *hospital.Hospital) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.hospitals[h.ID] = h
}

func (m *mockLedger) GetByID(_ context.Context, id uuid.UUID) (*hospital.Hospital, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hospitals[id]
	if !ok {
		return nil, hospital.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *mockLedger) TryReserveBed(_ context.Context, id uuid.UUID, bedType hospital.BedType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hospitals[id]
	if !ok {
		return hospital.ErrNotFound
	}
	switch bedType {
	case hospital.BedGeneral:
		if h.AvailableGeneralBeds <= 0 {
			return hospital.ErrNoCapacity
		}
		h.AvailableGeneralBeds--
	case hospital.BedICU:
		if h.AvailableIcuBeds <= 0 {
			return hospital.ErrNoCapacity
		}
		h.AvailableIcuBeds--
	default:
		return hospital.ErrValidation
	}
	return nil
}

func (m *mockLedger) ReleaseBed(_ context.Context, id uuid.UUID, bedType hospital.BedType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hospitals[id]
	if !ok {
		return false, hospital.ErrNotFound
	}
	m.releaseCalls++
	switch bedType {
	case hospital.BedGeneral:
		if h.AvailableGeneralBeds >= h.TotalGeneralBeds {
			return false, nil
		}
		h.AvailableGeneralBeds++
	case hospital.BedICU:
		if h.AvailableIcuBeds >= h.TotalIcuBeds {
			return false, nil
		}
		h.AvailableIcuBeds++
	}
	return true, nil
}

func (m *mockLedger) available(id uuid.UUID, bedType hospital.BedType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hospitals[id]
	if bedType == hospital.BedICU {
		return h.AvailableIcuBeds
	}
	return h.AvailableGeneralBeds
}

type mockFinder struct {
	mu            sync.Mutex
	nearby        []hospital.NearbyHospital
	invalidations []uuid.UUID
}

func (m *mockFinder) Nearby(_ context.Context, lat, lon, radiusKm float64, bedType hospital.BedType) ([]hospital.NearbyHospital, error) {
	return m.nearby, nil
}

func (m *mockFinder) InvalidateAvailability(_ context.Context, hospitalID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations = append(m.invalidations, hospitalID)
}

type mockFinalizer struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (m *mockFinalizer) FinalizeDischarge(_ context.Context, bookingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, bookingID)
	return m.err
}

func passTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc      *Service
	bookings *mockBookingRepo
	ledger   *mockLedger
	finder   *mockFinder
	hospital *hospital.Hospital
}

func coords(lat, lon float64) (*float64, *float64) { return &lat, &lon }

func newFixture(generalBeds, icuBeds int) *fixture {
	ledger := newMockLedger()
	la, lo := coords(0.18, 0) // ~20 km from the origin
	h := &hospital.Hospital{
		Name: "City Care", Latitude: la, Longitude: lo,
		TotalGeneralBeds: generalBeds, AvailableGeneralBeds: generalBeds,
		TotalIcuBeds: icuBeds, AvailableIcuBeds: icuBeds,
	}
	ledger.add(h)

	bookings := newMockBookingRepo()
	finder := &mockFinder{}
	svc := NewService(bookings, ledger, finder, passTx, ServiceConfig{}, zerolog.Nop())
	return &fixture{svc: svc, bookings: bookings, ledger: ledger, finder: finder, hospital: h}
}

func newBooking(f *fixture, userID uuid.UUID) *Booking {
	return &Booking{
		UserID:        userID,
		HospitalID:    f.hospital.ID,
		BedType:       hospital.BedGeneral,
		EmergencyType: "accident",
		ContactPerson: "Asha Rao",
		ContactPhone:  "+919800000000",
	}
}

// -- Create --

func TestCreate_ReservesBed(t *testing.T) {
	f := newFixture(2, 0)
	b := newBooking(f, uuid.New())

	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusReserved {
		t.Errorf("expected status reserved, got %s", b.Status)
	}
	if b.ID == uuid.Nil {
		t.Error("expected booking id to be set")
	}
	if b.ReservationExpiresAt.IsZero() {
		t.Error("expected expiry to be computed")
	}
	if got := f.ledger.available(f.hospital.ID, hospital.BedGeneral); got != 1 {
		t.Errorf("expected 1 bed left, got %d", got)
	}
	if len(f.finder.invalidations) != 1 || f.finder.invalidations[0] != f.hospital.ID {
		t.Error("expected availability cache invalidation for the hospital")
	}
}

func TestCreate_EtaFromCoordinates(t *testing.T) {
	f := newFixture(2, 0)
	b := newBooking(f, uuid.New())
	b.Latitude, b.Longitude = coords(0, 0) // hospital is ~20 km away
	b.EstimatedArrivalMinutes = 90         // overridden by the distance estimate

	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.EstimatedArrivalMinutes != 30 {
		t.Errorf("expected ~30 min eta for 20 km at 40 km/h, got %d", b.EstimatedArrivalMinutes)
	}
	// 1.5 * 30 = 45 minutes.
	got := time.Until(b.ReservationExpiresAt)
	if got < 44*time.Minute || got > 46*time.Minute {
		t.Errorf("expected expiry ~45 min out, got %v", got)
	}
}

func TestCreate_EtaFallbacks(t *testing.T) {
	f := newFixture(5, 0)

	b := newBooking(f, uuid.New())
	b.EstimatedArrivalMinutes = 40
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := time.Until(b.ReservationExpiresAt)
	if got < 59*time.Minute || got > 61*time.Minute {
		t.Errorf("eta 40: expected expiry ~60 min out, got %v", got)
	}

	// No coordinates and no caller estimate: the 30 minute default eta
	// applies, so the deadline is 1.5 * 30 = 45 minutes.
	b2 := newBooking(f, uuid.New())
	if err := f.svc.Create(context.Background(), b2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = time.Until(b2.ReservationExpiresAt)
	if got < 44*time.Minute || got > 46*time.Minute {
		t.Errorf("no eta: expected expiry ~45 min out, got %v", got)
	}
}

func TestCreate_ValidationBeforeMutation(t *testing.T) {
	f := newFixture(1, 0)

	b := newBooking(f, uuid.New())
	b.ContactPerson = ""
	if err := f.svc.Create(context.Background(), b); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	b = newBooking(f, uuid.New())
	b.ContactPhone = ""
	if err := f.svc.Create(context.Background(), b); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// The doomed requests must not have touched the counter.
	if got := f.ledger.available(f.hospital.ID, hospital.BedGeneral); got != 1 {
		t.Errorf("expected counter untouched, got %d", got)
	}
	if len(f.bookings.bookings) != 0 {
		t.Error("expected no booking rows")
	}
}

func TestCreate_NoCapacity(t *testing.T) {
	f := newFixture(0, 0)
	b := newBooking(f, uuid.New())

	err := f.svc.Create(context.Background(), b)
	if !errors.Is(err, hospital.ErrNoCapacity) {
		t.Fatalf("expected no-capacity error, got %v", err)
	}
	if len(f.bookings.bookings) != 0 {
		t.Error("expected no booking to be persisted")
	}
}

func TestCreate_ConcurrentContention(t *testing.T) {
	const beds = 2
	const callers = 12

	f := newFixture(beds, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, noCapacity := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.Create(context.Background(), newBooking(f, uuid.New()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, hospital.ErrNoCapacity):
				noCapacity++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != beds {
		t.Errorf("expected exactly %d bookings, got %d", beds, successes)
	}
	if noCapacity != callers-beds {
		t.Errorf("expected %d capacity failures, got %d", callers-beds, noCapacity)
	}
	if got := f.ledger.available(f.hospital.ID, hospital.BedGeneral); got != 0 {
		t.Errorf("expected counter at zero, got %d", got)
	}
	if len(f.bookings.bookings) != beds {
		t.Errorf("expected %d booking rows, got %d", beds, len(f.bookings.bookings))
	}
}

// -- Transition --

func TestTransition_FullLifecycle(t *testing.T) {
	f := newFixture(1, 0)
	fin := &mockFinalizer{}
	f.svc.SetSettlementFinalizer(fin)
	userID := uuid.New()
	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx := context.Background()

	b2, err := f.svc.Transition(ctx, b.ID, userID, StatusPatientOnWay, "")
	if err != nil {
		t.Fatalf("patient_on_way: %v", err)
	}
	if b2.Status != StatusPatientOnWay {
		t.Errorf("expected patient_on_way, got %s", b2.Status)
	}

	b2, err = f.svc.Transition(ctx, b.ID, userID, StatusArrived, "")
	if err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if b2.ArrivalTime == nil {
		t.Error("expected arrival_time to be set")
	}

	b2, err = f.svc.Transition(ctx, b.ID, userID, StatusAdmitted, "")
	if err != nil {
		t.Fatalf("admitted: %v", err)
	}
	if b2.AdmissionTime == nil {
		t.Error("expected admission_time to be set")
	}
	if got := f.ledger.available(f.hospital.ID, hospital.BedGeneral); got != 1 {
		t.Errorf("expected bed released at admission, counter %d", got)
	}

	b2, err = f.svc.Transition(ctx, b.ID, userID, StatusDischarged, "")
	if err != nil {
		t.Fatalf("discharged: %v", err)
	}
	if b2.DischargeDate == nil {
		t.Error("expected discharge_date to be set")
	}
	// Discharge releases nothing extra.
	if f.ledger.releaseCalls != 1 {
		t.Errorf("expected exactly one release over the lifecycle, got %d", f.ledger.releaseCalls)
	}
	if len(fin.calls) != 1 || fin.calls[0] != b.ID {
		t.Error("expected settlement finalization on discharge")
	}
}

func TestTransition_AdmittedIdempotent(t *testing.T) {
	f := newFixture(1, 0)
	userID := uuid.New()
	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx := context.Background()
	if _, err := f.svc.Transition(ctx, b.ID, userID, StatusArrived, ""); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if _, err := f.svc.Transition(ctx, b.ID, userID, StatusAdmitted, ""); err != nil {
		t.Fatalf("admitted: %v", err)
	}

	b2, err := f.svc.Transition(ctx, b.ID, userID, StatusAdmitted, "")
	if err != nil {
		t.Fatalf("repeat admitted: %v", err)
	}
	if b2.Status != StatusAdmitted {
		t.Errorf("expected admitted, got %s", b2.Status)
	}
	if f.ledger.releaseCalls != 1 {
		t.Errorf("expected one release despite the repeated call, got %d", f.ledger.releaseCalls)
	}
	if got := f.ledger.available(f.hospital.ID, hospital.BedGeneral); got != 1 {
		t.Errorf("counter over-incremented: %d", got)
	}
}

func TestTransition_Cancelled(t *testing.T) {
	f := newFixture(1, 0)
	userID := uuid.New()
	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}

	b2, err := f.svc.Transition(context.Background(), b.ID, userID, StatusCancelled, "found a closer hospital")
	if err != nil {
		t.Fatalf("cancelled: %v", err)
	}
	if b2.CancellationReason == nil || *b2.CancellationReason != "found a closer hospital" {
		t.Error("expected cancellation reason to be recorded")
	}
	if got := f.ledger.available(f.hospital.ID, hospital.BedGeneral); got != 1 {
		t.Errorf("expected bed returned on cancellation, counter %d", got)
	}
}

func TestTransition_Illegal(t *testing.T) {
	f := newFixture(1, 0)
	userID := uuid.New()
	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := f.svc.Transition(context.Background(), b.ID, userID, StatusDischarged, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, _ := f.bookings.GetByID(context.Background(), b.ID)
	if got.Status != StatusReserved {
		t.Errorf("booking mutated by rejected transition: %s", got.Status)
	}
	if f.ledger.releaseCalls != 0 {
		t.Error("rejected transition must not touch capacity")
	}
}

func TestTransition_OwnerCheck(t *testing.T) {
	f := newFixture(1, 0)
	owner := uuid.New()
	b := newBooking(f, owner)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Transition(context.Background(), b.ID, uuid.New(), StatusCancelled, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not-found for a stranger, got %v", err)
	}
	// The system caller (sweep) bypasses ownership.
	if _, err := f.svc.Transition(context.Background(), b.ID, uuid.Nil, StatusExpired, ""); err != nil {
		t.Errorf("expected system transition to pass, got %v", err)
	}
}

// -- Queries --

func TestGetActive(t *testing.T) {
	f := newFixture(5, 0)
	userID := uuid.New()

	if _, err := f.svc.GetActive(context.Background(), userID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not-found with no bookings, got %v", err)
	}

	b := newBooking(f, userID)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	active, err := f.svc.GetActive(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.ID != b.ID {
		t.Error("expected the open booking")
	}

	if _, err := f.svc.Transition(context.Background(), b.ID, userID, StatusCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.GetActive(context.Background(), userID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not-found after cancellation, got %v", err)
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	f := newFixture(1, 0)
	owner := uuid.New()
	b := newBooking(f, owner)
	if err := f.svc.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Get(context.Background(), b.ID, owner); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), b.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not-found for a stranger, got %v", err)
	}
}

func TestTrigger_LimitsAndNumber(t *testing.T) {
	f := newFixture(1, 0)
	for i := 0; i < 15; i++ {
		f.finder.nearby = append(f.finder.nearby, hospital.NearbyHospital{
			Hospital:   &hospital.Hospital{ID: uuid.New()},
			DistanceKm: float64(i),
		})
	}

	result, err := f.svc.Trigger(context.Background(), 0, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Hospitals) != 10 {
		t.Errorf("expected top 10 hospitals, got %d", len(result.Hospitals))
	}
	if result.EmergencyNumber != "108" {
		t.Errorf("expected default emergency number, got %s", result.EmergencyNumber)
	}
}

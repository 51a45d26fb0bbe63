package emergency

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/domain/hospital"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict reports a lost update on a booking; the whole operation is
	// safe to retry.
	ErrConflict = errors.New("concurrent booking update")
)

// Status is the booking lifecycle state. A booking in a non-terminal status
// holds exactly one decremented-bed credit against its hospital; every path
// out of the lifecycle releases that credit exactly once.
type Status string

const (
	StatusReserved     Status = "reserved"
	StatusPatientOnWay Status = "patient_on_way"
	StatusArrived      Status = "arrived"
	StatusAdmitted     Status = "admitted"
	StatusDischarged   Status = "discharged"
	StatusCancelled    Status = "cancelled"
	StatusExpired      Status = "expired"
)

// IsTerminal reports whether no further transition is defined out of s.
func (s Status) IsTerminal() bool {
	return s == StatusDischarged || s == StatusCancelled || s == StatusExpired
}

// ActiveStatuses are the states in which a booking still holds or occupies a
// bed and blocks the user from opening another booking.
func ActiveStatuses() []Status {
	return []Status{StatusReserved, StatusPatientOnWay, StatusArrived, StatusAdmitted}
}

// TransitionTable maps each status to the statuses reachable from it. Held
// as data on the service so the allowed graph can be reconfigured without a
// code change.
type TransitionTable map[Status][]Status

// DefaultTransitions is the stock lifecycle. patient_on_way is optional (a
// patient may be marked arrived directly), admission requires arrival, and
// discharge requires admission. Only bookings still waiting on the patient
// can expire: once arrived, the reservation deadline no longer applies.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		StatusReserved:     {StatusPatientOnWay, StatusArrived, StatusCancelled, StatusExpired},
		StatusPatientOnWay: {StatusArrived, StatusCancelled, StatusExpired},
		StatusArrived:      {StatusAdmitted, StatusCancelled},
		StatusAdmitted:     {StatusDischarged},
	}
}

// Allows reports whether the table permits moving from current to target.
func (t TransitionTable) Allows(current, target Status) bool {
	for _, s := range t[current] {
		if s == target {
			return true
		}
	}
	return false
}

// releasesCapacity reports whether entering the target status returns the
// reserved bed to the hospital's counter.
func releasesCapacity(target Status) bool {
	return target == StatusAdmitted || target == StatusCancelled || target == StatusExpired
}

// Booking is a time-bounded hold on one bed unit.
type Booking struct {
	ID                      uuid.UUID        `db:"id" json:"id"`
	UserID                  uuid.UUID        `db:"user_id" json:"user_id"`
	HospitalID              uuid.UUID        `db:"hospital_id" json:"hospital_id"`
	EmergencyType           string           `db:"emergency_type" json:"emergency_type"`
	BedType                 hospital.BedType `db:"bed_type" json:"bed_type"`
	PatientCondition        *string          `db:"patient_condition" json:"patient_condition,omitempty"`
	ContactPerson           string           `db:"contact_person" json:"contact_person"`
	ContactPhone            string           `db:"contact_phone" json:"contact_phone"`
	Status                  Status           `db:"status" json:"status"`
	ReservationExpiresAt    time.Time        `db:"reservation_expires_at" json:"reservation_expires_at"`
	ArrivalTime             *time.Time       `db:"arrival_time" json:"arrival_time,omitempty"`
	AdmissionTime           *time.Time       `db:"admission_time" json:"admission_time,omitempty"`
	DischargeDate           *time.Time       `db:"discharge_date" json:"discharge_date,omitempty"`
	CancellationReason      *string          `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Notes                   *string          `db:"notes" json:"notes,omitempty"`
	Latitude                *float64         `db:"latitude" json:"latitude,omitempty"`
	Longitude               *float64         `db:"longitude" json:"longitude,omitempty"`
	EstimatedArrivalMinutes int              `db:"estimated_arrival_minutes" json:"estimated_arrival_minutes"`
	TotalBillAmount         decimal.Decimal  `db:"total_bill_amount" json:"total_bill_amount"`
	InsuranceApprovedAmount decimal.Decimal  `db:"insurance_approved_amount" json:"insurance_approved_amount"`
	OutOfPocketAmount       decimal.Decimal  `db:"out_of_pocket_amount" json:"out_of_pocket_amount"`
	CreatedAt               time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether the booking carries a usable location.
func (b *Booking) HasCoordinates() bool {
	return b.Latitude != nil && b.Longitude != nil
}

const minReservationMinutes = 30

// ComputeExpiry returns the reservation deadline: one and a half times the
// estimated travel time, with a 30 minute floor.
func ComputeExpiry(now time.Time, etaMinutes int) time.Time {
	mins := float64(etaMinutes) * 1.5
	if mins < minReservationMinutes {
		mins = minReservationMinutes
	}
	return now.Add(time.Duration(mins * float64(time.Minute)))
}

package hospital

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("hospital not found")
	// ErrNoCapacity is returned when a reservation attempt finds no
	// available bed of the requested type.
	ErrNoCapacity = errors.New("no bed capacity available")
)

// BedType selects which bed counter an operation applies to.
type BedType string

const (
	BedGeneral BedType = "general"
	BedICU     BedType = "icu"
	// BedAll is accepted by search filters only, never by reservations.
	BedAll BedType = "all"
)

// ValidReservable reports whether the bed type names a concrete counter.
func (b BedType) ValidReservable() bool {
	return b == BedGeneral || b == BedICU
}

// Hospital maps to the hospital table. Available bed counters are owned by
// the reservation flow and mutated only through TryReserveBed/ReleaseBed.
type Hospital struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	Name                 string          `db:"name" json:"name"`
	Address              string          `db:"address" json:"address"`
	City                 string          `db:"city" json:"city"`
	State                string          `db:"state" json:"state"`
	PinCode              string          `db:"pin_code" json:"pin_code"`
	Phone                string          `db:"phone" json:"phone"`
	Latitude             *float64        `db:"latitude" json:"latitude,omitempty"`
	Longitude            *float64        `db:"longitude" json:"longitude,omitempty"`
	TotalGeneralBeds     int             `db:"total_general_beds" json:"total_general_beds"`
	AvailableGeneralBeds int             `db:"available_general_beds" json:"available_general_beds"`
	TotalIcuBeds         int             `db:"total_icu_beds" json:"total_icu_beds"`
	AvailableIcuBeds     int             `db:"available_icu_beds" json:"available_icu_beds"`
	AcceptsInsurance     bool            `db:"accepts_insurance" json:"accepts_insurance"`
	InsuranceProviders   *string         `db:"insurance_providers" json:"insurance_providers,omitempty"`
	GeneralBedDailyCost  decimal.Decimal `db:"general_bed_daily_cost" json:"general_bed_daily_cost"`
	IcuBedDailyCost      decimal.Decimal `db:"icu_bed_daily_cost" json:"icu_bed_daily_cost"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether the hospital can participate in geo search.
func (h *Hospital) HasCoordinates() bool {
	return h.Latitude != nil && h.Longitude != nil
}

// AvailableBeds returns the available counter for the given bed type; for
// BedAll it is the sum of both counters.
func (h *Hospital) AvailableBeds(bedType BedType) int {
	switch bedType {
	case BedGeneral:
		return h.AvailableGeneralBeds
	case BedICU:
		return h.AvailableIcuBeds
	default:
		return h.AvailableGeneralBeds + h.AvailableIcuBeds
	}
}

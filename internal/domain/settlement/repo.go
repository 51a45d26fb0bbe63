package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/domain/emergency"
)

// Repository persists the expense and payment ledgers.
type Repository interface {
	CreateExpense(ctx context.Context, e *DailyExpense) error
	ListExpenses(ctx context.Context, bookingID uuid.UUID) ([]*DailyExpense, error)

	// SumExpenses aggregates the admission's expenses into
	// (total, insuranceCovered, patientShare).
	SumExpenses(ctx context.Context, bookingID uuid.UUID) (total, insurance, patient decimal.Decimal, err error)

	CreatePayment(ctx context.Context, p *OutOfPocketPayment) error
	GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*OutOfPocketPayment, error)
	UpdatePayment(ctx context.Context, p *OutOfPocketPayment) error
}

// AdmissionStore is the slice of the booking repository the settlement flow
// reads and writes: the admission record and its financial rollups.
type AdmissionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*emergency.Booking, error)
	UpdateFinancials(ctx context.Context, id uuid.UUID, total, insurance, outOfPocket decimal.Decimal) error
}

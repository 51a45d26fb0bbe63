package settlement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("settlement record not found")
	ErrConflict   = errors.New("settlement state conflict")
	// ErrGateway wraps payment-gateway transport failures; the operation is
	// safe to retry.
	ErrGateway = errors.New("payment gateway unavailable")
)

// ExpenseType categorizes one daily expense line.
type ExpenseType string

const (
	ExpenseRoom          ExpenseType = "room"
	ExpenseDoctorFee     ExpenseType = "doctor_fee"
	ExpenseNursing       ExpenseType = "nursing"
	ExpenseMedicine      ExpenseType = "medicine"
	ExpenseTest          ExpenseType = "test"
	ExpenseProcedure     ExpenseType = "procedure"
	ExpenseEquipment     ExpenseType = "equipment"
	ExpenseTherapy       ExpenseType = "therapy"
	ExpenseMiscellaneous ExpenseType = "miscellaneous"
)

func (t ExpenseType) Valid() bool {
	switch t {
	case ExpenseRoom, ExpenseDoctorFee, ExpenseNursing, ExpenseMedicine,
		ExpenseTest, ExpenseProcedure, ExpenseEquipment, ExpenseTherapy,
		ExpenseMiscellaneous:
		return true
	}
	return false
}

// DailyExpense is one itemized charge against an admission. Append-only;
// insurance_covered + patient_share always equals amount.
type DailyExpense struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	BookingID        uuid.UUID       `db:"booking_id" json:"booking_id"`
	Date             time.Time       `db:"expense_date" json:"expense_date"`
	Type             ExpenseType     `db:"expense_type" json:"expense_type"`
	Description      *string         `db:"description" json:"description,omitempty"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	InsuranceCovered decimal.Decimal `db:"insurance_covered" json:"insurance_covered"`
	PatientShare     decimal.Decimal `db:"patient_share" json:"patient_share"`
	Verified         bool            `db:"verified" json:"verified"`
	Notes            *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentStatus tracks the out-of-pocket payment handshake.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// OutOfPocketPayment aggregates an admission's financials and tracks the
// gateway order/payment/signature triple. One per admission.
type OutOfPocketPayment struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	BookingID         uuid.UUID       `db:"booking_id" json:"booking_id"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	InsuranceAmount   decimal.Decimal `db:"insurance_amount" json:"insurance_amount"`
	OutOfPocketAmount decimal.Decimal `db:"out_of_pocket_amount" json:"out_of_pocket_amount"`
	GatewayOrderID    *string         `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID  *string         `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature  *string         `db:"gateway_signature" json:"gateway_signature,omitempty"`
	PaymentMethod     *string         `db:"payment_method" json:"payment_method,omitempty"`
	Status            PaymentStatus   `db:"status" json:"status"`
	PaymentDate       *time.Time      `db:"payment_date" json:"payment_date,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

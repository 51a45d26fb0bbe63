package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/domain/emergency"
	"github.com/doklink/doklink/internal/platform/payment"
)

// Service owns the expense ledger and the discharge settlement: summing
// expenses into the admission's rollups, opening the out-of-pocket payment,
// and running the gateway handshake.
type Service struct {
	repo       Repository
	admissions AdmissionStore
	gateway    payment.Gateway
	log        zerolog.Logger
}

func NewService(repo Repository, admissions AdmissionStore, gateway payment.Gateway, log zerolog.Logger) *Service {
	return &Service{repo: repo, admissions: admissions, gateway: gateway, log: log}
}

// AddExpense records one expense line. When only one side of the insurance
// split is supplied the other is derived from the amount; when both are
// supplied they must sum to the amount exactly.
func (s *Service) AddExpense(ctx context.Context, bookingID uuid.UUID, date time.Time, expenseType ExpenseType,
	amount decimal.Decimal, insuranceCovered, patientShare *decimal.Decimal, description *string) (*DailyExpense, error) {

	if !expenseType.Valid() {
		return nil, fmt.Errorf("%w: unknown expense type %q", ErrValidation, expenseType)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if date.IsZero() {
		date = time.Now()
	}

	insurance, patient, err := splitAmount(amount, insuranceCovered, patientShare)
	if err != nil {
		return nil, err
	}

	b, err := s.admissions.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != emergency.StatusAdmitted && b.Status != emergency.StatusDischarged {
		return nil, fmt.Errorf("%w: expenses require an admitted or discharged booking, status is %s", ErrValidation, b.Status)
	}

	e := &DailyExpense{
		BookingID:        bookingID,
		Date:             date,
		Type:             expenseType,
		Description:      description,
		Amount:           amount,
		InsuranceCovered: insurance,
		PatientShare:     patient,
	}
	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func splitAmount(amount decimal.Decimal, insuranceCovered, patientShare *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	switch {
	case insuranceCovered == nil && patientShare == nil:
		return decimal.Zero, amount, nil
	case insuranceCovered != nil && patientShare == nil:
		if insuranceCovered.IsNegative() || insuranceCovered.GreaterThan(amount) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: insurance_covered must be between 0 and the amount", ErrValidation)
		}
		return *insuranceCovered, amount.Sub(*insuranceCovered), nil
	case insuranceCovered == nil && patientShare != nil:
		if patientShare.IsNegative() || patientShare.GreaterThan(amount) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: patient_share must be between 0 and the amount", ErrValidation)
		}
		return amount.Sub(*patientShare), *patientShare, nil
	default:
		if insuranceCovered.IsNegative() || patientShare.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: split amounts must be non-negative", ErrValidation)
		}
		if !insuranceCovered.Add(*patientShare).Equal(amount) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: insurance_covered + patient_share must equal the amount", ErrValidation)
		}
		return *insuranceCovered, *patientShare, nil
	}
}

func (s *Service) ListExpenses(ctx context.Context, bookingID uuid.UUID) ([]*DailyExpense, error) {
	if _, err := s.admissions.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, bookingID)
}

// FinalizeDischarge sums the admission's expenses into the booking's
// financial rollups and opens the out-of-pocket payment. Repeated calls
// refresh the rollups and return the existing payment.
func (s *Service) FinalizeDischarge(ctx context.Context, bookingID uuid.UUID) (*OutOfPocketPayment, error) {
	b, err := s.admissions.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != emergency.StatusDischarged {
		return nil, fmt.Errorf("%w: settlement requires a discharged booking, status is %s", ErrValidation, b.Status)
	}

	total, insurance, patient, err := s.repo.SumExpenses(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.admissions.UpdateFinancials(ctx, bookingID, total, insurance, patient); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetPaymentByBooking(ctx, bookingID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	p := &OutOfPocketPayment{
		BookingID:         bookingID,
		TotalAmount:       total,
		InsuranceAmount:   insurance,
		OutOfPocketAmount: patient,
		Status:            PaymentPending,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		// A concurrent finalize won the insert; its row is ours too.
		if errors.Is(err, ErrConflict) {
			return s.repo.GetPaymentByBooking(ctx, bookingID)
		}
		return nil, err
	}
	s.log.Info().
		Str("booking_id", bookingID.String()).
		Str("total", total.String()).
		Str("out_of_pocket", patient.String()).
		Msg("discharge settlement finalized")
	return p, nil
}

// CreateOrder registers a gateway order for the admission's out-of-pocket
// amount. Idempotent: an already-opened order is returned as is.
func (s *Service) CreateOrder(ctx context.Context, bookingID uuid.UUID) (*OutOfPocketPayment, error) {
	p, err := s.repo.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if p.Status == PaymentCompleted {
		return nil, fmt.Errorf("%w: payment already completed", ErrConflict)
	}
	if p.GatewayOrderID != nil {
		return p, nil
	}
	if p.OutOfPocketAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: nothing to collect out of pocket", ErrValidation)
	}

	order, err := s.gateway.CreateOrder(ctx, p.OutOfPocketAmount, bookingID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	p.GatewayOrderID = &order.ID
	if err := s.repo.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// VerifyPayment checks the checkout callback signature. A valid signature
// completes the payment; an invalid one marks it failed.
func (s *Service) VerifyPayment(ctx context.Context, bookingID uuid.UUID, orderID, paymentID, signature string, method *string) (*OutOfPocketPayment, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", ErrValidation)
	}

	p, err := s.repo.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if p.GatewayOrderID == nil || *p.GatewayOrderID != orderID {
		return nil, fmt.Errorf("%w: order does not match this payment", ErrValidation)
	}
	if p.Status == PaymentCompleted {
		return p, nil
	}

	p.GatewayPaymentID = &paymentID
	p.GatewaySignature = &signature
	p.PaymentMethod = method

	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		p.Status = PaymentFailed
		if err := s.repo.UpdatePayment(ctx, p); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: signature verification failed", ErrValidation)
	}

	now := time.Now()
	p.Status = PaymentCompleted
	p.PaymentDate = &now
	if err := s.repo.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("booking_id", bookingID.String()).Str("payment_id", paymentID).Msg("out-of-pocket payment completed")
	return p, nil
}

// GetPayment returns the admission's out-of-pocket payment.
func (s *Service) GetPayment(ctx context.Context, bookingID uuid.UUID) (*OutOfPocketPayment, error) {
	return s.repo.GetPaymentByBooking(ctx, bookingID)
}

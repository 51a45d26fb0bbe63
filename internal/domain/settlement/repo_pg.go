package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/doklink/doklink/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const expenseCols = `id, booking_id, expense_date, expense_type, description,
	amount, insurance_covered, patient_share, verified, notes, created_at, updated_at`

func scanExpense(row pgx.Row) (*DailyExpense, error) {
	var e DailyExpense
	err := row.Scan(&e.ID, &e.BookingID, &e.Date, &e.Type, &e.Description,
		&e.Amount, &e.InsuranceCovered, &e.PatientShare, &e.Verified, &e.Notes,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *repoPG) CreateExpense(ctx context.Context, e *DailyExpense) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO daily_expense (id, booking_id, expense_date, expense_type, description,
			amount, insurance_covered, patient_share, verified, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.BookingID, e.Date, e.Type, e.Description,
		e.Amount, e.InsuranceCovered, e.PatientShare, e.Verified, e.Notes)
	return err
}

func (r *repoPG) ListExpenses(ctx context.Context, bookingID uuid.UUID) ([]*DailyExpense, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+expenseCols+` FROM daily_expense
		WHERE booking_id = $1 ORDER BY expense_date, created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DailyExpense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func (r *repoPG) SumExpenses(ctx context.Context, bookingID uuid.UUID) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	var total, insurance, patient decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(insurance_covered), 0), COALESCE(SUM(patient_share), 0)
		FROM daily_expense WHERE booking_id = $1`, bookingID).
		Scan(&total, &insurance, &patient)
	return total, insurance, patient, err
}

const paymentCols = `id, booking_id, total_amount, insurance_amount, out_of_pocket_amount,
	gateway_order_id, gateway_payment_id, gateway_signature, payment_method,
	status, payment_date, created_at, updated_at`

func scanPayment(row pgx.Row) (*OutOfPocketPayment, error) {
	var p OutOfPocketPayment
	err := row.Scan(&p.ID, &p.BookingID, &p.TotalAmount, &p.InsuranceAmount, &p.OutOfPocketAmount,
		&p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewaySignature, &p.PaymentMethod,
		&p.Status, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) CreatePayment(ctx context.Context, p *OutOfPocketPayment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO out_of_pocket_payment (id, booking_id, total_amount, insurance_amount,
			out_of_pocket_amount, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.BookingID, p.TotalAmount, p.InsuranceAmount, p.OutOfPocketAmount, p.Status)
	// The booking_id unique constraint turns a concurrent duplicate into a
	// conflict the service can resolve by re-reading.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func (r *repoPG) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*OutOfPocketPayment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+paymentCols+` FROM out_of_pocket_payment WHERE booking_id = $1`, bookingID))
}

func (r *repoPG) UpdatePayment(ctx context.Context, p *OutOfPocketPayment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE out_of_pocket_payment SET gateway_order_id=$2, gateway_payment_id=$3,
			gateway_signature=$4, payment_method=$5, status=$6, payment_date=$7, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.GatewayOrderID, p.GatewayPaymentID,
		p.GatewaySignature, p.PaymentMethod, p.Status, p.PaymentDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

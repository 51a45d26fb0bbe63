package emergency

import (
	"context"
	"errors"
	"time"

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

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bookingCols = `id, user_id, hospital_id, emergency_type, bed_type, patient_condition,
	contact_person, contact_phone, status, reservation_expires_at,
	arrival_time, admission_time, discharge_date, cancellation_reason, notes,
	latitude, longitude, estimated_arrival_minutes,
	total_bill_amount, insurance_approved_amount, out_of_pocket_amount,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.HospitalID, &b.EmergencyType, &b.BedType, &b.PatientCondition,
		&b.ContactPerson, &b.ContactPhone, &b.Status, &b.ReservationExpiresAt,
		&b.ArrivalTime, &b.AdmissionTime, &b.DischargeDate, &b.CancellationReason, &b.Notes,
		&b.Latitude, &b.Longitude, &b.EstimatedArrivalMinutes,
		&b.TotalBillAmount, &b.InsuranceApprovedAmount, &b.OutOfPocketAmount,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &b, err
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_booking (id, user_id, hospital_id, emergency_type, bed_type,
			patient_condition, contact_person, contact_phone, status, reservation_expires_at,
			notes, latitude, longitude, estimated_arrival_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		b.ID, b.UserID, b.HospitalID, b.EmergencyType, b.BedType,
		b.PatientCondition, b.ContactPerson, b.ContactPhone, b.Status, b.ReservationExpiresAt,
		b.Notes, b.Latitude, b.Longitude, b.EstimatedArrivalMinutes)
	return err
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM emergency_booking WHERE id = $1`, id))
}

func (r *bookingRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM emergency_booking WHERE id = $1 FOR UPDATE`, id))
}

func (r *bookingRepoPG) Update(ctx context.Context, b *Booking) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_booking SET status=$2, arrival_time=$3, admission_time=$4,
			discharge_date=$5, cancellation_reason=$6, notes=$7, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.Status, b.ArrivalTime, b.AdmissionTime,
		b.DischargeDate, b.CancellationReason, b.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bookingRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_booking WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bookingCols+` FROM emergency_booking
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, nil
}

func statusStrings(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (r *bookingRepoPG) GetActive(ctx context.Context, userID uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx, `
		SELECT `+bookingCols+` FROM emergency_booking
		WHERE user_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1`, userID, statusStrings(ActiveStatuses())))
}

func (r *bookingRepoPG) ListExpired(ctx context.Context, now time.Time) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bookingCols+` FROM emergency_booking
		WHERE status = ANY($1) AND reservation_expires_at < $2
		ORDER BY reservation_expires_at`,
		statusStrings([]Status{StatusReserved, StatusPatientOnWay}), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

func (r *bookingRepoPG) UpdateFinancials(ctx context.Context, id uuid.UUID, total, insurance, outOfPocket decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_booking SET total_bill_amount=$2, insurance_approved_amount=$3,
			out_of_pocket_amount=$4, updated_at=NOW()
		WHERE id = $1`, id, total, insurance, outOfPocket)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package hospital

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const hospitalCols = `id, name, address, city, state, pin_code, phone, latitude, longitude,
	total_general_beds, available_general_beds, total_icu_beds, available_icu_beds,
	accepts_insurance, insurance_providers, general_bed_daily_cost, icu_bed_daily_cost,
	created_at, updated_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Address, &h.City, &h.State, &h.PinCode, &h.Phone,
		&h.Latitude, &h.Longitude,
		&h.TotalGeneralBeds, &h.AvailableGeneralBeds, &h.TotalIcuBeds, &h.AvailableIcuBeds,
		&h.AcceptsInsurance, &h.InsuranceProviders, &h.GeneralBedDailyCost, &h.IcuBedDailyCost,
		&h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &h, err
}

func (r *repoPG) Create(ctx context.Context, h *Hospital) error {
	h.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospital (id, name, address, city, state, pin_code, phone, latitude, longitude,
			total_general_beds, available_general_beds, total_icu_beds, available_icu_beds,
			accepts_insurance, insurance_providers, general_bed_daily_cost, icu_bed_daily_cost)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		h.ID, h.Name, h.Address, h.City, h.State, h.PinCode, h.Phone, h.Latitude, h.Longitude,
		h.TotalGeneralBeds, h.AvailableGeneralBeds, h.TotalIcuBeds, h.AvailableIcuBeds,
		h.AcceptsInsurance, h.InsuranceProviders, h.GeneralBedDailyCost, h.IcuBedDailyCost)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospital WHERE id = $1`, id))
}

// Update deliberately leaves the available counters alone; they move only
// through TryReserveBed and ReleaseBed.
func (r *repoPG) Update(ctx context.Context, h *Hospital) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospital SET name=$2, address=$3, city=$4, state=$5, pin_code=$6, phone=$7,
			latitude=$8, longitude=$9, total_general_beds=$10, total_icu_beds=$11,
			accepts_insurance=$12, insurance_providers=$13,
			general_bed_daily_cost=$14, icu_bed_daily_cost=$15, updated_at=NOW()
		WHERE id = $1`,
		h.ID, h.Name, h.Address, h.City, h.State, h.PinCode, h.Phone,
		h.Latitude, h.Longitude, h.TotalGeneralBeds, h.TotalIcuBeds,
		h.AcceptsInsurance, h.InsuranceProviders,
		h.GeneralBedDailyCost, h.IcuBedDailyCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospital WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+hospitalCols+` FROM hospital ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, h)
	}
	return items, total, nil
}

func (r *repoPG) ListWithCoordinates(ctx context.Context) ([]*Hospital, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+hospitalCols+` FROM hospital
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, nil
}

// bedColumns maps a reservable bed type to its counter columns. Column names
// come from this fixed table, never from request input.
func bedColumns(bedType BedType) (available, total string, err error) {
	switch bedType {
	case BedGeneral:
		return "available_general_beds", "total_general_beds", nil
	case BedICU:
		return "available_icu_beds", "total_icu_beds", nil
	default:
		return "", "", fmt.Errorf("%w: bed type %q is not reservable", ErrValidation, bedType)
	}
}

func (r *repoPG) TryReserveBed(ctx context.Context, id uuid.UUID, bedType BedType) error {
	avail, _, err := bedColumns(bedType)
	if err != nil {
		return err
	}
	// Conditional decrement: the WHERE clause is the capacity check, so two
	// concurrent reservations can never take the same last bed.
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE hospital SET %[1]s = %[1]s - 1, updated_at = NOW()
		WHERE id = $1 AND %[1]s > 0`, avail), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hospital WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNoCapacity
}

func (r *repoPG) ReleaseBed(ctx context.Context, id uuid.UUID, bedType BedType) (bool, error) {
	avail, total, err := bedColumns(bedType)
	if err != nil {
		return false, err
	}
	// Clamp at total; a no-op release means something upstream released twice.
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE hospital SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE id = $1 AND %[1]s < %[2]s`, avail, total), id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hospital WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

package hospital

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists hospitals and owns the bed counters. TryReserveBed and
// ReleaseBed are the only operations allowed to mutate availability.
type Repository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Hospital, int, error)

	// ListWithCoordinates returns every hospital that has both latitude and
	// longitude set, for geo ranking.
	ListWithCoordinates(ctx context.Context) ([]*Hospital, error)

	// TryReserveBed atomically decrements the available counter for the bed
	// type. Returns ErrNoCapacity when the counter is already zero and
	// ErrNotFound when the hospital does not exist. Never leaves the counter
	// negative.
	TryReserveBed(ctx context.Context, id uuid.UUID, bedType BedType) error

	// ReleaseBed increments the available counter, clamped at the total.
	// The returned flag is false when the counter was already at total and
	// nothing moved, which indicates a double release upstream.
	ReleaseBed(ctx context.Context, id uuid.UUID, bedType BedType) (bool, error)
}

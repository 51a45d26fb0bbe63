package hospital

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doklink/doklink/internal/platform/cache"
)

// Service is the hospital directory plus the ranked nearby search. Nearby
// results are cached for a short TTL and invalidated whenever a hospital's
// bed counters change.
type Service struct {
	repo     Repository
	store    cache.Store
	speedKmh float64
	cacheTTL time.Duration
	log      zerolog.Logger
}

func NewService(repo Repository, store cache.Store, speedKmh float64, cacheTTL time.Duration, log zerolog.Logger) *Service {
	return &Service{repo: repo, store: store, speedKmh: speedKmh, cacheTTL: cacheTTL, log: log}
}

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	if err := validateHospital(h); err != nil {
		return err
	}
	return s.repo.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateHospital(ctx context.Context, h *Hospital) error {
	if err := validateHospital(h); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, h); err != nil {
		return err
	}
	s.invalidate(ctx, h.ID)
	return nil
}

func (s *Service) DeleteHospital(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func validateHospital(h *Hospital) error {
	if h.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if h.TotalGeneralBeds < 0 || h.TotalIcuBeds < 0 {
		return fmt.Errorf("%w: bed totals must be non-negative", ErrValidation)
	}
	if h.AvailableGeneralBeds < 0 || h.AvailableGeneralBeds > h.TotalGeneralBeds {
		return fmt.Errorf("%w: available general beds must be between 0 and the total", ErrValidation)
	}
	if h.AvailableIcuBeds < 0 || h.AvailableIcuBeds > h.TotalIcuBeds {
		return fmt.Errorf("%w: available icu beds must be between 0 and the total", ErrValidation)
	}
	if (h.Latitude == nil) != (h.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be provided together", ErrValidation)
	}
	if h.Latitude != nil && !ValidCoordinates(*h.Latitude, *h.Longitude) {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}

// Nearby returns hospitals within radiusKm of the point that have at least
// one available bed of the requested type, ordered by ascending distance
// (hospital id breaks ties). Hospitals without coordinates never appear.
func (s *Service) Nearby(ctx context.Context, lat, lon, radiusKm float64, bedType BedType) ([]NearbyHospital, error) {
	if !ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrValidation)
	}
	if bedType == "" {
		bedType = BedAll
	}
	if bedType != BedAll && !bedType.ValidReservable() {
		return nil, fmt.Errorf("%w: unknown bed type %q", ErrValidation, bedType)
	}

	key := nearbyKey(lat, lon, radiusKm, bedType)
	if cached, err := s.store.Get(ctx, key); err == nil {
		var results []NearbyHospital
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
	}

	hospitals, err := s.repo.ListWithCoordinates(ctx)
	if err != nil {
		return nil, err
	}
	results := Rank(hospitals, lat, lon, radiusKm, bedType, s.speedKmh)

	if payload, err := json.Marshal(results); err == nil {
		tags := make([]string, 0, len(results))
		for _, r := range results {
			tags = append(tags, cache.HospitalTag(r.Hospital.ID.String()))
		}
		if err := s.store.Set(ctx, key, payload, s.cacheTTL, tags); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
		}
	}
	return results, nil
}

// Rank filters and orders hospitals for a nearby query. Exported so the
// booking flow can reuse it against an already-loaded hospital list.
func Rank(hospitals []*Hospital, lat, lon, radiusKm float64, bedType BedType, speedKmh float64) []NearbyHospital {
	results := make([]NearbyHospital, 0, len(hospitals))
	for _, h := range hospitals {
		if !h.HasCoordinates() {
			continue
		}
		if h.AvailableBeds(bedType) <= 0 {
			continue
		}
		dist := HaversineKm(lat, lon, *h.Latitude, *h.Longitude)
		if dist > radiusKm {
			continue
		}
		results = append(results, NearbyHospital{
			Hospital:         h,
			DistanceKm:       dist,
			EstimatedMinutes: EstimateMinutes(dist, speedKmh),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Hospital.ID.String() < results[j].Hospital.ID.String()
	})
	return results
}

// InvalidateAvailability drops every cached nearby result that contains the
// hospital. Called after any bed counter change; failure is logged and
// swallowed since entries self-expire via TTL.
func (s *Service) InvalidateAvailability(ctx context.Context, hospitalID uuid.UUID) {
	s.invalidate(ctx, hospitalID)
}

func (s *Service) invalidate(ctx context.Context, hospitalID uuid.UUID) {
	if err := s.store.InvalidateTags(ctx, cache.HospitalTag(hospitalID.String())); err != nil {
		s.log.Warn().Err(err).Str("hospital_id", hospitalID.String()).Msg("availability cache invalidation failed")
	}
}

// nearbyKey rounds coordinates to four decimal places (~11m) so retries of
// the same client query share an entry while distinct queries do not.
func nearbyKey(lat, lon, radiusKm float64, bedType BedType) string {
	return fmt.Sprintf("nearby:%.4f:%.4f:%.1f:%s", lat, lon, radiusKm, bedType)
}

// README: Matching service selects the nearest compatible vehicle for a pickup point.
package matching

import (
	"context"
	"errors"

	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/geo"
	"lifeline/internal/types"
)

var (
	// ErrNoCapacity means no compatible vehicle is currently available. It is
	// a recoverable condition, not a fault.
	ErrNoCapacity = errors.New("no compatible ambulance available")
	ErrBadRequest = errors.New("invalid pickup location")
)

// Registry is the read side of the availability index.
type Registry interface {
	Snapshot(ctx context.Context) ([]fleet.Vehicle, error)
}

type Service struct {
	registry Registry
}

func NewService(registry Registry) *Service {
	return &Service{registry: registry}
}

// FindNearest scans every available vehicle and returns the closest one whose
// capability class may serve the category. Ties go to the first vehicle
// encountered; iteration order over the index is not stable and callers must
// not rely on a deterministic tie-break. Read-only: the index is untouched.
func (s *Service) FindNearest(ctx context.Context, pickup types.Point, cat Category) (*Match, error) {
	if !pickup.Valid() {
		return nil, ErrBadRequest
	}

	vehicles, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var best *Match
	for _, v := range vehicles {
		if !Compatible(cat, v.Class) {
			continue
		}
		m := NewMatch(v, pickup)
		if best == nil || m.DistanceKm < best.DistanceKm {
			best = &m
		}
	}
	if best == nil {
		return nil, ErrNoCapacity
	}
	return best, nil
}

// Nearby lists every available vehicle within radiusKm of center, nearest
// first, regardless of capability class.
func (s *Service) Nearby(ctx context.Context, center types.Point, radiusKm float64) ([]Match, error) {
	if !center.Valid() || radiusKm <= 0 {
		return nil, ErrBadRequest
	}

	vehicles, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(vehicles))
	for _, v := range vehicles {
		if m := NewMatch(v, center); m.DistanceKm <= radiusKm {
			matches = append(matches, m)
		}
	}
	geo.SortByDistance(matches, func(m Match) float64 { return m.DistanceKm })
	return matches, nil
}

package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"lifeline/internal/types"
)

// Hospital is a simplified place result surfaced to requesters choosing a
// dropoff.
type Hospital struct {
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Rating           float32 `json:"rating,omitempty"`
	PlaceID          string  `json:"place_id"`
	UserRatingsTotal int     `json:"user_ratings_total,omitempty"`
	OpenNow          bool    `json:"open_now"`
}

// PlacesService handles interactions with the Google Places API.
type PlacesService struct {
	client *maps.Client
}

// NewPlacesService creates a new PlacesService with the given API key.
func NewPlacesService(apiKey string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client}, nil
}

// NearbyHospitals lists hospitals within radiusMeters of center, capped to
// the top ten results.
func (s *PlacesService) NearbyHospitals(ctx context.Context, center types.Point, radiusMeters uint) ([]Hospital, error) {
	if radiusMeters == 0 {
		radiusMeters = 5000
	}
	r := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: center.Lat, Lng: center.Lng},
		Radius:   radiusMeters,
		Type:     maps.PlaceTypeHospital,
	}

	resp, err := s.client.NearbySearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	var results []Hospital
	for _, result := range resp.Results {
		h := Hospital{
			Name:             result.Name,
			Address:          result.Vicinity,
			Lat:              result.Geometry.Location.Lat,
			Lng:              result.Geometry.Location.Lng,
			Rating:           result.Rating,
			PlaceID:          result.PlaceID,
			UserRatingsTotal: result.UserRatingsTotal,
		}
		if result.OpeningHours != nil && result.OpeningHours.OpenNow != nil {
			h.OpenNow = *result.OpeningHours.OpenNow
		}
		results = append(results, h)

		if len(results) >= 10 {
			break
		}
	}
	return results, nil
}

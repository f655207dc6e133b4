// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"lifeline/internal/types"
)

const earthRadiusKm = 6371.0

// avgSpeedKmh is the assumed average ambulance speed used for the naive ETA.
const avgSpeedKmh = 40.0

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees, using the haversine formula.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// EtaMinutes converts a road-free distance into a rough arrival estimate,
// rounded to the nearest minute.
func EtaMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm / avgSpeedKmh * 60))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

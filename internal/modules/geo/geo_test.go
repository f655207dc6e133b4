package geo

import (
	"math"
	"testing"

	"lifeline/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 19.076, Lng: 72.878},
			b:         types.Point{Lat: 19.076, Lng: 72.878},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Bandra to Dadar (~5km)",
			a:         types.Point{Lat: 19.0596, Lng: 72.8295},
			b:         types.Point{Lat: 19.0178, Lng: 72.8478},
			wantKm:    5.0,
			tolerance: 1.0,
		},
		{
			name:      "Mumbai to Delhi (~1150km)",
			a:         types.Point{Lat: 19.0760, Lng: 72.8777},
			b:         types.Point{Lat: 28.7041, Lng: 77.1025},
			wantKm:    1150,
			tolerance: 30,
		},
		{
			name:      "antipodal points (~half circumference)",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 0, Lng: 180},
			wantKm:    20015,
			tolerance: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
			if got < 0 {
				t.Errorf("DistanceKm() = %f, want non-negative", got)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 19.0, Lng: 72.0}
	b := types.Point{Lat: 20.0, Lng: 73.0}
	d1 := DistanceKm(a, b)
	d2 := DistanceKm(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}

func TestEtaMinutes(t *testing.T) {
	tests := []struct {
		distanceKm float64
		want       int
	}{
		{0, 0},
		{40, 60},
		{1.2, 2},  // 1.8 min rounds to 2
		{10, 15},  // 15 min at 40 km/h
		{0.3, 0},  // 0.45 min rounds down
	}
	for _, tt := range tests {
		if got := EtaMinutes(tt.distanceKm); got != tt.want {
			t.Errorf("EtaMinutes(%f) = %d, want %d", tt.distanceKm, got, tt.want)
		}
	}
}

func TestSortByDistance(t *testing.T) {
	type item struct {
		id   string
		dist float64
	}
	items := []item{{"c", 5.0}, {"a", 1.0}, {"b", 3.0}}

	SortByDistance(items, func(i item) float64 { return i.dist })

	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var items []struct{ d float64 }
	SortByDistance(items, func(i struct{ d float64 }) float64 { return i.d })
}

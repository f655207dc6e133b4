// README: Vehicle records and capability classes.
package fleet

import (
	"time"

	"lifeline/internal/types"
)

// CapabilityClass is the equipment/service tier of a vehicle.
type CapabilityClass string

const (
	ClassBasic    CapabilityClass = "basic"
	ClassAdvanced CapabilityClass = "advanced"
	ClassCritical CapabilityClass = "critical"
	ClassNeonatal CapabilityClass = "neonatal"
)

// KnownClass reports whether c is one of the recognised capability tiers.
func KnownClass(c CapabilityClass) bool {
	switch c {
	case ClassBasic, ClassAdvanced, ClassCritical, ClassNeonatal:
		return true
	}
	return false
}

// Vehicle is a driver-reported ambulance record. The driver owns the
// location/availability fields; the booking lifecycle only moves the record
// in and out of the availability index.
type Vehicle struct {
	ID types.ID `json:"id"`
	types.Point
	Class     CapabilityClass `json:"class"`
	Available bool            `json:"available"`
	Seq       int64           `json:"seq"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Optional profile fields surfaced in booking responses.
	DriverName      string `json:"driver_name,omitempty"`
	DriverPhone     string `json:"driver_phone,omitempty"`
	LicensePlate    string `json:"license_plate,omitempty"`
	HospitalNetwork string `json:"hospital_network,omitempty"`
}

// TrackPoint is a live-location sample for a vehicle.
type TrackPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Seq int64   `json:"seq"`
	Ts  string  `json:"ts"`
}

func (p TrackPoint) Point() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

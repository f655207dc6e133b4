// README: Fleet service validates driver reports and keeps the availability index honest.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifeline/internal/logger"
	"lifeline/internal/types"
)

var ErrBadReport = errors.New("invalid vehicle report")

type Service struct {
	store *Store
	log   logger.ILogger
}

func NewService(store *Store, log logger.ILogger) *Service {
	return &Service{store: store, log: log}
}

// StatusReport is a driver's own declaration of position, availability, and tier.
type StatusReport struct {
	VehicleID types.ID
	Position  types.Point
	Class     CapabilityClass
	Available bool
	Seq       int64

	DriverName      string
	DriverPhone     string
	LicensePlate    string
	HospitalNetwork string
}

// ReportStatus applies a full driver status report. The location is always
// recorded; the availability index entry follows the availability flag.
func (s *Service) ReportStatus(ctx context.Context, r StatusReport) (*Vehicle, error) {
	if r.VehicleID == "" || !r.Position.Valid() {
		return nil, ErrBadReport
	}
	if r.Class == "" {
		r.Class = ClassBasic
	}
	if !KnownClass(r.Class) {
		return nil, fmt.Errorf("%w: unknown capability class %q", ErrBadReport, r.Class)
	}

	v := Vehicle{
		ID:              r.VehicleID,
		Point:           r.Position,
		Class:           r.Class,
		Available:       r.Available,
		Seq:             r.Seq,
		UpdatedAt:       time.Now().UTC(),
		DriverName:      r.DriverName,
		DriverPhone:     r.DriverPhone,
		LicensePlate:    r.LicensePlate,
		HospitalNetwork: r.HospitalNetwork,
	}
	if err := s.store.PutReport(ctx, v); err != nil {
		return nil, err
	}
	s.log.Debug("vehicle status reported",
		logger.String("vehicle_id", string(v.ID)),
		logger.Bool("available", v.Available))
	return &v, nil
}

// UpdateLocation applies a location-only report. Stale reports (sequence not
// newer than the stored one) are dropped; the bool result says whether the
// report was applied.
func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point, seq int64) (bool, error) {
	if id == "" || !p.Valid() {
		return false, ErrBadReport
	}
	return s.store.UpdateLocation(ctx, id, p, seq, time.Now())
}

// Claim removes a vehicle from the availability index for assignment.
func (s *Service) Claim(ctx context.Context, id types.ID) (*Vehicle, error) {
	return s.store.Claim(ctx, id)
}

// Release returns a vehicle to the availability index at its last reported
// location, unless the driver has since declared it unavailable.
func (s *Service) Release(ctx context.Context, id types.ID) error {
	rec, err := s.store.Record(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// Vehicle never reported after assignment; nothing to reinsert.
		s.log.Warning("release: no record for vehicle", logger.String("vehicle_id", string(id)))
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.Available {
		s.log.Info("release: driver reported unavailable, not reinserting",
			logger.String("vehicle_id", string(id)))
		return nil
	}
	if loc, err := s.store.Location(ctx, id); err == nil {
		rec.Lat = loc.Lat
		rec.Lng = loc.Lng
		rec.Seq = loc.Seq
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.store.Insert(ctx, *rec)
}

// Snapshot returns the vehicles currently eligible for assignment.
func (s *Service) Snapshot(ctx context.Context) ([]Vehicle, error) {
	return s.store.Snapshot(ctx)
}

// Location returns the live location of a vehicle.
func (s *Service) Location(ctx context.Context, id types.ID) (*TrackPoint, error) {
	return s.store.Location(ctx, id)
}

// Seed loads fixture vehicles into the registry at process start.
func (s *Service) Seed(ctx context.Context, vehicles []Vehicle) error {
	for _, v := range vehicles {
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = time.Now().UTC()
		}
		if err := s.store.PutReport(ctx, v); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
		}
	}
	s.log.Info("fleet seeded", logger.Int("vehicles", len(vehicles)))
	return nil
}

// README: Booking service implements the dispatch lifecycle: request, assign, ride, release.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"lifeline/internal/logger"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/matching"
	"lifeline/internal/types"
)

var (
	ErrBadRequest   = errors.New("invalid booking request")
	ErrNotFound     = errors.New("booking not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("booking state conflict")
	// ErrNoCapacity mirrors matching.ErrNoCapacity at this layer so HTTP can
	// map the distinguished "no ambulances" response.
	ErrNoCapacity = matching.ErrNoCapacity
)

// claimAttempts bounds the rematch loop when a matched vehicle is snatched
// by a concurrent booking between snapshot and claim.
const claimAttempts = 3

// BookingStore is the durable record store.
type BookingStore interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id int64) (*Booking, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, version int, vehicleID *types.ID, reason *string) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListByRequester(ctx context.Context, requesterID types.ID, limit int) ([]Booking, error)
	ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error)
}

// Cache is the fast-path tracking store for live bookings.
type Cache interface {
	SetActive(ctx context.Context, e ActiveEntry) error
	GetActive(ctx context.Context, bookingID int64) (*ActiveEntry, error)
	UpdateActiveStatus(ctx context.Context, bookingID int64, status Status) error
	RemoveActive(ctx context.Context, bookingID int64, vehicleID types.ID) error
	BookingForVehicle(ctx context.Context, vehicleID types.ID) (int64, error)
}

// Matcher selects the nearest compatible vehicle.
type Matcher interface {
	FindNearest(ctx context.Context, pickup types.Point, cat matching.Category) (*matching.Match, error)
}

// Registry is the write side of the availability index.
type Registry interface {
	Claim(ctx context.Context, id types.ID) (*fleet.Vehicle, error)
	Release(ctx context.Context, id types.ID) error
	Location(ctx context.Context, id types.ID) (*fleet.TrackPoint, error)
}

// Notifier pushes lifecycle signals to live subscribers. Best-effort.
type Notifier interface {
	NotifyAssigned(bookingID int64, vehicleID string, lat, lng float64, etaMinutes int)
	NotifyStatus(bookingID int64, status string, message string)
	NotifyClosed(bookingID int64)
}

// Publisher fans lifecycle events out to sibling services. Best-effort.
type Publisher interface {
	PublishBookingEvent(ctx context.Context, evt StatusEvent) error
}

// RouteEstimator refines the straight-line arrival estimate with a road
// route. Optional; the haversine estimate stands when it is absent or fails.
type RouteEstimator interface {
	TravelEstimate(ctx context.Context, origin, destination types.Point) (time.Duration, string, error)
}

type Config struct {
	// RequestTTL is the maximum time a booking may stay in requested before
	// the expiry monitor cancels it.
	RequestTTL time.Duration
	// ExpiryTick is the sweep interval of the expiry monitor.
	ExpiryTick time.Duration
}

type Service struct {
	store     BookingStore
	cache     Cache
	matcher   Matcher
	fleet     Registry
	notifier  Notifier
	publisher Publisher
	routes    RouteEstimator
	cfg       Config
	log       logger.ILogger
}

func NewService(store BookingStore, cache Cache, matcher Matcher, registry Registry, cfg Config, log logger.ILogger) *Service {
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = 5 * time.Minute
	}
	if cfg.ExpiryTick <= 0 {
		cfg.ExpiryTick = 30 * time.Second
	}
	return &Service{store: store, cache: cache, matcher: matcher, fleet: registry, cfg: cfg, log: log}
}

// SetNotifier attaches the live push channel. Wired after construction
// because the hub and the service are created independently.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetPublisher attaches the event fan-out.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// SetRouteEstimator attaches the road-route ETA refiner.
func (s *Service) SetRouteEstimator(r RouteEstimator) { s.routes = r }

type CreateCommand struct {
	RequesterID    types.ID
	Pickup         types.Point
	PickupAddress  string
	Dropoff        *types.Point
	DropoffAddress *string
	Category       string
	ContactNumber  string
	PatientNotes   string
}

// CreateResult carries the persisted booking and, when capacity existed, the
// matched vehicle.
type CreateResult struct {
	Booking *Booking
	Match   *matching.Match
}

// Create validates the request, persists it, and tries to assign the nearest
// compatible vehicle. When no compatible vehicle is available the booking is
// left in requested (the expiry monitor will cancel it after RequestTTL) and
// ErrNoCapacity is returned alongside the result.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if cmd.RequesterID == "" || !cmd.Pickup.Valid() || cmd.ContactNumber == "" {
		return nil, ErrBadRequest
	}
	if cmd.Dropoff != nil && !cmd.Dropoff.Valid() {
		return nil, ErrBadRequest
	}
	cat, ok := matching.NormalizeCategory(cmd.Category)
	if !ok {
		return nil, fmt.Errorf("%w: unknown emergency category %q", ErrBadRequest, cmd.Category)
	}

	b := &Booking{
		RequesterID:    cmd.RequesterID,
		Pickup:         cmd.Pickup,
		PickupAddress:  cmd.PickupAddress,
		Dropoff:        cmd.Dropoff,
		DropoffAddress: cmd.DropoffAddress,
		Category:       cat,
		ContactNumber:  cmd.ContactNumber,
		PatientNotes:   cmd.PatientNotes,
		Status:         StatusRequested,
		StatusVersion:  0,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, StatusNone, StatusRequested, "requester", &cmd.RequesterID)

	m, err := s.assignNearest(ctx, b)
	if errors.Is(err, matching.ErrNoCapacity) {
		s.log.Info("no capacity for booking",
			logger.Int64("booking_id", b.ID),
			logger.String("category", string(cat)))
		return &CreateResult{Booking: b}, ErrNoCapacity
	}
	if err != nil {
		return nil, err
	}
	return &CreateResult{Booking: b, Match: m}, nil
}

// assignNearest matches and claims a vehicle, then moves the booking from
// requested to assigned. The claim is the single atomic step that removes
// the vehicle from the index; if the subsequent durable write fails the
// claim is compensated by a release.
func (s *Service) assignNearest(ctx context.Context, b *Booking) (*matching.Match, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		m, err := s.matcher.FindNearest(ctx, b.Pickup, b.Category)
		if err != nil {
			return nil, err
		}

		claimed, err := s.fleet.Claim(ctx, m.ID)
		if errors.Is(err, fleet.ErrNotAvailable) {
			// Raced with a concurrent assignment; rematch over the fresh index.
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := s.assign(ctx, b, claimed, m); err != nil {
			if relErr := s.fleet.Release(ctx, claimed.ID); relErr != nil {
				s.log.Error("compensating release failed",
					logger.String("vehicle_id", string(claimed.ID)),
					logger.Error(relErr))
			}
			return nil, err
		}
		return m, nil
	}
	return nil, matching.ErrNoCapacity
}

func (s *Service) assign(ctx context.Context, b *Booking, v *fleet.Vehicle, m *matching.Match) error {
	if !CanTransition(b.Status, StatusAssigned) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, StatusAssigned, b.StatusVersion, &v.ID, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	from := b.Status
	b.Status = StatusAssigned
	b.StatusVersion++
	b.VehicleID = &v.ID

	if s.routes != nil {
		if d, _, rerr := s.routes.TravelEstimate(ctx, v.Point, b.Pickup); rerr == nil {
			m.EtaMinutes = int(math.Round(d.Minutes()))
		} else {
			s.log.Warning("route estimate failed, keeping straight-line eta",
				logger.Int64("booking_id", b.ID), logger.Error(rerr))
		}
	}

	s.appendEvent(ctx, b.ID, from, StatusAssigned, "system", nil)
	s.publishEvent(ctx, b, from, StatusAssigned, "system")

	entry := ActiveEntry{
		BookingID:     b.ID,
		RequesterID:   b.RequesterID,
		VehicleID:     v.ID,
		VehicleClass:  string(v.Class),
		Status:        StatusAssigned,
		Pickup:        b.Pickup,
		PickupAddress: b.PickupAddress,
		Dropoff:       b.Dropoff,
		Category:      b.Category,
		EtaMinutes:    m.EtaMinutes,
		CreatedAt:     b.CreatedAt,
	}
	if b.DropoffAddress != nil {
		entry.DropoffAddress = *b.DropoffAddress
	}
	if err := s.cache.SetActive(ctx, entry); err != nil {
		s.log.Error("fast-path entry write failed", logger.Int64("booking_id", b.ID), logger.Error(err))
	}

	if s.notifier != nil {
		s.notifier.NotifyAssigned(b.ID, string(v.ID), v.Lat, v.Lng, m.EtaMinutes)
	}
	return nil
}

type SignalCommand struct {
	BookingID int64
	DriverID  types.ID
}

// Accept is the driver acknowledgement: assigned → en_route.
func (s *Service) Accept(ctx context.Context, cmd SignalCommand) error {
	return s.driverTransition(ctx, cmd, StatusEnRoute, "Your ambulance is on the way!")
}

// Arrive marks the vehicle at the pickup point: en_route → arrived.
func (s *Service) Arrive(ctx context.Context, cmd SignalCommand) error {
	return s.driverTransition(ctx, cmd, StatusArrived, "Your ambulance has arrived.")
}

func (s *Service) driverTransition(ctx context.Context, cmd SignalCommand, to Status, message string) error {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if b.VehicleID == nil || *b.VehicleID != cmd.DriverID {
		return fmt.Errorf("%w: booking is not held by this vehicle", ErrConflict)
	}
	if !CanTransition(b.Status, to) {
		if b.Status.Terminal() {
			return ErrConflict
		}
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, to, b.StatusVersion, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, b.ID, b.Status, to, "driver", &cmd.DriverID)
	s.publishEvent(ctx, b, b.Status, to, "driver")

	if err := s.cache.UpdateActiveStatus(ctx, b.ID, to); err != nil {
		s.log.Error("fast-path status update failed", logger.Int64("booking_id", b.ID), logger.Error(err))
	}
	if s.notifier != nil {
		s.notifier.NotifyStatus(b.ID, string(to), message)
	}
	return nil
}

// Complete finishes the ride: arrived → completed. The vehicle returns to the
// availability index at its last reported location, unless the driver has
// separately declared it unavailable.
func (s *Service) Complete(ctx context.Context, cmd SignalCommand) error {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if b.VehicleID == nil || *b.VehicleID != cmd.DriverID {
		return fmt.Errorf("%w: booking is not held by this vehicle", ErrConflict)
	}
	if !CanTransition(b.Status, StatusCompleted) {
		if b.Status.Terminal() {
			return ErrConflict
		}
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, StatusCompleted, b.StatusVersion, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, b.ID, b.Status, StatusCompleted, "driver", &cmd.DriverID)
	s.publishEvent(ctx, b, b.Status, StatusCompleted, "driver")

	s.closeBooking(ctx, b.ID, *b.VehicleID, true)
	if s.notifier != nil {
		s.notifier.NotifyStatus(b.ID, string(StatusCompleted), "Booking completed.")
		s.notifier.NotifyClosed(b.ID)
	}
	return nil
}

type CancelCommand struct {
	BookingID int64
	ActorType string // "requester", "operator", or "system"
	ActorID   *types.ID
	Reason    string
}

// Cancel aborts a booking from any non-terminal state, releasing the vehicle
// if one was assigned.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return ErrConflict
	}
	reason := cmd.Reason
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, StatusCancelled, b.StatusVersion, nil, &reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, b.ID, b.Status, StatusCancelled, cmd.ActorType, cmd.ActorID)
	s.publishEvent(ctx, b, b.Status, StatusCancelled, cmd.ActorType)

	if b.VehicleID != nil {
		s.closeBooking(ctx, b.ID, *b.VehicleID, true)
	}
	if s.notifier != nil {
		s.notifier.NotifyStatus(b.ID, string(StatusCancelled), "Booking cancelled.")
		s.notifier.NotifyClosed(b.ID)
	}
	return nil
}

// closeBooking drops the fast-path entry and optionally returns the vehicle
// to the availability index.
func (s *Service) closeBooking(ctx context.Context, bookingID int64, vehicleID types.ID, release bool) {
	if release {
		if err := s.fleet.Release(ctx, vehicleID); err != nil {
			s.log.Error("vehicle release failed",
				logger.String("vehicle_id", string(vehicleID)),
				logger.Error(err))
		}
	}
	if err := s.cache.RemoveActive(ctx, bookingID, vehicleID); err != nil {
		s.log.Error("fast-path entry removal failed", logger.Int64("booking_id", bookingID), logger.Error(err))
	}
}

// TrackInfo is the live tracking view of a booking.
type TrackInfo struct {
	Entry   *ActiveEntry
	Vehicle *fleet.TrackPoint
}

// Track returns the fast-path view of an active booking plus the assigned
// vehicle's live location. ErrNotFound once the booking is no longer active;
// history remains queryable through the durable store.
func (s *Service) Track(ctx context.Context, bookingID int64) (*TrackInfo, error) {
	entry, err := s.cache.GetActive(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	info := &TrackInfo{Entry: entry}
	if loc, err := s.fleet.Location(ctx, entry.VehicleID); err == nil {
		info.Vehicle = loc
	}
	return info, nil
}

// Get returns the durable booking record.
func (s *Service) Get(ctx context.Context, id int64) (*Booking, error) {
	return s.store.Get(ctx, id)
}

// History returns the requester's most recent bookings.
func (s *Service) History(ctx context.Context, requesterID types.ID, limit int) ([]Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByRequester(ctx, requesterID, limit)
}

// ActiveBookingForVehicle returns the live booking currently holding a vehicle.
func (s *Service) ActiveBookingForVehicle(ctx context.Context, vehicleID types.ID) (int64, error) {
	return s.cache.BookingForVehicle(ctx, vehicleID)
}

// RunExpiryMonitor cancels bookings stuck in requested for longer than
// RequestTTL. Without it a no-capacity booking would wait forever.
func (s *Service) RunExpiryMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ExpiryTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.RequestTTL)
	stale, err := s.store.ListRequestedBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("expiry sweep query failed", logger.Error(err))
		return
	}
	for _, b := range stale {
		err := s.Cancel(ctx, CancelCommand{
			BookingID: b.ID,
			ActorType: "system",
			Reason:    "expired",
		})
		if err != nil && !errors.Is(err, ErrConflict) {
			s.log.Error("expiry cancel failed", logger.Int64("booking_id", b.ID), logger.Error(err))
			continue
		}
		if err == nil {
			s.log.Info("booking expired", logger.Int64("booking_id", b.ID))
		}
	}
}

func (s *Service) appendEvent(ctx context.Context, bookingID int64, from, to Status, actorType string, actorID *types.ID) {
	_ = s.store.AppendEvent(ctx, &Event{
		BookingID:  bookingID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now().UTC(),
	})
}

func (s *Service) publishEvent(ctx context.Context, b *Booking, from, to Status, actorType string) {
	if s.publisher == nil {
		return
	}
	evt := StatusEvent{
		BookingID:  b.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		OccurredAt: time.Now().UTC(),
	}
	if b.VehicleID != nil {
		evt.VehicleID = string(*b.VehicleID)
	}
	if err := s.publisher.PublishBookingEvent(ctx, evt); err != nil {
		s.log.Warning("booking event publish failed", logger.Int64("booking_id", b.ID), logger.Error(err))
	}
}

// README: Booking store backed by PostgreSQL.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lifeline/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, b *Booking) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO bookings (
			requester_id, vehicle_id, status, status_version,
			pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address,
			category, contact_number, patient_notes, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14
		) RETURNING id`,
		string(b.RequesterID),
		idPtr(b.VehicleID),
		string(b.Status),
		b.StatusVersion,
		b.Pickup.Lat, b.Pickup.Lng, b.PickupAddress,
		latPtr(b.Dropoff), lngPtr(b.Dropoff), b.DropoffAddress,
		string(b.Category),
		b.ContactNumber,
		b.PatientNotes,
		b.CreatedAt,
	)
	return row.Scan(&b.ID)
}

func (s *Store) Get(ctx context.Context, id int64) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, requester_id, vehicle_id, status, status_version,
		       pickup_lat, pickup_lng, pickup_address,
		       dropoff_lat, dropoff_lng, dropoff_address,
		       category, contact_number, patient_notes, cancel_reason,
		       created_at, accepted_at, arrived_at, completed_at, cancelled_at
		FROM bookings
		WHERE id = $1`, id,
	)
	return scanBooking(row)
}

// UpdateStatus performs the optimistic compare-and-swap transition. It
// returns false without error when another writer got there first.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to Status, version int, vehicleID *types.ID, reason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1,
		    vehicle_id = COALESCE($2, vehicle_id),
		    cancel_reason = COALESCE($3, cancel_reason),
		    accepted_at = CASE WHEN $1 = 'en_route' THEN NOW() ELSE accepted_at END,
		    arrived_at = CASE WHEN $1 = 'arrived' THEN NOW() ELSE arrived_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(to),
		idPtr(vehicleID),
		reason,
		id,
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_state_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.BookingID,
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// ListByRequester returns the requester's bookings, newest first.
func (s *Store) ListByRequester(ctx context.Context, requesterID types.ID, limit int) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, requester_id, vehicle_id, status, status_version,
		       pickup_lat, pickup_lng, pickup_address,
		       dropoff_lat, dropoff_lng, dropoff_address,
		       category, contact_number, patient_notes, cancel_reason,
		       created_at, accepted_at, arrived_at, completed_at, cancelled_at
		FROM bookings
		WHERE requester_id = $1
		ORDER BY id DESC
		LIMIT $2`, string(requesterID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ListRequestedBefore returns bookings still waiting for assignment that were
// created before cutoff. Used by the expiry monitor.
func (s *Store) ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, requester_id, vehicle_id, status, status_version,
		       pickup_lat, pickup_lng, pickup_address,
		       dropoff_lat, dropoff_lng, dropoff_address,
		       category, contact_number, patient_notes, cancel_reason,
		       created_at, accepted_at, arrived_at, completed_at, cancelled_at
		FROM bookings
		WHERE status = 'requested' AND created_at < $1`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	var b Booking
	var vehicleID, dropoffAddress, cancelReason sql.NullString
	var dropoffLat, dropoffLng sql.NullFloat64
	var acceptedAt, arrivedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.RequesterID, &vehicleID, &b.Status, &b.StatusVersion,
		&b.Pickup.Lat, &b.Pickup.Lng, &b.PickupAddress,
		&dropoffLat, &dropoffLng, &dropoffAddress,
		&b.Category, &b.ContactNumber, &b.PatientNotes, &cancelReason,
		&b.CreatedAt, &acceptedAt, &arrivedAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if vehicleID.Valid {
		v := types.ID(vehicleID.String)
		b.VehicleID = &v
	}
	if dropoffLat.Valid && dropoffLng.Valid {
		b.Dropoff = &types.Point{Lat: dropoffLat.Float64, Lng: dropoffLng.Float64}
	}
	if dropoffAddress.Valid {
		b.DropoffAddress = &dropoffAddress.String
	}
	if cancelReason.Valid {
		b.CancelReason = &cancelReason.String
	}
	b.AcceptedAt = toTimePtr(acceptedAt)
	b.ArrivedAt = toTimePtr(arrivedAt)
	b.CompletedAt = toTimePtr(completedAt)
	b.CancelledAt = toTimePtr(cancelledAt)
	return &b, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func latPtr(p *types.Point) *float64 {
	if p == nil {
		return nil
	}
	return &p.Lat
}

func lngPtr(p *types.Point) *float64 {
	if p == nil {
		return nil
	}
	return &p.Lng
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

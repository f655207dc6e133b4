// README: Booking aggregate and status definitions.
package booking

import (
	"time"

	"lifeline/internal/modules/matching"
	"lifeline/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusRequested Status = "requested"
	StatusAssigned  Status = "assigned"
	StatusEnRoute   Status = "en_route"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusRequested: {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusEnRoute, StatusCancelled},
	StatusEnRoute:   {StatusArrived, StatusCancelled},
	StatusArrived:   {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Booking struct {
	ID             int64             `json:"id"`
	RequesterID    types.ID          `json:"requester_id"`
	VehicleID      *types.ID         `json:"vehicle_id,omitempty"`
	Pickup         types.Point       `json:"pickup"`
	PickupAddress  string            `json:"pickup_address,omitempty"`
	Dropoff        *types.Point      `json:"dropoff,omitempty"`
	DropoffAddress *string           `json:"dropoff_address,omitempty"`
	Category       matching.Category `json:"category"`
	ContactNumber  string            `json:"contact_number"`
	PatientNotes   string            `json:"patient_notes,omitempty"`
	Status         Status            `json:"status"`
	StatusVersion  int               `json:"status_version"`
	CancelReason   *string           `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	AcceptedAt     *time.Time        `json:"accepted_at,omitempty"`
	ArrivedAt      *time.Time        `json:"arrived_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty"`
}

// Event is one entry of the booking state log.
type Event struct {
	ID         int64
	BookingID  int64
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// StatusEvent is the message published to sibling services on every
// lifecycle transition.
type StatusEvent struct {
	BookingID  int64     `json:"booking_id"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActiveEntry is the fast-path tracking record kept in Redis while a booking
// is live. History survives in Postgres after the entry is dropped.
type ActiveEntry struct {
	BookingID      int64             `json:"booking_id"`
	RequesterID    types.ID          `json:"requester_id"`
	VehicleID      types.ID          `json:"vehicle_id"`
	VehicleClass   string            `json:"vehicle_class"`
	Status         Status            `json:"status"`
	Pickup         types.Point       `json:"pickup"`
	PickupAddress  string            `json:"pickup_address"`
	Dropoff        *types.Point      `json:"dropoff,omitempty"`
	DropoffAddress string            `json:"dropoff_address,omitempty"`
	Category       matching.Category `json:"category"`
	EtaMinutes     int               `json:"eta_minutes"`
	CreatedAt      time.Time         `json:"created_at"`
}

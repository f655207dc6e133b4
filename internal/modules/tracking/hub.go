// README: Tracking hub fans booking updates out to websocket subscribers.
package tracking

import (
	"sync"

	"lifeline/internal/logger"
)

// Frame is the wire message pushed to tracking subscribers.
type Frame struct {
	Type       string  `json:"type"`
	BookingID  int64   `json:"booking_id"`
	VehicleID  string  `json:"vehicle_id,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	EtaMinutes int     `json:"eta_minutes,omitempty"`
	Status     string  `json:"status,omitempty"`
	Message    string  `json:"message,omitempty"`
}

const (
	FrameAssigned = "vehicle_assigned"
	FrameLocation = "vehicle_location"
	FrameStatus   = "status_update"
	FrameClosed   = "booking_closed"
)

// Hub tracks the subscriber set per booking. Delivery is best-effort: a
// subscriber whose send buffer is full misses the frame rather than stalling
// the broadcast.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[*Client]struct{}
	log  logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{subs: map[int64]map[*Client]struct{}{}, log: log}
}

func (h *Hub) Subscribe(bookingID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[bookingID]
	if !ok {
		set = map[*Client]struct{}{}
		h.subs[bookingID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unsubscribe(bookingID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[bookingID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, bookingID)
	}
}

// Broadcast delivers a frame to every subscriber of the booking.
func (h *Hub) Broadcast(bookingID int64, f Frame) {
	f.BookingID = bookingID

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[bookingID] {
		if !c.trySend(f) {
			h.log.Warning("tracking subscriber lagging, frame dropped",
				logger.Int64("booking_id", bookingID))
		}
	}
}

// CloseBooking sends the final frame and disconnects every subscriber.
func (h *Hub) CloseBooking(bookingID int64) {
	h.mu.Lock()
	set := h.subs[bookingID]
	delete(h.subs, bookingID)
	h.mu.Unlock()

	for c := range set {
		c.trySend(Frame{Type: FrameClosed, BookingID: bookingID})
		c.Close()
	}
}

func (h *Hub) SubscriberCount(bookingID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[bookingID])
}

// The hub doubles as the booking lifecycle notifier.

func (h *Hub) NotifyAssigned(bookingID int64, vehicleID string, lat, lng float64, etaMinutes int) {
	h.Broadcast(bookingID, Frame{
		Type:       FrameAssigned,
		VehicleID:  vehicleID,
		Lat:        lat,
		Lng:        lng,
		EtaMinutes: etaMinutes,
	})
}

func (h *Hub) NotifyStatus(bookingID int64, status, message string) {
	h.Broadcast(bookingID, Frame{Type: FrameStatus, Status: status, Message: message})
}

func (h *Hub) NotifyLocation(bookingID int64, vehicleID string, lat, lng float64) {
	h.Broadcast(bookingID, Frame{Type: FrameLocation, VehicleID: vehicleID, Lat: lat, Lng: lng})
}

func (h *Hub) NotifyClosed(bookingID int64) {
	h.CloseBooking(bookingID)
}

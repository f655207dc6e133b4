// README: Websocket endpoints: requester live tracking and the driver channel.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"lifeline/internal/http/middleware"
	"lifeline/internal/logger"
	"lifeline/internal/modules/booking"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/tracking"
	"lifeline/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub     *tracking.Hub
	fleet   *fleet.Service
	booking *booking.Service
	log     logger.ILogger
}

func NewWSHandler(hub *tracking.Hub, fleetSvc *fleet.Service, bookingSvc *booking.Service, log logger.ILogger) *WSHandler {
	return &WSHandler{hub: hub, fleet: fleetSvc, booking: bookingSvc, log: log}
}

// Track subscribes the caller to live updates for one booking. The socket is
// receive-only; it is closed by the hub when the booking reaches a terminal
// state.
func (h *WSHandler) Track(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	// The booking must be live before we hold a socket open for it.
	if _, err := h.booking.Track(c.Request.Context(), id); err != nil {
		writeBookingError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warning("websocket upgrade failed", logger.Error(err))
		return
	}

	client := tracking.NewClient(conn)
	h.hub.Subscribe(id, client)
	go client.WritePump()
	client.ReadPump()
	h.hub.Unsubscribe(id, client)
}

type driverMessage struct {
	Type      string  `json:"type"`
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
	Seq       int64   `json:"seq,omitempty"`
	BookingID int64   `json:"booking_id,omitempty"`
}

type driverReply struct {
	Type      string `json:"type"`
	OK        bool   `json:"ok"`
	BookingID int64  `json:"booking_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Driver is the persistent driver channel: location updates stream in, and
// ride progression messages ride the same socket.
func (h *WSHandler) Driver(c *gin.Context) {
	driverID := types.ID(middleware.CallerUID(c))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warning("websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		var msg driverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "location_update":
			applied, err := h.fleet.UpdateLocation(ctx, driverID, types.Point{Lat: msg.Lat, Lng: msg.Lng}, msg.Seq)
			if err != nil {
				h.reply(conn, driverReply{Type: "location_ack", Error: err.Error()})
				continue
			}
			if applied {
				// Relay to whoever is tracking this vehicle's booking.
				if bid, err := h.booking.ActiveBookingForVehicle(ctx, driverID); err == nil {
					h.hub.NotifyLocation(bid, string(driverID), msg.Lat, msg.Lng)
				}
			}
			h.reply(conn, driverReply{Type: "location_ack", OK: applied})

		case "accept_booking":
			h.signal(ctx, conn, msg, driverID, "accept_ack", h.booking.Accept)

		case "arrive":
			h.signal(ctx, conn, msg, driverID, "arrive_ack", h.booking.Arrive)

		case "complete_booking":
			h.signal(ctx, conn, msg, driverID, "complete_ack", h.booking.Complete)

		default:
			h.reply(conn, driverReply{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *WSHandler) signal(
	ctx context.Context,
	conn *websocket.Conn,
	msg driverMessage,
	driverID types.ID,
	ackType string,
	op func(ctx context.Context, cmd booking.SignalCommand) error,
) {
	id := msg.BookingID
	if id == 0 {
		// Fall back to the driver's active booking.
		var err error
		id, err = h.booking.ActiveBookingForVehicle(ctx, driverID)
		if errors.Is(err, booking.ErrNotFound) {
			h.reply(conn, driverReply{Type: ackType, Error: "no active booking"})
			return
		}
		if err != nil {
			h.reply(conn, driverReply{Type: ackType, Error: "internal error"})
			return
		}
	}

	if err := op(ctx, booking.SignalCommand{BookingID: id, DriverID: driverID}); err != nil {
		h.reply(conn, driverReply{Type: ackType, BookingID: id, Error: err.Error()})
		return
	}
	h.reply(conn, driverReply{Type: ackType, OK: true, BookingID: id})
}

func (h *WSHandler) reply(conn *websocket.Conn, r driverReply) {
	if err := conn.WriteJSON(r); err != nil {
		h.log.Debug("driver reply write failed", logger.Error(err))
	}
}

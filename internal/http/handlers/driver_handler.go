// README: Driver-facing handlers: status reports and ride progression.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lifeline/internal/http/middleware"
	"lifeline/internal/modules/booking"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/types"
)

type DriverHandler struct {
	fleet   *fleet.Service
	booking *booking.Service
}

func NewDriverHandler(fleetSvc *fleet.Service, bookingSvc *booking.Service) *DriverHandler {
	return &DriverHandler{fleet: fleetSvc, booking: bookingSvc}
}

type statusReportRequest struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	Class           string  `json:"class"`
	Available       bool    `json:"available"`
	Seq             int64   `json:"seq"`
	DriverName      string  `json:"driver_name"`
	DriverPhone     string  `json:"driver_phone"`
	LicensePlate    string  `json:"license_plate"`
	HospitalNetwork string  `json:"hospital_network"`
}

// ReportStatus takes a full driver status report. The vehicle id is the
// authenticated subject.
func (h *DriverHandler) ReportStatus(c *gin.Context) {
	var req statusReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	v, err := h.fleet.ReportStatus(c.Request.Context(), fleet.StatusReport{
		VehicleID:       types.ID(middleware.CallerUID(c)),
		Position:        types.Point{Lat: req.Lat, Lng: req.Lng},
		Class:           fleet.CapabilityClass(req.Class),
		Available:       req.Available,
		Seq:             req.Seq,
		DriverName:      req.DriverName,
		DriverPhone:     req.DriverPhone,
		LicensePlate:    req.LicensePlate,
		HospitalNetwork: req.HospitalNetwork,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Seq int64   `json:"seq"`
}

// UpdateLocation takes a location-only report over REST. Drivers streaming
// over the websocket use the same service path.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	applied, err := h.fleet.UpdateLocation(c.Request.Context(),
		types.ID(middleware.CallerUID(c)),
		types.Point{Lat: req.Lat, Lng: req.Lng},
		req.Seq,
	)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"applied": applied})
}

// Active returns the booking currently holding the driver's vehicle.
func (h *DriverHandler) Active(c *gin.Context) {
	id, err := h.booking.ActiveBookingForVehicle(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if errors.Is(err, booking.ErrNotFound) {
		writeError(c, http.StatusNotFound, "no active booking")
		return
	}
	if err != nil {
		writeBookingError(c, err)
		return
	}
	info, err := h.booking.Track(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking": info.Entry})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	h.signal(c, h.booking.Accept, booking.StatusEnRoute)
}

func (h *DriverHandler) Arrive(c *gin.Context) {
	h.signal(c, h.booking.Arrive, booking.StatusArrived)
}

func (h *DriverHandler) Complete(c *gin.Context) {
	h.signal(c, h.booking.Complete, booking.StatusCompleted)
}

func (h *DriverHandler) signal(c *gin.Context, op func(ctx context.Context, cmd booking.SignalCommand) error, to booking.Status) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	err := op(c.Request.Context(), booking.SignalCommand{
		BookingID: id,
		DriverID:  types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking_id": id, "status": to})
}

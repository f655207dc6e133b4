// README: Requester-facing booking handlers: book, track, history, cancel.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline/internal/http/middleware"
	"lifeline/internal/modules/booking"
	"lifeline/internal/types"
)

type BookingHandler struct {
	booking *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{booking: svc}
}

type bookRequest struct {
	PickupLat      float64  `json:"pickup_lat"`
	PickupLng      float64  `json:"pickup_lng"`
	PickupAddress  string   `json:"pickup_address"`
	DropoffLat     *float64 `json:"dropoff_lat"`
	DropoffLng     *float64 `json:"dropoff_lng"`
	DropoffAddress *string  `json:"dropoff_address"`
	Category       string   `json:"category"`
	ContactNumber  string   `json:"contact_number"`
	PatientNotes   string   `json:"patient_notes"`
}

type vehicleView struct {
	VehicleID       string  `json:"vehicle_id"`
	Class           string  `json:"class"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	DistanceKm      float64 `json:"distance_km"`
	EtaMinutes      int     `json:"eta_minutes"`
	DriverName      string  `json:"driver_name,omitempty"`
	DriverPhone     string  `json:"driver_phone,omitempty"`
	LicensePlate    string  `json:"license_plate,omitempty"`
	HospitalNetwork string  `json:"hospital_network,omitempty"`
}

func (h *BookingHandler) Book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	cmd := booking.CreateCommand{
		RequesterID:    types.ID(middleware.CallerUID(c)),
		Pickup:         types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		Category:       req.Category,
		ContactNumber:  req.ContactNumber,
		PatientNotes:   req.PatientNotes,
	}
	if req.DropoffLat != nil && req.DropoffLng != nil {
		cmd.Dropoff = &types.Point{Lat: *req.DropoffLat, Lng: *req.DropoffLng}
	}

	res, err := h.booking.Create(c.Request.Context(), cmd)
	if errors.Is(err, booking.ErrNoCapacity) {
		// The booking exists and may still be assigned manually; surface its
		// id alongside the no-capacity message.
		writeJSON(c, http.StatusNotFound, gin.H{
			"error":      noCapacityMessage,
			"booking_id": res.Booking.ID,
			"status":     res.Booking.Status,
		})
		return
	}
	if err != nil {
		writeBookingError(c, err)
		return
	}

	m := res.Match
	writeJSON(c, http.StatusCreated, gin.H{
		"booking_id": res.Booking.ID,
		"status":     res.Booking.Status,
		"vehicle": vehicleView{
			VehicleID:       string(m.ID),
			Class:           string(m.Class),
			Lat:             m.Lat,
			Lng:             m.Lng,
			DistanceKm:      m.DistanceKm,
			EtaMinutes:      m.EtaMinutes,
			DriverName:      m.DriverName,
			DriverPhone:     m.DriverPhone,
			LicensePlate:    m.LicensePlate,
			HospitalNetwork: m.HospitalNetwork,
		},
	})
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.booking.Get(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if !canView(c, b) {
		writeError(c, http.StatusForbidden, "not your booking")
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Track(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	info, err := h.booking.Track(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	resp := gin.H{"booking": info.Entry}
	if info.Vehicle != nil {
		resp["vehicle_location"] = info.Vehicle
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *BookingHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.booking.History(c.Request.Context(), types.ID(middleware.CallerUID(c)), limit)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": rows})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.booking.Get(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	if !canView(c, b) {
		writeError(c, http.StatusForbidden, "not your booking")
		return
	}

	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "user_cancel"
	}

	actor := types.ID(middleware.CallerUID(c))
	err = h.booking.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: id,
		ActorType: middleware.CallerRole(c),
		ActorID:   &actor,
		Reason:    req.Reason,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking_id": id, "status": booking.StatusCancelled})
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return 0, false
	}
	return id, true
}

func canView(c *gin.Context, b *booking.Booking) bool {
	if middleware.CallerRole(c) == "operator" {
		return true
	}
	return string(b.RequesterID) == middleware.CallerUID(c)
}

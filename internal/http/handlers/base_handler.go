// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lifeline/internal/modules/booking"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/matching"
)

type errorResponse struct {
	Error string `json:"error"`
}

// noCapacityMessage is surfaced verbatim to requesters: there is no vehicle
// to send, and they should not wait on us.
const noCapacityMessage = "no ambulances available right now, please contact emergency services directly"

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrBadRequest), errors.Is(err, matching.ErrBadRequest), errors.Is(err, fleet.ErrBadReport):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNoCapacity):
		writeError(c, http.StatusNotFound, noCapacityMessage)
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, fleet.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidState), errors.Is(err, booking.ErrConflict), errors.Is(err, fleet.ErrNotAvailable):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

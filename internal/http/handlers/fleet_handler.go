// README: Public fleet queries: nearby availability and hospitals.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline/internal/maps"
	"lifeline/internal/modules/matching"
	"lifeline/internal/types"
)

type FleetHandler struct {
	matching      *matching.Service
	places        *maps.PlacesService // nil when no API key is configured
	defaultRadius float64
}

func NewFleetHandler(matchingSvc *matching.Service, places *maps.PlacesService, defaultRadiusKm float64) *FleetHandler {
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = 10
	}
	return &FleetHandler{matching: matchingSvc, places: places, defaultRadius: defaultRadiusKm}
}

// Available lists available vehicles near a point, nearest first.
func (h *FleetHandler) Available(c *gin.Context) {
	center, ok := queryPoint(c)
	if !ok {
		return
	}
	radius := h.defaultRadius
	if raw := c.Query("radius_km"); raw != "" {
		var err error
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
	}

	matches, err := h.matching.Nearby(c.Request.Context(), center, radius)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"vehicles": matches, "count": len(matches)})
}

// Hospitals lists hospitals near a point via the Places API.
func (h *FleetHandler) Hospitals(c *gin.Context) {
	if h.places == nil {
		writeError(c, http.StatusServiceUnavailable, "hospital lookup is not configured")
		return
	}
	center, ok := queryPoint(c)
	if !ok {
		return
	}
	radius, err := strconv.ParseUint(c.DefaultQuery("radius_m", "5000"), 10, 32)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid radius_m")
		return
	}

	hospitals, err := h.places.NearbyHospitals(c.Request.Context(), center, uint(radius))
	if err != nil {
		writeError(c, http.StatusBadGateway, "hospital lookup failed")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"hospitals": hospitals, "count": len(hospitals)})
}

func queryPoint(c *gin.Context) (types.Point, bool) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	p := types.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return types.Point{}, false
	}
	return p, true
}

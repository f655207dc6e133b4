// README: Handler tests: auth gating, validation, and the booking flow over HTTP.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"lifeline/internal/http/handlers"
	"lifeline/internal/http/middleware"
	"lifeline/internal/logger"
	"lifeline/internal/modules/booking"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/matching"
	"lifeline/internal/types"
)

const testSecret = "test-secret"

// ---- in-memory booking backend ----

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*booking.Booking
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, rows: map[int64]*booking.Booking{}}
}

func (f *fakeStore) Create(_ context.Context, b *booking.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.nextID
	f.nextID++
	cp := *b
	f.rows[b.ID] = &cp
	return nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, from, to booking.Status, version int, vehicleID *types.ID, reason *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return false, booking.ErrNotFound
	}
	if b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.Status = to
	b.StatusVersion++
	if vehicleID != nil {
		b.VehicleID = vehicleID
	}
	if reason != nil {
		b.CancelReason = reason
	}
	return true, nil
}

func (f *fakeStore) AppendEvent(_ context.Context, _ *booking.Event) error { return nil }

func (f *fakeStore) ListByRequester(_ context.Context, requesterID types.ID, limit int) ([]booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []booking.Booking
	for _, b := range f.rows {
		if b.RequesterID == requesterID && len(out) < limit {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRequestedBefore(_ context.Context, _ time.Time) ([]booking.Booking, error) {
	return nil, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[int64]booking.ActiveEntry
	byVeh   map[types.ID]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[int64]booking.ActiveEntry{}, byVeh: map[types.ID]int64{}}
}

func (f *fakeCache) SetActive(_ context.Context, e booking.ActiveEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.BookingID] = e
	f.byVeh[e.VehicleID] = e.BookingID
	return nil
}

func (f *fakeCache) GetActive(_ context.Context, id int64) (*booking.ActiveEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &e, nil
}

func (f *fakeCache) UpdateActiveStatus(_ context.Context, id int64, status booking.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[id]; ok {
		e.Status = status
		f.entries[id] = e
	}
	return nil
}

func (f *fakeCache) RemoveActive(_ context.Context, id int64, vehicleID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	delete(f.byVeh, vehicleID)
	return nil
}

func (f *fakeCache) BookingForVehicle(_ context.Context, vehicleID types.ID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byVeh[vehicleID]
	if !ok {
		return 0, booking.ErrNotFound
	}
	return id, nil
}

type fakeFleet struct {
	mu   sync.Mutex
	idle map[types.ID]fleet.Vehicle
}

func newFakeFleet(vs ...fleet.Vehicle) *fakeFleet {
	f := &fakeFleet{idle: map[types.ID]fleet.Vehicle{}}
	for _, v := range vs {
		f.idle[v.ID] = v
	}
	return f
}

func (f *fakeFleet) FindNearest(_ context.Context, pickup types.Point, cat matching.Category) (*matching.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *matching.Match
	for _, v := range f.idle {
		if !matching.Compatible(cat, v.Class) {
			continue
		}
		m := matching.NewMatch(v, pickup)
		if best == nil || m.DistanceKm < best.DistanceKm {
			best = &m
		}
	}
	if best == nil {
		return nil, matching.ErrNoCapacity
	}
	return best, nil
}

func (f *fakeFleet) Claim(_ context.Context, id types.ID) (*fleet.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.idle[id]
	if !ok {
		return nil, fleet.ErrNotAvailable
	}
	delete(f.idle, id)
	return &v, nil
}

func (f *fakeFleet) Release(_ context.Context, id types.ID) error {
	return nil
}

func (f *fakeFleet) Location(_ context.Context, id types.ID) (*fleet.TrackPoint, error) {
	return nil, fleet.ErrNotFound
}

// ---- router fixture ----

func buildTestRouter(flt *fakeFleet) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := booking.NewService(newFakeStore(), newFakeCache(), flt, flt, booking.Config{}, logger.Nop())
	h := handlers.NewBookingHandler(svc)

	r := gin.New()
	auth := middleware.Auth(testSecret, "requester", "operator")
	r.POST("/api/bookings", auth, h.Book)
	r.GET("/api/bookings/:id", auth, h.Get)
	r.GET("/api/bookings/:id/track", auth, h.Track)
	r.POST("/api/bookings/:id/cancel", auth, h.Cancel)
	r.GET("/api/bookings/history", auth, h.History)
	return r
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := &middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bookBody() map[string]any {
	return map[string]any{
		"pickup_lat":     19.076,
		"pickup_lng":     72.8777,
		"pickup_address": "Bandra West",
		"category":       "general",
		"contact_number": "+911234567890",
	}
}

// ---- tests ----

func TestBookUnauthenticated(t *testing.T) {
	r := buildTestRouter(newFakeFleet())
	w := doRequest(t, r, http.MethodPost, "/api/bookings", bookBody(), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestBookDriverRoleRejected(t *testing.T) {
	r := buildTestRouter(newFakeFleet())
	token := signToken(t, "AMB-1", "driver")
	w := doRequest(t, r, http.MethodPost, "/api/bookings", bookBody(), token)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestBookHappyPath(t *testing.T) {
	flt := newFakeFleet(fleet.Vehicle{
		ID:        "AMB-1",
		Point:     types.Point{Lat: 19.072, Lng: 72.874},
		Class:     fleet.ClassAdvanced,
		Available: true,
	})
	r := buildTestRouter(flt)
	token := signToken(t, "user-1", "requester")

	w := doRequest(t, r, http.MethodPost, "/api/bookings", bookBody(), token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		BookingID int64  `json:"booking_id"`
		Status    string `json:"status"`
		Vehicle   struct {
			VehicleID  string `json:"vehicle_id"`
			EtaMinutes int    `json:"eta_minutes"`
		} `json:"vehicle"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "assigned" || resp.Vehicle.VehicleID != "AMB-1" {
		t.Fatalf("response = %+v", resp)
	}

	// The booking is trackable right away.
	w = doRequest(t, r, http.MethodGet, "/api/bookings/1/track", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("track: expected 200, got %d", w.Code)
	}
}

func TestBookNoCapacityReturns404WithBookingID(t *testing.T) {
	r := buildTestRouter(newFakeFleet())
	token := signToken(t, "user-1", "requester")

	w := doRequest(t, r, http.MethodPost, "/api/bookings", bookBody(), token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var resp struct {
		Error     string `json:"error"`
		BookingID int64  `json:"booking_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BookingID == 0 || resp.Status != "requested" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestBookInvalidPayload(t *testing.T) {
	r := buildTestRouter(newFakeFleet())
	token := signToken(t, "user-1", "requester")

	body := bookBody()
	body["pickup_lat"] = 123.0
	w := doRequest(t, r, http.MethodPost, "/api/bookings", body, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad pickup: expected 400, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/bookings/abc", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
}

func TestGetForeignBookingForbidden(t *testing.T) {
	flt := newFakeFleet(fleet.Vehicle{
		ID:        "AMB-1",
		Point:     types.Point{Lat: 19.072, Lng: 72.874},
		Class:     fleet.ClassBasic,
		Available: true,
	})
	r := buildTestRouter(flt)

	owner := signToken(t, "user-1", "requester")
	if w := doRequest(t, r, http.MethodPost, "/api/bookings", bookBody(), owner); w.Code != http.StatusCreated {
		t.Fatalf("setup booking: %d", w.Code)
	}

	other := signToken(t, "user-2", "requester")
	if w := doRequest(t, r, http.MethodGet, "/api/bookings/1", nil, other); w.Code != http.StatusForbidden {
		t.Errorf("foreign get: expected 403, got %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodPost, "/api/bookings/1/cancel", nil, other); w.Code != http.StatusForbidden {
		t.Errorf("foreign cancel: expected 403, got %d", w.Code)
	}

	// Operators can see anything.
	op := signToken(t, "ops-1", "operator")
	if w := doRequest(t, r, http.MethodGet, "/api/bookings/1", nil, op); w.Code != http.StatusOK {
		t.Errorf("operator get: expected 200, got %d", w.Code)
	}
}

func TestCancelFlow(t *testing.T) {
	flt := newFakeFleet(fleet.Vehicle{
		ID:        "AMB-1",
		Point:     types.Point{Lat: 19.072, Lng: 72.874},
		Class:     fleet.ClassBasic,
		Available: true,
	})
	r := buildTestRouter(flt)
	token := signToken(t, "user-1", "requester")

	if w := doRequest(t, r, http.MethodPost, "/api/bookings", bookBody(), token); w.Code != http.StatusCreated {
		t.Fatalf("setup booking: %d", w.Code)
	}

	w := doRequest(t, r, http.MethodPost, "/api/bookings/1/cancel", map[string]any{"reason": "recovered"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Cancelling again conflicts.
	w = doRequest(t, r, http.MethodPost, "/api/bookings/1/cancel", nil, token)
	if w.Code != http.StatusConflict {
		t.Errorf("double cancel: expected 409, got %d", w.Code)
	}
}

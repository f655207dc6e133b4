// README: DB-backed booking store tests. Skipped unless LIFELINE_TEST_DSN is set.
package booking

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lifeline/internal/modules/matching"
	"lifeline/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("LIFELINE_TEST_DSN")
	if dsn == "" {
		t.Skip("LIFELINE_TEST_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE booking_state_events, bookings"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.up.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func testBooking(requester types.ID) *Booking {
	addr := "Lilavati Hospital"
	return &Booking{
		RequesterID:    requester,
		Pickup:         types.Point{Lat: 19.076, Lng: 72.8777},
		PickupAddress:  "Bandra West",
		Dropoff:        &types.Point{Lat: 19.051, Lng: 72.83},
		DropoffAddress: &addr,
		Category:       matching.CategoryGeneral,
		ContactNumber:  "+911234567890",
		PatientNotes:   "chest pain",
		Status:         StatusRequested,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	b := testBooking("u_roundtrip")
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("create did not assign an id")
	}

	got, err := store.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RequesterID != b.RequesterID || got.Status != StatusRequested || got.StatusVersion != 0 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Dropoff == nil || got.Dropoff.Lat != 19.051 {
		t.Fatalf("dropoff not persisted: %+v", got.Dropoff)
	}

	if _, err := store.Get(ctx, 999999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateStatusCAS(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	b := testBooking("u_cas")
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}

	veh := types.ID("AMB-1")
	ok, err := store.UpdateStatus(ctx, b.ID, StatusRequested, StatusAssigned, 0, &veh, nil)
	if err != nil || !ok {
		t.Fatalf("first cas: ok=%v err=%v", ok, err)
	}

	// Same preconditions again must lose.
	ok, err = store.UpdateStatus(ctx, b.ID, StatusRequested, StatusAssigned, 0, &veh, nil)
	if err != nil {
		t.Fatalf("second cas: %v", err)
	}
	if ok {
		t.Fatal("stale cas succeeded")
	}

	got, _ := store.Get(ctx, b.ID)
	if got.Status != StatusAssigned || got.StatusVersion != 1 {
		t.Fatalf("row after cas: status=%s version=%d", got.Status, got.StatusVersion)
	}
	if got.VehicleID == nil || *got.VehicleID != veh {
		t.Fatalf("vehicle not set: %v", got.VehicleID)
	}
}

func TestStoreConcurrentCASExactlyOneWinner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	b := testBooking("u_race")
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}

	const attempts = 8
	wins := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			veh := types.ID("AMB-1")
			ok, err := store.UpdateStatus(ctx, b.ID, StatusRequested, StatusAssigned, 0, &veh, nil)
			if err != nil {
				t.Errorf("cas: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	success := 0
	for ok := range wins {
		if ok {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", success)
	}
}

func TestStoreCancelSetsReasonAndTimestamp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	b := testBooking("u_cancel")
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}

	reason := "expired"
	ok, err := store.UpdateStatus(ctx, b.ID, StatusRequested, StatusCancelled, 0, nil, &reason)
	if err != nil || !ok {
		t.Fatalf("cancel cas: ok=%v err=%v", ok, err)
	}

	got, _ := store.Get(ctx, b.ID)
	if got.CancelReason == nil || *got.CancelReason != "expired" {
		t.Fatalf("cancel reason = %v", got.CancelReason)
	}
	if got.CancelledAt == nil {
		t.Fatal("cancelled_at not set")
	}
}

func TestStoreListRequestedBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := testBooking("u_stale")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("create old: %v", err)
	}
	fresh := testBooking("u_fresh")
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	stale, err := store.ListRequestedBefore(ctx, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("stale = %+v, want only booking %d", stale, old.ID)
	}
}

func TestStoreHistoryOrderAndEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		b := testBooking("u_history")
		if err := store.Create(ctx, b); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, b.ID)
	}

	rows, err := store.ListByRequester(ctx, "u_history", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	// Newest first.
	if rows[0].ID != ids[2] {
		t.Fatalf("first = %d, want %d", rows[0].ID, ids[2])
	}

	actor := types.ID("u_history")
	err = store.AppendEvent(ctx, &Event{
		BookingID:  ids[0],
		FromStatus: StatusNone,
		ToStatus:   StatusRequested,
		ActorType:  "requester",
		ActorID:    &actor,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
}

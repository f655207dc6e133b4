// README: Fleet store backed by Redis hashes; the availability index and live locations.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lifeline/internal/types"
)

const (
	// vehiclesKey holds the last full status report per vehicle, available or not.
	vehiclesKey = "fleet:vehicles"
	// availableKey is the availability index: only vehicles eligible for assignment.
	availableKey = "fleet:available"
	// locationsKey holds the live location per vehicle, written on every report.
	locationsKey = "fleet:locations"
)

var (
	ErrNotFound     = errors.New("vehicle not found")
	ErrNotAvailable = errors.New("vehicle not in availability index")
)

// claimScript atomically removes a vehicle from the availability index and
// returns its record, so two bookings can never grab the same vehicle.
var claimScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then
  return false
end
redis.call('HDEL', KEYS[1], ARGV[1])
return v
`)

// locationScript applies a driver location report. It rejects reports whose
// sequence number is not newer than the stored one, then updates the live
// location, the full vehicle record, and — when the vehicle is currently in
// the availability index — the index entry's coordinates, all in one step so
// the three keys cannot diverge.
var locationScript = redis.NewScript(`
local id, lat, lng, seq, ts = ARGV[1], tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), ARGV[5]
local cur = redis.call('HGET', KEYS[1], id)
if cur then
  local p = cjson.decode(cur)
  if p.seq and tonumber(p.seq) >= seq then
    return 0
  end
end
redis.call('HSET', KEYS[1], id, cjson.encode({lat=lat, lng=lng, seq=seq, ts=ts}))
local rec = redis.call('HGET', KEYS[2], id)
if rec then
  local v = cjson.decode(rec)
  v.lat = lat
  v.lng = lng
  v.seq = seq
  v.updated_at = ts
  redis.call('HSET', KEYS[2], id, cjson.encode(v))
end
local avail = redis.call('HGET', KEYS[3], id)
if avail then
  local v = cjson.decode(avail)
  v.lat = lat
  v.lng = lng
  v.seq = seq
  v.updated_at = ts
  redis.call('HSET', KEYS[3], id, cjson.encode(v))
end
return 1
`)

type Store struct {
	redis *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{redis: rdb}
}

// PutReport records a full driver status report: the vehicle record and live
// location always, the availability index entry per the availability flag.
func (s *Store) PutReport(ctx context.Context, v Vehicle) error {
	rec, err := json.Marshal(v)
	if err != nil {
		return err
	}
	loc, err := json.Marshal(TrackPoint{Lat: v.Lat, Lng: v.Lng, Seq: v.Seq, Ts: v.UpdatedAt.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, vehiclesKey, string(v.ID), rec)
	pipe.HSet(ctx, locationsKey, string(v.ID), loc)
	if v.Available {
		pipe.HSet(ctx, availableKey, string(v.ID), rec)
	} else {
		pipe.HDel(ctx, availableKey, string(v.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fleet report: %w", err)
	}
	return nil
}

// UpdateLocation applies a location-only report. It returns false when the
// report is stale (sequence number not newer than the stored one).
func (s *Store) UpdateLocation(ctx context.Context, id types.ID, p types.Point, seq int64, at time.Time) (bool, error) {
	res, err := locationScript.Run(ctx, s.redis,
		[]string{locationsKey, vehiclesKey, availableKey},
		string(id), p.Lat, p.Lng, seq, at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, fmt.Errorf("fleet location update: %w", err)
	}
	return res == 1, nil
}

// Claim atomically removes the vehicle from the availability index and
// returns its record. ErrNotAvailable when it is not in the index.
func (s *Store) Claim(ctx context.Context, id types.ID) (*Vehicle, error) {
	raw, err := claimScript.Run(ctx, s.redis, []string{availableKey}, string(id)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("fleet claim: %w", err)
	}
	var v Vehicle
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("fleet claim decode: %w", err)
	}
	return &v, nil
}

// Insert puts a vehicle record into the availability index.
func (s *Store) Insert(ctx context.Context, v Vehicle) error {
	rec, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, availableKey, string(v.ID), rec).Err(); err != nil {
		return fmt.Errorf("fleet insert: %w", err)
	}
	return nil
}

// Snapshot enumerates every vehicle currently in the availability index.
func (s *Store) Snapshot(ctx context.Context) ([]Vehicle, error) {
	raw, err := s.redis.HGetAll(ctx, availableKey).Result()
	if err != nil {
		return nil, fmt.Errorf("fleet snapshot: %w", err)
	}
	out := make([]Vehicle, 0, len(raw))
	for _, data := range raw {
		var v Vehicle
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("fleet snapshot decode: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Record returns the last full status report for a vehicle.
func (s *Store) Record(ctx context.Context, id types.ID) (*Vehicle, error) {
	raw, err := s.redis.HGet(ctx, vehiclesKey, string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fleet record: %w", err)
	}
	var v Vehicle
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("fleet record decode: %w", err)
	}
	return &v, nil
}

// Location returns the live location of a vehicle.
func (s *Store) Location(ctx context.Context, id types.ID) (*TrackPoint, error) {
	raw, err := s.redis.HGet(ctx, locationsKey, string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fleet location: %w", err)
	}
	var p TrackPoint
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("fleet location decode: %w", err)
	}
	return &p, nil
}

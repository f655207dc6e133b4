// README: Fast-path tracking cache for live bookings, held in Redis.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"lifeline/internal/types"
)

const (
	// activeKey maps bookingID → tracking entry for bookings still in flight.
	activeKey = "bookings:active"
	// vehicleIndexKey maps vehicleID → bookingID for the live assignment.
	vehicleIndexKey = "bookings:vehicle"
)

// ActiveCache is the Redis implementation of the Cache port.
type ActiveCache struct {
	redis *redis.Client
}

func NewActiveCache(rdb *redis.Client) *ActiveCache {
	return &ActiveCache{redis: rdb}
}

func (c *ActiveCache) SetActive(ctx context.Context, e ActiveEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := c.redis.TxPipeline()
	pipe.HSet(ctx, activeKey, strconv.FormatInt(e.BookingID, 10), data)
	pipe.HSet(ctx, vehicleIndexKey, string(e.VehicleID), e.BookingID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("booking cache set: %w", err)
	}
	return nil
}

func (c *ActiveCache) GetActive(ctx context.Context, bookingID int64) (*ActiveEntry, error) {
	raw, err := c.redis.HGet(ctx, activeKey, strconv.FormatInt(bookingID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking cache get: %w", err)
	}
	var e ActiveEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("booking cache decode: %w", err)
	}
	return &e, nil
}

// UpdateActiveStatus rewrites the status field of a live entry. A missing
// entry is not an error: the booking may have just been closed.
func (c *ActiveCache) UpdateActiveStatus(ctx context.Context, bookingID int64, status Status) error {
	e, err := c.GetActive(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	e.Status = status
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.redis.HSet(ctx, activeKey, strconv.FormatInt(bookingID, 10), data).Err()
}

func (c *ActiveCache) RemoveActive(ctx context.Context, bookingID int64, vehicleID types.ID) error {
	pipe := c.redis.TxPipeline()
	pipe.HDel(ctx, activeKey, strconv.FormatInt(bookingID, 10))
	if vehicleID != "" {
		pipe.HDel(ctx, vehicleIndexKey, string(vehicleID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("booking cache remove: %w", err)
	}
	return nil
}

// BookingForVehicle returns the live booking currently holding a vehicle.
func (c *ActiveCache) BookingForVehicle(ctx context.Context, vehicleID types.ID) (int64, error) {
	raw, err := c.redis.HGet(ctx, vehicleIndexKey, string(vehicleID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("booking cache vehicle index: %w", err)
	}
	return strconv.ParseInt(raw, 10, 64)
}

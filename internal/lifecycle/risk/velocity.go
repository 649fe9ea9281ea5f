package risk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const velocityKeyPrefix = "loan:velocity:"

type VelocityKeys struct {
	Identity string
	Device   string
	IP       string
}

// VelocityCounter keeps one sorted set per identity, device and IP, scored
// by submission time in milliseconds. Entries older than the window are
// trimmed on every write.
type VelocityCounter struct {
	client redis.Cmdable
	window time.Duration
	now    func() time.Time
}

func NewVelocityCounter(client redis.Cmdable, window time.Duration) *VelocityCounter {
	return &VelocityCounter{client: client, window: window, now: time.Now}
}

func (c *VelocityCounter) WithClock(now func() time.Time) *VelocityCounter {
	c.now = now
	return c
}

// Record adds member to each non-empty key and returns the counts within the
// window. Empty keys count as zero.
func (c *VelocityCounter) Record(ctx context.Context, keys VelocityKeys, member string) (Velocity, error) {
	var v Velocity
	var err error

	if v.Identity, err = c.record(ctx, "identity", keys.Identity, member); err != nil {
		return Velocity{}, err
	}
	if v.Device, err = c.record(ctx, "device", keys.Device, member); err != nil {
		return Velocity{}, err
	}
	if v.IP, err = c.record(ctx, "ip", keys.IP, member); err != nil {
		return Velocity{}, err
	}
	return v, nil
}

func (c *VelocityCounter) record(ctx context.Context, dimension, value, member string) (int, error) {
	if value == "" {
		return 0, nil
	}
	key := velocityKeyPrefix + dimension + ":" + value
	now := c.now()
	cutoff := now.Add(-c.window).UnixMilli()

	if err := c.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, fmt.Errorf("trim %s velocity: %w", dimension, err)
	}
	if err := c.client.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member}).Err(); err != nil {
		return 0, fmt.Errorf("record %s velocity: %w", dimension, err)
	}
	n, err := c.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s velocity: %w", dimension, err)
	}
	if err := c.client.Expire(ctx, key, c.window).Err(); err != nil {
		return 0, fmt.Errorf("expire %s velocity: %w", dimension, err)
	}
	return int(n), nil
}

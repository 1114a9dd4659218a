// Package cache keeps the latest metrics snapshot and anomaly summary per
// battery in Redis so the read endpoints avoid a database round trip.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	metricsKeyPrefix = "bess:metrics:"
	anomalyKeyPrefix = "bess:anomaly:"

	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	// DefaultTTL bounds snapshot staleness.
	DefaultTTL = time.Hour
)

// ErrMiss is returned when the requested key is not cached.
var ErrMiss = errors.New("cache: miss")

// Cache wraps a go-redis client with JSON snapshot accessors.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a connected cache, validating the connection with PING.
func New(addr, password string) (*Cache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("cache: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Cache{client: client, ttl: DefaultTTL}, nil
}

// SetMetrics stores the latest metrics snapshot for a battery.
func (c *Cache) SetMetrics(ctx context.Context, batteryID string, snapshot any) error {
	return c.setJSON(ctx, metricsKeyPrefix+batteryID, snapshot)
}

// GetMetrics loads the latest metrics snapshot for a battery.
func (c *Cache) GetMetrics(ctx context.Context, batteryID string, dest any) error {
	return c.getJSON(ctx, metricsKeyPrefix+batteryID, dest)
}

// SetAnomalySummary stores the latest anomaly summary for a battery.
func (c *Cache) SetAnomalySummary(ctx context.Context, batteryID string, summary any) error {
	return c.setJSON(ctx, anomalyKeyPrefix+batteryID, summary)
}

// GetAnomalySummary loads the latest anomaly summary for a battery.
func (c *Cache) GetAnomalySummary(ctx context.Context, batteryID string, dest any) error {
	return c.getJSON(ctx, anomalyKeyPrefix+batteryID, dest)
}

func (c *Cache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

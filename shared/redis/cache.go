package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	versionField = "version"
	viewField    = "view"
)

// setIfNewer stores the view unless the key already holds a higher version,
// so a reader that loaded a row before a concurrent update cannot overwrite
// the fresher entry written after it.
var setIfNewer = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'view', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// ViewCache is a generic JSON-backed Redis cache for read model projections.
// Each entry is a hash holding the encoded view and the version of the row
// it was built from. Pass a ttl of 0 for entries that should not expire.
type ViewCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration, logger logrus.FieldLogger) *ViewCache[T] {
	return &ViewCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.WithField("cache", prefix),
	}
}

// Get retrieves and unmarshals a value from Redis.
// Returns (nil, false) on any miss or deserialisation error.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.HGet(ctx, c.prefix+key, viewField).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WithError(err).Warn("cache read failed")
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.WithError(err).Warn("cache entry is corrupt")
		return nil, false
	}
	return &v, true
}

// Set stores value under key at the given version. It reports whether the
// write happened; an entry with a higher version is left in place.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T, version int64) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	stored, err := setIfNewer.Run(ctx, c.client,
		[]string{c.prefix + key},
		version, data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write cache entry: %w", err)
	}
	return stored == 1, nil
}

// Delete removes a key from Redis.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "procurement:list:version"

// ListCache caches review dashboard pages in Redis. Entries are versioned:
// any mutation bumps the version, orphaning every cached page at once.
type ListCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListCache instantiates the cache helper.
func NewListCache(client *redis.Client, ttl time.Duration) *ListCache {
	return &ListCache{client: client, ttl: ttl}
}

func (c *ListCache) key(ctx context.Context, suffix string) (string, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return "", err
		}
		ver = 1
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("procurement:list:v%d:%s", ver, suffix), nil
}

// Get returns the cached page for the filter key, if present.
func (c *ListCache) Get(ctx context.Context, suffix string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key, err := c.key(ctx, suffix)
	if err != nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set stores a page under the current version.
func (c *ListCache) Set(ctx context.Context, suffix string, payload []byte) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, suffix)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, payload, c.ttl).Err()
}

// Bump invalidates all cached pages by advancing the version counter.
func (c *ListCache) Bump(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, cacheVersionKey).Err()
}

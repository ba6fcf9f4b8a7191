package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "ventes:version"

// Cache keeps the sale list read model in Redis, invalidated by bumping
// a version counter. Concurrent cache misses for the same key collapse
// into one database load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching
// and every call falls through to the loader.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchSales loads the cached sale list, populating it through loader on
// a miss. Redis failures degrade to a direct load.
func (c *Cache) FetchSales(ctx context.Context, loader func(context.Context) ([]SaleWithItems, error)) ([]SaleWithItems, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("ventes:list:%d", ver)

	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var out []SaleWithItems
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	}

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		values, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(values); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return values, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]SaleWithItems), nil
	}
}

// Invalidate drops every cached list by incrementing the version.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, cacheVersionKey).Err()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/policy"
)

const profileKeyPrefix = "stallgate:profile:"

// ProfileCache caches principal profiles in front of a ProfileLoader.
// Lookups go local LRU, then Redis when configured, then the source.
// Only found profiles are cached; misses always hit the source.
type ProfileCache struct {
	source auth.ProfileLoader
	local  *expirable.LRU[string, policy.Document]
	redis  *redis.Client
	ttl    time.Duration
}

// ProfileCacheConfig configures the profile cache
type ProfileCacheConfig struct {
	Size  int           // Max local entries (default: 1024)
	TTL   time.Duration // Entry lifetime (default: 30s)
	Redis *redis.Client // Optional shared second level
}

// NewProfileCache creates a profile cache over the given loader
func NewProfileCache(source auth.ProfileLoader, config ProfileCacheConfig) *ProfileCache {
	if config.Size == 0 {
		config.Size = 1024
	}
	if config.TTL == 0 {
		config.TTL = 30 * time.Second
	}

	return &ProfileCache{
		source: source,
		local:  expirable.NewLRU[string, policy.Document](config.Size, nil, config.TTL),
		redis:  config.Redis,
		ttl:    config.TTL,
	}
}

// LoadProfile implements auth.ProfileLoader
func (c *ProfileCache) LoadProfile(ctx context.Context, uid string) (policy.Document, error) {
	if doc, ok := c.local.Get(uid); ok {
		return doc.Clone(), nil
	}

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, profileKeyPrefix+uid).Result()
		if err == nil {
			doc, err := decodeDoc(raw)
			if err != nil {
				return nil, fmt.Errorf("corrupt cached profile for %s: %w", uid, err)
			}
			c.local.Add(uid, doc)
			return doc.Clone(), nil
		}
		if err != redis.Nil {
			// Redis being down should not take authentication down with it
			return c.loadFromSource(ctx, uid)
		}
	}

	return c.loadFromSource(ctx, uid)
}

func (c *ProfileCache) loadFromSource(ctx context.Context, uid string) (policy.Document, error) {
	doc, err := c.source.LoadProfile(ctx, uid)
	if err != nil || doc == nil {
		return doc, err
	}

	c.local.Add(uid, doc.Clone())

	if c.redis != nil {
		if raw, err := json.Marshal(doc); err == nil {
			c.redis.Set(ctx, profileKeyPrefix+uid, string(raw), c.ttl)
		}
	}

	return doc, nil
}

// Invalidate implements ProfileInvalidator. Called after user writes so a
// role or scope change takes effect on the next request.
func (c *ProfileCache) Invalidate(ctx context.Context, uid string) {
	c.local.Remove(uid)
	if c.redis != nil {
		c.redis.Del(ctx, profileKeyPrefix+uid)
	}
}

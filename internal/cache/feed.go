// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// feed.go provides a Valkey-backed cache for serialized feed responses.
// Only cursor-less reads are cached (first feed pages, featured listings,
// filter lists); every listing mutation clears the whole prefix.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// feedKeyPrefix is the Valkey key prefix for cached feed responses.
	feedKeyPrefix = "feed:"

	// DefaultFeedTTL is how long a cached response stays valid.
	DefaultFeedTTL = time.Minute
)

// FeedCache stores JSON-encoded feed responses in Valkey. A FeedCache with
// a nil client or a non-positive TTL is disabled: reads miss and writes
// are dropped.
type FeedCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFeedCache creates a feed cache backed by the given Valkey client.
func NewFeedCache(client *redis.Client, ttl time.Duration) *FeedCache {
	return &FeedCache{client: client, ttl: ttl}
}

// Enabled reports whether the cache stores anything.
func (fc *FeedCache) Enabled() bool {
	return fc != nil && fc.client != nil && fc.ttl > 0
}

// GetJSON decodes the cached value for key into dst. It reports false on a
// miss, a Valkey error or an undecodable value.
func (fc *FeedCache) GetJSON(ctx context.Context, key string, dst any) bool {
	if !fc.Enabled() {
		return false
	}
	val, err := fc.client.Get(ctx, feedKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		slog.Warn("feed cache get error", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		slog.Warn("feed cache decode error", "key", key, "error", err)
		return false
	}
	slog.Debug("feed cache hit", "key", key)
	return true
}

// SetJSON stores v under key with the configured TTL.
func (fc *FeedCache) SetJSON(ctx context.Context, key string, v any) {
	fc.SetJSONTTL(ctx, key, v, fc.ttlOrZero())
}

// SetJSONTTL stores v under key for ttl, capped at the configured TTL. A
// non-positive ttl stores nothing.
func (fc *FeedCache) SetJSONTTL(ctx context.Context, key string, v any, ttl time.Duration) {
	if !fc.Enabled() || ttl <= 0 {
		return
	}
	ttl = min(ttl, fc.ttl)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("feed cache encode error", "key", key, "error", err)
		return
	}
	if err := fc.client.Set(ctx, feedKeyPrefix+key, data, ttl).Err(); err != nil {
		slog.Warn("feed cache set error", "key", key, "error", err)
	}
}

func (fc *FeedCache) ttlOrZero() time.Duration {
	if fc == nil {
		return 0
	}
	return fc.ttl
}

// InvalidateAll removes every cached feed response by scanning for the
// prefix.
func (fc *FeedCache) InvalidateAll(ctx context.Context) {
	if !fc.Enabled() {
		return
	}
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := fc.client.Scan(ctx, cursor, feedKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("feed cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := fc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("feed cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Debug("feed cache cleared", "deleted", deleted)
	}
}

// Key builds a cache key from a response kind and its query parameters.
// Parameter order does not matter.
func Key(kind string, params url.Values) string {
	if len(params) == 0 {
		return kind
	}
	return kind + "?" + params.Encode()
}

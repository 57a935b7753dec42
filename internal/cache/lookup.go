// Package cache keeps recent source lookup results in Redis so that repeated
// questions do not hit slow upstream sources again.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/gloser/internal/metrics"
	"github.com/aiox-platform/gloser/internal/source"
)

// Store reads and writes cached results.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewStore creates a lookup cache with the given entry TTL.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func lookupKey(kind source.Kind, query string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("lookup:%s:%s", kind, hex.EncodeToString(sum[:]))
}

// Get returns a cached result. A miss is reported as ok=false with a nil error.
func (s *Store) Get(ctx context.Context, kind source.Kind, query string) (source.Result, bool, error) {
	key := lookupKey(kind, query)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return source.Result{}, false, nil
	}
	if err != nil {
		return source.Result{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	var res source.Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		// Unreadable entry: treat as a miss and let the next Put replace it.
		return source.Result{}, false, nil
	}
	return res, true, nil
}

// Put stores res under (kind, query).
func (s *Store) Put(ctx context.Context, kind source.Kind, query string, res source.Result) error {
	key := lookupKey(kind, query)
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Invalidate removes every cached result for kind and returns how many
// entries were deleted.
func (s *Store) Invalidate(ctx context.Context, kind source.Kind) (int, error) {
	pattern := fmt.Sprintf("lookup:%s:*", kind)
	deleted := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("del %s: %w", iter.Val(), err)
		}
		deleted += int(n)
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return deleted, nil
}

// Wrap decorates a lookup with the cache. Only successful, non-empty results
// are stored. Redis failures are logged and the lookup runs uncached.
func (s *Store) Wrap(kind source.Kind, next source.Lookup) source.Lookup {
	return source.LookupFunc(func(ctx context.Context, query string) (source.Result, error) {
		res, ok, err := s.Get(ctx, kind, query)
		switch {
		case err != nil:
			slog.Warn("cache: lookup read failed, bypassing", "source", kind, "error", err)
			metrics.LookupCacheTotal.WithLabelValues(string(kind), "error").Inc()
		case ok:
			metrics.LookupCacheTotal.WithLabelValues(string(kind), "hit").Inc()
			return res, nil
		default:
			metrics.LookupCacheTotal.WithLabelValues(string(kind), "miss").Inc()
		}

		res, err = next.Lookup(ctx, query)
		if err != nil || len(res.Records) == 0 {
			return res, err
		}
		if err := s.Put(ctx, kind, query, res); err != nil {
			slog.Warn("cache: lookup write failed", "source", kind, "error", err)
		}
		return res, nil
	})
}

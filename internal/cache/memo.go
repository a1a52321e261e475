package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

type flightGroup = singleflight.Group

// WithCache returns the value cached under key, or runs producer and caches its
// result on success. Producer errors are returned unchanged and nothing is stored,
// so the next call retries. A ttl <= 0 uses the cache's default TTL.
//
// Concurrent misses for the same key share one producer call. The producer runs
// on a context that keeps ctx's values but not its cancellation or deadline, so
// one caller giving up never fails the others; it must bound its own work. Each
// caller still returns ctx.Err() as soon as its own ctx is done. Deleting or
// invalidating key while the producer runs detaches it: later callers start a
// fresh call and the detached result is not stored.
func WithCache[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	fillCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		token := c.beginFill(key)
		result, err := producer(fillCtx)
		if err != nil {
			c.abortFill(key, token)
			return nil, err
		}
		c.commitFill(key, token, result, ttl)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		typed, _ := res.Val.(T)
		return typed, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

package querycache

import (
	"context"
	"fmt"
)

// Get is a typed Fetch.
func Get[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) }, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache %s: unexpected type %T", key, v)
	}
	return t, nil
}

// Prefetch is a typed Cache.Prefetch.
func Prefetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error), opts ...Option) {
	c.Prefetch(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) }, opts...)
}

// Peek is a typed Cache.Peek.
func Peek[T any](c *Cache, key Key) (T, bool) {
	var zero T
	v, ok := c.Peek(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Package tiered layers an in-process L1 cache over a shared remote L2.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/ragmesh/ragmesh/internal/port/cache"
)

// Cache reads through L1 to L2, backfilling L1 on a remote hit. The remote
// tier is advisory for reads: an L2 error degrades to a miss rather than
// failing the lookup. Writes and deletes go to both tiers; a delete must
// reach L2 so revocations propagate across nodes.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New builds a tiered cache. l1Expire bounds how long an L2 backfill lives
// locally, which is also the staleness window after a remote delete.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.Debug("l2 cache read failed", "error", err)
		return nil, false, nil
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}
	return nil, false, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.Debug("l2 cache write failed", "error", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}

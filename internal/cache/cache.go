// Package cache adds a redis read-through layer in front of a crawl catalog.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citycrawl/crawl/internal/crawl"
)

const (
	listKey   = "citycrawl:crawls"
	crawlKey  = "citycrawl:crawl:"
	opTimeout = 500 * time.Millisecond
)

// Catalog serves definitions from redis when possible and from the wrapped
// catalog otherwise. Redis failures are logged and never surface to callers.
type Catalog struct {
	inner  crawl.Catalog
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(inner crawl.Catalog, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Catalog {
	return &Catalog{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Catalog) Crawls(ctx context.Context) ([]crawl.Definition, error) {
	var defs []crawl.Definition
	if c.get(ctx, listKey, &defs) {
		return defs, nil
	}
	defs, err := c.inner.Crawls(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, listKey, defs)
	return defs, nil
}

func (c *Catalog) Crawl(ctx context.Context, id string) (crawl.Definition, error) {
	var def crawl.Definition
	if c.get(ctx, crawlKey+id, &def) {
		return def, nil
	}
	def, err := c.inner.Crawl(ctx, id)
	if err != nil {
		return crawl.Definition{}, err
	}
	c.set(ctx, crawlKey+id, def)
	return def, nil
}

// Invalidate drops the cached list and the given crawls.
func (c *Catalog) Invalidate(ctx context.Context, ids ...string) error {
	keys := []string{listKey}
	for _, id := range ids {
		keys = append(keys, crawlKey+id)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("invalidating crawl cache", "keys", keys, "error", err)
		return err
	}
	return nil
}

func (c *Catalog) get(ctx context.Context, key string, dest any) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("reading crawl cache", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("decoding crawl cache", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Catalog) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("writing crawl cache", "key", key, "error", err)
	}
}

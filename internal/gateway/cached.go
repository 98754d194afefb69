package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"
)

// BytesCache stores raw bytes with a TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DefaultCachedKinds are the slow-changing kinds worth caching.
var DefaultCachedKinds = []Kind{KindNews, KindEducation}

// Cached serves selected kinds from a cache and fills it from next on a miss.
// Cache errors are logged and fall through to next.
type Cached struct {
	next   Gateway
	cache  BytesCache
	ttl    time.Duration
	kinds  map[Kind]bool
	prefix string
	logger *slog.Logger
}

// NewCached decorates next. With no kinds given, DefaultCachedKinds are cached.
func NewCached(next Gateway, cache BytesCache, ttl time.Duration, logger *slog.Logger, kinds ...Kind) *Cached {
	if len(kinds) == 0 {
		kinds = DefaultCachedKinds
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		kinds:  make(map[Kind]bool, len(kinds)),
		prefix: "market:payload:",
		logger: logger.With("module", "gateway_cache"),
	}
	for _, k := range kinds {
		c.kinds[k] = true
	}
	return c
}

func (c *Cached) Fetch(ctx context.Context, req Request) (Payload, error) {
	if !c.kinds[req.Kind] {
		return c.next.Fetch(ctx, req)
	}

	key := c.cacheKey(req)
	if b, ok, err := c.cache.GetBytes(ctx, key); err != nil {
		c.logger.Warn("Cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		var p Payload
		if err := json.Unmarshal(b, &p); err == nil && p.Kind == req.Kind {
			return p, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", slog.String("key", key))
	}

	p, err := c.next.Fetch(ctx, req)
	if err != nil {
		return Payload{}, err
	}

	b, err := json.Marshal(p)
	if err == nil {
		err = c.cache.SetBytes(ctx, key, b, c.ttl)
	}
	if err != nil {
		c.logger.Warn("Cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return p, nil
}

func (c *Cached) cacheKey(req Request) string {
	key := c.prefix + req.Key()
	if req.Limit > 0 {
		key += ":" + strconv.Itoa(req.Limit)
	}
	return key
}

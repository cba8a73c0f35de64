package catalog

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/domain/ports"
	"moviecatalog/internal/metrics"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultCacheEntries = 500
)

type cacheEntry struct {
	movies    []domain.Movie
	expiresAt time.Time
}

// CacheBackend is a shared second tier for cached search results.
type CacheBackend interface {
	Get(ctx context.Context, key string) ([]domain.Movie, bool, error)
	Set(ctx context.Context, key string, movies []domain.Movie, ttl time.Duration) error
}

type CacheOption func(*CachedSearch)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedSearch) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheBackend(backend CacheBackend) CacheOption {
	return func(c *CachedSearch) { c.backend = backend }
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedSearch) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func withClock(now func() time.Time) CacheOption {
	return func(c *CachedSearch) { c.now = now }
}

// CachedSearch memoizes successful searches in an in-process LRU and,
// when configured, a shared backend. Failures are never cached.
type CachedSearch struct {
	next    ports.SearchSource
	local   *lru.Cache[string, cacheEntry]
	backend CacheBackend
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewCachedSearch(next ports.SearchSource, size int, opts ...CacheOption) *CachedSearch {
	if size <= 0 {
		size = defaultCacheEntries
	}
	// lru.New only fails for a non-positive size.
	local, _ := lru.New[string, cacheEntry](size)
	c := &CachedSearch{
		next:   next,
		local:  local,
		ttl:    defaultCacheTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedSearch) Search(ctx context.Context, query string) ([]domain.Movie, error) {
	key := cacheKey(query)
	now := c.now()

	if entry, ok := c.local.Get(key); ok {
		if now.Before(entry.expiresAt) {
			metrics.CacheHitsTotal.Inc()
			return domain.CloneMovies(entry.movies), nil
		}
		c.local.Remove(key)
	}

	if c.backend != nil {
		movies, found, err := c.backend.Get(ctx, key)
		if err != nil {
			c.logger.Warn("search cache backend read failed", slog.String("error", err.Error()))
		} else if found {
			metrics.CacheHitsTotal.Inc()
			c.local.Add(key, cacheEntry{movies: domain.CloneMovies(movies), expiresAt: now.Add(c.ttl)})
			return movies, nil
		}
	}
	metrics.CacheMissesTotal.Inc()

	movies, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	c.local.Add(key, cacheEntry{movies: domain.CloneMovies(movies), expiresAt: now.Add(c.ttl)})
	if c.backend != nil {
		if err := c.backend.Set(ctx, key, movies, c.ttl); err != nil {
			c.logger.Warn("search cache backend write failed", slog.String("error", err.Error()))
		}
	}
	return movies, nil
}

// cacheKey keeps the query byte for byte; the upstream decides what
// matches, so differently cased text may return a different page.
func cacheKey(query string) string {
	return "q=" + query
}

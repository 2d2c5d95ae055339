// Package cache serves rendered find responses from the store for a bounded
// time. Rows are append-only; staleness is decided at read time and old rows
// are removed only by Prune.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/google/uuid"
)

const (
	DefaultTTL                 = 60 * time.Minute
	DefaultRetentionMultiplier = 24
)

// Config configures a Cache.
type Config struct {
	TTL time.Duration
	// RetentionMultiplier scales TTL into the age past which Prune deletes rows.
	RetentionMultiplier int
	Logger              *slog.Logger
}

// Cache is the response cache in front of the pipeline.
type Cache struct {
	store     storage.Store
	ttl       time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Cache over store.
func New(store storage.Store, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetentionMultiplier <= 0 {
		cfg.RetentionMultiplier = DefaultRetentionMultiplier
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		store:     store,
		ttl:       cfg.TTL,
		retention: cfg.TTL * time.Duration(cfg.RetentionMultiplier),
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// TTL returns the validity window of an entry.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the newest response for query if it is younger than the TTL.
func (c *Cache) Get(ctx context.Context, query string) (string, bool, error) {
	e, err := c.store.LatestCacheEntry(ctx, query)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get: %w", err)
	}
	if c.now().Sub(e.CreatedAt) >= c.ttl {
		c.logger.Debug("cache entry expired", "query", query, "created_at", e.CreatedAt)
		return "", false, nil
	}
	return e.Response, true, nil
}

// Put appends a new entry for query.
func (c *Cache) Put(ctx context.Context, query, response string) error {
	err := c.store.InsertCacheEntry(ctx, storage.CacheEntry{
		ID:        uuid.NewString(),
		Query:     query,
		Response:  response,
		CreatedAt: c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Prune deletes entries older than the retention window and reports how many
// were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention).UTC()
	n, err := c.store.DeleteCacheEntriesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	metrics.CachePrunedRowsTotal.Add(float64(n))
	c.logger.Info("cache pruned", "rows", n, "cutoff", cutoff)
	return n, nil
}

package summaries

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const loadKey = "food_summaries"

// Loader reads the authoritative summary list.
type Loader interface {
	ListFoodSummaries(ctx context.Context) ([]feeding.FoodSummary, error)
}

// Config describes the dependencies of a Cache.
type Config struct {
	Store  Store
	Loader Loader
	Logger *zap.Logger
}

// Cache is a read-through cache of food summaries. Concurrent misses share
// a single load and food mutations invalidate it.
type Cache struct {
	store      Store
	loader     Loader
	logger     *zap.Logger
	group      singleflight.Group
	generation atomic.Uint64
}

// NewCache validates the configuration and constructs a Cache.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, errors.New("summaries: store is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New("summaries: loader is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: cfg.Store, loader: cfg.Loader, logger: logger}, nil
}

// Get returns the cached summaries, loading them on a miss. A failing store
// degrades to direct loads.
func (c *Cache) Get(ctx context.Context) ([]feeding.FoodSummary, error) {
	cached, ok, err := c.store.Get(ctx)
	if err != nil {
		c.logger.Warn("summary cache read failed", zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	result, err, _ := c.group.Do(loadKey, func() (any, error) {
		generation := c.generation.Load()
		summaries, loadErr := c.loader.ListFoodSummaries(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		// An invalidation during the load means the rows may already be stale.
		if generation != c.generation.Load() {
			return summaries, nil
		}
		if setErr := c.store.Set(ctx, summaries); setErr != nil {
			c.logger.Warn("summary cache write failed", zap.Error(setErr))
			return summaries, nil
		}
		// Invalidate bumps the generation before clearing the store, so an
		// unchanged generation here means any later clear follows this write.
		if generation != c.generation.Load() {
			c.clearStore(ctx)
		}
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]feeding.FoodSummary), nil
}

// Invalidate drops the cached summaries and detaches any in-flight load.
func (c *Cache) Invalidate(ctx context.Context) {
	c.generation.Add(1)
	c.group.Forget(loadKey)
	c.clearStore(ctx)
}

func (c *Cache) clearStore(ctx context.Context) {
	if err := c.store.Invalidate(ctx); err != nil {
		c.logger.Warn("summary cache invalidation failed", zap.Error(err))
	}
}

// OnChange invalidates the cache after food mutations. Meal mutations never
// change a summary.
func (c *Cache) OnChange(ctx context.Context, event feeding.ChangeEvent) {
	if event.Entity != feeding.EntityFood {
		return
	}
	c.Invalidate(ctx)
}

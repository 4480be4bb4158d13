package access

import (
	"context"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	catalogKey         = "white_labels"
	catalogLoadTimeout = 10 * time.Second
)

// WhiteLabelSource lists every known white label id.
type WhiteLabelSource interface {
	ListWhiteLabelIDs(ctx context.Context) ([]int, error)
}

// StaticSource is a fixed white label catalog.
type StaticSource []int

// ListWhiteLabelIDs implements WhiteLabelSource
func (s StaticSource) ListWhiteLabelIDs(context.Context) ([]int, error) {
	return slices.Clone(s), nil
}

// Catalog serves the white label universe used for administrators. Results
// are cached for ttl and concurrent misses share one source read.
type Catalog struct {
	source WhiteLabelSource
	cache  *lru.LRU[string, []int]
	group  singleflight.Group
	logger *zap.Logger
}

// NewCatalog creates a catalog over source
func NewCatalog(source WhiteLabelSource, ttl time.Duration, logger *zap.Logger) *Catalog {
	return &Catalog{
		source: source,
		cache:  lru.NewLRU[string, []int](1, nil, ttl),
		logger: logger,
	}
}

// WhiteLabelIDs returns the sorted catalog. Callers must not modify the result.
// A shared load is detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done.
func (c *Catalog) WhiteLabelIDs(ctx context.Context) ([]int, error) {
	if ids, ok := c.cache.Get(catalogKey); ok {
		return ids, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(catalogKey, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(loadCtx, catalogLoadTimeout)
		defer cancel()

		ids, err := c.source.ListWhiteLabelIDs(loadCtx)
		if err != nil {
			c.logger.Error("Failed to load white label catalog", zap.Error(err))
			return nil, err
		}
		ids = slices.Clone(ids)
		slices.Sort(ids)
		ids = slices.Compact(ids)
		c.cache.Add(catalogKey, ids)
		return ids, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]int), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached catalog.
func (c *Catalog) Invalidate() {
	c.cache.Remove(catalogKey)
}

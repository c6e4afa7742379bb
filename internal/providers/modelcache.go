package providers

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

const (
	modelsKey       = "models"
	modelsCacheTTL  = 10 * time.Minute
	cleanupInterval = 30 * time.Minute
)

// ModelCatalog caches the backend's model list. Mutating operations that can
// change availability (key rotation, base URL change) call Invalidate, which
// flushes the whole cache rather than tracking per-entry staleness.
type ModelCatalog struct {
	lister ModelLister
	cache  *gocache.Cache
}

func NewModelCatalog(lister ModelLister) *ModelCatalog {
	return &ModelCatalog{
		lister: lister,
		cache:  gocache.New(modelsCacheTTL, cleanupInterval),
	}
}

// Models returns the backend's model list, cached.
func (c *ModelCatalog) Models(ctx context.Context) ([]string, error) {
	if v, ok := c.cache.Get(modelsKey); ok {
		return v.([]string), nil
	}

	models, err := c.lister.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	c.cache.Set(modelsKey, models, gocache.DefaultExpiration)
	return models, nil
}

// Has reports whether the backend serves the given model.
func (c *ModelCatalog) Has(ctx context.Context, model string) (bool, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m == model {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops everything cached.
func (c *ModelCatalog) Invalidate() {
	c.cache.Flush()
}

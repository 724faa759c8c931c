// Package fingerprint derives and memoizes per-asset content fingerprints
// for the lifetime of a scan session.
package fingerprint

import (
	"context"
	"errors"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/models"
)

// Computer derives a fingerprint for one asset. On failure it may still
// return partial data alongside the error; the caller decides what to keep.
type Computer func(ctx context.Context, asset models.AssetRecord) (models.Fingerprint, error)

// Cache memoizes fingerprints by asset ID so an asset is hashed at most once
// per session, no matter how many buckets or group comparisons touch it.
// Safe for concurrent use.
type Cache struct {
	compute Computer
	store   *cache.Cache
	logger  *zap.Logger
}

// NewCache returns an empty session cache backed by the given computer.
func NewCache(compute Computer, logger *zap.Logger) *Cache {
	return &Cache{
		compute: compute,
		store:   cache.New(cache.NoExpiration, 0),
		logger:  logger,
	}
}

// GetOrCompute returns the cached fingerprint for the asset, computing and
// caching it on first request. A failed computation degrades to a fingerprint
// without perceptual hashes rather than failing the scan; only context
// cancellation propagates as an error.
func (c *Cache) GetOrCompute(ctx context.Context, asset models.AssetRecord) (models.Fingerprint, error) {
	if hit, found := c.store.Get(asset.ID); found {
		return hit.(models.Fingerprint), nil
	}

	fp, err := c.compute(ctx, asset)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.Fingerprint{}, err
		}

		c.logger.Warn("degrading fingerprint after compute failure",
			zap.String("asset_id", asset.ID),
			zap.Error(err))

		fp.Perceptual = nil
		if fp.ByteSize == 0 {
			fp.ByteSize = asset.ByteSize
		}
		if fp.Kind == "" {
			fp.Kind = asset.Kind
		}
	}

	c.store.Set(asset.ID, fp, cache.NoExpiration)
	return fp, nil
}

// Invalidate drops the cached fingerprint of one asset.
func (c *Cache) Invalidate(assetID string) {
	c.store.Delete(assetID)
}

// Clear empties the cache. Called between scan sessions.
func (c *Cache) Clear() {
	c.store.Flush()
}

// Len returns the number of cached fingerprints.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

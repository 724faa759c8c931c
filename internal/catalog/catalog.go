// Package catalog abstracts the source of media assets. The engine only ever
// reads from a catalog; asset identity and metadata stay under catalog
// ownership.
package catalog

import (
	"context"
	"image"
	"time"

	"github.com/fedragon/go-neardup/internal/models"
)

// Filter narrows an enumeration.
type Filter struct {
	// CreatedAfter keeps only assets created strictly after this instant.
	// The zero value keeps everything.
	CreatedAfter time.Time
}

// Catalog is the read-only source of assets to scan.
type Catalog interface {
	// Assets enumerates records matching the filter, ordered by creation
	// time ascending, ties broken by ID. The order is stable across calls
	// as long as the underlying collection does not change.
	Assets(ctx context.Context, filter Filter) ([]models.AssetRecord, error)

	// AssetsExist reports, for each given ID, whether the asset is still
	// present in the catalog.
	AssetsExist(ctx context.Context, ids []string) (map[string]bool, error)

	// ContentHash returns a stable hash of the asset's raw bytes.
	ContentHash(ctx context.Context, id string) (string, error)

	// OpenImage decodes an image asset in full resolution.
	OpenImage(ctx context.Context, id string) (image.Image, error)

	// FrameAt extracts a single frame of a video asset at the given
	// relative position in (0, 1).
	FrameAt(ctx context.Context, id string, position float64) (image.Image, error)
}

package fingerprint

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/catalog"
	"github.com/fedragon/go-neardup/internal/config"
	"github.com/fedragon/go-neardup/internal/models"
	"github.com/fedragon/go-neardup/internal/phash"
)

// NewComputer builds a Computer that reads pixels and bytes through the
// catalog. Images hash their decoded frame, videos a single frame at the
// configured relative position; audio and unknown assets carry only a
// content hash.
func NewComputer(cat catalog.Catalog, hashing config.Hashing, logger *zap.Logger) Computer {
	return func(ctx context.Context, asset models.AssetRecord) (models.Fingerprint, error) {
		fp := models.Fingerprint{
			ByteSize: asset.ByteSize,
			Kind:     asset.Kind,
		}

		contentHash, err := cat.ContentHash(ctx, asset.ID)
		if err != nil {
			return fp, fmt.Errorf("content hash %v: %w", asset.ID, err)
		}
		fp.ContentHash = contentHash

		var frame image.Image
		switch asset.Kind {
		case models.KindImage:
			frame, err = cat.OpenImage(ctx, asset.ID)
			if err != nil {
				return fp, fmt.Errorf("decode image %v: %w", asset.ID, err)
			}
		case models.KindVideo:
			frame, err = cat.FrameAt(ctx, asset.ID, hashing.FramePosition)
			if err != nil {
				return fp, fmt.Errorf("extract frame %v: %w", asset.ID, err)
			}
		default:
			return fp, nil
		}

		triple, err := phash.Triple(phash.Normalize(frame, hashing.ThumbnailEdge))
		if err != nil {
			return fp, fmt.Errorf("hash %v: %w", asset.ID, err)
		}
		fp.Perceptual = &triple

		logger.Debug("computed fingerprint",
			zap.String("asset_id", asset.ID),
			zap.String("kind", string(asset.Kind)))

		return fp, nil
	}
}

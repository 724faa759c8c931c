package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/catalog"
	"github.com/fedragon/go-neardup/internal/models"
)

// Prune drops group items whose assets no longer exist in the catalog and
// discards groups left with fewer than two items. Existence is checked with
// one batched catalog call. Pruning is idempotent.
func Prune(ctx context.Context, cat catalog.Catalog, groups []models.DuplicateGroup, logger *zap.Logger) ([]models.DuplicateGroup, error) {
	ids := make([]string, 0)
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, item := range group.Items {
			if !seen[item.Asset.ID] {
				seen[item.Asset.ID] = true
				ids = append(ids, item.Asset.ID)
			}
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	exists, err := cat.AssetsExist(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("checking asset existence: %w", err)
	}

	pruned := make([]models.DuplicateGroup, 0, len(groups))
	dropped := 0
	for _, group := range groups {
		kept := make([]models.DuplicateItem, 0, len(group.Items))
		for _, item := range group.Items {
			if exists[item.Asset.ID] {
				kept = append(kept, item)
			} else {
				dropped++
			}
		}

		if len(kept) < 2 {
			continue
		}
		if len(kept) == len(group.Items) {
			pruned = append(pruned, group)
			continue
		}

		group.Items = kept
		pruned = append(pruned, finalizeGroup(group))
	}

	if dropped > 0 {
		logger.Info("Pruned stale group items",
			zap.Int("dropped_items", dropped),
			zap.Int("groups_before", len(groups)),
			zap.Int("groups_after", len(pruned)))
	}

	return pruned, nil
}

// Refresh revalidates a stored result against the catalog without any
// hashing: stale items drop out, groups shrink or dissolve. The result keeps
// its identity and dates, only the group set changes.
func (e *Engine) Refresh(ctx context.Context, current models.ScanResult) (models.ScanResult, error) {
	pruned, err := Prune(ctx, e.Catalog, current.Groups, e.Logger)
	if err != nil {
		return models.ScanResult{}, err
	}

	current.Groups = pruned
	e.Logger.Info("Refreshed scan result",
		zap.String("scan_id", current.ScanID),
		zap.Int("groups", len(pruned)))
	return current, nil
}

// DeleteAssetsAndReconcile treats the given assets as gone regardless of
// catalog state and rebuilds the result under the pruning contract.
func (e *Engine) DeleteAssetsAndReconcile(assetIDs []string, current models.ScanResult) models.ScanResult {
	current.Groups = RemoveAssets(current.Groups, assetIDs)
	return current
}

// RemoveAssets drops the given assets from every group, discarding groups
// that fall below two items. Group IDs are recomputed where membership
// changed.
func RemoveAssets(groups []models.DuplicateGroup, assetIDs []string) []models.DuplicateGroup {
	remove := make(map[string]bool, len(assetIDs))
	for _, id := range assetIDs {
		remove[id] = true
	}

	result := make([]models.DuplicateGroup, 0, len(groups))
	for _, group := range groups {
		kept := make([]models.DuplicateItem, 0, len(group.Items))
		for _, item := range group.Items {
			if !remove[item.Asset.ID] {
				kept = append(kept, item)
			}
		}

		if len(kept) < 2 {
			continue
		}
		if len(kept) == len(group.Items) {
			result = append(result, group)
			continue
		}

		group.Items = kept
		result = append(result, finalizeGroup(group))
	}

	return result
}

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fedragon/go-neardup/internal/catalog"
	"github.com/fedragon/go-neardup/internal/fingerprint"
	"github.com/fedragon/go-neardup/internal/models"
)

// Phase identifies the step a scan is currently in.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseGroupingNew       Phase = "grouping_new"
	PhaseComparingNew      Phase = "comparing_new"
	PhaseComparingExisting Phase = "comparing_existing"
	PhaseMerging           Phase = "merging"
	PhaseComplete          Phase = "complete"
	PhaseError             Phase = "error"
)

// Progress receives phase transitions with a completion fraction in [0, 1].
// It may be invoked concurrently from comparison workers.
type Progress func(phase Phase, fraction float64)

// Engine runs full and delta duplicate scans over a catalog.
type Engine struct {
	Catalog    catalog.Catalog
	Cache      *fingerprint.Cache
	Comparator *Comparator
	NumWorkers int
	Logger     *zap.Logger
	Progress   Progress
}

// FullScan enumerates the whole catalog, groups duplicates and returns a
// fresh result. The previous result, if any, plays no part.
func (e *Engine) FullScan(ctx context.Context) (models.ScanResult, error) {
	started := time.Now()
	e.Logger.Info("Starting full scan")
	e.report(PhaseGroupingNew, 0)

	assets, err := e.Catalog.Assets(ctx, catalog.Filter{})
	if err != nil {
		e.report(PhaseError, 0)
		return models.ScanResult{}, fmt.Errorf("enumerating assets: %w", err)
	}

	buckets := Buckets(assets)
	e.Logger.Info("Bucketed assets",
		zap.Int("assets", len(assets)),
		zap.Int("buckets", len(buckets)))

	groups, err := e.compareBuckets(ctx, PhaseComparingNew, buckets)
	if err != nil {
		e.report(PhaseError, 0)
		return models.ScanResult{}, err
	}

	e.report(PhaseMerging, 0)
	merged := MergeOverlapping(groups)

	result := models.ScanResult{
		ScanID:             newScanID(),
		ScanDate:           time.Now(),
		LastAssetDate:      newestCreation(assets, time.Time{}),
		TotalAssetsScanned: len(assets),
		Groups:             merged,
	}

	e.report(PhaseComplete, 1)
	e.Logger.Info("Full scan complete",
		zap.String("scan_id", result.ScanID),
		zap.Int("assets", len(assets)),
		zap.Int("groups", len(merged)),
		zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

// DeltaScan processes only assets created after the previous scan's
// watermark: it groups them among themselves, matches them against existing
// groups, merges overlaps and prunes stale entries. Without a usable
// previous result it falls back to a full scan.
func (e *Engine) DeltaScan(ctx context.Context, previous models.ScanResult) (models.ScanResult, error) {
	if previous.ScanID == "" {
		e.Logger.Info("No previous scan found, running a full scan")
		return e.FullScan(ctx)
	}

	started := time.Now()
	e.Logger.Info("Starting delta scan",
		zap.String("previous_scan_id", previous.ScanID),
		zap.Time("watermark", previous.LastAssetDate))
	e.report(PhaseGroupingNew, 0)

	enumerated, err := e.Catalog.Assets(ctx, catalog.Filter{CreatedAfter: previous.LastAssetDate})
	if err != nil {
		e.report(PhaseError, 0)
		return models.ScanResult{}, fmt.Errorf("enumerating new assets: %w", err)
	}

	newAssets := dropKnownAssets(enumerated, previous.Groups)
	e.Logger.Info("Enumerated new assets",
		zap.Int("enumerated", len(enumerated)),
		zap.Int("new", len(newAssets)))

	newGroups, err := e.compareBuckets(ctx, PhaseComparingNew, Buckets(newAssets))
	if err != nil {
		e.report(PhaseError, 0)
		return models.ScanResult{}, err
	}

	updated, err := e.compareAgainstExisting(ctx, newAssets, previous.Groups)
	if err != nil {
		e.report(PhaseError, 0)
		return models.ScanResult{}, err
	}

	e.report(PhaseMerging, 0)
	merged := MergeOverlapping(append(updated, newGroups...))

	pruned, err := Prune(ctx, e.Catalog, merged, e.Logger)
	if err != nil {
		e.report(PhaseError, 0)
		return models.ScanResult{}, err
	}

	// The watermark covers everything enumerated, not just genuinely new
	// assets: a known asset whose creation timestamp moved forward advances
	// it too and stops re-enumerating.
	result := models.ScanResult{
		ScanID:             newScanID(),
		ScanDate:           time.Now(),
		LastAssetDate:      newestCreation(enumerated, previous.LastAssetDate),
		TotalAssetsScanned: previous.TotalAssetsScanned + len(newAssets),
		Groups:             pruned,
	}

	e.report(PhaseComplete, 1)
	e.Logger.Info("Delta scan complete",
		zap.String("scan_id", result.ScanID),
		zap.Int("new_assets", len(newAssets)),
		zap.Int("groups", len(pruned)),
		zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

// compareBuckets fans buckets out to a bounded worker pool. Each worker owns
// its own slice of results so the fingerprint cache is the only shared
// state; cancellation is honored between buckets while a bucket in flight
// runs to completion.
func (e *Engine) compareBuckets(parentCtx context.Context, phase Phase, buckets []Bucket) ([]models.DuplicateGroup, error) {
	e.report(phase, 0)
	if len(buckets) == 0 {
		return nil, nil
	}

	workers := e.NumWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan Bucket)
	perWorker := make([][]models.DuplicateGroup, workers)
	done := atomic.NewInt64(0)

	g, ctx := errgroup.WithContext(parentCtx)

	g.Go(func() error {
		defer close(jobs)
		for _, bucket := range buckets {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- bucket:
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		worker := i
		log := e.Logger.With(zap.Int("worker_id", worker))

		g.Go(func() error {
			for bucket := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}

				groups, err := groupBucket(ctx, e.Comparator, e.Cache, bucket)
				if err != nil {
					return err
				}
				perWorker[worker] = append(perWorker[worker], groups...)

				log.Debug("Compared bucket",
					zap.String("bucket", bucket.Key),
					zap.Int("members", len(bucket.Assets)),
					zap.Int("groups", len(groups)))
				e.report(phase, float64(done.Inc())/float64(len(buckets)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.DuplicateGroup
	for _, groups := range perWorker {
		all = append(all, groups...)
	}
	return all, nil
}

// compareAgainstExisting matches every new asset against the members of
// existing groups sharing its bucket key, taking the best match across all
// members and appending the asset to that single group. A Bloom filter over
// the members' bucket keys short-circuits new assets no member could pair
// with. The input list is not mutated.
func (e *Engine) compareAgainstExisting(ctx context.Context, newAssets []models.AssetRecord, existing []models.DuplicateGroup) ([]models.DuplicateGroup, error) {
	e.report(PhaseComparingExisting, 0)

	updated := make([]models.DuplicateGroup, len(existing))
	copy(updated, existing)
	if len(newAssets) == 0 || len(existing) == 0 {
		return updated, nil
	}

	memberKeys := existingBucketKeys(existing)

	for i, asset := range newAssets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if key := BucketKey(asset); memberKeys.TestString(key) {
			bestGroup, best, assetFP, err := e.bestExistingMatch(ctx, asset, key, updated)
			if err != nil {
				return nil, err
			}
			if bestGroup >= 0 {
				updated[bestGroup] = appendToGroup(updated[bestGroup], asset, *assetFP, best)
			}
		}

		e.report(PhaseComparingExisting, float64(i+1)/float64(len(newAssets)))
	}

	return updated, nil
}

// bestExistingMatch compares one new asset one-to-one against every existing
// group member sharing its bucket key and returns the index of the best
// matching group, or -1. The asset's fingerprint is fetched lazily on the
// first member passing the duration pre-gate.
func (e *Engine) bestExistingMatch(ctx context.Context, asset models.AssetRecord, key string, groups []models.DuplicateGroup) (int, Match, *models.Fingerprint, error) {
	best := Match{Type: models.SimilarityNone}
	bestGroup := -1
	var assetFP *models.Fingerprint

	for gi := range groups {
		for _, item := range groups[gi].Items {
			if BucketKey(item.Asset) != key {
				continue
			}
			if !e.Comparator.durationsComparable(asset, item.Asset) {
				continue
			}

			if assetFP == nil {
				fp, err := e.Cache.GetOrCompute(ctx, asset)
				if err != nil {
					return -1, best, nil, err
				}
				assetFP = &fp
			}

			memberFP, err := e.Cache.GetOrCompute(ctx, item.Asset)
			if err != nil {
				return -1, best, nil, err
			}

			match := e.Comparator.Compare(asset, item.Asset, *assetFP, memberFP)
			if match.Type == models.SimilarityNone {
				continue
			}
			if bestGroup == -1 || match.betterThan(best) {
				best = match
				bestGroup = gi
			}
		}
	}

	return bestGroup, best, assetFP, nil
}

// existingBucketKeys seeds a Bloom filter with the bucket key of every
// existing group member. A negative test proves no member shares a new
// asset's key; a false positive falls through to the member scan.
func existingBucketKeys(groups []models.DuplicateGroup) *bloom.BloomFilter {
	members := 0
	for _, group := range groups {
		members += len(group.Items)
	}

	filter := bloom.NewWithEstimates(uint(members), 0.01)
	for _, group := range groups {
		for _, item := range group.Items {
			filter.AddString(BucketKey(item.Asset))
		}
	}
	return filter
}

// dropKnownAssets filters out enumerated assets already sitting in a
// previous group, such as files whose creation timestamp moved past the
// watermark after they were grouped.
func dropKnownAssets(assets []models.AssetRecord, groups []models.DuplicateGroup) []models.AssetRecord {
	known := make(map[string]bool)
	for _, group := range groups {
		for _, item := range group.Items {
			known[item.Asset.ID] = true
		}
	}
	if len(known) == 0 {
		return assets
	}

	fresh := make([]models.AssetRecord, 0, len(assets))
	for _, asset := range assets {
		if known[asset.ID] {
			continue
		}
		fresh = append(fresh, asset)
	}
	return fresh
}

func (e *Engine) report(phase Phase, fraction float64) {
	if e.Progress != nil {
		e.Progress(phase, fraction)
	}
}

func newScanID() string {
	return "scan-" + uuid.NewString()[:8]
}

// newestCreation returns the latest creation time among the assets, or the
// fallback when there are none.
func newestCreation(assets []models.AssetRecord, fallback time.Time) time.Time {
	newest := fallback
	for _, asset := range assets {
		if asset.CreatedAt.After(newest) {
			newest = asset.CreatedAt
		}
	}
	return newest
}

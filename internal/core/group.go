package core

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/fedragon/go-neardup/internal/fingerprint"
	"github.com/fedragon/go-neardup/internal/models"
)

// groupBucket finds duplicate groups within one bucket using successive
// reference rounds: the oldest unclaimed asset becomes the reference, every
// other unclaimed asset is compared against it, the matches form a group,
// and the next unclaimed asset seeds the following round. Fingerprints are
// fetched only for pairs passing the duration pre-gate, the reference's on
// the first candidate gated in.
func groupBucket(ctx context.Context, comp *Comparator, cache *fingerprint.Cache, bucket Bucket) ([]models.DuplicateGroup, error) {
	remaining := bucket.Assets
	var groups []models.DuplicateGroup

	for len(remaining) >= 2 {
		ref := remaining[0]
		var refFP *models.Fingerprint

		var members []groupMember
		var next []models.AssetRecord

		for _, candidate := range remaining[1:] {
			if !comp.durationsComparable(ref, candidate) {
				next = append(next, candidate)
				continue
			}

			if refFP == nil {
				fp, err := cache.GetOrCompute(ctx, ref)
				if err != nil {
					return nil, err
				}
				refFP = &fp
			}

			fp, err := cache.GetOrCompute(ctx, candidate)
			if err != nil {
				return nil, err
			}

			match := comp.Compare(ref, candidate, *refFP, fp)
			if match.Type == models.SimilarityNone {
				next = append(next, candidate)
				continue
			}
			members = append(members, groupMember{asset: candidate, fp: fp, match: match})
		}

		if len(members) > 0 {
			groups = append(groups, materializeGroup(ref, *refFP, members))
		}
		remaining = next
	}

	return groups, nil
}

type groupMember struct {
	asset models.AssetRecord
	fp    models.Fingerprint
	match Match
}

// materializeGroup builds a DuplicateGroup from a reference asset and its
// matches. The group is Exact only when every member matched exactly, and
// its confidence is the weakest member's.
func materializeGroup(ref models.AssetRecord, refFP models.Fingerprint, members []groupMember) models.DuplicateGroup {
	similarity := models.SimilarityExact
	confidence := 1.0
	for _, m := range members {
		if m.match.Type == models.SimilaritySimilar {
			similarity = models.SimilaritySimilar
		}
		if m.match.Confidence < confidence {
			confidence = m.match.Confidence
		}
	}

	items := make([]models.DuplicateItem, 0, len(members)+1)
	items = append(items, newItem(ref, refFP))
	for _, m := range members {
		items = append(items, newItem(m.asset, m.fp))
	}

	return finalizeGroup(models.DuplicateGroup{
		Similarity: similarity,
		Confidence: confidence,
		Items:      items,
	})
}

// newItem wraps an asset into a group item with a fresh item identity.
func newItem(asset models.AssetRecord, fp models.Fingerprint) models.DuplicateItem {
	return models.DuplicateItem{
		ItemID:        uuid.New().String(),
		Asset:         asset,
		Dimensions:    models.FormatDimensions(asset.Width, asset.Height),
		DurationLabel: models.FormatDuration(asset.Duration),
		Fingerprint:   fp,
	}
}

// finalizeGroup sorts items by asset ID and derives the membership-based
// group ID, so that the same membership always materializes identically.
func finalizeGroup(g models.DuplicateGroup) models.DuplicateGroup {
	sort.Slice(g.Items, func(i, j int) bool {
		return g.Items[i].Asset.ID < g.Items[j].Asset.ID
	})
	g.ID = models.GroupID(g.AssetIDs())
	return g
}

// appendToGroup adds one asset to an existing group, folding the new match
// into the group's classification with weakest-link semantics.
func appendToGroup(g models.DuplicateGroup, asset models.AssetRecord, fp models.Fingerprint, match Match) models.DuplicateGroup {
	if g.HasAsset(asset.ID) {
		return g
	}

	items := make([]models.DuplicateItem, len(g.Items), len(g.Items)+1)
	copy(items, g.Items)
	items = append(items, newItem(asset, fp))

	similarity := g.Similarity
	if match.Type == models.SimilaritySimilar {
		similarity = models.SimilaritySimilar
	}
	confidence := g.Confidence
	if match.Confidence < confidence {
		confidence = match.Confidence
	}

	return finalizeGroup(models.DuplicateGroup{
		Similarity: similarity,
		Confidence: confidence,
		Items:      items,
	})
}

// MergeOverlapping unions groups sharing at least one asset until no two
// groups overlap, so the result partitions the asset set. Merged groups take
// the weaker classification and the lower confidence of their parts.
func MergeOverlapping(groups []models.DuplicateGroup) []models.DuplicateGroup {
	merged := make([]models.DuplicateGroup, len(groups))
	copy(merged, groups)

	for {
		again := false

	scan:
		for i := 0; i < len(merged); i++ {
			for j := i + 1; j < len(merged); j++ {
				if !groupsOverlap(merged[i], merged[j]) {
					continue
				}
				merged[i] = unionGroups(merged[i], merged[j])
				merged = append(merged[:j], merged[j+1:]...)
				again = true
				break scan
			}
		}

		if !again {
			break
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func groupsOverlap(a, b models.DuplicateGroup) bool {
	for _, item := range a.Items {
		if b.HasAsset(item.Asset.ID) {
			return true
		}
	}
	return false
}

func unionGroups(a, b models.DuplicateGroup) models.DuplicateGroup {
	similarity := models.SimilarityExact
	if a.Similarity == models.SimilaritySimilar || b.Similarity == models.SimilaritySimilar {
		similarity = models.SimilaritySimilar
	}

	confidence := a.Confidence
	if b.Confidence < confidence {
		confidence = b.Confidence
	}

	items := make([]models.DuplicateItem, 0, len(a.Items)+len(b.Items))
	items = append(items, a.Items...)
	for _, item := range b.Items {
		if !a.HasAsset(item.Asset.ID) {
			items = append(items, item)
		}
	}

	return finalizeGroup(models.DuplicateGroup{
		Similarity: similarity,
		Confidence: confidence,
		Items:      items,
	})
}

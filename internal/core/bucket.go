package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/fedragon/go-neardup/internal/models"
)

// sizeBucketGranularity is the byte-size band width used to bucket assets
// that have no pixel dimensions.
const sizeBucketGranularity = 100 * 1024

// Bucket is one coarse partition of the asset set. Assets keep catalog
// order, so the first element is the oldest.
type Bucket struct {
	Key    string
	Assets []models.AssetRecord
}

// BucketKey derives the coarse partition key of an asset from cheap
// metadata only. Assets with different keys are never compared, which keeps
// hashing cost proportional to bucket sizes instead of the whole catalog.
func BucketKey(asset models.AssetRecord) string {
	switch asset.Kind {
	case models.KindVideo:
		return fmt.Sprintf("%v|%vx%v|%v",
			asset.Kind, asset.Width, asset.Height, int(math.Round(asset.Duration)))
	case models.KindImage:
		aspect := 0
		if asset.Height > 0 {
			aspect = int(float64(asset.Width) / float64(asset.Height) * 10)
		}
		return fmt.Sprintf("%v|%vx%v|%v",
			asset.Kind, asset.Width, asset.Height, aspect)
	default:
		return fmt.Sprintf("%v|%v", asset.Kind, asset.ByteSize/sizeBucketGranularity)
	}
}

// Buckets partitions assets by BucketKey and forwards only buckets with at
// least two members, ordered by key. Singleton buckets cannot produce a
// duplicate group, so they are dropped before any hashing happens.
func Buckets(assets []models.AssetRecord) []Bucket {
	byKey := make(map[string][]models.AssetRecord)
	for _, asset := range assets {
		key := BucketKey(asset)
		byKey[key] = append(byKey[key], asset)
	}

	buckets := make([]Bucket, 0, len(byKey))
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		buckets = append(buckets, Bucket{Key: key, Assets: members})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Key < buckets[j].Key
	})

	return buckets
}

package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MediaKind classifies an asset by its broad media type.
type MediaKind string

const (
	KindImage   MediaKind = "image"
	KindVideo   MediaKind = "video"
	KindAudio   MediaKind = "audio"
	KindUnknown MediaKind = "unknown"
)

// LatLng is a WGS84 coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AssetRecord is the catalog's read-only view of a single asset. The engine
// never mutates it; identity is the catalog-owned ID, which stays stable
// across scans.
type AssetRecord struct {
	ID          string    `json:"id"`
	Kind        MediaKind `json:"kind"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Duration    float64   `json:"duration"` // seconds, 0 for images
	ByteSize    int64     `json:"byte_size"`
	CreatedAt   time.Time `json:"created_at"`
	Location    *LatLng   `json:"location,omitempty"`
	DeviceMake  string    `json:"device_make,omitempty"`
	DeviceModel string    `json:"device_model,omitempty"`
}

// HashTriple holds the three 64-bit perceptual hashes of an asset's
// representative frame: perceptual (DCT), difference (gradient) and average.
type HashTriple struct {
	P uint64 `json:"p"`
	D uint64 `json:"d"`
	A uint64 `json:"a"`
}

// Fingerprint identifies an asset's content for the duration of a scan
// session. Perceptual is nil when hashing failed or was skipped; ContentHash
// is empty when the catalog cannot produce one cheaply.
type Fingerprint struct {
	ContentHash string
	ByteSize    int64
	Kind        MediaKind
	Perceptual  *HashTriple
}

// SimilarityType is the classification of a pair or group of assets.
type SimilarityType string

const (
	SimilarityNone    SimilarityType = "none"
	SimilarityExact   SimilarityType = "exact"
	SimilaritySimilar SimilarityType = "similar"
)

// DuplicateItem wraps one asset inside a duplicate group. ItemID is freshly
// generated per materialization, so the same asset re-grouped by a later
// scan carries a new item identity while AssetID stays stable for lookups.
// Items are immutable after construction.
type DuplicateItem struct {
	ItemID        string      `json:"item_id"`
	Asset         AssetRecord `json:"asset"`
	Dimensions    string      `json:"dimensions"`
	DurationLabel string      `json:"duration_label,omitempty"`

	// Session-scoped derived data, never persisted.
	Fingerprint Fingerprint `json:"-"`
}

// DuplicateGroup is a set of at least two items classified as duplicates of
// each other. ID is a pure function of membership (GroupID), independent of
// discovery order.
type DuplicateGroup struct {
	ID         string          `json:"id"`
	Similarity SimilarityType  `json:"similarity"`
	Confidence float64         `json:"confidence"`
	Items      []DuplicateItem `json:"items"`
}

// ScanResult is the boundary record handed to the persistence collaborator.
type ScanResult struct {
	ScanID             string           `json:"scan_id"`
	ScanDate           time.Time        `json:"scan_date"`
	LastAssetDate      time.Time        `json:"last_asset_date"`
	TotalAssetsScanned int              `json:"total_assets_scanned"`
	Groups             []DuplicateGroup `json:"groups"`
}

// groupIDEscaper makes asset IDs safe to join: IDs are file paths on some
// catalogs and may themselves contain the separator.
var groupIDEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

// GroupID derives a group identifier from its members' asset IDs: each ID is
// escaped, then the set is sorted ascending and joined with "|". Any
// permutation of the same membership yields the same ID, and distinct
// memberships yield distinct IDs.
func GroupID(assetIDs []string) string {
	ids := make([]string, len(assetIDs))
	for i, id := range assetIDs {
		ids[i] = groupIDEscaper.Replace(id)
	}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// AssetIDs returns the asset identifiers of the group's items, in item order.
func (g DuplicateGroup) AssetIDs() []string {
	ids := make([]string, len(g.Items))
	for i, item := range g.Items {
		ids[i] = item.Asset.ID
	}
	return ids
}

// HasAsset reports whether the group contains the given asset.
func (g DuplicateGroup) HasAsset(assetID string) bool {
	for _, item := range g.Items {
		if item.Asset.ID == assetID {
			return true
		}
	}
	return false
}

// FormatDimensions renders pixel dimensions for display, empty when unknown.
func FormatDimensions(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", width, height)
}

// FormatDuration renders a duration in seconds for display, empty for images.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

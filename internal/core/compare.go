package core

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/fedragon/go-neardup/internal/config"
	"github.com/fedragon/go-neardup/internal/models"
	"github.com/fedragon/go-neardup/internal/phash"
)

const earthRadiusMeters = 6371010.0

// Blend ratios for the video Similar confidence.
const (
	videoDurationShare = 0.4
	videoVisualShare   = 0.4
	videoLocationShare = 0.2
)

// Match is the outcome of comparing two assets.
type Match struct {
	Type       models.SimilarityType
	Confidence float64
}

// betterThan ranks matches: Exact beats Similar, ties break on confidence.
func (m Match) betterThan(other Match) bool {
	if m.Type == other.Type {
		return m.Confidence > other.Confidence
	}
	if m.Type == models.SimilarityExact {
		return true
	}
	return other.Type == models.SimilarityNone
}

// Comparator classifies pairs of assets using hash distance, byte size,
// duration, location and device metadata. It is stateless and safe for
// concurrent use.
type Comparator struct {
	weights    phash.Weights
	image      config.Image
	video      config.Video
	location   config.Location
	confidence config.Confidence
}

// NewComparator builds a comparator from configuration.
func NewComparator(cfg config.Config) *Comparator {
	return &Comparator{
		weights: phash.Weights{
			P: cfg.Hashing.WeightP,
			D: cfg.Hashing.WeightD,
			A: cfg.Hashing.WeightA,
		},
		image:      cfg.Image,
		video:      cfg.Video,
		location:   cfg.Location,
		confidence: cfg.Confidence,
	}
}

// Compare classifies a pair of assets of the same kind. Identical content
// hashes short-circuit everything: the bytes are the same, so the assets
// are exact duplicates regardless of any other signal.
func (c *Comparator) Compare(a, b models.AssetRecord, fa, fb models.Fingerprint) Match {
	if fa.ContentHash != "" && fa.ContentHash == fb.ContentHash {
		return Match{Type: models.SimilarityExact, Confidence: 1}
	}

	switch a.Kind {
	case models.KindImage:
		return c.compareImages(a, b, fa, fb)
	case models.KindVideo:
		return c.compareVideos(a, b, fa, fb)
	default:
		// Audio and unknown kinds only match on identical bytes.
		return Match{Type: models.SimilarityNone}
	}
}

func (c *Comparator) compareImages(a, b models.AssetRecord, fa, fb models.Fingerprint) Match {
	if fa.Perceptual == nil || fb.Perceptual == nil {
		return c.degraded(fa, fb)
	}

	distance := c.weights.Distance(*fa.Perceptual, *fb.Perceptual)

	if distance < c.image.ExactThreshold && sizesWithin(fa.ByteSize, fb.ByteSize, c.image.SizeTolerance) {
		match := Match{
			Type:       models.SimilarityExact,
			Confidence: math.Max(c.confidence.ExactFloor, 1-distance),
		}
		if agree, locConf := c.locationSignal(a.Location, b.Location); !agree {
			match.Type = models.SimilaritySimilar
			match.Confidence = 0.9*match.Confidence + 0.1*locConf
		}
		return c.capOnDeviceMismatch(a, b, match)
	}

	if distance < c.image.SimilarThreshold {
		match := Match{
			Type:       models.SimilaritySimilar,
			Confidence: 1 - distance/c.image.SimilarThreshold,
		}
		return c.capOnDeviceMismatch(a, b, match)
	}

	return Match{Type: models.SimilarityNone}
}

// durationGates returns the exact and similar duration gates for a pair of
// videos. Gates scale with the longer duration up to a fixed cap.
func (c *Comparator) durationGates(a, b models.AssetRecord) (exact, similar float64) {
	maxDuration := math.Max(a.Duration, b.Duration)
	exact = math.Min(c.video.ExactDurationCap, c.video.ExactDurationRatio*maxDuration)
	similar = math.Min(c.video.SimilarDurationCap, c.video.SimilarDurationRatio*maxDuration)
	return exact, similar
}

// durationsComparable reports whether a pair could still match, judged on
// duration alone. Pairs beyond the similar gate cannot match at any frame
// distance, so callers check this before fetching fingerprints and never
// extract frames of duration-incompatible videos. Non-video pairs always
// pass.
func (c *Comparator) durationsComparable(a, b models.AssetRecord) bool {
	if a.Kind != models.KindVideo || b.Kind != models.KindVideo {
		return true
	}
	_, similarGate := c.durationGates(a, b)
	return math.Abs(a.Duration-b.Duration) <= similarGate
}

func (c *Comparator) compareVideos(a, b models.AssetRecord, fa, fb models.Fingerprint) Match {
	delta := math.Abs(a.Duration - b.Duration)
	exactGate, similarGate := c.durationGates(a, b)

	if delta > similarGate {
		return Match{Type: models.SimilarityNone}
	}

	if fa.Perceptual == nil || fb.Perceptual == nil {
		if delta <= exactGate {
			return c.degraded(fa, fb)
		}
		return Match{Type: models.SimilarityNone}
	}

	distance := c.weights.Distance(*fa.Perceptual, *fb.Perceptual)
	agree, locConf := c.locationSignal(a.Location, b.Location)

	if delta <= exactGate &&
		distance < c.image.ExactThreshold &&
		sizesWithin(fa.ByteSize, fb.ByteSize, c.image.SizeTolerance) &&
		agree {
		match := Match{
			Type:       models.SimilarityExact,
			Confidence: math.Max(c.confidence.ExactFloor, 1-distance),
		}
		return c.capOnDeviceMismatch(a, b, match)
	}

	if distance >= c.image.SimilarThreshold {
		return Match{Type: models.SimilarityNone}
	}

	durationConf := 1.0
	if similarGate > 0 {
		durationConf = 1 - delta/similarGate
	}
	visualConf := 1 - distance/c.image.SimilarThreshold

	match := Match{
		Type:       models.SimilaritySimilar,
		Confidence: videoDurationShare*durationConf + videoVisualShare*visualConf + videoLocationShare*locConf,
	}
	return c.capOnDeviceMismatch(a, b, match)
}

// degraded classifies a pair when at least one side has no perceptual
// hashes. Byte size is the only remaining visual signal, so a match is
// conservative and never Exact.
func (c *Comparator) degraded(fa, fb models.Fingerprint) Match {
	if sizesWithin(fa.ByteSize, fb.ByteSize, c.image.SizeTolerance) {
		return Match{Type: models.SimilaritySimilar, Confidence: c.confidence.Degraded}
	}
	return Match{Type: models.SimilarityNone}
}

// locationSignal reports whether two capture locations agree, and a
// confidence factor that decays with distance. Two missing locations agree;
// a location on exactly one side is treated as infinitely far apart.
func (c *Comparator) locationSignal(a, b *models.LatLng) (bool, float64) {
	switch {
	case a == nil && b == nil:
		return true, 1
	case a == nil || b == nil:
		return false, 0
	}

	meters := distanceMeters(*a, *b)
	if meters <= c.location.AgreementRadiusMeters {
		return true, 1
	}
	return false, math.Min(1, c.location.DecayMeters/(meters+c.location.DecayMeters))
}

func (c *Comparator) capOnDeviceMismatch(a, b models.AssetRecord, m Match) Match {
	if a.DeviceModel != "" && b.DeviceModel != "" && a.DeviceModel != b.DeviceModel {
		m.Confidence = math.Min(m.Confidence, c.confidence.DeviceCap)
	}
	return m
}

// distanceMeters returns the great-circle distance between two coordinates.
func distanceMeters(a, b models.LatLng) float64 {
	p := s2.LatLngFromDegrees(a.Lat, a.Lng)
	q := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p.Distance(q).Radians() * earthRadiusMeters
}

// sizesWithin reports whether two byte sizes differ by at most the given
// fraction of the larger one.
func sizesWithin(a, b int64, tolerance float64) bool {
	larger := math.Max(float64(a), float64(b))
	return math.Abs(float64(a-b)) <= tolerance*larger
}

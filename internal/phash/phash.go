// Package phash computes perceptual hashes over luminance-normalized
// thumbnails and measures distances between them.
package phash

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"github.com/fedragon/go-neardup/internal/models"
)

// Normalize flattens transparency onto a white background, converts to
// luminance and resizes to an edge*edge thumbnail. Hashing the result makes
// format, color profile and resolution differences irrelevant.
func Normalize(img image.Image, edge int) *image.NRGBA {
	bounds := img.Bounds()
	flat := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r := compositeOnWhite(c.R, c.A)
			g := compositeOnWhite(c.G, c.A)
			b := compositeOnWhite(c.B, c.A)
			luma := uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
			flat.SetNRGBA(x, y, color.NRGBA{R: luma, G: luma, B: luma, A: 255})
		}
	}

	return imaging.Resize(flat, edge, edge, imaging.Lanczos)
}

func compositeOnWhite(c, a uint8) uint8 {
	return uint8((uint32(c)*uint32(a) + 255*(255-uint32(a))) / 255)
}

// Triple computes the perceptual, difference and average hashes of an image.
// Callers are expected to pass a normalized thumbnail so that all three
// hashes see the same pixels.
func Triple(img image.Image) (models.HashTriple, error) {
	var triple models.HashTriple

	p, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return triple, fmt.Errorf("perception hash: %w", err)
	}
	d, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return triple, fmt.Errorf("difference hash: %w", err)
	}
	a, err := goimagehash.AverageHash(img)
	if err != nil {
		return triple, fmt.Errorf("average hash: %w", err)
	}

	triple.P = p.GetHash()
	triple.D = d.GetHash()
	triple.A = a.GetHash()
	return triple, nil
}

// Hamming returns the number of differing bits between two 64-bit hashes.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NormalizedDistance scales the Hamming distance of two hashes into [0, 1].
func NormalizedDistance(a, b uint64) float64 {
	return float64(Hamming(a, b)) / 64
}

// Weights blends the per-hash distances into a single score. The perceptual
// hash is robust to global adjustments, the difference hash to brightness
// shifts, the average hash anchors overall luminance.
type Weights struct {
	P float64
	D float64
	A float64
}

// Distance returns the weighted normalized distance between two hash
// triples, in [0, 1] regardless of how the weights are scaled.
func (w Weights) Distance(a, b models.HashTriple) float64 {
	total := w.P + w.D + w.A
	if total == 0 {
		return 1
	}
	sum := w.P*NormalizedDistance(a.P, b.P) +
		w.D*NormalizedDistance(a.D, b.D) +
		w.A*NormalizedDistance(a.A, b.A)
	return sum / total
}

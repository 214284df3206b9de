package imagepipeline

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

const (
	gridSize           = 5
	insetFraction      = 0.10
	alphaOpaqueFloor   = 0x8000 // alpha below this (of 0xffff) counts as near-transparent
	grayscaleChromaEps = 6      // max channel spread (0-255 scale) to call a sample grayscale
)

// extractThemeColor samples a 5x5 grid inside a 10% inset, discards
// near-transparent and grayscale samples, quantizes survivors to a 4-bit
// per channel palette, and picks the most frequent bucket, tie-broken by
// saturation. Posters only; returns an InvalidMedia error if every sample
// was discarded.
func extractThemeColor(posterJPEG []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(posterJPEG))
	if err != nil {
		return "", ferrors.Wrap(ferrors.InvalidMedia, "decode poster for theme color", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	insetX := int(float64(w) * insetFraction)
	insetY := int(float64(h) * insetFraction)
	innerX0, innerY0 := b.Min.X+insetX, b.Min.Y+insetY
	innerX1, innerY1 := b.Max.X-insetX, b.Max.Y-insetY
	if innerX1 <= innerX0 || innerY1 <= innerY0 {
		innerX0, innerY0, innerX1, innerY1 = b.Min.X, b.Min.Y, b.Max.X, b.Max.Y
	}
	innerW, innerH := innerX1-innerX0, innerY1-innerY0

	counts := make(map[[3]uint8]int)
	satSum := make(map[[3]uint8]float64)

	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			px := innerX0 + (gx*innerW)/gridSize + innerW/(gridSize*2)
			py := innerY0 + (gy*innerH)/gridSize + innerH/(gridSize*2)
			r, g, bl, a := img.At(px, py).RGBA()

			if a < alphaOpaqueFloor {
				continue
			}
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(bl>>8)
			if isGrayscale(r8, g8, b8) {
				continue
			}

			q := quantize4Bit(r8, g8, b8)
			counts[q]++
			satSum[q] += saturation(r8, g8, b8)
		}
	}

	if len(counts) == 0 {
		return "", ferrors.New(ferrors.InvalidMedia, "no eligible theme color samples")
	}

	var best [3]uint8
	bestCount := -1
	bestSat := -1.0
	for q, c := range counts {
		avgSat := satSum[q] / float64(c)
		if c > bestCount || (c == bestCount && avgSat > bestSat) {
			best, bestCount, bestSat = q, c, avgSat
		}
	}

	return fmt.Sprintf("%02x%02x%02x", dequantize4Bit(best[0]), dequantize4Bit(best[1]), dequantize4Bit(best[2])), nil
}

func isGrayscale(r, g, b uint8) bool {
	maxC, minC := r, r
	for _, c := range []uint8{g, b} {
		if c > maxC {
			maxC = c
		}
		if c < minC {
			minC = c
		}
	}
	return int(maxC)-int(minC) <= grayscaleChromaEps
}

// quantize4Bit buckets each 8-bit channel down to its high 4 bits.
func quantize4Bit(r, g, b uint8) [3]uint8 {
	return [3]uint8{r >> 4, g >> 4, b >> 4}
}

func dequantize4Bit(q uint8) uint8 {
	return (q << 4) | q
}

// saturation computes HSL saturation for tie-breaking among equally
// frequent quantized buckets.
func saturation(r, g, b uint8) float64 {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	l := (maxC + minC) / 2
	if maxC == minC {
		return 0
	}
	d := maxC - minC
	if l > 0.5 {
		return d / (2 - maxC - minC)
	}
	return d / (maxC + minC)
}

package imagepipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestExtractThemeColorOnSolidRed(t *testing.T) {
	data := solidJPEG(t, 100, 150, color.RGBA{R: 220, G: 20, B: 20, A: 255})
	hex, err := extractThemeColor(data)
	if err != nil {
		t.Fatalf("extractThemeColor: %v", err)
	}
	if len(hex) != 6 {
		t.Fatalf("theme color = %q, want 6 hex digits", hex)
	}
	// Solid saturated red should quantize to a high-red, low-green/blue bucket.
	if hex[0] < '8' {
		t.Fatalf("theme color = %q, want a high-red bucket", hex)
	}
}

func TestExtractThemeColorRejectsGrayscale(t *testing.T) {
	data := solidJPEG(t, 100, 150, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	if _, err := extractThemeColor(data); err == nil {
		t.Fatal("expected an error for an all-grayscale poster")
	}
}

func TestQuantizeDequantizeRoundTrips(t *testing.T) {
	q := quantize4Bit(0xAB, 0x12, 0xF0)
	got := [3]uint8{dequantize4Bit(q[0]), dequantize4Bit(q[1]), dequantize4Bit(q[2])}
	// Dequantized value must land in the same 4-bit bucket as the input.
	if got[0]>>4 != 0xA || got[1]>>4 != 0x1 || got[2]>>4 != 0xF {
		t.Fatalf("round trip = %v", got)
	}
}

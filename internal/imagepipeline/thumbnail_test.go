package imagepipeline

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func solidRGB24(w, h int, r, g, b byte) []byte {
	buf := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		buf[i*3+0] = r
		buf[i*3+1] = g
		buf[i*3+2] = b
	}
	return buf
}

func TestGenerateThumbnailRejectsZeroDimensions(t *testing.T) {
	frame := solidRGB24(320, 180, 10, 20, 30)
	if _, err := generateThumbnail(frame, 320, 180, thumbnailSpec{Width: 0, Height: 100, Quality: 80}); err == nil {
		t.Fatal("expected an error for a zero width")
	}
}

func TestGenerateThumbnailRejectsShortFrameBuffer(t *testing.T) {
	frame := solidRGB24(320, 180, 10, 20, 30)
	if _, err := generateThumbnail(frame[:len(frame)-1], 320, 180, defaultThumbnailSpec()); err == nil {
		t.Fatal("expected an error for a frame buffer shorter than w*h*3")
	}
}

func TestGenerateThumbnailProducesExactDimensions(t *testing.T) {
	frame := solidRGB24(640, 480, 40, 80, 120)
	spec := thumbnailSpec{Width: 160, Height: 90, Quality: 80}

	out, err := generateThumbnail(frame, 640, 480, spec)
	if err != nil {
		t.Fatalf("generateThumbnail: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail output: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != spec.Width || b.Dy() != spec.Height {
		t.Fatalf("thumbnail dims = %dx%d, want %dx%d", b.Dx(), b.Dy(), spec.Width, spec.Height)
	}
}

func TestValidateRGB24LengthInvariant(t *testing.T) {
	if err := validateRGB24(make([]byte, 2*2*3), 2, 2); err != nil {
		t.Fatalf("validateRGB24(exact) = %v, want nil", err)
	}
	if err := validateRGB24(make([]byte, 11), 2, 2); err == nil {
		t.Fatal("expected error for a short rgb24 buffer")
	}
}

func TestRGB24ToImagePreservesPixels(t *testing.T) {
	buf := solidRGB24(4, 2, 200, 100, 50)
	img, err := rgb24ToImage(buf, 4, 2)
	if err != nil {
		t.Fatalf("rgb24ToImage: %v", err)
	}
	r, g, b, a := img.At(3, 1).RGBA()
	if uint8(r>>8) != 200 || uint8(g>>8) != 100 || uint8(b>>8) != 50 || uint8(a>>8) != 255 {
		t.Fatalf("pixel = %d,%d,%d,%d, want 200,100,50,255", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestCenterCropPreservesAspectRatio(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	cropped := centerCrop(src, 16, 9)
	b := cropped.Bounds()
	gotRatio := float64(b.Dx()) / float64(b.Dy())
	wantRatio := 16.0 / 9.0
	if diff := gotRatio - wantRatio; diff > 0.02 || diff < -0.02 {
		t.Fatalf("crop ratio = %v, want ~%v", gotRatio, wantRatio)
	}
}

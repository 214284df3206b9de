package imagepipeline

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

// thumbnailSpec names the target shape for an episode thumbnail: center-crop
// to this aspect ratio, then resize to exactly width x height.
type thumbnailSpec struct {
	Width, Height int
	Quality       int
}

func defaultThumbnailSpec() thumbnailSpec {
	return thumbnailSpec{Width: 320, Height: 180, Quality: 85}
}

// generateThumbnail takes a raw RGB24 frame, center-crops to the target
// aspect ratio, resizes with CatmullRom (x/image/draw's closest analogue to
// a Lanczos filter), and encodes JPEG at the configured quality. Target
// dimensions must be non-zero.
func generateThumbnail(frame []byte, frameW, frameH int, spec thumbnailSpec) ([]byte, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, ferrors.New(ferrors.InvalidMedia, "thumbnail target dimensions must be non-zero")
	}

	src, err := rgb24ToImage(frame, frameW, frameH)
	if err != nil {
		return nil, err
	}

	cropped := centerCrop(src, spec.Width, spec.Height)

	dst := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	quality := spec.Quality
	if quality <= 0 {
		quality = 85
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, ferrors.Wrap(ferrors.Internal, "encode thumbnail jpeg", err)
	}
	return buf.Bytes(), nil
}

// centerCrop returns the largest centered rectangle of img matching the
// targetW:targetH aspect ratio.
func centerCrop(img image.Image, targetW, targetH int) image.Image {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	targetRatio := float64(targetW) / float64(targetH)
	srcRatio := float64(srcW) / float64(srcH)

	var cropW, cropH int
	if srcRatio > targetRatio {
		cropH = srcH
		cropW = int(float64(srcH) * targetRatio)
	} else {
		cropW = srcW
		cropH = int(float64(srcW) / targetRatio)
	}

	x0 := b.Min.X + (srcW-cropW)/2
	y0 := b.Min.Y + (srcH-cropH)/2
	rect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	// Fallback for decoders that don't expose SubImage: copy into a fresh RGBA.
	out := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// validateRGB24 checks the RGB24 buffer-length invariant w x h x 3 the
// pipeline enforces before any frame is accepted as a crop/resize source.
func validateRGB24(buf []byte, w, h int) error {
	want := w * h * 3
	if len(buf) != want {
		return ferrors.New(ferrors.InvalidMedia, "rgb24 buffer length mismatch")
	}
	return nil
}

// rgb24ToImage wraps a packed RGB24 buffer as an image.RGBA, enforcing the
// length invariant first.
func rgb24ToImage(buf []byte, w, h int) (image.Image, error) {
	if err := validateRGB24(buf, w, h); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4+0] = buf[i*3+0]
		img.Pix[i*4+1] = buf[i*3+1]
		img.Pix[i*4+2] = buf[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

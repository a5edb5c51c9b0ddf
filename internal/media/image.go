package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageNormalizer fits arbitrary images to an exact frame size. Images are
// scaled to cover the frame and the overflow is cropped evenly from both
// sides, so the result is never letterboxed.
type ImageNormalizer struct {
	scaler draw.Scaler
}

func NewImageNormalizer() *ImageNormalizer {
	return &ImageNormalizer{scaler: draw.CatmullRom}
}

func (n *ImageNormalizer) Normalize(src, dst string, width, height int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return n.NormalizeBytes(data, dst, width, height)
}

func (n *ImageNormalizer) NormalizeBytes(data []byte, dst string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: decode image: %v", ErrUnsupportedMedia, err)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	n.scaler.Scale(out, out.Bounds(), img, CoverRect(img.Bounds(), width, height), draw.Over, nil)

	return writePNG(out, dst)
}

// CoverRect returns the centered region of src that has the aspect ratio of
// width x height and is as large as possible.
func CoverRect(src image.Rectangle, width, height int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return src
	}

	cw, ch := sw, sh
	if sw*height > sh*width {
		cw = sh * width / height
	} else {
		ch = sw * height / width
	}
	cw = max(cw, 1)
	ch = max(ch, 1)

	x0 := src.Min.X + (sw-cw)/2
	y0 := src.Min.Y + (sh-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func writePNG(img image.Image, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".img-*.png")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close png: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store png: %w", err)
	}
	return nil
}

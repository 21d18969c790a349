package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame is one captured screenshot, already re-encoded as JPEG.
type Frame struct {
	Data       []byte
	Ref        string
	CapturedAt time.Time
	Width      int
	Height     int
}

// Downscale shrinks img to maxWidth keeping the aspect ratio. Images that
// are already narrow enough are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Prepare decodes a PNG or JPEG screenshot, downsizes and re-encodes it.
func Prepare(raw []byte, maxWidth, quality int) ([]byte, image.Rectangle, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("decode screenshot: %w", err)
	}
	img = Downscale(img, maxWidth)
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("encode screenshot: %w", err)
	}
	return data, img.Bounds(), nil
}

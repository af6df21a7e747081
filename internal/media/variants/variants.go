// Package variants renders the derivative images served by the thumbnail
// endpoints: a 250x250 crop and a preview capped at 1440 on the long edge.
// Derivatives are encoded as JPEG; the stored AssetFile path carries the
// actual extension, so the format is never guessed from the asset id.
package variants

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	thumbnailEdge  = 250
	previewEdge    = 1440
	previewQuality = 80
)

// Thumbnail renders the square 250x250 crop.
func Thumbnail(data []byte) ([]byte, error) {
	src, err := decode(data)
	if err != nil {
		return nil, err
	}
	out := imaging.Fill(src, thumbnailEdge, thumbnailEdge, imaging.Center, imaging.Lanczos)
	return encodeJPEG(out, previewQuality)
}

// Preview renders the large derivative, never upscaling a smaller source.
func Preview(data []byte) ([]byte, error) {
	src, err := decode(data)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	if b.Dx() > previewEdge || b.Dy() > previewEdge {
		src = imaging.Fit(src, previewEdge, previewEdge, imaging.Lanczos)
	}
	return encodeJPEG(src, previewQuality)
}

// Dimensions reports the source pixel size without rendering anything.
func Dimensions(data []byte) (width, height int64, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("variants: decode config: %w", err)
	}
	return int64(cfg.Width), int64(cfg.Height), nil
}

func decode(data []byte) (image.Image, error) {
	// AutoOrientation bakes the EXIF rotation into the pixels so
	// derivatives render upright everywhere.
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("variants: decode: %w", err)
	}
	return src, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("variants: encode: %w", err)
	}
	return buf.Bytes(), nil
}

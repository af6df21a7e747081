// Package exifmeta extracts camera metadata from uploaded image bytes.
// Extraction is best-effort: a file without EXIF still yields the byte
// length, and individual bad tags are skipped rather than failing the
// whole record.
package exifmeta

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Extract returns a column map consumable by the exif store. The returned
// width/height fall back to decoding the image header when EXIF lacks
// dimension tags.
func Extract(data []byte) map[string]any {
	cols := map[string]any{
		"file_size_byte": int64(len(data)),
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		cols["exif_image_width"] = int64(cfg.Width)
		cols["exif_image_height"] = int64(cfg.Height)
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return cols
	}

	putString(cols, x, exif.Make, "make")
	putString(cols, x, exif.Model, "model")
	putString(cols, x, exif.LensModel, "lens_model")
	putInt(cols, x, exif.ISOSpeedRatings, "iso")
	putRational(cols, x, exif.FNumber, "f_number")
	putRational(cols, x, exif.FocalLength, "focal_length")

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			cols["orientation"] = fmt.Sprintf("%d", v)
		}
	}
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			cols["exposure_time"] = fmt.Sprintf("%d/%d", num, den)
		}
	}
	if tag, err := x.Get(exif.PixelXDimension); err == nil {
		if v, err := tag.Int(0); err == nil && v > 0 {
			cols["exif_image_width"] = int64(v)
		}
	}
	if tag, err := x.Get(exif.PixelYDimension); err == nil {
		if v, err := tag.Int(0); err == nil && v > 0 {
			cols["exif_image_height"] = int64(v)
		}
	}

	if dt, err := x.DateTime(); err == nil {
		cols["date_time_original"] = dt.UTC().Format(time.RFC3339Nano)
	}
	if lat, lng, err := x.LatLong(); err == nil {
		cols["latitude"] = lat
		cols["longitude"] = lng
	}

	return cols
}

// DateTimeOriginal returns the capture time when present. Ingest uses it
// to correct the asset's localDateTime when the client-supplied one is
// the zero value.
func DateTimeOriginal(data []byte) (time.Time, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, false
	}
	dt, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return dt, true
}

func putString(cols map[string]any, x *exif.Exif, field exif.FieldName, col string) {
	tag, err := x.Get(field)
	if err != nil {
		return
	}
	if v, err := tag.StringVal(); err == nil && v != "" {
		cols[col] = v
	}
}

func putInt(cols map[string]any, x *exif.Exif, field exif.FieldName, col string) {
	tag, err := x.Get(field)
	if err != nil {
		return
	}
	if v, err := tag.Int(0); err == nil {
		cols[col] = int64(v)
	}
}

func putRational(cols map[string]any, x *exif.Exif, field exif.FieldName, col string) {
	tag, err := x.Get(field)
	if err != nil || tag.Format() != tiff.RatVal {
		return
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return
	}
	cols[col] = float64(num) / float64(den)
}

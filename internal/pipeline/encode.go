package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"strings"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
)

// Format is an output encoding. All formats are lossy.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// DefaultAVIFSpeed is the standard speed used for AVIF encoding.
const DefaultAVIFSpeed = 8

// ParseFormat maps user input to a Format. Empty input selects JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	case "avif":
		return FormatAVIF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Ext is the file extension used for downloads.
func (f Format) Ext() string {
	switch f {
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return "jpg"
	}
}

// ContentType is the MIME type of encoded output.
func (f Format) ContentType() string {
	switch f {
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

// Encode writes img to w in format f. quality is in [0,1] and is mapped to
// each encoder's native scale.
func Encode(w io.Writer, img image.Image, f Format, quality float64) error {
	if img == nil {
		return errors.New("nil image")
	}
	if w == nil {
		return errors.New("nil writer")
	}
	q := percentQuality(quality)

	switch f {
	case FormatJPEG, "":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(q)})
	case FormatAVIF:
		return avif.Encode(w, img, avif.Options{Quality: q, QualityAlpha: q, Speed: DefaultAVIFSpeed})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// percentQuality converts a 0-1 quality to 1-100.
func percentQuality(quality float64) int {
	if math.IsNaN(quality) {
		return 1
	}
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

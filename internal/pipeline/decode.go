package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
	"golang.org/x/image/bmp"
)

// DefaultMaxBytes caps how much of an upload is read into memory.
const DefaultMaxBytes = 25 << 20

// DetectFormat returns the MIME type of data. AVIF is recognised from its
// ftyp box since http.DetectContentType does not know it.
func DetectFormat(data []byte) string {
	if isAVIF(data) {
		return "image/avif"
	}
	return http.DetectContentType(data)
}

func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}

// Decode reads up to maxBytes from r, decodes it, applies EXIF orientation
// and validates dimensions against maxDimension.
func Decode(r io.Reader, maxBytes int64, maxDimension int) (*Source, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxDimension <= 0 {
		maxDimension = MaxDimension
	}

	// read up to maxBytes+1 to detect overflow
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrNotAnImage
	}

	ct := DetectFormat(data)
	cfg, err := decodeConfigAs(ct, data)
	if err != nil {
		return nil, err
	}
	// reject before allocating the full bitmap
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxDimension || cfg.Height > maxDimension {
		return nil, ErrInvalidDimensions
	}

	img, err := decodeAs(ct, data)
	if err != nil {
		return nil, err
	}

	if ct == "image/jpeg" {
		img, _ = ApplyEXIFOrientation(img, bytes.NewReader(data))
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
		return nil, ErrInvalidDimensions
	}

	return &Source{Image: img, Width: w, Height: h, ContentType: ct}, nil
}

func decodeAs(ct string, data []byte) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	r := bytes.NewReader(data)

	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		img, err = jpeg.Decode(r)
	case strings.HasPrefix(ct, "image/png"):
		img, err = png.Decode(r)
	case strings.HasPrefix(ct, "image/gif"):
		img, err = gif.Decode(r)
	case strings.HasPrefix(ct, "image/webp"):
		img, err = webp.Decode(r)
	case strings.HasPrefix(ct, "image/bmp"):
		img, err = bmp.Decode(r)
	case ct == "image/avif":
		img, err = avif.Decode(r)
	default:
		return nil, ErrNotAnImage
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", ct, ErrNotAnImage, err)
	}
	return img, nil
}

func decodeConfigAs(ct string, data []byte) (image.Config, error) {
	var (
		cfg image.Config
		err error
	)
	r := bytes.NewReader(data)

	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		cfg, err = jpeg.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/png"):
		cfg, err = png.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/gif"):
		cfg, err = gif.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/webp"):
		cfg, err = webp.DecodeConfig(r)
	case strings.HasPrefix(ct, "image/bmp"):
		cfg, err = bmp.DecodeConfig(r)
	case ct == "image/avif":
		cfg, err = avif.DecodeConfig(r)
	default:
		return cfg, ErrNotAnImage
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s header: %w: %v", ct, ErrNotAnImage, err)
	}
	return cfg, nil
}

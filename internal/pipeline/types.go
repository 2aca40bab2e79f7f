package pipeline

import (
	"errors"
	"image"
	"math"
)

var (
	ErrNotAnImage        = errors.New("uploaded file is not an image")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrInvalidDimensions = errors.New("image dimensions out of range")
	ErrNoSource          = errors.New("no source image loaded")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Default maximum dimension (width or height) allowed by validator.
const MaxDimension = 8000

// MinDimension is the smallest width or height ever rasterized.
const MinDimension = 50

// DPI bounds accepted for physical units.
const (
	DefaultDPI = 72
	MinDPI     = 72
	MaxDPI     = 600
)

// Source is a decoded, orientation-corrected image. It is never modified
// after Decode returns it.
type Source struct {
	Image       image.Image
	Width       int
	Height      int
	ContentType string
}

// Size reports the source dimensions, or the zero point for a nil source.
func (s *Source) Size() image.Point {
	if s == nil {
		return image.Point{}
	}
	return image.Pt(s.Width, s.Height)
}

// Request is an immutable snapshot of the user's resize parameters.
type Request struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Unit   Unit    `json:"unit" yaml:"unit"`
	DPI    float64 `json:"dpi" yaml:"dpi"`
	// TargetKB enables the size-targeting search when > 0.
	TargetKB float64 `json:"target_kb,omitempty" yaml:"target_kb"`
	// Quality (0-1] is used when no target is set. Zero means default.
	Quality float64 `json:"quality,omitempty" yaml:"quality"`
	Format  Format  `json:"format,omitempty" yaml:"format"`
}

// AdjustTarget returns a copy of r with the target moved by delta KB.
// A request without a target is returned unchanged; the target never
// drops below 1 KB.
func (r Request) AdjustTarget(delta float64) Request {
	if r.TargetKB <= 0 {
		return r
	}
	r.TargetKB = math.Max(1, r.TargetKB+delta)
	return r
}

// Result is the outcome of one resize invocation.
type Result struct {
	Data       []byte  `json:"-"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	SizeKB     int     `json:"size_kb"`
	Quality    float64 `json:"quality"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Format     Format  `json:"format"`
}

// Filename is the download name for the result.
func (r *Result) Filename() string {
	return "resized-image." + r.Format.Ext()
}

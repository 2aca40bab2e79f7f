package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"
)

// Options holds the tunables of the resize engine. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	// DefaultQuality is used by the no-target path when the request
	// carries no quality of its own.
	DefaultQuality float64
	// StartQuality, MinQuality, MaxQuality and QualityStep drive the
	// quality half of the size search.
	StartQuality float64
	MinQuality   float64
	MaxQuality   float64
	QualityStep  float64
	// Tolerance is the accepted relative distance from the target size.
	Tolerance     float64
	MaxIterations int
	// MaxDimension caps both axes so a large target cannot grow the
	// raster without bound.
	MaxDimension int
	DefaultDPI   float64
	MinDPI       float64
	MaxDPI       float64
}

// DefaultOptions: quality 0.95, 5% tolerance, 50 iterations, DPI 72-600.
func DefaultOptions() Options {
	return Options{
		DefaultQuality: 0.95,
		StartQuality:   0.95,
		MinQuality:     0.05,
		MaxQuality:     0.95,
		QualityStep:    0.05,
		Tolerance:      0.05,
		MaxIterations:  50,
		MaxDimension:   MaxDimension,
		DefaultDPI:     DefaultDPI,
		MinDPI:         MinDPI,
		MaxDPI:         MaxDPI,
	}
}

// ClampDPI keeps dpi within the configured bounds. Zero or invalid input
// yields DefaultDPI.
func (o Options) ClampDPI(dpi float64) float64 {
	if math.IsNaN(dpi) || dpi <= 0 {
		return o.DefaultDPI
	}
	return math.Min(math.Max(dpi, o.MinDPI), o.MaxDPI)
}

func (o Options) capDimension(px int) int {
	if o.MaxDimension > 0 && px > o.MaxDimension {
		return o.MaxDimension
	}
	return px
}

// Engine resizes sources according to requests. It owns one Rasterizer
// and therefore must not be used from more than one goroutine at a time.
type Engine struct {
	opts   Options
	raster *Rasterizer
}

// NewEngine returns an Engine with its own raster buffer.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts, raster: NewRasterizer()}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Resolve converts the request dimensions to pixels for src.
func (e *Engine) Resolve(src *Source, req Request) (int, int) {
	dpi := e.opts.ClampDPI(req.DPI)
	size := src.Size()
	w := ToPixels(req.Width, AxisWidth, req.Unit, size, dpi)
	h := ToPixels(req.Height, AxisHeight, req.Unit, size, dpi)
	return e.opts.capDimension(w), e.opts.capDimension(h)
}

// FillNatural replaces a zero Width or Height in req with the source's own
// size expressed in req.Unit, so a blank field means "keep this axis".
func (e *Engine) FillNatural(src *Source, req Request) Request {
	if src == nil {
		return req
	}
	dpi := e.opts.ClampDPI(req.DPI)
	if req.Width == 0 {
		req.Width = FromPixels(src.Width, AxisWidth, req.Unit, src.Size(), dpi)
	}
	if req.Height == 0 {
		req.Height = FromPixels(src.Height, AxisHeight, req.Unit, src.Size(), dpi)
	}
	return req
}

// Resize produces the output for req. With a target size it runs the size
// search, otherwise it encodes once at the request quality.
func (e *Engine) Resize(ctx context.Context, src *Source, req Request) (*Result, error) {
	if src == nil || src.Image == nil {
		return nil, ErrNoSource
	}
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return nil, err
	}

	w, h := e.Resolve(src, req)
	if req.TargetKB > 0 && !math.IsInf(req.TargetKB, 0) {
		return e.Search(ctx, src, w, h, req.TargetKB, format)
	}

	quality := req.Quality
	if quality <= 0 || math.IsNaN(quality) {
		quality = e.opts.DefaultQuality
	}
	quality = math.Min(quality, 1)

	data, err := e.raster.Render(src.Image, w, h, format, quality)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return &Result{
		Data:      data,
		Width:     w,
		Height:    h,
		SizeKB:    SizeKB(len(data)),
		Quality:   quality,
		Converged: true,
		Format:    format,
	}, nil
}

// SizeKB is the size estimate used by the search, rounded up.
func SizeKB(n int) int {
	return int(math.Ceil(float64(n) / 1024))
}

func (e *Engine) logResult(res *Result, targetKB float64) {
	log.Printf("resize %s %dx%d size=%dKB target=%.1fKB quality=%.2f iterations=%d converged=%t",
		res.Format, res.Width, res.Height, res.SizeKB, targetKB, res.Quality, res.Iterations, res.Converged)
}

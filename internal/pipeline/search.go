package pipeline

import (
	"context"
	"fmt"
	"math"
)

// Search re-rasterizes src until the encoded size is within the tolerance
// band around targetKB or MaxIterations adjustments have been made. Each
// step scales both dimensions by sqrt(target/current) and moves quality one
// step towards the target. The last output is returned whether or not it
// converged.
//
// If ctx ends mid-search the output of the last completed step is returned
// together with the context error.
func (e *Engine) Search(ctx context.Context, src *Source, w, h int, targetKB float64, format Format) (*Result, error) {
	if src == nil || src.Image == nil {
		return nil, ErrNoSource
	}
	o := e.opts
	quality := o.StartQuality

	res, err := e.step(src, w, h, format, quality)
	if err != nil {
		return nil, err
	}

	for !o.within(res.SizeKB, targetKB) && res.Iterations < o.MaxIterations {
		if err := ctx.Err(); err != nil {
			e.logResult(res, targetKB)
			return res, err
		}

		current := math.Max(float64(res.SizeKB), 1)
		scale := math.Sqrt(targetKB / current)
		w = o.capDimension(clampDimension(float64(w) * scale))
		h = o.capDimension(clampDimension(float64(h) * scale))

		if current > targetKB {
			quality = math.Max(o.MinQuality, quality-o.QualityStep)
		} else {
			quality = math.Min(o.MaxQuality, quality+o.QualityStep)
		}

		next, err := e.step(src, w, h, format, quality)
		if err != nil {
			return res, err
		}
		next.Iterations = res.Iterations + 1
		res = next
	}

	res.Converged = o.within(res.SizeKB, targetKB)
	e.logResult(res, targetKB)
	return res, nil
}

func (e *Engine) step(src *Source, w, h int, format Format, quality float64) (*Result, error) {
	data, err := e.raster.Render(src.Image, w, h, format, quality)
	if err != nil {
		return nil, fmt.Errorf("encode %s at %dx%d: %w", format, w, h, err)
	}
	return &Result{
		Data:    data,
		Width:   w,
		Height:  h,
		SizeKB:  SizeKB(len(data)),
		Quality: quality,
		Format:  format,
	}, nil
}

// within reports whether sizeKB lies in [target*(1-tol), target*(1+tol)].
func (o Options) within(sizeKB int, targetKB float64) bool {
	s := float64(sizeKB)
	return s >= targetKB*(1-o.Tolerance) && s <= targetKB*(1+o.Tolerance)
}

package pipeline

import (
	"bytes"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Rasterizer draws a source into one off-screen buffer and encodes it.
// The buffer is reused across calls with the same target size and
// reallocated when the size changes. A Rasterizer is not safe for
// concurrent use.
type Rasterizer struct {
	// Background fills the buffer before drawing so transparent sources
	// encode predictably with formats lacking alpha.
	Background color.Color
	// Scaler resamples the source. Defaults to Catmull-Rom.
	Scaler draw.Scaler

	buf *image.RGBA
	out bytes.Buffer
}

// NewRasterizer returns a Rasterizer with a white background.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{Background: color.White, Scaler: draw.CatmullRom}
}

// Draw renders src into the buffer at w x h and returns the buffer. The
// returned image is only valid until the next call.
func (r *Rasterizer) Draw(src image.Image, w, h int) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if r.buf == nil || r.buf.Rect.Dx() != w || r.buf.Rect.Dy() != h {
		r.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	bg := r.Background
	if bg == nil {
		bg = color.White
	}
	draw.Draw(r.buf, r.buf.Rect, image.NewUniform(bg), image.Point{}, draw.Src)

	scaler := r.Scaler
	if scaler == nil {
		scaler = draw.CatmullRom
	}
	scaler.Scale(r.buf, r.buf.Rect, src, src.Bounds(), draw.Over, nil)
	return r.buf
}

// Render draws src at w x h and encodes the buffer. The returned slice is
// owned by the caller.
func (r *Rasterizer) Render(src image.Image, w, h int, f Format, quality float64) ([]byte, error) {
	img := r.Draw(src, w, h)
	r.out.Reset()
	if err := Encode(&r.out, img, f, quality); err != nil {
		return nil, err
	}
	return bytes.Clone(r.out.Bytes()), nil
}

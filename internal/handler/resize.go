package handler

import (
	"context"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"photoresizer/internal/metrics"
	"photoresizer/internal/pipeline"
)

// ResizeOnce handles a stateless resize: multipart "image" plus form fields
// width, height, unit, dpi, target_kb, quality and format. A blank width or
// height keeps the source's size on that axis.
func (h *Handler) ResizeOnce(w http.ResponseWriter, r *http.Request) {
	file, cleanup, err := h.openUpload(w, r)
	defer cleanup()
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := requestFromForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	src, err := h.decode(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	engine := pipeline.NewEngine(h.config.Pipeline())
	req = engine.FillNatural(src, req)
	res, err := h.resize(r.Context(), func(ctx context.Context) (*pipeline.Result, error) {
		return engine.Resize(ctx, src, req)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logEvent(r.Context(), metrics.EventDownload, "", req, res)
	writeImage(w, res)
}

func requestFromForm(r *http.Request) (pipeline.Request, error) {
	unit, err := pipeline.ParseUnit(r.FormValue("unit"))
	if err != nil {
		return pipeline.Request{}, badRequest("unknown unit")
	}
	format, err := pipeline.ParseFormat(r.FormValue("format"))
	if err != nil {
		return pipeline.Request{}, err
	}

	return pipeline.Request{
		Width:    formFloat(r, "width"),
		Height:   formFloat(r, "height"),
		Unit:     unit,
		DPI:      formFloat(r, "dpi"),
		TargetKB: formFloat(r, "target_kb"),
		Quality:  formFloat(r, "quality"),
		Format:   format,
	}, nil
}

// formFloat reads a numeric field. Blank is zero; anything unparseable is
// NaN, which the engine clamps like any other degenerate value.
func formFloat(r *http.Request, key string) float64 {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func writeImage(w http.ResponseWriter, res *pipeline.Result) {
	hdr := w.Header()
	hdr.Set("Content-Type", res.Format.ContentType())
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename()}))
	hdr.Set("Content-Length", strconv.Itoa(len(res.Data)))
	hdr.Set("X-Resize-Width", strconv.Itoa(res.Width))
	hdr.Set("X-Resize-Height", strconv.Itoa(res.Height))
	hdr.Set("X-Resize-Size-KB", strconv.Itoa(res.SizeKB))
	hdr.Set("X-Resize-Iterations", strconv.Itoa(res.Iterations))
	hdr.Set("X-Resize-Converged", strconv.FormatBool(res.Converged))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"photoresizer/internal/metrics"
	"photoresizer/internal/pipeline"
	"photoresizer/internal/session"
)

// resize requests are a handful of numbers
const maxRequestBody = 64 << 10

type sessionResponse struct {
	ID         string     `json:"id"`
	Generation uint64     `json:"generation"`
	Image      *imageInfo `json:"image,omitempty"`
}

type resultResponse struct {
	*pipeline.Result
	TargetKB float64 `json:"target_kb,omitempty"`
	Filename string  `json:"filename"`
}

// CreateSession starts an editing session. The "image" field is optional;
// a session without an image answers previews with 204.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, cleanup, err := h.openUpload(w, r)
	defer cleanup()
	if errors.Is(err, pipeline.ErrNoSource) {
		writeJSON(w, http.StatusCreated, sessionResponse{ID: s.ID})
		return
	}
	if err != nil {
		h.sessions.Delete(s.ID)
		writeError(w, r, err)
		return
	}

	gen := s.BeginUpload()
	src, err := h.decode(file)
	if err == nil {
		err = s.CompleteUpload(gen, src)
	}
	if err != nil {
		h.sessions.Delete(s.ID)
		writeError(w, r, err)
		return
	}
	_ = h.metrics.LogUpload(r.Context(), s.ID, src)

	log.Printf("session %s created with %s %dx%d", s.ID, src.ContentType, src.Width, src.Height)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: s.ID, Generation: gen, Image: infoOf(src)})
}

// ReplaceImage swaps the session's source image. When two uploads overlap,
// only the most recent one is applied; the older request gets 409.
func (h *Handler) ReplaceImage(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, cleanup, err := h.openUpload(w, r)
	defer cleanup()
	if err != nil {
		writeError(w, r, err)
		return
	}

	gen := s.BeginUpload()
	src, err := h.decode(file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.CompleteUpload(gen, src); err != nil {
		if errors.Is(err, session.ErrStale) {
			log.Printf("session %s: discarding upload generation %d", s.ID, gen)
		}
		writeError(w, r, err)
		return
	}
	_ = h.metrics.LogUpload(r.Context(), s.ID, src)

	writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID, Generation: gen, Image: infoOf(src)})
}

// Preview renders the request and returns the result summary without the
// image bytes.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	s, req, res, err := h.sessionResize(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.logEvent(r.Context(), metrics.EventPreview, s.ID, req, res)
	writeJSON(w, http.StatusOK, resultResponse{Result: res, TargetKB: req.TargetKB, Filename: res.Filename()})
}

// Download renders the request and returns the image as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	s, req, res, err := h.sessionResize(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.logEvent(r.Context(), metrics.EventDownload, s.ID, req, res)
	writeImage(w, res)
}

type adjustRequest struct {
	DeltaKB float64 `json:"delta_kb"`
}

// AdjustTarget nudges the target size of the session's last request by
// delta_kb and renders it again.
func (h *Handler) AdjustTarget(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body adjustRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, badRequest("invalid adjust request"))
		return
	}

	req := s.LastRequest().AdjustTarget(body.DeltaKB)
	res, err := h.resize(r.Context(), func(ctx context.Context) (*pipeline.Result, error) {
		return s.Resize(ctx, req)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.logEvent(r.Context(), metrics.EventPreview, s.ID, req, res)
	writeJSON(w, http.StatusOK, resultResponse{Result: res, TargetKB: req.TargetKB, Filename: res.Filename()})
}

// DeleteSession discards a session and its image.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionResize(w http.ResponseWriter, r *http.Request) (*session.Session, pipeline.Request, *pipeline.Result, error) {
	var req pipeline.Request

	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		return nil, req, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return s, req, nil, badRequest("invalid resize request")
	}

	res, err := h.resize(r.Context(), func(ctx context.Context) (*pipeline.Result, error) {
		return s.Resize(ctx, req)
	})
	return s, req, res, err
}

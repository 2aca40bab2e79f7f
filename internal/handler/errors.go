package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"photoresizer/internal/pipeline"
	"photoresizer/internal/session"
	"photoresizer/internal/worker"
)

// statusClientClosedRequest marks a request whose client went away.
// Nothing is written for it beyond the status line.
const statusClientClosedRequest = 499

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to an HTTP status and a short message.
// Decoder internals are never echoed to the client.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, ""
	case errors.Is(err, pipeline.ErrNoSource):
		return http.StatusNoContent, ""
	case errors.Is(err, pipeline.ErrNotAnImage):
		return http.StatusUnsupportedMediaType, "file is not a supported image"
	case errors.Is(err, pipeline.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "image is too large"
	case errors.Is(err, pipeline.ErrInvalidDimensions):
		return http.StatusUnprocessableEntity, "image dimensions are out of range"
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported output format"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrStale):
		return http.StatusConflict, "a newer image was uploaded"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable, "server busy, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusNoContent || status == statusClientClosedRequest {
		w.WriteHeader(status)
		return
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

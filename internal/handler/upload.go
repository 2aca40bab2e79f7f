package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"photoresizer/internal/pipeline"
)

// multipart forms up to this size are held in memory, larger ones spill to
// temp files.
const multipartMemory = 8 << 20

// room for boundaries and form fields on top of the image itself
const multipartOverhead = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", errBadRequest, msg)
}

type imageInfo struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`
}

func infoOf(src *pipeline.Source) *imageInfo {
	if src == nil {
		return nil
	}
	return &imageInfo{Width: src.Width, Height: src.Height, ContentType: src.ContentType}
}

// openUpload parses the multipart body and returns the "image" part.
// A request without a file yields pipeline.ErrNoSource. The caller must
// call cleanup once the file has been read.
func (h *Handler) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes()+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			return nil, noop, pipeline.ErrNoSource
		case errors.As(err, &maxBytes):
			return nil, noop, pipeline.ErrTooLarge
		default:
			return nil, noop, badRequest("malformed multipart form")
		}
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		cleanup()
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, pipeline.ErrNoSource
		}
		return nil, noop, badRequest("unreadable image field")
	}
	return file, func() {
		file.Close()
		cleanup()
	}, nil
}

func (h *Handler) decode(file multipart.File) (*pipeline.Source, error) {
	return pipeline.Decode(file, h.maxUploadBytes(), h.config.MaxDimension)
}

func (h *Handler) maxUploadBytes() int64 {
	if h.config.MaxUploadBytes > 0 {
		return h.config.MaxUploadBytes
	}
	return pipeline.DefaultMaxBytes
}

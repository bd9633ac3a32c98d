package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dochero/dochero/internal/shell/processing"
)

// =============================================================================
// Document Handlers
// =============================================================================

func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request) {
	up, rerr := h.readUpload(w, r)
	if rerr != nil {
		h.writeDetail(w, rerr.status, rerr.detail)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, rerr := splitOptions(r)
	if rerr != nil {
		h.writeDetail(w, rerr.status, rerr.detail)
		return
	}

	out, err := h.docs.Split(r.Context(), up, opts)
	if err != nil {
		h.writeProcessingError(w, r, err)
		return
	}
	h.writeDownload(w, out)
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	h.handleDocument(w, r, h.docs.Rotate)
}

func (h *Handler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	h.handleDocument(w, r, h.docs.Prepare)
}

type documentOp func(ctx context.Context, up processing.Upload) (*processing.Output, error)

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request, op documentOp) {
	up, rerr := h.readUpload(w, r)
	if rerr != nil {
		h.writeDetail(w, rerr.status, rerr.detail)
		return
	}
	defer r.MultipartForm.RemoveAll()

	out, err := op(r.Context(), up)
	if err != nil {
		h.writeProcessingError(w, r, err)
		return
	}
	h.writeDownload(w, out)
}

// writeDownload sends a processed document as an attachment.
func (h *Handler) writeDownload(w http.ResponseWriter, out *processing.Output) {
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+out.FileName)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		h.logger.Warn("failed to write download", "filename", out.FileName, "error", err)
	}
}

// writeProcessingError maps processing error kinds to HTTP statuses.
func (h *Handler) writeProcessingError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() == context.DeadlineExceeded {
		// Timeout middleware answers 504.
		h.logger.Warn("processing timed out", "path", r.URL.Path, "error", err)
		return
	}
	status := http.StatusInternalServerError
	switch processing.KindOf(err) {
	case processing.KindInvalidInput, processing.KindNotFound:
		status = http.StatusBadRequest
	default:
		h.logger.Error("processing failed", "path", r.URL.Path, "error", err)
	}
	h.writeDetail(w, status, processing.MessageOf(err))
}

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dochero/dochero/internal/core/split"
	"github.com/dochero/dochero/internal/shell/processing"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// requestError is a rejected upload or form field.
type requestError struct {
	status int
	detail string
}

func (e *requestError) Error() string {
	return e.detail
}

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, detail: fmt.Sprintf(format, args...)}
}

// readUpload reads the PDF in form field "file", bounded by the configured
// upload size. The caller must parse no other body.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (processing.Upload, *requestError) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return processing.Upload{}, &requestError{
				status: http.StatusRequestEntityTooLarge,
				detail: fmt.Sprintf("upload exceeds %d MB", h.config.MaxUploadBytes>>20),
			}
		}
		return processing.Upload{}, badRequest("invalid multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return processing.Upload{}, badRequest("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return processing.Upload{}, badRequest("failed to read upload: %v", err)
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		return processing.Upload{}, badRequest("invalid_pdf")
	}

	return processing.Upload{FileName: header.Filename, Data: data}, nil
}

// splitOptions reads the split form fields. Call after readUpload.
func splitOptions(r *http.Request) (split.Options, *requestError) {
	var opts split.Options

	if raw := strings.TrimSpace(r.FormValue("split_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, badRequest("split_size must be an integer")
		}
		opts.Size = &n
	}

	opts.Keyword = r.FormValue("keyword")

	if raw := r.FormValue("barcode"); raw != "" {
		b, ok := parseFormBool(raw)
		if !ok {
			return opts, badRequest("barcode must be a boolean")
		}
		opts.Barcode = b
	}
	return opts, nil
}

// parseFormBool accepts the boolean spellings HTML forms and scripts send.
func parseFormBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

// Package pdf wraps the PDF operations the processing services need: page
// counting, page extraction and assembling page images into a document with
// pdfcpu, and rasterising pages with poppler's pdftoppm.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/dochero/dochero/internal/core/split"
)

func init() {
	// Keep pdfcpu from creating a config directory under $HOME.
	model.ConfigPath = "disable"
}

const pointsPerInch = 72

// ErrNoImages is returned when assembling a document from zero pages.
var ErrNoImages = errors.New("no page images")

// =============================================================================
// Documents
// =============================================================================

// Documents performs page-level operations on in-memory PDFs.
type Documents struct {
	// JPEGQuality is used when page images are embedded.
	JPEGQuality int
}

// NewDocuments creates a Documents with default settings.
func NewDocuments() *Documents {
	return &Documents{JPEGQuality: 90}
}

func (d *Documents) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the document.
func (d *Documents) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), d.conf())
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// Extract returns a new document holding only the pages of r.
func (d *Documents) Extract(data []byte, r split.Range) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, []string{r.Selection()}, d.conf()); err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", r.Selection(), err)
	}
	return out.Bytes(), nil
}

// FromImages builds a document with one page per image. dpi is the
// resolution the images were rendered at; each page gets the physical size
// of its image at that resolution. A non-positive dpi keeps one point per
// pixel.
func (d *Documents) FromImages(images []image.Image, dpi int) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	readers := make([]io.Reader, 0, len(images))
	for i, img := range images {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		readers = append(readers, &buf)
	}

	// Full-page import sizes each page to its image in pixels.
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, d.conf()); err != nil {
		return nil, fmt.Errorf("assemble pdf: %w", err)
	}
	if dpi <= 0 || dpi == pointsPerInch {
		return out.Bytes(), nil
	}

	var scaled bytes.Buffer
	res := &model.Resize{Scale: float64(pointsPerInch) / float64(dpi), Unit: types.POINTS}
	if err := api.Resize(bytes.NewReader(out.Bytes()), &scaled, nil, res, d.conf()); err != nil {
		return nil, fmt.Errorf("scale pages to %d dpi: %w", dpi, err)
	}
	return scaled.Bytes(), nil
}

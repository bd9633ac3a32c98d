// Package processing orchestrates the document endpoints: splitting a PDF,
// rotating its pages upright and preparing a deskewed first page. Rendering,
// OCR and barcode scanning are injected so the orchestration can be tested
// without poppler or tesseract.
package processing

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/dochero/dochero/internal/core/imaging"
	"github.com/dochero/dochero/internal/core/orientation"
	"github.com/dochero/dochero/internal/core/split"
	"github.com/dochero/dochero/internal/shell/pdf"
)

// =============================================================================
// Dependencies
// =============================================================================

// PageRenderer rasterises one page of a PDF file.
type PageRenderer interface {
	RenderPage(ctx context.Context, file string, page, dpi int) (image.Image, error)
}

// TextRecognizer extracts text from a page image.
type TextRecognizer interface {
	Text(ctx context.Context, img image.Image) (string, error)
}

// OrientationDetector reports how a page image must be rotated.
type OrientationDetector interface {
	Detect(ctx context.Context, img image.Image) (orientation.Result, error)
}

// BarcodeDetector reports whether a page image carries a barcode.
type BarcodeDetector interface {
	Any(ctx context.Context, img image.Image) (bool, error)
}

// DocumentOps performs page-level PDF operations.
type DocumentOps interface {
	PageCount(data []byte) (int, error)
	Extract(data []byte, r split.Range) ([]byte, error)
	FromImages(images []image.Image, dpi int) ([]byte, error)
}

// =============================================================================
// Types
// =============================================================================

// Upload is an uploaded PDF.
type Upload struct {
	FileName string
	Data     []byte
}

// SizeMB is the upload size in megabytes.
func (u Upload) SizeMB() float64 {
	return float64(len(u.Data)) / (1024 * 1024)
}

// Output is a processed document ready for download.
type Output struct {
	FileName    string
	ContentType string
	Data        []byte
}

const (
	ContentTypeZIP = "application/zip"
	ContentTypePDF = "application/pdf"
)

// Render DPIs of the rotate and prepare operations.
const (
	RotateDPI  = 150
	PrepareDPI = 200
)

// RotatedName is the download name of a rotated document.
const RotatedName = "rotated_output.pdf"

// PreparedName is the download name of a prepared first page.
func PreparedName(fileName string) string {
	return "page1_" + fileName
}

// =============================================================================
// Service
// =============================================================================

// Service runs the document operations.
type Service struct {
	docs     DocumentOps
	renderer PageRenderer
	text     TextRecognizer
	osd      OrientationDetector
	barcodes BarcodeDetector
	logger   *slog.Logger
	now      func() time.Time
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Documents   DocumentOps
	Renderer    PageRenderer
	Text        TextRecognizer
	Orientation OrientationDetector
	Barcodes    BarcodeDetector
}

// NewService creates a processing service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:     deps.Documents,
		renderer: deps.Renderer,
		text:     deps.Text,
		osd:      deps.Orientation,
		barcodes: deps.Barcodes,
		logger:   logger.With("component", "processing"),
		now:      time.Now,
	}
}

func (s *Service) logUpload(action string, up Upload) {
	s.logger.Info("upload received",
		"action", action,
		"filename", up.FileName,
		"size_mb", fmt.Sprintf("%.2f", up.SizeMB()),
	)
}

// pageCount reads the page count, treating unreadable documents as invalid
// input.
func (s *Service) pageCount(op string, up Upload) (int, error) {
	n, err := s.docs.PageCount(up.Data)
	if err != nil {
		return 0, invalid(op, "invalid PDF", err)
	}
	return n, nil
}

// =============================================================================
// Split
// =============================================================================

// Split cuts the upload into a ZIP of PDFs according to opts.
func (s *Service) Split(ctx context.Context, up Upload, opts split.Options) (*Output, error) {
	const op = "Split"
	s.logUpload("split", up)
	started := s.now()

	mode, err := opts.Validate()
	if err != nil {
		return nil, invalid(op, err.Error(), err)
	}

	total, err := s.pageCount(op, up)
	if err != nil {
		return nil, err
	}

	var entries []entry
	switch mode {
	case split.ModeFixed:
		entries, err = s.extractAll(up.Data, split.FixedRanges(total, *opts.Size))
	default:
		var points []int
		points, err = s.splitPoints(ctx, up, total, mode, opts.Keyword)
		if err != nil {
			return nil, err
		}
		ranges := split.RangesAtPoints(total, points)
		if ranges == nil {
			entries = []entry{{name: split.WholeDocumentName, data: up.Data}}
		} else {
			entries, err = s.extractAll(up.Data, ranges)
		}
	}
	if err != nil {
		return nil, internal(op, err)
	}

	archive, err := zipEntries(entries, started)
	if err != nil {
		return nil, internal(op, err)
	}

	s.logger.Info("split complete",
		"mode", string(mode),
		"pages", total,
		"parts", len(entries),
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return &Output{FileName: split.ArchiveName, ContentType: ContentTypeZIP, Data: archive}, nil
}

func (s *Service) extractAll(data []byte, ranges []split.Range) ([]entry, error) {
	entries := make([]entry, 0, len(ranges))
	for _, r := range ranges {
		part, err := s.docs.Extract(data, r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{name: r.FileName(), data: part})
	}
	return entries, nil
}

// splitPoints renders every page and returns the 0-based indexes of pages
// that start a new part. Pages are rendered one at a time.
func (s *Service) splitPoints(ctx context.Context, up Upload, total int, mode split.Mode, keyword string) ([]int, error) {
	const op = "Split"

	file, cleanup, err := pdf.Spool(up.Data)
	if err != nil {
		return nil, internal(op, err)
	}
	defer cleanup()

	var points []int
	for page := 1; page <= total; page++ {
		img, err := s.renderer.RenderPage(ctx, file, page, mode.DPI())
		if err != nil {
			return nil, internal(op, err)
		}

		var hit bool
		switch mode {
		case split.ModeKeyword:
			text, terr := s.text.Text(ctx, img)
			if terr != nil {
				return nil, internal(op, terr)
			}
			hit = split.ContainsKeyword(text, keyword)
		case split.ModeBarcode:
			hit, err = s.barcodes.Any(ctx, imaging.PrepareForBarcode(img))
			if err != nil {
				return nil, internal(op, err)
			}
		}
		if hit {
			s.logger.Debug("split point", "page", page, "mode", string(mode))
			points = append(points, page-1)
		}
	}
	return points, nil
}

// =============================================================================
// Rotate
// =============================================================================

// Rotate detects each page's orientation and returns an upright PDF.
func (s *Service) Rotate(ctx context.Context, up Upload) (*Output, error) {
	const op = "Rotate"
	s.logUpload("rotate", up)
	started := s.now()

	// Every rotate failure, unreadable input included, is a server error.
	total, err := s.docs.PageCount(up.Data)
	if err != nil {
		return nil, internal(op, err)
	}

	file, cleanup, err := pdf.Spool(up.Data)
	if err != nil {
		return nil, internal(op, err)
	}
	defer cleanup()

	pages := make([]image.Image, 0, total)
	rotated := 0
	for page := 1; page <= total; page++ {
		img, err := s.renderer.RenderPage(ctx, file, page, RotateDPI)
		if err != nil {
			return nil, internal(op, err)
		}

		angle := 0
		res, err := s.osd.Detect(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return nil, internal(op, ctx.Err())
			}
			s.logger.Warn("orientation detection failed", "page", page, "error", err)
		} else {
			angle = orientation.Correction(res.Rotate)
		}

		if angle != 0 {
			rotated++
			pages = append(pages, imaging.RotateClockwise(img, angle))
		} else {
			pages = append(pages, img)
		}
	}

	data, err := s.docs.FromImages(pages, RotateDPI)
	if err != nil {
		return nil, internal(op, err)
	}

	s.logger.Info("rotate complete",
		"pages", total,
		"rotated", rotated,
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return &Output{FileName: RotatedName, ContentType: ContentTypePDF, Data: data}, nil
}

// =============================================================================
// Prepare
// =============================================================================

// Prepare returns the first page, grayscale and deskewed, as a PDF.
func (s *Service) Prepare(ctx context.Context, up Upload) (*Output, error) {
	const op = "Prepare"
	s.logUpload("prepare", up)
	started := s.now()

	total, err := s.pageCount(op, up)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, notFound(op, "no pages found")
	}

	file, cleanup, err := pdf.Spool(up.Data)
	if err != nil {
		return nil, internal(op, err)
	}
	defer cleanup()

	img, err := s.renderer.RenderPage(ctx, file, 1, PrepareDPI)
	if err != nil {
		return nil, internal(op, err)
	}
	page := imaging.Deskew(imaging.ToGray(img))

	data, err := s.docs.FromImages([]image.Image{page}, PrepareDPI)
	if err != nil {
		return nil, internal(op, err)
	}

	s.logger.Info("prepare complete", "duration_ms", s.now().Sub(started).Milliseconds())
	return &Output{FileName: PreparedName(up.FileName), ContentType: ContentTypePDF, Data: data}, nil
}

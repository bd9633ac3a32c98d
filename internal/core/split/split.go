// Package split plans how a PDF is cut into parts.
// Following the functional core convention, this package contains NO I/O:
// it validates split options and turns page counts and split points into
// page ranges.
package split

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrChooseOneMode is returned when zero or several split modes are set.
	ErrChooseOneMode = errors.New("choose exactly one split option")

	// ErrInvalidSize is returned when a fixed split size is below one.
	ErrInvalidSize = errors.New("split_size must be at least 1")
)

// =============================================================================
// Options
// =============================================================================

// Mode is the strategy used to find split boundaries.
type Mode string

const (
	ModeFixed   Mode = "fixed"
	ModeKeyword Mode = "keyword"
	ModeBarcode Mode = "barcode"
)

// Options are the user-supplied split settings.
type Options struct {
	Size    *int // pages per part, nil when unset
	Keyword string
	Barcode bool
}

// Render DPIs used by the content-based modes.
const (
	KeywordDPI = 150
	BarcodeDPI = 300
)

// Validate checks that exactly one mode is selected and returns it.
func (o Options) Validate() (Mode, error) {
	selected := 0
	if o.Size != nil {
		selected++
	}
	if o.Keyword != "" {
		selected++
	}
	if o.Barcode {
		selected++
	}
	if selected != 1 {
		return "", ErrChooseOneMode
	}

	switch {
	case o.Size != nil:
		if *o.Size < 1 {
			return "", ErrInvalidSize
		}
		return ModeFixed, nil
	case o.Barcode:
		return ModeBarcode, nil
	default:
		return ModeKeyword, nil
	}
}

// DPI returns the render resolution a content mode needs, 0 for fixed splits.
func (m Mode) DPI() int {
	switch m {
	case ModeKeyword:
		return KeywordDPI
	case ModeBarcode:
		return BarcodeDPI
	default:
		return 0
	}
}

// =============================================================================
// Page Ranges
// =============================================================================

// Range is a contiguous run of pages, 1-based and inclusive.
type Range struct {
	First int
	Last  int
}

// FileName is the archive entry name for the range.
func (r Range) FileName() string {
	return fmt.Sprintf("pages_%d_%d.pdf", r.First, r.Last)
}

// Selection is the page selection expression for the range ("3-5", "4").
func (r Range) Selection() string {
	if r.First == r.Last {
		return fmt.Sprintf("%d", r.First)
	}
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// Pages returns the number of pages covered.
func (r Range) Pages() int {
	return r.Last - r.First + 1
}

// FixedRanges cuts totalPages into consecutive ranges of size pages; the
// last range holds the remainder.
func FixedRanges(totalPages, size int) []Range {
	if totalPages <= 0 || size <= 0 {
		return nil
	}
	ranges := make([]Range, 0, (totalPages+size-1)/size)
	for start := 0; start < totalPages; start += size {
		end := min(start+size, totalPages)
		ranges = append(ranges, Range{First: start + 1, Last: end})
	}
	return ranges
}

// RangesAtPoints cuts totalPages so that each split point (a 0-based page
// index) starts a new range. Pages before the first point form the first
// range. Empty ranges, out-of-bounds and duplicate points are dropped.
// It returns nil when there are no usable points: the document stays whole.
func RangesAtPoints(totalPages int, points []int) []Range {
	if totalPages <= 0 {
		return nil
	}

	var boundaries []int
	last := -1
	for _, p := range points {
		if p < 0 || p >= totalPages || p <= last {
			continue
		}
		boundaries = append(boundaries, p)
		last = p
	}
	if len(boundaries) == 0 {
		return nil
	}
	boundaries = append(boundaries, totalPages)

	var ranges []Range
	start := 0
	for _, b := range boundaries {
		if b > start {
			ranges = append(ranges, Range{First: start + 1, Last: b})
		}
		start = b
	}
	return ranges
}

// WholeDocumentName is the archive entry used when no split point is found.
const WholeDocumentName = "full.pdf"

// ArchiveName is the download name of the split result.
const ArchiveName = "split_pages.zip"

// ContainsKeyword reports whether text contains keyword, ignoring case.
func ContainsKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

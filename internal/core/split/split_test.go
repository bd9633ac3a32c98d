package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

// =============================================================================
// Options Tests
// =============================================================================

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    Mode
		wantErr error
	}{
		{"fixed", Options{Size: intPtr(2)}, ModeFixed, nil},
		{"keyword", Options{Keyword: "Invoice"}, ModeKeyword, nil},
		{"barcode", Options{Barcode: true}, ModeBarcode, nil},
		{"nothing", Options{}, "", ErrChooseOneMode},
		{"blank keyword only", Options{Keyword: "   "}, ModeKeyword, nil},
		{"size and blank keyword", Options{Size: intPtr(2), Keyword: " "}, "", ErrChooseOneMode},
		{"size and keyword", Options{Size: intPtr(1), Keyword: "x"}, "", ErrChooseOneMode},
		{"keyword and barcode", Options{Keyword: "x", Barcode: true}, "", ErrChooseOneMode},
		{"all three", Options{Size: intPtr(1), Keyword: "x", Barcode: true}, "", ErrChooseOneMode},
		{"zero size", Options{Size: intPtr(0)}, "", ErrInvalidSize},
		{"negative size", Options{Size: intPtr(-3)}, "", ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.opts.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestModeDPI(t *testing.T) {
	assert.Equal(t, 150, ModeKeyword.DPI())
	assert.Equal(t, 300, ModeBarcode.DPI())
	assert.Equal(t, 0, ModeFixed.DPI())
}

// =============================================================================
// Range Tests
// =============================================================================

func TestRange_Naming(t *testing.T) {
	r := Range{First: 3, Last: 5}
	assert.Equal(t, "pages_3_5.pdf", r.FileName())
	assert.Equal(t, "3-5", r.Selection())
	assert.Equal(t, 3, r.Pages())

	single := Range{First: 4, Last: 4}
	assert.Equal(t, "4", single.Selection())
	assert.Equal(t, "pages_4_4.pdf", single.FileName())
}

func TestFixedRanges(t *testing.T) {
	tests := []struct {
		name  string
		total int
		size  int
		want  []Range
	}{
		{"even", 4, 2, []Range{{1, 2}, {3, 4}}},
		{"remainder", 5, 2, []Range{{1, 2}, {3, 4}, {5, 5}}},
		{"size larger than doc", 3, 10, []Range{{1, 3}}},
		{"single pages", 3, 1, []Range{{1, 1}, {2, 2}, {3, 3}}},
		{"empty doc", 0, 2, nil},
		{"invalid size", 3, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FixedRanges(tt.total, tt.size))
		})
	}
}

func TestRangesAtPoints(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		points []int
		want   []Range
	}{
		{"no points keeps document whole", 5, nil, nil},
		{"point in the middle", 5, []int{2}, []Range{{1, 2}, {3, 5}}},
		{"point on first page skips empty part", 5, []int{0, 3}, []Range{{1, 3}, {4, 5}}},
		{"only first page", 3, []int{0}, []Range{{1, 3}}},
		{"every page", 3, []int{0, 1, 2}, []Range{{1, 1}, {2, 2}, {3, 3}}},
		{"last page", 4, []int{3}, []Range{{1, 3}, {4, 4}}},
		{"out of range points dropped", 3, []int{-1, 5}, nil},
		{"duplicates dropped", 4, []int{1, 1, 2}, []Range{{1, 1}, {2, 2}, {3, 4}}},
		{"empty doc", 0, []int{0}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RangesAtPoints(tt.total, tt.points))
		})
	}
}

func TestRangesAtPoints_CoversEveryPageOnce(t *testing.T) {
	total := 17
	ranges := RangesAtPoints(total, []int{0, 4, 5, 11, 16})

	next := 1
	for _, r := range ranges {
		assert.Equal(t, next, r.First)
		assert.GreaterOrEqual(t, r.Last, r.First)
		next = r.Last + 1
	}
	assert.Equal(t, total+1, next)
}

func TestContainsKeyword(t *testing.T) {
	assert.True(t, ContainsKeyword("FACTUUR 2024-01", "factuur"))
	assert.True(t, ContainsKeyword("invoice number", "Invoice"))
	assert.False(t, ContainsKeyword("receipt", "invoice"))
	assert.False(t, ContainsKeyword("anything", ""))
}

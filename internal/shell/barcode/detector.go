// Package barcode finds barcodes and QR codes on page images with gozxing.
package barcode

import (
	"context"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Symbol is one decoded barcode.
type Symbol struct {
	Format string
	Text   string
}

// Detector scans images with a fixed set of readers. gozxing readers keep
// scratch buffers, so each Detect call builds its own set and a Detector is
// safe for concurrent use.
type Detector struct {
	newReaders func() []gozxing.Reader
	hints      map[gozxing.DecodeHintType]interface{}
}

// NewDetector creates a detector for QR, Code 128, Code 39, EAN-13, the
// UPC/EAN family, ITF and Codabar.
func NewDetector() *Detector {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &Detector{
		hints: hints,
		newReaders: func() []gozxing.Reader {
			return []gozxing.Reader{
				qrcode.NewQRCodeReader(),
				oned.NewCode128Reader(),
				oned.NewCode39Reader(),
				oned.NewEAN13Reader(),
				oned.NewMultiFormatUPCEANReader(hints),
				oned.NewITFReader(),
				oned.NewCodaBarReader(),
			}
		},
	}
}

// Detect returns every symbol the readers decode from img. An image without
// barcodes yields no symbols and no error.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Symbol, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize image: %w", err)
	}

	var symbols []Symbol
	for _, r := range d.newReaders() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Not found, checksum and format errors all mean "no symbol for
		// this reader".
		res, err := r.Decode(bmp, d.hints)
		if err != nil {
			continue
		}
		symbols = append(symbols, Symbol{
			Format: res.GetBarcodeFormat().String(),
			Text:   res.GetText(),
		})
	}
	return symbols, nil
}

// Any reports whether img carries at least one barcode.
func (d *Detector) Any(ctx context.Context, img image.Image) (bool, error) {
	symbols, err := d.Detect(ctx, img)
	if err != nil {
		return false, err
	}
	return len(symbols) > 0, nil
}

// Package ocr runs tesseract: page text through the gosseract bindings and
// orientation detection through the tesseract binary.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
	"github.com/otiai10/gosseract/v2"

	"github.com/dochero/dochero/internal/core/orientation"
)

// =============================================================================
// Text Recognition
// =============================================================================

// Tesseract recognises page text with libtesseract.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a text recogniser. No languages means "eng".
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

// Text returns the text found in img.
func (t *Tesseract) Text(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

// =============================================================================
// Orientation Detection
// =============================================================================

// DefaultTesseractPath is looked up on PATH.
const DefaultTesseractPath = "tesseract"

// OSD detects page orientation with `tesseract stdin stdout --psm 0`.
type OSD struct {
	bin *executor.WrappedExecutor
}

// NewOSD creates an orientation detector using the given tesseract binary.
func NewOSD(path string) *OSD {
	if path == "" {
		path = DefaultTesseractPath
	}
	return &OSD{bin: executor.NewWrappedExecutor(path)}
}

// Detect returns tesseract's orientation report for img.
func (o *OSD) Detect(ctx context.Context, img image.Image) (orientation.Result, error) {
	data, err := encodePNG(img)
	if err != nil {
		return orientation.Result{}, err
	}

	res, err := o.bin.Command("stdin", "stdout", "--psm", "0").ExecuteWithInput(ctx, string(data))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return orientation.Result{}, ctxErr
		}
		if res != nil && res.ExitCode > 0 {
			return orientation.Result{}, fmt.Errorf("tesseract osd exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return orientation.Result{}, fmt.Errorf("tesseract osd: %w", err)
	}

	// Some tesseract builds print the report on stderr.
	out := res.Stdout
	if !strings.Contains(out, "Rotate:") {
		out += "\n" + res.Stderr
	}
	return orientation.Parse(out)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

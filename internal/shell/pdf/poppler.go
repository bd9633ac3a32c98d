package pdf

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
)

// =============================================================================
// Poppler Rasteriser
// =============================================================================

// DefaultPdftoppmPath is looked up on PATH.
const DefaultPdftoppmPath = "pdftoppm"

// Poppler renders PDF pages to images with pdftoppm.
type Poppler struct {
	bin *executor.WrappedExecutor
}

// NewPoppler creates a rasteriser using the given pdftoppm binary. An empty
// path uses DefaultPdftoppmPath.
func NewPoppler(path string) *Poppler {
	if path == "" {
		path = DefaultPdftoppmPath
	}
	return &Poppler{bin: executor.NewWrappedExecutor(path)}
}

// RenderPage renders the 1-based page of the PDF at file to an image at dpi.
// The process is killed when ctx is done.
func (p *Poppler) RenderPage(ctx context.Context, file string, page, dpi int) (image.Image, error) {
	if page < 1 {
		return nil, fmt.Errorf("render page %d: page numbers start at 1", page)
	}

	dir, err := os.MkdirTemp("", "dochero-render-*")
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	defer os.RemoveAll(dir)

	root := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	args := []string{
		"-r", strconv.Itoa(dpi),
		"-f", n, "-l", n,
		"-png", "-singlefile",
		file, root,
	}
	res, err := p.bin.Command(args...).ExecuteWithInput(ctx, "", executor.WithCapture(false, true, false))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render page %d: %w", page, ctxErr)
		}
		if res != nil && res.ExitCode > 0 {
			return nil, fmt.Errorf("render page %d: pdftoppm exit %d: %s", page, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}

	f, err := os.Open(root + ".png")
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return img, nil
}

// =============================================================================
// Spooling
// =============================================================================

// Spool writes data to a temporary PDF file for tools that need a path.
// The returned cleanup removes it.
func Spool(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "dochero-*.pdf")
	if err != nil {
		return "", func() {}, fmt.Errorf("spool pdf: %w", err)
	}
	name := f.Name()
	cleanup := func() { os.Remove(name) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("spool pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("spool pdf: %w", err)
	}
	return name, cleanup, nil
}

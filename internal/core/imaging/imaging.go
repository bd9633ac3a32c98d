// Package imaging provides the pixel operations used on rendered PDF pages:
// grayscale conversion, scaling, binarisation, quarter-turn rotation and
// deskewing. All functions are pure; they never modify their input.
package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// =============================================================================
// Conversion
// =============================================================================

// ToGray converts any image to 8-bit grayscale with origin (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ToRGBA converts any image to RGBA with origin (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// =============================================================================
// Scaling and Thresholding
// =============================================================================

// Upscale enlarges a grayscale image by an integer factor using Catmull-Rom
// resampling.
func Upscale(img *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return ToGray(img)
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Binarize maps pixels below threshold to black and the rest to white.
func Binarize(img *image.Gray, threshold uint8) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		src := img.Pix[off : off+b.Dx()]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x, v := range src {
			if v < threshold {
				row[x] = 0
			} else {
				row[x] = 255
			}
		}
	}
	return dst
}

// PrepareForBarcode is the preprocessing applied before barcode detection:
// grayscale, 2x upscale, hard threshold at mid-gray.
func PrepareForBarcode(img image.Image) *image.Gray {
	return Binarize(Upscale(ToGray(img), 2), 128)
}

// =============================================================================
// Quarter Turns
// =============================================================================

// RotateClockwise rotates an image clockwise by 90, 180 or 270 degrees,
// swapping width and height for quarter turns. Any other angle returns an
// unrotated copy.
func RotateClockwise(img image.Image, degrees int) *image.RGBA {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	var s2d f64.Aff3
	var dst *image.RGBA
	switch degrees {
	case 90:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		s2d = f64.Aff3{0, -1, h, 1, 0, 0}
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		s2d = f64.Aff3{-1, 0, w, 0, -1, h}
	case 270:
		dst = image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		s2d = f64.Aff3{0, 1, 0, -1, 0, w}
	default:
		return ToRGBA(img)
	}

	// The matrix works in source coordinates relative to the origin.
	src := ToRGBA(img)
	draw.NearestNeighbor.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return dst
}

// =============================================================================
// Fill
// =============================================================================

func fillGray(img *image.Gray, v uint8) {
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: v}), image.Point{}, draw.Src)
}

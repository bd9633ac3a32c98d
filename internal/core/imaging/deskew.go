package imaging

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// =============================================================================
// Otsu Threshold
// =============================================================================

// OtsuThreshold returns the threshold that maximises between-class variance
// of the grayscale histogram. Pixels <= threshold are the dark class.
func OtsuThreshold(img *image.Gray) uint8 {
	var hist [256]float64
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for _, v := range img.Pix[off : off+b.Dx()] {
			hist[v]++
		}
	}

	total := float64(b.Dx() * b.Dy())
	var sum float64
	for i, n := range hist {
		sum += float64(i) * n
	}

	var sumB, wB, best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// =============================================================================
// Skew Detection
// =============================================================================

type point struct{ x, y float64 }

// foregroundExtremes returns, for each row, the leftmost and rightmost pixel
// at or below threshold. The convex hull of these equals the hull of all
// foreground pixels.
func foregroundExtremes(img *image.Gray, threshold uint8) []point {
	b := img.Bounds()
	var pts []point
	for y := 0; y < b.Dy(); y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+b.Dx()]
		left := -1
		for x, v := range row {
			if v <= threshold {
				left = x
				break
			}
		}
		if left < 0 {
			continue
		}
		right := left
		for x := len(row) - 1; x > left; x-- {
			if row[x] <= threshold {
				right = x
				break
			}
		}
		pts = append(pts, point{float64(left), float64(y)})
		if right != left {
			pts = append(pts, point{float64(right), float64(y)})
		}
	}
	return pts
}

// convexHull is Andrew's monotone chain; returns vertices counter-clockwise.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return append([]point(nil), pts...)
	}
	sorted := append([]point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})

	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}

	hull := make([]point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRectAngle returns the edge angle in degrees of the minimum-area
// rectangle enclosing the hull, normalised to [-45, 45).
func minAreaRectAngle(hull []point) float64 {
	switch len(hull) {
	case 0, 1:
		return 0
	case 2:
		return normalizeAngle(math.Atan2(hull[1].y-hull[0].y, hull[1].x-hull[0].x) * 180 / math.Pi)
	}

	bestArea := math.Inf(1)
	bestAngle := 0.0
	for i := range hull {
		p, q := hull[i], hull[(i+1)%len(hull)]
		dx, dy := q.x-p.x, q.y-p.y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, h := range hull {
			u := h.x*ux + h.y*uy
			v := -h.x*uy + h.y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		area := (maxU - minU) * (maxV - minV)
		if area < bestArea {
			bestArea = area
			bestAngle = math.Atan2(uy, ux) * 180 / math.Pi
		}
	}
	return normalizeAngle(bestAngle)
}

func normalizeAngle(deg float64) float64 {
	for deg >= 45 {
		deg -= 90
	}
	for deg < -45 {
		deg += 90
	}
	return deg
}

// SkewAngle estimates how far the ink on a page is rotated, in degrees.
// Positive angles mean content descends to the right (clockwise tilt on
// screen). The second result is false when the page has no ink.
func SkewAngle(img *image.Gray) (float64, bool) {
	threshold := OtsuThreshold(img)
	pts := foregroundExtremes(img, threshold)
	if len(pts) == 0 {
		return 0, false
	}
	return minAreaRectAngle(convexHull(pts)), true
}

// =============================================================================
// Deskew
// =============================================================================

// Deskew rotates a grayscale page about its centre so the detected skew is
// removed. The canvas size is kept; uncovered areas replicate the nearest
// border pixel. Pages without ink are returned as an unchanged copy.
func Deskew(img *image.Gray) *image.Gray {
	angle, ok := SkewAngle(img)
	if !ok || angle == 0 {
		return ToGray(img)
	}
	return RotateAbout(img, -angle)
}

// RotateAbout rotates a grayscale image by degrees (clockwise on screen)
// about its centre, with bilinear sampling and the same canvas size.
// Samples outside the source take the nearest edge pixel.
func RotateAbout(img *image.Gray, degrees float64) *image.Gray {
	src := ToGray(img)
	b := src.Bounds()
	dst := image.NewGray(b)
	if b.Empty() {
		return dst
	}

	rad := degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2

	s2d := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}

	// Every destination pixel maps back to within half a diagonal of the
	// centre, so this margin covers the whole canvas.
	margin := b.Dx() + b.Dy()
	edge := clampedGray{src: src, bounds: b.Inset(-margin)}
	draw.BiLinear.Transform(dst, s2d, edge, edge.bounds, draw.Src, nil)
	return dst
}

// clampedGray extends a grayscale image to bounds by repeating its edge
// pixels.
type clampedGray struct {
	src    *image.Gray
	bounds image.Rectangle
}

func (c clampedGray) ColorModel() color.Model { return color.GrayModel }

func (c clampedGray) Bounds() image.Rectangle { return c.bounds }

func (c clampedGray) At(x, y int) color.Color {
	return c.src.GrayAt(c.clamp(x, y))
}

func (c clampedGray) RGBA64At(x, y int) color.RGBA64 {
	return c.src.RGBA64At(c.clamp(x, y))
}

func (c clampedGray) clamp(x, y int) (int, int) {
	r := c.src.Rect
	return min(max(x, r.Min.X), r.Max.X-1), min(max(y, r.Min.Y), r.Max.Y-1)
}

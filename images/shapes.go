// Package images - Box geometry, IoU and letterbox utilities.
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// IoUEpsilon is added to the union area so that degenerate boxes never divide by zero.
const IoUEpsilon float32 = 1e-5

// Box is an axis-aligned bounding box expressed as two corners.
//
// X2,Y2 are expected to be greater than or equal to X1,Y1 but this is not enforced.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// NewBox builds a box from a flat [x0, y0, x1, y1] slice.
func NewBox(v []float32) Box {
	return Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
}

// Width returns X2 - X1.
func (b Box) Width() float32 { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Box) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the signed area of the box.
func (b Box) Area() float32 { return b.Width() * b.Height() }

// Rectangle quantizes the box to integer pixel coordinates for drawing.
//
// Coordinates are truncated toward zero, which is how the drawing layer has always
// consumed mapped boxes.
func (b Box) Rectangle() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// CalculateIoU computes the intersection over union of two boxes.
//
// The intersection rectangle is the overlap of the two boxes: its top-left corner is the
// maximum of both top-left corners and its bottom-right corner is the minimum of both
// bottom-right corners. Its width and height are clamped to zero, so boxes that do not overlap
// (including boxes that only touch along an edge) always score exactly 0.
//
// The union is computed with inclusion-exclusion and IoUEpsilon is added to it:
//
//	IoU = inter / (area(a) + area(b) - inter + 1e-5)
//
// As a consequence identical boxes score slightly below 1.0 and two zero-area boxes score 0.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: The IoU score. For well-formed boxes the value lies in [0, 1).
//
// @example
//
//	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Box{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	CalculateIoU(a, b) // 25 / 175 ≈ 0.142857
func CalculateIoU(a, b Box) float32 {
	ix1 := math32.Max(a.X1, b.X1)
	iy1 := math32.Max(a.Y1, b.Y1)
	ix2 := math32.Min(a.X2, b.X2)
	iy2 := math32.Min(a.Y2, b.Y2)

	interW := math32.Max(ix2-ix1, 0)
	interH := math32.Max(iy2-iy1, 0)
	inter := interW * interH

	union := a.Area() + b.Area() - inter

	return inter / (union + IoUEpsilon)
}

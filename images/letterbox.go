package images

import "image"

// LetterboxGeometry describes how an original image is placed inside a model input of a
// different size while preserving its aspect ratio.
type LetterboxGeometry struct {
	// Ratio is the uniform scale applied to the original image.
	Ratio float32
	// Scaled is the size of the original image after scaling.
	Scaled image.Point
	// Pad is the offset of the scaled image inside the model input (truncated to integers).
	Pad image.Point
}

// Letterbox computes the letterbox geometry for fitting orig inside model.
//
// Arguments:
//   - orig: The original image size.
//   - model: The model input size.
//
// Returns:
//   - LetterboxGeometry: The scale, scaled size and padding offsets.
func Letterbox(orig, model image.Point) LetterboxGeometry {
	ow, oh := float64(orig.X), float64(orig.Y)
	mw, mh := float64(model.X), float64(model.Y)

	ratio := min(mw/ow, mh/oh)

	scaled := image.Pt(int(ow*ratio), int(oh*ratio))
	// The limiting axis fills the model input exactly.
	if mw/ow <= mh/oh {
		scaled.X = model.X
	} else {
		scaled.Y = model.Y
	}

	return LetterboxGeometry{
		Ratio:  float32(ratio),
		Scaled: scaled,
		Pad: image.Pt(
			int(0.5*(mw-ratio*ow)),
			int(0.5*(mh-ratio*oh)),
		),
	}
}

// Mapper converts boxes between model-input space and original-image space.
//
// A Mapper holds no mutable state and is safe for concurrent use.
type Mapper struct {
	orig        image.Point
	model       image.Point
	letterboxed bool
	geometry    LetterboxGeometry
}

// NewMapper creates a coordinate mapper.
//
// Arguments:
//   - orig: The original image size (width, height).
//   - model: The model input size (width, height).
//   - letterboxed: Whether the model input was produced by letterboxing the original image.
//     When false the input is assumed to be a plain, aspect-distorting resize.
//
// Returns:
//   - Mapper: The mapper.
func NewMapper(orig, model image.Point, letterboxed bool) Mapper {
	m := Mapper{orig: orig, model: model, letterboxed: letterboxed}
	if letterboxed {
		m.geometry = Letterbox(orig, model)
	}
	return m
}

// Letterboxed reports whether the mapper inverts a letterbox transform.
func (m Mapper) Letterboxed() bool { return m.letterboxed }

// Geometry returns the letterbox geometry, which is zero for non-letterboxed mappers.
func (m Mapper) Geometry() LetterboxGeometry { return m.geometry }

// ToOriginal maps a box from model-input space into original-image space.
//
// Letterboxed: each corner p maps to (p - pad) / ratio.
// Not letterboxed: each coordinate is multiplied by orig/model along its axis.
//
// No rounding is performed; quantize with Box.Rectangle when drawing.
func (m Mapper) ToOriginal(b Box) Box {
	if m.letterboxed {
		g := m.geometry
		px, py := float32(g.Pad.X), float32(g.Pad.Y)
		return Box{
			X1: (b.X1 - px) / g.Ratio,
			Y1: (b.Y1 - py) / g.Ratio,
			X2: (b.X2 - px) / g.Ratio,
			Y2: (b.Y2 - py) / g.Ratio,
		}
	}

	sx := float32(m.orig.X) / float32(m.model.X)
	sy := float32(m.orig.Y) / float32(m.model.Y)
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// ToModel maps a box from original-image space into model-input space. It is the forward
// transform of ToOriginal.
func (m Mapper) ToModel(b Box) Box {
	if m.letterboxed {
		g := m.geometry
		px, py := float32(g.Pad.X), float32(g.Pad.Y)
		return Box{
			X1: b.X1*g.Ratio + px,
			Y1: b.Y1*g.Ratio + py,
			X2: b.X2*g.Ratio + px,
			Y2: b.Y2*g.Ratio + py,
		}
	}

	sx := float32(m.model.X) / float32(m.orig.X)
	sy := float32(m.model.Y) / float32(m.orig.Y)
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

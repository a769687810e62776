package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"
)

// DefaultFill is the gray value used to pad letterboxed images.
const DefaultFill uint8 = 128

// LetterboxImage scales img to fit inside size while preserving its aspect ratio and centers it
// on a canvas filled with the given gray value.
//
// The placement uses the same geometry as Mapper so that boxes predicted on the returned image
// map back onto img exactly.
//
// Arguments:
//   - img: The source image.
//   - size: The model input size (width, height).
//   - fill: The gray level of the padding.
//
// Returns:
//   - *image.RGBA: The letterboxed image with bounds (0,0)-(size.X,size.Y).
func LetterboxImage(img image.Image, size image.Point, fill uint8) *image.RGBA {
	b := img.Bounds()
	g := Letterbox(b.Size(), size)

	canvas := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{fill, fill, fill, 255}), image.Point{}, draw.Src)

	scaled := resize.Resize(uint(g.Scaled.X), uint(g.Scaled.Y), img, resize.Bicubic)
	dst := image.Rectangle{Min: g.Pad, Max: g.Pad.Add(g.Scaled)}
	draw.Draw(canvas, dst, scaled, scaled.Bounds().Min, draw.Src)

	return canvas
}

// ResizeImage stretches img to size without preserving its aspect ratio.
func ResizeImage(img image.Image, size image.Point) image.Image {
	return resize.Resize(uint(size.X), uint(size.Y), img, resize.Bilinear)
}

// LetterboxMat is the gocv counterpart of LetterboxImage, used for video frames.
//
// Arguments:
//   - src: The source frame.
//   - size: The model input size (width, height).
//   - fill: The gray level of the padding.
//
// Returns:
//   - gocv.Mat: A new Mat of the model input size. The caller must Close it.
func LetterboxMat(src gocv.Mat, size image.Point, fill uint8) gocv.Mat {
	g := Letterbox(image.Pt(src.Cols(), src.Rows()), size)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, g.Scaled, 0, 0, gocv.InterpolationLinear)

	top, left := g.Pad.Y, g.Pad.X
	bottom := size.Y - g.Scaled.Y - top
	right := size.X - g.Scaled.X - left

	dst := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &dst, top, bottom, left, right, gocv.BorderConstant,
		color.RGBA{fill, fill, fill, 0})

	return dst
}

// ResizeMat stretches src to size. The caller must Close the returned Mat.
func ResizeMat(src gocv.Mat, size image.Point) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationLinear)
	return dst
}

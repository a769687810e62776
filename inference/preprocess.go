package inference

import (
	"image"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Layout is the memory order of the model input tensor.
type Layout string

const (
	// NHWC is [batch, height, width, channels], the layout of frozen TensorFlow graphs.
	NHWC Layout = "nhwc"
	// NCHW is [batch, channels, height, width], the layout of most exported ONNX models.
	NCHW Layout = "nchw"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case NHWC, NCHW:
		return l, nil
	default:
		return "", errors.Errorf("unsupported tensor layout %q, expected nhwc or nchw", s)
	}
}

// Normalization maps a raw 0-255 channel value v to (v - Mean) / Std.
type Normalization struct {
	Mean float32
	Std  float32
}

// RawPixels feeds channel values unchanged.
var RawPixels = Normalization{Mean: 0, Std: 1}

func (n Normalization) apply(v uint8) float32 {
	std := n.Std
	if std == 0 {
		std = 1
	}
	return (float32(v) - n.Mean) / std
}

// ImageToTensor converts an RGB image that already has the model input size into a
// [1, H, W, 3] or [1, 3, H, W] float32 tensor.
//
// Arguments:
//   - img: The preprocessed image.
//   - layout: The tensor layout expected by the model.
//   - norm: The per-channel normalization.
//
// Returns:
//   - *tensor.Dense: The input tensor.
func ImageToTensor(img image.Image, layout Layout, norm Normalization) *tensor.Dense {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float32, 3*w*h)

	plane := w * h
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			rgb := [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)}
			for c := 0; c < 3; c++ {
				if layout == NCHW {
					data[c*plane+i] = norm.apply(rgb[c])
				} else {
					data[i*3+c] = norm.apply(rgb[c])
				}
			}
			i++
		}
	}

	return tensor.New(tensor.WithShape(shapeFor(layout, 1, h, w)...), tensor.WithBacking(data))
}

// MatToTensor converts a BGR frame that already has the model input size into a float32 RGB
// tensor.
//
// Arguments:
//   - mat: An 8-bit, 3-channel BGR frame.
//   - layout: The tensor layout expected by the model.
//   - norm: The per-channel normalization.
//
// Returns:
//   - *tensor.Dense: The input tensor.
//   - error: An error if the frame is empty or not 8-bit BGR.
func MatToTensor(mat gocv.Mat, layout Layout, norm Normalization) (*tensor.Dense, error) {
	if mat.Empty() {
		return nil, errors.New("cannot convert an empty frame")
	}
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Errorf("expected an 8-bit 3-channel frame, got type %v", mat.Type())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	pixels, err := rgb.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "error reading frame pixels")
	}

	w, h := rgb.Cols(), rgb.Rows()
	plane := w * h
	data := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			v := norm.apply(pixels[i*3+c])
			if layout == NCHW {
				data[c*plane+i] = v
			} else {
				data[i*3+c] = v
			}
		}
	}

	return tensor.New(tensor.WithShape(shapeFor(layout, 1, h, w)...), tensor.WithBacking(data)), nil
}

// Replicate stacks n copies of a single-image tensor along the batch axis.
//
// Arguments:
//   - t: A tensor whose first dimension is 1.
//   - n: The number of copies.
//
// Returns:
//   - *tensor.Dense: A tensor whose first dimension is n. When n <= 1, t itself is returned.
//   - error: An error if t is not a single-image float32 tensor.
func Replicate(t *tensor.Dense, n int) (*tensor.Dense, error) {
	if n <= 1 {
		return t, nil
	}

	shape := t.Shape().Clone()
	if len(shape) == 0 || shape[0] != 1 {
		return nil, errors.Errorf("can only replicate a batch of one, got shape %v", shape)
	}
	src, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("can only replicate float32 tensors, got %v", t.Dtype())
	}

	data := make([]float32, 0, len(src)*n)
	for i := 0; i < n; i++ {
		data = append(data, src...)
	}
	shape[0] = n

	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

func shapeFor(layout Layout, batch, h, w int) []int {
	if layout == NCHW {
		return []int{batch, 3, h, w}
	}
	return []int{batch, h, w, 3}
}

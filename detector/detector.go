// Package detector - YOLO object detection pipeline built on an Inferer.
package detector

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Object is a detection in original image pixel space.
type Object struct {
	Class int
	Name  string
	Box   images.Box
	Score float32
}

// Options configures the detection pipeline.
type Options struct {
	// InputSize is the model input size (width, height).
	InputSize image.Point
	// Letterbox preserves the aspect ratio of inputs by padding them. When false inputs are
	// stretched to InputSize.
	Letterbox bool
	// Layout is the model input tensor layout.
	Layout inference.Layout
	// Normalization is applied to every channel value.
	Normalization inference.Normalization
	// NMS holds the confidence and IoU thresholds.
	NMS postprocess.NMSConfig
	// Replicas is the number of copies of each input fed per inference. Values below 2 feed a
	// single image.
	Replicas int
	// Classes names the class ids. Optional.
	Classes *models.OutputClassSet
}

// Detector runs preprocessing, inference, NMS and coordinate mapping.
type Detector struct {
	inferer inference.Inferer
	opts    Options
}

// New creates a detector.
//
// Arguments:
//   - inferer: The model runner.
//   - opts: The pipeline options.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the options are unusable.
func New(inferer inference.Inferer, opts Options) (*Detector, error) {
	if inferer == nil {
		return nil, errors.New("detector needs an inferer")
	}
	if opts.InputSize.X <= 0 || opts.InputSize.Y <= 0 {
		return nil, errors.Errorf("invalid model input size %v", opts.InputSize)
	}
	if opts.Layout == "" {
		opts.Layout = inference.NHWC
	}
	if opts.Normalization.Std == 0 {
		opts.Normalization.Std = 1
	}
	return &Detector{inferer: inferer, opts: opts}, nil
}

// Options returns the effective options.
func (d *Detector) Options() Options { return d.opts }

// DetectImage detects objects in a still image.
func (d *Detector) DetectImage(ctx context.Context, img image.Image) ([]Object, error) {
	var prepared image.Image
	if d.opts.Letterbox {
		prepared = images.LetterboxImage(img, d.opts.InputSize, images.DefaultFill)
	} else {
		prepared = images.ResizeImage(img, d.opts.InputSize)
	}

	input := inference.ImageToTensor(prepared, d.opts.Layout, d.opts.Normalization)
	return d.Process(ctx, input, img.Bounds().Size())
}

// DetectMat detects objects in a BGR video frame.
func (d *Detector) DetectMat(ctx context.Context, frame gocv.Mat) ([]Object, error) {
	if frame.Empty() {
		return nil, errors.New("cannot detect on an empty frame")
	}

	var prepared gocv.Mat
	if d.opts.Letterbox {
		prepared = images.LetterboxMat(frame, d.opts.InputSize, images.DefaultFill)
	} else {
		prepared = images.ResizeMat(frame, d.opts.InputSize)
	}
	defer prepared.Close()

	input, err := inference.MatToTensor(prepared, d.opts.Layout, d.opts.Normalization)
	if err != nil {
		return nil, err
	}
	return d.Process(ctx, input, image.Pt(frame.Cols(), frame.Rows()))
}

// Process runs the model on a prepared input tensor and maps the surviving detections of the
// first image back onto an original image of size orig.
//
// Objects are ordered by class id, then by descending score within a class.
func (d *Detector) Process(ctx context.Context, input *tensor.Dense, orig image.Point) ([]Object, error) {
	batch, err := inference.Replicate(input, d.opts.Replicas)
	if err != nil {
		return nil, err
	}

	output, err := d.inferer.Infer(ctx, batch)
	if err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	perImage, err := postprocess.NonMaxSuppressionPerImage(output, d.opts.NMS)
	if err != nil {
		return nil, errors.Wrap(err, "unexpected model output")
	}
	if len(perImage) == 0 {
		return nil, nil
	}

	return d.toObjects(perImage[0], orig), nil
}

func (d *Detector) toObjects(buckets postprocess.ClassBuckets, orig image.Point) []Object {
	mapper := images.NewMapper(orig, d.opts.InputSize, d.opts.Letterbox)

	objects := make([]Object, 0, buckets.Len())
	for _, class := range buckets.Classes() {
		for _, sb := range buckets[class] {
			objects = append(objects, Object{
				Class: class,
				Name:  d.className(class),
				Box:   mapper.ToOriginal(sb.Box),
				Score: sb.Score,
			})
		}
	}
	return objects
}

// unnamed labels every class id as "class <id>".
var unnamed = models.NewOutputClassSet("", nil)

func (d *Detector) className(class int) string {
	if d.opts.Classes == nil {
		return unnamed.Name(class)
	}
	return d.opts.Classes.Name(class)
}

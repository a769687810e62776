package controller

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/detector"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/render"
	"github.com/nvr-ai/go-yolo/util"
)

// RunImage detects objects in still images.
//
// Each image gets one untimed warmup detection and one timed detection. The annotated image is
// written to outPath, or next to it with the image name appended when several images are
// given. The performance report is written to reportPath once every image is done.
//
// Arguments:
//   - ctx: Cancels the run between images.
//   - files: The images to process.
//   - outPath: The annotated output path.
//   - reportPath: The performance report path.
//
// Returns:
//   - profiler.Stats: The timings of the timed detections.
//   - error: An error if an image cannot be read, detected or written.
func (r *Runner) RunImage(ctx context.Context, files []util.ImageFile, outPath, reportPath string) (profiler.Stats, error) {
	if len(files) == 0 {
		return profiler.Stats{}, errors.New("no images to process")
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return r.tracker.Snapshot(), err
		}

		dest := outPath
		if len(files) > 1 {
			dest = siblingPath(outPath, file.Path)
		}
		objects, err := r.detectFile(ctx, file.Path, dest)
		if err != nil {
			return r.tracker.Snapshot(), err
		}

		r.log.WithFields(logrus.Fields{
			"image":      file.Path,
			"output":     dest,
			"detections": len(objects),
			"latency":    r.timed.last,
		}).Info("image processed")
	}

	return r.report(reportPath)
}

func (r *Runner) detectFile(ctx context.Context, src, dest string) ([]detector.Object, error) {
	img := gocv.IMRead(src, gocv.IMReadColor)
	if img.Empty() {
		return nil, errors.Errorf("error reading image %s", src)
	}
	defer img.Close()

	// Still images go through the RGB letterboxer; the Mat is kept for drawing.
	decoded, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrapf(err, "error converting image %s", src)
	}

	r.timed.warmup = true
	_, err = r.detector.DetectImage(ctx, decoded)
	r.timed.warmup = false
	if err != nil {
		return nil, errors.Wrap(err, "warmup failed")
	}

	objects, err := r.detector.DetectImage(ctx, decoded)
	if err != nil {
		return nil, err
	}

	render.DetectionBoxes(&img, objects, r.BoxFont, r.LineThickness)
	if ok := gocv.IMWrite(dest, img); !ok {
		return nil, errors.Errorf("error writing image %s", dest)
	}
	return objects, nil
}

// siblingPath names the output of src when a directory of images is processed,
// e.g. out/output.jpg and frames/frame-1.png give out/output_frame-1.jpg.
func siblingPath(outPath, src string) string {
	ext := filepath.Ext(outPath)
	stem := strings.TrimSuffix(filepath.Base(outPath), ext)
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(filepath.Dir(outPath), stem+"_"+name+ext)
}

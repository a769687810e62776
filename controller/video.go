package controller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/render"
)

const (
	// DefaultVideoCodec is the FourCC of the annotated output video.
	DefaultVideoCodec = "avc1"
	// DefaultVideoFPS is the frame rate of the annotated output video.
	DefaultVideoFPS = 20.0
)

// RunVideo detects objects in every frame of a video file, draws the detections and the
// inference overlay, and writes the frames to outPath.
//
// The loop ends at the end of the stream or when ctx is canceled. Frames already processed
// are kept in the output and counted in the report.
//
// Arguments:
//   - ctx: Cancels the run between frames.
//   - input: The video file.
//   - outPath: The annotated output video.
//   - reportPath: The performance report path.
//
// Returns:
//   - profiler.Stats: The per-frame inference timings. AverageFPS includes the replica count.
//   - error: An error if the video cannot be opened, or a frame fails.
func (r *Runner) RunVideo(ctx context.Context, input, outPath, reportPath string) (profiler.Stats, error) {
	capture, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return profiler.Stats{}, errors.Wrapf(err, "error opening video %s", input)
	}
	defer capture.Close()

	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))

	writer, err := gocv.VideoWriterFile(outPath, r.VideoCodec, r.VideoFPS, width, height, true)
	if err != nil {
		return profiler.Stats{}, errors.Wrapf(err, "error creating video writer %s", outPath)
	}
	defer writer.Close()
	if !writer.IsOpened() {
		return profiler.Stats{}, errors.Errorf("error opening video writer %s with codec %s", outPath, r.VideoCodec)
	}

	frame := gocv.NewMat()
	defer frame.Close()

	frames := 0
	for {
		if ctx.Err() != nil {
			r.log.WithField("frames", frames).Warn("video run canceled")
			break
		}
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}
		if w, h := images.MatSize(frame); w != width || h != height {
			return r.tracker.Snapshot(), errors.Errorf("frame %d has size %dx%d, expected %dx%d",
				frames, w, h, width, height)
		}

		objects, err := r.detector.DetectMat(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return r.tracker.Snapshot(), errors.Wrapf(err, "frame %d", frames)
		}

		elapsed := r.timed.last
		fps := 0.0
		if elapsed > 0 {
			fps = float64(time.Second) / float64(elapsed)
		}

		render.DetectionBoxes(&frame, objects, r.BoxFont, r.LineThickness)
		render.Overlay(&frame, render.StatusLines(r.backend, fps, elapsed), r.OverlayFont)

		if err := writer.Write(frame); err != nil {
			return r.tracker.Snapshot(), errors.Wrapf(err, "error writing frame %d", frames)
		}
		frames++

		r.log.WithFields(logrus.Fields{
			"frame":      frames,
			"detections": len(objects),
			"fps":        int(fps),
		}).Debug("frame processed")
	}

	if frames == 0 {
		return profiler.Stats{}, errors.Errorf("no frames read from %s", input)
	}

	stats, err := r.report(reportPath)
	if err != nil {
		return stats, err
	}
	r.log.WithFields(logrus.Fields{
		"frames":            frames,
		"output":            outPath,
		"inference_time_ms": float64(stats.Latency().Microseconds()) / 1000,
	}).Info("completed")
	return stats, nil
}

// Package controller - Image and video run loops that route frames through the detector.
package controller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/detector"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/render"
)

// timedInferer records the duration of every model run that is not a warmup.
type timedInferer struct {
	inference.Inferer
	tracker *profiler.TimeTracker
	last    time.Duration
	warmup  bool
}

func (t *timedInferer) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	start := time.Now()
	out, err := t.Inferer.Infer(ctx, input)
	t.last = time.Since(start)
	if err == nil && !t.warmup {
		t.tracker.Record(t.last)
	}
	return out, err
}

// Runner drives detection over images and videos, renders the results and measures inference
// performance. Only the model run is timed; pre and post processing are excluded.
//
// A Runner is not safe for concurrent use.
type Runner struct {
	detector    *detector.Detector
	timed       *timedInferer
	tracker     *profiler.TimeTracker
	backend     string
	log         logrus.FieldLogger
	BoxFont     render.Font
	OverlayFont render.Font
	// LineThickness is the width of box outlines.
	LineThickness int
	// VideoCodec and VideoFPS configure the annotated output video.
	VideoCodec string
	VideoFPS   float64
}

// New creates a runner.
//
// Arguments:
//   - inferer: The model runner. The Runner does not close it.
//   - opts: The detection pipeline options.
//   - backend: The device name shown in the overlay, e.g. CPU.
//   - log: The logger. Defaults to the standard logrus logger.
//
// Returns:
//   - *Runner: The runner.
//   - error: An error if the detector cannot be created.
func New(inferer inference.Inferer, opts detector.Options, backend string, log logrus.FieldLogger) (*Runner, error) {
	if inferer == nil {
		return nil, errors.New("controller needs an inferer")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	tracker := profiler.NewTimeTracker("inference", opts.Replicas)
	timed := &timedInferer{Inferer: inferer, tracker: tracker}

	det, err := detector.New(timed, opts)
	if err != nil {
		return nil, err
	}

	return &Runner{
		detector:      det,
		timed:         timed,
		tracker:       tracker,
		backend:       backend,
		log:           log.WithField("backend", backend),
		BoxFont:       render.DefaultFont(),
		OverlayFont:   render.OverlayFont(),
		LineThickness: 2,
		VideoCodec:    DefaultVideoCodec,
		VideoFPS:      DefaultVideoFPS,
	}, nil
}

// Tracker returns the inference timings recorded so far.
func (r *Runner) Tracker() *profiler.TimeTracker { return r.tracker }

func (r *Runner) report(path string) (profiler.Stats, error) {
	stats := r.tracker.Snapshot()
	if err := profiler.WriteReport(path, stats); err != nil {
		return stats, err
	}
	r.log.WithFields(r.tracker.Fields()).WithField("report", path).Info("performance report written")
	return stats, nil
}

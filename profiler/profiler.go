// Package profiler - Inference timing and performance reports.
package profiler

import (
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// ReportFileName is the name of the performance report written to the output directory.
const ReportFileName = "performance.txt"

// TimeTracker records the duration of repeated operations, such as one inference per frame.
//
// A TimeTracker is safe for concurrent use.
type TimeTracker struct {
	name      string
	replicas  int
	mu        sync.Mutex
	durations []time.Duration
}

// NewTimeTracker creates a tracker.
//
// Arguments:
//   - name: The operation name, used in log fields.
//   - replicas: The number of images processed per operation. Throughput is multiplied by it.
//
// Returns:
//   - *TimeTracker: The tracker.
func NewTimeTracker(name string, replicas int) *TimeTracker {
	if replicas < 1 {
		replicas = 1
	}
	return &TimeTracker{name: name, replicas: replicas}
}

// StartOperation begins timing an operation.
//
// Returns:
//   - A function to call when the operation completes. It records and returns the duration.
//
// @example
//
//	stop := tracker.StartOperation()
//	out, err := inferer.Infer(ctx, input)
//	elapsed := stop()
func (t *TimeTracker) StartOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		t.Record(d)
		return d
	}
}

// Record adds a duration sample. Non-positive durations are ignored.
func (t *TimeTracker) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.durations = append(t.durations, d)
	t.mu.Unlock()
}

// Stats summarizes the recorded samples.
type Stats struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	P95    time.Duration
	Min    time.Duration
	Max    time.Duration
	// AverageFPS is the mean of the per-sample rates, multiplied by the replica count.
	AverageFPS float64
}

// Latency returns the per-image latency implied by AverageFPS.
func (s Stats) Latency() time.Duration {
	if s.AverageFPS == 0 {
		return 0
	}
	return time.Duration(math.Round(float64(time.Second) / s.AverageFPS))
}

// Snapshot computes statistics over the samples recorded so far.
func (t *TimeTracker) Snapshot() Stats {
	t.mu.Lock()
	samples := make([]float64, len(t.durations))
	for i, d := range t.durations {
		samples[i] = d.Seconds()
	}
	t.mu.Unlock()

	if len(samples) == 0 {
		return Stats{}
	}

	rates := make([]float64, len(samples))
	for i, s := range samples {
		rates[i] = 1 / s
	}

	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		std = 0
	}

	return Stats{
		Count:      len(samples),
		Mean:       seconds(mean),
		StdDev:     seconds(std),
		P95:        seconds(stat.Quantile(0.95, stat.Empirical, samples, nil)),
		Min:        seconds(samples[0]),
		Max:        seconds(samples[len(samples)-1]),
		AverageFPS: stat.Mean(rates, nil) * float64(t.replicas),
	}
}

// Fields returns the statistics as structured log fields.
func (t *TimeTracker) Fields() logrus.Fields {
	s := t.Snapshot()
	return logrus.Fields{
		"operation":  t.name,
		"samples":    s.Count,
		"avg_fps":    fmt.Sprintf("%.3g", s.AverageFPS),
		"latency_ms": fmt.Sprintf("%.3f", float64(s.Latency().Microseconds())/1000),
		"mean":       s.Mean,
		"stddev":     s.StdDev,
		"p95":        s.P95,
	}
}

// FormatReport renders the performance report:
//
//	Throughput: 24.1 FPS
//	Latency: 41.494 ms
func FormatReport(s Stats) string {
	return fmt.Sprintf("Throughput: %.3g FPS\nLatency: %.3f ms\n",
		s.AverageFPS, float64(s.Latency().Nanoseconds())/1e6)
}

// WriteReport writes FormatReport(s) to path, replacing any previous report.
func WriteReport(path string, s Stats) error {
	if s.Count == 0 {
		return errors.New("no inference samples recorded")
	}
	if err := os.WriteFile(path, []byte(FormatReport(s)), 0o644); err != nil {
		return errors.Wrapf(err, "error writing performance report %s", path)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

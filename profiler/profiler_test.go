package profiler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeTracker_SingleSample(t *testing.T) {
	tracker := NewTimeTracker("inference", 1)
	tracker.Record(40 * time.Millisecond)

	s := tracker.Snapshot()
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 40*time.Millisecond, s.Mean)
	assert.Equal(t, time.Duration(0), s.StdDev)
	assert.InDelta(t, 25.0, s.AverageFPS, 1e-9)
	assert.Equal(t, 40*time.Millisecond, s.Latency())

	assert.Equal(t, "Throughput: 25 FPS\nLatency: 40.000 ms\n", FormatReport(s))
}

func TestTimeTracker_ManySamples(t *testing.T) {
	tracker := NewTimeTracker("inference", 1)
	for _, ms := range []int{10, 20, 40, 50} {
		tracker.Record(time.Duration(ms) * time.Millisecond)
	}
	tracker.Record(0)

	s := tracker.Snapshot()
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 30*time.Millisecond, s.Mean)
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 50*time.Millisecond, s.Max)
	assert.Equal(t, 50*time.Millisecond, s.P95)
	assert.Positive(t, s.StdDev)

	// Mean of 100, 50, 25 and 20 FPS.
	assert.InDelta(t, 48.75, s.AverageFPS, 1e-9)
}

func TestTimeTracker_Replicas(t *testing.T) {
	tracker := NewTimeTracker("inference", 8)
	tracker.Record(100 * time.Millisecond)

	s := tracker.Snapshot()
	assert.InDelta(t, 80.0, s.AverageFPS, 1e-9)
	assert.Equal(t, 12500*time.Microsecond, s.Latency())
}

func TestTimeTracker_StartOperation(t *testing.T) {
	tracker := NewTimeTracker("inference", 0)
	stop := tracker.StartOperation()
	time.Sleep(2 * time.Millisecond)
	elapsed := stop()

	assert.GreaterOrEqual(t, elapsed, 2*time.Millisecond)
	assert.Equal(t, 1, tracker.Snapshot().Count)
	assert.Equal(t, "inference", tracker.Fields()["operation"])
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReportFileName)

	assert.Error(t, WriteReport(path, Stats{}))

	tracker := NewTimeTracker("inference", 1)
	tracker.Record(8 * time.Millisecond)
	require.NoError(t, WriteReport(path, tracker.Snapshot()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Throughput: 125 FPS\nLatency: 8.000 ms\n", string(b))
}

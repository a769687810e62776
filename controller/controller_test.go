package controller

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/detector"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/util"
)

// stubInferer answers every run with one confident detection after a short delay.
type stubInferer struct {
	calls int
	delay time.Duration
	last  *tensor.Dense
}

func (s *stubInferer) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls++
	s.last = input
	time.Sleep(s.delay)

	batch := input.Shape()[0]
	row := []float32{10, 10, 80, 80, 0.9, 0.2, 0.8}
	var backing []float32
	for b := 0; b < batch; b++ {
		backing = append(backing, row...)
	}
	return tensor.New(tensor.WithShape(batch, 1, len(row)), tensor.WithBacking(backing)), nil
}

func (s *stubInferer) Close() error { return nil }

func newRunner(t *testing.T, replicas int) (*Runner, *stubInferer, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	stub := &stubInferer{delay: time.Millisecond}
	r, err := New(stub, detector.Options{
		InputSize: image.Pt(160, 160),
		Letterbox: true,
		Layout:    inference.NHWC,
		NMS:       postprocess.NMSConfig{ConfidenceThreshold: 0.6, IoUThreshold: 0.5},
		Replicas:  replicas,
		Classes:   models.NewOutputClassSet("inline", []string{"person", "car"}),
	}, "CPU", logger)
	require.NoError(t, err)
	return r, stub, hook
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), h, w, gocv.MatTypeCV8UC3)
	defer mat.Close()
	require.True(t, gocv.IMWrite(path, mat))
}

func TestNew_NeedsInferer(t *testing.T) {
	_, err := New(nil, detector.Options{InputSize: image.Pt(160, 160)}, "CPU", nil)
	assert.Error(t, err)
}

func TestRunImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "grace_hopper.jpg")
	writeImage(t, src, 200, 100)

	r, stub, hook := newRunner(t, 1)
	out := filepath.Join(dir, "output.jpg")
	report := filepath.Join(dir, "performance.txt")

	stats, err := r.RunImage(context.Background(), []util.ImageFile{{Path: src, Frame: -1}}, out, report)
	require.NoError(t, err)

	// The warmup run is not timed.
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, 1, stats.Count)
	assert.GreaterOrEqual(t, stats.Mean, time.Millisecond)

	assert.FileExists(t, out)
	annotated := gocv.IMRead(out, gocv.IMReadColor)
	defer annotated.Close()
	w, h := images.MatSize(annotated)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)

	b, err := os.ReadFile(report)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Throughput: "))
	assert.True(t, strings.HasSuffix(lines[1], " ms"))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "performance report written", hook.LastEntry().Message)
}

func TestRunImage_LetterboxesDecodedImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	// BGR (40, 80, 120), lossless so the pixel values survive the round trip.
	writeImage(t, src, 200, 100)

	r, stub, _ := newRunner(t, 1)
	_, err := r.RunImage(context.Background(), []util.ImageFile{{Path: src}},
		filepath.Join(dir, "output.png"), filepath.Join(dir, "performance.txt"))
	require.NoError(t, err)

	require.NotNil(t, stub.last)
	assert.Equal(t, tensor.Shape{1, 160, 160, 3}, stub.last.Shape())
	data := stub.last.Data().([]float32)
	pixel := func(x, y int) []float32 {
		i := (y*160 + x) * 3
		return data[i : i+3]
	}

	// 200x100 scales to 160x80 with 40 rows of gray padding above and below.
	assert.Equal(t, []float32{128, 128, 128}, pixel(80, 10))
	assert.Equal(t, []float32{128, 128, 128}, pixel(80, 150))

	// Inside the image the channels are in RGB order.
	center := pixel(80, 80)
	assert.InDelta(t, 120, center[0], 1)
	assert.InDelta(t, 80, center[1], 1)
	assert.InDelta(t, 40, center[2], 1)
}

func TestRunImage_Directory(t *testing.T) {
	dir := t.TempDir()
	frames := filepath.Join(dir, "frames")
	require.NoError(t, os.Mkdir(frames, 0o755))
	writeImage(t, filepath.Join(frames, "frame-1.png"), 64, 48)
	writeImage(t, filepath.Join(frames, "frame-2.png"), 64, 48)

	files, err := util.DiscoverImages(frames)
	require.NoError(t, err)

	r, stub, _ := newRunner(t, 1)
	out := filepath.Join(dir, "output.jpg")
	stats, err := r.RunImage(context.Background(), files, out, filepath.Join(dir, "performance.txt"))
	require.NoError(t, err)

	assert.Equal(t, 4, stub.calls)
	assert.Equal(t, 2, stats.Count)
	assert.FileExists(t, filepath.Join(dir, "output_frame-1.jpg"))
	assert.FileExists(t, filepath.Join(dir, "output_frame-2.jpg"))
	assert.NoFileExists(t, out)
}

func TestRunImage_Errors(t *testing.T) {
	dir := t.TempDir()
	r, _, _ := newRunner(t, 1)
	report := filepath.Join(dir, "performance.txt")

	_, err := r.RunImage(context.Background(), nil, filepath.Join(dir, "out.jpg"), report)
	assert.Error(t, err)

	junk := filepath.Join(dir, "junk.jpg")
	require.NoError(t, os.WriteFile(junk, []byte("not an image"), 0o644))
	_, err = r.RunImage(context.Background(), []util.ImageFile{{Path: junk}}, filepath.Join(dir, "out.jpg"), report)
	assert.ErrorContains(t, err, "error reading image")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.RunImage(ctx, []util.ImageFile{{Path: junk}}, filepath.Join(dir, "out.jpg"), report)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, report)
}

func TestRunVideo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.avi")

	writer, err := gocv.VideoWriterFile(src, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	if !writer.IsOpened() {
		writer.Close()
		t.Skip("MJPG video writer unavailable")
	}
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 128, 255, 0), 48, 64, gocv.MatTypeCV8UC3)
	for i := 0; i < 5; i++ {
		require.NoError(t, writer.Write(frame))
	}
	frame.Close()
	require.NoError(t, writer.Close())

	r, stub, _ := newRunner(t, 8)
	r.VideoCodec = "MJPG"
	out := filepath.Join(dir, "CPU_output.avi")
	report := filepath.Join(dir, "performance.txt")

	stats, err := r.RunVideo(context.Background(), src, out, report)
	require.NoError(t, err)

	assert.Equal(t, 5, stub.calls)
	assert.Equal(t, 5, stats.Count)
	assert.FileExists(t, out)
	assert.FileExists(t, report)

	// Each run fed eight copies of the frame, so throughput counts eight images per run.
	perRun := float64(time.Second) / float64(stats.Mean)
	assert.Greater(t, stats.AverageFPS, 4*perRun)
}

func TestRunVideo_MissingInput(t *testing.T) {
	dir := t.TempDir()
	r, _, _ := newRunner(t, 1)
	_, err := r.RunVideo(context.Background(), filepath.Join(dir, "missing.mp4"),
		filepath.Join(dir, "out.mp4"), filepath.Join(dir, "performance.txt"))
	assert.Error(t, err)
}

func TestSiblingPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "output_frame-1.jpg"),
		siblingPath(filepath.Join("out", "output.jpg"), filepath.Join("frames", "frame-1.png")))
}

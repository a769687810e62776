package postprocess

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
)

// detections builds a [batch, candidates, width] tensor from per-image rows.
func detections(t *testing.T, rows ...[][]float32) *tensor.Dense {
	t.Helper()
	require.NotEmpty(t, rows)
	require.NotEmpty(t, rows[0])

	candidates := len(rows[0])
	width := len(rows[0][0])
	backing := make([]float32, 0, len(rows)*candidates*width)
	for _, img := range rows {
		require.Len(t, img, candidates)
		for _, r := range img {
			require.Len(t, r, width)
			backing = append(backing, r...)
		}
	}

	return tensor.New(tensor.WithShape(len(rows), candidates, width), tensor.WithBacking(backing))
}

func TestNonMaxSuppression_ConfidenceGate(t *testing.T) {
	in := detections(t, [][]float32{
		{10, 10, 50, 50, 0.5, 0.9, 0.1},
		{60, 60, 90, 90, 0.5, 0.1, 0.9},
		{0, 0, 5, 5, 0.5, 0.3, 0.7},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.9, IoUThreshold: 0.4})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNonMaxSuppression_GateIsStrict(t *testing.T) {
	in := detections(t, [][]float32{
		{10, 10, 50, 50, 0.6, 1, 0},
		{10, 10, 50, 50, 0.61, 1, 0},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.6, IoUThreshold: 0.4})
	require.NoError(t, err)
	require.Len(t, got[0], 1)
	assert.Equal(t, float32(0.61), got[0][0].Score)
}

func TestNonMaxSuppression_SuppressesIdenticalBoxes(t *testing.T) {
	box := images.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}
	in := detections(t, [][]float32{
		{10, 10, 50, 50, 0.8, 0.2, 0.9},
		{10, 10, 50, 50, 0.9, 0.2, 0.9},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.5, IoUThreshold: 0.4})
	require.NoError(t, err)
	assert.Equal(t, ClassBuckets{1: {{Box: box, Score: 0.9}}}, got)
}

func TestNonMaxSuppression_ClassSeparation(t *testing.T) {
	box := images.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}
	in := detections(t, [][]float32{
		{10, 10, 50, 50, 0.95, 0.9, 0.1},
		{10, 10, 50, 50, 0.9, 0.1, 0.9},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.5, IoUThreshold: 0.4})
	require.NoError(t, err)
	assert.Equal(t, ClassBuckets{
		0: {{Box: box, Score: 0.95}},
		1: {{Box: box, Score: 0.9}},
	}, got)
	assert.Equal(t, []int{0, 1}, got.Classes())
}

func TestNonMaxSuppression_ThresholdBoundary(t *testing.T) {
	// IoU of these boxes is 2500/17500 ~= 0.1428.
	in := detections(t, [][]float32{
		{0, 0, 100, 100, 0.9, 1},
		{50, 50, 150, 150, 0.8, 1},
	})

	t.Run("below threshold survives", func(t *testing.T) {
		got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.1, IoUThreshold: 0.2})
		require.NoError(t, err)
		assert.Len(t, got[0], 2)
	})

	t.Run("at or above threshold is dropped", func(t *testing.T) {
		got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.1, IoUThreshold: 0.14})
		require.NoError(t, err)
		require.Len(t, got[0], 1)
		assert.Equal(t, float32(0.9), got[0][0].Score)
	})

	t.Run("zero threshold uses default", func(t *testing.T) {
		got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.1})
		require.NoError(t, err)
		assert.Len(t, got[0], 2)
	})
}

func TestNonMaxSuppression_OrderAndTies(t *testing.T) {
	in := detections(t, [][]float32{
		{0, 0, 10, 10, 0.7, 1},
		{100, 100, 110, 110, 0.9, 1},
		{200, 200, 210, 210, 0.7, 1},
		{300, 300, 310, 310, 0.8, 1},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.5, IoUThreshold: 0.4})
	require.NoError(t, err)
	require.Len(t, got[0], 4)

	// Descending score, equal scores keep their candidate order.
	assert.Equal(t, []images.Box{
		{X1: 100, Y1: 100, X2: 110, Y2: 110},
		{X1: 300, Y1: 300, X2: 310, Y2: 310},
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 200, Y1: 200, X2: 210, Y2: 210},
	}, []images.Box{got[0][0].Box, got[0][1].Box, got[0][2].Box, got[0][3].Box})
}

func TestNonMaxSuppression_ClassTieTakesFirst(t *testing.T) {
	in := detections(t, [][]float32{
		{0, 0, 10, 10, 0.9, 0.5, 0.5, 0.5},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	assert.Contains(t, got, 0)
	assert.Equal(t, 1, got.Len())
}

func TestNonMaxSuppression_Batch(t *testing.T) {
	in := detections(t,
		[][]float32{
			{0, 0, 10, 10, 0.9, 1, 0},
			{0, 0, 0, 0, 0, 0, 0},
		},
		[][]float32{
			{0, 0, 10, 10, 0.8, 1, 0},
			{20, 20, 40, 40, 0.7, 0, 1},
		},
	)
	cfg := NMSConfig{ConfidenceThreshold: 0.5, IoUThreshold: 0.4}

	t.Run("merged", func(t *testing.T) {
		got, err := NonMaxSuppression(in, cfg)
		require.NoError(t, err)

		// Identical boxes from different images are not suppressed against each other.
		require.Len(t, got[0], 2)
		assert.Equal(t, float32(0.9), got[0][0].Score)
		assert.Equal(t, float32(0.8), got[0][1].Score)
		require.Len(t, got[1], 1)
	})

	t.Run("per image", func(t *testing.T) {
		for _, workers := range []int{0, 1, 4} {
			got, err := NonMaxSuppressionPerImage(in, NMSConfig{
				ConfidenceThreshold: cfg.ConfidenceThreshold,
				IoUThreshold:        cfg.IoUThreshold,
				NumWorkers:          workers,
			})
			require.NoError(t, err)
			require.Len(t, got, 2)

			assert.Equal(t, ClassBuckets{
				0: {{Box: images.Box{X2: 10, Y2: 10}, Score: 0.9}},
			}, got[0])
			assert.Equal(t, ClassBuckets{
				0: {{Box: images.Box{X2: 10, Y2: 10}, Score: 0.8}},
				1: {{Box: images.Box{X1: 20, Y1: 20, X2: 40, Y2: 40}, Score: 0.7}},
			}, got[1])
		}
	})
}

func TestNonMaxSuppression_EndToEndSingleCandidate(t *testing.T) {
	in := detections(t, [][]float32{
		{20, 30, 80, 120, 0.95, 0.1, 0.9},
	})

	got, err := NonMaxSuppression(in, NMSConfig{ConfidenceThreshold: 0.6, IoUThreshold: 0.4})
	require.NoError(t, err)

	box := images.Box{X1: 20, Y1: 30, X2: 80, Y2: 120}
	assert.Equal(t, ClassBuckets{1: {{Box: box, Score: 0.95}}}, got)

	m := images.NewMapper(image.Pt(160, 160), image.Pt(160, 160), false)
	assert.Equal(t, box, m.ToOriginal(got[1][0].Box))
}

func TestNonMaxSuppression_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   *tensor.Dense
	}{
		{name: "nil tensor", in: nil},
		{
			name: "rank 2",
			in:   tensor.New(tensor.WithShape(2, 7), tensor.WithBacking(make([]float32, 14))),
		},
		{
			name: "rows too short",
			in:   tensor.New(tensor.WithShape(1, 2, 5), tensor.WithBacking(make([]float32, 10))),
		},
		{
			name: "float64",
			in:   tensor.New(tensor.WithShape(1, 1, 6), tensor.WithBacking(make([]float64, 6))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NonMaxSuppression(tt.in, NMSConfig{ConfidenceThreshold: 0.5})
			assert.Error(t, err)
		})
	}
}

func TestNonMaxSuppression_NoCandidates(t *testing.T) {
	empty := tensor.New(tensor.WithShape(2, 0, 7), tensor.WithBacking([]float32{}))

	merged, err := NonMaxSuppression(empty, NMSConfig{ConfidenceThreshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, merged)

	perImage, err := NonMaxSuppressionPerImage(empty, NMSConfig{ConfidenceThreshold: 0.5, NumWorkers: 2})
	require.NoError(t, err)
	require.Len(t, perImage, 2)
	for _, buckets := range perImage {
		assert.Empty(t, buckets)
	}
}

func TestApplyGreedyNMS(t *testing.T) {
	assert.Nil(t, ApplyGreedyNMS(nil, 0.4))

	kept := ApplyGreedyNMS([]ScoredBox{
		{Box: images.Box{X2: 100, Y2: 100}, Score: 0.9},
		{Box: images.Box{X1: 5, Y1: 5, X2: 105, Y2: 105}, Score: 0.8},
		{Box: images.Box{X1: 500, Y1: 500, X2: 600, Y2: 600}, Score: 0.7},
		{Box: images.Box{X1: 502, Y1: 502, X2: 600, Y2: 600}, Score: 0.6},
	}, 0.5)

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.7), kept[1].Score)
}

func TestClassBuckets_Merge(t *testing.T) {
	a := ClassBuckets{0: {{Score: 0.9}}}
	a.Merge(ClassBuckets{0: {{Score: 0.5}}, 3: {{Score: 0.7}}})

	assert.Equal(t, []int{0, 3}, a.Classes())
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, float32(0.5), a[0][1].Score)
}

package postprocess

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
)

const (
	// DefaultIoUThreshold is used when NMSConfig.IoUThreshold is left at zero.
	DefaultIoUThreshold float32 = 0.4

	// boxFields is the number of leading values in a detection row: x0, y0, x1, y1, objectness.
	boxFields = 5
	// objectnessIndex is the position of the objectness score inside a detection row.
	objectnessIndex = 4
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// Candidates whose objectness is not strictly greater than this value are discarded.
	ConfidenceThreshold float32
	// Boxes of the same class whose IoU with a kept box is at least this value are suppressed.
	IoUThreshold float32
	// Number of goroutines used to process the images of a batch. Values below 1 mean 1.
	NumWorkers int
}

func (c NMSConfig) iouThreshold() float32 {
	if c.IoUThreshold == 0 {
		return DefaultIoUThreshold
	}
	return c.IoUThreshold
}

// NonMaxSuppression filters a raw detection tensor and returns the survivors of every image in
// the batch merged into one set of class buckets.
//
// Buckets from later images are appended after those of earlier images, so a class that appears
// in several images holds the survivors of image 0 first. Use NonMaxSuppressionPerImage to keep
// the images apart.
//
// Arguments:
//   - detections: A float32 tensor of shape [batch, candidates, 5+classes].
//   - config: The thresholds to apply.
//
// Returns:
//   - ClassBuckets: The surviving detections per class. Empty when nothing passes the gate.
//   - error: An error if the tensor is malformed.
func NonMaxSuppression(detections *tensor.Dense, config NMSConfig) (ClassBuckets, error) {
	perImage, err := NonMaxSuppressionPerImage(detections, config)
	if err != nil {
		return nil, err
	}

	merged := make(ClassBuckets)
	for _, buckets := range perImage {
		merged.Merge(buckets)
	}
	return merged, nil
}

// NonMaxSuppressionPerImage runs greedy per-class NMS on every image of the batch.
//
// For each image:
//  1. Candidates with objectness <= ConfidenceThreshold are discarded, as are all-zero rows.
//  2. Each candidate is assigned the class with the highest class score (first wins on ties).
//  3. Candidates of a class are stable-sorted by descending objectness.
//  4. The best remaining candidate is kept and every remaining candidate of the same class with
//     IoU >= IoUThreshold against it is dropped, until none remain.
//
// Arguments:
//   - detections: A float32 tensor of shape [batch, candidates, 5+classes].
//   - config: The thresholds to apply.
//
// Returns:
//   - []ClassBuckets: One entry per image, indexed like the batch axis.
//   - error: An error if the tensor is malformed.
func NonMaxSuppressionPerImage(detections *tensor.Dense, config NMSConfig) ([]ClassBuckets, error) {
	data, batch, candidates, width, err := unpack(detections)
	if err != nil {
		return nil, err
	}

	results := make([]ClassBuckets, batch)
	stride := candidates * width

	workers := config.NumWorkers
	if workers < 1 || batch == 1 {
		for b := 0; b < batch; b++ {
			results[b] = suppressImage(data[b*stride:(b+1)*stride], width, config)
		}
		return results, nil
	}

	jobs := make(chan int, batch)
	for b := 0; b < batch; b++ {
		jobs <- b
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, batch); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				results[b] = suppressImage(data[b*stride:(b+1)*stride], width, config)
			}
		}()
	}
	wg.Wait()

	return results, nil
}

// ApplyGreedyNMS performs greedy suppression on detections of a single class.
//
// Arguments:
//   - detections: Detections sorted by descending score.
//   - iouThreshold: Candidates whose IoU with a kept detection is >= this value are dropped.
//
// Returns:
//   - []ScoredBox: The kept detections in the order they were selected.
func ApplyGreedyNMS(detections []ScoredBox, iouThreshold float32) []ScoredBox {
	n := len(detections)
	if n == 0 {
		return nil
	}

	kept := make([]ScoredBox, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		kept = append(kept, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Box, detections[j].Box) >= iouThreshold {
				used[j] = true
			}
		}
	}

	return kept
}

func suppressImage(rows []float32, width int, config NMSConfig) ClassBuckets {
	byClass := make(map[int][]ScoredBox)

	for off := 0; off+width <= len(rows); off += width {
		row := rows[off : off+width]
		if !(row[objectnessIndex] > config.ConfidenceThreshold) || allZero(row) {
			continue
		}

		class := argmax(row[boxFields:])
		byClass[class] = append(byClass[class], ScoredBox{
			Box:   images.NewBox(row),
			Score: row[objectnessIndex],
		})
	}

	buckets := make(ClassBuckets, len(byClass))
	for class, boxes := range byClass {
		sort.SliceStable(boxes, func(i, j int) bool {
			return boxes[i].Score > boxes[j].Score
		})
		buckets[class] = ApplyGreedyNMS(boxes, config.iouThreshold())
	}

	return buckets
}

func unpack(t *tensor.Dense) (data []float32, batch, candidates, width int, err error) {
	if t == nil {
		return nil, 0, 0, 0, errors.New("detection tensor is nil")
	}

	shape := t.Shape()
	if len(shape) != 3 {
		return nil, 0, 0, 0, errors.Errorf("detection tensor must have rank 3, got shape %v", shape)
	}
	batch, candidates, width = shape[0], shape[1], shape[2]
	if width < boxFields+1 {
		return nil, 0, 0, 0, errors.Errorf(
			"detection rows need at least %d values (box, objectness, one class), got %d",
			boxFields+1, width,
		)
	}

	if t.Dtype() != tensor.Float32 {
		return nil, 0, 0, 0, errors.Errorf("detection tensor must be float32, got %v", t.Dtype())
	}
	if batch*candidates == 0 {
		// A model that emits no candidate rows yields an empty backing array.
		return nil, batch, candidates, width, nil
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, 0, 0, 0, errors.Errorf("unexpected detection tensor backing %T", t.Data())
	}
	if len(data) < batch*candidates*width {
		return nil, 0, 0, 0, errors.Errorf(
			"detection tensor holds %d values, shape %v needs %d", len(data), shape, batch*candidates*width,
		)
	}

	return data, batch, candidates, width, nil
}

func argmax(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

func allZero(row []float32) bool {
	for _, v := range row {
		if v != 0 {
			return false
		}
	}
	return true
}

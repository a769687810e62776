// Package postprocess - Detection filtering for YOLO-style model outputs.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-yolo/images"
)

// ScoredBox is a surviving detection: a box and its objectness score.
type ScoredBox struct {
	// The bounding box, in the coordinate frame of the model input.
	Box images.Box
	// The objectness score of the detection.
	Score float32
}

// ClassBuckets maps a class id to its surviving detections, ordered by descending score.
//
// Classes without survivors are absent; there are never empty entries.
type ClassBuckets map[int][]ScoredBox

// Classes returns the class ids present in the buckets in ascending order.
func (c ClassBuckets) Classes() []int {
	ids := make([]int, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the total number of detections across all classes.
func (c ClassBuckets) Len() int {
	n := 0
	for _, boxes := range c {
		n += len(boxes)
	}
	return n
}

// Merge appends every detection of other to c, class by class.
func (c ClassBuckets) Merge(other ClassBuckets) {
	for _, id := range other.Classes() {
		c[id] = append(c[id], other[id]...)
	}
}

package lod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// The factor applied to split distances to get merge distances. Keeps
	// nodes from oscillating when the camera sits on a split boundary.
	MergeThresholdFactor = 1.15

	// The split distance at depth 0, in kilometers. Each deeper level halves
	// it.
	BaseSplitDistance = 312000.0

	// The draw order offset between two depths.
	SortOffsetPerDepth = 10.0
)

// Thresholds holds the per depth distances below which a node is split and
// above which its children are merged back.
type Thresholds struct {
	Split []float64 `json:"split"`
	Merge []float64 `json:"merge"`
}

// DefaultThresholds returns thresholds for depths 0 to maxDepth where split
// distances halve at each depth.
func DefaultThresholds(maxDepth int) Thresholds {
	split := make([]float64, maxDepth+1)
	distance := BaseSplitDistance
	for depth := range split {
		split[depth] = distance
		distance /= 2
	}
	return NewThresholds(split)
}

// NewThresholds returns thresholds with the given split distances. The merge
// distance of a depth is the split distance of its parent depth multiplied by
// MergeThresholdFactor.
func NewThresholds(split []float64) Thresholds {
	merge := make([]float64, len(split))
	for depth := range split {
		if depth == 0 {
			merge[depth] = split[0] * 2 * MergeThresholdFactor
			continue
		}
		merge[depth] = split[depth-1] * MergeThresholdFactor
	}

	return Thresholds{
		Split: split,
		Merge: merge,
	}
}

// Validate checks that thresholds are defined up to maxDepth and that the
// merge distance is greater than the split distance at every depth.
func (t Thresholds) Validate(maxDepth int) error {
	if len(t.Split) <= maxDepth || len(t.Merge) <= maxDepth {
		return errors.New("thresholds are not defined up to max depth").
			WithType(ErrTypeInvalidConfig).
			WithTag("split_depths", len(t.Split)).
			WithTag("merge_depths", len(t.Merge)).
			WithTag("max_depth", maxDepth)
	}

	for depth := 0; depth <= maxDepth; depth++ {
		if t.Split[depth] <= 0 {
			return errors.New("split distance must be positive").
				WithType(ErrTypeInvalidConfig).
				WithTag("depth", depth).
				WithTag("split", t.Split[depth])
		}

		if t.Merge[depth] <= t.Split[depth] {
			return errors.Newf("merge distance must be greater than split distance").
				WithType(ErrTypeInvalidConfig).
				WithTag("depth", depth).
				WithTag("split", t.Split[depth]).
				WithTag("merge", t.Merge[depth])
		}
	}
	return nil
}

// ZoomForDistance returns the depth whose split band contains the given
// distance, from 0 when farther than every split distance to the deepest
// depth when nearer than every split distance.
func (t Thresholds) ZoomForDistance(distance float64) int {
	for depth := len(t.Split) - 1; depth > 0; depth-- {
		if t.Split[depth] < distance && distance <= t.Split[depth-1] {
			return depth
		}
	}

	if len(t.Split) != 0 && distance <= t.Split[len(t.Split)-1] {
		return len(t.Split) - 1
	}
	return 0
}

// SortOffset returns the draw order offset of a visible patch at the given
// depth. Deeper patches are drawn after their ancestors.
func SortOffset(depth int) float64 {
	return SortOffsetPerDepth * float64(depth)
}

package scanfilter

import (
	"sort"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
)

// NearFilter suppresses isolated close-range returns, the speckle produced
// by dust, cover reflections and sunlight. Close points are grouped by
// angular and range continuity; small groups with weak returns are marked
// invalid by zeroing their distance. Points are never removed or moved, so
// the frame keeps its angular coverage.
type NearFilter struct {
	// MaxRangeMM limits the filter to returns closer than this.
	// Typical value: 1000mm.
	MaxRangeMM uint16

	// MaxDistanceJumpMM is the largest range change between neighbours
	// that still counts as the same surface.
	MaxDistanceJumpMM uint16

	// ScanFrequency is the nominal sample rate used to derive the angular
	// gap allowed between neighbours: speed / ScanFrequency * 2 degrees.
	ScanFrequency float64

	// MinGroupSize is the smallest group trusted regardless of intensity.
	MinGroupSize int

	// IntensityThreshold is the mean intensity below which a small group is
	// treated as noise.
	IntensityThreshold float64

	pointsProcessed atomic.Int64
	pointsNear      atomic.Int64
	pointsRejected  atomic.Int64
}

// NewNearFilter constructs a filter with explicit grouping parameters and
// the default range limits.
func NewNearFilter(minGroupSize int, intensityThreshold float64) *NearFilter {
	return &NearFilter{
		MaxRangeMM:         1000,
		MaxDistanceJumpMM:  10,
		ScanFrequency:      l2frames.DefaultPointFrequency,
		MinGroupSize:       minGroupSize,
		IntensityThreshold: intensityThreshold,
	}
}

// DefaultNearFilter returns a filter tuned for the LD06/LD19 family.
func DefaultNearFilter() *NearFilter {
	return NewNearFilter(3, 92)
}

// Filter marks noise points in place and returns points.
func (f *NearFilter) Filter(points []l2frames.Point, speedRaw uint16) []l2frames.Point {
	f.pointsProcessed.Add(int64(len(points)))
	if len(points) == 0 || f.ScanFrequency <= 0 {
		return points
	}

	near := make([]int, 0, len(points)/4)
	for i, p := range points {
		if p.Distance > 0 && p.Distance < f.MaxRangeMM {
			near = append(near, i)
		}
	}
	f.pointsNear.Add(int64(len(near)))
	if len(near) == 0 {
		return points
	}
	sort.SliceStable(near, func(a, b int) bool {
		return points[near[a]].Angle < points[near[b]].Angle
	})

	maxGap := float64(speedRaw) / f.ScanFrequency * 2
	start := 0
	for i := 1; i <= len(near); i++ {
		if i < len(near) && f.continues(points[near[i-1]], points[near[i]], maxGap) {
			continue
		}
		f.judge(points, near[start:i])
		start = i
	}
	return points
}

// continues reports whether cur extends the group that ends at prev.
func (f *NearFilter) continues(prev, cur l2frames.Point, maxGap float64) bool {
	jump := int(cur.Distance) - int(prev.Distance)
	if jump < 0 {
		jump = -jump
	}
	return jump <= int(f.MaxDistanceJumpMM) && cur.Angle-prev.Angle <= maxGap
}

// judge zeroes a group when it is both small and weak.
func (f *NearFilter) judge(points []l2frames.Point, group []int) {
	if len(group) >= f.MinGroupSize {
		return
	}
	intensities := make([]float64, len(group))
	for i, idx := range group {
		intensities[i] = float64(points[idx].Intensity)
	}
	if stat.Mean(intensities, nil) >= f.IntensityThreshold {
		return
	}
	for _, idx := range group {
		points[idx].Distance = 0
		points[idx].Intensity = 0
	}
	f.pointsRejected.Add(int64(len(group)))
}

// NearFilterStats counts points seen by a NearFilter since it was created.
type NearFilterStats struct {
	PointsProcessed int64 `json:"points_processed"`
	PointsNear      int64 `json:"points_near"`
	PointsRejected  int64 `json:"points_rejected"`
}

// Stats returns filter statistics for monitoring and tuning.
func (f *NearFilter) Stats() NearFilterStats {
	return NearFilterStats{
		PointsProcessed: f.pointsProcessed.Load(),
		PointsNear:      f.pointsNear.Load(),
		PointsRejected:  f.pointsRejected.Load(),
	}
}

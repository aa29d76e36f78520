package l2frames

import (
	"math"
	"time"
)

// Point is one absolute-angle sample.
type Point struct {
	Angle     float64 `json:"angle"`    // degrees in [0, 360)
	Distance  uint16  `json:"distance"` // millimetres, 0 means no return
	Intensity uint8   `json:"intensity"`
}

// XY returns the cartesian position of p in metres. Angles grow clockwise
// from the sensor's forward axis, matching the device's native convention.
func (p Point) XY() (x, y float64) {
	rad := p.Angle * math.Pi / 180
	r := float64(p.Distance) / 1000
	return r * math.Cos(rad), -r * math.Sin(rad)
}

// Frame is one published revolution. Frames are immutable once published;
// the store hands out copies.
type Frame struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	SensorID    string    `json:"sensor_id,omitempty"`
	Points      []Point   `json:"points"`
	SpeedRaw    uint16    `json:"speed_raw"` // degrees per second
	Timestamp   uint16    `json:"timestamp"` // sensor milliseconds of the last packet
	PublishedAt time.Time `json:"published_at"`
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	if f.Points != nil {
		pts := make([]Point, len(f.Points))
		copy(pts, f.Points)
		f.Points = pts
	}
	return f
}

// SpeedHz returns the rotation speed the frame was captured at.
func (f Frame) SpeedHz() float64 {
	return float64(f.SpeedRaw) / 360.0
}

// ValidPoints returns the number of points with a non-zero distance.
func (f Frame) ValidPoints() int {
	n := 0
	for _, p := range f.Points {
		if p.Distance > 0 {
			n++
		}
	}
	return n
}

// AngleRange returns the smallest and largest angle in the frame. Both are
// zero for an empty frame.
func (f Frame) AngleRange() (min, max float64) {
	if len(f.Points) == 0 {
		return 0, 0
	}
	min, max = f.Points[0].Angle, f.Points[0].Angle
	for _, p := range f.Points[1:] {
		if p.Angle < min {
			min = p.Angle
		}
		if p.Angle > max {
			max = p.Angle
		}
	}
	return min, max
}

package scanfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
)

var _ l2frames.Transformer = (*CoordinateTransform)(nil)

func TestCoordinateTransform(t *testing.T) {
	tests := []struct {
		name    string
		ct      *CoordinateTransform
		product l2frames.ProductType
		dir     l2frames.ScanDirection
		in      []float64
		want    []float64
	}{
		{"clockwise identity", NewCoordinateTransform(0), l2frames.ProductLD06, l2frames.Clockwise,
			[]float64{0, 90, 359.5}, []float64{0, 90, 359.5}},
		{"counterclockwise mirror", NewCoordinateTransform(0), l2frames.ProductLD06, l2frames.CounterClockwise,
			[]float64{0, 90, 359.5}, []float64{0, 270, 0.5}},
		{"offset wraps", NewCoordinateTransform(90), l2frames.ProductLD06, l2frames.Clockwise,
			[]float64{0, 300}, []float64{90, 30}},
		{"negative offset wraps", NewCoordinateTransform(-45), l2frames.ProductLD06, l2frames.Clockwise,
			[]float64{10, 200}, []float64{325, 155}},
		{"per product offset", &CoordinateTransform{Offset: 10, Offsets: map[l2frames.ProductType]float64{l2frames.ProductLD19: 180}},
			l2frames.ProductLD19, l2frames.Clockwise, []float64{0, 270}, []float64{180, 90}},
		{"fallback offset", &CoordinateTransform{Offset: 10, Offsets: map[l2frames.ProductType]float64{l2frames.ProductLD19: 180}},
			l2frames.ProductLD06, l2frames.Clockwise, []float64{0}, []float64{10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts := make([]l2frames.Point, len(tt.in))
			for i, a := range tt.in {
				pts[i] = l2frames.Point{Angle: a, Distance: uint16(100 + i), Intensity: 7}
			}
			out := tt.ct.Transform(pts, tt.product, tt.dir)
			for i, p := range out {
				assert.InDelta(t, tt.want[i], p.Angle, 1e-9, "point %d", i)
				assert.Equal(t, uint16(100+i), p.Distance)
				assert.Equal(t, uint8(7), p.Intensity)
			}
		})
	}
}

func TestWrap360(t *testing.T) {
	for in, want := range map[float64]float64{0: 0, 360: 0, 720.5: 0.5, -0.5: 359.5, -360: 0} {
		got := wrap360(in)
		assert.InDelta(t, want, got, 1e-9, "wrap360(%v)", in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 360.0)
	}
}

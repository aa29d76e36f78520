package scanfilter

import (
	"math"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
)

// CoordinateTransform remaps a revolution from the sensor's native
// clockwise convention to the requested scan direction and applies a
// mounting rotation.
type CoordinateTransform struct {
	// Offsets holds a per-product mounting rotation in degrees, added after
	// the direction change.
	Offsets map[l2frames.ProductType]float64

	// Offset applies to any product without an entry in Offsets.
	Offset float64
}

// NewCoordinateTransform returns a transform with a single mounting offset
// for every product.
func NewCoordinateTransform(offsetDeg float64) *CoordinateTransform {
	return &CoordinateTransform{Offset: offsetDeg}
}

// offsetFor returns the mounting rotation for product.
func (c *CoordinateTransform) offsetFor(product l2frames.ProductType) float64 {
	if off, ok := c.Offsets[product]; ok {
		return off
	}
	return c.Offset
}

// Transform rewrites angles in place and returns points. Distances and
// intensities are untouched.
func (c *CoordinateTransform) Transform(points []l2frames.Point, product l2frames.ProductType, dir l2frames.ScanDirection) []l2frames.Point {
	off := c.offsetFor(product)
	for i := range points {
		a := points[i].Angle
		if dir == l2frames.CounterClockwise {
			a = 360 - a
		}
		points[i].Angle = wrap360(a + off)
	}
	return points
}

// wrap360 maps any angle into [0, 360).
func wrap360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

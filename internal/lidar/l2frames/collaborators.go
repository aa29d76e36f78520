package l2frames

// Transformer remaps a revolution from the sensor's native convention to
// the one requested by the caller. Implementations may return the input
// slice modified in place.
type Transformer interface {
	Transform(points []Point, product ProductType, dir ScanDirection) []Point
}

// Filter suppresses spurious returns in a transformed revolution.
// speedRaw is the current rotation speed in degrees per second.
type Filter interface {
	Filter(points []Point, speedRaw uint16) []Point
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(points []Point, product ProductType, dir ScanDirection) []Point

func (f TransformerFunc) Transform(points []Point, product ProductType, dir ScanDirection) []Point {
	return f(points, product, dir)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(points []Point, speedRaw uint16) []Point

func (f FilterFunc) Filter(points []Point, speedRaw uint16) []Point {
	return f(points, speedRaw)
}

type identityTransform struct{}

func (identityTransform) Transform(points []Point, _ ProductType, _ ScanDirection) []Point {
	return points
}

type passThroughFilter struct{}

func (passThroughFilter) Filter(points []Point, _ uint16) []Point {
	return points
}

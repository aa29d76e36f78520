package l2frames

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProductType
		wantErr bool
	}{
		{"LD06", ProductLD06, false},
		{"ld19", ProductLD19, false},
		{"LD_14P", ProductLD14P, false},
		{" ld14 ", ProductLD14, false},
		{"", ProductNoVersion, false},
		{"none", ProductNoVersion, false},
		{"LD99", ProductNoVersion, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProductType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProductType_StringRoundTrip(t *testing.T) {
	for p := ProductNoVersion; p <= ProductLD19; p++ {
		got, err := ParseProductType(p.String())
		require.NoError(t, err, p.String())
		assert.Equal(t, p, got)
	}
	assert.Equal(t, "ProductType(42)", ProductType(42).String())
}

func TestProductType_Profile(t *testing.T) {
	for p := ProductNoVersion; p <= ProductLD19; p++ {
		prof := p.Profile()
		if p == ProductLD14P {
			assert.Equal(t, 4000.0, prof.PointFrequency)
			assert.Equal(t, FilterPassThrough, prof.FilterMode)
			continue
		}
		assert.Equal(t, 2300.0, prof.PointFrequency, p.String())
		assert.Equal(t, FilterNear, prof.FilterMode, p.String())
	}
}

func TestParseScanDirection(t *testing.T) {
	for _, s := range []string{"", "cw", "Clockwise"} {
		d, err := ParseScanDirection(s)
		require.NoError(t, err)
		assert.Equal(t, Clockwise, d)
	}
	for _, s := range []string{"ccw", "CounterClockwise", "anticlockwise"} {
		d, err := ParseScanDirection(s)
		require.NoError(t, err)
		assert.Equal(t, CounterClockwise, d)
	}
	_, err := ParseScanDirection("sideways")
	assert.Error(t, err)
	assert.Equal(t, "ccw", CounterClockwise.String())
}

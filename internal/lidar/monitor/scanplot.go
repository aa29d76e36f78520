package monitor

import (
	"fmt"
	"image/color"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/LeurDeLis/lidar-ws/internal/httputil"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
	"github.com/LeurDeLis/lidar-ws/internal/security"
)

// intensityBands is the number of colour bands points are grouped into.
const intensityBands = 8

// newScanPlot builds a top-down plot of f with points grouped into
// intensity bands. Points without a return are omitted.
func newScanPlot(f l2frames.Frame) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scan %d (%s, %.2f Hz, %d points)", f.Seq, f.SensorID, f.SpeedHz(), f.ValidPoints())
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	bands := make([]plotter.XYs, intensityBands)
	maxAbs := 0.0
	for _, pt := range f.Points {
		if pt.Distance == 0 {
			continue
		}
		x, y := pt.XY()
		band := int(pt.Intensity) * intensityBands / 256
		bands[band] = append(bands[band], plotter.XY{X: x, Y: y})
		for _, v := range []float64{x, y} {
			if v < 0 {
				v = -v
			}
			if v > maxAbs {
				maxAbs = v
			}
		}
	}

	colors := generateColors(intensityBands)
	for i, pts := range bands {
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = colors[i]
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		lo := i * 256 / intensityBands
		p.Legend.Add(fmt.Sprintf("I %d-%d", lo, lo+256/intensityBands-1), s)
	}

	// Sensor origin
	origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return nil, err
	}
	origin.GlyphStyle.Color = color.Black
	origin.GlyphStyle.Radius = vg.Points(3)
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	p.Add(origin)

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad
	p.Legend.Top = true
	return p, nil
}

// WriteScanPNG renders f as a square PNG of the given size to w.
func WriteScanPNG(w io.Writer, f l2frames.Frame, size vg.Length) error {
	p, err := newScanPlot(f)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveScanPNG writes f as frame_<seq>.png in dir and returns the path.
func SaveScanPNG(f l2frames.Frame, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", f.Seq))
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	p, err := newScanPlot(f)
	if err != nil {
		return "", err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return path, nil
}

// handleScanPNG renders the latest scan as a PNG image.
// Query params:
//   - size (optional; inches, default 8, 2-20)
func (ws *WebServer) handleScanPNG(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.latestFrame()
	if !ok {
		httputil.NotFound(w, "no scan published yet")
		return
	}
	size := 8.0
	if s := r.URL.Query().Get("size"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 2 && v <= 20 {
			size = v
		}
	}
	w.Header().Set("Content-Type", "image/png")
	if err := WriteScanPNG(w, f, vg.Length(size)*vg.Inch); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
	}
}

// generateColors creates a palette of distinct colors running from blue
// (low intensity) to red.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := 0.66 * (1 - float64(i)/float64(n))
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

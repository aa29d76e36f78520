package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/LeurDeLis/lidar-ws/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleScanChart renders the latest scan as an XY scatter (HTML) coloured
// by intensity. This is a debugging-only endpoint.
// Query params:
//   - max_points (optional; default 4000) to reduce payload size
func (ws *WebServer) handleScanChart(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.latestFrame()
	if !ok {
		httputil.NotFound(w, "no scan published yet")
		return
	}

	maxPoints := 4000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(f.Points) > maxPoints {
		stride = int(math.Ceil(float64(len(f.Points)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(f.Points)/stride+1)
	maxAbs := 0.0
	for i := 0; i < len(f.Points); i += stride {
		p := f.Points[i]
		if p.Distance == 0 {
			continue
		}
		x, y := p.XY()
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, p.Intensity, p.Angle}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR Scan", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "LiDAR Scan",
			Subtitle: fmt.Sprintf("sensor=%s seq=%d points=%d stride=%d speed=%.2fHz", f.SensorID, f.Seq, len(data), stride, f.SpeedHz()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("scan", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrafficChart renders a simple bar chart of byte, packet and frame
// throughput.
func (ws *WebServer) handleTrafficChart(w http.ResponseWriter, r *http.Request) {
	snap := ws.stats.GetLatestSnapshot()
	if snap == nil {
		snap = &StatsSnapshot{Timestamp: time.Now()}
	}

	x := []string{"KB/s", "Packets/s", "Frames/s", "Points/frame", "Dropped (recent)"}
	y := []opts.BarData{
		{Value: snap.BytesPerSec / 1024},
		{Value: snap.PacketsPerSec},
		{Value: snap.FramesPerSec},
		{Value: snap.PointsPerFrame},
		{Value: snap.DroppedCount},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "LiDAR Traffic", Subtitle: snap.Timestamp.Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("traffic", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

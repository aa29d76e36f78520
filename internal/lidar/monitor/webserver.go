package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeurDeLis/lidar-ws/internal/httputil"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/lidardb"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/scanfilter"
)

//go:embed status.html
var StatusHTML embed.FS

// ScanSource is the read side of a frame processor.
type ScanSource interface {
	GetLatestFrame() l2frames.Frame
	Speed() float64
	SpeedRaw() uint16
	Timestamp() uint16
	SDKVersion() string
	ProductType() l2frames.ProductType
	ScanDirection() l2frames.ScanDirection
	PointFrequency() float64
	Stats() l2frames.ProcessorStats
}

// WebServer handles the HTTP interface for monitoring a LiDAR.
// It provides endpoints for health checks, status, the latest scan and
// debug charts.
type WebServer struct {
	address   string
	source    ScanSource
	stats     *PacketStats
	db        *lidardb.LidarDB
	near      *scanfilter.NearFilter
	exportDir string
	sensorID  string
	portName  string
	mux       *http.ServeMux
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address    string
	Source     ScanSource
	Stats      *PacketStats
	DB         *lidardb.LidarDB       // optional recorder
	NearFilter *scanfilter.NearFilter // optional, reported in status
	ExportDir  string
	SensorID   string
	PortName   string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		source:    config.Source,
		stats:     config.Stats,
		db:        config.DB,
		near:      config.NearFilter,
		exportDir: config.ExportDir,
		sensorID:  config.SensorID,
		portName:  config.PortName,
	}
	if ws.stats == nil {
		ws.stats = NewPacketStats()
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.mux,
	}
	return ws
}

// ServeMux returns the route table so callers can mount admin routes.
func (ws *WebServer) ServeMux() *http.ServeMux {
	return ws.mux
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/lidar/status", ws.handleLidarStatus)
	mux.HandleFunc("/api/lidar/scan", ws.handleLidarScan)
	mux.HandleFunc("/api/lidar/scan/export", ws.handleLidarScanExport)
	mux.HandleFunc("/api/lidar/frames", ws.handleLidarFrames)
	mux.HandleFunc("/api/lidar/frames/", ws.handleLidarFrameByID)
	mux.HandleFunc("/debug/lidar/scan", ws.handleScanChart)
	mux.HandleFunc("/debug/lidar/scan.png", ws.handleScanPNG)
	mux.HandleFunc("/debug/lidar/traffic", ws.handleTrafficChart)

	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach recorder admin routes: %v", err)
		}
	}
	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "lidar", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	st := ws.status()
	data := struct {
		HTTPAddress string
		PortName    string
		Uptime      string
		Status      LidarStatus
	}{
		HTTPAddress: ws.address,
		PortName:    ws.portName,
		Uptime:      ws.stats.GetUptime().Round(time.Second).String(),
		Status:      st,
	}

	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// LidarStatus is the body of /api/lidar/status.
type LidarStatus struct {
	SensorID       string                      `json:"sensor_id"`
	SDKVersion     string                      `json:"sdk_version"`
	ProductType    string                      `json:"product_type"`
	ScanDirection  string                      `json:"scan_direction"`
	PointFrequency float64                     `json:"point_frequency"`
	SpeedHz        float64                     `json:"speed_hz"`
	SpeedRaw       uint16                      `json:"speed_raw"`
	Timestamp      uint16                      `json:"timestamp"`
	LastFrameSeq   uint64                      `json:"last_frame_seq"`
	LastFrameSize  int                         `json:"last_frame_points"`
	Processor      l2frames.ProcessorStats     `json:"processor"`
	Traffic        *StatsSnapshot              `json:"traffic,omitempty"`
	NearFilter     *scanfilter.NearFilterStats `json:"near_filter,omitempty"`
	Recorder       *RecorderStatus             `json:"recorder,omitempty"`
}

// RecorderStatus describes the frame database when recording is enabled.
type RecorderStatus struct {
	Path          string `json:"path"`
	SchemaVersion uint   `json:"schema_version"`
	Frames        int    `json:"frames"`
	Error         string `json:"error,omitempty"`
}

func (ws *WebServer) recorderStatus() *RecorderStatus {
	rs := &RecorderStatus{Path: ws.db.Path()}
	version, _, err := ws.db.MigrateVersion()
	if err != nil {
		rs.Error = err.Error()
		return rs
	}
	rs.SchemaVersion = version
	n, err := ws.db.CountFrames(ws.sensorID)
	if err != nil {
		rs.Error = err.Error()
		return rs
	}
	rs.Frames = n
	return rs
}

func (ws *WebServer) status() LidarStatus {
	st := LidarStatus{SensorID: ws.sensorID, Traffic: ws.stats.GetLatestSnapshot()}
	if ws.near != nil {
		ns := ws.near.Stats()
		st.NearFilter = &ns
	}
	if ws.db != nil {
		st.Recorder = ws.recorderStatus()
	}
	if ws.source == nil {
		return st
	}
	f := ws.source.GetLatestFrame()
	st.SDKVersion = ws.source.SDKVersion()
	st.ProductType = ws.source.ProductType().String()
	st.ScanDirection = ws.source.ScanDirection().String()
	st.PointFrequency = ws.source.PointFrequency()
	st.SpeedHz = ws.source.Speed()
	st.SpeedRaw = ws.source.SpeedRaw()
	st.Timestamp = ws.source.Timestamp()
	st.LastFrameSeq = f.Seq
	st.LastFrameSize = len(f.Points)
	st.Processor = ws.source.Stats()
	return st
}

func (ws *WebServer) handleLidarStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.status())
}

// latestFrame returns the last published frame, or false before the first
// revolution completes.
func (ws *WebServer) latestFrame() (l2frames.Frame, bool) {
	if ws.source == nil {
		return l2frames.Frame{}, false
	}
	f := ws.source.GetLatestFrame()
	return f, len(f.Points) > 0
}

func (ws *WebServer) handleLidarScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f, ok := ws.latestFrame()
	if !ok {
		httputil.NotFound(w, "no scan published yet")
		return
	}
	httputil.WriteJSONOK(w, f)
}

// handleLidarScanExport writes the latest frame as an ASC point cloud into
// the configured export directory.
func (ws *WebServer) handleLidarScanExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.exportDir == "" {
		httputil.ServiceUnavailable(w, "no export directory configured")
		return
	}
	f, ok := ws.latestFrame()
	if !ok {
		httputil.NotFound(w, "no scan published yet")
		return
	}
	path, err := l2frames.ExportFrameASC(f, ws.exportDir)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("export failed: %v", err))
		return
	}
	log.Printf("exported frame seq=%d to %s", f.Seq, path)
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": "ok",
		"path":   path,
		"seq":    f.Seq,
		"points": len(f.Points),
	})
}

// handleLidarFrames lists recorded frames.
// Query params:
//
//	sensor_id (optional, defaults to the configured sensor)
//	limit (optional, default 20, max 500)
func (ws *WebServer) handleLidarFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.ServiceUnavailable(w, "recording is disabled")
		return
	}
	sensorID := r.URL.Query().Get("sensor_id")
	if sensorID == "" {
		sensorID = ws.sensorID
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 500 {
			httputil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	records, err := ws.db.ListRecentFrames(sensorID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list frames: %v", err))
		return
	}
	if records == nil {
		records = []lidardb.FrameRecord{}
	}
	httputil.WriteJSONOK(w, records)
}

// handleLidarFrameByID returns one recorded frame with its points from
// /api/lidar/frames/{id}.
func (ws *WebServer) handleLidarFrameByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.ServiceUnavailable(w, "recording is disabled")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/lidar/frames/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "frame id is required")
		return
	}
	record, frame, err := ws.db.GetFrame(id)
	if errors.Is(err, lidardb.ErrFrameNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get frame: %v", err))
		return
	}
	httputil.WriteJSONOK(w, struct {
		lidardb.FrameRecord
		Points []l2frames.Point `json:"points"`
	}{record, frame.Points})
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LeurDeLis/lidar-ws/internal/config"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/l1packets"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/lidardb"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/monitor"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/scanfilter"
	"github.com/LeurDeLis/lidar-ws/internal/serialmux"
	"github.com/LeurDeLis/lidar-ws/internal/timeutil"
	"github.com/LeurDeLis/lidar-ws/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to a tuning config file (.json, .yaml or .yml)")
	port          = flag.String("port", "", "Serial port to use (overrides serial_port; ignored in dev mode)")
	baud          = flag.Int("baud", 0, "Serial baud rate (overrides baud_rate)")
	product       = flag.String("product", "", "Sensor model, e.g. LD06, LD14P, LD19 (overrides product_type)")
	exportDir     = flag.String("dir", "", "Directory for exported scans; empty disables /api/lidar/scan/export")
	listen        = flag.String("listen", ":8081", "HTTP listen address")
	dbFile        = flag.String("db", "", "Path to the SQLite recording database (overrides record_db_path)")
	devMode       = flag.Bool("dev", false, "Feed the decoder from a synthetic sensor instead of a serial port")
	disableSerial = flag.Bool("disable-serial", false, "Run without a sensor; only the HTTP interface is served")
	debugMode     = flag.Bool("debug", false, "Enable verbose decoder and frame assembly logging")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

// framePollInterval is how often the frame loop checks for a published
// revolution. A revolution takes at least 50 ms at the fastest rotation.
const framePollInterval = 10 * time.Millisecond

// devChunkPackets is the number of packets the synthetic sensor delivers
// per serial chunk in dev mode.
const devChunkPackets = 8

// applyFlagOverrides copies non-empty command line values over cfg and
// validates the result.
func applyFlagOverrides(cfg *config.TuningConfig, portName, productName string, baudRate int, dbPath string) error {
	if portName != "" {
		cfg.SerialPort = &portName
	}
	if productName != "" {
		cfg.ProductType = &productName
	}
	if baudRate != 0 {
		cfg.BaudRate = &baudRate
	}
	if dbPath != "" {
		cfg.RecordDBPath = &dbPath
	}
	return cfg.Validate()
}

// newProcessor builds the decoder pipeline described by cfg. The near
// filter is nil when disabled.
func newProcessor(cfg *config.TuningConfig) (*l2frames.Processor, *scanfilter.NearFilter) {
	var (
		filter l2frames.Filter
		near   *scanfilter.NearFilter
	)
	if cfg.GetNearFilterEnabled() {
		near = scanfilter.NewNearFilter(cfg.GetNearFilterMinGroup(), float64(cfg.GetNearFilterIntensity()))
		filter = near
	}
	proc := l2frames.NewProcessor(l2frames.ProcessorConfig{
		SensorID:           cfg.GetSensorID(),
		ProductType:        cfg.GetProductType(),
		ScanDirection:      cfg.GetScanDirection(),
		Transformer:        scanfilter.NewCoordinateTransform(cfg.GetMountOffsetDeg()),
		Filter:             filter,
		GateMultiplier:     cfg.GetGateMultiplier(),
		OversizeMultiplier: cfg.GetOversizeMultiplier(),
		WatchdogMultiplier: cfg.GetWatchdogMultiplier(),
	})
	return proc, near
}

// newSyntheticSerialMux returns a mux that replays a synthetic sensor at
// roughly the real packet rate for product.
func newSyntheticSerialMux(product l2frames.ProductType) *serialmux.SerialMux[*serialmux.MockSerialPort] {
	freq := product.Profile().PointFrequency
	sensor := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{PointFrequency: freq})
	packetsPerSec := freq / l1packets.PointPerPack
	interval := time.Duration(float64(time.Second) * devChunkPackets / packetsPerSec)
	return serialmux.NewMockSerialMux(sensor, devChunkPackets*l1packets.PacketSize, interval)
}

// openSerial selects the byte source for this run.
func openSerial(cfg *config.TuningConfig, dev, disabled bool) (serialmux.SerialMuxInterface, string, error) {
	switch {
	case disabled:
		return serialmux.NewDisabledSerialMux(), "disabled", nil
	case dev:
		return newSyntheticSerialMux(cfg.GetProductType()), "synthetic", nil
	}
	path := cfg.GetSerialPort()
	sm, err := serialmux.NewSerialMuxFromFactory(serialmux.NewRealSerialPortFactory(), path, cfg.PortOptions())
	if err != nil {
		return nil, "", err
	}
	return sm, path, nil
}

// feedProcessor subscribes to sm and feeds every chunk to proc until ctx is
// cancelled or the mux closes the subscription.
func feedProcessor(ctx context.Context, sm serialmux.SerialMuxInterface, proc *l2frames.Processor, stats *monitor.PacketStats) {
	id, c := sm.Subscribe()
	defer sm.Unsubscribe(id)
	for {
		select {
		case chunk, ok := <-c:
			if !ok {
				return
			}
			before := proc.Stats().Decoder.PacketsAccepted
			proc.FeedBytes(chunk)
			stats.AddBytes(len(chunk))
			stats.AddPackets(int(proc.Stats().Decoder.PacketsAccepted - before))
		case <-ctx.Done():
			return
		}
	}
}

// frameRecorder persists published frames.
type frameRecorder interface {
	InsertFrame(f l2frames.Frame) error
	PruneFrames(sensorID string, keep int) (int64, error)
}

// recordPolicy controls which published frames are stored and how many
// are retained per sensor. Zero Every records nothing; zero Keep never
// prunes.
type recordPolicy struct {
	Every int
	Keep  int
}

// frameLoop drains published revolutions into stats and records frames
// according to policy. A nil recorder disables recording.
func frameLoop(ctx context.Context, proc *l2frames.Processor, stats *monitor.PacketStats, rec frameRecorder, policy recordPolicy, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var published int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, ok := proc.TakeFrame()
			if !ok {
				continue
			}
			stats.AddFrame(len(f.Points))
			published++
			if rec == nil || policy.Every <= 0 || published%policy.Every != 0 {
				continue
			}
			if err := rec.InsertFrame(f); err != nil {
				log.Printf("failed to record frame seq=%d: %v", f.Seq, err)
				continue
			}
			if policy.Keep <= 0 {
				continue
			}
			if _, err := rec.PruneFrames(f.SensorID, policy.Keep); err != nil {
				log.Printf("failed to prune recorded frames: %v", err)
			}
		}
	}
}

// statsLoop logs throughput every interval, folding in chunks the serial
// mux dropped for slow subscribers.
func statsLoop(ctx context.Context, sm serialmux.SerialMuxInterface, stats *monitor.PacketStats, clock timeutil.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	var lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			dropped := sm.Stats().ChunksDropped
			for ; lastDropped < dropped; lastDropped++ {
				stats.AddDropped()
			}
			stats.LogStats()
		}
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ldlidar %s\n", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if err := applyFlagOverrides(cfg, *port, *product, *baud, *dbFile); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	l2frames.SetLogWriters(os.Stderr, nil, nil)
	l1packets.SetLogWriters(os.Stderr, nil, nil)
	if *debugMode {
		l2frames.SetDebugLogger(os.Stderr)
		l1packets.SetLogWriters(os.Stderr, os.Stderr, nil)
	}

	log.Printf("ldlidar %s, SDK %s, sensor %s (%s, %s)", version.Version, l2frames.SDKVersion,
		cfg.GetSensorID(), cfg.GetProductType(), cfg.GetScanDirection())

	lidarSerial, portName, err := openSerial(cfg, *devMode, *disableSerial)
	if err != nil {
		log.Fatalf("failed to open serial port: %v", err)
	}
	defer lidarSerial.Close()
	log.Printf("reading from %s", portName)

	var ldb *lidardb.LidarDB
	if path := cfg.GetRecordDBPath(); path != "" {
		ldb, err = lidardb.NewLidarDB(path)
		if err != nil {
			log.Fatalf("failed to open recording database: %v", err)
		}
		defer ldb.Close()
		log.Printf("recording every %d frames to %s, keeping %d", cfg.GetRecordEvery(), path, cfg.GetRecordKeep())
	}

	clock := timeutil.RealClock{}
	proc, near := newProcessor(cfg)
	stats := monitor.NewPacketStatsWithClock(clock)

	// Create a wait group for the serial monitor, decoder, frame, stats and
	// HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lidarSerial.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		feedProcessor(ctx, lidarSerial, proc, stats)
		log.Print("decoder routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var rec frameRecorder
		if ldb != nil {
			rec = ldb
		}
		policy := recordPolicy{Every: cfg.GetRecordEvery(), Keep: cfg.GetRecordKeep()}
		frameLoop(ctx, proc, stats, rec, policy, framePollInterval)
		log.Print("frame routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		statsLoop(ctx, lidarSerial, stats, clock, cfg.GetStatsInterval())
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:    *listen,
			Source:     proc,
			Stats:      stats,
			DB:         ldb,
			NearFilter: near,
			ExportDir:  *exportDir,
			SensorID:   cfg.GetSensorID(),
			PortName:   portName,
		})
		lidarSerial.AttachAdminRoutes(ws.ServeMux())
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

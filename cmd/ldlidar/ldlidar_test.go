package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeurDeLis/lidar-ws/internal/config"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/l1packets"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/lidardb"
	"github.com/LeurDeLis/lidar-ws/internal/lidar/monitor"
	"github.com/LeurDeLis/lidar-ws/internal/monitoring"
	"github.com/LeurDeLis/lidar-ws/internal/serialmux"
	"github.com/LeurDeLis/lidar-ws/internal/timeutil"
)

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.EmptyTuningConfig()
	require.NoError(t, applyFlagOverrides(cfg, "/dev/ttyS3", "ld14p", 115200, "rec.db"))

	assert.Equal(t, "/dev/ttyS3", cfg.GetSerialPort())
	assert.Equal(t, l2frames.ProductLD14P, cfg.GetProductType())
	assert.Equal(t, 115200, cfg.PortOptions().BaudRate)
	assert.Equal(t, "rec.db", cfg.GetRecordDBPath())
}

func TestApplyFlagOverridesKeepsConfigValues(t *testing.T) {
	portName, productName := "/dev/ttyAMA0", "LD19"
	cfg := &config.TuningConfig{SerialPort: &portName, ProductType: &productName}
	require.NoError(t, applyFlagOverrides(cfg, "", "", 0, ""))

	assert.Equal(t, "/dev/ttyAMA0", cfg.GetSerialPort())
	assert.Equal(t, l2frames.ProductLD19, cfg.GetProductType())
	assert.Equal(t, "", cfg.GetRecordDBPath())
}

func TestApplyFlagOverridesRejectsInvalid(t *testing.T) {
	assert.Error(t, applyFlagOverrides(config.EmptyTuningConfig(), "", "LD99", 0, ""))
	assert.Error(t, applyFlagOverrides(config.EmptyTuningConfig(), "", "", 1234, ""))
}

func TestNewProcessorFromConfig(t *testing.T) {
	productName, direction := "LD14P", "ccw"
	cfg := &config.TuningConfig{ProductType: &productName, ScanDirection: &direction}
	proc, near := newProcessor(cfg)

	require.NotNil(t, near)
	assert.Equal(t, 3, near.MinGroupSize)
	assert.Equal(t, l2frames.ProductLD14P, proc.ProductType())
	assert.Equal(t, l2frames.CounterClockwise, proc.ScanDirection())
	assert.Equal(t, float64(l2frames.LD14PPointFrequency), proc.PointFrequency())
	assert.Equal(t, "ldlidar", proc.SensorID())
}

func TestNewProcessorPublishesRevolution(t *testing.T) {
	proc, _ := newProcessor(config.EmptyTuningConfig())
	stream := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{SpeedRaw: 1800}).Packets(45)

	require.Equal(t, 1, proc.FeedBytes(stream))
	f, ok := proc.TakeFrame()
	require.True(t, ok)
	assert.NotEmpty(t, f.Points)
	for i := 1; i < len(f.Points); i++ {
		assert.LessOrEqual(t, f.Points[i-1].Angle, f.Points[i].Angle)
	}
}

func TestOpenSerialModes(t *testing.T) {
	cfg := config.EmptyTuningConfig()

	sm, name, err := openSerial(cfg, false, true)
	require.NoError(t, err)
	assert.Equal(t, "disabled", name)
	assert.IsType(t, &serialmux.DisabledSerialMux{}, sm)
	require.NoError(t, sm.Close())

	sm, name, err = openSerial(cfg, true, false)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", name)
	require.NoError(t, sm.Close())
}

func TestFeedProcessor(t *testing.T) {
	stream := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{SpeedRaw: 1800}).Packets(45)
	sm := serialmux.NewMockSerialMux(bytes.NewReader(stream), 5*l1packets.PacketSize, time.Millisecond)
	defer sm.Close()

	proc, _ := newProcessor(config.EmptyTuningConfig())
	stats := monitor.NewPacketStats()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		feedProcessor(ctx, sm, proc, stats)
	}()
	require.Eventually(t, func() bool { return sm.Stats().Subscribers == 1 }, time.Second, time.Millisecond)

	require.NoError(t, sm.Monitor(ctx))
	require.Eventually(t, func() bool {
		return proc.Stats().Decoder.PacketsAccepted == 45
	}, 2*time.Second, time.Millisecond)

	cancel()
	wg.Wait()

	interval := stats.GetAndReset()
	assert.Equal(t, int64(len(stream)), interval.Bytes)
	assert.Equal(t, int64(45), interval.Packets)
	assert.Equal(t, uint64(1), proc.Stats().Assembler.FramesPublished)
}

type fakeRecorder struct {
	mu     sync.Mutex
	seqs   []uint64
	failOn uint64
	prunes []int
}

func (r *fakeRecorder) InsertFrame(f l2frames.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Seq == r.failOn {
		return errors.New("disk full")
	}
	r.seqs = append(r.seqs, f.Seq)
	return nil
}

// PruneFrames keeps the newest keep sequences and records the call.
func (r *fakeRecorder) PruneFrames(sensorID string, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prunes = append(r.prunes, keep)
	if len(r.seqs) <= keep {
		return 0, nil
	}
	removed := len(r.seqs) - keep
	r.seqs = append([]uint64(nil), r.seqs[removed:]...)
	return int64(removed), nil
}

func (r *fakeRecorder) pruneCalls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.prunes...)
}

func (r *fakeRecorder) recorded() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...)
}

// feedRevolutions publishes n frames, waiting for the frame loop to take
// each one before feeding the next.
func feedRevolutions(t *testing.T, proc *l2frames.Processor, n int) {
	t.Helper()
	sensor := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{SpeedRaw: 1800})
	published := 0
	for published < n {
		published += proc.FeedBytes(sensor.Packets(1))
		require.Eventually(t, func() bool { return !proc.IsFrameReady() }, time.Second, time.Millisecond)
	}
}

func TestFrameLoopRecordsEveryNth(t *testing.T) {
	proc, _ := newProcessor(config.EmptyTuningConfig())
	stats := monitor.NewPacketStats()
	rec := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		frameLoop(ctx, proc, stats, rec, recordPolicy{Every: 2}, time.Millisecond)
	}()

	feedRevolutions(t, proc, 5)
	cancel()
	<-done

	assert.Equal(t, []uint64{2, 4}, rec.recorded())
	assert.Len(t, stats.GetAndReset().FramePoints, 5)
	assert.Empty(t, rec.pruneCalls(), "zero keep never prunes")
}

func TestFrameLoopPrunesAfterInsert(t *testing.T) {
	proc, _ := newProcessor(config.EmptyTuningConfig())
	rec := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		frameLoop(ctx, proc, monitor.NewPacketStats(), rec, recordPolicy{Every: 1, Keep: 2}, time.Millisecond)
	}()

	feedRevolutions(t, proc, 4)
	cancel()
	<-done

	assert.Equal(t, []uint64{3, 4}, rec.recorded())
	assert.Equal(t, []int{2, 2, 2, 2}, rec.pruneCalls())
}

func TestFrameLoopBoundsRecorderDatabase(t *testing.T) {
	ldb, err := lidardb.NewLidarDB(filepath.Join(t.TempDir(), "rec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })

	proc, _ := newProcessor(config.EmptyTuningConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		frameLoop(ctx, proc, monitor.NewPacketStats(), ldb, recordPolicy{Every: 1, Keep: 3}, time.Millisecond)
	}()

	feedRevolutions(t, proc, 6)
	require.Eventually(t, func() bool {
		records, err := ldb.ListRecentFrames("", 10)
		return err == nil && len(records) == 3 && records[0].Seq == 6
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	n, err := ldb.CountFrames("ldlidar")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFrameLoopContinuesAfterRecordError(t *testing.T) {
	proc, _ := newProcessor(config.EmptyTuningConfig())
	rec := &fakeRecorder{failOn: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		frameLoop(ctx, proc, monitor.NewPacketStats(), rec, recordPolicy{Every: 1, Keep: 10}, time.Millisecond)
	}()

	feedRevolutions(t, proc, 3)
	cancel()
	<-done

	assert.Equal(t, []uint64{2, 3}, rec.recorded())
	assert.Equal(t, []int{10, 10}, rec.pruneCalls(), "failed inserts are not followed by a prune")
}

func TestFrameLoopWithoutRecorder(t *testing.T) {
	proc, _ := newProcessor(config.EmptyTuningConfig())
	stats := monitor.NewPacketStats()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		frameLoop(ctx, proc, stats, nil, recordPolicy{Every: 1, Keep: 1}, time.Millisecond)
	}()

	feedRevolutions(t, proc, 2)
	cancel()
	<-done

	assert.Len(t, stats.GetAndReset().FramePoints, 2)
}

func TestStatsLoopLogs(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()

	var mu sync.Mutex
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	stats := monitor.NewPacketStatsWithClock(clock)
	stats.AddBytes(4700)
	stats.AddPackets(100)

	sm := serialmux.NewDisabledSerialMux()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		statsLoop(ctx, sm, stats, clock, 10*time.Second)
	}()

	// The ticker is created inside the loop, so keep advancing until it
	// has been registered and fired.
	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Second)
		mu.Lock()
		defer mu.Unlock()
		return len(lines) > 0
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, lines[0], "LiDAR stats (/sec)")
	assert.Contains(t, lines[0], "packets")
	require.NotNil(t, stats.GetLatestSnapshot())
}

package monitor

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/LeurDeLis/lidar-ws/internal/monitoring"
	"github.com/LeurDeLis/lidar-ws/internal/timeutil"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	BytesPerSec    float64   `json:"bytes_per_sec"`
	PacketsPerSec  float64   `json:"packets_per_sec"`
	FramesPerSec   float64   `json:"frames_per_sec"`
	PointsPerFrame float64   `json:"points_per_frame"`
	PointsStdDev   float64   `json:"points_stddev"`
	DroppedCount   int64     `json:"dropped_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// IntervalStats holds the raw counters accumulated since the last reset.
type IntervalStats struct {
	Bytes       int64
	Packets     int64
	Dropped     int64
	FramePoints []float64
	Duration    time.Duration
}

// PacketStats tracks byte, packet and frame throughput with thread-safe
// operations.
type PacketStats struct {
	mu             sync.Mutex
	clock          timeutil.Clock
	byteCount      int64
	packetCount    int64
	droppedCount   int64
	framePoints    []float64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	return NewPacketStatsWithClock(timeutil.RealClock{})
}

// NewPacketStatsWithClock creates a PacketStats driven by clock.
func NewPacketStatsWithClock(clock timeutil.Clock) *PacketStats {
	now := clock.Now()
	return &PacketStats{
		clock:     clock,
		lastReset: now,
		startTime: now,
	}
}

// AddBytes records a chunk read from the transport.
func (ps *PacketStats) AddBytes(n int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.byteCount += int64(n)
}

// AddPackets records n packets accepted by the decoder.
func (ps *PacketStats) AddPackets(n int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount += int64(n)
}

// AddDropped increments the dropped chunk count
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddFrame records one published frame of the given size.
func (ps *PacketStats) AddFrame(points int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.framePoints = append(ps.framePoints, float64(points))
}

// GetAndReset returns current counters and resets them
func (ps *PacketStats) GetAndReset() IntervalStats {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	out := IntervalStats{
		Bytes:       ps.byteCount,
		Packets:     ps.packetCount,
		Dropped:     ps.droppedCount,
		FramePoints: ps.framePoints,
		Duration:    now.Sub(ps.lastReset),
	}

	ps.byteCount = 0
	ps.packetCount = 0
	ps.droppedCount = 0
	ps.framePoints = nil
	ps.lastReset = now
	return out
}

// Snapshot converts interval counters into rates.
func (s IntervalStats) Snapshot(at time.Time) StatsSnapshot {
	snap := StatsSnapshot{DroppedCount: s.Dropped, Timestamp: at}
	secs := s.Duration.Seconds()
	if secs > 0 {
		snap.BytesPerSec = float64(s.Bytes) / secs
		snap.PacketsPerSec = float64(s.Packets) / secs
		snap.FramesPerSec = float64(len(s.FramePoints)) / secs
	}
	switch len(s.FramePoints) {
	case 0:
	case 1:
		snap.PointsPerFrame = s.FramePoints[0]
	default:
		snap.PointsPerFrame, snap.PointsStdDev = stat.MeanStdDev(s.FramePoints, nil)
	}
	return snap
}

// LogStats logs formatted statistics and stores a snapshot for the web
// interface. Idle intervals are not logged.
func (ps *PacketStats) LogStats() {
	interval := ps.GetAndReset()
	if interval.Bytes == 0 && interval.Dropped == 0 {
		return
	}
	snap := interval.Snapshot(ps.clock.Now())

	ps.mu.Lock()
	ps.latestSnapshot = &snap
	ps.mu.Unlock()

	logMsg := fmt.Sprintf("LiDAR stats (/sec): %s bytes, %.1f packets, %.2f frames",
		FormatWithCommas(int64(snap.BytesPerSec)), snap.PacketsPerSec, snap.FramesPerSec)
	if len(interval.FramePoints) > 0 {
		logMsg += fmt.Sprintf(", %.0f±%.1f points/frame", snap.PointsPerFrame, snap.PointsStdDev)
	}
	if interval.Dropped > 0 {
		logMsg += fmt.Sprintf(", %d chunks dropped", interval.Dropped)
	}
	monitoring.Logf("%s", logMsg)
}

// GetUptime returns the time since the stats were created
func (ps *PacketStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.clock.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for web interface
func (ps *PacketStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}

package l2frames

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l1packets"
	"github.com/LeurDeLis/lidar-ws/internal/timeutil"
)

// Empirical multipliers used by the sensor vendor. They have no documented
// derivation and are exposed as tunables.
const (
	// DefaultGateMultiplier bounds the angular sweep a single packet may
	// claim relative to speed × points-per-packet / point frequency.
	DefaultGateMultiplier = 1.6
	// DefaultOversizeMultiplier rejects a revolution carrying more points
	// than this multiple of one expected revolution.
	DefaultOversizeMultiplier = 1.4
	// DefaultWatchdogMultiplier truncates the buffer once this many
	// revolutions' worth of points accumulate without a boundary.
	DefaultWatchdogMultiplier = 2.0
)

// A boundary is declared when the angle wraps from above boundaryHigh to
// below boundaryLow.
const (
	boundaryLow  = 20.0
	boundaryHigh = 340.0
)

// AssemblerConfig configures an Assembler. Zero values select defaults.
type AssemblerConfig struct {
	SensorID      string
	ProductType   ProductType
	ScanDirection ScanDirection
	Transformer   Transformer    // nil means identity
	Filter        Filter         // nil means pass-through
	Clock         timeutil.Clock // nil means the real clock
	Store         *FrameStore    // nil allocates a new store

	GateMultiplier     float64
	OversizeMultiplier float64
	WatchdogMultiplier float64
}

// AssemblerStats is a point-in-time copy of the assembler counters.
type AssemblerStats struct {
	PacketsAdded        uint64 `json:"packets_added"`
	GateRejects         uint64 `json:"gate_rejects"`
	FramesPublished     uint64 `json:"frames_published"`
	OversizeRejects     uint64 `json:"oversize_rejects"`
	WatchdogTruncations uint64 `json:"watchdog_truncations"`
	SpeedClears         uint64 `json:"speed_clears"`
	EmptyRevolutions    uint64 `json:"empty_revolutions"`
	Buffered            int    `json:"buffered"`
}

// Assembler turns accepted packets into published revolutions.
//
// AddPacket, Assemble and Reset must be called from a single producer
// goroutine. Speed, Timestamp, Stats and the configuration setters are safe
// from any goroutine.
type Assembler struct {
	store       *FrameStore
	clock       timeutil.Clock
	sensorID    string
	gateMul     float64
	oversizeMul float64
	watchdogMul float64

	cfgMu       sync.RWMutex
	product     ProductType
	direction   ScanDirection
	profile     ProductProfile
	transformer Transformer
	filter      Filter

	// producer-owned
	buf []Point
	seq uint64

	speed     atomic.Uint32
	timestamp atomic.Uint32
	buffered  atomic.Int64

	packetsAdded        atomic.Uint64
	gateRejects         atomic.Uint64
	framesPublished     atomic.Uint64
	oversizeRejects     atomic.Uint64
	watchdogTruncations atomic.Uint64
	speedClears         atomic.Uint64
	emptyRevolutions    atomic.Uint64
}

// NewAssembler creates an assembler with defaults applied.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.GateMultiplier <= 0 {
		cfg.GateMultiplier = DefaultGateMultiplier
	}
	if cfg.OversizeMultiplier <= 0 {
		cfg.OversizeMultiplier = DefaultOversizeMultiplier
	}
	if cfg.WatchdogMultiplier <= 0 {
		cfg.WatchdogMultiplier = DefaultWatchdogMultiplier
	}
	if cfg.Transformer == nil {
		cfg.Transformer = identityTransform{}
	}
	if cfg.Filter == nil {
		cfg.Filter = passThroughFilter{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Store == nil {
		cfg.Store = NewFrameStore()
	}

	return &Assembler{
		store:       cfg.Store,
		clock:       cfg.Clock,
		sensorID:    cfg.SensorID,
		gateMul:     cfg.GateMultiplier,
		oversizeMul: cfg.OversizeMultiplier,
		watchdogMul: cfg.WatchdogMultiplier,
		product:     cfg.ProductType,
		direction:   cfg.ScanDirection,
		profile:     cfg.ProductType.Profile(),
		transformer: cfg.Transformer,
		filter:      cfg.Filter,
	}
}

// Store returns the frame store revolutions are published to.
func (a *Assembler) Store() *FrameStore {
	return a.store
}

// SetProductType selects the model and resolves its profile.
func (a *Assembler) SetProductType(p ProductType) {
	a.cfgMu.Lock()
	a.product = p
	a.profile = p.Profile()
	a.cfgMu.Unlock()
	diagf("product type set to %s (point frequency %.0f Hz, filter %s)", p, p.Profile().PointFrequency, p.Profile().FilterMode)
}

// SetScanDirection selects the output angular convention.
func (a *Assembler) SetScanDirection(d ScanDirection) {
	a.cfgMu.Lock()
	a.direction = d
	a.cfgMu.Unlock()
}

// ProductType returns the configured model.
func (a *Assembler) ProductType() ProductType {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.product
}

// ScanDirection returns the configured output convention.
func (a *Assembler) ScanDirection() ScanDirection {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.direction
}

// Profile returns the resolved constants for the configured model.
func (a *Assembler) Profile() ProductProfile {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.profile
}

// SpeedRaw returns the rotation speed of the last accepted packet in
// degrees per second.
func (a *Assembler) SpeedRaw() uint16 {
	return uint16(a.speed.Load())
}

// Speed returns the rotation speed in revolutions per second.
func (a *Assembler) Speed() float64 {
	return float64(a.speed.Load()) / 360.0
}

// Timestamp returns the sensor timestamp of the last accepted packet.
func (a *Assembler) Timestamp() uint16 {
	return uint16(a.timestamp.Load())
}

// AddPacket runs the plausibility gate on pkt and, when it passes, records
// the packet's speed and timestamp and appends its interpolated points to
// the accumulation buffer. Rejected packets change nothing.
func (a *Assembler) AddPacket(pkt l1packets.RawPacket) bool {
	profile := a.Profile()

	diff := (int(pkt.EndAngle)/100 - int(pkt.StartAngle)/100 + 360) % 360
	limit := float64(pkt.Speed) * l1packets.PointPerPack / profile.PointFrequency * a.gateMul
	if float64(diff) > limit {
		a.gateRejects.Add(1)
		tracef("gate: packet sweeps %d deg, limit %.2f deg at speed %d", diff, limit, pkt.Speed)
		return false
	}

	a.speed.Store(uint32(pkt.Speed))
	a.timestamp.Store(uint32(pkt.Timestamp))

	span := (uint32(pkt.EndAngle) + 36000 - uint32(pkt.StartAngle)) % 36000
	// Integer division before scaling matches the device firmware.
	step := float64(span/(l1packets.PointPerPack-1)) / 100.0
	start := float64(pkt.StartAngle) / 100.0
	for i, pp := range pkt.Points {
		angle := start + float64(i)*step
		if angle >= 360 {
			angle -= 360
		}
		a.buf = append(a.buf, Point{Angle: angle, Distance: pp.Distance, Intensity: pp.Intensity})
	}
	a.packetsAdded.Add(1)
	a.buffered.Store(int64(len(a.buf)))
	return true
}

// Assemble scans the accumulation buffer for a revolution boundary. On a
// valid boundary the revolution is transformed, filtered, sorted and
// published to the store, and the frame is returned with ok true. Every
// failure outcome is reported as ok false and leaves the buffer bounded.
func (a *Assembler) Assemble() (Frame, bool) {
	speedRaw := a.speed.Load()
	if speedRaw == 0 {
		if len(a.buf) > 0 {
			a.speedClears.Add(1)
			diagf("speed is zero, discarding %d buffered points", len(a.buf))
		}
		a.dropPrefix(len(a.buf))
		return Frame{}, false
	}
	speedHz := float64(speedRaw) / 360.0

	a.cfgMu.RLock()
	profile, product, direction := a.profile, a.product, a.direction
	transformer, filter := a.transformer, a.filter
	a.cfgMu.RUnlock()

	var lastAngle float64
	count := 0
	for _, p := range a.buf {
		if p.Angle < boundaryLow && lastAngle > boundaryHigh {
			if float64(count)*speedHz > profile.PointFrequency*a.oversizeMul {
				a.oversizeRejects.Add(1)
				diagf("revolution rejected: %d points at %.2f Hz exceeds %.0f x %.2f", count, speedHz, profile.PointFrequency, a.oversizeMul)
				a.dropPrefix(count)
				return Frame{}, false
			}

			rev := make([]Point, count)
			copy(rev, a.buf[:count])
			rev = transformer.Transform(rev, product, direction)
			if profile.FilterMode == FilterNear {
				rev = filter.Filter(rev, uint16(speedRaw))
			}
			sort.SliceStable(rev, func(i, j int) bool { return rev[i].Angle < rev[j].Angle })

			if len(rev) > 0 {
				f := a.publish(rev, uint16(speedRaw))
				a.dropPrefix(count)
				return f, true
			}
			a.emptyRevolutions.Add(1)
			tracef("revolution of %d points filtered to nothing", count)
		}

		count++
		lastAngle = p.Angle

		if float64(count)*speedHz > profile.PointFrequency*a.watchdogMul {
			a.watchdogTruncations.Add(1)
			opsf("no revolution boundary after %d points at %.2f Hz, truncating buffer", count, speedHz)
			a.dropPrefix(count)
			return Frame{}, false
		}
	}
	return Frame{}, false
}

func (a *Assembler) publish(points []Point, speedRaw uint16) Frame {
	a.seq++
	f := Frame{
		ID:          uuid.NewString(),
		Seq:         a.seq,
		SensorID:    a.sensorID,
		Points:      points,
		SpeedRaw:    speedRaw,
		Timestamp:   uint16(a.timestamp.Load()),
		PublishedAt: a.clock.Now(),
	}
	a.store.SetFrame(f)
	a.framesPublished.Add(1)
	tracef("published frame seq=%d points=%d speed=%d", f.Seq, len(points), speedRaw)
	return f
}

// dropPrefix removes the first n points, or everything when n covers the
// whole buffer.
func (a *Assembler) dropPrefix(n int) {
	if n >= len(a.buf) {
		a.buf = a.buf[:0]
	} else {
		a.buf = a.buf[:copy(a.buf, a.buf[n:])]
	}
	a.buffered.Store(int64(len(a.buf)))
}

// Buffered returns the number of points waiting for a boundary.
func (a *Assembler) Buffered() int {
	return int(a.buffered.Load())
}

// Reset drops buffered points and forgets the last speed and timestamp.
func (a *Assembler) Reset() {
	a.dropPrefix(len(a.buf))
	a.speed.Store(0)
	a.timestamp.Store(0)
}

// Stats returns a snapshot of the assembler counters.
func (a *Assembler) Stats() AssemblerStats {
	return AssemblerStats{
		PacketsAdded:        a.packetsAdded.Load(),
		GateRejects:         a.gateRejects.Load(),
		FramesPublished:     a.framesPublished.Load(),
		OversizeRejects:     a.oversizeRejects.Load(),
		WatchdogTruncations: a.watchdogTruncations.Load(),
		SpeedClears:         a.speedClears.Load(),
		EmptyRevolutions:    a.emptyRevolutions.Load(),
		Buffered:            a.Buffered(),
	}
}

package l1packets

import (
	"math"
	"sync"
)

// SyntheticSensorConfig describes the simulated device.
type SyntheticSensorConfig struct {
	SpeedRaw       uint16  // degrees per second (default 3600, i.e. 10 Hz)
	PointFrequency float64 // samples per second (default 2300)
	StartAngle     float64 // degrees, where the first packet begins

	// Distance returns the range in millimetres for a given angle in
	// degrees. Defaults to a rounded rectangular room.
	Distance func(angle float64) uint16
	// Intensity returns the return strength for a given angle. Defaults to
	// a constant 200.
	Intensity func(angle float64) uint8
}

// SyntheticSensor emits a continuous, checksum-valid packet stream for a
// sensor spinning at constant speed. It implements io.Reader so it can stand
// in for a serial port.
type SyntheticSensor struct {
	mu        sync.Mutex
	cfg       SyntheticSensorConfig
	angle     float64 // start angle of the next packet, degrees
	timestamp float64 // milliseconds
	pending   []byte
}

// NewSyntheticSensor creates a synthetic sensor with defaults applied.
func NewSyntheticSensor(cfg SyntheticSensorConfig) *SyntheticSensor {
	if cfg.SpeedRaw == 0 {
		cfg.SpeedRaw = 3600
	}
	if cfg.PointFrequency <= 0 {
		cfg.PointFrequency = 2300
	}
	if cfg.Distance == nil {
		cfg.Distance = roomDistance
	}
	if cfg.Intensity == nil {
		cfg.Intensity = func(float64) uint8 { return 200 }
	}
	return &SyntheticSensor{
		cfg:   cfg,
		angle: wrapDegrees(cfg.StartAngle),
	}
}

// Resolution returns the angular spacing between consecutive samples.
func (s *SyntheticSensor) Resolution() float64 {
	return float64(s.cfg.SpeedRaw) / s.cfg.PointFrequency
}

// PacketsPerRevolution returns how many packets cover one full turn.
func (s *SyntheticSensor) PacketsPerRevolution() int {
	return int(math.Ceil(360.0 / (s.Resolution() * PointPerPack)))
}

// NextPacket returns the next packet in the stream.
func (s *SyntheticSensor) NextPacket() RawPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextPacketLocked()
}

func (s *SyntheticSensor) nextPacketLocked() RawPacket {
	res := s.Resolution()
	start := s.angle
	end := wrapDegrees(start + res*(PointPerPack-1))

	pkt := RawPacket{
		Header:     PacketHeader,
		VerLen:     PacketVerLen,
		Speed:      s.cfg.SpeedRaw,
		StartAngle: centiDegrees(start),
		EndAngle:   centiDegrees(end),
		Timestamp:  uint16(math.Mod(s.timestamp, 30000)),
	}
	for i := range pkt.Points {
		a := wrapDegrees(start + res*float64(i))
		pkt.Points[i] = PackedPoint{
			Distance:  s.cfg.Distance(a),
			Intensity: s.cfg.Intensity(a),
		}
	}

	s.angle = wrapDegrees(start + res*PointPerPack)
	s.timestamp += PointPerPack / s.cfg.PointFrequency * 1000
	return pkt
}

// Packets returns the next n packets encoded back to back.
func (s *SyntheticSensor) Packets(n int) []byte {
	out := make([]byte, 0, n*PacketSize)
	for i := 0; i < n; i++ {
		out, _ = s.NextPacket().AppendBinary(out)
	}
	return out
}

// Read fills p with the encoded stream. It never returns an error.
func (s *SyntheticSensor) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) < len(p) {
		s.pending, _ = s.nextPacketLocked().AppendBinary(s.pending)
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func centiDegrees(deg float64) uint16 {
	return uint16(math.Round(wrapDegrees(deg)*100)) % 36000
}

func wrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// roomDistance models a 6m x 4m room with the sensor off-centre.
func roomDistance(angle float64) uint16 {
	const halfW, halfH = 3000.0, 2000.0
	rad := angle * math.Pi / 180
	c, s := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
	d := math.Inf(1)
	if c > 1e-9 {
		d = halfW / c
	}
	if s > 1e-9 {
		d = math.Min(d, halfH/s)
	}
	return uint16(math.Min(d, 12000))
}

package l2frames

import (
	"sync"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l1packets"
	"github.com/LeurDeLis/lidar-ws/internal/timeutil"
)

// ProcessorConfig configures a Processor. Zero values select defaults.
type ProcessorConfig struct {
	SensorID      string
	ProductType   ProductType
	ScanDirection ScanDirection
	Transformer   Transformer
	Filter        Filter
	Clock         timeutil.Clock

	GateMultiplier     float64
	OversizeMultiplier float64
	WatchdogMultiplier float64
}

// ProcessorStats combines the decoder and assembler counters.
type ProcessorStats struct {
	Decoder   l1packets.DecoderStats `json:"decoder"`
	Assembler AssemblerStats         `json:"assembler"`
}

// Processor decodes a sensor byte stream into published revolutions. It is
// the entry point for one sensor: a transport goroutine calls FeedBytes
// while any number of consumers poll the frame accessors.
type Processor struct {
	feedMu    sync.Mutex // serialises FeedBytes and Reset
	decoder   *l1packets.Decoder
	assembler *Assembler
	store     *FrameStore
	sensorID  string
}

// NewProcessor creates a processor for one sensor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	store := NewFrameStore()
	return &Processor{
		decoder: l1packets.NewDecoder(),
		assembler: NewAssembler(AssemblerConfig{
			SensorID:           cfg.SensorID,
			ProductType:        cfg.ProductType,
			ScanDirection:      cfg.ScanDirection,
			Transformer:        cfg.Transformer,
			Filter:             cfg.Filter,
			Clock:              cfg.Clock,
			Store:              store,
			GateMultiplier:     cfg.GateMultiplier,
			OversizeMultiplier: cfg.OversizeMultiplier,
			WatchdogMultiplier: cfg.WatchdogMultiplier,
		}),
		store:    store,
		sensorID: cfg.SensorID,
	}
}

// FeedBytes consumes a chunk of raw transport bytes. Chunks may split
// packets anywhere. Every accepted packet is offered to the assembler and
// followed by a boundary scan, so the frames produced do not depend on how
// the transport chunks the stream. It returns the number of frames
// published while consuming data.
func (p *Processor) FeedBytes(data []byte) int {
	p.feedMu.Lock()
	defer p.feedMu.Unlock()

	published := 0
	for _, b := range data {
		if !p.decoder.Feed(b) {
			continue
		}
		if !p.assembler.AddPacket(p.decoder.Packet()) {
			continue
		}
		if _, ok := p.assembler.Assemble(); ok {
			published++
		}
	}
	return published
}

// Write implements io.Writer so a Processor can be the sink of io.Copy.
func (p *Processor) Write(data []byte) (int, error) {
	p.FeedBytes(data)
	return len(data), nil
}

// IsFrameReady reports whether a frame was published since the last reset.
func (p *Processor) IsFrameReady() bool {
	return p.store.IsFrameReady()
}

// GetLatestFrame returns the last published frame. It does not clear the
// ready flag.
func (p *Processor) GetLatestFrame() Frame {
	return p.store.GetFrame()
}

// ResetFrameReady clears the ready flag.
func (p *Processor) ResetFrameReady() {
	p.store.ResetFrameReady()
}

// TakeFrame returns the latest frame and clears the ready flag atomically.
func (p *Processor) TakeFrame() (Frame, bool) {
	return p.store.Take()
}

// Store exposes the underlying frame store.
func (p *Processor) Store() *FrameStore {
	return p.store
}

// SetProductType selects the sensor model.
func (p *Processor) SetProductType(t ProductType) {
	p.assembler.SetProductType(t)
}

// SetScanDirection selects the output angular convention.
func (p *Processor) SetScanDirection(d ScanDirection) {
	p.assembler.SetScanDirection(d)
}

// ProductType returns the configured sensor model.
func (p *Processor) ProductType() ProductType {
	return p.assembler.ProductType()
}

// ScanDirection returns the configured output convention.
func (p *Processor) ScanDirection() ScanDirection {
	return p.assembler.ScanDirection()
}

// PointFrequency returns the sample rate of the configured model.
func (p *Processor) PointFrequency() float64 {
	return p.assembler.Profile().PointFrequency
}

// Speed returns the current rotation speed in Hz.
func (p *Processor) Speed() float64 {
	return p.assembler.Speed()
}

// SpeedRaw returns the current rotation speed in degrees per second.
func (p *Processor) SpeedRaw() uint16 {
	return p.assembler.SpeedRaw()
}

// Timestamp returns the sensor timestamp of the last accepted packet.
func (p *Processor) Timestamp() uint16 {
	return p.assembler.Timestamp()
}

// SDKVersion returns the protocol SDK revision.
func (p *Processor) SDKVersion() string {
	return SDKVersion
}

// SensorID returns the configured sensor identifier.
func (p *Processor) SensorID() string {
	return p.sensorID
}

// Stats returns a snapshot of the decode and assembly counters.
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Decoder:   p.decoder.Stats(),
		Assembler: p.assembler.Stats(),
	}
}

// Reset drops partial packets, buffered points and the published frame.
// Use it when switching byte sources.
func (p *Processor) Reset() {
	p.feedMu.Lock()
	defer p.feedMu.Unlock()
	p.decoder.Reset()
	p.assembler.Reset()
	p.store.Clear()
	diagf("processor reset for sensor=%s", p.sensorID)
}

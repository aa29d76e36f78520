package l2frames

import (
	"testing"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l1packets"
)

// sensorPackets returns n consecutive packets from a synthetic sensor.
func sensorPackets(t *testing.T, cfg l1packets.SyntheticSensorConfig, n int) []l1packets.RawPacket {
	t.Helper()
	s := l1packets.NewSyntheticSensor(cfg)
	out := make([]l1packets.RawPacket, n)
	for i := range out {
		out[i] = s.NextPacket()
	}
	return out
}

// feed runs each packet through AddPacket and Assemble and returns the
// published frames.
func feed(a *Assembler, pkts []l1packets.RawPacket) []Frame {
	var frames []Frame
	for _, pkt := range pkts {
		if !a.AddPacket(pkt) {
			continue
		}
		if f, ok := a.Assemble(); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func packetAt(speed, start, end uint16) l1packets.RawPacket {
	pkt := l1packets.RawPacket{
		Header:     l1packets.PacketHeader,
		VerLen:     l1packets.PacketVerLen,
		Speed:      speed,
		StartAngle: start,
		EndAngle:   end,
	}
	for i := range pkt.Points {
		pkt.Points[i] = l1packets.PackedPoint{Distance: 1500, Intensity: 200}
	}
	return pkt
}

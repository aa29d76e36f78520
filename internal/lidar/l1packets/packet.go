package l1packets

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire constants for the LDRobot LD0x/LD1x serial protocol.
const (
	// PacketHeader is the first byte of every packet.
	PacketHeader = 0x54
	// PacketVerLen encodes the protocol version (top 3 bits) and the point
	// count (low 5 bits). Only the 12-point variant is supported.
	PacketVerLen = 0x2C
	// PointPerPack is the number of compressed samples carried per packet.
	PointPerPack = 12
	// PacketSize is the total on-wire length including header and CRC.
	PacketSize = 1 + 1 + 2 + 2 + PointPerPack*3 + 2 + 2 + 1
)

// Field offsets inside a packet.
const (
	offSpeed      = 2
	offStartAngle = 4
	offPoints     = 6
	offEndAngle   = offPoints + PointPerPack*3
	offTimestamp  = offEndAngle + 2
	offCRC        = offTimestamp + 2
)

var (
	ErrShortPacket = errors.New("packet too short")
	ErrBadHeader   = errors.New("bad packet header")
	ErrChecksum    = errors.New("packet checksum mismatch")
)

// PackedPoint is one compressed sample as carried on the wire.
type PackedPoint struct {
	Distance  uint16 // millimetres
	Intensity uint8
}

// RawPacket is the decoded form of a single 47-byte sensor packet.
type RawPacket struct {
	Header     uint8
	VerLen     uint8
	Speed      uint16 // degrees per second
	StartAngle uint16 // 0.01 degree units
	Points     [PointPerPack]PackedPoint
	EndAngle   uint16 // 0.01 degree units
	Timestamp  uint16 // milliseconds, wraps on the device
	CRC        uint8
}

// UnmarshalPacket decodes exactly one packet from b and verifies its header
// and checksum. Extra trailing bytes are ignored.
func UnmarshalPacket(b []byte) (RawPacket, error) {
	var pkt RawPacket
	if len(b) < PacketSize {
		return pkt, fmt.Errorf("%w: got %d bytes, need %d", ErrShortPacket, len(b), PacketSize)
	}
	if b[0] != PacketHeader || b[1] != PacketVerLen {
		return pkt, fmt.Errorf("%w: 0x%02x 0x%02x", ErrBadHeader, b[0], b[1])
	}
	pkt = decodeFields(b[:PacketSize])
	if want := CalcCRC8(b[:offCRC]); want != pkt.CRC {
		return pkt, fmt.Errorf("%w: computed 0x%02x, packet carries 0x%02x", ErrChecksum, want, pkt.CRC)
	}
	return pkt, nil
}

// decodeFields reinterprets a full-length buffer as a RawPacket without any
// validation.
func decodeFields(b []byte) RawPacket {
	pkt := RawPacket{
		Header:     b[0],
		VerLen:     b[1],
		Speed:      binary.LittleEndian.Uint16(b[offSpeed:]),
		StartAngle: binary.LittleEndian.Uint16(b[offStartAngle:]),
		EndAngle:   binary.LittleEndian.Uint16(b[offEndAngle:]),
		Timestamp:  binary.LittleEndian.Uint16(b[offTimestamp:]),
		CRC:        b[offCRC],
	}
	for i := range pkt.Points {
		o := offPoints + i*3
		pkt.Points[i] = PackedPoint{
			Distance:  binary.LittleEndian.Uint16(b[o:]),
			Intensity: b[o+2],
		}
	}
	return pkt
}

// MarshalBinary encodes the packet in wire order. Header and VerLen are
// always written with the protocol constants and the CRC field is replaced
// by the computed checksum.
func (p RawPacket) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, PacketSize))
}

// AppendBinary appends the wire encoding of p to b.
func (p RawPacket) AppendBinary(b []byte) ([]byte, error) {
	start := len(b)
	b = append(b, PacketHeader, PacketVerLen)
	b = binary.LittleEndian.AppendUint16(b, p.Speed)
	b = binary.LittleEndian.AppendUint16(b, p.StartAngle)
	for _, pt := range p.Points {
		b = binary.LittleEndian.AppendUint16(b, pt.Distance)
		b = append(b, pt.Intensity)
	}
	b = binary.LittleEndian.AppendUint16(b, p.EndAngle)
	b = binary.LittleEndian.AppendUint16(b, p.Timestamp)
	b = append(b, CalcCRC8(b[start:]))
	return b, nil
}

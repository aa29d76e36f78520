package l1packets

import "sync/atomic"

type decoderState int

const (
	stateAwaitHeader decoderState = iota
	stateAwaitVerLen
	stateBody
)

// crcFailureWarnEvery controls how often a run of consecutive checksum
// failures is reported on the ops stream. A long run usually means the port
// is open at the wrong baud rate.
const crcFailureWarnEvery = 64

// DecoderStats is a point-in-time copy of the decoder counters.
type DecoderStats struct {
	BytesFed         uint64 `json:"bytes_fed"`
	PacketsAccepted  uint64 `json:"packets_accepted"`
	ChecksumFailures uint64 `json:"checksum_failures"`
	Resyncs          uint64 `json:"resyncs"`
}

// Decoder reassembles RawPackets from an unframed byte stream one byte at a
// time. All framing state lives on the Decoder so independent sensors can
// use independent instances. A Decoder is not safe for concurrent Feed calls;
// Stats may be read from any goroutine.
type Decoder struct {
	state  decoderState
	buf    [PacketSize]byte
	n      int
	packet RawPacket

	crcRun uint64

	bytesFed         atomic.Uint64
	packetsAccepted  atomic.Uint64
	checksumFailures atomic.Uint64
	resyncs          atomic.Uint64
}

// NewDecoder returns a decoder waiting for a packet header.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes a single byte. It returns true when that byte completed a
// packet whose checksum matched; the packet is then available from Packet
// until the next accepted packet. Bytes that do not fit the framing are
// discarded silently.
func (d *Decoder) Feed(b byte) bool {
	d.bytesFed.Add(1)

	switch d.state {
	case stateAwaitHeader:
		if b == PacketHeader {
			d.buf[0] = b
			d.n = 1
			d.state = stateAwaitVerLen
		}
		return false

	case stateAwaitVerLen:
		if b != PacketVerLen {
			// Drop both bytes; the rejected byte is not re-examined as a header.
			d.resyncs.Add(1)
			tracef("resync: expected ver/len 0x%02x, got 0x%02x", PacketVerLen, b)
			d.reset()
			return false
		}
		d.buf[1] = b
		d.n = 2
		d.state = stateBody
		return false

	case stateBody:
		d.buf[d.n] = b
		d.n++
		if d.n < PacketSize {
			return false
		}
		pkt := decodeFields(d.buf[:])
		crc := CalcCRC8(d.buf[:PacketSize-1])
		d.reset()
		if crc != pkt.CRC {
			d.checksumFailures.Add(1)
			d.crcRun++
			diagf("checksum mismatch: computed 0x%02x, packet carries 0x%02x", crc, pkt.CRC)
			if d.crcRun%crcFailureWarnEvery == 0 {
				opsf("%d consecutive checksum failures; check serial baud rate and wiring", d.crcRun)
			}
			return false
		}
		d.crcRun = 0
		d.packet = pkt
		d.packetsAccepted.Add(1)
		return true
	}

	d.reset()
	return false
}

// FeedAll feeds every byte of p through the decoder and calls fn for each
// accepted packet. It returns the number of packets accepted.
func (d *Decoder) FeedAll(p []byte, fn func(RawPacket)) int {
	accepted := 0
	for _, b := range p {
		if d.Feed(b) {
			accepted++
			if fn != nil {
				fn(d.packet)
			}
		}
	}
	return accepted
}

// Packet returns the most recently accepted packet.
func (d *Decoder) Packet() RawPacket {
	return d.packet
}

// Reset discards any partially assembled packet.
func (d *Decoder) Reset() {
	d.reset()
	d.crcRun = 0
}

func (d *Decoder) reset() {
	d.state = stateAwaitHeader
	d.n = 0
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		BytesFed:         d.bytesFed.Load(),
		PacketsAccepted:  d.packetsAccepted.Load(),
		ChecksumFailures: d.checksumFailures.Load(),
		Resyncs:          d.resyncs.Load(),
	}
}

// Package l1packets owns Layer 1 (Packets) of the LiDAR data model.
//
// Responsibilities: the LDRobot serial wire format (header 0x54, ver/len
// 0x2C, 47-byte packets with a trailing CRC-8), the byte-at-a-time decoder
// state machine that resynchronises on arbitrary chunking, and a synthetic
// sensor that emits a valid packet stream for dev mode and tests. This
// layer produces validated RawPacket values consumed by L2 (Frames).
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1packets

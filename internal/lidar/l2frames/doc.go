// Package l2frames owns Layer 2 (Frames) of the LiDAR data model.
//
// Responsibilities: expanding accepted packets into absolute-angle
// samples, detecting revolution boundaries, publishing complete
// angle-sorted frames to a concurrency-safe store, and frame-level export.
// Key types: Point, Frame, Assembler, FrameStore, Processor.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2frames

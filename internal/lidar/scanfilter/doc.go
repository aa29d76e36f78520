// Package scanfilter provides the default coordinate transform and
// near-range noise filter applied to each assembled revolution.
//
// Both types satisfy the l2frames.Transformer and l2frames.Filter
// interfaces and are wired into the processor by cmd/ldlidar.
package scanfilter

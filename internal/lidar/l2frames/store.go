package l2frames

import "sync"

// FrameStore holds the most recently published frame and its ready flag.
// A single lock covers both so a reader never pairs a flag with a frame
// from a different publish. Frames are copied on the way in and out.
type FrameStore struct {
	mu        sync.RWMutex
	frame     Frame
	ready     bool
	published uint64
}

// NewFrameStore returns an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{}
}

// IsFrameReady reports whether a frame was published since the last reset.
func (s *FrameStore) IsFrameReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// ResetFrameReady clears the ready flag. The frame itself stays readable.
func (s *FrameStore) ResetFrameReady() {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

// SetFrame replaces the stored frame and sets the ready flag. An unconsumed
// previous frame is overwritten.
func (s *FrameStore) SetFrame(f Frame) {
	f = f.Clone()
	s.mu.Lock()
	s.frame = f
	s.ready = true
	s.published++
	s.mu.Unlock()
}

// GetFrame returns a copy of the last published frame without touching the
// ready flag.
func (s *FrameStore) GetFrame() Frame {
	s.mu.RLock()
	f := s.frame
	s.mu.RUnlock()
	return f.Clone()
}

// Take returns the last published frame and clears the ready flag in one
// step. ok is false when no new frame was published since the last Take or
// ResetFrameReady.
func (s *FrameStore) Take() (f Frame, ok bool) {
	s.mu.Lock()
	f, ok = s.frame, s.ready
	s.ready = false
	s.mu.Unlock()
	if !ok {
		return Frame{}, false
	}
	return f.Clone(), true
}

// Published returns how many frames have been stored.
func (s *FrameStore) Published() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// Clear drops the stored frame and the ready flag.
func (s *FrameStore) Clear() {
	s.mu.Lock()
	s.frame = Frame{}
	s.ready = false
	s.mu.Unlock()
}

package l2frames

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameStore_ReadyLifecycle(t *testing.T) {
	s := NewFrameStore()
	assert.False(t, s.IsFrameReady())
	_, ok := s.Take()
	assert.False(t, ok)

	s.SetFrame(Frame{Seq: 1, Points: []Point{{Angle: 1, Distance: 10}}})
	assert.True(t, s.IsFrameReady())

	got := s.GetFrame()
	assert.Equal(t, uint64(1), got.Seq)
	assert.True(t, s.IsFrameReady(), "GetFrame must not clear the ready flag")

	s.ResetFrameReady()
	assert.False(t, s.IsFrameReady())
	assert.Equal(t, uint64(1), s.GetFrame().Seq, "frame stays readable after reset")

	s.SetFrame(Frame{Seq: 2})
	f, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	assert.False(t, s.IsFrameReady())
	assert.Equal(t, uint64(2), s.Published())

	s.Clear()
	assert.Zero(t, s.GetFrame().Seq)
}

func TestFrameStore_LastWriteWins(t *testing.T) {
	s := NewFrameStore()
	s.SetFrame(Frame{Seq: 1})
	s.SetFrame(Frame{Seq: 2})
	f, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	_, ok = s.Take()
	assert.False(t, ok)
}

func TestFrameStore_CopiesPoints(t *testing.T) {
	s := NewFrameStore()
	pts := []Point{{Angle: 1, Distance: 100}}
	s.SetFrame(Frame{Points: pts})

	pts[0].Distance = 999
	got := s.GetFrame()
	assert.Equal(t, uint16(100), got.Points[0].Distance)

	got.Points[0].Distance = 555
	assert.Equal(t, uint16(100), s.GetFrame().Points[0].Distance)
}

// Each published frame is self-describing: Seq determines the point count
// and every point's distance, so a torn read is detectable.
func makeStressFrame(seq uint64) Frame {
	n := int(seq%50) + 1
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{Angle: float64(i), Distance: uint16(seq), Intensity: uint8(seq)}
	}
	return Frame{Seq: seq, Points: pts, SpeedRaw: uint16(seq)}
}

func checkStressFrame(t *testing.T, f Frame) {
	if f.Seq == 0 {
		return
	}
	if want := int(f.Seq%50) + 1; len(f.Points) != want {
		t.Errorf("seq %d: got %d points, want %d", f.Seq, len(f.Points), want)
		return
	}
	if f.SpeedRaw != uint16(f.Seq) {
		t.Errorf("seq %d: speed %d from another publish", f.Seq, f.SpeedRaw)
	}
	for _, p := range f.Points {
		if p.Distance != uint16(f.Seq) || p.Intensity != uint8(f.Seq) {
			t.Errorf("seq %d: torn point %+v", f.Seq, p)
			return
		}
	}
}

func TestFrameStore_ConcurrentStress(t *testing.T) {
	s := NewFrameStore()
	const writes = 5000

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for seq := uint64(1); seq <= writes; seq++ {
			s.SetFrame(makeStressFrame(seq))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(take bool) {
			defer wg.Done()
			var lastSeq uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				var f Frame
				if take {
					var ok bool
					if f, ok = s.Take(); !ok {
						continue
					}
				} else {
					_ = s.IsFrameReady()
					f = s.GetFrame()
				}
				checkStressFrame(t, f)
				if f.Seq < lastSeq {
					t.Errorf("frame sequence went backwards: %d after %d", f.Seq, lastSeq)
				}
				lastSeq = f.Seq
			}
		}(r%2 == 0)
	}

	wg.Wait()
	assert.Equal(t, uint64(writes), s.GetFrame().Seq)
	assert.Equal(t, uint64(writes), s.Published())
}

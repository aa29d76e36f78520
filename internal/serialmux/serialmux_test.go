package serialmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readerPort is a SerialPorter over a fixed reader. Writes are discarded.
type readerPort struct {
	io.Reader
	closed bool
}

func (p *readerPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *readerPort) Close() error                { p.closed = true; return nil }

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func testStream(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}
	return out
}

func drain(ch chan []byte) []byte {
	var out []byte
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c...)
		default:
			return out
		}
	}
}

func TestSerialMux_MonitorDeliversUntilEOF(t *testing.T) {
	data := testStream(5000)
	mux := NewSerialMux(&readerPort{Reader: bytes.NewReader(data)})
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, data, drain(ch))

	st := mux.Stats()
	assert.Equal(t, uint64(5000), st.BytesRead)
	assert.Equal(t, uint64(3), st.ChunksRead)
	assert.Zero(t, st.ChunksDropped)
	assert.Equal(t, 1, st.Subscribers)
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	boom := errors.New("boom")
	mux := NewSerialMux(&readerPort{Reader: errReader{boom}})
	err := mux.Monitor(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestSerialMux_MonitorContextCancel(t *testing.T) {
	port := NewChunkPort()
	mux := NewSerialMux(port)
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSerialMux_CloseStopsMonitor(t *testing.T) {
	port := NewChunkPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	data := testStream(300)
	port.Push(data)

	var got []byte
	deadline := time.After(5 * time.Second)
	for len(got) < len(data) {
		select {
		case c := <-ch:
			got = append(got, c...)
		case <-deadline:
			t.Fatalf("received %d of %d bytes", len(got), len(data))
		}
	}
	assert.Equal(t, data, got)

	require.NoError(t, mux.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
	assert.True(t, port.IsClosed())

	_, open := <-ch
	assert.False(t, open, "subscriber channel closed")
	assert.NoError(t, mux.Close(), "second Close is a no-op")
}

func TestSerialMux_SlowSubscriberDrops(t *testing.T) {
	mux := NewSerialMux(&readerPort{Reader: bytes.NewReader(testStream(100))})
	mux.readSize = 1
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))

	st := mux.Stats()
	assert.Equal(t, uint64(100), st.ChunksRead)
	assert.Equal(t, uint64(100-SubscriberBuffer), st.ChunksDropped)
	assert.Len(t, drain(ch), SubscriberBuffer)
}

func TestSerialMux_SubscribersGetIndependentChunks(t *testing.T) {
	data := testStream(10)
	mux := NewSerialMux(&readerPort{Reader: bytes.NewReader(data)})
	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	ca, cb := <-a, <-b
	require.Equal(t, data, ca)
	require.Equal(t, data, cb)

	ca[0] ^= 0xff
	assert.Equal(t, data[0], cb[0])
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(&readerPort{Reader: bytes.NewReader(nil)})
	id, ch := mux.Subscribe()
	assert.Equal(t, 1, mux.Stats().Subscribers)

	mux.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, mux.Stats().Subscribers)

	mux.Unsubscribe(id)
	mux.Unsubscribe("unknown")
}

func TestSerialMux_SubscribeAfterClose(t *testing.T) {
	port := &readerPort{Reader: bytes.NewReader(nil)}
	mux := NewSerialMux(port)
	require.NoError(t, mux.Close())
	assert.True(t, port.closed)

	_, ch := mux.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestSerialMux_ImplementsInterface(t *testing.T) {
	var _ SerialMuxInterface = NewSerialMux(&readerPort{})
	var _ SerialMuxInterface = NewDisabledSerialMux()
}

func TestRandomID(t *testing.T) {
	a, b := randomID(), randomID()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

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

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l1packets"
)

func TestNewMockSerialMux_StreamsSyntheticPackets(t *testing.T) {
	want := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{}).Packets(10)
	src := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{})

	mux := NewMockSerialMux(src, l1packets.PacketSize, time.Millisecond)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	var got []byte
	deadline := time.After(5 * time.Second)
	for len(got) < len(want) {
		select {
		case c := <-ch:
			got = append(got, c...)
		case <-deadline:
			t.Fatalf("received %d of %d bytes", len(got), len(want))
		}
	}
	assert.Equal(t, want, got[:len(want)])

	d := l1packets.NewDecoder()
	assert.Equal(t, 10, d.FeedAll(got[:len(want)], nil))

	require.NoError(t, mux.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
}

func TestNewMockSerialMux_SourceExhausted(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	mux := NewMockSerialMux(bytes.NewReader(data), 2, time.Millisecond)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, data, drain(ch))
}

func TestMockSerialPort_WriteDiscards(t *testing.T) {
	mux := NewMockSerialMux(bytes.NewReader(nil), 1, time.Millisecond)
	n, err := mux.port.Write([]byte("ignored"))
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mux.Close())
}

func TestChunkPort_ReadPreservesChunks(t *testing.T) {
	packets := l1packets.NewSyntheticSensor(l1packets.SyntheticSensorConfig{}).Packets(3)
	port := NewChunkPort()
	port.Push(packets[:20], packets[20:l1packets.PacketSize], packets[l1packets.PacketSize:])
	assert.Equal(t, 3, port.Pending())

	buf := make([]byte, DefaultReadSize)
	var sizes []int
	var got []byte
	for port.Pending() > 0 {
		n, err := port.Read(buf)
		require.NoError(t, err)
		sizes = append(sizes, n)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, []int{20, l1packets.PacketSize - 20, 2 * l1packets.PacketSize}, sizes)
	assert.Equal(t, packets, got)
}

func TestChunkPort_ShortBufferSplitsChunk(t *testing.T) {
	port := NewChunkPort()
	port.Push([]byte{0x54, 0x2c, 0x0e, 0x10})

	buf := make([]byte, 3)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x54, 0x2c, 0x0e}, buf[:n])
	n, err = port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10}, buf[:n])
}

func TestChunkPort_ErrorAfterQueueDrains(t *testing.T) {
	port := NewChunkPort()
	port.Push([]byte{1})
	port.FailWith(errors.New("framing error"))

	buf := make([]byte, 4)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = port.Read(buf)
	assert.EqualError(t, err, "framing error")
}

func TestChunkPort_CloseWakesBlockedRead(t *testing.T) {
	port := NewChunkPort()
	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 4))
		done <- err
	}()

	require.NoError(t, port.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after Close")
	}
	assert.True(t, port.IsClosed())

	n, err := port.Write([]byte("ignored"))
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestChunkPort_ReadTimeout(t *testing.T) {
	port := NewChunkPort()
	var _ TimeoutSerialPorter = port
	require.NoError(t, port.SetReadTimeout(100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, port.ReadTimeout())
}

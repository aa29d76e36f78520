package serialmux

import (
	"io"
	"log"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter over a pipe fed by a byte source.
// Writes are discarded.
type MockSerialPort struct {
	*io.PipeReader
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// NewMockSerialMux creates a SerialMux whose port delivers chunkSize bytes
// from src every interval, simulating a sensor on a UART. Pass a
// l1packets.SyntheticSensor as src for a live-looking packet stream.
func NewMockSerialMux(src io.Reader, chunkSize int, interval time.Duration) *SerialMux[*MockSerialPort] {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	r, w := io.Pipe()
	mockPort := &MockSerialPort{PipeReader: r}

	// generate data periodically to simulate serial port input
	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		buf := make([]byte, chunkSize)
		for range ticker.C {
			n, err := io.ReadFull(src, buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				log.Printf("mock serial source finished: %v", err)
				return
			}
		}
	}()

	return NewSerialMux(mockPort)
}

// ChunkPort is an in-memory SerialPorter for tests. Each Read returns at
// most one queued chunk, so chunk boundaries reach the mux the way a UART
// read delivers whatever arrived since the previous call. Read blocks while
// the queue is empty.
type ChunkPort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	chunks  [][]byte
	readErr error
	closed  bool
	timeout time.Duration
}

// NewChunkPort returns an open port with nothing queued.
func NewChunkPort() *ChunkPort {
	p := &ChunkPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Push queues each chunk for a separate Read.
func (p *ChunkPort) Push(chunks ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range chunks {
		if len(c) > 0 {
			p.chunks = append(p.chunks, append([]byte(nil), c...))
		}
	}
	p.cond.Broadcast()
}

// FailWith makes the first Read after the queue drains return err.
func (p *ChunkPort) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.cond.Broadcast()
}

func (p *ChunkPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readErr == nil && len(p.chunks) == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p.chunks) == 0 {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	n := copy(b, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

// Write discards p. The sensor has no command channel.
func (p *ChunkPort) Write(b []byte) (int, error) {
	return len(b), nil
}

func (p *ChunkPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *ChunkPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = timeout
	return nil
}

// ReadTimeout returns the last timeout passed to SetReadTimeout.
func (p *ChunkPort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// IsClosed reports whether Close has been called.
func (p *ChunkPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Pending returns the number of queued chunks not yet read.
func (p *ChunkPort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

// StaticPortFactory hands out a single port and remembers how it was
// opened.
type StaticPortFactory struct {
	mu    sync.Mutex
	port  SerialPorter
	err   error
	path  string
	mode  *SerialPortMode
	opens int
}

// NewStaticPortFactory returns a factory whose Open yields port, or err
// when err is non-nil.
func NewStaticPortFactory(port SerialPorter, err error) *StaticPortFactory {
	return &StaticPortFactory{port: port, err: err}
}

func (f *StaticPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.path, f.mode = path, mode
	if f.err != nil {
		return nil, f.err
	}
	return f.port, nil
}

// Opened returns the number of Open calls and the arguments of the last.
func (f *StaticPortFactory) Opened() (int, string, *SerialPortMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.path, f.mode
}

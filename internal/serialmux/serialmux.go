// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to the raw byte stream read from a single
// serial port device.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/LeurDeLis/lidar-ws/internal/httputil"
)

const (
	// DefaultReadSize is the size of a single read from the port. At
	// 230400 baud this is roughly 90 ms of data.
	DefaultReadSize = 2048
	// SubscriberBuffer is the number of chunks a subscriber may fall behind
	// before chunks are dropped for it.
	SubscriberBuffer = 64
)

// Stats is a point-in-time copy of the mux counters.
type Stats struct {
	BytesRead     uint64 `json:"bytes_read"`
	ChunksRead    uint64 `json:"chunks_read"`
	ChunksDropped uint64 `json:"chunks_dropped"`
	Subscribers   int    `json:"subscribers"`
}

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to the byte stream of a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	readSize     int
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	bytesRead     atomic.Uint64
	chunksRead    atomic.Uint64
	chunksDropped atomic.Uint64
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving byte chunks from the
	// serial port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads chunks from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	// Stats returns the read and drop counters.
	Stats() Stats

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance reading from port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		readSize:    DefaultReadSize,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a buffered channel that receives every chunk read
// after the call. Chunks are owned by the receiver.
func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, SubscriberBuffer)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.isClosing() {
		// Return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Monitor reads the serial port and fans each chunk out to subscribers. It
// returns nil at EOF or after Close, ctx.Err() on cancellation and the read
// error otherwise.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// The blocking Read runs in its own goroutine so the outer loop can
	// observe context cancellation.
	go func() {
		defer close(chunkChan)
		for {
			buf := make([]byte, s.readSize)
			n, err := s.port.Read(buf)
			if n > 0 {
				select {
				case chunkChan <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErrChan <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			if s.isClosing() {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)

		case chunk, ok := <-chunkChan:
			if !ok {
				select {
				case err := <-readErrChan:
					if !s.isClosing() {
						return fmt.Errorf("serial read: %w", err)
					}
				default:
				}
				return nil
			}
			if s.isClosing() {
				return nil
			}
			s.bytesRead.Add(uint64(len(chunk)))
			s.chunksRead.Add(1)
			s.publish(chunk)
		}
	}
}

// publish delivers chunk to every subscriber without blocking. Each
// subscriber beyond the first gets its own copy.
func (s *SerialMux[T]) publish(chunk []byte) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	first := true
	for _, ch := range s.subscribers {
		c := chunk
		if !first {
			c = append([]byte(nil), chunk...)
		}
		select {
		case ch <- c:
			first = false
		default:
			// if the channel is full skip so as not to block the reader
			s.chunksDropped.Add(1)
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Stats returns the read and drop counters.
func (s *SerialMux[T]) Stats() Stats {
	s.subscriberMu.Lock()
	n := len(s.subscribers)
	s.subscriberMu.Unlock()
	return Stats{
		BytesRead:     s.bytesRead.Load(),
		ChunksRead:    s.chunksRead.Load(),
		ChunksDropped: s.chunksDropped.Load(),
		Subscribers:   n,
	}
}

// Close closes every subscriber channel and the port. It is safe to call
// more than once.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial/stats", "serial port read counters (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})

	// Server-Side Events (SSE) carrying hex encoded chunks as they are read.
	debug.HandleSilentFunc("serial/tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case chunk, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", hex.EncodeToString(chunk)); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}

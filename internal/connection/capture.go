package connection

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/timing"
)

// DefaultCaptureCapacity bounds a capture queue when no capacity is given.
const DefaultCaptureCapacity = 256

// Frame is one inbound read captured from a connection.
type Frame struct {
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// Capture reads a live connection into a bounded queue in the background.
// When the queue is full the oldest frame is dropped.
type Capture struct {
	address  string
	capacity int

	mu      sync.Mutex
	frames  []Frame
	dropped int
	err     error

	cancel context.CancelFunc
	done   chan struct{}
}

// Capture starts a background reader on address. The reader stops when
// ctx is cancelled, Stop is called, or the connection fails.
func (m *Manager) Capture(ctx context.Context, address string, capacity int) (*Capture, error) {
	address = device.NormalizeAddress(address)
	if _, err := m.connected(address); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		capacity = DefaultCaptureCapacity
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Capture{
		address:  address,
		capacity: capacity,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go c.run(cctx, m)
	m.logger.Info("capture started", "address", address, "capacity", capacity)
	return c, nil
}

func (c *Capture) run(ctx context.Context, m *Manager) {
	defer close(c.done)

	for {
		data, err := m.Recv(ctx, c.address)
		if err != nil {
			if ctx.Err() == nil {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				m.logger.Warn("capture ended", "address", c.address, "error", err)
			}
			return
		}
		if len(data) > 0 {
			c.push(Frame{Data: slices.Clone(data), ReceivedAt: m.now()})
		}
		// Session reads poll a characteristic, so every read is paced.
		if err := m.engine.Wait(ctx, timing.ScanPause, timing.Params{}); err != nil {
			return
		}
	}
}

func (c *Capture) push(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == c.capacity {
		c.frames = slices.Delete(c.frames, 0, 1)
		c.dropped++
	}
	c.frames = append(c.frames, f)
}

// Address returns the captured address.
func (c *Capture) Address() string {
	return c.address
}

// Drain returns and removes every queued frame.
func (c *Capture) Drain() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	if out == nil {
		out = []Frame{}
	}
	return out
}

// Dropped returns how many frames were discarded because the queue was full.
func (c *Capture) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Err returns the error that ended the reader, or nil if it is still
// running or was stopped.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the reader exits.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Stop cancels the reader and waits for it to exit. Frames already queued
// remain available to Drain.
func (c *Capture) Stop() {
	c.cancel()
	<-c.done
}

// Running reports whether the reader is still active.
func (c *Capture) Running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

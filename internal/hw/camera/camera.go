package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

var (
	// ErrSourceUnavailable is returned when the source is closed, was never
	// opened or stopped delivering frames.
	ErrSourceUnavailable = errors.New("camera: source unavailable")

	// ErrSourceTimeout is returned when no usable frame arrived in time.
	ErrSourceTimeout = errors.New("camera: timed out waiting for a frame")
)

// Source is a live frame feed. Only the capture session reads from it and
// only its Start/Stop open and close it.
type Source interface {
	// Open acquires the device and starts delivering frames.
	Open(ctx context.Context) error
	// Grab returns a copy of the most recent frame, waiting for the first
	// one if none has arrived yet. The caller owns the returned buffer.
	Grab(ctx context.Context) (*raster.Buffer, error)
	// Close releases the device. Pending and later Grab calls fail with
	// ErrSourceUnavailable.
	Close() error
	// Size returns the frame size, or zeros when it is not known yet.
	Size() (width, height int)
}

// mailbox holds only the latest frame. Writers replace it, readers copy it.
type mailbox struct {
	mu     sync.Mutex
	frame  *raster.Buffer
	err    error
	notify chan struct{} // closed and replaced on every change
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{})}
}

// put replaces the latest frame. It takes ownership of f.
func (m *mailbox) put(f *raster.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.frame = f
	m.wake()
}

// fail closes the mailbox; every wait returns err from then on.
func (m *mailbox) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.err = err
	m.frame = nil
	m.wake()
}

func (m *mailbox) wake() {
	close(m.notify)
	m.notify = make(chan struct{})
}

// latest returns a copy of the current frame, blocking until one is there.
func (m *mailbox) latest(ctx context.Context) (*raster.Buffer, error) {
	for {
		m.mu.Lock()
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return nil, err
		}
		if m.frame != nil {
			f := m.frame.Clone()
			m.mu.Unlock()
			return f, nil
		}
		ch := m.notify
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

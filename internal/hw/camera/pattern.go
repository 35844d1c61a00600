package camera

import (
	"context"
	"sync"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// Bars are the eight SMPTE-style color bars, left to right.
var Bars = [8][4]uint8{
	{255, 255, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 255, 0, 255},
	{255, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

// Pattern is a synthetic source drawing color bars with a moving marker.
// Used for development without a camera and in tests.
type Pattern struct {
	Width, Height int
	// Warmup delays the first frame after Open, like a camera adjusting
	// exposure.
	Warmup time.Duration

	mu       sync.Mutex
	opened   time.Time
	open     bool
	frame    int
	released chan struct{}
}

// NewPattern returns a closed w x h pattern source.
func NewPattern(w, h int) *Pattern {
	return &Pattern{Width: w, Height: h}
}

// Size implements Source.
func (p *Pattern) Size() (int, int) { return p.Width, p.Height }

// Open implements Source.
func (p *Pattern) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil
	}
	if p.Width <= 0 || p.Height <= 0 {
		return ErrSourceUnavailable
	}
	p.open = true
	p.opened = time.Now()
	p.frame = 0
	p.released = make(chan struct{})
	debug.Info("Camera: pattern source %dx%d opened", p.Width, p.Height)
	return nil
}

// Grab implements Source. It waits out the warmup, then renders a frame.
func (p *Pattern) Grab(ctx context.Context) (*raster.Buffer, error) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil, ErrSourceUnavailable
	}
	wait := time.Until(p.opened.Add(p.Warmup))
	released := p.released
	p.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-released:
			return nil, ErrSourceUnavailable
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil, ErrSourceUnavailable
	}
	p.frame++
	return p.render(p.frame), nil
}

// render draws the bars and a black marker column that advances every frame.
func (p *Pattern) render(n int) *raster.Buffer {
	buf, _ := raster.New(p.Width, p.Height)
	marker := (n * 4) % p.Width
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			px := Bars[x*len(Bars)/p.Width]
			if y >= p.Height*7/8 && x >= marker && x < marker+4 {
				px = [4]uint8{0, 0, 0, 255}
			}
			buf.Set(x, y, px)
		}
	}
	return buf
}

// Close implements Source.
func (p *Pattern) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	close(p.released)
	debug.Info("Camera: pattern source closed")
	return nil
}

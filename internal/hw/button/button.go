package button

import (
	"context"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/hw/gpio"
)

// Config holds the shutter button wiring and timing.
type Config struct {
	Pin      int           // BCM pin wired to ground through the button.
	Poll     time.Duration // sampling period; 0 means 10ms.
	Debounce time.Duration // how long LOW must hold to count; 0 means 50ms.
}

// Button watches a pulled-up input for presses (falling edges).
type Button struct {
	gpio gpio.Driver
	cfg  Config
}

// New configures the pin as a pull-up input.
func New(g gpio.Driver, cfg Config) (*Button, error) {
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	if err := g.SetupPin(cfg.Pin, gpio.InputPullUp); err != nil {
		return nil, err
	}
	return &Button{gpio: g, cfg: cfg}, nil
}

// Run samples the pin until ctx is done and calls onPress once per press.
// A press is a HIGH to LOW transition that stays LOW for the debounce time;
// the button must go back HIGH before the next press counts. onPress runs on
// the polling goroutine.
func (b *Button) Run(ctx context.Context, onPress func()) error {
	ticker := time.NewTicker(b.cfg.Poll)
	defer ticker.Stop()

	debug.Verbose("Button: watching pin %d", b.cfg.Pin)

	var (
		armed    bool // seen HIGH since the last press
		lowSince time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			level, err := b.gpio.ReadPin(b.cfg.Pin)
			if err != nil {
				return err
			}
			if level == gpio.High {
				armed = true
				lowSince = time.Time{}
				continue
			}
			if !armed {
				continue
			}
			if lowSince.IsZero() {
				lowSince = now
			}
			if now.Sub(lowSince) >= b.cfg.Debounce {
				armed = false
				debug.Live("Button: press on pin %d", b.cfg.Pin)
				onPress()
			}
		}
	}
}

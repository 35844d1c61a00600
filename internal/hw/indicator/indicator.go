package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/hw/gpio"
)

// Config holds the LED wiring.
type Config struct {
	Pin       int  // BCM pin. 0 = no LED.
	ActiveLow bool // LED lit when the pin is LOW (sinking wiring).
}

// LED is the privacy light: lit while the camera is held.
type LED struct {
	gpio gpio.Driver
	cfg  Config

	mu   sync.Mutex
	held bool // requested by Set
	lit  bool // last level written
}

// New configures the pin as an output and switches the LED off.
func New(g gpio.Driver, cfg Config) (*LED, error) {
	l := &LED{gpio: g, cfg: cfg}
	if cfg.Pin <= 0 {
		return l, nil
	}
	if err := g.SetupPin(cfg.Pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("led pin %d: %w", cfg.Pin, err)
	}
	if err := g.WritePin(cfg.Pin, l.level(false)); err != nil {
		return nil, fmt.Errorf("led pin %d: %w", cfg.Pin, err)
	}
	return l, nil
}

// Set lights or darkens the LED. Repeated calls with the same state do not
// touch the pin.
func (l *LED) Set(on bool) error {
	if l == nil || l.cfg.Pin <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(on); err != nil {
		return err
	}
	l.held = on
	return nil
}

// On reports the state last requested with Set.
func (l *LED) On() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Blink darkens a lit LED for d as a shutter flash. The LED is relit only if
// it is still held afterwards; a Set(false) during the flash wins.
func (l *LED) Blink(d time.Duration) error {
	if l == nil || l.cfg.Pin <= 0 {
		return nil
	}
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	err := l.write(false)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	time.Sleep(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	return l.write(true)
}

// write drives the pin if it is not already at the level for on.
// Callers hold l.mu.
func (l *LED) write(on bool) error {
	if l.lit == on {
		return nil
	}
	if err := l.gpio.WritePin(l.cfg.Pin, l.level(on)); err != nil {
		return err
	}
	l.lit = on
	debug.Verbose("LED: %s (pin %d)", onOff(on), l.cfg.Pin)
	return nil
}

func (l *LED) level(on bool) gpio.Level {
	if on != l.cfg.ActiveLow {
		return gpio.High
	}
	return gpio.Low
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

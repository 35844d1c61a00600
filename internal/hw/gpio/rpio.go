package gpio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// maxBCMPin is the highest header GPIO on a 40-pin Raspberry Pi.
const maxBCMPin = 27

// RPiDriver drives the booth's button and LED through go-rpio. It remembers
// every pin it configured so Close hands exactly those back.
type RPiDriver struct {
	mu    sync.Mutex
	owned map[int]PinMode
}

// NewRPiRealDriver memory-maps the GPIO registers. Needs /dev/gpiomem or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{owned: make(map[int]PinMode)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	if pin < 0 || pin > maxBCMPin {
		return fmt.Errorf("gpio: pin %d out of range 0..%d", pin, maxBCMPin)
	}
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullOff()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("gpio: unknown pin mode %d", mode)
	}

	r.mu.Lock()
	r.owned[pin] = mode
	r.mu.Unlock()
	return nil
}

// WritePin drives an output. Pins must be configured as outputs first.
func (r *RPiDriver) WritePin(pin int, level Level) error {
	if mode, ok := r.mode(pin); !ok || mode != Output {
		return fmt.Errorf("gpio: write to pin %d which is not an output", pin)
	}
	debug.GPIO("WritePin", pin, level)
	if level == High {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

// ReadPin samples a configured pin.
func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	if _, ok := r.mode(pin); !ok {
		return Low, fmt.Errorf("gpio: read from unconfigured pin %d", pin)
	}
	lvl := Low
	if rpio.Pin(pin).Read() == rpio.High {
		lvl = High
	}
	debug.GPIO("ReadPin", pin, lvl)
	return lvl, nil
}

func (r *RPiDriver) mode(pin int) (PinMode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.owned[pin]
	return m, ok
}

// Close returns the pins this driver configured to floating inputs, outputs
// driven low first so the LED goes dark, then unmaps the registers. Pins it
// never touched keep their state.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	pins := make([]int, 0, len(r.owned))
	for pin := range r.owned {
		pins = append(pins, pin)
	}
	owned := r.owned
	r.owned = make(map[int]PinMode)
	r.mu.Unlock()

	sort.Ints(pins)
	for _, pin := range pins {
		p := rpio.Pin(pin)
		if owned[pin] == Output {
			p.Low()
		}
		p.Input()
		p.PullOff()
		debug.Verbose("GPIO: released pin %d (%s)", pin, owned[pin])
	}
	return rpio.Close()
}

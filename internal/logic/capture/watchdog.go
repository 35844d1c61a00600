package capture

import (
	"sync"
	"time"
)

// Watchdog calls fire once after timeout unless it is kicked or disarmed
// first. Each Arm schedules at most one fire.
type Watchdog struct {
	timeout time.Duration
	fire    func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	armed bool
}

// NewWatchdog returns a disarmed watchdog.
func NewWatchdog(timeout time.Duration, fire func()) *Watchdog {
	return &Watchdog{timeout: timeout, fire: fire}
}

// Arm (re)starts the countdown.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restart()
}

// Kick restarts the countdown if the watchdog is armed.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		w.restart()
	}
}

// Disarm cancels a pending fire.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Armed reports whether a fire is pending.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Watchdog) restart() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	w.armed = true
	if w.timeout <= 0 {
		w.timer = nil
		return
	}
	gen := w.gen
	w.timer = time.AfterFunc(w.timeout, func() {
		w.mu.Lock()
		if !w.armed || w.gen != gen {
			w.mu.Unlock()
			return
		}
		w.armed = false
		w.timer = nil
		w.mu.Unlock()
		w.fire()
	})
}

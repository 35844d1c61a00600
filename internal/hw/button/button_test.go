package button

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/hw/gpio"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func start(t *testing.T, drv gpio.Driver, cfg Config) (*atomic.Int32, context.CancelFunc, <-chan error) {
	t.Helper()
	b, err := New(drv, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var presses atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx, func() { presses.Add(1) }) }()
	return &presses, cancel, errc
}

func TestNew_ConfiguresPullUp(t *testing.T) {
	drv := gpio.NewMockDriver()
	if _, err := New(drv, Config{Pin: 27}); err != nil {
		t.Fatalf("New: %v", err)
	}
	mode, ok := drv.Mode(27)
	if !ok || mode != gpio.InputPullUp {
		t.Errorf("mode = %v (set %v), want input-pullup", mode, ok)
	}
	if level, _ := drv.ReadPin(27); level != gpio.High {
		t.Error("pull-up input should idle HIGH")
	}
}

func TestRun_OnePressPerFallingEdge(t *testing.T) {
	drv := gpio.NewMockDriver()
	presses, cancel, errc := start(t, drv, Config{Pin: 27, Poll: time.Millisecond, Debounce: 5 * time.Millisecond})
	defer cancel()

	time.Sleep(5 * time.Millisecond)
	drv.Drive(27, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 1 })

	// Holding the button does not repeat.
	time.Sleep(30 * time.Millisecond)
	if n := presses.Load(); n != 1 {
		t.Fatalf("presses while held = %d, want 1", n)
	}

	drv.Drive(27, gpio.High)
	time.Sleep(5 * time.Millisecond)
	drv.Drive(27, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 2 })

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRun_IgnoresBounce(t *testing.T) {
	drv := gpio.NewMockDriver()
	presses, cancel, _ := start(t, drv, Config{Pin: 27, Poll: time.Millisecond, Debounce: time.Hour})
	defer cancel()

	for i := 0; i < 5; i++ {
		drv.Drive(27, gpio.Low)
		time.Sleep(2 * time.Millisecond)
		drv.Drive(27, gpio.High)
		time.Sleep(2 * time.Millisecond)
	}
	if n := presses.Load(); n != 0 {
		t.Errorf("presses = %d, want 0 for short glitches", n)
	}
}

func TestRun_HeldAtStartupIsNotAPress(t *testing.T) {
	drv := gpio.NewMockDriver()
	b, err := New(drv, Config{Pin: 27, Poll: time.Millisecond, Debounce: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drv.Drive(27, gpio.Low)

	var presses atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = b.Run(ctx, func() { presses.Add(1) })
	if n := presses.Load(); n != 0 {
		t.Errorf("presses = %d, want 0", n)
	}
}

type failingDriver struct{ gpio.MockDriver }

func (d *failingDriver) ReadPin(int) (gpio.Level, error) {
	return gpio.Low, errors.New("read failed")
}

func TestRun_ReadError(t *testing.T) {
	b, err := New(&failingDriver{}, Config{Pin: 27, Poll: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Run(context.Background(), func() {}); err == nil {
		t.Error("expected read error")
	}
}

package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/hw/camera"
	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
	"github.com/cjeanneret/PhotoBooth/internal/logic/store"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// ErrBusy is returned when a capture is requested while one is in flight.
var ErrBusy = errors.New("capture: a capture is already in progress")

// Timing holds the session delays.
type Timing struct {
	ReadyTimeout   time.Duration // wait for a usable frame
	Settle         time.Duration // pause after each strip shot
	CountdownStep  time.Duration // one countdown tick
	CountdownSteps int           // ticks before the next strip shot
	IdleTimeout    time.Duration // release the camera after this long idle
}

// DefaultTiming returns the standard photobooth pacing.
func DefaultTiming() Timing {
	return Timing{
		ReadyTimeout:   10 * time.Second,
		Settle:         time.Second,
		CountdownStep:  time.Second,
		CountdownSteps: 3,
		IdleTimeout:    5 * time.Minute,
	}
}

// Settings are the operator choices applied to the next capture.
type Settings struct {
	Filter      filter.Kind
	Layout      compose.Layout
	BorderColor color.NRGBA
	Mirror      bool
}

// DefaultSettings is no filter, film strip, white border, mirrored.
func DefaultSettings() Settings {
	return Settings{
		Filter:      filter.None,
		Layout:      compose.Layout{Kind: compose.FilmStrip},
		BorderColor: compose.White,
		Mirror:      true,
	}
}

// MarshalJSON renders the border color as "#rrggbb".
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Filter      filter.Kind    `json:"filter"`
		Layout      compose.Layout `json:"layout"`
		BorderColor string         `json:"borderColor"`
		Mirror      bool           `json:"mirror"`
	}{s.Filter, s.Layout, compose.FormatColor(s.BorderColor), s.Mirror})
}

// Options configures a Session.
type Options struct {
	Timing   Timing
	Settings Settings
	Notifier Notifier
	Now      func() time.Time
}

// Session owns the camera lifecycle and runs captures one at a time.
type Session struct {
	source camera.Source
	comp   *compose.Compositor
	photos *store.Store
	timing Timing
	notify Notifier
	now    func() time.Time

	capture sync.Mutex // held for the whole capture
	life    sync.Mutex // serializes source Open/Close

	mu       sync.Mutex
	settings Settings
	state    State
	open     bool
	released chan struct{} // closed by Stop; nil while stopped

	watchdog *Watchdog
}

// NewSession wires a session around a source, compositor and store.
func NewSession(src camera.Source, comp *compose.Compositor, photos *store.Store, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = Notifiers(nil)
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	s := &Session{
		source:   src,
		comp:     comp,
		photos:   photos,
		timing:   opts.Timing,
		notify:   opts.Notifier,
		now:      opts.Now,
		settings: opts.Settings,
	}
	s.watchdog = NewWatchdog(opts.Timing.IdleTimeout, func() {
		debug.Info("Camera idle for %v, releasing it", s.timing.IdleTimeout)
		s.release("idle")
	})
	return s
}

// Start acquires the camera and waits for the first usable frame. Starting
// an open session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return nil
	}
	released := make(chan struct{})
	s.released = released
	s.mu.Unlock()

	fail := func(err error) error {
		_ = s.source.Close()
		s.mu.Lock()
		if s.released == released {
			s.released = nil
		}
		s.mu.Unlock()
		s.notify.Notify(Event{Kind: EventError, Error: err.Error()})
		return err
	}

	if err := s.source.Open(ctx); err != nil {
		return fail(fmt.Errorf("open camera: %w", err))
	}
	if _, err := s.grab(ctx, released); err != nil {
		return fail(fmt.Errorf("wait for camera: %w", err))
	}

	s.mu.Lock()
	if s.released != released {
		// Stopped while waiting for the first frame.
		s.mu.Unlock()
		return fail(fmt.Errorf("wait for camera: %w", camera.ErrSourceUnavailable))
	}
	s.open = true
	s.mu.Unlock()

	s.watchdog.Arm()
	w, h := s.source.Size()
	debug.Info("Camera started (%dx%d)", w, h)
	s.notify.Notify(Event{Kind: EventCameraStarted})
	return nil
}

// Stop releases the camera. Pending waits of an in-flight capture wake up
// and fail with camera.ErrSourceUnavailable.
func (s *Session) Stop() error {
	return s.release("stopped")
}

func (s *Session) release(reason string) error {
	s.watchdog.Disarm()

	s.mu.Lock()
	if s.released == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.released)
	s.released = nil
	wasOpen := s.open
	s.open = false
	s.mu.Unlock()

	s.life.Lock()
	err := s.source.Close()
	s.life.Unlock()

	if wasOpen {
		debug.Info("Camera released (%s)", reason)
		s.notify.Notify(Event{Kind: EventCameraStopped, Reason: reason})
	}
	if err != nil {
		return fmt.Errorf("close camera: %w", err)
	}
	return nil
}

// Open reports whether the camera is held.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Touch records a qualifying interaction and re-arms the idle watchdog.
func (s *Session) Touch() {
	s.watchdog.Kick()
	debug.Trace("Interaction")
}

// Settings returns the current operator settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetFilter selects the filter for the next capture.
func (s *Session) SetFilter(kind filter.Kind) {
	s.update(func(st *Settings) { st.Filter = kind })
}

// SetLayout selects the frame layout. Unknown custom frames are rejected.
func (s *Session) SetLayout(layout compose.Layout) error {
	if layout.Kind == compose.CustomOverlay && !s.comp.Frames.Has(layout.FrameID) {
		return fmt.Errorf("%w: %q", compose.ErrUnknownFrame, layout.FrameID)
	}
	s.update(func(st *Settings) { st.Layout = layout })
	return nil
}

// SetBorderColor parses a "#rgb" or "#rrggbb" border color.
func (s *Session) SetBorderColor(hex string) error {
	c, err := compose.ParseColor(hex)
	if err != nil {
		return err
	}
	s.update(func(st *Settings) { st.BorderColor = c })
	return nil
}

// SetMirror toggles the horizontal flip applied to captured frames.
func (s *Session) SetMirror(on bool) {
	s.update(func(st *Settings) { st.Mirror = on })
}

func (s *Session) update(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.settings)
	st := s.settings
	s.mu.Unlock()
	s.Touch()
	debug.PrintStruct("Settings", st)
	s.notify.Notify(Event{Kind: EventSettings})
}

// State returns the current state machine snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latest returns the newest photo, or nil.
func (s *Session) Latest() *store.Photo { return s.photos.Latest() }

// Photos returns every photo, newest first.
func (s *Session) Photos() []*store.Photo { return s.photos.List() }

// Photo looks a photo up by id.
func (s *Session) Photo(id string) (*store.Photo, error) { return s.photos.Get(id) }

// RequestCapture runs one capture with the current settings and returns the
// stored photo. A film strip takes four shots with a countdown between them.
// Any failure discards the shots taken so far; the session always ends idle.
func (s *Session) RequestCapture(ctx context.Context) (*store.Photo, error) {
	if !s.capture.TryLock() {
		return nil, ErrBusy
	}
	defer s.capture.Unlock()
	s.Touch()

	s.mu.Lock()
	settings := s.settings
	released := s.released
	open := s.open
	s.mu.Unlock()

	if !open {
		return nil, s.fail(camera.ErrSourceUnavailable)
	}
	layout := settings.Layout
	if layout.Kind == compose.CustomOverlay && !s.comp.Frames.Has(layout.FrameID) {
		return nil, s.fail(fmt.Errorf("%w: %q", compose.ErrUnknownFrame, layout.FrameID))
	}
	defer s.setState(State{Phase: Idle})

	total := layout.RequiredShots()
	shots := make([]*raster.Buffer, 0, total)
	for i := 1; i <= total; i++ {
		s.setState(State{Phase: Capturing, Shot: i, Total: total})
		shot, err := s.shoot(ctx, released, settings)
		if err != nil {
			return nil, s.fail(err)
		}
		shots = append(shots, shot)
		debug.Shot(i, total)
		s.notify.Notify(Event{Kind: EventShot, Shot: i, Total: total})

		if i == total {
			break
		}
		if err := s.wait(ctx, released, s.timing.Settle); err != nil {
			return nil, s.fail(err)
		}
		for left := s.timing.CountdownSteps; left > 0; left-- {
			s.setState(State{Phase: Counting, Shot: i, Total: total, Remaining: left})
			debug.Countdown(i+1, left)
			s.notify.Notify(Event{Kind: EventCountdown, Shot: i + 1, Total: total, Remaining: left})
			if err := s.wait(ctx, released, s.timing.CountdownStep); err != nil {
				return nil, s.fail(err)
			}
		}
	}

	s.setState(State{Phase: Composing, Total: total})
	out, err := s.comp.Compose(shots, layout, settings.BorderColor)
	if err != nil {
		return nil, s.fail(err)
	}
	photo, err := store.NewPhoto(out, settings.Filter, layout, s.now())
	if err != nil {
		return nil, s.fail(err)
	}
	s.photos.Push(photo)
	debug.Photo(layout.String(), photo.Width, photo.Height, len(photo.PNG))
	s.notify.Notify(Event{Kind: EventPhoto, PhotoID: photo.ID})
	return photo, nil
}

// shoot grabs one frame and applies the mirror flip and the filter.
func (s *Session) shoot(ctx context.Context, released <-chan struct{}, st Settings) (*raster.Buffer, error) {
	frame, err := s.grab(ctx, released)
	if err != nil {
		return nil, err
	}
	if st.Mirror {
		frame.FlipHorizontal()
	}
	filter.Apply(frame, st.Filter)
	return frame, nil
}

// grab reads a frame within the ready timeout. A Stop in the meantime
// turns into camera.ErrSourceUnavailable, an expired timeout into
// camera.ErrSourceTimeout.
func (s *Session) grab(ctx context.Context, released <-chan struct{}) (*raster.Buffer, error) {
	gctx, cancel := context.WithTimeout(ctx, s.timing.ReadyTimeout)
	defer cancel()

	go func() {
		select {
		case <-released:
			cancel()
		case <-gctx.Done():
		}
	}()

	frame, err := s.source.Grab(gctx)
	if err == nil {
		return frame, nil
	}
	select {
	case <-released:
		return nil, camera.ErrSourceUnavailable
	default:
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, camera.ErrSourceTimeout
	}
	return nil, err
}

// wait sleeps for d unless the camera is released or ctx ends first.
func (s *Session) wait(ctx context.Context, released <-chan struct{}, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-released:
		return camera.ErrSourceUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		debug.State(prev.String(), st.String())
		s.notify.Notify(Event{
			Kind:      EventState,
			State:     st.String(),
			Shot:      st.Shot,
			Total:     st.Total,
			Remaining: st.Remaining,
		})
	}
}

func (s *Session) fail(err error) error {
	debug.Error(err)
	s.notify.Notify(Event{Kind: EventError, Error: err.Error()})
	return fmt.Errorf("capture: %w", err)
}

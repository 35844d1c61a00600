package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/hw/camera"
	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
	"github.com/cjeanneret/PhotoBooth/internal/logic/geometry"
	"github.com/cjeanneret/PhotoBooth/internal/logic/store"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

var (
	black  = [4]uint8{0, 0, 0, 255}
	red    = [4]uint8{255, 0, 0, 255}
	green  = [4]uint8{0, 255, 0, 255}
	blue   = [4]uint8{0, 0, 255, 255}
	yellow = [4]uint8{255, 255, 0, 255}
)

// fakeSource serves solid frames; frame n (0 = the readiness check) is drawn
// by paint. Grabs after blockAfter wait for gate.
type fakeSource struct {
	mu         sync.Mutex
	w, h       int
	paint      func(n int, buf *raster.Buffer)
	grabs      int
	open       bool
	closes     int
	openErr    error
	blockAfter int
	gate       chan struct{}
}

func newFakeSource(colors ...[4]uint8) *fakeSource {
	return &fakeSource{
		w: 64, h: 48,
		blockAfter: -1,
		paint: func(n int, buf *raster.Buffer) {
			if len(colors) == 0 {
				buf.Fill(red)
				return
			}
			buf.Fill(colors[n%len(colors)])
		},
	}
}

func (f *fakeSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeSource) Grab(ctx context.Context) (*raster.Buffer, error) {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return nil, camera.ErrSourceUnavailable
	}
	n := f.grabs
	f.grabs++
	gate := f.gate
	block := f.blockAfter >= 0 && n > f.blockAfter
	f.mu.Unlock()

	if block {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	buf, _ := raster.New(f.w, f.h)
	f.paint(n, buf)
	return buf, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closes++
	return nil
}

func (f *fakeSource) Size() (int, int) { return f.w, f.h }

func (f *fakeSource) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func fastTiming() Timing {
	return Timing{
		ReadyTimeout:   time.Second,
		Settle:         time.Millisecond,
		CountdownStep:  time.Millisecond,
		CountdownSteps: 3,
		IdleTimeout:    time.Hour,
	}
}

type fixture struct {
	src     camera.Source
	photos  *store.Store
	events  *recorder
	session *Session
}

func newFixture(t *testing.T, src camera.Source, timing Timing, settings Settings) *fixture {
	t.Helper()
	frames := compose.NewRegistry(nil)
	f := &fixture{src: src, photos: store.New(), events: &recorder{}}
	f.session = NewSession(src, compose.NewCompositor(frames), f.photos, Options{
		Timing:   timing,
		Settings: settings,
		Notifier: f.events,
		Now:      func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func singleSettings() Settings {
	return Settings{Layout: compose.Layout{Kind: compose.Single}, BorderColor: compose.White}
}

func stripSettings() Settings {
	return Settings{Layout: compose.Layout{Kind: compose.FilmStrip}, BorderColor: compose.White}
}

func decode(t *testing.T, p *store.Photo) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(p.PNG))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	return img
}

func rgbAt(img image.Image, x, y int) [3]int {
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]int{int(r >> 8), int(g >> 8), int(b >> 8)}
}

func closeTo(got [3]int, want [4]uint8) bool {
	for i := 0; i < 3; i++ {
		d := got[i] - int(want[i])
		if d < -2 || d > 2 {
			return false
		}
	}
	return true
}

func waitUntil(t *testing.T, cond func() bool) {
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

func TestStart_WaitsForFirstFrame(t *testing.T) {
	f := newFixture(t, newFakeSource(), fastTiming(), singleSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !f.session.Open() {
		t.Error("session should hold the camera")
	}
	if len(f.events.of(EventCameraStarted)) != 1 {
		t.Error("expected one camera-started event")
	}
	// Starting again is a no-op.
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if len(f.events.of(EventCameraStarted)) != 1 {
		t.Error("second Start should not notify")
	}
}

func TestStart_Timeout(t *testing.T) {
	src := camera.NewPattern(8, 8)
	src.Warmup = time.Hour
	timing := fastTiming()
	timing.ReadyTimeout = 5 * time.Millisecond
	f := newFixture(t, src, timing, singleSettings())

	err := f.session.Start(context.Background())
	if !errors.Is(err, camera.ErrSourceTimeout) {
		t.Fatalf("err = %v, want ErrSourceTimeout", err)
	}
	if f.session.Open() {
		t.Error("session should not hold the camera after a timeout")
	}
	if _, err := src.Grab(context.Background()); !errors.Is(err, camera.ErrSourceUnavailable) {
		t.Error("source should be closed after a timeout")
	}
}

func TestStart_OpenError(t *testing.T) {
	src := newFakeSource()
	src.openErr = camera.ErrSourceUnavailable
	f := newFixture(t, src, fastTiming(), singleSettings())

	if err := f.session.Start(context.Background()); !errors.Is(err, camera.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if len(f.events.of(EventError)) != 1 {
		t.Error("expected an error event")
	}
}

func TestRequestCapture_NotStarted(t *testing.T) {
	f := newFixture(t, newFakeSource(), fastTiming(), singleSettings())
	if _, err := f.session.RequestCapture(context.Background()); !errors.Is(err, camera.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if f.photos.Len() != 0 {
		t.Error("no photo should be stored")
	}
}

func TestRequestCapture_Single(t *testing.T) {
	f := newFixture(t, newFakeSource(blue), fastTiming(), singleSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	photo, err := f.session.RequestCapture(context.Background())
	if err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	if photo.MultiShot {
		t.Error("single capture should not be multi-shot")
	}
	if photo.Width != 64 || photo.Height != 48 {
		t.Errorf("size = %dx%d, want 64x48", photo.Width, photo.Height)
	}
	if f.session.Latest() != photo || len(f.session.Photos()) != 1 {
		t.Error("photo not pushed to the store")
	}
	if st := f.session.State(); st.Phase != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	if got := f.events.of(EventPhoto); len(got) != 1 || got[0].PhotoID != photo.ID {
		t.Errorf("photo events = %+v", got)
	}
	if len(f.events.of(EventCountdown)) != 0 {
		t.Error("single capture should not count down")
	}
}

func TestRequestCapture_MirrorAndFilter(t *testing.T) {
	src := newFakeSource()
	src.w, src.h = 4, 2
	src.paint = func(_ int, buf *raster.Buffer) {
		for y := 0; y < buf.Height; y++ {
			for x := 0; x < buf.Width; x++ {
				if x < 2 {
					buf.Set(x, y, red)
				} else {
					buf.Set(x, y, blue)
				}
			}
		}
	}
	settings := singleSettings()
	settings.Mirror = true
	settings.Filter = filter.MonoMuse
	f := newFixture(t, src, fastTiming(), settings)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	photo, err := f.session.RequestCapture(context.Background())
	if err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	img := decode(t, photo)
	// Mirrored: blue is now on the left. MonoMuse maps blue to gray 9 and
	// red to gray 66.
	if got := rgbAt(img, 0, 0); !closeTo(got, [4]uint8{9, 9, 9, 255}) {
		t.Errorf("left pixel = %v, want gray 9", got)
	}
	if got := rgbAt(img, 3, 1); !closeTo(got, [4]uint8{66, 66, 66, 255}) {
		t.Errorf("right pixel = %v, want gray 66", got)
	}
	if photo.Filter != filter.MonoMuse {
		t.Errorf("photo filter = %v", photo.Filter)
	}
}

func TestRequestCapture_FilmStripSequence(t *testing.T) {
	// Frame 0 is the readiness check on Start.
	src := newFakeSource(black, red, green, blue, yellow)
	f := newFixture(t, src, fastTiming(), stripSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	photo, err := f.session.RequestCapture(context.Background())
	if err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	if !photo.MultiShot {
		t.Error("strip photo should be multi-shot")
	}
	if photo.Width != geometry.StripWidth || photo.Height != geometry.StripHeight {
		t.Fatalf("size = %dx%d, want 440x1320", photo.Width, photo.Height)
	}

	shots := f.events.of(EventShot)
	if len(shots) != 4 {
		t.Fatalf("shot events = %d, want 4", len(shots))
	}
	for i, e := range shots {
		if e.Shot != i+1 || e.Total != 4 {
			t.Errorf("shot event %d = %+v", i, e)
		}
	}
	if n := len(f.events.of(EventCountdown)); n != 9 {
		t.Errorf("countdown events = %d, want 3 per gap", n)
	}

	var states []string
	for _, e := range f.events.of(EventState) {
		states = append(states, e.State)
	}
	want := "capturing(1) counting(1) capturing(2) counting(2) capturing(3) counting(3) capturing(4) composing idle"
	if got := strings.Join(dedupe(states), " "); got != want {
		t.Errorf("states = %q\nwant     %q", got, want)
	}

	// Shots appear top to bottom in capture order.
	img := decode(t, photo)
	plan := geometry.PlanFilmStrip(geometry.StripWidth, geometry.StripHeight, geometry.StripShots)
	for i, col := range [][4]uint8{red, green, blue, yellow} {
		cx, cy := plan.Slots[i].Center()
		if got := rgbAt(img, int(cx), int(cy)); !closeTo(got, col) {
			t.Errorf("slot %d = %v, want %v", i, got, col)
		}
	}
}

// dedupe collapses consecutive duplicates (counting steps share a state
// name).
func dedupe(in []string) []string {
	var out []string
	for _, s := range in {
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}

func TestRequestCapture_Busy(t *testing.T) {
	src := newFakeSource()
	src.blockAfter = 0
	src.gate = make(chan struct{})
	f := newFixture(t, src, fastTiming(), singleSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.session.RequestCapture(context.Background())
		done <- err
	}()
	waitUntil(t, func() bool { return f.session.State().Phase == Capturing })

	if _, err := f.session.RequestCapture(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent capture err = %v, want ErrBusy", err)
	}

	close(src.gate)
	if err := <-done; err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if f.photos.Len() != 1 {
		t.Errorf("photos = %d, want 1", f.photos.Len())
	}
}

func TestRequestCapture_StopMidSequence(t *testing.T) {
	timing := fastTiming()
	timing.Settle = time.Hour
	f := newFixture(t, newFakeSource(), timing, stripSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.session.RequestCapture(context.Background())
		done <- err
	}()
	waitUntil(t, func() bool { return len(f.events.of(EventShot)) == 1 })

	if err := f.session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, camera.ErrSourceUnavailable) {
			t.Errorf("err = %v, want ErrSourceUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not wake the pending wait")
	}
	if f.photos.Len() != 0 {
		t.Error("partial shots must be discarded")
	}
	if st := f.session.State(); st.Phase != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	if got := f.events.of(EventCameraStopped); len(got) != 1 || got[0].Reason != "stopped" {
		t.Errorf("camera-stopped events = %+v", got)
	}
}

func TestRequestCapture_ContextCanceled(t *testing.T) {
	timing := fastTiming()
	timing.Settle = time.Hour
	f := newFixture(t, newFakeSource(), timing, stripSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.session.RequestCapture(ctx)
		done <- err
	}()
	waitUntil(t, func() bool { return len(f.events.of(EventShot)) == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !f.session.Open() {
		t.Error("a canceled capture should not release the camera")
	}
}

func TestRequestCapture_ComposeFailure(t *testing.T) {
	src := newFakeSource()
	frames := compose.NewRegistry(nil)
	if err := frames.Register("broken", "Broken", "/does/not/exist.png"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	photos := store.New()
	s := NewSession(src, compose.NewCompositor(frames), photos, Options{
		Timing:   fastTiming(),
		Settings: Settings{Layout: compose.Custom("broken"), BorderColor: compose.White},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := s.RequestCapture(context.Background()); err == nil {
		t.Fatal("expected compose error")
	}
	if photos.Len() != 0 {
		t.Error("no photo should be stored")
	}
	if s.State().Phase != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestIdleWatchdog_ReleasesCamera(t *testing.T) {
	src := newFakeSource()
	timing := fastTiming()
	timing.IdleTimeout = 20 * time.Millisecond
	f := newFixture(t, src, timing, singleSettings())
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitUntil(t, func() bool { return !f.session.Open() })
	time.Sleep(40 * time.Millisecond)

	stopped := f.events.of(EventCameraStopped)
	if len(stopped) != 1 || stopped[0].Reason != "idle" {
		t.Errorf("camera-stopped events = %+v, want one idle release", stopped)
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
	if _, err := f.session.RequestCapture(context.Background()); !errors.Is(err, camera.ErrSourceUnavailable) {
		t.Errorf("capture after idle release: err = %v", err)
	}
}

func TestSettings(t *testing.T) {
	frames := compose.NewRegistry(nil)
	if err := frames.Register("hearts", "Hearts", "hearts.png"); err != nil {
		t.Fatal(err)
	}
	s := NewSession(newFakeSource(), compose.NewCompositor(frames), store.New(), Options{Timing: fastTiming()})

	if got := s.Settings(); got != DefaultSettings() {
		t.Errorf("initial settings = %+v, want defaults", got)
	}

	s.SetFilter(filter.Retrograde)
	s.SetMirror(false)
	if err := s.SetBorderColor("#f0c"); err != nil {
		t.Fatalf("SetBorderColor: %v", err)
	}
	if err := s.SetBorderColor("pink"); err == nil {
		t.Error("invalid color should be rejected")
	}
	if err := s.SetLayout(compose.Custom("hearts")); err != nil {
		t.Fatalf("SetLayout(hearts): %v", err)
	}
	if err := s.SetLayout(compose.Custom("nope")); !errors.Is(err, compose.ErrUnknownFrame) {
		t.Errorf("SetLayout(nope) err = %v, want ErrUnknownFrame", err)
	}

	data, err := json.Marshal(s.Settings())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"filter":"retrograde","layout":"custom-hearts","borderColor":"#ff00cc","mirror":false}`
	if string(data) != want {
		t.Errorf("settings json = %s\nwant %s", data, want)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{State{Phase: Idle}, "idle"},
		{State{Phase: Capturing, Shot: 2}, "capturing(2)"},
		{State{Phase: Counting, Shot: 3, Remaining: 1}, "counting(3)"},
		{State{Phase: Composing}, "composing"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRequestCapture_MissingCustomFrame(t *testing.T) {
	settings := Settings{Layout: compose.Custom("missing-id"), BorderColor: compose.White}
	f := newFixture(t, newFakeSource(), fastTiming(), settings)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := f.session.RequestCapture(context.Background())
	if !errors.Is(err, compose.ErrUnknownFrame) {
		t.Fatalf("err = %v, want ErrUnknownFrame", err)
	}
	if f.photos.Len() != 0 {
		t.Errorf("photos = %d, want 0", f.photos.Len())
	}
	if st := f.session.State(); st.Phase != Idle {
		t.Errorf("state = %v, want idle", st)
	}
	if len(f.events.of(EventShot)) != 0 {
		t.Error("no shot should be taken for a missing frame")
	}

	if err := f.session.SetLayout(compose.Layout{Kind: compose.Single}); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	if _, err := f.session.RequestCapture(context.Background()); err != nil {
		t.Fatalf("capture after switching layout: %v", err)
	}
	if f.photos.Len() != 1 {
		t.Errorf("photos = %d, want 1", f.photos.Len())
	}
}

func TestRequestCapture_Polaroid(t *testing.T) {
	src := newFakeSource(red)
	src.w, src.h = 640, 480
	settings := Settings{Layout: compose.Layout{Kind: compose.Polaroid}, BorderColor: compose.White}
	f := newFixture(t, src, fastTiming(), settings)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	photo, err := f.session.RequestCapture(context.Background())
	if err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	if photo.Width != 720 || photo.Height != 640 || photo.MultiShot {
		t.Fatalf("photo = %dx%d multiShot=%v, want 720x640 single shot", photo.Width, photo.Height, photo.MultiShot)
	}
	img := decode(t, photo)
	if got := rgbAt(img, 0, 0); !closeTo(got, [4]uint8{255, 255, 255, 255}) {
		t.Errorf("pixel (0,0) = %v, want white", got)
	}
	if got := rgbAt(img, 360, 300); !closeTo(got, red) {
		t.Errorf("pixel (360,300) = %v, want red", got)
	}
}

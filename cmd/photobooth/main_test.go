package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/config"
	"github.com/cjeanneret/PhotoBooth/internal/hw/camera"
	"github.com/cjeanneret/PhotoBooth/internal/hw/gpio"
	"github.com/cjeanneret/PhotoBooth/internal/hw/indicator"
	"github.com/cjeanneret/PhotoBooth/internal/logic/capture"
	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
	"github.com/cjeanneret/PhotoBooth/internal/logic/store"
)

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- config wiring ----------

func mustParse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestNewSourceFromConfig(t *testing.T) {
	src, err := newSourceFromConfig(mustParse(t, "camera:\n  width: 320\n  height: 240"))
	if err != nil {
		t.Fatalf("pattern: %v", err)
	}
	if _, ok := src.(*camera.Pattern); !ok {
		t.Errorf("pattern driver built %T", src)
	}
	if w, h := src.Size(); w != 320 || h != 240 {
		t.Errorf("Size() = %dx%d, want 320x240", w, h)
	}

	src, err = newSourceFromConfig(mustParse(t, "camera:\n  driver: ffmpeg\n  input: /dev/video0\n  format: v4l2\n  width: 640\n  height: 480"))
	if err != nil {
		t.Fatalf("ffmpeg: %v", err)
	}
	if _, ok := src.(*camera.FFmpeg); !ok {
		t.Errorf("ffmpeg driver built %T", src)
	}

	bad := mustParse(t, "")
	bad.Camera.Driver = "webcam"
	if _, err := newSourceFromConfig(bad); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := mustParse(t, "frames:\n  - id: hearts\n    label: Hearts\n    file: hearts.png\n  - id: stars\n    file: stars.png")
	frames, err := newRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("newRegistryFromConfig: %v", err)
	}
	list := frames.List()
	if len(list) != 2 {
		t.Fatalf("List() = %+v, want 2 frames", list)
	}
	if list[0].ID != "hearts" || list[0].Label != "Hearts" {
		t.Errorf("hearts = %+v", list[0])
	}
	if list[1].Label != "stars" {
		t.Errorf("missing label should default to the id, got %q", list[1].Label)
	}
}

func TestSessionSettingsFromConfig(t *testing.T) {
	cfg := mustParse(t, "defaults:\n  filter: solshine\n  layout: collage\n  border_color: \"#102030\"\n  mirror: false")
	got := sessionSettings(cfg)
	if got.Filter != filter.SolShine || got.Layout != (compose.Layout{Kind: compose.Collage}) {
		t.Errorf("settings = %+v", got)
	}
	if compose.FormatColor(got.BorderColor) != "#102030" || got.Mirror {
		t.Errorf("settings = %+v", got)
	}

	timing := sessionTiming(mustParse(t, "session:\n  countdown_steps: 5\n  idle_timeout_s: 60"))
	if timing.CountdownSteps != 5 || timing.IdleTimeout != time.Minute || timing.ReadyTimeout != 10*time.Second {
		t.Errorf("timing = %+v", timing)
	}
}

// ---------- runOnce ----------

func TestRunOnce_WritesPhoto(t *testing.T) {
	src := camera.NewPattern(32, 24)
	session := capture.NewSession(src, compose.NewCompositor(nil), store.New(), capture.Options{
		Timing: capture.Timing{
			ReadyTimeout:   time.Second,
			Settle:         time.Millisecond,
			CountdownStep:  time.Millisecond,
			CountdownSteps: 1,
			IdleTimeout:    time.Minute,
		},
		Settings: capture.Settings{Layout: compose.Layout{Kind: compose.Polaroid}, Mirror: true, BorderColor: compose.White},
	})

	out := filepath.Join(t.TempDir(), "shot.png")
	path, err := runOnce(context.Background(), session, out)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if path != out {
		t.Errorf("path = %q, want %q", path, out)
	}
	if session.Open() {
		t.Error("camera should be released after a one-shot capture")
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Polaroid adds 40px sides and top and 120px below the photo.
	if b := img.Bounds(); b.Dx() != 112 || b.Dy() != 184 {
		t.Errorf("photo = %dx%d, want 112x184", b.Dx(), b.Dy())
	}
}

func TestRunOnce_CameraUnavailable(t *testing.T) {
	session := capture.NewSession(camera.NewPattern(0, 0), compose.NewCompositor(nil), store.New(), capture.Options{})
	if _, err := runOnce(context.Background(), session, filepath.Join(t.TempDir(), "x.png")); err == nil {
		t.Error("expected error for an unusable source")
	}
}

// ---------- ledNotifier ----------

func TestLEDNotifier(t *testing.T) {
	g := gpio.NewMockDriver()
	led, err := indicator.New(g, indicator.Config{Pin: 17})
	if err != nil {
		t.Fatalf("indicator.New: %v", err)
	}
	n := ledNotifier(led)

	n.Notify(capture.Event{Kind: capture.EventCameraStarted})
	if lvl, _ := g.ReadPin(17); lvl != gpio.High || !led.On() {
		t.Errorf("camera-started: pin=%v on=%v, want lit", lvl, led.On())
	}

	n.Notify(capture.Event{Kind: capture.EventState, State: "capturing(1)"})
	if !led.On() {
		t.Error("state events should not change the LED")
	}

	n.Notify(capture.Event{Kind: capture.EventCameraStopped, Reason: "idle"})
	if lvl, _ := g.ReadPin(17); lvl != gpio.Low || led.On() {
		t.Errorf("camera-stopped: pin=%v on=%v, want dark", lvl, led.On())
	}
}

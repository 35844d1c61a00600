package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/config"
	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/hw/button"
	"github.com/cjeanneret/PhotoBooth/internal/hw/camera"
	"github.com/cjeanneret/PhotoBooth/internal/hw/gpio"
	"github.com/cjeanneret/PhotoBooth/internal/hw/indicator"
	"github.com/cjeanneret/PhotoBooth/internal/logic/capture"
	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/store"
	"github.com/cjeanneret/PhotoBooth/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	filterName := flag.String("filter", "", "override default filter (none, monomuse, retrograde, vivapop, solshine)")
	layoutName := flag.String("layout", "", "override default layout (single, polaroid, strip, collage, custom-<id>)")
	borderColor := flag.String("color", "", "override default border color (#rrggbb)")
	outPath := flag.String("out", "", "one-shot mode: write the photo here (default: photobooth-<time>.png)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cfg, err = cfg.WithOverrides(config.Overrides{
		Filter:      *filterName,
		Layout:      *layoutName,
		BorderColor: *borderColor,
	})
	if err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Value("Mock GPIO", cfg.GPIO.Mock)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.GPIO.Mock)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Loading custom frames")
	frames, err := newRegistryFromConfig(cfg)
	if err != nil {
		log.Fatalf("load frames failed: %v", err)
	}

	debug.Step(3, "Initializing camera")
	src, err := newSourceFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.PrintStruct("Camera config", cfg.Camera)

	comp := compose.NewCompositor(frames)
	comp.SingleSize = image.Pt(cfg.Compositor.SingleWidth, cfg.Compositor.SingleHeight)

	led, err := indicator.New(gpioDriver, indicator.Config{Pin: cfg.GPIO.LEDPin, ActiveLow: cfg.GPIO.LEDActiveLow})
	if err != nil {
		log.Fatalf("init LED failed: %v", err)
	}
	notifiers := capture.Notifiers{ledNotifier(led)}

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		notifiers = append(notifiers, broadcaster)
	}

	debug.Step(4, "Creating capture session")
	session := capture.NewSession(src, comp, store.New(), capture.Options{
		Timing:   sessionTiming(cfg),
		Settings: sessionSettings(cfg),
		Notifier: notifiers,
	})
	defer session.Stop()
	debug.PrintStruct("Session timing", sessionTiming(cfg))

	if port := webPort.port(); port > 0 {
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		if cfg.GPIO.ButtonPin > 0 {
			debug.Step(5, "Watching shutter button")
			btn, err := button.New(gpioDriver, button.Config{Pin: cfg.GPIO.ButtonPin, Debounce: cfg.ButtonDebounce()})
			if err != nil {
				log.Fatalf("init button failed: %v", err)
			}
			go func() {
				if err := btn.Run(ctx, func() { go onButton(ctx, session) }); err != nil {
					log.Printf("button: %v", err)
				}
			}()
		}

		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, session, frames)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	{
		// Take one photo with the configured settings and exit.
		path, err := runOnce(ctx, session, *outPath)
		if err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		fmt.Println(path)
	}
}

// runOnce starts the camera, takes one photo and writes it to outPath, or
// to its download name in the working directory when outPath is empty.
func runOnce(ctx context.Context, session *capture.Session, outPath string) (string, error) {
	if err := session.Start(ctx); err != nil {
		return "", err
	}
	defer session.Stop()

	photo, err := session.RequestCapture(ctx)
	if err != nil {
		return "", err
	}
	if outPath == "" {
		outPath = photo.Filename()
	}
	if err := os.WriteFile(outPath, photo.PNG, 0o644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	debug.Info("Photo written to %s (%dx%d)", outPath, photo.Width, photo.Height)
	return outPath, nil
}

// onButton starts the camera if needed and takes a photo.
func onButton(ctx context.Context, session *capture.Session) {
	session.Touch()
	if !session.Open() {
		if err := session.Start(ctx); err != nil {
			log.Printf("button: %v", err)
			return
		}
	}
	if _, err := session.RequestCapture(ctx); err != nil {
		if errors.Is(err, capture.ErrBusy) {
			debug.Verbose("Button: capture already running")
			return
		}
		log.Printf("button: %v", err)
	}
}

// ledNotifier lights the LED while the camera is held and flashes it per shot.
func ledNotifier(led *indicator.LED) capture.Notifier {
	return capture.NotifierFunc(func(ev capture.Event) {
		var err error
		switch ev.Kind {
		case capture.EventCameraStarted:
			err = led.Set(true)
		case capture.EventCameraStopped:
			err = led.Set(false)
		case capture.EventShot:
			go func() {
				if err := led.Blink(80 * time.Millisecond); err != nil {
					debug.Error(err)
				}
			}()
		}
		if err != nil {
			debug.Error(err)
		}
	})
}

func sessionTiming(cfg *config.Config) capture.Timing {
	return capture.Timing{
		ReadyTimeout:   cfg.ReadyTimeout(),
		Settle:         cfg.Settle(),
		CountdownStep:  cfg.CountdownStep(),
		CountdownSteps: cfg.Session.CountdownSteps,
		IdleTimeout:    cfg.IdleTimeout(),
	}
}

func sessionSettings(cfg *config.Config) capture.Settings {
	return capture.Settings{
		Filter:      cfg.Filter(),
		Layout:      cfg.Layout(),
		BorderColor: cfg.BorderColor(),
		Mirror:      cfg.Mirror(),
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newSourceFromConfig selects a camera source based on configuration.
func newSourceFromConfig(cfg *config.Config) (camera.Source, error) {
	switch cfg.Camera.Driver {
	case config.DriverPattern:
		return camera.NewPattern(cfg.Camera.Width, cfg.Camera.Height), nil
	case config.DriverFFmpeg:
		return camera.NewFFmpeg(camera.FFmpegConfig{
			Input:  cfg.Camera.Input,
			Format: cfg.Camera.Format,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported camera driver: %s", cfg.Camera.Driver)
	}
}

// newRegistryFromConfig registers every configured frame. Frame images are
// decoded on first use.
func newRegistryFromConfig(cfg *config.Config) (*compose.Registry, error) {
	frames := compose.NewRegistry(nil)
	for _, fr := range cfg.Frames {
		label := fr.Label
		if label == "" {
			label = fr.ID
		}
		if err := frames.Register(fr.ID, label, cfg.FramePath(fr)); err != nil {
			return nil, err
		}
		debug.Verbose("Frame %q -> %s", fr.ID, cfg.FramePath(fr))
	}
	return frames, nil
}

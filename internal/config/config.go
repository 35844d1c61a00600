package config

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Camera drivers.
const (
	DriverPattern = "pattern"
	DriverFFmpeg  = "ffmpeg"
)

// CameraConfig selects and sizes the live source.
type CameraConfig struct {
	Driver         string `yaml:"driver"`           // "pattern" or "ffmpeg"
	Input          string `yaml:"input"`            // ffmpeg device or file
	Format         string `yaml:"format"`           // ffmpeg input format, empty for files
	Width          int    `yaml:"width"`            // frame width (px); files may leave 0 to ask ffprobe
	Height         int    `yaml:"height"`           // frame height (px)
	FPS            int    `yaml:"fps"`              // requested frame rate
	ReadyTimeoutMs int    `yaml:"ready_timeout_ms"` // wait for a usable frame (ms)
}

// SessionConfig holds the capture pacing.
type SessionConfig struct {
	SettleMs        int `yaml:"settle_ms"`         // pause after each strip shot (ms)
	CountdownStepMs int `yaml:"countdown_step_ms"` // one countdown tick (ms)
	CountdownSteps  int `yaml:"countdown_steps"`   // ticks between strip shots
	IdleTimeoutS    int `yaml:"idle_timeout_s"`    // release the camera when idle (s)
}

// CompositorConfig sizes the Single layout. Zero means the frame size.
type CompositorConfig struct {
	SingleWidth  int `yaml:"single_width"`
	SingleHeight int `yaml:"single_height"`
}

// FrameConfig registers a custom overlay.
type FrameConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	File  string `yaml:"file"` // PNG or WebP, relative to the config file
}

// GPIOConfig wires the shutter button and privacy LED. Pin 0 = not used.
type GPIOConfig struct {
	Mock             bool `yaml:"mock"`               // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ButtonPin        int  `yaml:"button_pin"`         // BCM pin, button to ground
	ButtonDebounceMs int  `yaml:"button_debounce_ms"` // press must hold this long (ms)
	LEDPin           int  `yaml:"led_pin"`            // BCM pin of the privacy LED
	LEDActiveLow     bool `yaml:"led_active_low"`
}

// DefaultsConfig holds the initial operator settings.
type DefaultsConfig struct {
	Filter      string `yaml:"filter"`       // none, monomuse, retrograde, vivapop, solshine
	Layout      string `yaml:"layout"`       // single, polaroid, strip, collage, custom-<id>
	BorderColor string `yaml:"border_color"` // #rgb or #rrggbb
	Mirror      *bool  `yaml:"mirror"`       // flip captures like a mirror (default true)
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Session    SessionConfig    `yaml:"session"`
	Compositor CompositorConfig `yaml:"compositor"`
	Frames     []FrameConfig    `yaml:"frames"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	Defaults   DefaultsConfig   `yaml:"defaults"`

	// Dir is the directory of the loaded file; frame files resolve against it.
	Dir string `yaml:"-"`
}

// ValidateConfigPath accepts only .yaml files directly inside a configs/
// directory, after cleaning the path.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q escapes its directory", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.Driver == "" {
		c.Camera.Driver = DriverPattern
	}
	if c.Camera.Driver == DriverPattern {
		if c.Camera.Width <= 0 {
			c.Camera.Width = 640
		}
		if c.Camera.Height <= 0 {
			c.Camera.Height = 480
		}
	}
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = 15
	}
	if c.Camera.ReadyTimeoutMs <= 0 {
		c.Camera.ReadyTimeoutMs = 10000
	}
	if c.Session.SettleMs <= 0 {
		c.Session.SettleMs = 1000
	}
	if c.Session.CountdownStepMs <= 0 {
		c.Session.CountdownStepMs = 1000
	}
	if c.Session.CountdownSteps <= 0 {
		c.Session.CountdownSteps = 3
	}
	if c.Session.IdleTimeoutS <= 0 {
		c.Session.IdleTimeoutS = 300
	}
	if c.GPIO.ButtonDebounceMs <= 0 {
		c.GPIO.ButtonDebounceMs = 50
	}
	if c.Defaults.Filter == "" {
		c.Defaults.Filter = filter.None.String()
	}
	if c.Defaults.Layout == "" {
		c.Defaults.Layout = compose.Layout{Kind: compose.FilmStrip}.String()
	}
	if c.Defaults.BorderColor == "" {
		c.Defaults.BorderColor = "#ffffff"
	}
	if c.Defaults.Mirror == nil {
		on := true
		c.Defaults.Mirror = &on
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Camera.Driver {
	case DriverPattern:
	case DriverFFmpeg:
		if c.Camera.Input == "" {
			return errors.New("camera.input is required for the ffmpeg driver")
		}
		if c.Camera.Format != "" && (c.Camera.Width <= 0 || c.Camera.Height <= 0) {
			return errors.New("camera.width and camera.height are required for ffmpeg devices")
		}
	default:
		return fmt.Errorf("unsupported camera.driver: %s", c.Camera.Driver)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS > 120 {
		return fmt.Errorf("camera.fps must be <= 120, got %d", c.Camera.FPS)
	}
	if c.Compositor.SingleWidth < 0 || c.Compositor.SingleHeight < 0 ||
		(c.Compositor.SingleWidth == 0) != (c.Compositor.SingleHeight == 0) {
		return errors.New("compositor.single_width and single_height must both be set or both be 0")
	}

	seen := make(map[string]bool)
	for i, fr := range c.Frames {
		if fr.ID == "" {
			return fmt.Errorf("frames[%d].id is required", i)
		}
		if fr.File == "" {
			return fmt.Errorf("frames[%d].file is required", i)
		}
		if seen[fr.ID] {
			return fmt.Errorf("duplicate frame id %q", fr.ID)
		}
		seen[fr.ID] = true
	}

	if err := validatePin("gpio.button_pin", c.GPIO.ButtonPin); err != nil {
		return err
	}
	if err := validatePin("gpio.led_pin", c.GPIO.LEDPin); err != nil {
		return err
	}
	if c.GPIO.ButtonPin > 0 && c.GPIO.ButtonPin == c.GPIO.LEDPin {
		return fmt.Errorf("gpio.button_pin and gpio.led_pin share pin %d", c.GPIO.ButtonPin)
	}

	if _, err := filter.Parse(c.Defaults.Filter); err != nil {
		return fmt.Errorf("defaults.filter: %w", err)
	}
	layout, err := compose.ParseLayout(c.Defaults.Layout)
	if err != nil {
		return fmt.Errorf("defaults.layout: %w", err)
	}
	if layout.Kind == compose.CustomOverlay && !seen[layout.FrameID] {
		return fmt.Errorf("defaults.layout: frame %q is not configured", layout.FrameID)
	}
	if _, err := compose.ParseColor(c.Defaults.BorderColor); err != nil {
		return fmt.Errorf("defaults.border_color: %w", err)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func validatePin(name string, pin int) error {
	if pin < 0 || pin > 27 {
		return fmt.Errorf("%s must be a BCM pin between 0 and 27, got %d", name, pin)
	}
	return nil
}

// ReadyTimeout returns how long to wait for a usable frame.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Camera.ReadyTimeoutMs) * time.Millisecond
}

// Settle returns the pause after each strip shot.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Session.SettleMs) * time.Millisecond
}

// CountdownStep returns the duration of one countdown tick.
func (c *Config) CountdownStep() time.Duration {
	return time.Duration(c.Session.CountdownStepMs) * time.Millisecond
}

// IdleTimeout returns the camera idle release delay.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutS) * time.Second
}

// ButtonDebounce returns the shutter button debounce time.
func (c *Config) ButtonDebounce() time.Duration {
	return time.Duration(c.GPIO.ButtonDebounceMs) * time.Millisecond
}

// Filter returns the parsed default filter.
func (c *Config) Filter() filter.Kind {
	k, _ := filter.Parse(c.Defaults.Filter)
	return k
}

// Layout returns the parsed default layout.
func (c *Config) Layout() compose.Layout {
	l, _ := compose.ParseLayout(c.Defaults.Layout)
	return l
}

// BorderColor returns the parsed default border color.
func (c *Config) BorderColor() color.NRGBA {
	col, err := compose.ParseColor(c.Defaults.BorderColor)
	if err != nil {
		return compose.White
	}
	return col
}

// Mirror reports whether captures are mirrored.
func (c *Config) Mirror() bool {
	return c.Defaults.Mirror == nil || *c.Defaults.Mirror
}

// FramePath resolves a frame file against the config directory.
func (c *Config) FramePath(fr FrameConfig) string {
	if filepath.IsAbs(fr.File) || c.Dir == "" {
		return fr.File
	}
	return filepath.Join(c.Dir, fr.File)
}

// Overrides replace default settings, typically from CLI flags. Empty
// fields keep the configured value.
type Overrides struct {
	Filter      string
	Layout      string
	BorderColor string
}

// WithOverrides returns a validated copy of c with o applied. c is left
// untouched.
func (c *Config) WithOverrides(o Overrides) (*Config, error) {
	cp := *c
	if o.Filter != "" {
		cp.Defaults.Filter = o.Filter
	}
	if o.Layout != "" {
		cp.Defaults.Layout = o.Layout
	}
	if o.BorderColor != "" {
		cp.Defaults.BorderColor = o.BorderColor
	}
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid override: %w", err)
	}
	return &cp, nil
}

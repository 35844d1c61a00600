package compose

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/PhotoBooth/internal/logic/geometry"
)

// LayoutKind enumerates the frame layouts.
type LayoutKind int

const (
	Single LayoutKind = iota
	Polaroid
	FilmStrip
	Collage
	CustomOverlay
)

const customPrefix = "custom-"

var layoutNames = map[LayoutKind]string{
	Single:    "single",
	Polaroid:  "polaroid",
	FilmStrip: "strip",
	Collage:   "collage",
}

// Layout is a frame layout; FrameID is only set for CustomOverlay.
type Layout struct {
	Kind    LayoutKind
	FrameID string
}

// Custom returns the CustomOverlay layout for a registered frame id.
func Custom(id string) Layout {
	return Layout{Kind: CustomOverlay, FrameID: id}
}

// Layouts lists the built-in layouts in display order.
func Layouts() []Layout {
	return []Layout{{Kind: FilmStrip}, {Kind: Single}, {Kind: Polaroid}, {Kind: Collage}}
}

// RequiredShots is the number of shots the layout composes.
func (l Layout) RequiredShots() int {
	if l.Kind == FilmStrip {
		return geometry.StripShots
	}
	return 1
}

// MultiShot reports whether the layout needs a timed shot sequence.
func (l Layout) MultiShot() bool {
	return l.RequiredShots() > 1
}

func (l Layout) String() string {
	if l.Kind == CustomOverlay {
		return customPrefix + l.FrameID
	}
	if name, ok := layoutNames[l.Kind]; ok {
		return name
	}
	return fmt.Sprintf("layout(%d)", int(l.Kind))
}

// ParseLayout maps "single", "polaroid", "strip", "collage" or
// "custom-<id>" to a Layout. "none" and the empty string mean Single.
// Custom ids are not resolved here.
func ParseLayout(name string) (Layout, error) {
	name = strings.TrimSpace(name)
	if id, ok := strings.CutPrefix(name, customPrefix); ok {
		if id == "" {
			return Layout{}, fmt.Errorf("custom layout needs a frame id")
		}
		return Custom(id), nil
	}
	lower := strings.ToLower(name)
	if lower == "" || lower == "none" {
		return Layout{Kind: Single}, nil
	}
	for k, n := range layoutNames {
		if n == lower {
			return Layout{Kind: k}, nil
		}
	}
	return Layout{}, fmt.Errorf("unknown layout %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (l Layout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Layout) UnmarshalText(text []byte) error {
	parsed, err := ParseLayout(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

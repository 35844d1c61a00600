package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// Kind selects one of the fixed color looks.
type Kind int

const (
	None Kind = iota
	MonoMuse
	Retrograde
	VivaPop
	SolShine
)

var kindNames = map[Kind]string{
	None:       "none",
	MonoMuse:   "monomuse",
	Retrograde: "retrograde",
	VivaPop:    "vivapop",
	SolShine:   "solshine",
}

// Kinds lists every filter in display order.
func Kinds() []Kind {
	return []Kind{None, MonoMuse, Retrograde, VivaPop, SolShine}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int(k))
}

// Parse maps a filter name ("none", "monomuse", ...) to its Kind.
// The empty string means None.
func Parse(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown filter %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown filter %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Apply transforms every pixel of buf in place. Dimensions and alpha are
// never changed; each channel is clamped to [0,255].
func Apply(buf *raster.Buffer, kind Kind) {
	stages := pipelines[kind]
	if len(stages) == 0 || buf == nil {
		return
	}

	pix := buf.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		px := rgb{float64(pix[i]), float64(pix[i+1]), float64(pix[i+2])}
		for _, stage := range stages {
			px = stage(px)
		}
		pix[i] = clamp(px.r)
		pix[i+1] = clamp(px.g)
		pix[i+2] = clamp(px.b)
	}
}

// clamp rounds half to even, like a byte-clamped canvas array.
func clamp(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(v))
}

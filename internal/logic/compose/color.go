package compose

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Fixed palette used by the layouts.
var (
	white          = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black          = color.NRGBA{A: 0xff}
	stripDark      = color.NRGBA{R: 0x2a, G: 0x2a, B: 0x2a, A: 0xff}
	collageStroke  = color.NRGBA{R: 0xd4, G: 0xc4, B: 0xa8, A: 0xff}
	stripShadow    = color.NRGBA{A: 77} // rgba(0,0,0,0.3)
	collageShadow  = color.NRGBA{A: 26} // rgba(0,0,0,0.1)
	polaroidShadow = color.NRGBA{A: 51} // rgba(0,0,0,0.2)
)

// White is the default border color.
var White = white

// ParseColor parses "#rgb" or "#rrggbb" (the leading '#' is optional).
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #rgb or #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// FormatColor renders c as "#rrggbb".
func FormatColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// stripBackground maps the border color to the strip background: white is
// swapped for dark gray so the white photo borders stay visible.
func stripBackground(c color.NRGBA) color.NRGBA {
	if c.R == 0xff && c.G == 0xff && c.B == 0xff {
		return stripDark
	}
	return c
}

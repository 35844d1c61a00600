package geometry

import (
	"image"
	"math"
)

// Rect is a floating point rectangle in canvas pixels.
type Rect struct {
	X, Y float64 // top-left corner
	W, H float64 // size
}

// Pixels rounds the rectangle edges to the nearest pixel.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)),
		int(math.Round(r.Y+r.H)),
	)
}

// Grow expands the rectangle by d on every side (shrinks when d < 0).
func (r Rect) Grow(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d}
}

// Offset moves the rectangle by (dx, dy).
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Center returns the rectangle center.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Aspect returns w/h, or 0 for a degenerate height.
func Aspect(w, h float64) float64 {
	if h == 0 {
		return 0
	}
	return w / h
}

// Cover scales a src-sized image so that it fills box entirely, keeping its
// aspect ratio; the overflow is centered and left for the caller to clip.
// A source wider than the box is fitted by height and centered horizontally,
// otherwise it is fitted by width and centered vertically.
func Cover(srcW, srcH float64, box Rect) Rect {
	srcAspect := Aspect(srcW, srcH)
	if srcAspect > Aspect(box.W, box.H) {
		h := box.H
		w := h * srcAspect
		return Rect{X: box.X + (box.W-w)/2, Y: box.Y, W: w, H: h}
	}
	w := box.W
	h := w / srcAspect
	return Rect{X: box.X, Y: box.Y + (box.H-h)/2, W: w, H: h}
}

// Contain scales a src-sized image to the largest size that fits inside box,
// keeping its aspect ratio, centered. Nothing is cropped.
func Contain(srcW, srcH float64, box Rect) Rect {
	return ScaleCentered(srcW, srcH, box, 1)
}

// ScaleCentered fits src inside box like Contain, then scales the result by
// factor around the box center.
func ScaleCentered(srcW, srcH float64, box Rect, factor float64) Rect {
	scale := math.Min(box.W/srcW, box.H/srcH) * factor
	w := srcW * scale
	h := srcH * scale
	return Rect{X: box.X + (box.W-w)/2, Y: box.Y + (box.H-h)/2, W: w, H: h}
}

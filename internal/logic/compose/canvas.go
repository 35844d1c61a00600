package compose

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/cjeanneret/PhotoBooth/internal/logic/geometry"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// canvas is a premultiplied drawing surface with a few 2D primitives.
type canvas struct {
	img *image.RGBA
}

func newCanvas(w, h int) *canvas {
	return &canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (c *canvas) fill(col color.Color) {
	xdraw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, xdraw.Src)
}

// fillRect composites col over r; translucent colors blend with what is below.
func (c *canvas) fillRect(r geometry.Rect, col color.Color) {
	xdraw.Draw(c.img, r.Pixels(), image.NewUniform(col), image.Point{}, xdraw.Over)
}

// strokeRect draws a rectangle outline of the given width centered on r's
// edges.
func (c *canvas) strokeRect(r geometry.Rect, width float64, col color.Color) {
	h := width / 2
	c.fillRect(geometry.Rect{X: r.X - h, Y: r.Y - h, W: r.W + width, H: width}, col)       // top
	c.fillRect(geometry.Rect{X: r.X - h, Y: r.Y + r.H - h, W: r.W + width, H: width}, col) // bottom
	c.fillRect(geometry.Rect{X: r.X - h, Y: r.Y + h, W: width, H: r.H - width}, col)       // left
	c.fillRect(geometry.Rect{X: r.X + r.W - h, Y: r.Y + h, W: width, H: r.H - width}, col) // right
}

// drawAt copies src unscaled with its top-left corner at (x, y).
func (c *canvas) drawAt(src image.Image, x, y int) {
	b := src.Bounds()
	dst := image.Rect(x, y, x+b.Dx(), y+b.Dy())
	xdraw.Draw(c.img, dst, src, b.Min, xdraw.Over)
}

// drawScaled stretches src into r. Parts of r outside the canvas are clipped.
func (c *canvas) drawScaled(src image.Image, r geometry.Rect) {
	xdraw.CatmullRom.Scale(c.img, r.Pixels(), src, src.Bounds(), xdraw.Over, nil)
}

// drawRotated stretches src into r and rotates it by theta around r's center.
func (c *canvas) drawRotated(src image.Image, r geometry.Rect, theta float64) {
	b := src.Bounds()
	m := geometry.RotateAbout(float64(b.Dx()), float64(b.Dy()), r, theta)
	// The transform is expressed for a source anchored at the origin.
	m[2] -= m[0]*float64(b.Min.X) + m[1]*float64(b.Min.Y)
	m[5] -= m[3]*float64(b.Min.X) + m[4]*float64(b.Min.Y)
	xdraw.BiLinear.Transform(c.img, f64.Aff3(m), src, b, xdraw.Over, nil)
}

// dropShadow paints a blurred shadow of rect r, offset by (dx, dy). sigma is
// half the canvas-style blur length.
func (c *canvas) dropShadow(r geometry.Rect, dx, dy, blur float64, col color.NRGBA) {
	sigma := blur / 2
	spread := int(math.Ceil(sigma * 3))
	shadow := r.Offset(dx, dy).Pixels()
	area := shadow.Inset(-spread).Intersect(c.img.Bounds())
	if area.Empty() {
		return
	}

	w, h := area.Dx(), area.Dy()
	alpha := make([]float32, w*h)
	for y := shadow.Min.Y; y < shadow.Max.Y; y++ {
		for x := shadow.Min.X; x < shadow.Max.X; x++ {
			if (image.Point{X: x, Y: y}).In(area) {
				alpha[(y-area.Min.Y)*w+(x-area.Min.X)] = 1
			}
		}
	}
	blurAlpha(alpha, w, h, gaussianKernel(sigma))

	mask := image.NewAlpha(area)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := alpha[y*w+x] * float32(col.A)
			mask.Pix[y*mask.Stride+x] = uint8(math.Min(255, math.Round(float64(v))))
		}
	}
	solid := image.NewUniform(color.NRGBA{R: col.R, G: col.G, B: col.B, A: 0xff})
	xdraw.DrawMask(c.img, area, solid, image.Point{}, mask, area.Min, xdraw.Over)
}

// buffer converts the canvas to a straight-alpha raster buffer.
func (c *canvas) buffer() *raster.Buffer {
	return raster.FromImage(c.img)
}

// gaussianKernel returns a normalized 1D kernel covering three sigmas.
func gaussianKernel(sigma float64) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}
	half := int(math.Ceil(sigma * 3))
	kernel := make([]float32, 2*half+1)
	twoSigmaSq := 2 * sigma * sigma
	var sum float64
	for i := range kernel {
		x := float64(i - half)
		v := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(v)
		sum += v
	}
	for i := range kernel {
		kernel[i] = float32(float64(kernel[i]) / sum)
	}
	return kernel
}

// blurAlpha runs a separable blur over a w x h single channel buffer in
// place. Samples outside the buffer count as zero.
func blurAlpha(buf []float32, w, h int, kernel []float32) {
	half := len(kernel) / 2
	tmp := make([]float32, len(buf))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for k, kv := range kernel {
				sx := x + k - half
				if sx >= 0 && sx < w {
					sum += buf[y*w+sx] * kv
				}
			}
			tmp[y*w+x] = sum
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for k, kv := range kernel {
				sy := y + k - half
				if sy >= 0 && sy < h {
					sum += tmp[sy*w+x] * kv
				}
			}
			buf[y*w+x] = sum
		}
	}
}

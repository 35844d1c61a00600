package raster

import (
	"fmt"
	"image"
	"image/draw"
)

// Buffer is a row-major RGBA pixel buffer with straight (non-premultiplied)
// alpha: 4 bytes per pixel, len(Pix) == Width*Height*4.
//
// A Buffer has a single owner at a time. A stage that hands a buffer to the
// next stage (capture -> filter -> compositor -> store) must not touch it again.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed (fully transparent) buffer.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", width, height)
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}, nil
}

// Wrap builds a buffer around existing RGBA bytes without copying.
func Wrap(width, height int, pix []uint8) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("raster: got %d bytes for %dx%d, want %d", len(pix), width, height, width*height*4)
	}
	return &Buffer{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any image into a new buffer.
func FromImage(img image.Image) *Buffer {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Buffer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// NRGBA exposes the buffer as an image sharing the same bytes.
func (b *Buffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Bounds returns the buffer rectangle anchored at the origin.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// At returns the RGBA bytes of pixel (x, y).
func (b *Buffer) At(x, y int) [4]uint8 {
	i := (y*b.Width + x) * 4
	return [4]uint8{b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]}
}

// Set writes the RGBA bytes of pixel (x, y).
func (b *Buffer) Set(x, y int, px [4]uint8) {
	i := (y*b.Width + x) * 4
	copy(b.Pix[i:i+4], px[:])
}

// Fill paints every pixel with px.
func (b *Buffer) Fill(px [4]uint8) {
	for i := 0; i < len(b.Pix); i += 4 {
		copy(b.Pix[i:i+4], px[:])
	}
}

// FlipHorizontal mirrors the buffer in place around its vertical axis.
func (b *Buffer) FlipHorizontal() {
	stride := b.Width * 4
	for y := 0; y < b.Height; y++ {
		row := b.Pix[y*stride : (y+1)*stride]
		for l, r := 0, b.Width-1; l < r; l, r = l+1, r-1 {
			li, ri := l*4, r*4
			for c := 0; c < 4; c++ {
				row[li+c], row[ri+c] = row[ri+c], row[li+c]
			}
		}
	}
}

// Valid reports whether Pix matches the declared dimensions.
func (b *Buffer) Valid() bool {
	return b != nil && b.Width > 0 && b.Height > 0 && len(b.Pix) == b.Width*b.Height*4
}

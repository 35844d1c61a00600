package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestNew_InvalidSize(t *testing.T) {
	cases := []struct {
		name string
		w, h int
	}{
		{"zero_width", 0, 10},
		{"zero_height", 10, 0},
		{"negative", -1, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.w, tc.h); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNew_Length(t *testing.T) {
	b, err := New(3, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(b.Pix) != 3*2*4 {
		t.Errorf("len(Pix) = %d, want 24", len(b.Pix))
	}
	if !b.Valid() {
		t.Error("buffer should be valid")
	}
}

func TestWrap_LengthMismatch(t *testing.T) {
	if _, err := Wrap(2, 2, make([]uint8, 15)); err == nil {
		t.Error("expected error for short pixel slice")
	}
}

func TestNRGBA_SharesPixels(t *testing.T) {
	b, _ := New(2, 2)
	img := b.NRGBA()
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	if got := b.At(1, 1); got != [4]uint8{10, 20, 30, 255} {
		t.Errorf("At(1,1) = %v, want [10 20 30 255]", got)
	}
}

func TestFromImage_OffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 8, 7))
	src.Set(5, 5, color.RGBA{R: 255, A: 255})
	b := FromImage(src)
	if b.Width != 3 || b.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", b.Width, b.Height)
	}
	if got := b.At(0, 0); got != [4]uint8{255, 0, 0, 255} {
		t.Errorf("At(0,0) = %v, want red", got)
	}
}

func TestClone_Independent(t *testing.T) {
	b, _ := New(1, 1)
	c := b.Clone()
	c.Set(0, 0, [4]uint8{1, 2, 3, 4})
	if b.At(0, 0) != [4]uint8{} {
		t.Error("clone must not alias the original")
	}
}

func TestFlipHorizontal(t *testing.T) {
	b, _ := New(3, 1)
	b.Set(0, 0, [4]uint8{1, 0, 0, 255})
	b.Set(1, 0, [4]uint8{2, 0, 0, 255})
	b.Set(2, 0, [4]uint8{3, 0, 0, 255})
	b.FlipHorizontal()
	for x, want := range []uint8{3, 2, 1} {
		if got := b.At(x, 0)[0]; got != want {
			t.Errorf("x=%d: R = %d, want %d", x, got, want)
		}
	}
}

func TestFill(t *testing.T) {
	b, _ := New(4, 4)
	b.Fill([4]uint8{9, 8, 7, 255})
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if b.At(x, y) != [4]uint8{9, 8, 7, 255} {
				t.Fatalf("pixel (%d,%d) not filled", x, y)
			}
		}
	}
}

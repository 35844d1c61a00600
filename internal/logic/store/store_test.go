package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

func newPhoto(t *testing.T, layout compose.Layout) *Photo {
	t.Helper()
	buf, _ := raster.New(4, 3)
	buf.Fill([4]uint8{10, 20, 30, 255})
	p, err := NewPhoto(buf, filter.VivaPop, layout, time.Date(2024, 3, 9, 14, 5, 7, 123e6, time.UTC))
	if err != nil {
		t.Fatalf("NewPhoto: %v", err)
	}
	return p
}

func TestNewPhoto(t *testing.T) {
	p := newPhoto(t, compose.Layout{Kind: compose.FilmStrip})

	if _, err := uuid.Parse(p.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", p.ID, err)
	}
	if p.Width != 4 || p.Height != 3 {
		t.Errorf("size = %dx%d, want 4x3", p.Width, p.Height)
	}
	if !p.MultiShot {
		t.Error("film strip photo should be multi-shot")
	}

	img, err := png.Decode(bytes.NewReader(p.PNG))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("decoded bounds = %v", b)
	}
	r, g, b, _ := img.At(2, 1).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Errorf("decoded pixel = %d,%d,%d", r>>8, g>>8, b>>8)
	}

	single := newPhoto(t, compose.Layout{Kind: compose.Single})
	if single.MultiShot {
		t.Error("single photo should not be multi-shot")
	}
	if single.ID == p.ID {
		t.Error("ids should be unique")
	}
}

func TestNewPhoto_InvalidBuffer(t *testing.T) {
	bad := &raster.Buffer{Width: 2, Height: 2, Pix: make([]uint8, 3)}
	if _, err := NewPhoto(bad, filter.None, compose.Layout{}, time.Now()); !errors.Is(err, ErrEncode) {
		t.Errorf("err = %v, want ErrEncode", err)
	}
}

func TestPhoto_Filename(t *testing.T) {
	p := &Photo{CapturedAt: time.Date(2024, 3, 9, 14, 5, 7, 123e6, time.FixedZone("CET", 3600))}
	want := "photobooth-2024-03-09T13-05-07-123Z.png"
	if got := p.Filename(); got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestPhoto_JSON(t *testing.T) {
	p := newPhoto(t, compose.Custom("hearts"))
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"filter":"vivapop"`, `"layout":"custom-hearts"`, `"multiShot":false`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "PNG") {
		t.Error("PNG bytes should not be serialized")
	}
}

func TestStore_NewestFirst(t *testing.T) {
	s := New()
	if s.Latest() != nil || s.Len() != 0 {
		t.Fatal("new store should be empty")
	}

	a := newPhoto(t, compose.Layout{})
	b := newPhoto(t, compose.Layout{})
	c := newPhoto(t, compose.Layout{})
	s.Push(a)
	s.Push(b)
	s.Push(c)
	s.Push(nil)

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if s.Latest() != c {
		t.Error("Latest() should be the last pushed photo")
	}
	list := s.List()
	if list[0] != c || list[1] != b || list[2] != a {
		t.Error("List() not newest first")
	}

	// The returned slice is a copy.
	list[0] = nil
	if s.Latest() != c {
		t.Error("mutating List() result changed the store")
	}
}

func TestStore_GetAndClear(t *testing.T) {
	s := New()
	p := newPhoto(t, compose.Layout{})
	s.Push(p)

	got, err := s.Get(p.ID)
	if err != nil || got != p {
		t.Fatalf("Get(%s) = %v, %v", p.ID, got, err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) err = %v, want ErrNotFound", err)
	}

	s.Clear()
	if s.Len() != 0 || s.Latest() != nil {
		t.Error("Clear() left photos behind")
	}
}

package store

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PhotoBooth/internal/logic/compose"
	"github.com/cjeanneret/PhotoBooth/internal/logic/filter"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// ErrEncode is returned when a composed buffer cannot be encoded.
var ErrEncode = errors.New("store: encode failed")

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("store: photo not found")

// Photo is a finished, encoded capture. It is immutable once created.
type Photo struct {
	ID         string         `json:"id"`
	PNG        []byte         `json:"-"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Filter     filter.Kind    `json:"filter"`
	Layout     compose.Layout `json:"layout"`
	CapturedAt time.Time      `json:"capturedAt"`
	MultiShot  bool           `json:"multiShot"`
}

// NewPhoto encodes buf as PNG and wraps it with its metadata.
func NewPhoto(buf *raster.Buffer, kind filter.Kind, layout compose.Layout, at time.Time) (*Photo, error) {
	if !buf.Valid() {
		return nil, fmt.Errorf("%w: invalid buffer", ErrEncode)
	}
	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&out, buf.NRGBA()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return &Photo{
		ID:         uuid.New().String(),
		PNG:        out.Bytes(),
		Width:      buf.Width,
		Height:     buf.Height,
		Filter:     kind,
		Layout:     layout,
		CapturedAt: at,
		MultiShot:  layout.MultiShot(),
	}, nil
}

// Filename is the download name: the UTC capture time in ISO 8601 with
// milliseconds, ':' and '.' replaced by '-'.
func (p *Photo) Filename() string {
	stamp := p.CapturedAt.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "photobooth-" + stamp + ".png"
}

// Store is an in-memory photo list, newest first. Nothing is persisted.
type Store struct {
	mu     sync.RWMutex
	photos []*Photo
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Push adds p at the front.
func (s *Store) Push(p *Photo) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append([]*Photo{p}, s.photos...)
}

// Latest returns the newest photo, or nil.
func (s *Store) Latest() *Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.photos) == 0 {
		return nil
	}
	return s.photos[0]
}

// List returns the photos newest first. The slice is a copy.
func (s *Store) List() []*Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Photo, len(s.photos))
	copy(out, s.photos)
	return out
}

// Get returns the photo with the given id.
func (s *Store) Get(id string) (*Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.photos {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Len returns the number of photos.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}

// Clear drops every photo.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = nil
}

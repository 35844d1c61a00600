package compose

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // overlay decoder
	"io/fs"
	"os"
	"sort"
	"sync"

	_ "golang.org/x/image/webp" // overlay decoder

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// Frame is a registered custom overlay.
type Frame struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Ref   string `json:"ref,omitempty"`

	once    sync.Once
	overlay *raster.Buffer
	err     error
}

// Registry maps custom frame ids to overlay assets. It is filled at startup
// and read-only afterwards; overlays are decoded on first use.
type Registry struct {
	mu     sync.RWMutex
	frames map[string]*Frame
	fsys   fs.FS
}

// NewRegistry returns an empty registry. Asset references are resolved
// against fsys, or the OS filesystem when fsys is nil.
func NewRegistry(fsys fs.FS) *Registry {
	return &Registry{frames: make(map[string]*Frame), fsys: fsys}
}

// Register adds a frame whose overlay is read from ref on first use.
func (r *Registry) Register(id, label, ref string) error {
	if id == "" {
		return fmt.Errorf("frame id is empty")
	}
	if ref == "" {
		return fmt.Errorf("frame %q: asset reference is empty", id)
	}
	return r.add(&Frame{ID: id, Label: label, Ref: ref})
}

// RegisterImage adds a frame with an already decoded overlay.
func (r *Registry) RegisterImage(id, label string, img image.Image) error {
	if id == "" {
		return fmt.Errorf("frame id is empty")
	}
	if img == nil {
		return fmt.Errorf("frame %q: overlay image is nil", id)
	}
	f := &Frame{ID: id, Label: label, overlay: raster.FromImage(img)}
	f.once.Do(func() {})
	return r.add(f)
}

func (r *Registry) add(f *Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.frames[f.ID]; dup {
		return fmt.Errorf("frame %q already registered", f.ID)
	}
	r.frames[f.ID] = f
	debug.Verbose("Registered frame %q (%s)", f.ID, f.Label)
	return nil
}

// Lookup returns the decoded overlay for id. Unknown ids fail with
// ErrUnknownFrame; decode errors are cached and returned on every call.
func (r *Registry) Lookup(id string) (*raster.Buffer, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, id)
	}
	r.mu.RLock()
	f, ok := r.frames[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, id)
	}

	f.once.Do(func() {
		f.overlay, f.err = r.decode(f.Ref)
		if f.err != nil {
			f.err = fmt.Errorf("frame %q: %w", id, f.err)
		}
	})
	return f.overlay, f.err
}

// Has reports whether id is registered, without decoding it.
func (r *Registry) Has(id string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.frames[id]
	return ok
}

// List returns the registered frames sorted by id.
func (r *Registry) List() []FrameInfo {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FrameInfo, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, FrameInfo{ID: f.ID, Label: f.Label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FrameInfo is the public description of a registered frame.
type FrameInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (r *Registry) decode(ref string) (*raster.Buffer, error) {
	var (
		data []byte
		err  error
	)
	if r.fsys != nil {
		data, err = fs.ReadFile(r.fsys, ref)
	} else {
		data, err = os.ReadFile(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	buf := raster.FromImage(img)
	debug.Verbose("Decoded %s overlay %s (%dx%d)", format, ref, buf.Width, buf.Height)
	return buf, nil
}

package compose

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/logic/geometry"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// Compositor draws filtered shots into frame layouts. It never modifies its
// inputs.
type Compositor struct {
	// Frames resolves CustomOverlay ids. May be nil when no custom frames
	// are configured.
	Frames *Registry

	// SingleSize is the Single layout canvas; zero means the shot size.
	SingleSize image.Point

	// Now stamps the film strip date. Defaults to time.Now.
	Now func() time.Time
}

// NewCompositor returns a compositor resolving custom frames from frames.
func NewCompositor(frames *Registry) *Compositor {
	return &Compositor{Frames: frames, Now: time.Now}
}

// Compose renders shots into layout. The shot count is checked before any
// drawing happens.
func (c *Compositor) Compose(shots []*raster.Buffer, layout Layout, border color.NRGBA) (*raster.Buffer, error) {
	if err := checkShots(shots, layout); err != nil {
		return nil, err
	}

	var (
		out *raster.Buffer
		err error
	)
	switch layout.Kind {
	case Single:
		out = c.single(shots[0])
	case Polaroid:
		out = c.polaroid(shots[0])
	case FilmStrip:
		out, err = c.filmStrip(shots, border)
	case Collage:
		out = c.collage(shots[0], border)
	case CustomOverlay:
		out, err = c.overlay(shots[0], layout.FrameID)
	default:
		return nil, fmt.Errorf("compose: unsupported layout %v", layout)
	}
	if err != nil {
		return nil, err
	}
	debug.Verbose("Composed %s: %dx%d from %d shot(s)", layout, out.Width, out.Height, len(shots))
	return out, nil
}

func checkShots(shots []*raster.Buffer, layout Layout) error {
	if len(shots) != layout.RequiredShots() {
		if layout.Kind == FilmStrip {
			return fmt.Errorf("%w (got %d)", ErrWrongShotCount, len(shots))
		}
		return fmt.Errorf("%w: %s needs %d, got %d", ErrInsufficientShots, layout, layout.RequiredShots(), len(shots))
	}
	for i, s := range shots {
		if s == nil || !s.Valid() {
			return fmt.Errorf("%w: shot %d", ErrInvalidShot, i+1)
		}
	}
	return nil
}

// single covers the canvas with the shot, cropping the excess.
func (c *Compositor) single(shot *raster.Buffer) *raster.Buffer {
	w, h := shot.Width, shot.Height
	if c.SingleSize.X > 0 && c.SingleSize.Y > 0 {
		w, h = c.SingleSize.X, c.SingleSize.Y
	}
	cv := newCanvas(w, h)
	cv.fill(black)
	box := geometry.Rect{W: float64(w), H: float64(h)}
	cv.drawScaled(shot.NRGBA(), geometry.Cover(float64(shot.Width), float64(shot.Height), box))
	return cv.buffer()
}

const (
	polaroidShadowBlur   = 15
	polaroidShadowOffset = 5
)

func (c *Compositor) polaroid(shot *raster.Buffer) *raster.Buffer {
	w, h := geometry.PolaroidSize(shot.Width, shot.Height)
	cv := newCanvas(w, h)
	cv.fill(white)

	photo := geometry.Rect{
		X: geometry.PolaroidBorder,
		Y: geometry.PolaroidBorder,
		W: float64(shot.Width),
		H: float64(shot.Height),
	}
	cv.dropShadow(photo, polaroidShadowOffset, polaroidShadowOffset, polaroidShadowBlur, polaroidShadow)
	cv.drawAt(shot.NRGBA(), geometry.PolaroidBorder, geometry.PolaroidBorder)
	return cv.buffer()
}

const (
	stripPhotoBorder = 6
	stripPhotoShadow = 4
)

func (c *Compositor) filmStrip(shots []*raster.Buffer, border color.NRGBA) (*raster.Buffer, error) {
	plan := geometry.PlanFilmStrip(geometry.StripWidth, geometry.StripHeight, len(shots))
	cv := newCanvas(plan.Width, plan.Height)
	cv.fill(stripBackground(border))

	for _, p := range plan.Perforations {
		cv.fillRect(p, black)
	}
	for i, shot := range shots {
		slot := plan.Slots[i]
		cv.fillRect(slot.Grow(stripPhotoBorder), white)
		cv.fillRect(slot.Grow(stripPhotoShadow), stripShadow)
		fit := geometry.Contain(float64(shot.Width), float64(shot.Height), slot)
		cv.drawScaled(shot.NRGBA(), fit)
	}

	caption, date, err := loadFaces()
	if err != nil {
		return nil, fmt.Errorf("compose: load fonts: %w", err)
	}
	cx := float64(plan.Width) / 2
	cv.drawCentered(caption, captionText, cx, plan.CaptionY, white)
	cv.drawCentered(date, c.now().Format(dateLayout), cx, plan.DateY, white)
	return cv.buffer(), nil
}

const (
	collageStrokeWidth  = 3
	collagePhotoBorder  = 5
	collageShadowOffset = 2
	collageShadowGrow   = 5
)

func (c *Compositor) collage(shot *raster.Buffer, border color.NRGBA) *raster.Buffer {
	plan := geometry.PlanCollage(geometry.CollageWidth, geometry.CollageHeight)
	cv := newCanvas(plan.Width, plan.Height)
	cv.fill(border)
	cv.strokeRect(plan.Border, collageStrokeWidth, collageStroke)

	src := shot.NRGBA()
	for i, cell := range plan.Cells {
		cv.fillRect(cell.Grow(collagePhotoBorder), white)
		cv.fillRect(geometry.Rect{
			X: cell.X + collageShadowOffset,
			Y: cell.Y + collageShadowOffset,
			W: cell.W + collageShadowGrow,
			H: cell.H + collageShadowGrow,
		}, collageShadow)
		cv.drawRotated(src, cell, plan.Rotations[i])
	}
	return cv.buffer()
}

func (c *Compositor) overlay(shot *raster.Buffer, id string) (*raster.Buffer, error) {
	art, err := c.Frames.Lookup(id)
	if err != nil {
		return nil, err
	}
	cv := newCanvas(art.Width, art.Height)
	photo := geometry.OverlayPhoto(shot.Width, shot.Height, art.Width, art.Height)
	cv.drawScaled(shot.NRGBA(), photo)
	cv.drawAt(art.NRGBA(), 0, 0)
	return cv.buffer(), nil
}

func (c *Compositor) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

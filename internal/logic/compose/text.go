package compose

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	captionText = "PHOTOBOOTH"
	captionSize = 12
	dateSize    = 10
	dateLayout  = "01/02/06"
)

var (
	facesOnce   sync.Once
	captionFace font.Face
	dateFace    font.Face
	facesErr    error
)

// loadFaces parses the embedded Go fonts once.
func loadFaces() (caption, date font.Face, err error) {
	facesOnce.Do(func() {
		captionFace, facesErr = newFace(gomonobold.TTF, captionSize)
		if facesErr != nil {
			return
		}
		dateFace, facesErr = newFace(gomono.TTF, dateSize)
	})
	return captionFace, dateFace, facesErr
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// drawCentered writes s horizontally centered on cx with its baseline at y.
func (c *canvas) drawCentered(face font.Face, s string, cx, y float64, col color.Color) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
	}
	width := d.MeasureString(s)
	d.Dot = fixed.Point26_6{
		X: fixed.Int26_6(cx*64) - width/2,
		Y: fixed.Int26_6(y * 64),
	}
	d.DrawString(s)
}

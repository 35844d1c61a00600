package geometry

import "math"

// Film strip constants.
const (
	StripWidth        = 440
	StripHeight       = 1320
	StripShots        = 4
	stripPhotoArea    = 0.70 // share of the height used by photos
	stripPhotoWidth   = 0.75 // share of the width used by photos
	perforationSize   = 8
	perforationPitch  = 16
	perforationInset  = 8
	stripCaptionRise  = 40 // caption baseline above the bottom edge
	stripDateBaseline = 15 // date baseline below the caption baseline
)

// StripPlan describes where everything goes on a film strip.
type StripPlan struct {
	Width, Height int
	Slots         []Rect // one per shot, top to bottom
	Perforations  []Rect // left and right columns, interleaved
	CaptionY      float64
	DateY         float64
}

// PlanFilmStrip lays out a strip of the given size holding shots photos.
// Photos share a width of 75% of the canvas; 70% of the height is photo area,
// the remaining 30% is split into shots+1 equal gaps.
func PlanFilmStrip(width, height, shots int) *StripPlan {
	w, h := float64(width), float64(height)
	photoArea := h * stripPhotoArea
	photoH := photoArea / float64(shots)
	photoW := w * stripPhotoWidth
	photoX := (w - photoW) / 2
	gap := (h - photoArea) / float64(shots+1)

	plan := &StripPlan{
		Width:    width,
		Height:   height,
		CaptionY: h - stripCaptionRise,
		DateY:    h - stripCaptionRise + stripDateBaseline,
	}
	for i := 0; i < shots; i++ {
		y := gap + float64(i)*(photoH+gap)
		plan.Slots = append(plan.Slots, Rect{X: photoX, Y: y, W: photoW, H: photoH})
	}

	count := height / perforationPitch
	half := float64(perforationSize) / 2
	for i := 0; i < count; i++ {
		y := float64(i*perforationPitch) + float64(perforationPitch)/2
		plan.Perforations = append(plan.Perforations,
			Rect{X: perforationInset, Y: y - half, W: perforationSize, H: perforationSize},
			Rect{X: w - 2*perforationInset, Y: y - half, W: perforationSize, H: perforationSize},
		)
	}
	return plan
}

// Collage constants.
const (
	CollageWidth  = 600
	CollageHeight = 800
	collageGap    = 15
	collageTilt   = 0.02 // radians per cell index step
)

// CollagePlan describes the 2x2 collage grid.
type CollagePlan struct {
	Width, Height int
	Cells         []Rect    // top-left, top-right, bottom-left, bottom-right
	Rotations     []float64 // radians, same order as Cells
	Border        Rect      // decorative stroke path
}

// PlanCollage splits the canvas into a 2x2 grid with a fixed gap. Each cell
// is half the canvas minus the gap and tilted by (index-1.5)*0.02 radians.
func PlanCollage(width, height int) *CollagePlan {
	halfW, halfH := float64(width)/2, float64(height)/2
	cellW, cellH := halfW-collageGap, halfH-collageGap
	g := float64(collageGap) / 2

	origins := [][2]float64{
		{g, g},
		{halfW + g, g},
		{g, halfH + g},
		{halfW + g, halfH + g},
	}
	plan := &CollagePlan{
		Width:  width,
		Height: height,
		Border: Rect{X: 5, Y: 5, W: float64(width) - 10, H: float64(height) - 10},
	}
	for i, o := range origins {
		plan.Cells = append(plan.Cells, Rect{X: o[0], Y: o[1], W: cellW, H: cellH})
		plan.Rotations = append(plan.Rotations, (float64(i)-1.5)*collageTilt)
	}
	return plan
}

// Polaroid constants.
const (
	PolaroidBorder = 40
	PolaroidBottom = 120
)

// PolaroidSize returns the canvas size for a photo of w x h.
func PolaroidSize(w, h int) (int, int) {
	return w + 2*PolaroidBorder, h + PolaroidBorder + PolaroidBottom
}

// overlayPhotoShare is how much of the fitting scale a photo keeps under a
// custom overlay, leaving room for the frame artwork.
const overlayPhotoShare = 0.8

// OverlayPhoto places a w x h photo centered on an overlay canvas.
func OverlayPhoto(w, h, canvasW, canvasH int) Rect {
	box := Rect{W: float64(canvasW), H: float64(canvasH)}
	return ScaleCentered(float64(w), float64(h), box, overlayPhotoShare)
}

// RotateAbout returns the affine matrix (row-major, 2x3) that maps a srcW x
// srcH image onto dst, stretched to dst's size and rotated by theta radians
// around dst's center.
func RotateAbout(srcW, srcH float64, dst Rect, theta float64) [6]float64 {
	sx, sy := dst.W/srcW, dst.H/srcH
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := dst.Center()
	return [6]float64{
		cos * sx, -sin * sy, cx - cos*dst.W/2 + sin*dst.H/2,
		sin * sx, cos * sy, cy - sin*dst.W/2 - cos*dst.H/2,
	}
}

package nn

import (
	"image"
	"math"

	"github.com/andresmejia3/facewatch/internal/types"
	"golang.org/x/image/draw"
)

// Crop is the region of a frame a model sees, and the factor it is enlarged by first.
type Crop struct {
	Rect  image.Rectangle // frame coordinates
	Scale float64         // model pixels per frame pixel, at least 1
}

// PlanCrop grows box by padding of its size on every side, clamps it to a w x h frame
// and picks the scale that brings the shorter side of the crop up to minSide.
func PlanCrop(box types.Box, w, h int, padding float64, minSide int) Crop {
	px := int(float64(box.Width()) * padding)
	py := int(float64(box.Height()) * padding)
	r := types.Box{X1: box.X1 - px, Y1: box.Y1 - py, X2: box.X2 + px, Y2: box.Y2 + py}.Clamp(w, h).Rect()
	return Crop{Rect: r, Scale: UpscaleFactor(r.Size(), minSide)}
}

// UpscaleFactor is minSide over the shorter side of size, or 1 when that side is long enough.
func UpscaleFactor(size image.Point, minSide int) float64 {
	short := min(size.X, size.Y)
	if short <= 0 || short >= minSide {
		return 1
	}
	return float64(minSide) / float64(short)
}

// Size is the size of the crop after scaling.
func (c Crop) Size() image.Point {
	return image.Pt(scaleUp(c.Rect.Dx(), c.Scale), scaleUp(c.Rect.Dy(), c.Scale))
}

// ToFrame maps a point of the scaled crop back to frame coordinates.
func (c Crop) ToFrame(p image.Point) image.Point {
	return image.Pt(
		c.Rect.Min.X+int(math.Round(float64(p.X)/c.Scale)),
		c.Rect.Min.Y+int(math.Round(float64(p.Y)/c.Scale)),
	)
}

// RectToFrame maps a rectangle of the scaled crop back to frame coordinates.
// It rounds outward and clips to the crop.
func (c Crop) RectToFrame(r image.Rectangle) image.Rectangle {
	lo := image.Pt(
		int(math.Floor(float64(r.Min.X)/c.Scale)),
		int(math.Floor(float64(r.Min.Y)/c.Scale)),
	)
	hi := image.Pt(
		int(math.Ceil(float64(r.Max.X)/c.Scale)),
		int(math.Ceil(float64(r.Max.Y)/c.Scale)),
	)
	return image.Rectangle{Min: lo.Add(c.Rect.Min), Max: hi.Add(c.Rect.Min)}.Intersect(c.Rect)
}

// Render copies the crop out of img at its scaled size, with its origin at 0,0.
func (c Crop) Render(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: c.Size()})
	if c.Scale == 1 {
		draw.Draw(dst, dst.Bounds(), img, c.Rect.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), img, c.Rect, draw.Src, nil)
	}
	return dst
}

func scaleUp(n int, scale float64) int {
	return int(math.Round(float64(n) * scale))
}

// WholeImage covers all of bounds, doubled when its shorter side is under below.
func WholeImage(bounds image.Rectangle, below int) Crop {
	c := Crop{Rect: bounds, Scale: 1}
	if s := bounds.Size(); min(s.X, s.Y) < below {
		c.Scale = 2
	}
	return c
}

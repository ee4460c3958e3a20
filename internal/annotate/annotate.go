// Package annotate draws identification results onto a frame.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/facewatch/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Accepted = color.RGBA{0, 255, 0, 255}
	Rejected = color.RGBA{255, 0, 0, 255}
)

const (
	thickness     = 2
	captionOffset = 10
)

// Draw outlines every result, green when accepted and red otherwise, with its caption
// 10px above the box, and prints the FPS estimate in the top left corner.
func Draw(img *image.RGBA, results []types.MatchResult, fps float64) {
	for _, r := range results {
		c := Rejected
		if r.Accepted {
			c = Accepted
		}
		Rect(img, r.Box.Rect(), c)
		Text(img, r.Caption(), image.Pt(r.Box.X1, r.Box.Y1-captionOffset), c)
	}
	Text(img, fmt.Sprintf("FPS: %.2f", fps), image.Pt(10, 30), Accepted)
}

// Rect draws a hollow rectangle of the standard thickness, growing inward.
func Rect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	t := min(thickness, r.Dx(), r.Dy())
	edges := []image.Rectangle{
		{r.Min, image.Pt(r.Max.X, r.Min.Y+t)},
		{image.Pt(r.Min.X, r.Max.Y-t), r.Max},
		{r.Min, image.Pt(r.Min.X+t, r.Max.Y)},
		{image.Pt(r.Max.X-t, r.Min.Y), r.Max},
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

// Text draws s with its baseline at pt. Text outside the image is clipped.
func Text(img *image.RGBA, s string, pt image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(pt.X, max(pt.Y, basicfont.Face7x13.Ascent)),
	}
	d.DrawString(s)
}

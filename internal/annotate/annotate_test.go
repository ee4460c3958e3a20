package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestDrawColorsByAcceptance(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	Draw(img, []types.MatchResult{
		{Box: types.Box{X1: 20, Y1: 50, X2: 80, Y2: 110}, Label: "Alice", Distance: 0.31, Accepted: true},
		{Box: types.Box{X1: 100, Y1: 50, X2: 160, Y2: 110}, Label: types.Unknown, Distance: 0.82},
	}, 12.5)

	assert.Equal(t, Accepted, img.RGBAAt(20, 50))
	assert.Equal(t, Accepted, img.RGBAAt(21, 80), "two pixel border")
	assert.Equal(t, color.RGBA{}, img.RGBAAt(22, 80), "box is hollow")
	assert.Equal(t, Rejected, img.RGBAAt(159, 109))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(130, 80))

	// Captions are drawn in the 10px above each box
	assert.True(t, anyPixel(img, image.Rect(20, 25, 80, 50), Accepted))
	assert.True(t, anyPixel(img, image.Rect(100, 25, 160, 50), Rejected))

	// FPS line near (10,30)
	assert.True(t, anyPixel(img, image.Rect(10, 17, 80, 33), Accepted))
}

func TestDrawClipsBoxesAtEdges(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	Draw(img, []types.MatchResult{{Box: types.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Label: "Edge"}}, 0)
	assert.Equal(t, Rejected, img.RGBAAt(0, 49))
	assert.Equal(t, Rejected, img.RGBAAt(49, 0))
}

func anyPixel(img *image.RGBA, r image.Rectangle, c color.RGBA) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				return true
			}
		}
	}
	return false
}

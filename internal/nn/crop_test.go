package nn_test

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPlanCrop(t *testing.T) {
	tests := []struct {
		name      string
		box       types.Box
		wantRect  image.Rectangle
		wantScale float64
		wantSize  image.Point
	}{
		{
			name:      "small face is padded and enlarged",
			box:       types.Box{X1: 100, Y1: 100, X2: 150, Y2: 150},
			wantRect:  image.Rect(88, 88, 162, 162),
			wantScale: 160.0 / 74,
			wantSize:  image.Pt(160, 160),
		},
		{
			name:      "large face is only padded",
			box:       types.Box{X1: 0, Y1: 0, X2: 300, Y2: 300},
			wantRect:  image.Rect(0, 0, 375, 375),
			wantScale: 1,
			wantSize:  image.Pt(375, 375),
		},
		{
			name:      "padding is clamped at the frame corner",
			box:       types.Box{X1: 600, Y1: 440, X2: 640, Y2: 480},
			wantRect:  image.Rect(590, 430, 640, 480),
			wantScale: 3.2,
			wantSize:  image.Pt(160, 160),
		},
		{
			name:      "box outside the frame",
			box:       types.Box{X1: 700, Y1: 10, X2: 720, Y2: 30},
			wantRect:  image.Rectangle{},
			wantScale: 1,
			wantSize:  image.Pt(0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := nn.PlanCrop(tt.box, 640, 480, 0.25, 160)
			if tt.wantRect.Empty() {
				assert.True(t, c.Rect.Empty())
			} else {
				assert.Equal(t, tt.wantRect, c.Rect)
			}
			assert.InDelta(t, tt.wantScale, c.Scale, 1e-9)
			assert.Equal(t, tt.wantSize, c.Size())
		})
	}
}

func TestUpscaleFactor(t *testing.T) {
	assert.Equal(t, 2.0, nn.UpscaleFactor(image.Pt(80, 120), 160))
	assert.Equal(t, 1.0, nn.UpscaleFactor(image.Pt(160, 90), 90))
	assert.Equal(t, 1.0, nn.UpscaleFactor(image.Pt(0, 90), 160))
}

func TestCropMapsBackToFrame(t *testing.T) {
	c := nn.Crop{Rect: image.Rect(100, 100, 180, 180), Scale: 2}

	assert.Equal(t, image.Pt(100, 100), c.ToFrame(image.Pt(0, 0)))
	assert.Equal(t, image.Pt(120, 130), c.ToFrame(image.Pt(40, 60)))
	assert.Equal(t, image.Pt(180, 180), c.ToFrame(image.Pt(160, 160)))

	// Rounded outward
	assert.Equal(t, image.Rect(110, 110, 121, 131), c.RectToFrame(image.Rect(21, 21, 41, 61)))
	// Clipped to the crop
	assert.Equal(t, c.Rect, c.RectToFrame(image.Rect(-10, -10, 400, 400)))
}

func TestCropPointRoundTrip(t *testing.T) {
	c := nn.PlanCrop(types.Box{X1: 100, Y1: 100, X2: 150, Y2: 150}, 640, 480, 0.25, 160)
	for y := c.Rect.Min.Y; y < c.Rect.Max.Y; y++ {
		for x := c.Rect.Min.X; x < c.Rect.Max.X; x++ {
			scaled := image.Pt(
				int(math.Round(float64(x-c.Rect.Min.X)*c.Scale)),
				int(math.Round(float64(y-c.Rect.Min.Y)*c.Scale)),
			)
			if got := c.ToFrame(scaled); got != image.Pt(x, y) {
				t.Fatalf("ToFrame(%v) = %v, want %v", scaled, got, image.Pt(x, y))
			}
		}
	}
}

func TestCropRender(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	fill := color.RGBA{200, 100, 50, 255}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, fill)
		}
	}
	marker := color.RGBA{1, 2, 3, 255}
	img.Set(3, 4, marker)

	same := nn.Crop{Rect: image.Rect(3, 4, 6, 8), Scale: 1}.Render(img)
	assert.Equal(t, image.Rect(0, 0, 3, 4), same.Bounds())
	assert.Equal(t, marker, same.RGBAAt(0, 0))
	assert.Equal(t, fill, same.RGBAAt(2, 3))

	enlarged := nn.Crop{Rect: image.Rect(5, 5, 9, 9), Scale: 2}.Render(img)
	assert.Equal(t, image.Rect(0, 0, 8, 8), enlarged.Bounds())
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, fill, enlarged.RGBAAt(x, y))
		}
	}
}

func TestWholeImage(t *testing.T) {
	small := nn.WholeImage(image.Rect(0, 0, 320, 240), 800)
	assert.Equal(t, 2.0, small.Scale)
	assert.Equal(t, image.Pt(640, 480), small.Size())
	// A face found at 200,100-260,160 in the doubled image
	assert.Equal(t, image.Rect(100, 50, 130, 80), small.RectToFrame(image.Rect(200, 100, 260, 160)))

	large := nn.WholeImage(image.Rect(0, 0, 1280, 960), 800)
	assert.Equal(t, 1.0, large.Scale)
	assert.Equal(t, image.Rect(10, 20, 30, 40), large.RectToFrame(image.Rect(10, 20, 30, 40)))
}

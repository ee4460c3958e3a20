package types

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"math"
	"time"
)

// Unknown is the label reported for faces that match no gallery identity
const Unknown = "Unknown"

// Frame is one decoded picture from the stream. It only lives for a single loop iteration.
type Frame struct {
	Image *image.RGBA
}

// NewFrame wraps an RGBA image. Any other image type is converted.
func NewFrame(img image.Image) *Frame {
	if rgba, ok := img.(*image.RGBA); ok {
		return &Frame{Image: rgba}
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Frame{Image: rgba}
}

func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Clone deep-copies the frame so it can outlive the loop iteration (e.g. for annotation).
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Image.Pix))
	copy(pix, f.Image.Pix)
	return &Frame{Image: &image.RGBA{Pix: pix, Stride: f.Image.Stride, Rect: f.Image.Rect}}
}

// Box is a face bounding box in pixel coordinates: [x1, y1) x [x2, y2)
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Clamp limits the box to [0,w] x [0,h].
func (b Box) Clamp(w, h int) Box {
	return Box{
		X1: min(max(b.X1, 0), w),
		Y1: min(max(b.Y1, 0), h),
		X2: min(max(b.X2, 0), w),
		Y2: min(max(b.Y2, 0), h),
	}
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }
func (b Box) Area() int   { return b.Width() * b.Height() }

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// BoxFromRect converts an image.Rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Descriptor is a fixed-length identity signature (128-d for the dlib ResNet model)
type Descriptor []float32

// Distance returns the Euclidean distance between two descriptors of equal length.
func Distance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Detection is one localizer output
type Detection struct {
	Box        Box
	Confidence float32
}

// GalleryEntry is one labeled descriptor. A label may own several entries.
type GalleryEntry struct {
	Label      string
	Descriptor Descriptor
}

// MatchResult is the per-face outcome of one identification attempt
type MatchResult struct {
	Box      Box     `json:"box"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
	Accepted bool    `json:"accepted"`
}

// MarshalJSON writes a NaN or infinite distance as null, which JSON cannot otherwise carry.
func (m MatchResult) MarshalJSON() ([]byte, error) {
	type plain MatchResult
	out := struct {
		plain
		Distance *float64 `json:"distance"`
	}{plain: plain(m)}
	if !math.IsNaN(m.Distance) && !math.IsInf(m.Distance, 0) {
		out.Distance = &m.Distance
	}
	return json.Marshal(out)
}

// Caption renders the on-screen label, e.g. "Alice 0.412".
func (m MatchResult) Caption() string {
	return fmt.Sprintf("%s %.3f", m.Label, m.Distance)
}

// Event is emitted once per processed frame
type Event struct {
	SessionID string        `json:"session"`
	Index     int           `json:"index"`
	Frame     *Frame        `json:"-"`
	Results   []MatchResult `json:"results"`
	FPS       float64       `json:"fps"`
	At        time.Time     `json:"at"`
}

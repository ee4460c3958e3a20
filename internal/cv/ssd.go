// Package cv holds the OpenCV pieces: the SSD face detector, a capture-based
// stream source and the display window.
package cv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
	"gocv.io/x/gocv"
)

// Target picks where the DNN runs
type Target int

const (
	TargetCPU Target = iota
	TargetCUDA
)

func (t Target) String() string {
	if t == TargetCUDA {
		return "cuda"
	}
	return "cpu"
}

// ssdMean is the per-channel (BGR) mean the res10 SSD face model was trained with
var ssdMean = gocv.NewScalar(104, 177, 123, 0)

// SSDDetector is the Caffe res10 300x300 SSD face detector run through OpenCV DNN.
type SSDDetector struct {
	mu     sync.Mutex
	net    gocv.Net
	Target Target
}

// NewSSDDetector loads the network from its prototxt and caffemodel.
func NewSSDDetector(prototxt, caffemodel string, target Target) (*SSDDetector, error) {
	net := gocv.ReadNetFromCaffe(prototxt, caffemodel)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detector from %s / %s", prototxt, caffemodel)
	}
	switch target {
	case TargetCUDA:
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	default:
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	return &SSDDetector{net: net, Target: target}, nil
}

// Warmup runs one forward pass on a blank input so a broken target fails at startup.
func (d *SSDDetector) Warmup() error {
	blank := gocv.NewMatWithSize(nn.DetectorInputSize, nn.DetectorInputSize, gocv.MatTypeCV8UC3)
	defer blank.Close()
	_, err := d.forward(blank, nn.DetectorInputSize, nn.DetectorInputSize)
	return err
}

func (d *SSDDetector) Detect(frame *types.Frame) ([]nn.RawDetection, error) {
	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	return d.forward(mat, frame.Width(), frame.Height())
}

func (d *SSDDetector) forward(bgr gocv.Mat, w, h int) ([]nn.RawDetection, error) {
	if w == 0 || h == 0 {
		return nil, errors.New("empty frame")
	}
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(bgr, &resized, image.Pt(nn.DetectorInputSize, nn.DetectorInputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0, image.Pt(nn.DetectorInputSize, nn.DetectorInputSize), ssdMean, false, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("detector forward pass on %s returned nothing", d.Target)
	}
	return parseSSD(out.Total(), func(i int) float32 { return out.GetFloatAt(0, i) })
}

// parseSSD reads the [1,1,N,7] output: (image id, class, confidence, x1, y1, x2, y2) per row.
func parseSSD(total int, at func(int) float32) ([]nn.RawDetection, error) {
	if total%7 != 0 {
		return nil, fmt.Errorf("unexpected detector output size %d", total)
	}
	out := make([]nn.RawDetection, 0, total/7)
	for i := 0; i < total; i += 7 {
		out = append(out, nn.RawDetection{
			Confidence: at(i + 2),
			Box:        [4]float32{at(i + 3), at(i + 4), at(i + 5), at(i + 6)},
		})
	}
	return out, nil
}

func (d *SSDDetector) Close() error {
	return d.net.Close()
}

var _ nn.Detector = (*SSDDetector)(nil)

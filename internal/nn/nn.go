// Package nn is the inference interface layer. The detection, landmark and
// descriptor models are opaque capabilities; concrete backends live in
// internal/cv, internal/nn/dlib and internal/worker, and internal/nnload
// picks one at startup.
package nn

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/facewatch/internal/types"
)

// MinConfidence is the detection policy threshold. It is fixed, not configurable.
const MinConfidence = 0.5

// DetectorInputSize is the square input of the SSD face detector
const DetectorInputSize = 300

// RawDetection is what a detector model returns: a score and a box in fractions of the frame size
type RawDetection struct {
	Confidence float32
	Box        [4]float32 // x1, y1, x2, y2 in [0,1]
}

// Shape is the output of the landmark model, in frame coordinates.
// Payload carries backend state from the landmark stage to the descriptor stage.
type Shape struct {
	Box     types.Box
	Points  []image.Point
	Payload any
}

// Detector is the inference-mode face detector (confidence scored)
type Detector interface {
	Detect(frame *types.Frame) ([]RawDetection, error)
}

// PresenceDetector is the gallery-build detector. It runs on a grayscale copy and has no score.
type PresenceDetector interface {
	DetectPresence(gray *image.Gray) ([]types.Box, error)
}

// Landmarker computes dense facial landmarks from the whole frame and a face box
type Landmarker interface {
	Landmarks(frame *types.Frame, box types.Box) (Shape, error)
}

// Describer projects a frame and its landmarks into the descriptor space
type Describer interface {
	Describe(frame *types.Frame, shape Shape) (types.Descriptor, error)
}

// Backend selects the implementation behind a Provider
type Backend string

const (
	BackendOpenCV     Backend = "opencv"      // OpenCV DNN on the CPU, dlib for landmarks/descriptors
	BackendOpenCVCUDA Backend = "opencv-cuda" // OpenCV DNN on CUDA, falls back to CPU
	BackendWorker     Backend = "worker"      // external inference subprocess
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendOpenCV, BackendOpenCVCUDA, BackendWorker:
		return b, nil
	case "":
		return BackendOpenCV, nil
	}
	return "", fmt.Errorf("unknown inference backend %q (valid: %s, %s, %s)", s, BackendOpenCV, BackendOpenCVCUDA, BackendWorker)
}

// Provider bundles one implementation of each capability.
// Close releases every underlying model once.
type Provider struct {
	Backend    Backend
	Detector   Detector
	Presence   PresenceDetector
	Landmarker Landmarker
	Describer  Describer

	closers []func() error
	closed  bool
}

// OnClose registers a release function, run in reverse order by Close.
func (p *Provider) OnClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

func (p *Provider) Close() error {
	if p == nil || p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Localizer returns the face localizer over this provider's detectors.
func (p *Provider) Localizer() *Localizer {
	return NewLocalizer(p.Detector, p.Presence)
}

// Extractor returns the descriptor extractor over this provider's landmark and descriptor models.
func (p *Provider) Extractor() *Extractor {
	return NewExtractor(p.Landmarker, p.Describer)
}

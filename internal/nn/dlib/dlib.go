// Package dlib provides the landmark, descriptor and build-mode presence models
// through dlib (github.com/Kagami/go-face).
package dlib

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
)

// File names go-face expects inside its model directory
const (
	LandmarkModel   = "shape_predictor_5_face_landmarks.dat"
	DescriptorModel = "dlib_face_recognition_resnet_model_v1.dat"
)

// cropPadding widens the face box on each side before it is handed to dlib,
// so its own detector sees the whole head.
const cropPadding = 0.25

// dlib's HOG detector misses faces much under 80 px. Crops are enlarged until their
// shorter side reaches minCropSide, and training images smaller than
// presenceUpsampleBelow are doubled.
const (
	minCropSide           = 160
	presenceUpsampleBelow = 800
)

var ErrNoFace = errors.New("no face structure found inside box")

// Model wraps one dlib recognizer. dlib calls are serialized.
type Model struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// Open loads the models from dir.
func Open(dir string) (*Model, error) {
	rec, err := face.NewRecognizer(dir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", dir, err)
	}
	return &Model{rec: rec}, nil
}

// DetectPresence runs dlib's HOG frontal face detector over a grayscale image.
func (m *Model) DetectPresence(gray *image.Gray) ([]types.Box, error) {
	view := nn.WholeImage(gray.Bounds(), presenceUpsampleBelow)
	var src image.Image = gray
	if view.Scale != 1 {
		src = view.Render(gray)
	}
	raw, err := encode(src)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	faces, err := m.rec.Recognize(raw)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]types.Box, len(faces))
	for i, f := range faces {
		out[i] = types.BoxFromRect(view.RectToFrame(f.Rectangle))
	}
	return out, nil
}

// Landmarks finds the face inside a padded crop around box and returns its landmarks in
// frame coordinates. The descriptor is computed in the same dlib call and carried in Shape.Payload.
func (m *Model) Landmarks(frame *types.Frame, box types.Box) (nn.Shape, error) {
	crop := nn.PlanCrop(box, frame.Width(), frame.Height(), cropPadding, minCropSide)
	if crop.Rect.Empty() {
		return nn.Shape{}, ErrNoFace
	}
	raw, err := encode(crop.Render(frame.Image))
	if err != nil {
		return nn.Shape{}, err
	}

	m.mu.Lock()
	f, err := m.rec.RecognizeSingle(raw)
	m.mu.Unlock()
	if err != nil {
		return nn.Shape{}, err
	}
	if f == nil {
		return nn.Shape{}, ErrNoFace
	}

	pts := make([]image.Point, len(f.Shapes))
	for i, p := range f.Shapes {
		pts[i] = crop.ToFrame(p)
	}
	desc := make(types.Descriptor, len(f.Descriptor))
	copy(desc, f.Descriptor[:])
	return nn.Shape{Box: box, Points: pts, Payload: desc}, nil
}

// Describe returns the descriptor computed by Landmarks.
func (m *Model) Describe(frame *types.Frame, shape nn.Shape) (types.Descriptor, error) {
	desc, ok := shape.Payload.(types.Descriptor)
	if !ok {
		return nil, errors.New("shape was not produced by the dlib landmark model")
	}
	return desc, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec != nil {
		m.rec.Close()
		m.rec = nil
	}
	return nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode image for dlib: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	_ nn.PresenceDetector = (*Model)(nil)
	_ nn.Landmarker       = (*Model)(nil)
	_ nn.Describer        = (*Model)(nil)
)

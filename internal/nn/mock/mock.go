// Package mock provides scripted inference capabilities for tests.
package mock

import (
	"errors"
	"image"
	"sync"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
)

// Detector replays a fixed detection list, or fails with Err.
type Detector struct {
	Detections []nn.RawDetection
	Err        error

	mu    sync.Mutex
	Calls int
}

func (d *Detector) Detect(frame *types.Frame) ([]nn.RawDetection, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Detections, nil
}

// Presence replays fixed build-mode boxes.
type Presence struct {
	Boxes []types.Box
	Err   error
}

func (p *Presence) DetectPresence(gray *image.Gray) ([]types.Box, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Boxes, nil
}

// Models implements Landmarker and Describer. The descriptor for a box is looked up
// in Descriptors by box; boxes listed in Fail produce an error. Unknown boxes get
// Default, or an error if Default is nil.
type Models struct {
	Descriptors map[types.Box]types.Descriptor
	Fail        map[types.Box]bool
	Default     types.Descriptor

	mu   sync.Mutex
	Seen []types.Box
}

var ErrNoStructure = errors.New("not enough facial structure inside box")

func (m *Models) Landmarks(frame *types.Frame, box types.Box) (nn.Shape, error) {
	m.mu.Lock()
	m.Seen = append(m.Seen, box)
	m.mu.Unlock()
	if m.Fail[box] {
		return nn.Shape{}, ErrNoStructure
	}
	return nn.Shape{
		Box:    box,
		Points: []image.Point{{box.X1, box.Y1}, {box.X2, box.Y2}},
	}, nil
}

func (m *Models) Describe(frame *types.Frame, shape nn.Shape) (types.Descriptor, error) {
	if d, ok := m.Descriptors[shape.Box]; ok {
		return d, nil
	}
	if m.Default != nil {
		return m.Default, nil
	}
	return nil, errors.New("no descriptor scripted for box")
}

// SeenBoxes returns a copy of every box passed to Landmarks.
func (m *Models) SeenBoxes() []types.Box {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Box(nil), m.Seen...)
}

// Provider assembles a provider from the fakes. Closed counts Close calls on the provider.
func Provider(det *Detector, presence *Presence, models *Models, closed *int) *nn.Provider {
	p := &nn.Provider{
		Backend:    "mock",
		Detector:   det,
		Presence:   presence,
		Landmarker: models,
		Describer:  models,
	}
	p.OnClose(func() error {
		if closed != nil {
			*closed++
		}
		return nil
	})
	return p
}

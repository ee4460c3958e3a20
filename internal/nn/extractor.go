package nn

import (
	"errors"
	"sync"

	"github.com/andresmejia3/facewatch/internal/types"
)

// Extractor computes a descriptor for one face: landmarks first, then the descriptor model.
// The box goes to the models as-is; any resizing is the backend's business.
type Extractor struct {
	landmarker Landmarker
	describer  Describer
}

func NewExtractor(landmarker Landmarker, describer Describer) *Extractor {
	return &Extractor{landmarker: landmarker, describer: describer}
}

// Extract returns the descriptor for box, or an *ExtractionError.
func (e *Extractor) Extract(frame *types.Frame, box types.Box) (types.Descriptor, error) {
	if e.landmarker == nil || e.describer == nil {
		return nil, &ExtractionError{Box: box, Err: errors.New("landmark or descriptor model not loaded")}
	}
	shape, err := e.landmarker.Landmarks(frame, box)
	if err != nil {
		return nil, &ExtractionError{Box: box, Err: err}
	}
	desc, err := e.describer.Describe(frame, shape)
	if err != nil {
		return nil, &ExtractionError{Box: box, Err: err}
	}
	if len(desc) == 0 {
		return nil, &ExtractionError{Box: box, Err: errors.New("descriptor model returned an empty vector")}
	}
	return desc, nil
}

// Extraction is the per-box outcome of ExtractAll. Exactly one of Descriptor and Err is set.
type Extraction struct {
	Box        types.Box
	Descriptor types.Descriptor
	Err        error
}

// ExtractAll extracts every box of one frame. With workers > 1 the boxes are
// spread over that many goroutines; the result slice is always in box order.
func (e *Extractor) ExtractAll(frame *types.Frame, boxes []types.Box, workers int) []Extraction {
	out := make([]Extraction, len(boxes))
	if workers <= 1 || len(boxes) <= 1 {
		for i, b := range boxes {
			d, err := e.Extract(frame, b)
			out[i] = Extraction{Box: b, Descriptor: d, Err: err}
		}
		return out
	}

	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(boxes)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				d, err := e.Extract(frame, boxes[i])
				// Each goroutine writes its own slot
				out[i] = Extraction{Box: boxes[i], Descriptor: d, Err: err}
			}
		}()
	}
	for i := range boxes {
		idx <- i
	}
	close(idx)
	wg.Wait()
	return out
}

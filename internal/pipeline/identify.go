package pipeline

import (
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/cyclopcam/logs"
)

// Identifier runs one frame through localization, extraction and matching.
// It is shared by the live loop and single-image lookups.
type Identifier struct {
	Localizer *nn.Localizer
	Extractor *nn.Extractor
	Gallery   *gallery.Gallery
	Threshold float64
	Workers   int
	Log       logs.Log
}

func NewIdentifier(log logs.Log, provider *nn.Provider, g *gallery.Gallery, threshold float64, workers int) *Identifier {
	if threshold <= 0 {
		threshold = gallery.DefaultThreshold
	}
	return &Identifier{
		Localizer: provider.Localizer(),
		Extractor: provider.Extractor(),
		Gallery:   g,
		Threshold: threshold,
		Workers:   workers,
		Log:       log,
	}
}

// Identify returns one result per face that made it through extraction and matching,
// in detection order. Only a localization failure is returned as an error; faces that
// fail later are logged and left out.
func (id *Identifier) Identify(frame *types.Frame) ([]types.MatchResult, error) {
	detections, err := id.Localizer.Locate(frame)
	if err != nil {
		return nil, err
	}

	boxes := make([]types.Box, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}

	results := make([]types.MatchResult, 0, len(boxes))
	for _, ex := range id.Extractor.ExtractAll(frame, boxes, id.Workers) {
		if ex.Err != nil {
			id.Log.Warnf("Skipping face: %v", ex.Err)
			continue
		}
		label, dist, err := id.Gallery.Match(ex.Descriptor, id.Threshold)
		if err != nil {
			id.Log.Errorf("Skipping face at %v: %v", ex.Box, err)
			continue
		}
		results = append(results, types.MatchResult{
			Box:      ex.Box,
			Label:    label,
			Distance: dist,
			Accepted: dist < id.Threshold,
		})
	}
	return results, nil
}

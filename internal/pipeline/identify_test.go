package pipeline

import (
	"errors"
	"testing"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/nn/mock"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify(t *testing.T) {
	det := &mock.Detector{Detections: []nn.RawDetection{
		{Confidence: 0.9, Box: [4]float32{0.125, 0.125, 0.25, 0.25}},
		{Confidence: 0.8, Box: [4]float32{0.5, 0.125, 0.75, 0.25}},
		{Confidence: 0.7, Box: [4]float32{0.5, 0.5, 0.75, 0.75}},
		{Confidence: 0.6, Box: [4]float32{0.125, 0.5, 0.25, 0.75}},
		{Confidence: 0.2, Box: [4]float32{0, 0, 0.5, 0.5}}, // below detector confidence
	}}
	failing := types.Box{X1: 40, Y1: 10, X2: 60, Y2: 20}
	models := &mock.Models{
		Descriptors: map[types.Box]types.Descriptor{
			{X1: 10, Y1: 10, X2: 20, Y2: 20}: {0, 0},
			{X1: 40, Y1: 40, X2: 60, Y2: 60}: {3, 3},
			{X1: 10, Y1: 40, X2: 20, Y2: 60}: {0, 0, 0}, // wrong length for the gallery
		},
		Fail: map[types.Box]bool{failing: true},
	}
	g, err := gallery.New([]types.GalleryEntry{
		{Label: "alice", Descriptor: types.Descriptor{0, 0.1}},
		{Label: "bob", Descriptor: types.Descriptor{5, 5}},
	})
	require.NoError(t, err)

	id := NewIdentifier(logs.NewTestingLog(t), mock.Provider(det, nil, models, nil), g, 0.6, 2)
	results, err := id.Identify(grayFrame(80, 80))
	require.NoError(t, err, "failed faces are skipped, not fatal")
	require.Len(t, results, 2)

	assert.Equal(t, "alice", results[0].Label)
	assert.InDelta(t, 0.1, results[0].Distance, 1e-6)
	assert.True(t, results[0].Accepted)

	assert.Equal(t, types.Unknown, results[1].Label)
	assert.False(t, results[1].Accepted)
	assert.Equal(t, types.Box{X1: 40, Y1: 40, X2: 60, Y2: 60}, results[1].Box)
}

func TestIdentifyLocalizationFailure(t *testing.T) {
	det := &mock.Detector{Err: errors.New("detector crashed")}
	g, err := gallery.New([]types.GalleryEntry{{Label: "alice", Descriptor: types.Descriptor{0, 0}}})
	require.NoError(t, err)

	id := NewIdentifier(logs.NewTestingLog(t), mock.Provider(det, nil, &mock.Models{}, nil), g, 0, 1)
	assert.Equal(t, gallery.DefaultThreshold, id.Threshold)
	_, err = id.Identify(grayFrame(80, 80))
	assert.ErrorContains(t, err, "detector crashed")
}

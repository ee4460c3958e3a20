package nn_test

import (
	"fmt"
	"testing"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/nn/mock"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	box := types.Box{X1: 1, Y1: 1, X2: 9, Y2: 9}
	models := &mock.Models{Descriptors: map[types.Box]types.Descriptor{box: {0.1, 0.2}}}
	d, err := nn.NewExtractor(models, models).Extract(frame(10, 10), box)
	require.NoError(t, err)
	assert.Equal(t, types.Descriptor{0.1, 0.2}, d)
}

func TestExtractFailure(t *testing.T) {
	box := types.Box{X1: 0, Y1: 0, X2: 2, Y2: 2}
	models := &mock.Models{Fail: map[types.Box]bool{box: true}}
	_, err := nn.NewExtractor(models, models).Extract(frame(10, 10), box)

	var exErr *nn.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, box, exErr.Box)
	assert.ErrorIs(t, err, mock.ErrNoStructure)
}

func TestExtractEmptyDescriptor(t *testing.T) {
	models := &mock.Models{Default: types.Descriptor{}}
	_, err := nn.NewExtractor(models, models).Extract(frame(10, 10), types.Box{X2: 5, Y2: 5})
	var exErr *nn.ExtractionError
	assert.ErrorAs(t, err, &exErr)
}

func TestExtractAllKeepsOrder(t *testing.T) {
	var boxes []types.Box
	descs := map[types.Box]types.Descriptor{}
	fail := map[types.Box]bool{}
	for i := 0; i < 32; i++ {
		b := types.Box{X1: i, Y1: 0, X2: i + 10, Y2: 10}
		boxes = append(boxes, b)
		descs[b] = types.Descriptor{float32(i)}
		if i%5 == 0 {
			fail[b] = true
		}
	}
	models := &mock.Models{Descriptors: descs, Fail: fail}
	ex := nn.NewExtractor(models, models)

	for _, workers := range []int{0, 1, 4, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			out := ex.ExtractAll(frame(64, 16), boxes, workers)
			require.Len(t, out, len(boxes))
			for i, e := range out {
				assert.Equal(t, boxes[i], e.Box)
				if i%5 == 0 {
					assert.Error(t, e.Err)
					assert.Nil(t, e.Descriptor)
				} else {
					require.NoError(t, e.Err)
					assert.Equal(t, types.Descriptor{float32(i)}, e.Descriptor)
				}
			}
		})
	}
}

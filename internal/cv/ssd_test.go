package cv

import (
	"testing"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSD(t *testing.T) {
	raw := []float32{
		0, 1, 0.98, 0.1, 0.2, 0.3, 0.4,
		0, 1, 0.12, 0.5, 0.5, 0.6, 0.6,
	}
	dets, err := parseSSD(len(raw), func(i int) float32 { return raw[i] })
	require.NoError(t, err)
	assert.Equal(t, []nn.RawDetection{
		{Confidence: 0.98, Box: [4]float32{0.1, 0.2, 0.3, 0.4}},
		{Confidence: 0.12, Box: [4]float32{0.5, 0.5, 0.6, 0.6}},
	}, dets)

	_, err = parseSSD(8, func(i int) float32 { return 0 })
	assert.Error(t, err)
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "cpu", TargetCPU.String())
	assert.Equal(t, "cuda", TargetCUDA.String())
}

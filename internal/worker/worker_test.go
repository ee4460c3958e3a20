package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"io"
	"math"
	"testing"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// newMockWorker returns a worker whose child has already written resps to FD 3
func newMockWorker(resps ...[]byte) (*Worker, *MockCloser) {
	stdin := &MockCloser{Buffer: new(bytes.Buffer)}
	data := &MockCloser{Buffer: new(bytes.Buffer)}
	for _, r := range resps {
		binary.Write(data, binary.BigEndian, uint32(len(r)))
		data.Write(r)
	}
	return &Worker{Stdin: stdin, DataPipe: data}, stdin
}

func ok(parts ...any) []byte {
	b := new(bytes.Buffer)
	b.WriteByte(statusOK)
	for _, p := range parts {
		binary.Write(b, binary.BigEndian, p)
	}
	return b.Bytes()
}

func fail(msg string) []byte {
	b := new(bytes.Buffer)
	b.WriteByte(statusError)
	binary.Write(b, binary.BigEndian, uint32(len(msg)))
	b.WriteString(msg)
	return b.Bytes()
}

// readRequest pops one [len][op][body] request off the mocked stdin
func readRequest(t *testing.T, r io.Reader) (byte, []byte) {
	t.Helper()
	var n uint32
	require.NoError(t, binary.Read(r, binary.BigEndian, &n))
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	return buf[0], buf[1:]
}

func testFrame() *types.Frame {
	return types.NewFrame(image.NewRGBA(image.Rect(0, 0, 32, 24)))
}

func TestDetect(t *testing.T) {
	w, stdin := newMockWorker(ok(uint32(2),
		[5]float32{0.97, 0.1, 0.1, 0.4, 0.5},
		[5]float32{0.31, 0.6, 0.6, 0.9, 0.9},
	))

	dets, err := w.Detect(testFrame())
	require.NoError(t, err)
	assert.Equal(t, []nn.RawDetection{
		{Confidence: 0.97, Box: [4]float32{0.1, 0.1, 0.4, 0.5}},
		{Confidence: 0.31, Box: [4]float32{0.6, 0.6, 0.9, 0.9}},
	}, dets)

	op, body := readRequest(t, stdin)
	assert.Equal(t, OpDetect, op)
	assert.Equal(t, []byte{0xFF, 0xD8}, body[:2], "frame is sent as JPEG")
}

func TestLandmarksAndDescribe(t *testing.T) {
	box := types.Box{X1: 4, Y1: 2, X2: 20, Y2: 22}
	vec := make([]uint32, 128)
	for i := range vec {
		vec[i] = math.Float32bits(float32(i) / 128)
	}
	w, stdin := newMockWorker(
		ok(uint32(2), [2]int32{5, 6}, [2]int32{18, 20}),
		ok(uint32(128), vec),
	)
	frame := testFrame()

	shape, err := w.Landmarks(frame, box)
	require.NoError(t, err)
	assert.Equal(t, box, shape.Box)
	assert.Equal(t, []image.Point{{5, 6}, {18, 20}}, shape.Points)

	desc, err := w.Describe(frame, shape)
	require.NoError(t, err)
	require.Len(t, desc, 128)
	assert.Equal(t, float32(127)/128, desc[127])

	op, body := readRequest(t, stdin)
	assert.Equal(t, OpLandmarks, op)
	var sentBox [4]int32
	require.NoError(t, binary.Read(bytes.NewReader(body), binary.BigEndian, &sentBox))
	assert.Equal(t, [4]int32{4, 2, 20, 22}, sentBox)
	landmarkJPEG := body[16:]

	op, body = readRequest(t, stdin)
	assert.Equal(t, OpDescribe, op)
	r := bytes.NewReader(body)
	var n uint32
	binary.Read(r, binary.BigEndian, &n)
	assert.Equal(t, uint32(2), n)
	var pts [2][2]int32
	binary.Read(r, binary.BigEndian, &pts)
	assert.Equal(t, [2][2]int32{{5, 6}, {18, 20}}, pts)
	binary.Read(r, binary.BigEndian, &sentBox)
	assert.Equal(t, [4]int32{4, 2, 20, 22}, sentBox)
	rest, _ := io.ReadAll(r)
	assert.Equal(t, landmarkJPEG, rest, "same frame is encoded once")
}

func TestPresence(t *testing.T) {
	w, stdin := newMockWorker(ok(uint32(1), [4]int32{1, 2, 3, 4}))
	boxes, err := w.DetectPresence(image.NewGray(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.Equal(t, []types.Box{{X1: 1, Y1: 2, X2: 3, Y2: 4}}, boxes)
	op, _ := readRequest(t, stdin)
	assert.Equal(t, OpPresence, op)
}

func TestRemoteError(t *testing.T) {
	w, _ := newMockWorker(fail("no face in box"), ok(uint32(0)))

	_, err := w.Landmarks(testFrame(), types.Box{X2: 4, Y2: 4})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "inference worker error: no face in box", err.Error())

	// The worker is still usable after a per-request failure
	dets, err := w.Detect(testFrame())
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestEmptyLandmarksIsAnError(t *testing.T) {
	w, _ := newMockWorker(ok(uint32(0)))
	_, err := w.Landmarks(testFrame(), types.Box{X2: 4, Y2: 4})
	assert.Error(t, err)
}

func TestTruncatedResponse(t *testing.T) {
	// Claims 3 detections, carries one
	w, _ := newMockWorker(ok(uint32(3), [5]float32{0.9, 0, 0, 1, 1}))
	_, err := w.Detect(testFrame())
	assert.ErrorContains(t, err, "truncated")
}

func TestCrashedWorker(t *testing.T) {
	// Nothing on the data pipe: the child died before answering
	w, _ := newMockWorker()
	_, err := w.Detect(testFrame())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestClosedWorker(t *testing.T) {
	w, _ := newMockWorker(ok(uint32(0)))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err := w.Detect(testFrame())
	assert.ErrorIs(t, err, ErrWorkerClosed)
}

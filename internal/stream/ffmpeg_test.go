package stream

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	io.Reader
	closed int
}

func (n *nopCloser) Close() error {
	n.closed++
	return nil
}

func encodeJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestFFmpegReadsFramesFromPipe(t *testing.T) {
	var pipe bytes.Buffer
	pipe.Write(encodeJPEG(t, 16, 8, color.White))
	pipe.Write(encodeJPEG(t, 32, 24, color.Black))
	rc := &nopCloser{Reader: &pipe}
	src := newFFmpeg(rc)

	f, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, 16, f.Width())
	assert.Equal(t, 8, f.Height())
	assert.Greater(t, f.Image.Pix[0], uint8(200))

	f, err = src.Read()
	require.NoError(t, err)
	assert.Equal(t, 32, f.Width())

	_, err = src.Read()
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.Read()
	assert.ErrorIs(t, err, io.EOF, "stays at end of stream")

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 1, rc.closed)
}

func TestFFmpegCorruptFrame(t *testing.T) {
	var pipe bytes.Buffer
	pipe.Write([]byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9})
	pipe.Write(encodeJPEG(t, 8, 8, color.White))
	src := newFFmpeg(&nopCloser{Reader: &pipe})

	_, err := src.Read()
	assert.Error(t, err)

	// The next frame is still readable
	f, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, 8, f.Width())
}

func TestOpenError(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &OpenError{URL: "rtsp://cam/1", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cannot open stream rtsp://cam/1: connection refused", err.Error())
}

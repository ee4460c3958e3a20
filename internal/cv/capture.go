package cv

import (
	"context"
	"errors"
	"sync"

	"github.com/andresmejia3/facewatch/internal/stream"
	"github.com/andresmejia3/facewatch/internal/types"
	"gocv.io/x/gocv"
)

var errNoFrame = errors.New("capture returned no frame")

// Capture is a stream source reading through OpenCV's VideoCapture (FFmpeg or GStreamer underneath).
type Capture struct {
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	once sync.Once
}

// OpenCapture is a stream.Opener over gocv.
func OpenCapture(ctx context.Context, url string) (stream.Source, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, &stream.OpenError{URL: url, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &stream.OpenError{URL: url, Err: errors.New("capture did not open")}
	}
	return &Capture{vc: vc, mat: gocv.NewMat()}, nil
}

// Read returns a fresh frame on every call; the Mat is reused, the image is not.
func (c *Capture) Read() (*types.Frame, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, errNoFrame
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, err
	}
	return types.NewFrame(img), nil
}

func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		c.mat.Close()
		err = c.vc.Close()
	})
	return err
}

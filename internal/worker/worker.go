// Package worker runs the inference models in a child process.
//
// Requests go to the child's stdin as [u32 len][op][body]. Responses come back on
// a side pipe (FD 3) as [u32 len][status][payload], so the child's stdout and
// stderr stay free for its own logging.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/andresmejia3/facewatch/internal/utils"
)

// Request opcodes
const (
	OpDetect    byte = 'D'
	OpPresence  byte = 'P'
	OpLandmarks byte = 'L'
	OpDescribe  byte = 'E'
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxResponse guards against a corrupt length header
const maxResponse = 64 << 20

// ErrWorkerClosed is returned for requests made after Close
var ErrWorkerClosed = errors.New("inference worker is closed")

// RemoteError is an error reported by the child for one request. The worker stays usable.
type RemoteError struct {
	Op  byte
	Msg string
}

func (e *RemoteError) Error() string {
	return "inference worker error: " + e.Msg
}

type Worker struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu     sync.Mutex
	closed bool

	// The last frame sent, so landmark and describe calls on the same frame share one encode
	lastFrame *types.Frame
	lastJPEG  []byte
}

// Start launches command (split on whitespace) as an inference child process.
func Start(ctx context.Context, command string) (*Worker, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("empty worker command")
	}
	child := utils.NewSafeCommand(ctx, argv[0], argv[1:]...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	child.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := child.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := child.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("inference worker failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &Worker{
		Cmd:      child,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one request and returns the payload of a successful response.
func (w *Worker) Communicate(op byte, body []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.communicate(op, body)
}

func (w *Worker) communicate(op byte, body []byte) ([]byte, error) {
	if w.closed {
		return nil, ErrWorkerClosed
	}

	// Protocol: [Length][Op][Body]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(body)+1)); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(append([]byte{op}, body...)); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		// A crashed child shows up here, its stderr is in w.Cmd.Stderr
		return nil, fmt.Errorf("read response header: %w", err)
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 || respLen > maxResponse {
		return nil, fmt.Errorf("bad response length %d", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, resp); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch resp[0] {
	case statusOK:
		return resp[1:], nil
	case statusError:
		r := bytes.NewReader(resp[1:])
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil || int(n) > r.Len() {
			return nil, &RemoteError{Op: op, Msg: "malformed error response"}
		}
		msg := make([]byte, n)
		r.Read(msg)
		return nil, &RemoteError{Op: op, Msg: string(msg)}
	}
	return nil, fmt.Errorf("unknown response status %d", resp[0])
}

// Close shuts down the child: closing stdin tells it to exit.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}

// frameJPEG encodes the frame, reusing the previous encode for the same frame. Callers hold w.mu.
func (w *Worker) frameJPEG(frame *types.Frame) ([]byte, error) {
	if frame == w.lastFrame && w.lastJPEG != nil {
		return w.lastJPEG, nil
	}
	buf := bytes.Buffer{}
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	w.lastFrame, w.lastJPEG = frame, buf.Bytes()
	return w.lastJPEG, nil
}

func (w *Worker) Detect(frame *types.Frame) ([]nn.RawDetection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	img, err := w.frameJPEG(frame)
	if err != nil {
		return nil, err
	}
	resp, err := w.communicate(OpDetect, img)
	if err != nil {
		return nil, err
	}
	return decodeDetections(resp)
}

func (w *Worker) DetectPresence(gray *image.Gray) ([]types.Box, error) {
	buf := bytes.Buffer{}
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	resp, err := w.Communicate(OpPresence, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeBoxes(resp)
}

func (w *Worker) Landmarks(frame *types.Frame, box types.Box) (nn.Shape, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	img, err := w.frameJPEG(frame)
	if err != nil {
		return nn.Shape{}, err
	}
	body := new(bytes.Buffer)
	writeBox(body, box)
	body.Write(img)
	resp, err := w.communicate(OpLandmarks, body.Bytes())
	if err != nil {
		return nn.Shape{}, err
	}
	pts, err := decodePoints(resp)
	if err != nil {
		return nn.Shape{}, err
	}
	return nn.Shape{Box: box, Points: pts}, nil
}

func (w *Worker) Describe(frame *types.Frame, shape nn.Shape) (types.Descriptor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	img, err := w.frameJPEG(frame)
	if err != nil {
		return nil, err
	}
	body := new(bytes.Buffer)
	binary.Write(body, binary.BigEndian, uint32(len(shape.Points)))
	for _, p := range shape.Points {
		binary.Write(body, binary.BigEndian, [2]int32{int32(p.X), int32(p.Y)})
	}
	writeBox(body, shape.Box)
	body.Write(img)
	resp, err := w.communicate(OpDescribe, body.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeDescriptor(resp)
}

func writeBox(buf *bytes.Buffer, b types.Box) {
	binary.Write(buf, binary.BigEndian, [4]int32{int32(b.X1), int32(b.Y1), int32(b.X2), int32(b.Y2)})
}

// readCount reads a u32 element count and checks that n elements of size bytes follow
func readCount(r *bytes.Reader, size int) (int, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, fmt.Errorf("read count: %w", err)
	}
	if int64(n)*int64(size) > int64(r.Len()) {
		return 0, fmt.Errorf("truncated response: %d elements of %d bytes, %d bytes left", n, size, r.Len())
	}
	return int(n), nil
}

func decodeDetections(payload []byte) ([]nn.RawDetection, error) {
	r := bytes.NewReader(payload)
	n, err := readCount(r, 20)
	if err != nil {
		return nil, err
	}
	out := make([]nn.RawDetection, n)
	for i := range out {
		var rec [5]float32
		binary.Read(r, binary.BigEndian, &rec)
		out[i] = nn.RawDetection{Confidence: rec[0], Box: [4]float32{rec[1], rec[2], rec[3], rec[4]}}
	}
	return out, nil
}

func decodeBoxes(payload []byte) ([]types.Box, error) {
	r := bytes.NewReader(payload)
	n, err := readCount(r, 16)
	if err != nil {
		return nil, err
	}
	out := make([]types.Box, n)
	for i := range out {
		var b [4]int32
		binary.Read(r, binary.BigEndian, &b)
		out[i] = types.Box{X1: int(b[0]), Y1: int(b[1]), X2: int(b[2]), Y2: int(b[3])}
	}
	return out, nil
}

func decodePoints(payload []byte) ([]image.Point, error) {
	r := bytes.NewReader(payload)
	n, err := readCount(r, 8)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("no landmarks found inside box")
	}
	out := make([]image.Point, n)
	for i := range out {
		var p [2]int32
		binary.Read(r, binary.BigEndian, &p)
		out[i] = image.Pt(int(p[0]), int(p[1]))
	}
	return out, nil
}

func decodeDescriptor(payload []byte) (types.Descriptor, error) {
	r := bytes.NewReader(payload)
	n, err := readCount(r, 4)
	if err != nil {
		return nil, err
	}
	out := make(types.Descriptor, n)
	for i := range out {
		var bits uint32
		binary.Read(r, binary.BigEndian, &bits)
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

var (
	_ nn.Detector         = (*Worker)(nil)
	_ nn.PresenceDetector = (*Worker)(nil)
	_ nn.Landmarker       = (*Worker)(nil)
	_ nn.Describer        = (*Worker)(nil)
)

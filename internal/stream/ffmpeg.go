package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"sync"

	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/andresmejia3/facewatch/internal/utils"
)

// maxFrameSize bounds one MJPEG frame in the pipe
const maxFrameSize = 32 << 20

// FFmpeg decodes a stream in an ffmpeg child process and reads MJPEG frames from its stdout.
type FFmpeg struct {
	cmd     *utils.SafeCommand
	cancel  context.CancelFunc
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	Info    utils.StreamInfo

	closeOnce sync.Once
}

// OpenFFmpeg probes url with ffprobe and starts the decoder.
func OpenFFmpeg(ctx context.Context, url string) (Source, error) {
	info, err := utils.ProbeStream(ctx, url)
	if err != nil {
		return nil, &OpenError{URL: url, Err: err}
	}

	// The child outlives the open call, so it gets its own cancel rather than ctx
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := utils.NewFFmpegStreamCmd(procCtx, url)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &OpenError{URL: url, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &OpenError{URL: url, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	f := newFFmpeg(stdout)
	f.cmd, f.cancel, f.Info = cmd, cancel, info
	return f, nil
}

func newFFmpeg(stdout io.ReadCloser) *FFmpeg {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	scanner.Split(utils.SplitJpeg)
	return &FFmpeg{stdout: stdout, scanner: scanner}
}

// Read returns the next frame. A frame that fails to decode is reported as an error;
// the caller may keep reading.
func (f *FFmpeg) Read() (*types.Frame, error) {
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			return nil, err
		}
		if f.cmd != nil && f.cmd.Stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", io.EOF, bytes.TrimSpace(f.cmd.Stderr.Bytes()))
		}
		return nil, io.EOF
	}
	img, err := jpeg.Decode(bytes.NewReader(f.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return types.NewFrame(img), nil
}

func (f *FFmpeg) Close() error {
	f.closeOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		f.stdout.Close()
		if f.cmd != nil {
			// Killed by cancel, the exit status carries no information
			f.cmd.Wait()
		}
	})
	return nil
}

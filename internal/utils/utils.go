package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (worker and ffmpeg logs)
// This ensures we don't lose critical crash information if a child process dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
// The process is killed when ctx is cancelled.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// errOut is where error boxes go; swapped in tests
var errOut io.Writer = os.Stderr

// ShowError prints a formatted error box and dumps child process logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(errOut, "\n---------------------------------------------------------\n")
	fmt.Fprintf(errOut, "🚨 FACEWATCH ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(errOut, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(errOut, "\nCHILD PROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(errOut, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for facewatch.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Video Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// StreamInfo is what ffprobe reports about the first video stream
type StreamInfo struct {
	Codec  string
	Width  int
	Height int
}

// IsRTSP reports whether url uses the RTSP scheme
func IsRTSP(url string) bool {
	u := strings.ToLower(url)
	return strings.HasPrefix(u, "rtsp://") || strings.HasPrefix(u, "rtsps://")
}

// ProbeStream uses ffprobe to check that url can be opened and carries a video stream.
func ProbeStream(ctx context.Context, url string) (StreamInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe not found: %w", err)
	}

	args := []string{"-v", "error"}
	if IsRTSP(url) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-select_streams", "v:0", "-show_entries", "stream=codec_name,width,height", "-of", "json", url)

	cmd := NewSafeCommand(ctx, "ffprobe", args...)
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(cmd.Stderr.String()); msg != "" {
			return StreamInfo{}, fmt.Errorf("ffprobe: %s", msg)
		}
		return StreamInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (StreamInfo, error) {
	// Helper struct for structured JSON parsing
	type ffprobeOutput struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("no video stream found")
	}
	s := res.Streams[0]
	return StreamInfo{Codec: s.CodecName, Width: s.Width, Height: s.Height}, nil
}

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			// Trailing garbage, nothing more to find
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			// Truncated frame at end of stream
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegStreamCmd creates a live decoder pipe
// It configures FFmpeg to output MJPEG frames to Stdout for ingestion.
func NewFFmpegStreamCmd(ctx context.Context, url string) *SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if IsRTSP(url) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	args = append(args, "-i", url, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")
	return NewSafeCommand(ctx, "ffmpeg", args...)
}

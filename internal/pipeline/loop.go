// Package pipeline runs the live identification loop:
// acquire, localize, extract, match and emit, one frame at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/facewatch/internal/annotate"
	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/nn"
	"github.com/andresmejia3/facewatch/internal/stream"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/cyclopcam/logs"
)

type State int

const (
	Starting State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	StreamURL      string
	Threshold      float64
	ExtractWorkers int  // goroutines per frame for descriptor extraction
	Annotate       bool // emit an annotated copy of the frame

	// Pause before re-reading after a bad frame. Zero retries immediately.
	RetryDelay time.Duration
}

// Deps are the loop's collaborators. Log, Provider, Gallery and Open are required.
type Deps struct {
	Log      logs.Log
	Provider *nn.Provider
	Gallery  *gallery.Gallery
	Open     stream.Opener
	Sink     Sink
	Stop     StopSignal
	Clock    func() time.Time
}

type Loop struct {
	cfg  Config
	deps Deps
	log  logs.Log

	ident *Identifier

	mu      sync.Mutex
	state   State
	session *Session

	src         stream.Source
	releaseOnce sync.Once

	// Consecutive bad frames, reported once per streak
	badStreak int
}

func New(cfg Config, deps Deps) *Loop {
	if cfg.Threshold <= 0 {
		cfg.Threshold = gallery.DefaultThreshold
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Loop{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Log,
		ident: NewIdentifier(deps.Log, deps.Provider, deps.Gallery, cfg.Threshold, cfg.ExtractWorkers),
	}
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Session is nil until the loop is running
func (l *Loop) Session() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Run opens the stream and processes frames until ctx is cancelled or the stop signal fires.
// It returns an error only for startup failures. The stream and models are released on every path.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	if l.deps.Gallery == nil || l.deps.Gallery.Len() == 0 {
		return fmt.Errorf("cannot identify faces: %w", gallery.ErrEmptyGallery)
	}

	src, err := l.deps.Open(ctx, l.cfg.StreamURL)
	if err != nil {
		var openErr *stream.OpenError
		if !errors.As(err, &openErr) {
			err = &stream.OpenError{URL: l.cfg.StreamURL, Err: err}
		}
		return err
	}
	l.src = src

	session := NewSession(l.deps.Clock())
	l.log = newPrefixLog(l.deps.Log, fmt.Sprintf("[%.8s]", session.ID))
	l.ident.Log = l.log
	l.mu.Lock()
	l.session = session
	l.state = Running
	l.mu.Unlock()
	l.log.Infof("Watching %s (%d gallery entries, threshold %.2f)", l.cfg.StreamURL, l.deps.Gallery.Len(), l.cfg.Threshold)

	for {
		l.Step()
		if l.stopRequested(ctx) {
			break
		}
	}

	l.log.Infof("Stopped after %d frames (%.2f fps)", session.Processed(), session.FPS(l.deps.Clock()))
	return nil
}

// stopRequested polls the context and then the external stop signal, without blocking
func (l *Loop) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	return l.deps.Stop != nil && l.deps.Stop.Stopped()
}

// Step runs one iteration on the open stream. It reports whether a frame was processed and emitted.
// Bad frames and model failures are logged and skipped here; nothing in a step is fatal.
func (l *Loop) Step() bool {
	if l.src == nil || l.session == nil {
		return false
	}
	frame, ok := l.acquire()
	if !ok {
		return false
	}

	results, err := l.ident.Identify(frame)
	if err != nil {
		l.log.Warnf("Skipping frame: %v", err)
		return false
	}

	n := l.session.Tick()
	now := l.deps.Clock()
	ev := types.Event{
		SessionID: l.session.ID,
		Index:     n,
		Frame:     frame,
		Results:   results,
		FPS:       l.session.FPS(now),
		At:        now,
	}
	if l.cfg.Annotate {
		ev.Frame = frame.Clone()
		annotate.Draw(ev.Frame.Image, results, ev.FPS)
	}
	if l.deps.Sink != nil {
		if err := l.deps.Sink.Emit(ev); err != nil {
			l.log.Warnf("Output sink failed: %v", err)
		}
	}
	return true
}

// acquire reads the next usable frame. Failures are reported once per streak of bad frames.
func (l *Loop) acquire() (*types.Frame, bool) {
	frame, err := l.src.Read()
	cause := ""
	switch {
	case err != nil:
		cause = err.Error()
	case frame == nil:
		cause = "no frame returned"
	case frame.Width() == 0 || frame.Height() == 0:
		cause = "zero-size frame"
	case Blank(frame):
		cause = "blank frame"
	}

	if cause != "" {
		if l.badStreak == 0 {
			l.log.Warnf("Frame acquisition failed, retrying: %s", cause)
		}
		l.badStreak++
		if l.cfg.RetryDelay > 0 {
			time.Sleep(l.cfg.RetryDelay)
		}
		return nil, false
	}

	if l.badStreak > 0 {
		l.log.Infof("Frames resumed after %d skipped", l.badStreak)
		l.badStreak = 0
	}
	return frame, true
}

// Blank reports whether every color sample of the frame is zero. Alpha is ignored.
func Blank(frame *types.Frame) bool {
	img := frame.Image
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		row := img.Pix[start : start+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			if row[i] != 0 || row[i+1] != 0 || row[i+2] != 0 {
				return false
			}
		}
	}
	return true
}

// shutdown moves to STOPPED and releases the stream and models exactly once
func (l *Loop) shutdown() {
	l.releaseOnce.Do(func() {
		if l.src != nil {
			if err := l.src.Close(); err != nil {
				l.log.Warnf("Releasing stream: %v", err)
			}
		}
		if err := l.deps.Provider.Close(); err != nil {
			l.log.Warnf("Releasing models: %v", err)
		}
	})
	l.setState(Stopped)
}

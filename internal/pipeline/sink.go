package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/cyclopcam/logs"
)

// Sink consumes one event per processed frame. Errors are logged by the loop, never fatal.
type Sink interface {
	Emit(ev types.Event) error
}

// StopSignal is polled once per iteration. It must not block for longer than about a millisecond.
type StopSignal interface {
	Stopped() bool
}

// StopFunc adapts a function to StopSignal
type StopFunc func() bool

func (f StopFunc) Stopped() bool { return f() }

// JSONSink writes every event as one JSON line
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Emit(ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

// LogSink logs the FPS and the latest results at most once per Every
type LogSink struct {
	Log   logs.Log
	Every time.Duration

	last time.Time
}

func (s *LogSink) Emit(ev types.Event) error {
	if !s.last.IsZero() && ev.At.Sub(s.last) < s.Every {
		return nil
	}
	s.last = ev.At

	names := make([]string, len(ev.Results))
	for i, r := range ev.Results {
		names[i] = r.Caption()
	}
	if len(names) == 0 {
		s.Log.Infof("Frame %d, %.2f fps, no faces", ev.Index, ev.FPS)
	} else {
		s.Log.Infof("Frame %d, %.2f fps: %s", ev.Index, ev.FPS, strings.Join(names, ", "))
	}
	return nil
}

// MultiSink fans an event out to every sink
type MultiSink []Sink

func (m MultiSink) Emit(ev types.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AnyStop is stopped as soon as one of its signals is
type AnyStop []StopSignal

func (a AnyStop) Stopped() bool {
	for _, s := range a {
		if s.Stopped() {
			return true
		}
	}
	return false
}

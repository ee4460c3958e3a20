// Package stream defines the frame source collaborator of the identification loop
// and an FFmpeg-backed implementation of it.
package stream

import (
	"context"
	"fmt"

	"github.com/andresmejia3/facewatch/internal/types"
)

// Source yields decoded frames. Read returns io.EOF at end of stream.
// Close releases the underlying handle and is safe to call more than once.
type Source interface {
	Read() (*types.Frame, error)
	Close() error
}

// Opener opens a source by URL. Failure is an *OpenError.
type Opener func(ctx context.Context, url string) (Source, error)

// OpenError means the stream could not be opened at all. It is fatal and never retried.
type OpenError struct {
	URL string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open stream %s: %v", e.URL, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

package nn

import (
	"fmt"

	"github.com/andresmejia3/facewatch/internal/types"
)

// LocalizationError is returned when the detector model call itself fails.
// Zero detections is not an error.
type LocalizationError struct {
	Err error
}

func (e *LocalizationError) Error() string {
	return fmt.Sprintf("face localization failed: %v", e.Err)
}

func (e *LocalizationError) Unwrap() error {
	return e.Err
}

// ExtractionError is returned when no descriptor can be computed for a box.
// Callers skip the box and keep going.
type ExtractionError struct {
	Box types.Box
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("descriptor extraction failed for box (%d,%d)-(%d,%d): %v", e.Box.X1, e.Box.Y1, e.Box.X2, e.Box.Y2, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

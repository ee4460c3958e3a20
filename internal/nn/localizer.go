package nn

import (
	"errors"
	"image"

	"github.com/andresmejia3/facewatch/internal/types"
)

// Localizer turns raw detector output into clamped pixel boxes.
type Localizer struct {
	detector Detector
	presence PresenceDetector
}

func NewLocalizer(detector Detector, presence PresenceDetector) *Localizer {
	return &Localizer{detector: detector, presence: presence}
}

// Locate runs the inference-mode detector on a frame.
// Detections under MinConfidence are dropped, the rest are denormalized by (w,h,w,h),
// clamped to the frame, and returned in detector order.
func (l *Localizer) Locate(frame *types.Frame) ([]types.Detection, error) {
	if l.detector == nil {
		return nil, &LocalizationError{Err: errors.New("no detector loaded")}
	}
	raw, err := l.detector.Detect(frame)
	if err != nil {
		return nil, &LocalizationError{Err: err}
	}

	w, h := frame.Width(), frame.Height()
	var out []types.Detection
	for _, d := range raw {
		if d.Confidence < MinConfidence {
			continue
		}
		box := Denormalize(d.Box, w, h).Clamp(w, h)
		if !box.Valid() {
			// Entirely outside the frame or collapsed to a line
			continue
		}
		out = append(out, types.Detection{Box: box, Confidence: d.Confidence})
	}
	return out, nil
}

// LocateTraining runs the build-mode presence detector on a grayscale image.
// All boxes are returned clamped to the image, in detector order; picking one is the caller's policy.
func (l *Localizer) LocateTraining(gray *image.Gray) ([]types.Box, error) {
	if l.presence == nil {
		return nil, &LocalizationError{Err: errors.New("no presence detector loaded")}
	}
	boxes, err := l.presence.DetectPresence(gray)
	if err != nil {
		return nil, &LocalizationError{Err: err}
	}
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	out := boxes[:0:0]
	for _, b := range boxes {
		b = b.Clamp(w, h)
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out, nil
}

// Denormalize scales a fractional (x1, y1, x2, y2) box to pixels, truncating toward zero.
func Denormalize(box [4]float32, w, h int) types.Box {
	return types.Box{
		X1: int(box[0] * float32(w)),
		Y1: int(box[1] * float32(h)),
		X2: int(box[2] * float32(w)),
		Y2: int(box[3] * float32(h)),
	}
}

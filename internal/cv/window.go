package cv

import (
	"sync/atomic"

	"github.com/andresmejia3/facewatch/internal/types"
	"gocv.io/x/gocv"
)

// QuitKey ends the session when pressed in the display window
const QuitKey = 'q'

// Window shows annotated frames and is the keyboard stop signal.
// It must be used from the goroutine running the loop.
type Window struct {
	win  *gocv.Window
	quit atomic.Bool
}

func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Emit shows the event's frame. Events without a frame are ignored.
func (w *Window) Emit(ev types.Event) error {
	if ev.Frame == nil {
		return nil
	}
	mat, err := gocv.ImageToMatRGB(ev.Frame.Image)
	if err != nil {
		return err
	}
	defer mat.Close()
	w.win.IMShow(mat)
	w.poll()
	return nil
}

// Stopped polls the keyboard for about a millisecond.
func (w *Window) Stopped() bool {
	w.poll()
	return w.quit.Load()
}

func (w *Window) poll() {
	if w.win.WaitKey(1)&0xFF == QuitKey {
		w.quit.Store(true)
	}
}

func (w *Window) Close() error {
	return w.win.Close()
}

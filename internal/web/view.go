package web

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"raspifpv/internal/compass"
	"raspifpv/internal/overlay"
	"raspifpv/internal/telemetry"
)

const (
	maxFrameWidth  = 7680
	maxFrameHeight = 4320
)

// View projects the live telemetry for the compass endpoints. The spin
// animation runs on time since NewView.
type View struct {
	snapshot func() telemetry.Snapshot
	renderer *overlay.Renderer
	start    time.Time
	now      func() time.Time

	mu     sync.RWMutex
	width  int
	height int

	showAltitude atomic.Bool
}

func NewView(snapshot func() telemetry.Snapshot, renderer *overlay.Renderer, width, height int, showAltitude bool) *View {
	v := &View{
		snapshot: snapshot,
		renderer: renderer,
		width:    width,
		height:   height,
		now:      time.Now,
	}
	v.start = v.now()
	v.showAltitude.Store(showAltitude)
	return v
}

func (v *View) SetShowAltitude(on bool) { v.showAltitude.Store(on) }

func (v *View) ShowAltitude() bool { return v.showAltitude.Load() }

// Size returns the default frame size.
func (v *View) Size() (int, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.width, v.height
}

// SetSize changes the default frame size. Non-positive values are ignored.
func (v *View) SetSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.mu.Lock()
	v.width, v.height = width, height
	v.mu.Unlock()
}

func (v *View) Frame(width, height int) compass.Frame {
	var snap telemetry.Snapshot
	if v.snapshot != nil {
		snap = v.snapshot()
	}
	p := compass.NewProjector(compass.Options{ShowAltitude: v.ShowAltitude()})
	return p.Project(snap, v.now().Sub(v.start), width, height)
}

// WritePNG renders the current frame. It fails when no renderer is set.
func (v *View) WritePNG(w io.Writer, width, height int) error {
	if v.renderer == nil {
		return errNoRenderer
	}
	return v.renderer.WritePNG(w, v.Frame(width, height))
}

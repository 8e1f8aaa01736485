// Package compass turns a telemetry snapshot into a screen-space arrow that
// points back to the home fix, plus the text labels drawn around it.
//
// Nothing here draws pixels. A Frame is handed to a renderer (see
// internal/overlay) which strokes the polyline and places the labels.
package compass

import (
	"fmt"
	"math"
	"time"

	"raspifpv/internal/geo"
	"raspifpv/internal/telemetry"
)

// SpinPeriod is one full turn of the arrow while no home fix is known.
const SpinPeriod = 3 * time.Second

const spinStep = 10 * time.Millisecond

// Arrow is the model-space outline: tip at the origin, head 1.5 wide and 0.6
// long, shaft 0.8 wide, pointing towards -Z.
var Arrow = [7]geo.Point3{
	{X: 0, Y: 0, Z: 0},
	{X: 0.75, Y: 0, Z: 0.6},
	{X: 0.4, Y: 0, Z: 0.6},
	{X: 0.4, Y: 0, Z: 1.0},
	{X: -0.4, Y: 0, Z: 1.0},
	{X: -0.4, Y: 0, Z: 0.6},
	{X: -0.75, Y: 0, Z: 0.6},
}

var (
	perspective = mustPerspective(math.Pi/2, 4.0/3.0, 0.01, 10)
	camera      = geo.Translation(0, 0.7, 1)
)

func mustPerspective(fovy, aspect, near, far float64) geo.Matrix4 {
	m, err := geo.Perspective(fovy, aspect, near, far)
	if err != nil {
		panic(err)
	}
	return m
}

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

func (a Align) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return fmt.Sprintf("align(%d)", int(a))
	}
}

func (a Align) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

type LabelKind string

const (
	LabelDistance LabelKind = "distance"
	LabelPower    LabelKind = "power"
	LabelSignal   LabelKind = "signal"
	LabelAltitude LabelKind = "altitude"
)

// Label is text anchored at (X, Y) in device pixels. Y is the baseline.
type Label struct {
	Kind  LabelKind `json:"kind"`
	Text  string    `json:"text"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Align Align     `json:"align"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is everything a renderer needs for one overlay frame.
type Frame struct {
	Width   int  `json:"width"`
	Height  int  `json:"height"`
	HasHome bool `json:"has_home"`

	// DistanceM is zero while spinning.
	DistanceM float64 `json:"distance_m"`
	// Horizontal and Vertical are the arrow angles in radians.
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`

	// Arrow is a closed polyline: the last point joins the first.
	Arrow []Point `json:"arrow"`

	OutlineWidth float64 `json:"outline_width"`
	FillWidth    float64 `json:"fill_width"`
	FontSize     float64 `json:"font_size"`

	Labels []Label `json:"labels"`
}

type Options struct {
	ShowAltitude bool
}

type Projector struct {
	opts Options
}

func NewProjector(opts Options) *Projector {
	return &Projector{opts: opts}
}

// SpinAngle is the arrow heading in radians while there is no home fix. It
// depends only on ts, the render timestamp.
func SpinAngle(ts time.Duration) float64 {
	steps := int64(SpinPeriod / spinStep)
	n := int64(ts/spinStep) % steps
	if n < 0 {
		n += steps
	}
	return float64(n) / float64(steps) * 2 * math.Pi
}

// Angles returns the arrow angles in radians and the distance to home in
// metres for snap at render time ts.
func Angles(snap telemetry.Snapshot, ts time.Duration) (horizontal, vertical, distanceM float64) {
	if !snap.HasHome() {
		return SpinAngle(ts), 0, 0
	}

	cur, home := snap.Location, snap.Home
	distanceM = geo.Distance(cur.Latitude, cur.Longitude, home.Latitude, home.Longitude)
	toHome := geo.Bearing(cur.Latitude, cur.Longitude, home.Latitude, home.Longitude)
	horizontal = geo.NormalizeDeg(toHome-snap.Bearing) * math.Pi / 180

	if cur.Altitude != home.Altitude {
		// Remap atan's (-pi/2, pi/2) so straight above home is -pi/2.
		vertical = math.Mod(math.Atan(distanceM/(cur.Altitude-home.Altitude))+math.Pi, math.Pi) - math.Pi/2
	}
	return horizontal, vertical, distanceM
}

// Transform builds screen · perspective · camera · rotation for a surface
// width pixels wide.
func Transform(horizontal, vertical float64, width int) geo.Matrix4 {
	w := float64(width)
	rotate := geo.Chain(
		geo.Translation(0, 0, 0.5),
		geo.RotationY(horizontal+math.Pi),
		geo.RotationX(vertical),
		geo.Translation(0, 0, -0.5),
	)
	screen := geo.Chain(
		geo.Translation(w/2, 0, 0),
		geo.Scale(w*0.07, w*0.07, w*0.07),
		geo.Translation(0, 1, 0),
	)
	return geo.Chain(screen, perspective, camera, rotate)
}

func (p *Projector) Project(snap telemetry.Snapshot, ts time.Duration, width, height int) Frame {
	h, v, dist := Angles(snap, ts)
	m := Transform(h, v, width)

	f := Frame{
		Width:        width,
		Height:       height,
		HasHome:      snap.HasHome(),
		DistanceM:    dist,
		Horizontal:   h,
		Vertical:     v,
		Arrow:        make([]Point, 0, len(Arrow)),
		OutlineWidth: float64(width) * 0.005,
		FillWidth:    float64(width) * 0.003,
		FontSize:     float64(height) * 0.03,
	}
	for _, pt := range Arrow {
		q := m.Transform(pt)
		f.Arrow = append(f.Arrow, Point{X: q.X, Y: q.Y})
	}
	f.Labels = p.labels(snap, dist, width, height)
	return f
}

func (p *Projector) labels(snap telemetry.Snapshot, distanceM float64, width, height int) []Label {
	w, h := float64(width), float64(height)
	margin := h * 0.05

	var out []Label
	if snap.HasHome() && snap.Location.Latitude != 0 {
		out = append(out, Label{
			Kind:  LabelDistance,
			Text:  fmt.Sprintf("%d m", int(distanceM)),
			X:     w / 2,
			Y:     h * 0.14,
			Align: AlignCenter,
		})
	}
	if snap.Voltage > 0 {
		out = append(out, Label{
			Kind:  LabelPower,
			Text:  fmt.Sprintf("%0.2fV / %0.2fA", snap.Voltage, snap.Current),
			X:     margin,
			Y:     margin,
			Align: AlignLeft,
		})
	}
	// RSSI scales into [rssi_sensor_min, rssi_sensor_max], normally <= 0, so
	// only the zero sentinel hides the label.
	if snap.RSSI != 0 {
		out = append(out, Label{
			Kind:  LabelSignal,
			Text:  fmt.Sprintf("%0.2fdB RSSI", snap.RSSI),
			X:     w - margin,
			Y:     margin,
			Align: AlignRight,
		})
	}
	if p.opts.ShowAltitude && snap.Location.Altitude > 0 {
		out = append(out, Label{
			Kind:  LabelAltitude,
			Text:  fmt.Sprintf("%d m alt", int(snap.Location.Altitude)),
			X:     w * 0.75,
			Y:     h * 0.14,
			Align: AlignCenter,
		})
	}
	return out
}

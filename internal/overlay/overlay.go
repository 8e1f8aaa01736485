// Package overlay rasterizes a compass.Frame onto a transparent RGBA image.
//
// The arrow is stroked twice, first wide in translucent black and then
// narrow in white. Labels get the same treatment with a one pixel offset
// shadow in four directions.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"raspifpv/internal/compass"
)

const dpi = 72

var (
	shadow = image.NewUniform(color.RGBA{A: 77}) // black at 0.3
	ink    = image.NewUniform(color.White)

	shadowOffsets = [4]image.Point{{-1, -1}, {1, 1}, {-1, 1}, {1, -1}}
)

// Renderer is safe for concurrent use.
type Renderer struct {
	mu   sync.Mutex
	font *truetype.Font
	ctx  *freetype.Context

	faceSize float64
	face     font.Face
}

func NewRenderer() (*Renderer, error) {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetHinting(font.HintingFull)
	return &Renderer{font: f, ctx: ctx}, nil
}

// Render draws fr onto a new transparent image of fr.Width by fr.Height.
func (r *Renderer) Render(fr compass.Frame) (*image.RGBA, error) {
	if fr.Width <= 0 || fr.Height <= 0 {
		return nil, fmt.Errorf("frame size %dx%d", fr.Width, fr.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, fr.Width, fr.Height))
	if err := r.Draw(img, fr); err != nil {
		return nil, err
	}
	return img, nil
}

// Draw composites fr over dst.
func (r *Renderer) Draw(dst *image.RGBA, fr compass.Frame) error {
	strokeClosed(dst, fr.Arrow, fr.OutlineWidth, shadow)
	strokeClosed(dst, fr.Arrow, fr.FillWidth, ink)

	if len(fr.Labels) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.setSize(fr.FontSize)
	r.ctx.SetClip(dst.Bounds())
	r.ctx.SetDst(dst)
	for _, l := range fr.Labels {
		if err := r.drawLabel(l); err != nil {
			return fmt.Errorf("drawing %s label: %w", l.Kind, err)
		}
	}
	return nil
}

// WritePNG renders fr and encodes it as PNG.
func (r *Renderer) WritePNG(w io.Writer, fr compass.Frame) error {
	img, err := r.Render(fr)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func (r *Renderer) setSize(size float64) {
	if r.face != nil && size == r.faceSize {
		return
	}
	r.ctx.SetFontSize(size)
	r.face = truetype.NewFace(r.font, &truetype.Options{Size: size, DPI: dpi, Hinting: font.HintingFull})
	r.faceSize = size
}

// TextWidth is the advance width of s in pixels at size.
func (r *Renderer) TextWidth(s string, size float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setSize(size)
	return fixedToFloat(font.MeasureString(r.face, s))
}

func (r *Renderer) drawLabel(l compass.Label) error {
	x := alignedX(l.X, fixedToFloat(font.MeasureString(r.face, l.Text)), l.Align)
	base := fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(l.Y)}

	r.ctx.SetSrc(shadow)
	for _, d := range shadowOffsets {
		pt := base.Add(fixed.P(d.X, d.Y))
		if _, err := r.ctx.DrawString(l.Text, pt); err != nil {
			return err
		}
	}
	r.ctx.SetSrc(ink)
	_, err := r.ctx.DrawString(l.Text, base)
	return err
}

// alignedX places text of width w so that x is its left edge, centre or
// right edge.
func alignedX(x, w float64, a compass.Align) float64 {
	switch a {
	case compass.AlignCenter:
		return x - w/2
	case compass.AlignRight:
		return x - w
	default:
		return x
	}
}

// strokeClosed strokes the closed polyline pts with a line of the given
// width. Each segment is a quad extended by half the width at both ends,
// which squares off the joins.
func strokeClosed(dst draw.Image, pts []compass.Point, width float64, src image.Image) {
	if len(pts) < 2 || width <= 0 {
		return
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over

	hw := width / 2
	for i := range pts {
		p0, p1 := pts[i], pts[(i+1)%len(pts)]
		dx, dy := p1.X-p0.X, p1.Y-p0.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l*hw, dy/l*hw // along the segment
		nx, ny := -uy, ux          // left normal

		ax, ay := p0.X-ux, p0.Y-uy
		bx, by := p1.X+ux, p1.Y+uy
		z.MoveTo(f32(ax+nx), f32(ay+ny))
		z.LineTo(f32(bx+nx), f32(by+ny))
		z.LineTo(f32(bx-nx), f32(by-ny))
		z.LineTo(f32(ax-nx), f32(ay-ny))
		z.ClosePath()
	}
	z.Draw(dst, b, src, image.Point{})
}

func f32(v float64) float32 { return float32(v) }

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }

func floatToFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

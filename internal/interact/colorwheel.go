package interact

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultColor is what a wheel reports before anything has been sampled.
var DefaultColor = color.RGBA{G: 255, A: 255}

// ColorWheel is a unit quad textured with a colour wheel. A stick vector
// moves a selector over it and the texel under the selector becomes the
// current colour.
type ColorWheel struct {
	Node     *scene.Node
	Selector *scene.Node
	Preview  *scene.Node
	Scale    float64

	texture image.Image
	current color.RGBA
}

// NewColorWheel builds the wheel, selector and preview nodes under parent.
func NewColorWheel(g *scene.Graph, parent *scene.Node, texture image.Image, scale float64) *ColorWheel {
	wheel := g.NewNode("ColorWheel", parent)
	cw := &ColorWheel{
		Node:     wheel,
		Selector: g.NewNode("Selector", wheel),
		Preview:  g.NewNode("Preview", wheel),
		Scale:    scale,
		texture:  texture,
		current:  DefaultColor,
	}
	cw.Preview.Color = cw.current
	return cw
}

// Current returns the last selected colour.
func (cw *ColorWheel) Current() color.RGBA { return cw.current }

// Select moves the selector to stick (each axis in [-1, 1]) and samples the
// texture under it. Positions off the quad keep the previous colour.
func (cw *ColorWheel) Select(stick [2]float64) color.RGBA {
	cw.Selector.LocalPosition = r3.Scale(cw.Scale, r3.Vec{X: stick[0], Y: stick[1], Z: -0.1})

	u := cw.Selector.LocalPosition.X + 0.5
	v := cw.Selector.LocalPosition.Y + 0.5
	if u < 0 || u > 1 || v < 0 || v > 1 || cw.texture == nil {
		return cw.current
	}

	cw.current = sampleTexture(cw.texture, u, v)
	cw.Preview.Color = cw.current
	return cw.current
}

// sampleTexture reads the texel at (u, v) with v = 0 at the bottom row.
func sampleTexture(img image.Image, u, v float64) color.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	x := int(u * float64(w))
	y := int(v * float64(h))
	if x >= w {
		x = w - 1
	}
	if y >= h {
		y = h - 1
	}
	return color.RGBAModel.Convert(img.At(b.Min.X+x, b.Max.Y-1-y)).(color.RGBA)
}

// WheelTexture renders a hue/saturation disc: hue by angle, saturation by
// radius, transparent outside the disc.
func WheelTexture(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	c := float64(size-1) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, c-float64(y)
			r := math.Hypot(dx, dy) / c
			if r > 1 {
				continue
			}
			hue := math.Mod(math.Atan2(dy, dx)*180/math.Pi+360, 360)
			cr, cg, cb := colorful.Hsv(hue, r, 1).Clamped().RGB255()
			img.SetRGBA(x, y, color.RGBA{R: cr, G: cg, B: cb, A: 255})
		}
	}
	return img
}

// LoadWheelTexture decodes a PNG colour wheel.
func LoadWheelTexture(r io.Reader) (image.Image, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode colour wheel texture: %w", err)
	}
	return img, nil
}

package interact

import (
	"image"
	"image/color"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// Controller is one input device as polled by the host.
type Controller struct {
	LeftTrigger      bool
	RightTrigger     bool
	LeftStickButton  bool
	RightStickButton bool
	LeftStick        [2]float64
	RightStick       [2]float64
	Fire             bool
}

const (
	leftHand  = 0
	rightHand = 1
)

type builderHand struct {
	held  *Body
	color color.RGBA
	wheel *ColorWheel
}

// Builder lets each hand place and paint cubes. Holding a trigger creates a
// cube at that hand and drags it; releasing leaves it in place. Holding a
// stick button opens a colour wheel at the hand, facing the head.
type Builder struct {
	CubeSize float64

	world   *World
	graph   *scene.Graph
	parent  *scene.Node
	clock   timeutil.Clock
	texture image.Image
	cfg     *config.TuningConfig

	hands  [2]builderHand
	pops   []*PopIn
	placed []*Body
}

// NewBuilder returns a builder placing cubes under parent.
func NewBuilder(w *World, g *scene.Graph, parent *scene.Node, clock timeutil.Clock, texture image.Image, cfg *config.TuningConfig) *Builder {
	b := &Builder{
		CubeSize: 1,
		world:    w,
		graph:    g,
		parent:   parent,
		clock:    clock,
		texture:  texture,
		cfg:      cfg,
	}
	for i := range b.hands {
		b.hands[i].color = DefaultColor
	}
	return b
}

// Placed returns every cube created so far.
func (b *Builder) Placed() []*Body {
	out := make([]*Body, len(b.placed))
	copy(out, b.placed)
	return out
}

// Held returns the cube a hand (0 left, 1 right) is dragging, or nil.
func (b *Builder) Held(hand int) *Body { return b.hands[hand].held }

// Wheel returns the open colour wheel for a hand, or nil.
func (b *Builder) Wheel(hand int) *ColorWheel { return b.hands[hand].wheel }

// Color returns a hand's current paint colour.
func (b *Builder) Color(hand int) color.RGBA { return b.hands[hand].color }

// Update advances pop-in animations and applies controller input for the
// active avatar. With two or more devices the first drives the left hand
// and the second the right; a single device drives both.
func (b *Builder) Update(av *avatar.Avatar, devices []Controller) {
	now := b.clock.Now()
	running := b.pops[:0]
	for _, p := range b.pops {
		if !p.Node.Released() && !p.Update(now) {
			running = append(running, p)
		}
	}
	b.pops = running

	if av == nil {
		return
	}
	var left, right Controller
	switch {
	case len(devices) >= 2:
		left, right = devices[0], devices[1]
	case len(devices) == 1:
		left, right = devices[0], devices[0]
	default:
		return
	}

	head := av.Head().WorldPosition()
	b.handInput(leftHand, left.LeftTrigger, left.LeftStickButton, left.LeftStick, av.LeftHand().WorldPosition(), head)
	b.handInput(rightHand, right.RightTrigger, right.RightStickButton, right.RightStick, av.RightHand().WorldPosition(), head)
}

func (b *Builder) handInput(i int, trigger, stickButton bool, stick [2]float64, pos, head r3.Vec) {
	h := &b.hands[i]

	if trigger {
		if h.held == nil {
			h.held = b.newCube(h.color)
		}
		h.held.Node.SetWorldPosition(pos)
	} else {
		h.held = nil
	}

	if stickButton {
		if h.wheel == nil {
			h.wheel = NewColorWheel(b.graph, b.parent, b.texture, b.cfg.GetColorWheelScale())
		}
		h.color = h.wheel.Select(stick)
		if h.held != nil {
			h.held.Node.Color = h.color
		}
		h.wheel.Node.SetWorldPosition(pos)
		h.wheel.Node.LocalRotation = scene.LookRotation(r3.Sub(head, pos))
	} else if h.wheel != nil {
		h.wheel.Node.Release()
		h.wheel = nil
	}
}

func (b *Builder) newCube(c color.RGBA) *Body {
	node := b.graph.NewNode("Cube", b.parent)
	node.Color = c
	half := b.CubeSize / 2
	body := b.world.Add(node, r3.Vec{X: half, Y: half, Z: half}, LayerBuilt)
	b.pops = append(b.pops, NewPopIn(node, b.clock.Now(), b.cfg.GetPopInDuration()))
	b.placed = append(b.placed, body)
	return body
}

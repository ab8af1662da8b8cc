package interact

import (
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// Aim stretches a thin reticle node along a ray to the nearest built object,
// or to a fixed idle length when nothing is in range.
type Aim struct {
	Node        *scene.Node
	MaxDistance float64
	IdleLength  float64
	Width       float64
	Mask        Layer

	world *World
}

// NewAim creates the reticle node under parent.
func NewAim(w *World, g *scene.Graph, parent *scene.Node, cfg *config.TuningConfig) *Aim {
	return &Aim{
		Node:        g.NewNode("Aim", parent),
		MaxDistance: cfg.GetAimMaxDistance(),
		IdleLength:  cfg.GetAimIdleLength(),
		Width:       cfg.GetAimReticleWidth(),
		Mask:        LayerBuilt,
		world:       w,
	}
}

// Update points the reticle along the ray and returns the nearest hit.
func (a *Aim) Update(origin, direction r3.Vec) (Hit, bool) {
	hit, ok := a.world.Raycast(scene.Ray{Origin: origin, Direction: direction}, a.MaxDistance, a.Mask)
	if ok {
		a.Node.SetWorldPosition(scene.LerpVec(origin, hit.Point, 0.5))
		a.Node.LocalScale = r3.Vec{X: a.Width, Y: a.Width, Z: hit.Distance * 2}
	} else {
		a.Node.LocalScale = r3.Vec{X: a.Width, Y: a.Width, Z: a.IdleLength}
		a.Node.SetWorldPosition(r3.Add(origin, r3.Scale(a.IdleLength/2, safeUnit(direction))))
	}
	a.Node.LocalRotation = scene.LookRotation(direction)
	return hit, ok
}

func safeUnit(v r3.Vec) r3.Vec {
	if r3.Norm(v) == 0 {
		return scene.Forward
	}
	return r3.Unit(v)
}

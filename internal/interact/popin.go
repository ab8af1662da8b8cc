package interact

import (
	"time"

	"github.com/banshee-data/avatar.track/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// PopIn grows a node from zero to its target scale over Duration. It holds
// no goroutine; call Update each tick with the current time.
type PopIn struct {
	Node     *scene.Node
	Target   r3.Vec
	Start    time.Time
	Duration time.Duration
}

// NewPopIn starts an animation at now toward the node's current scale and
// collapses the node to zero.
func NewPopIn(node *scene.Node, now time.Time, d time.Duration) *PopIn {
	p := &PopIn{Node: node, Target: node.LocalScale, Start: now, Duration: d}
	node.LocalScale = r3.Vec{}
	return p
}

// Progress returns the eased fraction complete at now, in [0, 1].
func (p *PopIn) Progress(now time.Time) float64 {
	if p.Duration <= 0 {
		return 1
	}
	t := scene.Clamp01(float64(now.Sub(p.Start)) / float64(p.Duration))
	return t * t * (3 - 2*t)
}

// Update sets the node scale for now and reports whether the animation has
// finished.
func (p *PopIn) Update(now time.Time) bool {
	s := p.Progress(now)
	p.Node.LocalScale = r3.Scale(s, p.Target)
	return s >= 1
}

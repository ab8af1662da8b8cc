package interact

import (
	"math"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/skeleton"
	"gonum.org/v1/gonum/spatial/r3"
)

// wallProbeDistance bounds the horizontal probes from each joint.
const wallProbeDistance = 10000

var (
	wallProbeJoints = []skeleton.JointType{skeleton.HandRight, skeleton.HandLeft, skeleton.Head}
	wallProbeDirs   = []r3.Vec{{Z: 1}, {Z: -1}, {X: 1}, {X: -1}}
)

// WallFader fades boundary walls in as the active avatar's hands or head
// approach them, and scrolls their texture upward.
type WallFader struct {
	Walls        []*scene.Node
	FadeIn       float64 // beyond this the walls are invisible
	Opaque       float64 // within this the walls are fully opaque
	TextureSpeed float64 // texture units per second

	alpha   float64
	offset  [2]float64
	nearest float64
	world   *World
}

// NewWallFader takes over walls, which must already be registered in w on
// LayerWall, and makes them transparent.
func NewWallFader(w *World, walls []*scene.Node, cfg *config.TuningConfig) *WallFader {
	f := &WallFader{
		Walls:        walls,
		FadeIn:       cfg.GetWallFadeInDistance(),
		Opaque:       cfg.GetWallOpaqueDistance(),
		TextureSpeed: cfg.GetWallTextureSpeed(),
		nearest:      math.Inf(1),
		world:        w,
	}
	f.apply()
	return f
}

// Alpha returns the current wall opacity.
func (f *WallFader) Alpha() float64 { return f.alpha }

// TextureOffset returns the scrolled texture offset.
func (f *WallFader) TextureOffset() [2]float64 { return f.offset }

// Nearest returns the distance measured on the last update; +Inf when no
// wall was found.
func (f *WallFader) Nearest() float64 { return f.nearest }

// AlphaFor maps a wall distance to opacity.
func (f *WallFader) AlphaFor(d float64) float64 {
	switch {
	case d <= f.Opaque:
		return 1
	case d <= f.FadeIn:
		return 1 - scene.InverseLerp(f.Opaque, f.FadeIn, d)
	default:
		return 0
	}
}

// Update probes from the avatar's hands and head. With no avatar nothing
// changes.
func (f *WallFader) Update(av *avatar.Avatar, dt time.Duration) {
	if av == nil {
		return
	}
	nearest := math.Inf(1)
	for _, j := range wallProbeJoints {
		origin := av.Joint(j).WorldPosition()
		for _, dir := range wallProbeDirs {
			if hit, ok := f.world.Raycast(scene.Ray{Origin: origin, Direction: dir}, wallProbeDistance, LayerWall); ok && hit.Distance < nearest {
				nearest = hit.Distance
			}
		}
	}
	f.nearest = nearest
	f.alpha = f.AlphaFor(nearest)
	f.offset[1] -= f.TextureSpeed * dt.Seconds()
	f.apply()
}

func (f *WallFader) apply() {
	a := uint8(math.Round(f.alpha * 255))
	for _, n := range f.Walls {
		n.Color.A = a
	}
}

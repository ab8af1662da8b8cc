package interact

import (
	"image"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// RigStats summarises the interaction state for the API.
type RigStats struct {
	Bodies     int     `json:"bodies"`
	Placed     int     `json:"placed"`
	Bullets    int     `json:"bullets"`
	Knockbacks int     `json:"knockbacks"`
	WallAlpha  float64 `json:"wall_alpha"`
	AimHit     bool    `json:"aim_hit"`
	AimRange   float64 `json:"aim_range"`
}

// Rig wires the mechanics together around one physics world: the aim and
// the gun follow the right hand ray, the builder takes controller input and
// the walls react to the whole avatar.
type Rig struct {
	World   *World
	Aim     *Aim
	Builder *Builder
	Walls   *WallFader

	graph   *scene.Graph
	root    *scene.Node
	cfg     *config.TuningConfig
	bullets []*Bullet
	spent   int
	firing  bool
	aimHit  Hit
	aimOK   bool
	step    time.Duration
	pending time.Duration
}

// RoomSize is the edge length of the default walled room.
const RoomSize = 60

// KillFloor is the height below which fired bullets are removed from the
// world.
const KillFloor = -float64(RoomSize) / 2

// NewRig builds a world with four boundary walls around the origin.
func NewRig(g *scene.Graph, clock timeutil.Clock, texture image.Image, cfg *config.TuningConfig) *Rig {
	root := g.NewNode("Interaction", nil)
	w := NewWorld()

	walls := make([]*scene.Node, 0, 4)
	half := float64(RoomSize) / 2
	for _, wall := range []struct {
		name   string
		pos    r3.Vec
		extent r3.Vec
	}{
		{"WallNorth", r3.Vec{Z: half}, r3.Vec{X: half, Y: half, Z: 0.5}},
		{"WallSouth", r3.Vec{Z: -half}, r3.Vec{X: half, Y: half, Z: 0.5}},
		{"WallEast", r3.Vec{X: half}, r3.Vec{X: 0.5, Y: half, Z: half}},
		{"WallWest", r3.Vec{X: -half}, r3.Vec{X: 0.5, Y: half, Z: half}},
	} {
		n := g.NewNode(wall.name, root)
		n.LocalPosition = wall.pos
		w.Add(n, wall.extent, LayerWall)
		walls = append(walls, n)
	}

	return &Rig{
		World:   w,
		Aim:     NewAim(w, g, root, cfg),
		Builder: NewBuilder(w, g, root, clock, texture, cfg),
		Walls:   NewWallFader(w, walls, cfg),
		graph:   g,
		root:    root,
		cfg:     cfg,
		step:    cfg.GetPhysicsStep(),
	}
}

// Bullets returns the fired bullets still above KillFloor.
func (r *Rig) Bullets() []*Bullet {
	out := make([]*Bullet, len(r.bullets))
	copy(out, r.bullets)
	return out
}

// Fire launches a bullet along ray.
func (r *Rig) Fire(ray scene.Ray) *Bullet {
	b := NewBullet(r.World, r.graph, r.root, r.cfg.GetBulletForce(), r.cfg.GetBulletMass())
	b.Launch(ray)
	r.bullets = append(r.bullets, b)
	return b
}

// Update runs one frame of interaction for the active avatar, which may be
// nil. Physics advances in fixed steps.
func (r *Rig) Update(av *avatar.Avatar, devices []Controller, dt time.Duration) {
	if av != nil {
		ray := av.RightHandRay()
		r.aimHit, r.aimOK = r.Aim.Update(ray.Origin, ray.Direction)

		fire := false
		for _, d := range devices {
			fire = fire || d.Fire
		}
		if fire && !r.firing {
			r.Fire(ray)
		}
		r.firing = fire
	}

	r.Builder.Update(av, devices)
	r.Walls.Update(av, dt)

	r.pending += dt
	for r.step > 0 && r.pending >= r.step {
		r.World.Step(r.step)
		r.pending -= r.step
	}
	r.cullBullets()
}

// cullBullets drops bullets that fell out of the room, keeping their
// knockback count.
func (r *Rig) cullBullets() {
	kept := r.bullets[:0]
	for _, b := range r.bullets {
		if b.Body.Node.WorldPosition().Y >= KillFloor {
			kept = append(kept, b)
			continue
		}
		r.spent += b.Hits()
		r.World.Remove(b.Body)
		_ = b.Body.Node.Release()
	}
	clear(r.bullets[len(kept):])
	r.bullets = kept
}

// Stats returns a summary of the interaction state.
func (r *Rig) Stats() RigStats {
	s := RigStats{
		Bodies:     r.World.Len(),
		Placed:     len(r.Builder.placed),
		Bullets:    len(r.bullets),
		Knockbacks: r.spent,
		WallAlpha:  r.Walls.Alpha(),
		AimHit:     r.aimOK,
	}
	if r.aimOK {
		s.AimRange = r.aimHit.Distance
	}
	for _, b := range r.bullets {
		s.Knockbacks += b.Hits()
	}
	return s
}

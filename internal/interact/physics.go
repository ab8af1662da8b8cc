// Package interact holds the mechanics that consume the active avatar's hand
// rays and head position: a small axis-aligned physics world, the aim
// reticle, bullets, the two-handed builder with its colour wheels, the wall
// fader and pop-in animations.
package interact

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/avatar.track/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// Layer is a collision layer bit. Raycasts take a mask of layers.
type Layer uint32

const (
	LayerDefault Layer = 1 << iota
	LayerBuilt
	LayerWall
	LayerBullet

	LayerAll Layer = math.MaxUint32
)

// DefaultGravity matches the usual engine default.
var DefaultGravity = r3.Vec{Y: -9.81}

// RigidBody makes a Body dynamic.
type RigidBody struct {
	Mass       float64
	Velocity   r3.Vec
	UseGravity bool

	force r3.Vec
}

// AddForce accumulates a force applied over the next Step.
func (r *RigidBody) AddForce(f r3.Vec) {
	r.force = r3.Add(r.force, f)
}

// Collision describes a contact from one body's point of view.
type Collision struct {
	Self  *Body
	Other *Body
	// RelativeVelocity is Other's velocity minus Self's.
	RelativeVelocity r3.Vec
}

// Body is an axis-aligned box centred on its node's world position.
type Body struct {
	Node        *scene.Node
	HalfExtents r3.Vec
	Layer       Layer
	Rigid       *RigidBody

	// OnCollisionEnter runs after the Step in which contact began.
	OnCollisionEnter func(Collision)

	id      int
	removed bool
}

// Velocity returns the body's velocity; static bodies are at rest.
func (b *Body) Velocity() r3.Vec {
	if b.Rigid == nil {
		return r3.Vec{}
	}
	return b.Rigid.Velocity
}

func (b *Body) bounds() (lo, hi r3.Vec) {
	c := b.Node.WorldPosition()
	return r3.Sub(c, b.HalfExtents), r3.Add(c, b.HalfExtents)
}

// Hit is one raycast intersection.
type Hit struct {
	Body     *Body
	Point    r3.Vec
	Distance float64
	Normal   r3.Vec
	// UV is the texture coordinate on the face that was hit, each in [0, 1].
	UV [2]float64
}

type pairKey struct{ a, b int }

// World owns the physics bodies. It is not safe for concurrent use.
type World struct {
	Gravity r3.Vec

	bodies   []*Body
	nextID   int
	contacts map[pairKey]bool
}

// NewWorld returns an empty world with DefaultGravity.
func NewWorld() *World {
	return &World{Gravity: DefaultGravity, contacts: make(map[pairKey]bool)}
}

// Add registers a box for node.
func (w *World) Add(node *scene.Node, halfExtents r3.Vec, layer Layer) *Body {
	w.nextID++
	b := &Body{Node: node, HalfExtents: halfExtents, Layer: layer, id: w.nextID}
	w.bodies = append(w.bodies, b)
	return b
}

// Remove unregisters b. Removing twice is a no-op.
func (w *World) Remove(b *Body) {
	if b == nil || b.removed {
		return
	}
	b.removed = true
	for i, o := range w.bodies {
		if o == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
	for k := range w.contacts {
		if k.a == b.id || k.b == b.id {
			delete(w.contacts, k)
		}
	}
}

// Bodies returns the registered bodies in insertion order.
func (w *World) Bodies() []*Body {
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// Len returns the number of registered bodies.
func (w *World) Len() int { return len(w.bodies) }

// RaycastAll returns every body on a layer in mask that the ray enters within
// maxDist, nearest first. Boxes containing the origin are not reported.
func (w *World) RaycastAll(ray scene.Ray, maxDist float64, mask Layer) []Hit {
	if r3.Norm(ray.Direction) == 0 {
		return nil
	}
	ray.Direction = r3.Unit(ray.Direction)

	var hits []Hit
	for _, b := range w.bodies {
		if b.Layer&mask == 0 {
			continue
		}
		lo, hi := b.bounds()
		h, ok := intersectBox(ray, lo, hi)
		if !ok || h.Distance > maxDist {
			continue
		}
		h.Body = b
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits
}

// Raycast returns the nearest hit.
func (w *World) Raycast(ray scene.Ray, maxDist float64, mask Layer) (Hit, bool) {
	hits := w.RaycastAll(ray, maxDist, mask)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

func axis(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

func unitAxis(i int, sign float64) r3.Vec {
	switch i {
	case 0:
		return r3.Vec{X: sign}
	case 1:
		return r3.Vec{Y: sign}
	}
	return r3.Vec{Z: sign}
}

// intersectBox is the slab test. It fails when the origin is inside the box
// or the box is behind the ray.
func intersectBox(ray scene.Ray, lo, hi r3.Vec) (Hit, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	enterAxis := -1
	enterSign := 0.0
	for i := 0; i < 3; i++ {
		o, d := axis(ray.Origin, i), axis(ray.Direction, i)
		l, h := axis(lo, i), axis(hi, i)
		if d == 0 {
			if o < l || o > h {
				return Hit{}, false
			}
			continue
		}
		t1, t2 := (l-o)/d, (h-o)/d
		sign := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1
		}
		if t1 > tmin {
			tmin = t1
			enterAxis = i
			enterSign = sign
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return Hit{}, false
		}
	}
	if enterAxis < 0 || tmin < 0 {
		return Hit{}, false
	}

	p := ray.At(tmin)
	u, v := faceAxes(enterAxis)
	return Hit{
		Point:    p,
		Distance: tmin,
		Normal:   unitAxis(enterAxis, enterSign),
		UV: [2]float64{
			scene.InverseLerp(axis(lo, u), axis(hi, u), axis(p, u)),
			scene.InverseLerp(axis(lo, v), axis(hi, v), axis(p, v)),
		},
	}, true
}

// faceAxes returns the axes spanning the face perpendicular to a.
func faceAxes(a int) (u, v int) {
	switch a {
	case 0:
		return 2, 1
	case 1:
		return 0, 2
	}
	return 0, 1
}

func overlaps(a, b *Body) bool {
	alo, ahi := a.bounds()
	blo, bhi := b.bounds()
	return alo.X <= bhi.X && ahi.X >= blo.X &&
		alo.Y <= bhi.Y && ahi.Y >= blo.Y &&
		alo.Z <= bhi.Z && ahi.Z >= blo.Z
}

// swept reports whether mover, travelling from prev to its current centre,
// passed through other.
func swept(mover *Body, prev r3.Vec, other *Body) bool {
	disp := r3.Sub(mover.Node.WorldPosition(), prev)
	dist := r3.Norm(disp)
	if dist == 0 {
		return false
	}
	lo, hi := other.bounds()
	lo = r3.Sub(lo, mover.HalfExtents)
	hi = r3.Add(hi, mover.HalfExtents)
	h, ok := intersectBox(scene.Ray{Origin: prev, Direction: r3.Scale(1/dist, disp)}, lo, hi)
	return ok && h.Distance <= dist
}

// Step integrates rigid bodies over dt, then reports new contacts. Contacts
// are detected by overlap or by a body's path crossing another box during
// the step. Callbacks run after integration so they may add or change
// bodies.
func (w *World) Step(dt time.Duration) {
	secs := dt.Seconds()
	prev := make(map[int]r3.Vec, len(w.bodies))
	for _, b := range w.bodies {
		if b.Rigid == nil {
			continue
		}
		prev[b.id] = b.Node.WorldPosition()
		r := b.Rigid
		mass := r.Mass
		if mass <= 0 {
			mass = 1
		}
		accel := r3.Scale(1/mass, r.force)
		if r.UseGravity {
			accel = r3.Add(accel, w.Gravity)
		}
		r.Velocity = r3.Add(r.Velocity, r3.Scale(secs, accel))
		r.force = r3.Vec{}
		b.Node.SetWorldPosition(r3.Add(prev[b.id], r3.Scale(secs, r.Velocity)))
	}

	type event struct {
		body *Body
		col  Collision
	}
	var events []event
	seen := make(map[pairKey]bool)
	for i, a := range w.bodies {
		for _, b := range w.bodies[i+1:] {
			if a.Rigid == nil && b.Rigid == nil {
				continue
			}
			touching := overlaps(a, b)
			if !touching {
				if p, ok := prev[a.id]; ok && swept(a, p, b) {
					touching = true
				} else if p, ok := prev[b.id]; ok && swept(b, p, a) {
					touching = true
				}
			}
			if !touching {
				continue
			}
			key := pairKey{a.id, b.id}
			seen[key] = true
			if w.contacts[key] {
				continue
			}
			va, vb := a.Velocity(), b.Velocity()
			events = append(events,
				event{a, Collision{Self: a, Other: b, RelativeVelocity: r3.Sub(vb, va)}},
				event{b, Collision{Self: b, Other: a, RelativeVelocity: r3.Sub(va, vb)}},
			)
		}
	}
	w.contacts = seen

	for _, e := range events {
		if e.body.OnCollisionEnter != nil && !e.body.removed {
			e.body.OnCollisionEnter(e.col)
		}
	}
}

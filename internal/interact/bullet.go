package interact

import (
	"github.com/banshee-data/avatar.track/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

// bulletHalfExtent is half the edge of a bullet's box.
const bulletHalfExtent = 0.05

// Bullet is a dynamic body that knocks static built objects loose. A
// knocked-loose object becomes a bullet itself, so hits can chain.
type Bullet struct {
	Body  *Body
	Force float64
	Mass  float64

	world *World
	hits  int
}

// NewBullet creates a bullet node and body under parent, not yet launched.
func NewBullet(w *World, g *scene.Graph, parent *scene.Node, force, mass float64) *Bullet {
	node := g.NewNode("Bullet", parent)
	body := w.Add(node, r3.Vec{X: bulletHalfExtent, Y: bulletHalfExtent, Z: bulletHalfExtent}, LayerBullet)
	body.Rigid = &RigidBody{Mass: mass, UseGravity: true}
	return adoptBullet(w, body, force, mass)
}

func adoptBullet(w *World, body *Body, force, mass float64) *Bullet {
	b := &Bullet{Body: body, Force: force, Mass: mass, world: w}
	body.OnCollisionEnter = b.onCollisionEnter
	return b
}

// Launch places the bullet at the ray origin facing along it and pushes it
// with Force.
func (b *Bullet) Launch(ray scene.Ray) {
	dir := safeUnit(ray.Direction)
	b.Body.Node.SetWorldPosition(ray.Origin)
	b.Body.Node.LocalRotation = scene.LookRotation(dir)
	b.Body.Rigid.AddForce(r3.Scale(b.Force, dir))
}

// Hits returns how many built objects this bullet has knocked loose.
func (b *Bullet) Hits() int { return b.hits }

func (b *Bullet) onCollisionEnter(c Collision) {
	other := c.Other
	if other.Layer&LayerBuilt == 0 || other.Rigid != nil {
		return
	}
	other.Rigid = &RigidBody{Mass: b.Mass, Velocity: r3.Scale(-1, c.RelativeVelocity), UseGravity: true}
	adoptBullet(b.world, other, b.Force, b.Mass)
	b.hits++
}

package interact

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/banshee-data/avatar.track/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const step = 20 * time.Millisecond

func assertVecNear(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6, "X")
	assert.InDelta(t, want.Y, got.Y, 1e-6, "Y")
	assert.InDelta(t, want.Z, got.Z, 1e-6, "Z")
}

func box(w *World, g *scene.Graph, name string, pos r3.Vec, half float64, layer Layer) *Body {
	n := g.NewNode(name, nil)
	n.LocalPosition = pos
	return w.Add(n, r3.Vec{X: half, Y: half, Z: half}, layer)
}

// posedAvatar returns an initialised avatar. Positions are world space after
// the avatar's scale and depth flip, so callers pass sensor-space metres.
func posedAvatar(t *testing.T, g *scene.Graph, joints map[skeleton.JointType]r3.Vec) *avatar.Avatar {
	t.Helper()
	a := avatar.New(1, g, nil, avatar.Config{BodyScale: 1, PositionSmoothing: 10, RotationSmoothing: 10})
	b := skeleton.NewBody(1, true)
	for j, p := range joints {
		b.SetJoint(j, p, skeleton.Identity, skeleton.Tracked)
	}
	a.Update(b, 0)
	require.True(t, a.Initialized())
	return a
}

func TestRaycast(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	near := box(w, g, "near", r3.Vec{Z: 10}, 1, LayerBuilt)
	far := box(w, g, "far", r3.Vec{Z: 20}, 1, LayerBuilt)
	box(w, g, "wall", r3.Vec{Z: 15}, 1, LayerWall)

	ray := scene.Ray{Direction: r3.Vec{Z: 2}}
	hit, ok := w.Raycast(ray, 100, LayerBuilt)
	require.True(t, ok)
	assert.Same(t, near, hit.Body)
	assert.InDelta(t, 9, hit.Distance, 1e-9)
	assertVecNear(t, r3.Vec{Z: 9}, hit.Point)
	assertVecNear(t, r3.Vec{Z: -1}, hit.Normal)
	assert.InDelta(t, 0.5, hit.UV[0], 1e-9)
	assert.InDelta(t, 0.5, hit.UV[1], 1e-9)

	all := w.RaycastAll(ray, 100, LayerBuilt)
	require.Len(t, all, 2)
	assert.Same(t, far, all[1].Body)

	all = w.RaycastAll(ray, 100, LayerAll)
	require.Len(t, all, 3)
	assert.Equal(t, "wall", all[1].Body.Node.Name)

	_, ok = w.Raycast(ray, 5, LayerBuilt)
	assert.False(t, ok, "beyond max distance")

	_, ok = w.Raycast(scene.Ray{Direction: r3.Vec{Z: -1}}, 100, LayerAll)
	assert.False(t, ok, "behind the ray")

	_, ok = w.Raycast(scene.Ray{Origin: r3.Vec{Z: 10}, Direction: r3.Vec{X: 1}}, 100, LayerBuilt)
	assert.False(t, ok, "origin inside the box")

	_, ok = w.Raycast(scene.Ray{}, 100, LayerAll)
	assert.False(t, ok, "zero direction")

	// off-centre hit from the side
	hit, ok = w.Raycast(scene.Ray{Origin: r3.Vec{X: -5, Y: 0.5, Z: 10.5}, Direction: r3.Vec{X: 1}}, 100, LayerBuilt)
	require.True(t, ok)
	assertVecNear(t, r3.Vec{X: -1}, hit.Normal)
	assert.InDelta(t, 0.75, hit.UV[0], 1e-9)
	assert.InDelta(t, 0.75, hit.UV[1], 1e-9)

	w.Remove(near)
	w.Remove(near)
	hit, ok = w.Raycast(ray, 100, LayerBuilt)
	require.True(t, ok)
	assert.Same(t, far, hit.Body)
	assert.Equal(t, 2, w.Len())
}

func TestStep_Integrates(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	b := box(w, g, "ball", r3.Vec{}, 0.1, LayerDefault)
	b.Rigid = &RigidBody{Mass: 1, UseGravity: true}

	w.Gravity = r3.Vec{}
	b.Rigid.AddForce(r3.Vec{Z: 2000})
	w.Step(step)
	assertVecNear(t, r3.Vec{Z: 40}, b.Rigid.Velocity)
	assertVecNear(t, r3.Vec{Z: 0.8}, b.Node.WorldPosition())

	// the force was consumed by the first step
	w.Step(step)
	assertVecNear(t, r3.Vec{Z: 40}, b.Rigid.Velocity)
	assertVecNear(t, r3.Vec{Z: 1.6}, b.Node.WorldPosition())

	w.Gravity = DefaultGravity
	w.Step(time.Second)
	assert.InDelta(t, -9.81, b.Rigid.Velocity.Y, 1e-9)
}

func TestStep_CollisionEnterFiresOnce(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	w.Gravity = r3.Vec{}

	target := box(w, g, "target", r3.Vec{Z: 1}, 0.5, LayerBuilt)
	mover := box(w, g, "mover", r3.Vec{}, 0.1, LayerDefault)
	mover.Rigid = &RigidBody{Mass: 1, Velocity: r3.Vec{Z: 10}}

	var selfHits, targetHits []Collision
	mover.OnCollisionEnter = func(c Collision) { selfHits = append(selfHits, c) }
	target.OnCollisionEnter = func(c Collision) { targetHits = append(targetHits, c) }

	for i := 0; i < 8; i++ {
		w.Step(step)
	}
	require.Len(t, selfHits, 1)
	require.Len(t, targetHits, 1)
	assert.Same(t, target, selfHits[0].Other)
	assertVecNear(t, r3.Vec{Z: -10}, selfHits[0].RelativeVelocity)
	assertVecNear(t, r3.Vec{Z: 10}, targetHits[0].RelativeVelocity)
}

func TestStep_SweptContact(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	w.Gravity = r3.Vec{}

	thin := box(w, g, "thin", r3.Vec{Z: 5}, 0.05, LayerBuilt)
	fast := box(w, g, "fast", r3.Vec{}, 0.05, LayerBullet)
	fast.Rigid = &RigidBody{Mass: 1, Velocity: r3.Vec{Z: 500}}

	hits := 0
	thin.OnCollisionEnter = func(Collision) { hits++ }
	w.Step(step) // travels 10 units, straight through
	assert.Equal(t, 1, hits)
}

func TestBullet_KnockbackChains(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	w.Gravity = r3.Vec{}

	first := box(w, g, "first", r3.Vec{Z: 5}, 0.5, LayerBuilt)
	second := box(w, g, "second", r3.Vec{Z: 12}, 0.5, LayerBuilt)
	wall := box(w, g, "wall", r3.Vec{Z: 30}, 0.5, LayerWall)

	bullet := NewBullet(w, g, nil, 2000, 1)
	bullet.Launch(scene.Ray{Origin: r3.Vec{}, Direction: r3.Vec{Z: 1}})
	assertVecNear(t, r3.Vec{Z: 1}, bullet.Body.Node.Forward())

	for i := 0; i < 10; i++ {
		w.Step(step)
	}
	require.NotNil(t, first.Rigid, "the bullet knocks the first cube loose")
	assert.InDelta(t, 40, first.Rigid.Velocity.Z, 1e-6)
	assert.NotNil(t, first.OnCollisionEnter, "a knocked cube becomes a bullet")
	assert.Equal(t, 1, bullet.Hits())

	for i := 0; i < 10; i++ {
		w.Step(step)
	}
	require.NotNil(t, second.Rigid, "the first cube knocks the second one loose")
	assert.InDelta(t, 40, second.Rigid.Velocity.Z, 1e-6)

	for i := 0; i < 30; i++ {
		w.Step(step)
	}
	assert.Nil(t, wall.Rigid, "only built objects are knocked loose")
}

func TestAim(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	cfg := config.DefaultTuningConfig()
	aim := NewAim(w, g, nil, cfg)

	// nothing built yet
	_, ok := aim.Update(r3.Vec{Y: 1}, r3.Vec{X: 1})
	assert.False(t, ok)
	assertVecNear(t, r3.Vec{X: 25, Y: 1}, aim.Node.WorldPosition())
	assertVecNear(t, r3.Vec{X: 0.1, Y: 0.1, Z: 50}, aim.Node.LocalScale)
	assertVecNear(t, r3.Vec{X: 1}, aim.Node.Forward())

	box(w, g, "cube", r3.Vec{X: 11, Y: 1}, 1, LayerBuilt)
	box(w, g, "wall", r3.Vec{X: 5, Y: 1}, 1, LayerWall)
	hit, ok := aim.Update(r3.Vec{Y: 1}, r3.Vec{X: 1})
	require.True(t, ok)
	assert.Equal(t, "cube", hit.Body.Node.Name, "walls are not aimable")
	assertVecNear(t, r3.Vec{X: 5, Y: 1}, aim.Node.WorldPosition())
	assertVecNear(t, r3.Vec{X: 0.1, Y: 0.1, Z: 20}, aim.Node.LocalScale)

	_, ok = aim.Update(r3.Vec{Y: 1}, r3.Vec{X: -1})
	assert.False(t, ok)
}

func TestWallFader(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	wallNode := g.NewNode("wall", nil)
	wallNode.Color = color.RGBA{R: 10, G: 20, B: 30, A: 255}
	wallNode.LocalPosition = r3.Vec{Z: 40}
	w.Add(wallNode, r3.Vec{X: 100, Y: 100, Z: 0.5}, LayerWall)

	f := NewWallFader(w, []*scene.Node{wallNode}, config.DefaultTuningConfig())
	assert.Equal(t, uint8(0), wallNode.Color.A, "walls start transparent")

	assert.Equal(t, 1.0, f.AlphaFor(10))
	assert.Equal(t, 1.0, f.AlphaFor(20))
	assert.InDelta(t, 0.5, f.AlphaFor(35), 1e-9)
	assert.Equal(t, 0.0, f.AlphaFor(50))
	assert.Equal(t, 0.0, f.AlphaFor(math.Inf(1)))

	f.Update(nil, time.Second)
	assert.Equal(t, [2]float64{}, f.TextureOffset(), "no avatar, no change")

	// avatar space flips depth, so sensor z = -5 lands at world z = 5
	av := posedAvatar(t, g, map[skeleton.JointType]r3.Vec{
		skeleton.Head:      {Z: -5},
		skeleton.HandLeft:  {Z: 5},
		skeleton.HandRight: {Z: 5},
	})
	f.Update(av, time.Second)
	// head at z=5, wall face at z=39.5
	assert.InDelta(t, 34.5, f.Nearest(), 1e-9)
	assert.InDelta(t, 1-(34.5-20)/30, f.Alpha(), 1e-9)
	assert.InDelta(t, -0.3, f.TextureOffset()[1], 1e-9)
	assert.Equal(t, uint8(math.Round(f.Alpha()*255)), wallNode.Color.A)
	assert.Equal(t, uint8(10), wallNode.Color.R)
}

func TestColorWheel(t *testing.T) {
	t.Parallel()

	// 2x2 texture; v runs bottom to top
	tex := image.NewRGBA(image.Rect(0, 0, 2, 2))
	topLeft := color.RGBA{R: 255, A: 255}
	topRight := color.RGBA{G: 128, A: 255}
	bottomLeft := color.RGBA{B: 255, A: 255}
	bottomRight := color.RGBA{R: 1, G: 2, B: 3, A: 255}
	tex.SetRGBA(0, 0, topLeft)
	tex.SetRGBA(1, 0, topRight)
	tex.SetRGBA(0, 1, bottomLeft)
	tex.SetRGBA(1, 1, bottomRight)

	g := scene.NewGraph()
	cw := NewColorWheel(g, nil, tex, 0.35)
	assert.Equal(t, DefaultColor, cw.Current())
	assert.Equal(t, DefaultColor, cw.Preview.Color)

	assert.Equal(t, bottomLeft, cw.Select([2]float64{-1, -1}))
	assertVecNear(t, r3.Vec{X: -0.35, Y: -0.35, Z: -0.035}, cw.Selector.LocalPosition)
	assert.Equal(t, topRight, cw.Select([2]float64{1, 1}))
	assert.Equal(t, topLeft, cw.Select([2]float64{-0.5, 0.5}))
	assert.Equal(t, bottomRight, cw.Select([2]float64{0.5, -0.5}))
	assert.Equal(t, bottomRight, cw.Preview.Color)

	wide := NewColorWheel(g, nil, tex, 2)
	assert.Equal(t, DefaultColor, wide.Select([2]float64{1, 0}), "off the quad keeps the previous colour")
}

func TestWheelTexture(t *testing.T) {
	t.Parallel()

	img := WheelTexture(101)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.RGBAAt(50, 50), "centre is unsaturated")
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(100, 50), "hue 0 on the right")
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).A, "outside the disc")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	loaded, err := LoadWheelTexture(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), loaded.Bounds())

	_, err = LoadWheelTexture(bytes.NewReader([]byte("nope")))
	assert.Error(t, err)
}

func TestPopIn(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	n := g.NewNode("cube", nil)
	n.LocalScale = r3.Vec{X: 2, Y: 2, Z: 2}
	start := time.Unix(100, 0)

	p := NewPopIn(n, start, time.Second)
	assert.Equal(t, r3.Vec{}, n.LocalScale)

	assert.False(t, p.Update(start.Add(500*time.Millisecond)))
	assertVecNear(t, r3.Vec{X: 1, Y: 1, Z: 1}, n.LocalScale)

	assert.True(t, p.Update(start.Add(2*time.Second)))
	assertVecNear(t, r3.Vec{X: 2, Y: 2, Z: 2}, n.LocalScale)

	assert.Equal(t, 0.0, p.Progress(start.Add(-time.Second)))
	assert.Equal(t, 1.0, (&PopIn{}).Progress(start))
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	w := NewWorld()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	b := NewBuilder(w, g, nil, clock, WheelTexture(64), config.DefaultTuningConfig())

	av := posedAvatar(t, g, map[skeleton.JointType]r3.Vec{
		skeleton.Head:      {Y: 2, Z: -1},
		skeleton.HandLeft:  {X: -1, Y: 1},
		skeleton.HandRight: {X: 1, Y: 1},
	})
	leftPos := av.LeftHand().WorldPosition()
	rightPos := av.RightHand().WorldPosition()

	b.Update(av, nil)
	assert.Empty(t, b.Placed(), "no controllers, nothing happens")
	b.Update(nil, []Controller{{LeftTrigger: true}})
	assert.Empty(t, b.Placed(), "no avatar, nothing happens")

	// a single device drives both hands
	pad := Controller{LeftTrigger: true, RightTrigger: true}
	b.Update(av, []Controller{pad})
	require.Len(t, b.Placed(), 2)
	require.NotNil(t, b.Held(leftHand))
	assertVecNear(t, leftPos, b.Held(leftHand).Node.WorldPosition())
	assertVecNear(t, rightPos, b.Held(rightHand).Node.WorldPosition())
	assert.Equal(t, LayerBuilt, b.Held(leftHand).Layer)
	assert.Equal(t, DefaultColor, b.Held(leftHand).Node.Color)
	assert.Equal(t, r3.Vec{}, b.Held(leftHand).Node.LocalScale, "cubes pop in from nothing")

	clock.Advance(time.Second)
	b.Update(av, []Controller{pad})
	assert.Len(t, b.Placed(), 2, "holding the trigger keeps the same cube")
	assertVecNear(t, r3.Vec{X: 1, Y: 1, Z: 1}, b.Held(leftHand).Node.LocalScale)

	// release the left trigger: the cube stays where it was
	pad.LeftTrigger = false
	b.Update(av, []Controller{pad})
	assert.Nil(t, b.Held(leftHand))
	assert.Len(t, b.Placed(), 2)

	// open the right wheel and paint the held cube
	pad.RightStickButton = true
	pad.RightStick = [2]float64{1, 0}
	b.Update(av, []Controller{pad})
	wheel := b.Wheel(rightHand)
	require.NotNil(t, wheel)
	assert.Nil(t, b.Wheel(leftHand))
	painted := b.Color(rightHand)
	assert.NotEqual(t, DefaultColor, painted)
	assert.Equal(t, painted, b.Held(rightHand).Node.Color)
	assertVecNear(t, rightPos, wheel.Node.WorldPosition())
	assertVecNear(t, r3.Unit(r3.Sub(av.Head().WorldPosition(), rightPos)), wheel.Node.Forward())

	// closing the wheel releases it and keeps the colour
	pad.RightStickButton = false
	b.Update(av, []Controller{pad})
	assert.Nil(t, b.Wheel(rightHand))
	assert.True(t, wheel.Node.Released())
	assert.Equal(t, painted, b.Color(rightHand))

	// new cubes use the hand's colour
	pad.RightTrigger = false
	b.Update(av, []Controller{pad})
	pad.RightTrigger = true
	b.Update(av, []Controller{pad})
	require.Len(t, b.Placed(), 3)
	assert.Equal(t, painted, b.Held(rightHand).Node.Color)
}

func TestBuilder_TwoDevices(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	b := NewBuilder(NewWorld(), g, nil, timeutil.NewMockClock(time.Unix(0, 0)), nil, config.DefaultTuningConfig())
	av := posedAvatar(t, g, map[skeleton.JointType]r3.Vec{skeleton.HandLeft: {X: -1}, skeleton.HandRight: {X: 1}})

	// the first device's right trigger and the second's left trigger are ignored
	b.Update(av, []Controller{{RightTrigger: true}, {LeftTrigger: true}})
	assert.Empty(t, b.Placed())

	b.Update(av, []Controller{{LeftTrigger: true}, {RightTrigger: true}, {LeftTrigger: true}})
	assert.Len(t, b.Placed(), 2)
}

func TestRig(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	cfg := config.DefaultTuningConfig()
	rig := NewRig(g, timeutil.NewMockClock(time.Unix(0, 0)), nil, cfg)
	assert.Equal(t, 4, rig.World.Len())

	// right forearm points along +X in world space
	av := posedAvatar(t, g, map[skeleton.JointType]r3.Vec{
		skeleton.ElbowRight: {X: 0, Y: 1},
		skeleton.HandRight:  {X: 1, Y: 1},
	})

	rig.Update(nil, nil, step)
	assert.Equal(t, RigStats{Bodies: 4}, rig.Stats())

	rig.Update(av, []Controller{{Fire: true}}, step)
	rig.Update(av, []Controller{{Fire: true}}, step)
	assert.Len(t, rig.Bullets(), 1, "fire is edge triggered")
	rig.Update(av, []Controller{{}}, step)
	rig.Update(av, []Controller{{}, {Fire: true}}, step)
	require.Len(t, rig.Bullets(), 2)

	bullet := rig.Bullets()[0].Body
	assert.Greater(t, bullet.Node.WorldPosition().X, 1.0, "bullets fly along the hand ray")

	box(rig.World, g, "target", r3.Vec{X: 10, Y: 1}, 1, LayerBuilt)
	rig.Update(av, nil, step)
	stats := rig.Stats()
	assert.True(t, stats.AimHit)
	assert.InDelta(t, 8, stats.AimRange, 1e-9)
	assert.Equal(t, 2, stats.Bullets)
	assert.Greater(t, stats.WallAlpha, 0.0, "hands are within fade range of the east wall")
}

func TestRig_CullsFallenBullets(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	rig := NewRig(g, timeutil.NewMockClock(time.Unix(0, 0)), nil, config.DefaultTuningConfig())
	av := posedAvatar(t, g, map[skeleton.JointType]r3.Vec{
		skeleton.ElbowRight: {X: 0, Y: 1},
		skeleton.HandRight:  {X: 1, Y: 1},
	})

	rig.Update(av, []Controller{{Fire: true}}, step)
	require.Len(t, rig.Bullets(), 1)
	node := rig.Bullets()[0].Body.Node
	assert.Equal(t, 5, rig.World.Len())

	// 4s of free fall drops a bullet fired at 1m well below the floor
	for i := 0; i < 40; i++ {
		rig.Update(nil, nil, 100*time.Millisecond)
	}

	assert.Empty(t, rig.Bullets())
	assert.Equal(t, 4, rig.World.Len(), "only the walls remain")
	assert.True(t, node.Released())
	assert.Equal(t, 0, rig.Stats().Bullets)
}

package avatar

import (
	"bytes"
	"testing"
	"time"

	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func assertVecNear(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6, "X")
	assert.InDelta(t, want.Y, got.Y, 1e-6, "Y")
	assert.InDelta(t, want.Z, got.Z, 1e-6, "Z")
}

func testConfig() Config {
	return Config{
		BodyScale:            6,
		PositionSmoothing:    10,
		RotationSmoothing:    10,
		ShowJoints:           true,
		ShowJointConnections: true,
	}
}

// trackedBody returns a body with every joint tracked at offset+index on X.
func trackedBody(id uint64, offset float64) *skeleton.Body {
	b := skeleton.NewBody(id, true)
	for _, j := range skeleton.AllJoints() {
		b.SetJoint(j, r3.Vec{X: offset + float64(j), Y: 1, Z: 2}, skeleton.Identity, skeleton.Tracked)
	}
	return b
}

type recordingViewpoint struct {
	moves     []r3.Vec
	recenters int
}

func (v *recordingViewpoint) MoveTo(p r3.Vec) { v.moves = append(v.moves, p) }
func (v *recordingViewpoint) Recenter()       { v.recenters++ }

func TestNew_CreatesOneNodePerJoint(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	a := New(7, g, nil, testConfig())

	assert.Equal(t, skeleton.JointCount+1, g.Live())
	assert.Equal(t, uint64(7), a.ID)
	assert.NotEmpty(t, a.InstanceID)
	for _, j := range skeleton.AllJoints() {
		n := a.Joint(j)
		require.NotNil(t, n, j.String())
		assert.Equal(t, j.String(), n.Name)
		assert.Same(t, a.Root(), n.Parent())
		require.NotNil(t, n.Line)
	}
	assert.Nil(t, a.Joint(skeleton.NoJoint))

	b := New(7, g, nil, testConfig())
	assert.NotEqual(t, a.InstanceID, b.InstanceID)
}

func TestUpdate_SnapsThenSmooths(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	a := New(1, g, nil, testConfig())

	inits := 0
	a.OnInitialize = func(got *Avatar) {
		assert.Same(t, a, got)
		assert.True(t, got.Initialized())
		inits++
	}

	body := skeleton.NewBody(1, true)
	body.SetJoint(skeleton.SpineBase, r3.Vec{X: 1, Y: 2, Z: 3}, skeleton.Identity, skeleton.Tracked)

	// a long first frame still snaps
	a.Update(body, 10*time.Second)
	assertVecNear(t, r3.Vec{X: 6, Y: 12, Z: -18}, a.Joint(skeleton.SpineBase).LocalPosition)
	assert.Equal(t, 1, inits)

	next := skeleton.NewBody(1, true)
	next.SetJoint(skeleton.SpineBase, r3.Vec{X: 2, Y: 2, Z: 3}, skeleton.Identity, skeleton.Tracked)

	// 50ms * 10 = halfway
	a.Update(next, 50*time.Millisecond)
	assertVecNear(t, r3.Vec{X: 9, Y: 12, Z: -18}, a.Joint(skeleton.SpineBase).LocalPosition)

	// a zero step does not move anything
	a.Update(next, 0)
	assertVecNear(t, r3.Vec{X: 9, Y: 12, Z: -18}, a.Joint(skeleton.SpineBase).LocalPosition)

	// a large step clamps to the target
	a.Update(next, time.Second)
	assertVecNear(t, r3.Vec{X: 12, Y: 12, Z: -18}, a.Joint(skeleton.SpineBase).LocalPosition)

	assert.Equal(t, 1, inits, "OnInitialize runs once")
	assert.Equal(t, 4, a.Updates())
	assert.Same(t, next, a.LastBody())
}

func TestUpdate_RotationSmoothing(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	a := New(1, g, nil, testConfig())

	body := skeleton.NewBody(1, true)
	// a zero quaternion from the sensor is treated as identity
	body.SetJoint(skeleton.Head, r3.Vec{}, quat.Number{}, skeleton.Tracked)
	a.Update(body, 0)
	assert.Equal(t, scene.Identity, a.Head().LocalRotation)

	quarter := scene.LookRotation(r3.Vec{X: 1})
	turned := skeleton.NewBody(1, true)
	turned.SetJoint(skeleton.Head, r3.Vec{}, quarter, skeleton.Tracked)
	a.Update(turned, 50*time.Millisecond)
	assert.InDelta(t, scene.Angle(scene.Identity, quarter)/2, scene.Angle(scene.Identity, a.Head().LocalRotation), 1e-6)
}

func TestUpdate_NilAndKilled(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	a := New(1, g, nil, testConfig())
	a.Update(nil, time.Second)
	assert.False(t, a.Initialized())

	a.Kill()
	a.Update(trackedBody(1, 0), time.Second)
	assert.False(t, a.Initialized())
	assert.Equal(t, 0, a.Updates())
}

func TestUpdate_BoneColours(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	a := New(1, g, nil, testConfig())

	body := trackedBody(1, 0)
	body.Joints[skeleton.ElbowLeft].State = skeleton.Inferred
	body.Joints[skeleton.WristLeft].State = skeleton.NotTracked
	a.Update(body, 0)

	head := a.Head().Line
	assert.False(t, head.Enabled, "the head has no parent to connect to")

	wrist := a.Joint(skeleton.WristLeft).Line
	require.True(t, wrist.Enabled)
	assert.Equal(t, skeleton.ColorNotTracked, wrist.StartColor)
	assert.Equal(t, skeleton.ColorInferred, wrist.EndColor)
	assertVecNear(t, a.Joint(skeleton.WristLeft).WorldPosition(), wrist.Start)
	assertVecNear(t, a.Joint(skeleton.ElbowLeft).WorldPosition(), wrist.End)

	spine := a.Joint(skeleton.SpineBase).Line
	assert.Equal(t, skeleton.ColorTracked, spine.StartColor)
	assert.Equal(t, skeleton.ColorTracked, spine.EndColor)
}

func TestHiddenJointsAndConnections(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ShowJoints = false
	cfg.ShowJointConnections = false

	a := New(1, scene.NewGraph(), nil, cfg)
	a.Update(trackedBody(1, 0), 0)
	for _, j := range skeleton.AllJoints() {
		assert.False(t, a.Joint(j).Visible)
		assert.False(t, a.Joint(j).Line.Enabled)
	}
}

func TestKill_ReleasesEveryNodeOnce(t *testing.T) {
	t.Parallel()

	g := scene.NewGraph()
	counts := map[scene.NodeID]int{}
	g.OnRelease = func(n *scene.Node) { counts[n.ID()]++ }

	keep := New(2, g, nil, testConfig())
	a := New(1, g, nil, testConfig())
	a.Update(trackedBody(1, 0), 0)
	vp := &recordingViewpoint{}
	a.SetActive(vp)

	a.Kill()
	a.Kill()

	assert.True(t, a.Killed())
	assert.False(t, a.Active())
	assert.Len(t, counts, skeleton.JointCount+1)
	for id, c := range counts {
		assert.Equal(t, 1, c, "node %d", id)
	}
	assert.Equal(t, skeleton.JointCount+1, g.Live(), "the other avatar is untouched")
	assert.False(t, keep.Root().Released())
}

func TestActiveAvatarMovesViewpoint(t *testing.T) {
	t.Parallel()

	a := New(1, scene.NewGraph(), nil, testConfig())
	vp := &recordingViewpoint{}

	a.Update(trackedBody(1, 0), 0)
	assert.Empty(t, vp.moves)

	a.SetActive(vp)
	a.Update(trackedBody(1, 0), 0)
	require.Len(t, vp.moves, 1)
	assertVecNear(t, a.Head().WorldPosition(), vp.moves[0])

	a.RequestRecenter()
	assert.Equal(t, 1, vp.recenters)

	a.SetInactive()
	a.Update(trackedBody(1, 0), 0)
	a.RequestRecenter()
	assert.Len(t, vp.moves, 1)
	assert.Equal(t, 1, vp.recenters)
}

func TestDistanceToSensor(t *testing.T) {
	t.Parallel()

	a := New(1, scene.NewGraph(), nil, testConfig())
	body := skeleton.NewBody(1, true)
	body.SetJoint(skeleton.Head, r3.Vec{Y: 0.5, Z: 2}, skeleton.Identity, skeleton.Tracked)
	a.Update(body, 0)

	// (0, 3, -12) after scale and unmirror
	assert.InDelta(t, r3.Norm(r3.Vec{Y: 3, Z: 12}), a.DistanceToSensor(), 1e-9)
}

func TestHandRays(t *testing.T) {
	a := New(1, scene.NewGraph(), nil, testConfig())
	body := skeleton.NewBody(1, true)
	body.SetJoint(skeleton.ElbowRight, r3.Vec{Z: 1}, skeleton.Identity, skeleton.Tracked)
	body.SetJoint(skeleton.HandRight, r3.Vec{Z: 2}, skeleton.Identity, skeleton.Tracked)
	body.SetJoint(skeleton.ElbowLeft, r3.Vec{Y: 1}, skeleton.Identity, skeleton.Tracked)
	body.SetJoint(skeleton.HandLeft, r3.Vec{X: 1, Y: 1}, skeleton.Identity, skeleton.Tracked)
	a.Update(body, 0)

	right := a.RightHandRay()
	assertVecNear(t, r3.Vec{Z: -12}, right.Origin)
	assertVecNear(t, r3.Vec{Z: -1}, right.Direction)

	left := a.HandRay(skeleton.HandLeft)
	assertVecNear(t, r3.Vec{X: 6, Y: 6}, left.Origin)
	assertVecNear(t, r3.Vec{X: 1}, left.Direction)

	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)
	fallback := a.HandRay(skeleton.Head)
	assert.Equal(t, right, fallback)
	assert.Contains(t, ops.String(), "HandRay only takes")
}

func TestHandRay_CoincidentJointsUseForward(t *testing.T) {
	t.Parallel()

	a := New(1, scene.NewGraph(), nil, testConfig())
	body := skeleton.NewBody(1, true)
	body.SetJoint(skeleton.ElbowRight, r3.Vec{X: 1}, skeleton.Identity, skeleton.Tracked)
	body.SetJoint(skeleton.HandRight, r3.Vec{X: 1}, scene.LookRotation(r3.Vec{Y: 1}), skeleton.Tracked)
	a.Update(body, 0)

	ray := a.RightHandRay()
	assertVecNear(t, r3.Vec{Y: 1}, ray.Direction)
}

func TestBasePosition_FallsBackToTrackedAncestors(t *testing.T) {
	t.Parallel()

	a := New(1, scene.NewGraph(), nil, testConfig())
	body := skeleton.NewBody(1, true)
	body.SetJoint(skeleton.FootLeft, r3.Vec{X: -5}, skeleton.Identity, skeleton.NotTracked)
	body.SetJoint(skeleton.AnkleLeft, r3.Vec{X: -1}, skeleton.Identity, skeleton.Tracked)
	body.SetJoint(skeleton.FootRight, r3.Vec{X: 1}, skeleton.Identity, skeleton.Tracked)
	a.Update(body, 0)

	// (-6 + 6) / 2 on X after scaling
	assertVecNear(t, r3.Vec{}, a.BasePosition())

	body.Joints[skeleton.FootLeft].State = skeleton.Tracked
	a.Update(body, time.Second)
	// (-30 + 6) / 2
	assertVecNear(t, r3.Vec{X: -12}, a.BasePosition())
}

func TestBind_MapsChildrenByName(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	g := scene.NewGraph()
	root := g.NewNode("rig", nil)
	head := g.NewNode("head", root)
	hand := g.NewNode("HandRight", root)
	g.NewNode("Hat", root)

	a := Bind(3, g, root, testConfig())

	assert.Same(t, head, a.Head())
	assert.Same(t, hand, a.RightHand())
	assert.Same(t, root, a.Root())
	require.NotNil(t, a.LeftHand())
	assert.Equal(t, "HandLeft", a.LeftHand().Name)
	assert.Contains(t, ops.String(), `cannot map child node "Hat"`)
	assert.Contains(t, ops.String(), "missing child node for joint SpineBase")
	// rig + 3 existing + 23 created
	assert.Equal(t, 1+3+skeleton.JointCount-2, g.Live())
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	a := New(4, scene.NewGraph(), nil, testConfig())
	s := a.Snapshot()
	require.Len(t, s.Joints, skeleton.JointCount)
	assert.Equal(t, "NotTracked", s.Joints[0].State)

	a.Update(trackedBody(4, 0), 0)
	a.SetActive(nil)
	s = a.Snapshot()
	assert.Equal(t, uint64(4), s.ID)
	assert.True(t, s.Active)
	assert.Equal(t, "SpineBase", s.Joints[0].Name)
	assert.Equal(t, "Tracked", s.Joints[0].State)
	assert.Equal(t, [3]float64{0, 6, -12}, s.Joints[0].Position)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, s.Joints[0].Rotation)
}

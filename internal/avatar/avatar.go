// Package avatar maps one tracked body onto an owned set of scene nodes: one
// node per joint, a line segment per bone, smoothing between frames and the
// hand-ray / head / base-position queries the interaction layer consumes.
package avatar

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/avatar.track/internal/config"
	"github.com/banshee-data/avatar.track/internal/scene"
	"github.com/banshee-data/avatar.track/internal/skeleton"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the per-avatar mapping parameters.
type Config struct {
	BodyScale            float64 // multiplier applied to sensor metres
	PositionSmoothing    float64 // larger converges faster
	RotationSmoothing    float64 // larger converges faster
	ShowJoints           bool
	ShowJointConnections bool
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		BodyScale:            cfg.GetBodyScale(),
		PositionSmoothing:    cfg.GetPositionSmoothing(),
		RotationSmoothing:    cfg.GetRotationSmoothing(),
		ShowJoints:           cfg.GetShowJoints(),
		ShowJointConnections: cfg.GetShowJointConnections(),
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// Viewpoint is the host camera rig that follows the active avatar's head.
type Viewpoint interface {
	MoveTo(p r3.Vec)
	Recenter()
}

// Avatar is the scene representation of one tracked body.
type Avatar struct {
	// ID is the sensor tracking ID this avatar is bound to.
	ID uint64
	// InstanceID distinguishes avatars when the sensor reuses a tracking ID.
	InstanceID string

	// OnInitialize runs once, after the first body data set is applied.
	OnInitialize func(*Avatar)

	cfg       Config
	root      *scene.Node
	joints    [skeleton.JointCount]*scene.Node
	last      *skeleton.Body
	viewpoint Viewpoint

	initialized bool
	active      bool
	killed      bool
	updates     int
	createdAt   time.Time
}

// New creates an avatar with a fresh node per joint under parent.
func New(id uint64, g *scene.Graph, parent *scene.Node, cfg Config) *Avatar {
	root := g.NewNode(fmt.Sprintf("avatar-%d", id), parent)
	a := newAvatar(id, root, cfg)
	for _, j := range skeleton.AllJoints() {
		a.joints[j] = g.NewNode(j.String(), root)
	}
	a.applyVisibility()
	return a
}

// Bind creates an avatar over an existing hierarchy whose direct children are
// named after joints. Children with other names are logged and left alone;
// joints with no matching child get a new node.
func Bind(id uint64, g *scene.Graph, root *scene.Node, cfg Config) *Avatar {
	a := newAvatar(id, root, cfg)
	for _, child := range root.Children() {
		j, err := skeleton.ParseJointType(child.Name)
		if err != nil {
			opsf("avatar %d: cannot map child node %q: %v", id, child.Name, err)
			continue
		}
		if a.joints[j] != nil {
			opsf("avatar %d: duplicate node for joint %s; keeping the first", id, j)
			continue
		}
		a.joints[j] = child
	}
	for _, j := range skeleton.AllJoints() {
		if a.joints[j] == nil {
			opsf("avatar %d: missing child node for joint %s; creating one", id, j)
			a.joints[j] = g.NewNode(j.String(), root)
		}
	}
	a.applyVisibility()
	return a
}

func newAvatar(id uint64, root *scene.Node, cfg Config) *Avatar {
	root.LocalPosition = r3.Vec{}
	root.LocalRotation = scene.Identity
	return &Avatar{
		ID:         id,
		InstanceID: uuid.NewString(),
		cfg:        cfg,
		root:       root,
		createdAt:  time.Now(),
	}
}

func (a *Avatar) applyVisibility() {
	for _, n := range a.joints {
		n.Visible = a.cfg.ShowJoints
		line := n.AttachLine()
		line.Enabled = a.cfg.ShowJointConnections
	}
}

// Root returns the node every joint hangs under.
func (a *Avatar) Root() *scene.Node { return a.root }

// Joint returns the node mapped to j, or nil for an invalid joint.
func (a *Avatar) Joint(j skeleton.JointType) *scene.Node {
	if !j.Valid() {
		return nil
	}
	return a.joints[j]
}

// Head returns the head node.
func (a *Avatar) Head() *scene.Node { return a.joints[skeleton.Head] }

// LeftHand returns the left hand node.
func (a *Avatar) LeftHand() *scene.Node { return a.joints[skeleton.HandLeft] }

// RightHand returns the right hand node.
func (a *Avatar) RightHand() *scene.Node { return a.joints[skeleton.HandRight] }

// LastBody returns the most recent body data applied, or nil before the first.
func (a *Avatar) LastBody() *skeleton.Body { return a.last }

// Initialized reports whether the first data set has been applied.
func (a *Avatar) Initialized() bool { return a.initialized }

// Updates returns how many data sets have been applied.
func (a *Avatar) Updates() int { return a.updates }

// Killed reports whether Kill has run.
func (a *Avatar) Killed() bool { return a.killed }

// Active reports whether this avatar drives the viewpoint.
func (a *Avatar) Active() bool { return a.active }

// SetActive marks the avatar as the one the viewpoint follows. vp may be nil.
func (a *Avatar) SetActive(vp Viewpoint) {
	a.active = true
	a.viewpoint = vp
}

// SetInactive clears the active flag.
func (a *Avatar) SetInactive() {
	a.active = false
	a.viewpoint = nil
}

// RequestRecenter asks the viewpoint to recenter if this avatar is active.
func (a *Avatar) RequestRecenter() {
	if a.active && a.viewpoint != nil {
		a.viewpoint.Recenter()
	}
}

// Update applies one body snapshot. The first call snaps every joint to its
// target; later calls blend toward it by dt scaled by the smoothing factors.
func (a *Avatar) Update(body *skeleton.Body, dt time.Duration) {
	if a.killed || body == nil {
		return
	}
	a.last = body
	first := !a.initialized
	secs := dt.Seconds()

	for j := 0; j < skeleton.JointCount; j++ {
		src := body.Joints[j]
		node := a.joints[j]
		target := r3.Scale(a.cfg.BodyScale, skeleton.Unmirror(src.Position))
		rot := scene.Normalize(src.Orientation)

		if first {
			node.LocalPosition = target
			node.LocalRotation = rot
			continue
		}
		node.LocalPosition = scene.LerpVec(node.LocalPosition, target, secs*a.cfg.PositionSmoothing)
		node.LocalRotation = scene.Nlerp(node.LocalRotation, rot, secs*a.cfg.RotationSmoothing)
	}

	if a.cfg.ShowJointConnections {
		a.redrawBones(body)
	}

	a.updates++
	if first {
		a.initialized = true
		diagf("avatar %d (%s) initialised", a.ID, a.InstanceID)
		if a.OnInitialize != nil {
			a.OnInitialize(a)
		}
	}

	if a.active && a.viewpoint != nil {
		a.viewpoint.MoveTo(a.Head().WorldPosition())
	}
	tracef("avatar %d update %d dt=%s", a.ID, a.updates, dt)
}

func (a *Avatar) redrawBones(body *skeleton.Body) {
	for j := 0; j < skeleton.JointCount; j++ {
		jt := skeleton.JointType(j)
		line := a.joints[j].AttachLine()
		parent, ok := skeleton.Parent(jt)
		if !ok {
			line.Enabled = false
			continue
		}
		line.Enabled = true
		line.Start = a.joints[j].WorldPosition()
		line.End = a.joints[parent].WorldPosition()
		line.StartColor = skeleton.ColorForState(body.State(jt))
		line.EndColor = skeleton.ColorForState(body.State(parent))
	}
}

// Kill releases every node the avatar owns. It is safe to call more than once.
func (a *Avatar) Kill() {
	if a.killed {
		return
	}
	a.killed = true
	a.SetInactive()
	if err := a.root.Release(); err != nil && !errors.Is(err, scene.ErrReleased) {
		opsf("avatar %d: release failed: %v", a.ID, err)
	}
	diagf("avatar %d (%s) killed after %d updates, lived %s", a.ID, a.InstanceID, a.updates, time.Since(a.createdAt).Round(time.Millisecond))
}

// DistanceToSensor is the head's distance from the sensor origin in avatar
// local space.
func (a *Avatar) DistanceToSensor() float64 {
	return r3.Norm(a.Head().LocalPosition)
}

// BasePosition returns the midpoint between the feet, each replaced by its
// nearest tracked ancestor when the foot itself is not tracked.
func (a *Avatar) BasePosition() r3.Vec {
	left, right := skeleton.FootLeft, skeleton.FootRight
	if a.last != nil {
		left = skeleton.ClosestTrackedAncestor(a.last.State, left)
		right = skeleton.ClosestTrackedAncestor(a.last.State, right)
	}
	return scene.LerpVec(a.joints[left].WorldPosition(), a.joints[right].WorldPosition(), 0.5)
}

// LeftHandRay is HandRay(HandLeft).
func (a *Avatar) LeftHandRay() scene.Ray { return a.HandRayBetween(skeleton.ElbowLeft, skeleton.HandLeft) }

// RightHandRay is HandRay(HandRight).
func (a *Avatar) RightHandRay() scene.Ray {
	return a.HandRayBetween(skeleton.ElbowRight, skeleton.HandRight)
}

// HandRay returns the forearm ray for HandLeft or HandRight. Any other joint
// is logged and treated as HandRight.
func (a *Avatar) HandRay(hand skeleton.JointType) scene.Ray {
	switch hand {
	case skeleton.HandLeft:
		return a.LeftHandRay()
	case skeleton.HandRight:
		return a.RightHandRay()
	default:
		opsf("avatar %d: HandRay only takes HandLeft and HandRight, got %s", a.ID, hand)
		return a.RightHandRay()
	}
}

// HandRayBetween returns a ray from the hand along the elbow-to-hand
// direction. When the two coincide the hand node's forward axis is used.
func (a *Avatar) HandRayBetween(elbow, hand skeleton.JointType) scene.Ray {
	e := a.joints[elbow].WorldPosition()
	h := a.joints[hand].WorldPosition()
	dir := r3.Sub(h, e)
	if r3.Norm(dir) == 0 {
		dir = a.joints[hand].Forward()
	}
	return scene.Ray{Origin: h, Direction: r3.Unit(dir)}
}

package skeleton

import (
	"image/color"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the unit rotation.
var Identity = quat.Number{Real: 1}

// Joint is one landmark of a body snapshot, in sensor camera space (metres).
type Joint struct {
	Type        JointType
	Position    r3.Vec
	Orientation quat.Number
	State       TrackingState
}

// Body is a per-frame skeleton snapshot for one sensor body slot.
type Body struct {
	TrackingID uint64
	Tracked    bool
	Joints     [JointCount]Joint
}

// NewBody returns a body with every joint NotTracked at the origin with an
// identity orientation.
func NewBody(id uint64, tracked bool) *Body {
	b := &Body{TrackingID: id, Tracked: tracked}
	for i := range b.Joints {
		b.Joints[i] = Joint{Type: JointType(i), Orientation: Identity}
	}
	return b
}

// Joint returns the joint of type j; invalid types return a NotTracked zero
// joint.
func (b *Body) Joint(j JointType) Joint {
	if b == nil || !j.Valid() {
		return Joint{Type: j, Orientation: Identity}
	}
	return b.Joints[j]
}

// State reports the tracking state of a joint. It satisfies StateFunc.
func (b *Body) State(j JointType) TrackingState {
	return b.Joint(j).State
}

// SetJoint overwrites a joint; invalid types are ignored.
func (b *Body) SetJoint(j JointType, pos r3.Vec, rot quat.Number, state TrackingState) {
	if !j.Valid() {
		return
	}
	b.Joints[j] = Joint{Type: j, Position: pos, Orientation: rot, State: state}
}

// Frame is everything one sensor read produced. Bodies may contain nil slots.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Bodies    []*Body
}

// TrackedBodies returns the non-nil tracked bodies in slot order. A tracking
// ID that appears twice keeps its first slot.
func (f *Frame) TrackedBodies() []*Body {
	if f == nil {
		return nil
	}
	out := make([]*Body, 0, len(f.Bodies))
	seen := make(map[uint64]struct{}, len(f.Bodies))
	for _, b := range f.Bodies {
		if b == nil || !b.Tracked {
			continue
		}
		if _, dup := seen[b.TrackingID]; dup {
			continue
		}
		seen[b.TrackingID] = struct{}{}
		out = append(out, b)
	}
	return out
}

// TrackedIDs returns the tracking IDs of TrackedBodies in slot order.
func (f *Frame) TrackedIDs() []uint64 {
	bodies := f.TrackedBodies()
	ids := make([]uint64, len(bodies))
	for i, b := range bodies {
		ids[i] = b.TrackingID
	}
	return ids
}

// Unmirror converts sensor camera space into scene space by flipping the
// depth axis.
func Unmirror(v r3.Vec) r3.Vec {
	v.Z = -v.Z
	return v
}

// Segment colours per endpoint confidence.
var (
	ColorTracked    = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ColorInferred   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorNotTracked = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// ColorForState maps a tracking state to its bone segment colour.
func ColorForState(s TrackingState) color.RGBA {
	switch s {
	case Tracked:
		return ColorTracked
	case Inferred:
		return ColorInferred
	default:
		return ColorNotTracked
	}
}

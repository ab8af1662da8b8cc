// Package skeleton defines the sensor-side body model: the 25 joint
// identifiers, per-joint tracking confidence, body and frame snapshots, the
// static joint connection graph and the JSON wire format shared by every
// frame source.
//
// Dependency rule: skeleton depends on no other internal package. It owns no
// scene or avatar state.
package skeleton

import (
	"errors"
	"fmt"
	"strings"
)

// JointType identifies a tracked skeletal landmark. Values follow the sensor
// SDK ordering so raw indices from a bridge can be used directly.
type JointType uint8

const (
	SpineBase JointType = iota
	SpineMid
	Neck
	Head
	ShoulderLeft
	ElbowLeft
	WristLeft
	HandLeft
	ShoulderRight
	ElbowRight
	WristRight
	HandRight
	HipLeft
	KneeLeft
	AnkleLeft
	FootLeft
	HipRight
	KneeRight
	AnkleRight
	FootRight
	SpineShoulder
	HandTipLeft
	ThumbLeft
	HandTipRight
	ThumbRight

	// JointCount is the number of defined joints.
	JointCount = int(ThumbRight) + 1
)

// NoJoint marks the absence of a joint in the connection tables.
const NoJoint JointType = 0xFF

// ErrUnknownJoint is returned when a joint name or index does not resolve.
var ErrUnknownJoint = errors.New("unknown joint")

var jointNames = [JointCount]string{
	"SpineBase",
	"SpineMid",
	"Neck",
	"Head",
	"ShoulderLeft",
	"ElbowLeft",
	"WristLeft",
	"HandLeft",
	"ShoulderRight",
	"ElbowRight",
	"WristRight",
	"HandRight",
	"HipLeft",
	"KneeLeft",
	"AnkleLeft",
	"FootLeft",
	"HipRight",
	"KneeRight",
	"AnkleRight",
	"FootRight",
	"SpineShoulder",
	"HandTipLeft",
	"ThumbLeft",
	"HandTipRight",
	"ThumbRight",
}

// Valid reports whether j is one of the defined joints.
func (j JointType) Valid() bool {
	return int(j) < JointCount
}

func (j JointType) String() string {
	if !j.Valid() {
		return fmt.Sprintf("JointType(%d)", uint8(j))
	}
	return jointNames[j]
}

// ParseJointType resolves a joint by its exact name (case-insensitive).
func ParseJointType(name string) (JointType, error) {
	for i, n := range jointNames {
		if strings.EqualFold(n, name) {
			return JointType(i), nil
		}
	}
	return NoJoint, fmt.Errorf("%w: %q", ErrUnknownJoint, name)
}

// AllJoints returns every joint in enum order.
func AllJoints() []JointType {
	out := make([]JointType, JointCount)
	for i := range out {
		out[i] = JointType(i)
	}
	return out
}

// TrackingState is the sensor's confidence in a joint's reported data.
type TrackingState uint8

const (
	NotTracked TrackingState = iota
	Inferred
	Tracked
)

func (s TrackingState) String() string {
	switch s {
	case Tracked:
		return "Tracked"
	case Inferred:
		return "Inferred"
	default:
		return "NotTracked"
	}
}

// ParseTrackingState resolves a confidence name; anything unrecognised is
// NotTracked.
func ParseTrackingState(s string) TrackingState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tracked":
		return Tracked
	case "inferred":
		return Inferred
	default:
		return NotTracked
	}
}

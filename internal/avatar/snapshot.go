package avatar

import (
	"github.com/banshee-data/avatar.track/internal/skeleton"
)

// JointSnapshot is the JSON view of one joint node.
type JointSnapshot struct {
	Name     string     `json:"name"`
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"` // x, y, z, w
	State    string     `json:"state"`
}

// Snapshot is a read-only copy of an avatar taken inside the frame loop.
type Snapshot struct {
	ID               uint64          `json:"id"`
	InstanceID       string          `json:"instance_id"`
	Active           bool            `json:"active"`
	Updates          int             `json:"updates"`
	DistanceToSensor float64         `json:"distance_to_sensor"`
	Base             [3]float64      `json:"base"`
	Joints           []JointSnapshot `json:"joints"`
}

// Snapshot copies the avatar's current joint transforms.
func (a *Avatar) Snapshot() Snapshot {
	base := a.BasePosition()
	s := Snapshot{
		ID:               a.ID,
		InstanceID:       a.InstanceID,
		Active:           a.active,
		Updates:          a.updates,
		DistanceToSensor: a.DistanceToSensor(),
		Base:             [3]float64{base.X, base.Y, base.Z},
		Joints:           make([]JointSnapshot, 0, skeleton.JointCount),
	}
	for _, j := range skeleton.AllJoints() {
		n := a.joints[j]
		p := n.LocalPosition
		q := n.LocalRotation
		s.Joints = append(s.Joints, JointSnapshot{
			Name:     j.String(),
			Position: [3]float64{p.X, p.Y, p.Z},
			Rotation: [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
			State:    a.last.State(j).String(),
		})
	}
	return s
}

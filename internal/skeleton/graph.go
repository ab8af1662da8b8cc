package skeleton

// parents maps each joint to the joint it connects to. The chains run from the
// extremities through the spine and end at Head, which has no connection.
var parents = [JointCount]JointType{
	SpineBase:     SpineMid,
	SpineMid:      SpineShoulder,
	Neck:          Head,
	Head:          NoJoint,
	ShoulderLeft:  SpineShoulder,
	ElbowLeft:     ShoulderLeft,
	WristLeft:     ElbowLeft,
	HandLeft:      WristLeft,
	ShoulderRight: SpineShoulder,
	ElbowRight:    ShoulderRight,
	WristRight:    ElbowRight,
	HandRight:     WristRight,
	HipLeft:       SpineBase,
	KneeLeft:      HipLeft,
	AnkleLeft:     KneeLeft,
	FootLeft:      AnkleLeft,
	HipRight:      SpineBase,
	KneeRight:     HipRight,
	AnkleRight:    KneeRight,
	FootRight:     AnkleRight,
	SpineShoulder: Neck,
	HandTipLeft:   HandLeft,
	ThumbLeft:     HandLeft,
	HandTipRight:  HandRight,
	ThumbRight:    HandRight,
}

// firstChild is the inverse edge used when walking away from the head. Where
// a joint has several children the left side and the limbs win over the spine.
var firstChild = [JointCount]JointType{
	SpineBase:     HipLeft,
	SpineMid:      SpineBase,
	Neck:          SpineShoulder,
	Head:          Neck,
	ShoulderLeft:  ElbowLeft,
	ElbowLeft:     WristLeft,
	WristLeft:     HandLeft,
	HandLeft:      HandTipLeft,
	ShoulderRight: ElbowRight,
	ElbowRight:    WristRight,
	WristRight:    HandRight,
	HandRight:     HandTipRight,
	HipLeft:       KneeLeft,
	KneeLeft:      AnkleLeft,
	AnkleLeft:     FootLeft,
	FootLeft:      NoJoint,
	HipRight:      KneeRight,
	KneeRight:     AnkleRight,
	AnkleRight:    FootRight,
	FootRight:     NoJoint,
	SpineShoulder: ShoulderLeft,
	HandTipLeft:   NoJoint,
	ThumbLeft:     NoJoint,
	HandTipRight:  NoJoint,
	ThumbRight:    NoJoint,
}

// Parent returns the joint j connects to, or false for Head and invalid joints.
func Parent(j JointType) (JointType, bool) {
	if !j.Valid() {
		return NoJoint, false
	}
	p := parents[j]
	return p, p != NoJoint
}

// FirstChild returns the preferred joint connecting to j, or false for leaves.
func FirstChild(j JointType) (JointType, bool) {
	if !j.Valid() {
		return NoJoint, false
	}
	c := firstChild[j]
	return c, c != NoJoint
}

// Bone is one drawable connection from a joint to its parent.
type Bone struct {
	From JointType
	To   JointType
}

// Bones returns every connection in enum order of the child joint.
func Bones() []Bone {
	out := make([]Bone, 0, JointCount-1)
	for j := 0; j < JointCount; j++ {
		if p := parents[j]; p != NoJoint {
			out = append(out, Bone{From: JointType(j), To: p})
		}
	}
	return out
}

// StateFunc reports the tracking state of a joint.
type StateFunc func(JointType) TrackingState

// ClosestTrackedAncestor walks from j toward the head until a Tracked joint is
// found. It returns the last joint visited when the chain ends untracked.
func ClosestTrackedAncestor(state StateFunc, j JointType) JointType {
	return walkUntilTracked(state, j, Parent)
}

// ClosestTrackedDescendant walks from j away from the head, following
// FirstChild, until a Tracked joint is found or a leaf is reached.
func ClosestTrackedDescendant(state StateFunc, j JointType) JointType {
	return walkUntilTracked(state, j, FirstChild)
}

func walkUntilTracked(state StateFunc, j JointType, next func(JointType) (JointType, bool)) JointType {
	if state == nil || !j.Valid() {
		return j
	}
	// The tables are acyclic; the bound only guards against a future edit
	// that introduces a cycle.
	for steps := 0; steps < JointCount && state(j) != Tracked; steps++ {
		n, ok := next(j)
		if !ok {
			break
		}
		j = n
	}
	return j
}

// Package scene is the in-process scene graph the avatars and interaction
// mechanics own nodes in: hierarchical transforms, optional line segments
// and release accounting so ownership can be verified.
package scene

import (
	"errors"
	"image/color"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrReleased is returned when releasing a node that was already released.
var ErrReleased = errors.New("scene node already released")

// NodeID is unique within a Graph.
type NodeID int64

// Graph allocates nodes and tracks how many are live.
type Graph struct {
	nextID   NodeID
	live     map[NodeID]*Node
	released int

	// OnRelease, when set, is called once for every node as it is released.
	OnRelease func(*Node)
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{live: make(map[NodeID]*Node)}
}

// Live returns the number of nodes not yet released.
func (g *Graph) Live() int { return len(g.live) }

// Released returns how many nodes have been released over the graph's life.
func (g *Graph) Released() int { return g.released }

// Lookup returns a live node by ID.
func (g *Graph) Lookup(id NodeID) (*Node, bool) {
	n, ok := g.live[id]
	return n, ok
}

// LineSegment is a two-point line drawn between joint positions.
type LineSegment struct {
	Enabled    bool
	Start      r3.Vec
	End        r3.Vec
	StartColor color.RGBA
	EndColor   color.RGBA
}

// Node is a transform in the graph. Local fields are relative to the parent.
type Node struct {
	Name          string
	LocalPosition r3.Vec
	LocalRotation quat.Number
	LocalScale    r3.Vec
	Visible       bool
	Color         color.RGBA

	// Line is non-nil when the node draws a segment.
	Line *LineSegment

	id       NodeID
	graph    *Graph
	parent   *Node
	children []*Node
	released bool
}

// NewNode creates a visible node at the parent's origin. A nil parent makes a
// root node.
func (g *Graph) NewNode(name string, parent *Node) *Node {
	g.nextID++
	n := &Node{
		Name:          name,
		LocalRotation: Identity,
		LocalScale:    r3.Vec{X: 1, Y: 1, Z: 1},
		Visible:       true,
		id:            g.nextID,
		graph:         g,
	}
	g.live[n.id] = n
	if parent != nil {
		n.SetParent(parent)
	}
	return n
}

// ID returns the node's identifier.
func (n *Node) ID() NodeID { return n.id }

// Parent returns the parent node or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Child returns the first direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Released reports whether the node has been released.
func (n *Node) Released() bool { return n.released }

// SetParent moves the node under p, keeping its local transform.
func (n *Node) SetParent(p *Node) {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	n.parent = p
	if p != nil {
		p.children = append(p.children, n)
	}
}

func (n *Node) removeChild(c *Node) {
	for i, cc := range n.children {
		if cc == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// AttachLine gives the node an enabled line segment and returns it.
func (n *Node) AttachLine() *LineSegment {
	if n.Line == nil {
		n.Line = &LineSegment{Enabled: true}
	}
	return n.Line
}

// TransformPoint converts a point in this node's local space to world space.
func (n *Node) TransformPoint(p r3.Vec) r3.Vec {
	for cur := n; cur != nil; cur = cur.parent {
		p = r3.Vec{X: p.X * cur.LocalScale.X, Y: p.Y * cur.LocalScale.Y, Z: p.Z * cur.LocalScale.Z}
		p = r3.Add(Rotate(cur.LocalRotation, p), cur.LocalPosition)
	}
	return p
}

// WorldPosition returns the node origin in world space.
func (n *Node) WorldPosition() r3.Vec {
	if n.parent == nil {
		return n.LocalPosition
	}
	return n.parent.TransformPoint(n.LocalPosition)
}

// WorldRotation composes the rotations from the root down to this node.
func (n *Node) WorldRotation() quat.Number {
	q := n.LocalRotation
	for cur := n.parent; cur != nil; cur = cur.parent {
		q = quat.Mul(cur.LocalRotation, q)
	}
	return Normalize(q)
}

// SetWorldPosition places the node so its world origin is p. Parent scale is
// assumed non-zero.
func (n *Node) SetWorldPosition(p r3.Vec) {
	if n.parent == nil {
		n.LocalPosition = p
		return
	}
	n.LocalPosition = n.parent.InverseTransformPoint(p)
}

// InverseTransformPoint converts a world point into this node's local space.
func (n *Node) InverseTransformPoint(p r3.Vec) r3.Vec {
	chain := []*Node{}
	for cur := n; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		p = Rotate(quat.Conj(cur.LocalRotation), r3.Sub(p, cur.LocalPosition))
		p = r3.Vec{X: safeDiv(p.X, cur.LocalScale.X), Y: safeDiv(p.Y, cur.LocalScale.Y), Z: safeDiv(p.Z, cur.LocalScale.Z)}
	}
	return p
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Forward returns the node's forward axis in world space.
func (n *Node) Forward() r3.Vec {
	return Rotate(n.WorldRotation(), Forward)
}

// Release detaches the node and releases it and its whole subtree. Releasing
// a node twice returns ErrReleased and changes nothing.
func (n *Node) Release() error {
	if n.released {
		return ErrReleased
	}
	if n.parent != nil {
		n.parent.removeChild(n)
		n.parent = nil
	}
	n.releaseSubtree()
	return nil
}

func (n *Node) releaseSubtree() {
	for _, c := range n.children {
		c.parent = nil
		c.releaseSubtree()
	}
	n.children = nil
	n.released = true
	n.Line = nil
	delete(n.graph.live, n.id)
	n.graph.released++
	if n.graph.OnRelease != nil {
		n.graph.OnRelease(n)
	}
}

package scene

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the unit rotation.
var Identity = quat.Number{Real: 1}

// Forward is the local axis a node points along.
var Forward = r3.Vec{Z: 1}

// Ray is a half-line from Origin along the unit vector Direction.
type Ray struct {
	Origin    r3.Vec
	Direction r3.Vec
}

// At returns the point at distance d along the ray.
func (r Ray) At(d float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(d, r.Direction))
}

// Clamp01 clamps t to [0, 1].
func Clamp01(t float64) float64 {
	switch {
	case t < 0 || math.IsNaN(t):
		return 0
	case t > 1:
		return 1
	}
	return t
}

// InverseLerp returns where v lies between a and b as a fraction in [0, 1].
func InverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return Clamp01((v - a) / (b - a))
}

// LerpVec blends a toward b by t, clamped to [0, 1].
func LerpVec(a, b r3.Vec, t float64) r3.Vec {
	t = Clamp01(t)
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

func quatDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Normalize scales q to unit length. A zero quaternion becomes Identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Nlerp blends rotation a toward b by t (clamped) along the shorter arc and
// renormalises the result.
func Nlerp(a, b quat.Number, t float64) quat.Number {
	t = Clamp01(t)
	if quatDot(a, b) < 0 {
		b = quat.Scale(-1, b)
	}
	return Normalize(quat.Add(quat.Scale(1-t, a), quat.Scale(t, b)))
}

// Angle returns the angle in radians between two rotations.
func Angle(a, b quat.Number) float64 {
	d := math.Abs(quatDot(Normalize(a), Normalize(b)))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// Rotate applies the unit rotation q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// FromTo returns the shortest rotation taking direction from onto direction to.
func FromTo(from, to r3.Vec) quat.Number {
	if r3.Norm(from) == 0 || r3.Norm(to) == 0 {
		return Identity
	}
	f := r3.Unit(from)
	t := r3.Unit(to)
	d := r3.Dot(f, t)
	if d >= 1-1e-12 {
		return Identity
	}
	if d <= -1+1e-12 {
		// Opposite directions: rotate half a turn about any perpendicular axis.
		axis := r3.Cross(r3.Vec{X: 1}, f)
		if r3.Norm(axis) < 1e-9 {
			axis = r3.Cross(r3.Vec{Y: 1}, f)
		}
		axis = r3.Unit(axis)
		return quat.Number{Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	}
	c := r3.Cross(f, t)
	return Normalize(quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z})
}

// LookRotation returns the rotation pointing the Forward axis along dir.
func LookRotation(dir r3.Vec) quat.Number {
	return FromTo(Forward, dir)
}

// Package xform holds the transform math shared by the scene backends and the
// rig builders. Matrices are sdfx M44 values, rotations are Euler angles in
// degrees applied in X, Y, Z order, and interpolation happens on gonum
// quaternions.
package xform

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/num/quat"
)

// Epsilon is the tolerance used for degenerate-scale and comparison checks.
const Epsilon = 1e-9

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Unit is the vector (1, 1, 1).
var Unit = v3.Vec{X: 1, Y: 1, Z: 1}

// Rotation builds the rotation matrix for Euler angles in degrees.
// X is applied first, then Y, then Z.
func Rotation(r v3.Vec) sdf.M44 {
	return sdf.RotateZ(r.Z * degToRad).Mul(sdf.RotateY(r.Y * degToRad)).Mul(sdf.RotateX(r.X * degToRad))
}

// Compose builds translate * rotate * scale.
func Compose(t, r, s v3.Vec) sdf.M44 {
	return sdf.Translate3d(t).Mul(Rotation(r)).Mul(sdf.Scale3d(s))
}

// Decompose splits an affine matrix into translation, Euler rotation in
// degrees and scale. A negative determinant is folded into the X scale.
func Decompose(m sdf.M44) (t, r, s v3.Vec) {
	t = m.MulPosition(v3.Vec{})
	bx := m.MulPosition(v3.Vec{X: 1}).Sub(t)
	by := m.MulPosition(v3.Vec{Y: 1}).Sub(t)
	bz := m.MulPosition(v3.Vec{Z: 1}).Sub(t)

	s = v3.Vec{X: bx.Length(), Y: by.Length(), Z: bz.Length()}
	if bx.Dot(by.Cross(bz)) < 0 {
		s.X = -s.X
	}
	c0 := safeDiv(bx, s.X)
	c1 := safeDiv(by, s.Y)
	c2 := safeDiv(bz, s.Z)
	r = eulerFromColumns(c0, c1, c2)
	return t, r, s
}

func safeDiv(v v3.Vec, f float64) v3.Vec {
	if math.Abs(f) < Epsilon {
		return v3.Vec{}
	}
	return v.MulScalar(1 / f)
}

// eulerFromColumns extracts XYZ-order Euler angles from the columns of a
// pure rotation matrix R = Rz * Ry * Rx.
func eulerFromColumns(c0, c1, c2 v3.Vec) v3.Vec {
	sy := -c0.Z
	if sy > 1 {
		sy = 1
	} else if sy < -1 {
		sy = -1
	}
	y := math.Asin(sy)
	var x, z float64
	if math.Abs(sy) < 1-1e-12 {
		x = math.Atan2(c1.Z, c2.Z)
		z = math.Atan2(c0.Y, c0.X)
	} else {
		// gimbal lock: fold everything into Z
		x = 0
		z = math.Atan2(-c1.X, c1.Y)
	}
	return v3.Vec{X: x * radToDeg, Y: y * radToDeg, Z: z * radToDeg}
}

// FromBasis returns the Euler rotation whose matrix has the given
// orthonormal columns.
func FromBasis(x, y, z v3.Vec) v3.Vec {
	return eulerFromColumns(x, y, z)
}

// Reflect negates the components of p selected by axes.
func Reflect(p v3.Vec, axes [3]bool) v3.Vec {
	if axes[0] {
		p.X = -p.X
	}
	if axes[1] {
		p.Y = -p.Y
	}
	if axes[2] {
		p.Z = -p.Z
	}
	return p
}

// ReflectScale returns a scale vector holding -1 on every selected axis.
func ReflectScale(axes [3]bool) v3.Vec {
	return Reflect(Unit, axes)
}

// ---------------------------------------------------------------------------
// Quaternions
// ---------------------------------------------------------------------------

func axisQuat(angleDeg float64, axis v3.Vec) quat.Number {
	half := angleDeg * degToRad / 2
	sn := math.Sin(half)
	return quat.Number{Real: math.Cos(half), Imag: axis.X * sn, Jmag: axis.Y * sn, Kmag: axis.Z * sn}
}

// FromEuler converts XYZ-order Euler degrees to a unit quaternion.
func FromEuler(r v3.Vec) quat.Number {
	qx := axisQuat(r.X, v3.Vec{X: 1})
	qy := axisQuat(r.Y, v3.Vec{Y: 1})
	qz := axisQuat(r.Z, v3.Vec{Z: 1})
	return quat.Mul(qz, quat.Mul(qy, qx))
}

// Rotate applies the unit quaternion q to the vector v.
func Rotate(q quat.Number, v v3.Vec) v3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return v3.Vec{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}

// ToEuler converts a unit quaternion back to XYZ-order Euler degrees.
func ToEuler(q quat.Number) v3.Vec {
	q = Normalize(q)
	c0 := Rotate(q, v3.Vec{X: 1})
	c1 := Rotate(q, v3.Vec{Y: 1})
	c2 := Rotate(q, v3.Vec{Z: 1})
	return eulerFromColumns(c0, c1, c2)
}

// Normalize scales q to unit length. The zero quaternion maps to identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < Epsilon {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Slerp interpolates from a to b along the shortest arc.
func Slerp(a, b quat.Number, t float64) quat.Number {
	a, b = Normalize(a), Normalize(b)
	d := dot(a, b)
	if d < 0 {
		b = quat.Scale(-1, b)
		d = -d
	}
	if d > 0.9995 {
		return Normalize(quat.Add(quat.Scale(1-t, a), quat.Scale(t, b)))
	}
	theta := math.Acos(d)
	sn := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sn
	wb := math.Sin(t*theta) / sn
	return quat.Add(quat.Scale(wa, a), quat.Scale(wb, b))
}

// Quat builds a quaternion from x, y, z, w components.
func Quat(x, y, z, w float64) quat.Number {
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// SameRotation reports whether two Euler rotations describe the same
// orientation within tol (compared as quaternions, sign-insensitive).
func SameRotation(a, b v3.Vec, tol float64) bool {
	return 1-math.Abs(dot(FromEuler(a), FromEuler(b))) < tol
}

// NearVec reports whether a and b agree component-wise within tol.
func NearVec(a, b v3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

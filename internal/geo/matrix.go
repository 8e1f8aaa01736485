package geo

import (
	"errors"
	"math"
)

// ErrPerspective is returned for a degenerate view frustum.
var ErrPerspective = errors.New("geo: perspective requires near != 0 and near != far")

// Matrix4 is a row-major 4x4 matrix: index row*4+col.
type Matrix4 [16]float64

type Point3 struct {
	X, Y, Z float64
}

func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func Translation(x, y, z float64) Matrix4 {
	m := Identity()
	m[3], m[7], m[11] = x, y, z
	return m
}

func RotationX(rad float64) Matrix4 {
	s, c := math.Sincos(rad)
	m := Identity()
	m[5], m[6] = c, -s
	m[9], m[10] = s, c
	return m
}

func RotationY(rad float64) Matrix4 {
	s, c := math.Sincos(rad)
	m := Identity()
	m[0], m[2] = c, s
	m[8], m[10] = -s, c
	return m
}

func RotationZ(rad float64) Matrix4 {
	s, c := math.Sincos(rad)
	m := Identity()
	m[0], m[1] = c, -s
	m[4], m[5] = s, c
	return m
}

func Scale(x, y, z float64) Matrix4 {
	m := Identity()
	m[0], m[5], m[10] = x, y, z
	return m
}

// Perspective builds a right-handed projection looking down -Z with vertical
// field of view fovy (radians).
func Perspective(fovy, aspect, near, far float64) (Matrix4, error) {
	if near == 0 || near == far {
		return Matrix4{}, ErrPerspective
	}
	f := 1 / math.Tan(fovy/2)
	var m Matrix4
	m[0] = f / aspect
	m[5] = f
	m[10] = (far + near) / (near - far)
	m[11] = 2 * far * near / (near - far)
	m[14] = -1
	return m, nil
}

// Mul returns m·n.
func (m Matrix4) Mul(n Matrix4) Matrix4 {
	var out Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var v float64
			for k := 0; k < 4; k++ {
				v += m[r*4+k] * n[k*4+c]
			}
			out[r*4+c] = v
		}
	}
	return out
}

// Chain multiplies left to right: Chain(a, b, c) == a·b·c.
func Chain(ms ...Matrix4) Matrix4 {
	out := Identity()
	for _, m := range ms {
		out = out.Mul(m)
	}
	return out
}

// Transform applies m to p as a homogeneous point (w=1). x, y and z are
// divided by the resulting w unless it is zero.
func (m Matrix4) Transform(p Point3) Point3 {
	x := m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3]
	y := m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7]
	z := m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11]
	w := m[12]*p.X + m[13]*p.Y + m[14]*p.Z + m[15]
	if w != 0 {
		x, y, z = x/w, y/w, z/w
	}
	return Point3{X: x, Y: y, Z: z}
}

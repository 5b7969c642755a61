package multires

import "math"

// Affine3D represents a 3D affine transformation matrix.
// It uses a 3x4 matrix in row-major order:
//
//	| a  b  c  d |
//	| e  f  g  h |
//	| i  j  k  l |
//
// This represents the transformation:
//
//	x' = a*x + b*y + c*z + d
//	y' = e*x + f*y + g*z + h
//	z' = i*x + j*y + k*z + l
//
// Affine3D is a value type: all operations return new values and the
// zero value is NOT the identity, use Identity3D.
type Affine3D struct {
	A, B, C, D float64
	E, F, G, H float64
	I, J, K, L float64
}

// Identity3D returns the identity transformation.
func Identity3D() Affine3D {
	return Affine3D{
		A: 1, F: 1, K: 1,
	}
}

// Translate3D creates a translation by (x, y, z).
func Translate3D(x, y, z float64) Affine3D {
	return Affine3D{
		A: 1, D: x,
		F: 1, H: y,
		K: 1, L: z,
	}
}

// Scale3D creates a scaling by (sx, sy, sz) around the origin.
func Scale3D(sx, sy, sz float64) Affine3D {
	return Affine3D{
		A: sx, F: sy, K: sz,
	}
}

// UniformScale3D creates a uniform scaling by s around the origin.
func UniformScale3D(s float64) Affine3D {
	return Scale3D(s, s, s)
}

// RotateX creates a rotation around the x axis (angle in radians).
func RotateX(angle float64) Affine3D {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Affine3D{
		A: 1,
		F: cos, G: -sin,
		J: sin, K: cos,
	}
}

// RotateY creates a rotation around the y axis (angle in radians).
func RotateY(angle float64) Affine3D {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Affine3D{
		A: cos, C: sin,
		F: 1,
		I: -sin, K: cos,
	}
}

// RotateZ creates a rotation around the z axis (angle in radians).
func RotateZ(angle float64) Affine3D {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Affine3D{
		A: cos, B: -sin,
		E: sin, F: cos,
		K: 1,
	}
}

// Mul multiplies two transformations (t * other). The result applies
// 'other' first, then 't'.
func (t Affine3D) Mul(other Affine3D) Affine3D {
	return Affine3D{
		A: t.A*other.A + t.B*other.E + t.C*other.I,
		B: t.A*other.B + t.B*other.F + t.C*other.J,
		C: t.A*other.C + t.B*other.G + t.C*other.K,
		D: t.A*other.D + t.B*other.H + t.C*other.L + t.D,

		E: t.E*other.A + t.F*other.E + t.G*other.I,
		F: t.E*other.B + t.F*other.F + t.G*other.J,
		G: t.E*other.C + t.F*other.G + t.G*other.K,
		H: t.E*other.D + t.F*other.H + t.G*other.L + t.H,

		I: t.I*other.A + t.J*other.E + t.K*other.I,
		J: t.I*other.B + t.J*other.F + t.K*other.J,
		K: t.I*other.C + t.J*other.G + t.K*other.K,
		L: t.I*other.D + t.J*other.H + t.K*other.L + t.L,
	}
}

// Translated returns the transformation followed by a translation of
// (x, y, z), i.e. Translate3D(x, y, z).Mul(t).
func (t Affine3D) Translated(x, y, z float64) Affine3D {
	t.D += x
	t.H += y
	t.L += z
	return t
}

// Apply transforms the point (x, y, z).
func (t Affine3D) Apply(x, y, z float64) (float64, float64, float64) {
	return t.A*x + t.B*y + t.C*z + t.D,
		t.E*x + t.F*y + t.G*z + t.H,
		t.I*x + t.J*y + t.K*z + t.L
}

// ApplyVector transforms the vector (x, y, z), ignoring translation.
func (t Affine3D) ApplyVector(x, y, z float64) (float64, float64, float64) {
	return t.A*x + t.B*y + t.C*z,
		t.E*x + t.F*y + t.G*z,
		t.I*x + t.J*y + t.K*z
}

// Inverse returns the inverse transformation.
// Returns false if the matrix is singular (non-invertible).
func (t Affine3D) Inverse() (Affine3D, bool) {
	// Cofactors of the linear 3x3 part.
	c00 := t.F*t.K - t.G*t.J
	c01 := t.G*t.I - t.E*t.K
	c02 := t.E*t.J - t.F*t.I

	det := t.A*c00 + t.B*c01 + t.C*c02
	if math.Abs(det) < 1e-12 {
		return Affine3D{}, false
	}
	invDet := 1.0 / det

	inv := Affine3D{
		A: c00 * invDet,
		B: (t.C*t.J - t.B*t.K) * invDet,
		C: (t.B*t.G - t.C*t.F) * invDet,
		E: c01 * invDet,
		F: (t.A*t.K - t.C*t.I) * invDet,
		G: (t.C*t.E - t.A*t.G) * invDet,
		I: c02 * invDet,
		J: (t.B*t.I - t.A*t.J) * invDet,
		K: (t.A*t.F - t.B*t.E) * invDet,
	}
	// Inverse translation: -M⁻¹ * d.
	inv.D = -(inv.A*t.D + inv.B*t.H + inv.C*t.L)
	inv.H = -(inv.E*t.D + inv.F*t.H + inv.G*t.L)
	inv.L = -(inv.I*t.D + inv.J*t.H + inv.K*t.L)
	return inv, true
}

// XScale returns the length of the image of the unit x vector, i.e. the
// on-screen spacing produced for a unit step along the x axis.
func (t Affine3D) XScale() float64 {
	return math.Sqrt(t.A*t.A + t.E*t.E + t.I*t.I)
}

// YScale returns the length of the image of the unit y vector.
func (t Affine3D) YScale() float64 {
	return math.Sqrt(t.B*t.B + t.F*t.F + t.J*t.J)
}

// Package geometry provides the small set of 3D primitives the SURPASS
// simulator needs: distances, planar angles and random displacement vectors.
//
// Bead coordinates are gonum r3.Vec values; everything here is a thin,
// allocation-free layer over that type.
package geometry

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// Dist2 returns the squared Euclidean distance between a and b.
func Dist2(a, b r3.Vec) float64 {
	d := r3.Sub(a, b)
	return r3.Norm2(d)
}

// Dist returns the Euclidean distance between a and b.
func Dist(a, b r3.Vec) float64 {
	return math.Sqrt(Dist2(a, b))
}

// CosAngle returns the cosine of the angle between vectors u and v.
// Returns 0 when either vector is degenerate.
func CosAngle(u, v r3.Vec) float64 {
	nu, nv := r3.Norm(u), r3.Norm(v)
	if nu == 0 || nv == 0 {
		return 0
	}
	return r3.Dot(u, v) / (nu * nv)
}

// PlanarAngle returns the angle (radians) at vertex b formed by points a-b-c.
func PlanarAngle(a, b, c r3.Vec) float64 {
	cos := CosAngle(r3.Sub(a, b), r3.Sub(c, b))
	// Clamp against rounding before acos.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// UniformBall draws a vector uniformly from a ball of the given radius.
// Rejection sampling from the enclosing cube; the acceptance rate is ~0.52.
func UniformBall(radius float64, rng *rand.Rand) r3.Vec {
	if radius == 0 {
		return r3.Vec{}
	}
	for {
		v := r3.Vec{
			X: (2*rng.Float64() - 1) * radius,
			Y: (2*rng.Float64() - 1) * radius,
			Z: (2*rng.Float64() - 1) * radius,
		}
		if r3.Norm2(v) <= radius*radius {
			return v
		}
	}
}

// Centroid returns the arithmetic mean of the given points.
func Centroid(pts []r3.Vec) r3.Vec {
	var c r3.Vec
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c = r3.Add(c, p)
	}
	return r3.Scale(1/float64(len(pts)), c)
}

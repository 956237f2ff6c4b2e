package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDistances(t *testing.T) {
	a := r3.Vec{X: 1, Y: 2, Z: 3}
	b := r3.Vec{X: 4, Y: 6, Z: 3}

	assert.InDelta(t, 25.0, Dist2(a, b), 1e-12)
	assert.InDelta(t, 5.0, Dist(a, b), 1e-12)
}

func TestPlanarAngle(t *testing.T) {
	o := r3.Vec{}
	x := r3.Vec{X: 1}
	y := r3.Vec{Y: 1}

	assert.InDelta(t, math.Pi/2, PlanarAngle(x, o, y), 1e-12)
	assert.InDelta(t, math.Pi, PlanarAngle(x, o, r3.Vec{X: -1}), 1e-12)
}

func TestCosAngleDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, CosAngle(r3.Vec{}, r3.Vec{X: 1}))
}

func TestUniformBall(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const r = 0.7
	for i := 0; i < 1000; i++ {
		v := UniformBall(r, rng)
		assert.LessOrEqual(t, r3.Norm(v), r)
	}
	assert.Equal(t, r3.Vec{}, UniformBall(0, rng))
}

func TestCentroid(t *testing.T) {
	pts := []r3.Vec{{X: 1}, {X: 3}, {Y: 2}, {Y: -2}}
	c := Centroid(pts)
	assert.InDelta(t, 1.0, c.X, 1e-12)
	assert.InDelta(t, 0.0, c.Y, 1e-12)
}

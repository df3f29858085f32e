package xform

import (
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
)

const tol = 1e-6

func TestComposeDecomposeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		t, r, s v3.Vec
	}{
		{"identity", v3.Vec{}, v3.Vec{}, Unit},
		{"translate", v3.Vec{X: 1, Y: -2, Z: 3}, v3.Vec{}, Unit},
		{"rotate", v3.Vec{}, v3.Vec{X: 30, Y: -20, Z: 45}, Unit},
		{"scale", v3.Vec{X: 4}, v3.Vec{Z: 90}, v3.Vec{X: 2, Y: 0.5, Z: 3}},
		{"negative x scale", v3.Vec{Y: 1}, v3.Vec{Y: 10}, v3.Vec{X: -1, Y: 1, Z: 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gt, gr, gs := Decompose(Compose(c.t, c.r, c.s))
			assert.True(t, NearVec(c.t, gt, tol), "translate %v != %v", c.t, gt)
			assert.True(t, NearVec(c.s, gs, tol), "scale %v != %v", c.s, gs)
			assert.True(t, SameRotation(c.r, gr, tol), "rotate %v != %v", c.r, gr)
		})
	}
}

func TestEulerQuaternionRoundTrip(t *testing.T) {
	r := v3.Vec{X: 12, Y: 34, Z: -56}
	back := ToEuler(FromEuler(r))
	assert.True(t, NearVec(r, back, 1e-6), "got %v", back)
}

func TestSlerpEndpointsAndShortestPath(t *testing.T) {
	a := FromEuler(v3.Vec{Z: 10})
	b := FromEuler(v3.Vec{Z: 350})

	assert.True(t, SameRotation(ToEuler(Slerp(a, b, 0)), v3.Vec{Z: 10}, tol))
	assert.True(t, SameRotation(ToEuler(Slerp(a, b, 1)), v3.Vec{Z: -10}, tol))

	// Halfway between 10 and -10 degrees along the short arc is 0, not 180.
	mid := ToEuler(Slerp(a, b, 0.5))
	assert.InDelta(t, 0, mid.Z, 1e-6)
}

func TestReflect(t *testing.T) {
	p := v3.Vec{X: 1, Y: 2, Z: 3}
	assert.Equal(t, v3.Vec{X: -1, Y: 2, Z: -3}, Reflect(p, [3]bool{true, false, true}))
	assert.Equal(t, v3.Vec{X: -1, Y: -1, Z: 1}, ReflectScale([3]bool{true, true, false}))
}

func TestRotateMatchesMatrix(t *testing.T) {
	r := v3.Vec{X: 20, Y: 40, Z: 60}
	v := v3.Vec{X: 1, Y: 2, Z: 3}
	byQuat := Rotate(FromEuler(r), v)
	byMat := Rotation(r).MulPosition(v)
	assert.True(t, NearVec(byQuat, byMat, 1e-9), "%v != %v", byQuat, byMat)
	assert.False(t, math.IsNaN(byQuat.X))
}

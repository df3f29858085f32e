package chain

import (
	"fmt"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/scene/memory"
)

const tol = 1e-6

func assertPos(t *testing.T, eng scene.Engine, want v3.Vec, id scene.NodeID) {
	t.Helper()
	w, err := eng.World(id)
	require.NoError(t, err)
	assert.InDelta(t, want.X, w.Translate.X, tol, "%s x", id)
	assert.InDelta(t, want.Y, w.Translate.Y, tol, "%s y", id)
	assert.InDelta(t, want.Z, w.Translate.Z, tol, "%s z", id)
}

// placeholders lays out n+1 flat locators from start, step apart along X.
func placeholders(t *testing.T, s *memory.Scene, prefix string, n int, start v3.Vec, step float64) []scene.NodeID {
	t.Helper()
	var out []scene.NodeID
	for i := 0; i <= n; i++ {
		id, err := s.CreateTransform(fmt.Sprintf("%s_Loc%d", prefix, i), scene.None)
		require.NoError(t, err)
		require.NoError(t, s.SetLocal(id, scene.Translate, start.Add(v3.Vec{X: step * float64(i)})))
		out = append(out, id)
	}
	return out
}

func group(t *testing.T, s *memory.Scene, name string) scene.NodeID {
	t.Helper()
	id, err := s.CreateTransform(name, scene.None)
	require.NoError(t, err)
	return id
}

func TestJointsHaveSegmentsPlusOne(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			s := memory.New()
			ph := placeholders(t, s, "G", n, v3.Vec{Y: 1}, 2)
			spec := Spec{Key: "Chain1", Placeholders: ph, JointParent: group(t, s, "Joints")}

			set, err := Joints(s, spec)
			require.NoError(t, err)
			assert.Equal(t, n+1, set.Len())
			for _, role := range []mirror.Role{mirror.RoleResult, mirror.RoleIK, mirror.RoleFK} {
				joints := set.Role(role)
				require.Len(t, joints, n+1, role.String())
				for i, j := range joints {
					assertPos(t, s, v3.Vec{X: 2 * float64(i), Y: 1}, j)
					kind, err := s.Kind(j)
					require.NoError(t, err)
					assert.Equal(t, scene.KindJoint, kind)
					if i > 0 {
						p, err := s.Parent(j)
						require.NoError(t, err)
						assert.Equal(t, joints[i-1], p)
					}
				}
			}
			assert.Equal(t, scene.NodeID("Chain1_Jnt1"), set.Result[0])
			assert.Equal(t, scene.NodeID("Chain1_Ik_JntEnd"), End(set.IK))
			assert.Equal(t, scene.NodeID(fmt.Sprintf("Chain1_Fk_Jnt%d", n)), Tip(set.FK))
		})
	}
}

func TestJointsRejectShortChain(t *testing.T) {
	s := memory.New()
	ph := placeholders(t, s, "G", 0, v3.Vec{}, 1)
	_, err := Joints(s, Spec{Key: "Chain1", Placeholders: ph})
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestLocals(t *testing.T) {
	s := memory.New()
	ph := placeholders(t, s, "G", 2, v3.Vec{X: 1}, 3)
	require.NoError(t, s.SetLocal(ph[1], scene.Rotate, v3.Vec{Z: 90}))

	locals, err := Locals(s, ph)
	require.NoError(t, err)
	require.Len(t, locals, 3)
	assert.InDelta(t, 1, locals[0].Translate.X, tol)
	assert.InDelta(t, 3, locals[1].Translate.X, tol)
	assert.InDelta(t, 90, locals[1].Rotate.Z, tol)
	// ph[2] sits 3 along world X from ph[1], which is local -Y after the turn.
	assert.InDelta(t, -3, locals[2].Translate.Y, tol)
	assert.InDelta(t, -90, locals[2].Rotate.Z, tol)
}

func TestFKControlsAreSerial(t *testing.T) {
	s := memory.New()
	ph := placeholders(t, s, "G", 5, v3.Vec{}, 2)
	spec := Spec{Key: "Chain1", Placeholders: ph, JointParent: group(t, s, "Joints"), ControlParent: group(t, s, "Controls")}
	set, err := Joints(s, spec)
	require.NoError(t, err)

	fk, err := FK(s, spec, set.FK, mirror.Identity)
	require.NoError(t, err)
	require.Len(t, fk.Ctrls, 5)
	require.Len(t, fk.Zeros, 5)

	p, err := s.Parent(fk.Zeros[0])
	require.NoError(t, err)
	assert.Equal(t, spec.ControlParent, p)
	for i := 1; i < 5; i++ {
		p, err := s.Parent(fk.Zeros[i])
		require.NoError(t, err)
		assert.Equal(t, fk.Ctrls[i-1], p)
	}
	assert.Equal(t, scene.NodeID("Chain1_Fk_Ctrl3"), fk.Ctrls[2])

	for i, c := range fk.Ctrls {
		assertPos(t, s, v3.Vec{X: 2 * float64(i)}, c)
		assertPos(t, s, v3.Vec{X: 2 * float64(i)}, set.FK[i])
	}

	require.NoError(t, s.SetLocal(fk.Ctrls[0], scene.Rotate, v3.Vec{Z: 90}))
	assertPos(t, s, v3.Vec{Y: 2}, set.FK[1])
	assertPos(t, s, v3.Vec{Y: 10}, End(set.FK))

	require.NoError(t, s.SetLocal(fk.Ctrls[2], scene.Scale, v3.Vec{X: 2, Y: 1, Z: 1}))
	sc, err := s.Local(set.FK[2], scene.Scale)
	require.NoError(t, err)
	assert.InDelta(t, 2, sc.X, tol)
}

func TestFKSignCorrectionOnMirroredSide(t *testing.T) {
	opts := guide.Options{Mirror: guide.MirrorX, Names: guide.NamePair{First: "L", Second: "R"}}
	right := mirror.Sides(opts)[1]
	sign := mirror.SignFor(right, mirror.RoleFK)

	s := memory.New()
	ph := placeholders(t, s, "R_G", 3, v3.Vec{X: -3, Y: 1}, -2)
	spec := Spec{Side: right, Key: "Chain1", Placeholders: ph, JointParent: group(t, s, "Joints"), ControlParent: group(t, s, "Controls")}
	set, err := Joints(s, spec)
	require.NoError(t, err)
	fk, err := FK(s, spec, set.FK, sign)
	require.NoError(t, err)
	assert.Equal(t, scene.NodeID("R_Chain1_Fk_Ctrl1"), fk.Ctrls[0])

	sc, err := s.Local(fk.Zeros[0], scene.Scale)
	require.NoError(t, err)
	assert.InDelta(t, -1, sc.X, tol)
	assert.InDelta(t, -1, sc.Y, tol)
	assert.InDelta(t, -1, sc.Z, tol)
	for _, z := range fk.Zeros[1:] {
		tr, err := s.Local(z, scene.Translate)
		require.NoError(t, err)
		assert.InDelta(t, 2, tr.X, tol, "%s", z)
	}

	for i, c := range fk.Ctrls {
		assertPos(t, s, v3.Vec{X: -3 - 2*float64(i), Y: 1}, c)
	}
	for i, j := range set.FK {
		assertPos(t, s, v3.Vec{X: -3 - 2*float64(i), Y: 1}, j)
	}
}

func TestFKRejectsMismatchedJoints(t *testing.T) {
	s := memory.New()
	ph := placeholders(t, s, "G", 3, v3.Vec{}, 1)
	_, err := FK(s, Spec{Key: "Chain1", Placeholders: ph}, ph[:2], mirror.Identity)
	assert.Error(t, err)
}

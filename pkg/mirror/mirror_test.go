package mirror

import (
	"fmt"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/proxy"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/scene/memory"
	"github.com/chazu/sinew/pkg/xform"
)

const tol = 1e-6

var spec = guide.Spec{MinSegments: 2}

func assertVec(t *testing.T, want, got v3.Vec, msg ...any) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, msg...)
	assert.InDelta(t, want.Y, got.Y, tol, msg...)
	assert.InDelta(t, want.Z, got.Z, tol, msg...)
}

func newGuide(t *testing.T, eng scene.Engine, instance int, parent scene.NodeID, opts guide.Options) *guide.Guide {
	t.Helper()
	if opts.Segments == 0 {
		opts.Segments = 2
	}
	if opts.Degree == 0 {
		opts.Degree = guide.Cubic
	}
	g := guide.New("Chain", instance, "", opts)
	require.NoError(t, g.Build(eng, parent, 2, spec))
	return g
}

func mirroredX(flip bool) guide.Options {
	return guide.Options{Mirror: guide.MirrorX, Names: guide.NamePair{First: "L", Second: "R"}, Flip: flip, Position: v3.Vec{X: 3, Y: 1}}
}

func TestSides(t *testing.T) {
	single := Sides(guide.Options{})
	require.Len(t, single, 1)
	assert.Equal(t, scene.NodeID("Chain1_Fk_Ctrl1"), single[0].Node("Chain1", "Fk", "Ctrl1"))
	assert.Equal(t, "single", single[0].Label())

	two := Sides(mirroredX(false))
	require.Len(t, two, 2)
	assert.False(t, two[0].Mirrored)
	assert.True(t, two[1].Mirrored)
	assert.Equal(t, scene.NodeID("L_Chain1_Fk_Ctrl1"), two[0].Node("Chain1", "Fk", "Ctrl1"))
	assert.Equal(t, scene.NodeID("R_Chain1_Static_Hook"), two[1].Node("Chain1", "Static", "Hook"))
	assert.Equal(t, [3]bool{true, false, false}, two[1].Axes)
	assert.Equal(t, xform.Unit, two[1].FlipScale())

	flipped := Sides(mirroredX(true))
	assert.Equal(t, v3.Vec{X: -1, Y: 1, Z: 1}, flipped[1].FlipScale())
	assert.Equal(t, xform.Unit, flipped[0].FlipScale())
}

func TestSignTable(t *testing.T) {
	sides := Sides(mirroredX(false))
	fk := SignFor(sides[1], RoleFK)
	assert.Equal(t, v3.Vec{X: -1, Y: -1, Z: -1}, fk.FirstZeroScale)
	assert.True(t, fk.NegateTranslate)
	assert.True(t, fk.NegateRotate)
	assert.True(t, fk.MaintainOffset)
	assert.Equal(t, v3.Vec{X: -2, Y: 1, Z: 0}, fk.Translate(v3.Vec{X: 2, Y: -1}))
	assert.Equal(t, v3.Vec{X: -3, Y: -4, Z: -5}, fk.ScaleFirst(v3.Vec{X: 3, Y: 4, Z: 5}))

	assert.Equal(t, Identity, SignFor(sides[0], RoleFK))
	assert.Equal(t, Identity, SignFor(sides[1], RoleIK))
	assert.Equal(t, Identity, SignFor(sides[1], RoleResult))
	assert.Equal(t, Identity, SignFor(Sides(mirroredX(true))[1], RoleFK))
	assert.Equal(t, Identity, SignFor(Side{}, RoleFK))
	assert.Equal(t, v3.Vec{X: 1, Y: 2, Z: 3}, Identity.Rotate(v3.Vec{X: 1, Y: 2, Z: 3}))
}

func TestExpandReflectsPosition(t *testing.T) {
	s := memory.New()
	g := newGuide(t, s, 1, scene.None, mirroredX(false))
	require.NoError(t, s.SetLocal(g.Locator(2), scene.Rotate, v3.Vec{Z: 30}))
	r := NewResolver(s, nil, 0.5, nil)

	exps, err := r.Expand(g)
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, g.Placeholders(), exps[0].Placeholders)
	assert.True(t, exps[0].Work.IsZero())
	assert.Equal(t, scene.NodeID("R_Chain1_Mirror_Grp"), exps[1].Work)
	require.Len(t, exps[1].Placeholders, 3)
	assert.Equal(t, scene.NodeID("R_Chain1_Guide_JointEnd"), exps[1].Placeholders[2])

	for i, id := range g.Placeholders() {
		orig, err := s.World(id)
		require.NoError(t, err)
		mir, err := s.World(exps[1].Placeholders[i])
		require.NoError(t, err)
		assertVec(t, v3.Vec{X: -orig.Translate.X, Y: orig.Translate.Y, Z: orig.Translate.Z}, mir.Translate, "%s", id)
		assert.True(t, xform.SameRotation(orig.Rotate, mir.Rotate, tol), "%s", id)
	}
	rot, err := s.Local(exps[1].Placeholders[1], scene.Rotate)
	require.NoError(t, err)
	assertVec(t, v3.Vec{Z: 30}, rot)
	sc, err := s.Local(exps[1].Work, scene.Scale)
	require.NoError(t, err)
	assertVec(t, xform.Unit, sc)

	require.NoError(t, r.Discard(exps))
	assert.False(t, s.Exists(exps[1].Work))
	assert.True(t, s.Exists(g.Root()))
}

func TestExpandFlipScalesGroup(t *testing.T) {
	s := memory.New()
	g := newGuide(t, s, 1, scene.None, mirroredX(true))
	require.NoError(t, s.SetLocal(g.Locator(2), scene.Rotate, v3.Vec{Y: 20}))
	r := NewResolver(s, nil, 0.5, nil)

	exps, err := r.Expand(g)
	require.NoError(t, err)
	require.Len(t, exps, 2)
	work := exps[1].Work
	assert.Equal(t, scene.NodeID("R_Chain1_MirrorFlip_Grp"), work)
	sc, err := s.Local(work, scene.Scale)
	require.NoError(t, err)
	assertVec(t, v3.Vec{X: -1, Y: 1, Z: 1}, sc)

	mirRoot := scene.NodeID("R_Chain1_Guide_Base")
	for _, c := range []scene.Channel{scene.Translate, scene.Rotate} {
		want, err := s.Local(g.Root(), c)
		require.NoError(t, err)
		got, err := s.Local(mirRoot, c)
		require.NoError(t, err)
		assertVec(t, want, got, "%s", c)
	}
	for i, id := range g.Placeholders() {
		for _, c := range []scene.Channel{scene.Translate, scene.Rotate} {
			want, err := s.Local(id, c)
			require.NoError(t, err)
			got, err := s.Local(exps[1].Placeholders[i], c)
			require.NoError(t, err)
			assertVec(t, want, got, "%s %s", id, c)
		}
		orig, err := s.World(id)
		require.NoError(t, err)
		mir, err := s.World(exps[1].Placeholders[i])
		require.NoError(t, err)
		assertVec(t, v3.Vec{X: -orig.Translate.X, Y: orig.Translate.Y, Z: orig.Translate.Z}, mir.Translate, "%s", id)
	}
}

func TestExpandEveryAxis(t *testing.T) {
	axes := []guide.MirrorAxis{
		guide.MirrorX, guide.MirrorY, guide.MirrorZ,
		guide.MirrorXY, guide.MirrorXZ, guide.MirrorYZ, guide.MirrorXYZ,
	}
	for _, axis := range axes {
		for _, flip := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s flip=%v", axis, flip), func(t *testing.T) {
				s := memory.New()
				g := newGuide(t, s, 1, scene.None, guide.Options{
					Mirror:   axis,
					Names:    guide.NamePair{First: "A", Second: "B"},
					Flip:     flip,
					Position: v3.Vec{X: 3, Y: 1, Z: 2},
				})
				require.NoError(t, s.SetLocal(g.Locator(2), scene.Rotate, v3.Vec{X: 10, Y: 20, Z: 30}))
				exps, err := NewResolver(s, nil, 0.5, nil).Expand(g)
				require.NoError(t, err)
				require.Len(t, exps, 2)

				reflected := axis.Axes()
				sc, err := s.Local(exps[1].Work, scene.Scale)
				require.NoError(t, err)
				if flip {
					assertVec(t, xform.ReflectScale(reflected), sc)
				} else {
					assertVec(t, xform.Unit, sc)
				}

				for i, id := range g.Placeholders() {
					mid := exps[1].Placeholders[i]
					orig, err := s.World(id)
					require.NoError(t, err)
					mir, err := s.World(mid)
					require.NoError(t, err)
					assertVec(t, xform.Reflect(orig.Translate, reflected), mir.Translate, "%s", id)
					if !flip {
						assert.True(t, xform.SameRotation(orig.Rotate, mir.Rotate, tol), "%s %v vs %v", id, orig.Rotate, mir.Rotate)
						continue
					}
					want, err := s.Local(id, scene.Rotate)
					require.NoError(t, err)
					got, err := s.Local(mid, scene.Rotate)
					require.NoError(t, err)
					assertVec(t, want, got, "%s rotate", id)
				}
			})
		}
	}
}

func TestExpandCleansUpOnFailure(t *testing.T) {
	s := memory.New()
	g := newGuide(t, s, 1, scene.None, mirroredX(false))
	_, err := s.CreateTransform("R_Chain1_Guide_Base", scene.None)
	require.NoError(t, err)
	before := s.Count()

	_, err = NewResolver(s, nil, 0.5, nil).Expand(g)
	require.ErrorIs(t, err, scene.ErrNameTaken)
	assert.False(t, s.Exists("R_Chain1_Mirror_Grp"))
	assert.Equal(t, before, s.Count())
}

func TestExpandSingleSide(t *testing.T) {
	s := memory.New()
	g := newGuide(t, s, 1, scene.None, guide.Options{})
	exps, err := NewResolver(s, nil, 0.5, nil).Expand(g)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, "", exps[0].Side.Name)
}

func TestInheritFromMirroredAncestor(t *testing.T) {
	s := memory.New()
	parent := newGuide(t, s, 1, scene.None, mirroredX(true))
	child := newGuide(t, s, 2, parent.End(), guide.Options{Mirror: guide.MirrorY, Names: guide.NamePair{First: "Up", Second: "Dn"}})
	r := NewResolver(s, nil, 0.5, nil)

	anc, err := r.Inherit(child)
	require.NoError(t, err)
	assert.Equal(t, parent.Root(), anc)
	assert.Equal(t, guide.MirrorX, child.Options.Mirror)
	assert.Equal(t, guide.NamePair{First: "L", Second: "R"}, child.Options.Names)
	assert.True(t, child.Options.Flip)
	assert.True(t, child.Locked(s))
	assert.ErrorIs(t, child.SetMirror(s, guide.MirrorZ, guide.NamePair{First: "A", Second: "B"}, false), guide.ErrMirrorLocked)

	require.NoError(t, parent.SetMirror(s, guide.MirrorOff, guide.NamePair{}, false))
	anc, err = r.Inherit(child)
	require.NoError(t, err)
	assert.True(t, anc.IsZero())
	assert.False(t, child.Locked(s))
}

func TestInheritSkipsUnmirroredAncestors(t *testing.T) {
	s := memory.New()
	top := newGuide(t, s, 1, scene.None, mirroredX(false))
	mid := newGuide(t, s, 2, top.End(), guide.Options{})
	leaf := newGuide(t, s, 3, mid.End(), guide.Options{})
	r := NewResolver(s, nil, 0.5, nil)

	anc, err := r.Inherit(leaf)
	require.NoError(t, err)
	assert.Equal(t, top.Root(), anc)
	assert.Equal(t, guide.MirrorX, leaf.Options.Mirror)
}

func TestPreviewFollowsGuide(t *testing.T) {
	s := memory.New()
	g := newGuide(t, s, 1, scene.None, mirroredX(false))
	r := NewResolver(s, proxy.New(0), 0.5, nil)

	p, err := r.Refresh(g)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, s.Exists("Chain1_MirrorPreview_RadiusCtrl"))
	assert.True(t, s.Exists("Chain1_MirrorPreview_JointEnd"))
	sh, err := s.Shape("Chain1_MirrorPreview_JointEnd")
	require.NoError(t, err)
	assert.Equal(t, proxy.ShapeKind, sh.Kind)

	check := func() {
		t.Helper()
		orig, err := s.World(g.End())
		require.NoError(t, err)
		mir, err := s.World("Chain1_MirrorPreview_JointEnd")
		require.NoError(t, err)
		assertVec(t, xform.Reflect(orig.Translate, [3]bool{true, false, false}), mir.Translate)
	}
	check()
	require.NoError(t, s.SetLocal(g.Root(), scene.Translate, v3.Vec{X: 5, Y: 2, Z: 1}))
	require.NoError(t, s.SetLocal(g.Locator(2), scene.Translate, v3.Vec{X: 1, Y: 1}))
	check()

	same, err := r.Refresh(g)
	require.NoError(t, err)
	assert.Same(t, p, same)

	require.NoError(t, g.Resize(s, 4, 2, spec))
	rebuilt, err := r.Refresh(g)
	require.NoError(t, err)
	assert.NotSame(t, p, rebuilt)
	assert.True(t, s.Exists("Chain1_MirrorPreview_JointLoc4"))

	require.NoError(t, g.SetMirror(s, guide.MirrorOff, guide.NamePair{}, false))
	gone, err := r.Refresh(g)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, s.Find("MirrorPreview"))
	_, ok := r.Preview(g)
	assert.False(t, ok)
}

func TestPreviewRequiresDecomposition(t *testing.T) {
	s := memory.New(memory.WithoutCapability(scene.CapDecomposeMatrix))
	g := newGuide(t, s, 1, scene.None, mirroredX(false))
	before := s.Count()

	_, err := NewResolver(s, nil, 0.5, nil).Refresh(g)
	require.ErrorIs(t, err, scene.ErrCapability)
	var capErr *scene.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, scene.CapDecomposeMatrix, capErr.Capability)
	assert.Equal(t, before, s.Count())
}

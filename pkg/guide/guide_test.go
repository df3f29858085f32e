package guide

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/scene/memory"
)

var chainSpec = Spec{MinSegments: 2, Flags: []string{"articulation", "corrective"}, Refs: []string{"parentHook"}}

func build(t *testing.T, eng scene.Engine, opts Options) *Guide {
	t.Helper()
	g := New("Chain", 1, "", opts)
	require.NoError(t, g.Build(eng, scene.None, 2, chainSpec))
	return g
}

func TestOptionsValidate(t *testing.T) {
	err := Options{Segments: 1, Degree: 2, Mirror: MirrorX, Flags: map[string]bool{"dynamic": true}}.Validate(chainSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSegments)
	assert.ErrorIs(t, err, ErrDegree)
	assert.ErrorIs(t, err, ErrNames)
	assert.ErrorIs(t, err, ErrFlag)

	ok := Options{Segments: 3, Degree: Cubic, Mirror: MirrorX, Names: NamePair{"L", "R"}}
	assert.NoError(t, ok.Validate(chainSpec))
}

func TestParseMirrorAxis(t *testing.T) {
	for in, want := range map[string]MirrorAxis{"": MirrorOff, "off": MirrorOff, "x": MirrorX, "YZ": MirrorYZ, "xyz": MirrorXYZ} {
		got, err := ParseMirrorAxis(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMirrorAxis("w")
	assert.Error(t, err)
	assert.Equal(t, [3]bool{true, false, true}, MirrorXZ.Axes())
}

func TestParseNamePair(t *testing.T) {
	for _, in := range []string{"L R", "L_R", "L/R", "L,R"} {
		p, err := ParseNamePair(in)
		require.NoError(t, err, in)
		assert.Equal(t, NamePair{"L", "R"}, p)
	}
	_, err := ParseNamePair("L")
	assert.Error(t, err)
}

func TestBuildCreatesPlaceholders(t *testing.T) {
	s := memory.New()
	g := build(t, s, Options{Segments: 3, Degree: Cubic, Position: v3.Vec{Y: 1}})

	assert.Equal(t, "Chain1_", g.Prefix())
	assert.Equal(t, scene.NodeID("Chain1_Base"), g.Root())
	assert.True(t, IsRoot(s, g.Root()))

	ph := g.Placeholders()
	require.Len(t, ph, 4)
	assert.Equal(t, scene.NodeID("Chain1_JointLoc1"), ph[0])
	assert.Equal(t, scene.NodeID("Chain1_JointEnd"), ph[3])
	for i, id := range ph {
		w, err := s.World(id)
		require.NoError(t, err)
		assert.InDelta(t, float64(i)*2, w.Translate.X, 1e-9, id)
		assert.InDelta(t, 1, w.Translate.Y, 1e-9, id)
	}

	assert.True(t, ConstructionOnly(s, g.Radius()))
	assert.False(t, ConstructionOnly(s, g.End()))

	err := New("Chain", 1, "", Options{Segments: 3, Degree: Cubic}).Build(s, scene.None, 2, chainSpec)
	assert.ErrorIs(t, err, scene.ErrNameTaken)
}

func TestLoadRoundTripsAttributes(t *testing.T) {
	s := memory.New()
	g := build(t, s, Options{
		Segments: 4, Degree: Linear, Mirror: MirrorX, Names: NamePair{"L", "R"}, Flip: true,
		Flags: map[string]bool{"articulation": true},
		Refs:  map[string]string{"parentHook": "Spine1"},
	})

	got, err := Load(s, g.Root(), chainSpec)
	require.NoError(t, err)
	assert.Equal(t, "Chain", got.Type)
	assert.Equal(t, 1, got.Instance)
	assert.Equal(t, "Chain1", got.Name)
	assert.Equal(t, 4, got.Options.Segments)
	assert.Equal(t, Linear, got.Options.Degree)
	assert.Equal(t, MirrorX, got.Options.Mirror)
	assert.Equal(t, NamePair{"L", "R"}, got.Options.Names)
	assert.True(t, got.Options.Flip)
	assert.True(t, got.Options.Flag("articulation"))
	assert.False(t, got.Options.Flag("corrective"))
	assert.Equal(t, "Spine1", got.Options.Refs["parentHook"])

	_, err = Load(s, g.End(), chainSpec)
	assert.ErrorIs(t, err, ErrNotGuide)
}

func TestResizeIsReversible(t *testing.T) {
	s := memory.New()
	g := build(t, s, Options{Segments: 3, Degree: Cubic})
	require.NoError(t, s.SetLocal(g.End(), scene.Translate, v3.Vec{X: 3.5}))
	before := s.Count()

	require.NoError(t, g.Resize(s, 6, 2, chainSpec))
	assert.Len(t, g.Placeholders(), 7)
	parent, err := s.Parent(g.End())
	require.NoError(t, err)
	assert.Equal(t, g.Locator(6), parent)
	n, err := s.Attr(scene.P(g.Root(), AttrSegments))
	require.NoError(t, err)
	assert.Equal(t, 6.0, n)

	require.NoError(t, g.Resize(s, 3, 2, chainSpec))
	assert.Equal(t, before, s.Count())
	assert.False(t, s.Exists(g.Locator(4)))
	parent, err = s.Parent(g.End())
	require.NoError(t, err)
	assert.Equal(t, g.Locator(3), parent)
	end, err := s.Local(g.End(), scene.Translate)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, end.X, 1e-9)

	assert.ErrorIs(t, g.Resize(s, 1, 2, chainSpec), ErrSegments)
}

func TestShrinkKeepsForeignChildren(t *testing.T) {
	s := memory.New()
	g := build(t, s, Options{Segments: 4, Degree: Cubic})
	extra, err := s.CreateTransform("extra", g.Locator(4))
	require.NoError(t, err)

	require.NoError(t, g.Resize(s, 2, 2, chainSpec))
	parent, err := s.Parent(extra)
	require.NoError(t, err)
	assert.Equal(t, g.Locator(2), parent)
}

func TestLockedMirrorRejectsEdits(t *testing.T) {
	s := memory.New()
	g := build(t, s, Options{Segments: 2, Degree: Cubic})

	require.NoError(t, g.SetMirror(s, MirrorY, NamePair{"Up", "Dn"}, false))
	assert.Equal(t, MirrorY, g.Options.Mirror)

	require.NoError(t, g.Lock(s, MirrorX, NamePair{"L", "R"}, true))
	assert.True(t, g.Locked(s))
	assert.ErrorIs(t, g.SetMirror(s, MirrorZ, NamePair{"A", "B"}, false), ErrMirrorLocked)

	require.NoError(t, g.Sync(s, chainSpec))
	assert.Equal(t, MirrorX, g.Options.Mirror)
	assert.True(t, g.Options.Flip)

	require.NoError(t, g.Unlock(s))
	assert.NoError(t, g.SetMirror(s, MirrorOff, NamePair{}, false))
}

func TestSetFlagAndRef(t *testing.T) {
	s := memory.New()
	g := build(t, s, Options{Segments: 2, Degree: Cubic})

	require.NoError(t, g.SetFlag(s, "corrective", true))
	assert.ErrorIs(t, g.SetFlag(s, "dynamic", true), ErrFlag)
	require.NoError(t, g.SetRef(s, "parentHook", "Spine1"))
	require.NoError(t, g.SetRef(s, "parentHook", "Spine2"))

	got, err := Load(s, g.Root(), chainSpec)
	require.NoError(t, err)
	assert.True(t, got.Options.Flag("corrective"))
	assert.Equal(t, "Spine2", got.Options.Refs["parentHook"])
}

func TestDeleteDetachesNestedGuides(t *testing.T) {
	s := memory.New()
	parent := build(t, s, Options{Segments: 2, Degree: Cubic, Position: v3.Vec{Y: 3}})
	child := New("Chain", 2, "", Options{Segments: 2, Degree: Cubic, Position: v3.Vec{X: 4, Y: 3}})
	require.NoError(t, child.Build(s, parent.End(), 1, chainSpec))

	nested, err := parent.Nested(s)
	require.NoError(t, err)
	assert.Equal(t, []scene.NodeID{child.Root()}, nested)

	require.NoError(t, parent.Delete(s))
	assert.False(t, s.Exists(parent.Root()))
	require.True(t, s.Exists(child.Root()))

	p, err := s.Parent(child.Root())
	require.NoError(t, err)
	assert.True(t, p.IsZero())
	w, err := s.World(child.Root())
	require.NoError(t, err)
	assert.InDelta(t, 4, w.Translate.X, 1e-9)
	assert.InDelta(t, 3, w.Translate.Y, 1e-9)
}

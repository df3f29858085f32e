// Package guide creates and edits the placeholder skeletons artists place
// before a module is compiled into a rig. A guide lives in the scene under a
// per-instance name prefix; all of its configuration is persisted as custom
// attributes on its root so live edits survive until the build reads them
// back.
package guide

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/scene"
)

// Root attribute names.
const (
	AttrModuleType   = "moduleType"
	AttrCustomName   = "customName"
	AttrInstance     = "moduleInstance"
	AttrSegments     = "nSegments"
	AttrDegree       = "degree"
	AttrMirrorAxis   = "mirrorAxis"
	AttrMirrorName   = "mirrorName"
	AttrFlip         = "flip"
	AttrMirrorLocked = "mirrorLocked"
	AttrParent       = "parentModule"
	AttrUseUIValues  = "useUIValues"

	// AttrConstructionOnly tags nodes that exist only to edit the guide.
	AttrConstructionOnly = "constructionOnly"

	// RefPrefix prefixes cross-module reference attributes.
	RefPrefix = "ref_"
)

// Shape kinds used on guide nodes.
const (
	ShapeBase    = "circle"
	ShapeLocator = "locator"
	ShapeEnd     = "sphere"
)

var (
	ErrMirrorLocked = errors.New("guide: mirror settings are locked by an ancestor module")
	ErrNotGuide     = errors.New("guide: node is not a guide root")
)

// Guide is one placeholder skeleton and its configuration.
type Guide struct {
	Type     string
	Instance int
	Name     string
	Options  Options
}

// New returns an unbuilt guide.
func New(tag string, instance int, name string, opts Options) *Guide {
	if name == "" {
		name = fmt.Sprintf("%s%d", tag, instance)
	}
	return &Guide{Type: tag, Instance: instance, Name: name, Options: opts.Clone()}
}

// Key is the module instance key, e.g. Chain1.
func (g *Guide) Key() string { return fmt.Sprintf("%s%d", g.Type, g.Instance) }

// Prefix is the namespace prefix of every guide node.
func (g *Guide) Prefix() string { return g.Key() + "_" }

func (g *Guide) node(suffix string) scene.NodeID { return scene.NodeID(g.Prefix() + suffix) }

// Root returns the guide's root anchor.
func (g *Guide) Root() scene.NodeID { return g.node("Base") }

// Locator returns segment locator i, counted from 1.
func (g *Guide) Locator(i int) scene.NodeID { return g.node(fmt.Sprintf("JointLoc%d", i)) }

// End returns the end locator.
func (g *Guide) End() scene.NodeID { return g.node("JointEnd") }

// Radius returns the construction-only radius control.
func (g *Guide) Radius() scene.NodeID { return g.node("RadiusCtrl") }

// Placeholders returns the segment locators followed by the end locator.
func (g *Guide) Placeholders() []scene.NodeID {
	out := make([]scene.NodeID, 0, g.Options.Segments+1)
	for i := 1; i <= g.Options.Segments; i++ {
		out = append(out, g.Locator(i))
	}
	return append(out, g.End())
}

// IsRoot reports whether id carries guide root attributes.
func IsRoot(eng scene.Engine, id scene.NodeID) bool {
	return eng.HasAttr(scene.P(id, AttrModuleType))
}

// Build creates the guide nodes under parent. Locators are spaced along +X.
func (g *Guide) Build(eng scene.Engine, parent scene.NodeID, spacing float64, spec Spec) error {
	if err := g.Options.Validate(spec); err != nil {
		return err
	}
	if eng.Exists(g.Root()) {
		return fmt.Errorf("guide %s: %w", g.Key(), scene.ErrNameTaken)
	}
	root, err := eng.CreateTransform(string(g.Root()), parent)
	if err != nil {
		return err
	}
	// Under a parent, a zero position means "at the parent".
	if parent.IsZero() || g.Options.Position == (v3.Vec{}) {
		err = eng.SetLocal(root, scene.Translate, g.Options.Position)
	} else {
		err = eng.SetWorld(root, scene.Decomposed{Translate: g.Options.Position, Scale: v3.Vec{X: 1, Y: 1, Z: 1}})
	}
	if err != nil {
		return err
	}
	if err := eng.SetShape(root, scene.Shape{Kind: ShapeBase}); err != nil {
		return err
	}
	if err := g.addAttrs(eng, spec); err != nil {
		return fmt.Errorf("guide %s: attributes: %w", g.Key(), err)
	}

	radius, err := eng.CreateTransform(string(g.Radius()), root)
	if err != nil {
		return err
	}
	if err := eng.AddAttr(radius, scene.AttrSpec{Name: AttrConstructionOnly, Type: scene.AttrBool, Default: 1}); err != nil {
		return err
	}
	if err := eng.SetLocal(radius, scene.Translate, v3.Vec{Y: spacing / 2}); err != nil {
		return err
	}
	if err := eng.SetShape(radius, scene.Shape{Kind: ShapeBase}); err != nil {
		return err
	}

	prev := root
	for i := 1; i <= g.Options.Segments; i++ {
		offset := v3.Vec{X: spacing}
		if i == 1 {
			offset = v3.Vec{}
		}
		loc, err := g.createLocator(eng, g.Locator(i), prev, offset, ShapeLocator)
		if err != nil {
			return err
		}
		prev = loc
	}
	_, err = g.createLocator(eng, g.End(), prev, v3.Vec{X: spacing}, ShapeEnd)
	return err
}

func (g *Guide) createLocator(eng scene.Engine, id, parent scene.NodeID, offset v3.Vec, shape string) (scene.NodeID, error) {
	loc, err := eng.CreateTransform(string(id), parent)
	if err != nil {
		return scene.None, err
	}
	if err := eng.SetLocal(loc, scene.Translate, offset); err != nil {
		return scene.None, err
	}
	return loc, eng.SetShape(loc, scene.Shape{Kind: shape})
}

func (g *Guide) addAttrs(eng scene.Engine, spec Spec) error {
	root := g.Root()
	o := g.Options
	specs := []scene.AttrSpec{
		{Name: AttrModuleType, Type: scene.AttrString, Text: g.Type},
		{Name: AttrCustomName, Type: scene.AttrString, Text: g.Name},
		{Name: AttrInstance, Type: scene.AttrInt, Default: float64(g.Instance)},
		{Name: AttrSegments, Type: scene.AttrInt, Default: float64(o.Segments), Min: scene.Bound(float64(spec.MinSegments))},
		{Name: AttrDegree, Type: scene.AttrInt, Default: float64(o.Degree), Min: scene.Bound(Linear), Max: scene.Bound(Cubic)},
		{Name: AttrMirrorAxis, Type: scene.AttrEnum, Enum: MirrorAxisNames, Default: float64(o.Mirror)},
		{Name: AttrMirrorName, Type: scene.AttrString, Text: o.Names.String()},
		{Name: AttrFlip, Type: scene.AttrBool, Default: boolValue(o.Flip)},
		{Name: AttrMirrorLocked, Type: scene.AttrBool},
		{Name: AttrParent, Type: scene.AttrString, Text: o.Parent},
		{Name: AttrUseUIValues, Type: scene.AttrBool, Default: boolValue(o.UseUIValues)},
	}
	for _, f := range spec.Flags {
		specs = append(specs, scene.AttrSpec{Name: f, Type: scene.AttrBool, Default: boolValue(o.Flag(f))})
	}
	for _, s := range specs {
		if err := eng.AddAttr(root, s); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(o.Refs) {
		if err := eng.AddAttr(root, scene.AttrSpec{Name: RefPrefix + name, Type: scene.AttrString, Text: o.Refs[name]}); err != nil {
			return err
		}
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func refNames(spec Spec, known map[string]string) []string {
	names := append([]string(nil), spec.Refs...)
	for _, k := range sortedKeys(known) {
		if !slices.Contains(names, k) {
			names = append(names, k)
		}
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// Reading back
// ---------------------------------------------------------------------------

// Load reconstructs a guide from its root node.
func Load(eng scene.Engine, root scene.NodeID, spec Spec) (*Guide, error) {
	if !IsRoot(eng, root) {
		return nil, fmt.Errorf("%w: %s", ErrNotGuide, root)
	}
	tag, err := eng.String(scene.P(root, AttrModuleType))
	if err != nil {
		return nil, err
	}
	inst, err := eng.Attr(scene.P(root, AttrInstance))
	if err != nil {
		return nil, err
	}
	g := &Guide{Type: tag, Instance: int(inst)}
	if g.Root() != root {
		return nil, fmt.Errorf("%w: %s does not match instance %s", ErrNotGuide, root, g.Key())
	}
	if err := g.Sync(eng, spec); err != nil {
		return nil, err
	}
	return g, nil
}

// Sync re-reads the configuration attributes into g.Options.
func (g *Guide) Sync(eng scene.Engine, spec Spec) error {
	root := g.Root()
	r := attrReader{eng: eng, root: root}
	name := r.text(AttrCustomName)
	o := Options{
		Segments:    int(r.num(AttrSegments)),
		Degree:      int(r.num(AttrDegree)),
		Mirror:      MirrorAxis(r.num(AttrMirrorAxis)),
		Flip:        r.num(AttrFlip) != 0,
		Parent:      r.text(AttrParent),
		UseUIValues: r.num(AttrUseUIValues) != 0,
		Flags:       map[string]bool{},
		Refs:        map[string]string{},
	}
	if names := r.text(AttrMirrorName); names != "" && r.err == nil {
		pair, err := ParseNamePair(names)
		if err != nil {
			return err
		}
		o.Names = pair
	}
	for _, f := range spec.Flags {
		if eng.HasAttr(scene.P(root, f)) {
			o.Flags[f] = r.num(f) != 0
		}
	}
	for _, name := range refNames(spec, g.Options.Refs) {
		if eng.HasAttr(scene.P(root, RefPrefix+name)) {
			o.Refs[name] = r.text(RefPrefix + name)
		}
	}
	if r.err != nil {
		return fmt.Errorf("guide %s: %w", g.Key(), r.err)
	}
	w, err := eng.World(root)
	if err != nil {
		return err
	}
	o.Position = w.Translate
	g.Name = name
	g.Options = o
	return nil
}

type attrReader struct {
	eng  scene.Engine
	root scene.NodeID
	err  error
}

func (r *attrReader) num(name string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.eng.Attr(scene.P(r.root, name))
	r.err = err
	return v
}

func (r *attrReader) text(name string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.eng.String(scene.P(r.root, name))
	r.err = err
	return v
}

// Locked reports whether an ancestor module has taken over the mirror
// settings.
func (g *Guide) Locked(eng scene.Engine) bool {
	v, err := eng.Attr(scene.P(g.Root(), AttrMirrorLocked))
	return err == nil && v != 0
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

// SetMirror changes the mirror configuration. Locked guides reject edits.
func (g *Guide) SetMirror(eng scene.Engine, axis MirrorAxis, names NamePair, flip bool) error {
	if g.Locked(eng) {
		return fmt.Errorf("%w: %s", ErrMirrorLocked, g.Key())
	}
	return g.writeMirror(eng, axis, names, flip)
}

// Lock forces the mirror configuration and disables the guide's own mirror
// control.
func (g *Guide) Lock(eng scene.Engine, axis MirrorAxis, names NamePair, flip bool) error {
	if err := g.writeMirror(eng, axis, names, flip); err != nil {
		return err
	}
	return eng.SetAttr(scene.P(g.Root(), AttrMirrorLocked), 1)
}

// Unlock re-enables the guide's own mirror control.
func (g *Guide) Unlock(eng scene.Engine) error {
	return eng.SetAttr(scene.P(g.Root(), AttrMirrorLocked), 0)
}

func (g *Guide) writeMirror(eng scene.Engine, axis MirrorAxis, names NamePair, flip bool) error {
	root := g.Root()
	if axis.Enabled() && (names.First == "" || names.Second == "" || names.First == names.Second) {
		return fmt.Errorf("%w: %q", ErrNames, names.String())
	}
	if err := eng.SetAttr(scene.P(root, AttrMirrorAxis), float64(axis)); err != nil {
		return err
	}
	if err := eng.SetString(scene.P(root, AttrMirrorName), names.String()); err != nil {
		return err
	}
	if err := eng.SetAttr(scene.P(root, AttrFlip), boolValue(flip)); err != nil {
		return err
	}
	g.Options.Mirror, g.Options.Names, g.Options.Flip = axis, names, flip
	return nil
}

// SetFlag sets a feature flag attribute.
func (g *Guide) SetFlag(eng scene.Engine, name string, on bool) error {
	if err := eng.SetAttr(scene.P(g.Root(), name), boolValue(on)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrFlag, name, err)
	}
	if g.Options.Flags == nil {
		g.Options.Flags = map[string]bool{}
	}
	g.Options.Flags[name] = on
	return nil
}

// SetRef sets a cross-module reference, creating the attribute on first use.
func (g *Guide) SetRef(eng scene.Engine, name, value string) error {
	p := scene.P(g.Root(), RefPrefix+name)
	if !eng.HasAttr(p) {
		if err := eng.AddAttr(g.Root(), scene.AttrSpec{Name: p.Attr, Type: scene.AttrString}); err != nil {
			return err
		}
	}
	if err := eng.SetString(p, value); err != nil {
		return err
	}
	if g.Options.Refs == nil {
		g.Options.Refs = map[string]string{}
	}
	g.Options.Refs[name] = value
	return nil
}

// Resize grows or shrinks the locator chain to n segments. Growing appends
// locators after the last one; shrinking removes the excess. Either way the
// end locator keeps its local offset under the new last locator.
func (g *Guide) Resize(eng scene.Engine, n int, spacing float64, spec Spec) error {
	if n < spec.MinSegments || (spec.MaxSegments > 0 && n > spec.MaxSegments) {
		return fmt.Errorf("%w: %d (min %d)", ErrSegments, n, spec.MinSegments)
	}
	cur := g.Options.Segments
	switch {
	case n == cur:
		return nil
	case n > cur:
		for i := cur + 1; i <= n; i++ {
			if _, err := g.createLocator(eng, g.Locator(i), g.Locator(i-1), v3.Vec{X: spacing}, ShapeLocator); err != nil {
				return err
			}
		}
		if err := eng.SetParent(g.End(), g.Locator(n)); err != nil {
			return err
		}
	default:
		if err := eng.SetParent(g.End(), g.Locator(n)); err != nil {
			return err
		}
		// Everything else hanging under the removed locators moves too.
		for i := cur; i > n; i-- {
			kids, err := eng.Children(g.Locator(i))
			if err != nil {
				return err
			}
			for _, k := range kids {
				if k == g.Locator(i+1) {
					continue
				}
				if err := eng.SetParent(k, g.Locator(n)); err != nil {
					return err
				}
			}
		}
		if err := eng.DeleteSubtree(g.Locator(n + 1)); err != nil {
			return err
		}
	}
	if err := eng.SetAttr(scene.P(g.Root(), AttrSegments), float64(n)); err != nil {
		return err
	}
	g.Options.Segments = n
	return nil
}

// Nested returns the roots of other guides parented somewhere below this one.
func (g *Guide) Nested(eng scene.Engine) ([]scene.NodeID, error) {
	desc, err := scene.Descendants(eng, g.Root())
	if err != nil {
		return nil, err
	}
	var out []scene.NodeID
	for _, d := range desc {
		if IsRoot(eng, d) && !isUnder(eng, d, out) {
			out = append(out, d)
		}
	}
	return out, nil
}

func isUnder(eng scene.Engine, id scene.NodeID, roots []scene.NodeID) bool {
	for cur, err := eng.Parent(id); err == nil && !cur.IsZero(); cur, err = eng.Parent(cur) {
		for _, r := range roots {
			if cur == r {
				return true
			}
		}
	}
	return false
}

// Delete removes the guide. Guides of other modules nested below it are
// first moved to the scene root, keeping their world placement.
func (g *Guide) Delete(eng scene.Engine) error {
	nested, err := g.Nested(eng)
	if err != nil {
		return err
	}
	for _, n := range nested {
		w, err := eng.World(n)
		if err != nil {
			return err
		}
		if err := eng.SetParent(n, scene.None); err != nil {
			return err
		}
		if err := eng.SetWorld(n, w); err != nil {
			return err
		}
	}
	return eng.DeleteSubtree(g.Root())
}

// ConstructionOnly reports whether id is tagged as an editing aid.
func ConstructionOnly(eng scene.Engine, id scene.NodeID) bool {
	v, err := eng.Attr(scene.P(id, AttrConstructionOnly))
	return err == nil && v != 0
}

// Describe renders a one-line summary used in logs.
func (g *Guide) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q segments=%d degree=%d mirror=%s", g.Key(), g.Name, g.Options.Segments, g.Options.Degree, g.Options.Mirror)
	if g.Options.Mirror.Enabled() {
		fmt.Fprintf(&b, " names=%q flip=%t", g.Options.Names.String(), g.Options.Flip)
	}
	return b.String()
}

// Package memory implements scene.Engine as an in-memory node store with
// pull-based evaluation of connections, utility nodes and constraints. It is
// the reference backend used by the CLI and by every rig package test.
package memory

import (
	"fmt"
	"sort"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"

	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

// Compile-time interface check.
var _ scene.Engine = (*Scene)(nil)

// attr is one attribute slot on a node.
type attr struct {
	spec    scene.AttrSpec
	value   float64
	text    string
	input   *scene.Plug // incoming connection, if any
	output  bool        // computed by the owning node
	touched bool        // set or connected at least once (plusMinusAverage)
}

// node is a scene node of any kind.
type node struct {
	id       scene.NodeID
	kind     scene.NodeKind
	parent   scene.NodeID
	children []scene.NodeID
	attrs    map[string]*attr
	order    []string
	shape    scene.Shape

	utility    scene.UtilityKind
	constraint *constraintData
	curve      *curveData
	solver     *solverData
}

type solverData struct {
	kind              scene.SolverKind
	start, end, curve scene.NodeID
}

// Scene is the in-memory engine. It is not safe for concurrent use; the
// pipeline is single threaded by contract.
type Scene struct {
	nodes map[scene.NodeID]*node
	roots []scene.NodeID
	caps  map[string]bool

	cache      map[scene.Plug]float64
	worldCache map[scene.NodeID]worldEntry
	evaluating map[scene.Plug]bool
	worldEval  map[scene.NodeID]bool
	solved     map[scene.NodeID]solution
}

// Option configures a Scene.
type Option func(*Scene)

// WithoutCapability makes QueryCapability report name as unavailable and
// rejects utility nodes depending on it.
func WithoutCapability(name string) Option {
	return func(s *Scene) { s.caps[name] = false }
}

// New returns an empty scene with every capability available.
func New(opts ...Option) *Scene {
	s := &Scene{
		nodes: make(map[scene.NodeID]*node),
		caps: map[string]bool{
			scene.CapDecomposeMatrix: true,
			scene.CapQuatToEuler:     true,
			scene.CapSplineIK:        true,
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.invalidate()
	return s
}

// invalidate drops every cached evaluation. Called on any mutation.
func (s *Scene) invalidate() {
	s.cache = make(map[scene.Plug]float64)
	s.worldCache = make(map[scene.NodeID]worldEntry)
	s.evaluating = make(map[scene.Plug]bool)
	s.worldEval = make(map[scene.NodeID]bool)
	s.solved = make(map[scene.NodeID]solution)
}

// QueryCapability implements scene.Engine.
func (s *Scene) QueryCapability(name string) bool {
	return s.caps[name]
}

// Count returns the number of nodes in the scene.
func (s *Scene) Count() int { return len(s.nodes) }

// Nodes returns all node IDs sorted by name.
func (s *Scene) Nodes() []scene.NodeID {
	ids := lo.Keys(s.nodes)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Roots returns the nodes parented to the scene root, in creation order.
func (s *Scene) Roots() []scene.NodeID {
	return append([]scene.NodeID(nil), s.roots...)
}

// Find returns the sorted IDs whose name contains substr.
func (s *Scene) Find(substr string) []scene.NodeID {
	return lo.Filter(s.Nodes(), func(id scene.NodeID, _ int) bool {
		return strings.Contains(string(id), substr)
	})
}

// ---------------------------------------------------------------------------
// Node creation
// ---------------------------------------------------------------------------

func (s *Scene) get(id scene.NodeID) (*node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %q", scene.ErrNotFound, id)
	}
	return n, nil
}

func (s *Scene) newNode(name string, kind scene.NodeKind, parent scene.NodeID) (*node, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty node name", scene.ErrInvalid)
	}
	id := scene.NodeID(name)
	if _, exists := s.nodes[id]; exists {
		return nil, fmt.Errorf("%w: %q", scene.ErrNameTaken, name)
	}
	if !parent.IsZero() {
		p, err := s.get(parent)
		if err != nil {
			return nil, err
		}
		if !p.kind.IsDag() {
			return nil, fmt.Errorf("%w: parent %q is a %s node", scene.ErrInvalid, parent, p.kind)
		}
	}
	n := &node{id: id, kind: kind, attrs: make(map[string]*attr)}
	if kind.IsDag() {
		addTransformAttrs(n)
	}
	s.nodes[id] = n
	if kind.IsDag() {
		s.attach(n, parent)
	}
	s.invalidate()
	return n, nil
}

func addTransformAttrs(n *node) {
	for _, c := range scene.Channels {
		def := 0.0
		if c == scene.Scale {
			def = 1
		}
		for _, a := range c.Attrs() {
			n.addBuiltin(a, def)
		}
	}
	n.addBuiltin("visibility", 1)
}

func (n *node) addBuiltin(name string, def float64) *attr {
	a := &attr{spec: scene.AttrSpec{Name: name, Type: scene.AttrFloat, Default: def, Keyable: true}, value: def}
	n.attrs[name] = a
	n.order = append(n.order, name)
	return a
}

func (n *node) addOutput(name string) {
	n.addBuiltin(name, 0).output = true
}

func (n *node) addText(name, text string) {
	n.attrs[name] = &attr{spec: scene.AttrSpec{Name: name, Type: scene.AttrString, Text: text}, text: text}
	n.order = append(n.order, name)
}

func (s *Scene) attach(n *node, parent scene.NodeID) {
	n.parent = parent
	if parent.IsZero() {
		s.roots = append(s.roots, n.id)
		return
	}
	p := s.nodes[parent]
	p.children = append(p.children, n.id)
}

func (s *Scene) detach(n *node) {
	if n.parent.IsZero() {
		s.roots = lo.Without(s.roots, n.id)
		return
	}
	if p, ok := s.nodes[n.parent]; ok {
		p.children = lo.Without(p.children, n.id)
	}
	n.parent = scene.None
}

// CreateTransform implements scene.Engine.
func (s *Scene) CreateTransform(name string, parent scene.NodeID) (scene.NodeID, error) {
	n, err := s.newNode(name, scene.KindTransform, parent)
	if err != nil {
		return scene.None, err
	}
	return n.id, nil
}

// CreateJoint implements scene.Engine.
func (s *Scene) CreateJoint(name string, parent scene.NodeID) (scene.NodeID, error) {
	n, err := s.newNode(name, scene.KindJoint, parent)
	if err != nil {
		return scene.None, err
	}
	n.addBuiltin("radius", 1)
	return n.id, nil
}

// CreateSolver implements scene.Engine. The solver is opaque: it records its
// joints and curve and exposes twist/roll, but never moves the joints.
func (s *Scene) CreateSolver(kind scene.SolverKind, name string, start, end, curve scene.NodeID) (scene.NodeID, error) {
	if kind == scene.SolverSplineIK && !s.caps[scene.CapSplineIK] {
		return scene.None, &scene.CapabilityError{Capability: scene.CapSplineIK, Op: "CreateSolver"}
	}
	for _, id := range []scene.NodeID{start, end, curve} {
		if _, err := s.get(id); err != nil {
			return scene.None, err
		}
	}
	n, err := s.newNode(name, scene.KindSolver, scene.None)
	if err != nil {
		return scene.None, err
	}
	n.solver = &solverData{kind: kind, start: start, end: end, curve: curve}
	n.addBuiltin("twist", 0)
	n.addBuiltin("roll", 0)
	n.addText("startJoint", string(start))
	n.addText("endEffector", string(end))
	n.addText("inCurve", string(curve))
	return n.id, nil
}

// ---------------------------------------------------------------------------
// Hierarchy
// ---------------------------------------------------------------------------

// Exists implements scene.Engine.
func (s *Scene) Exists(id scene.NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// Kind implements scene.Engine.
func (s *Scene) Kind(id scene.NodeID) (scene.NodeKind, error) {
	n, err := s.get(id)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Parent implements scene.Engine.
func (s *Scene) Parent(id scene.NodeID) (scene.NodeID, error) {
	n, err := s.get(id)
	if err != nil {
		return scene.None, err
	}
	return n.parent, nil
}

// Children implements scene.Engine.
func (s *Scene) Children(id scene.NodeID) ([]scene.NodeID, error) {
	n, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return append([]scene.NodeID(nil), n.children...), nil
}

// SetParent implements scene.Engine. Local channel values are kept as they
// are, so the world transform follows the new parent.
func (s *Scene) SetParent(id, parent scene.NodeID) error {
	n, err := s.get(id)
	if err != nil {
		return err
	}
	if !n.kind.IsDag() {
		return fmt.Errorf("%w: %q is not a dag node", scene.ErrInvalid, id)
	}
	if !parent.IsZero() {
		p, err := s.get(parent)
		if err != nil {
			return err
		}
		if !p.kind.IsDag() {
			return fmt.Errorf("%w: parent %q is a %s node", scene.ErrInvalid, parent, p.kind)
		}
		for cur := parent; !cur.IsZero(); cur = s.nodes[cur].parent {
			if cur == id {
				return fmt.Errorf("%w: %q cannot be parented under its descendant %q", scene.ErrCycle, id, parent)
			}
		}
	}
	s.detach(n)
	s.attach(n, parent)
	s.invalidate()
	return nil
}

// ---------------------------------------------------------------------------
// Transforms
// ---------------------------------------------------------------------------

// SetLocal implements scene.Engine.
func (s *Scene) SetLocal(id scene.NodeID, c scene.Channel, v v3.Vec) error {
	return s.setTriple(id, c.Attrs(), v)
}

func (s *Scene) setTriple(id scene.NodeID, attrs [3]string, v v3.Vec) error {
	vals := [3]float64{v.X, v.Y, v.Z}
	for i, a := range attrs {
		if err := s.SetAttr(scene.P(id, a), vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Local implements scene.Engine. Values are evaluated through connections.
func (s *Scene) Local(id scene.NodeID, c scene.Channel) (v3.Vec, error) {
	n, err := s.get(id)
	if err != nil {
		return v3.Vec{}, err
	}
	if !n.kind.IsDag() {
		return v3.Vec{}, fmt.Errorf("%w: %q has no transform", scene.ErrInvalid, id)
	}
	return scene.Triple(s, id, c.Attrs())
}

// World implements scene.Engine.
func (s *Scene) World(id scene.NodeID) (scene.Decomposed, error) {
	m, err := s.worldMatrix(id)
	if err != nil {
		return scene.Decomposed{}, err
	}
	t, r, sc := xform.Decompose(m)
	return scene.Decomposed{Translate: t, Rotate: r, Scale: sc}, nil
}

// SetWorld implements scene.Engine.
func (s *Scene) SetWorld(id scene.NodeID, d scene.Decomposed) error {
	n, err := s.get(id)
	if err != nil {
		return err
	}
	target := xform.Compose(d.Translate, d.Rotate, d.Scale)
	local := target
	if !n.parent.IsZero() {
		pw, err := s.worldMatrix(n.parent)
		if err != nil {
			return err
		}
		local = pw.Inverse().Mul(target)
	}
	t, r, sc := xform.Decompose(local)
	if err := s.SetLocal(id, scene.Translate, t); err != nil {
		return err
	}
	if err := s.SetLocal(id, scene.Rotate, r); err != nil {
		return err
	}
	return s.SetLocal(id, scene.Scale, sc)
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

func (s *Scene) attr(p scene.Plug) (*node, *attr, error) {
	n, err := s.get(p.Node)
	if err != nil {
		return nil, nil, err
	}
	a, ok := n.attrs[p.Attr]
	if !ok {
		return nil, nil, fmt.Errorf("%w: attribute %s", scene.ErrNotFound, p)
	}
	return n, a, nil
}

// AddAttr implements scene.Engine.
func (s *Scene) AddAttr(id scene.NodeID, spec scene.AttrSpec) error {
	n, err := s.get(id)
	if err != nil {
		return err
	}
	if spec.Name == "" {
		return fmt.Errorf("%w: empty attribute name", scene.ErrInvalid)
	}
	if _, exists := n.attrs[spec.Name]; exists {
		return fmt.Errorf("%w: attribute %s.%s", scene.ErrNameTaken, id, spec.Name)
	}
	if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
		return fmt.Errorf("%w: attribute %s min > max", scene.ErrInvalid, spec.Name)
	}
	n.attrs[spec.Name] = &attr{spec: spec, value: spec.Default, text: spec.Text}
	n.order = append(n.order, spec.Name)
	s.invalidate()
	return nil
}

// HasAttr implements scene.Engine.
func (s *Scene) HasAttr(p scene.Plug) bool {
	_, _, err := s.attr(p)
	return err == nil
}

// SetAttr implements scene.Engine.
func (s *Scene) SetAttr(p scene.Plug, v float64) error {
	_, a, err := s.attr(p)
	if err != nil {
		return err
	}
	switch {
	case a.input != nil:
		return fmt.Errorf("%w: %s <- %s", scene.ErrConnected, p, *a.input)
	case a.output:
		return fmt.Errorf("%w: %s is an output", scene.ErrInvalid, p)
	case a.spec.Type == scene.AttrString:
		return fmt.Errorf("%w: %s is a string attribute", scene.ErrInvalid, p)
	}
	if a.spec.Min != nil && v < *a.spec.Min || a.spec.Max != nil && v > *a.spec.Max {
		return fmt.Errorf("%w: %s = %g outside range", scene.ErrInvalid, p, v)
	}
	if a.spec.Type == scene.AttrEnum && (v < 0 || int(v) >= len(a.spec.Enum)) {
		return fmt.Errorf("%w: %s enum index %g", scene.ErrInvalid, p, v)
	}
	a.value = v
	a.touched = true
	s.invalidate()
	return nil
}

// Attr implements scene.Engine. Connected and computed attributes are
// evaluated on demand.
func (s *Scene) Attr(p scene.Plug) (float64, error) {
	_, a, err := s.attr(p)
	if err != nil {
		return 0, err
	}
	if a.spec.Type == scene.AttrString {
		return 0, fmt.Errorf("%w: %s is a string attribute", scene.ErrInvalid, p)
	}
	return s.eval(p)
}

// SetString implements scene.Engine.
func (s *Scene) SetString(p scene.Plug, text string) error {
	_, a, err := s.attr(p)
	if err != nil {
		return err
	}
	if a.spec.Type != scene.AttrString {
		return fmt.Errorf("%w: %s is not a string attribute", scene.ErrInvalid, p)
	}
	a.text = text
	s.invalidate()
	return nil
}

// String implements scene.Engine.
func (s *Scene) String(p scene.Plug) (string, error) {
	_, a, err := s.attr(p)
	if err != nil {
		return "", err
	}
	if a.spec.Type != scene.AttrString {
		return "", fmt.Errorf("%w: %s is not a string attribute", scene.ErrInvalid, p)
	}
	return a.text, nil
}

// Connect implements scene.Engine.
func (s *Scene) Connect(src, dst scene.Plug) error {
	if _, _, err := s.attr(src); err != nil {
		return err
	}
	_, a, err := s.attr(dst)
	if err != nil {
		return err
	}
	if a.output {
		return fmt.Errorf("%w: cannot connect into output %s", scene.ErrInvalid, dst)
	}
	if a.input != nil {
		return fmt.Errorf("%w: %s <- %s", scene.ErrConnected, dst, *a.input)
	}
	if s.reaches(src, dst) {
		return fmt.Errorf("%w: %s -> %s", scene.ErrCycle, src, dst)
	}
	in := src
	a.input = &in
	a.touched = true
	s.invalidate()
	return nil
}

// reaches reports whether src is (transitively) fed by dst through direct
// connections.
func (s *Scene) reaches(src, dst scene.Plug) bool {
	seen := map[scene.Plug]bool{}
	for cur := src; ; {
		if cur == dst {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		_, a, err := s.attr(cur)
		if err != nil || a.input == nil {
			return false
		}
		cur = *a.input
	}
}

// Disconnect implements scene.Engine. The attribute keeps its static value.
func (s *Scene) Disconnect(dst scene.Plug) error {
	_, a, err := s.attr(dst)
	if err != nil {
		return err
	}
	if a.input == nil {
		return fmt.Errorf("%w: %s has no input", scene.ErrNotFound, dst)
	}
	a.input = nil
	s.invalidate()
	return nil
}

// Input implements scene.Engine.
func (s *Scene) Input(dst scene.Plug) (scene.Plug, bool) {
	_, a, err := s.attr(dst)
	if err != nil || a.input == nil {
		return scene.Plug{}, false
	}
	return *a.input, true
}

// Outputs returns every plug connected from src, sorted.
func (s *Scene) Outputs(src scene.Plug) []scene.Plug {
	var out []scene.Plug
	for _, id := range s.Nodes() {
		n := s.nodes[id]
		for _, name := range n.order {
			if a := n.attrs[name]; a.input != nil && *a.input == src {
				out = append(out, scene.P(id, name))
			}
		}
	}
	return out
}

// SetShape implements scene.Engine.
func (s *Scene) SetShape(id scene.NodeID, sh scene.Shape) error {
	n, err := s.get(id)
	if err != nil {
		return err
	}
	if !n.kind.IsDag() {
		return fmt.Errorf("%w: %q cannot carry a shape", scene.ErrInvalid, id)
	}
	n.shape = scene.Shape{Kind: sh.Kind, Points: append([]v3.Vec(nil), sh.Points...)}
	return nil
}

// Shape implements scene.Engine.
func (s *Scene) Shape(id scene.NodeID) (scene.Shape, error) {
	n, err := s.get(id)
	if err != nil {
		return scene.Shape{}, err
	}
	return n.shape, nil
}

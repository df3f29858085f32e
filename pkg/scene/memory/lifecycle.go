package memory

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/samber/lo"

	"github.com/chazu/sinew/pkg/scene"
)

// DuplicateSubtree implements scene.Engine. Dag nodes under root are copied
// with their static attribute values and shapes; incoming connections are
// not copied. Curve CVs inside the subtree are remapped onto the copies.
// The copy of root is parented next to root.
func (s *Scene) DuplicateSubtree(root scene.NodeID, rename func(string) string) (scene.NodeID, map[scene.NodeID]scene.NodeID, error) {
	src, err := s.get(root)
	if err != nil {
		return scene.None, nil, err
	}
	if !src.kind.IsDag() || src.kind == scene.KindSolver {
		return scene.None, nil, fmt.Errorf("%w: cannot duplicate %s node %q", scene.ErrInvalid, src.kind, root)
	}

	// Collect and validate names first so a failed duplicate leaves nothing behind.
	var order []*node
	var collect func(n *node)
	collect = func(n *node) {
		if n.kind == scene.KindSolver {
			return
		}
		order = append(order, n)
		for _, c := range n.children {
			collect(s.nodes[c])
		}
	}
	collect(src)

	mapping := make(map[scene.NodeID]scene.NodeID, len(order))
	seen := make(map[scene.NodeID]bool, len(order))
	for _, n := range order {
		newID := scene.NodeID(rename(string(n.id)))
		if newID.IsZero() {
			return scene.None, nil, fmt.Errorf("%w: rename of %q is empty", scene.ErrInvalid, n.id)
		}
		if s.Exists(newID) || seen[newID] {
			return scene.None, nil, fmt.Errorf("%w: %q", scene.ErrNameTaken, newID)
		}
		seen[newID] = true
		mapping[n.id] = newID
	}

	for _, n := range order {
		parent := n.parent
		if n.id != root {
			parent = mapping[n.parent]
		}
		cp := &node{
			id:      mapping[n.id],
			kind:    n.kind,
			attrs:   make(map[string]*attr, len(n.attrs)),
			order:   append([]string(nil), n.order...),
			shape:   scene.Shape{Kind: n.shape.Kind, Points: append([]v3.Vec(nil), n.shape.Points...)},
			utility: n.utility,
		}
		for name, a := range n.attrs {
			value := a.value
			if a.input != nil {
				// Bake the evaluated value, mirroring a duplicate without
				// input connections.
				if v, err := s.eval(scene.P(n.id, name)); err == nil {
					value = v
				}
			}
			cp.attrs[name] = &attr{spec: a.spec, value: value, text: a.text, output: a.output, touched: a.touched}
		}
		if n.curve != nil {
			cvs := lo.Map(n.curve.cvs, func(cv scene.NodeID, _ int) scene.NodeID {
				if m, ok := mapping[cv]; ok {
					return m
				}
				return cv
			})
			cp.curve = &curveData{cvs: cvs, degree: n.curve.degree}
		}
		s.nodes[cp.id] = cp
		s.attach(cp, parent)
	}
	s.invalidate()
	return mapping[root], mapping, nil
}

// DeleteSubtree implements scene.Engine. Constraints driving or driven by a
// deleted node are deleted with it; connections out of deleted nodes are
// broken and their destinations keep their static values.
func (s *Scene) DeleteSubtree(id scene.NodeID) error {
	n, err := s.get(id)
	if err != nil {
		return err
	}
	doomed := map[scene.NodeID]bool{}
	var collect func(n *node)
	collect = func(n *node) {
		doomed[n.id] = true
		for _, c := range n.children {
			collect(s.nodes[c])
		}
	}
	collect(n)

	for cid, c := range s.nodes {
		if c.constraint == nil || doomed[cid] {
			continue
		}
		if doomed[c.constraint.driven] || lo.SomeBy(c.constraint.drivers, func(d scene.NodeID) bool { return doomed[d] }) {
			doomed[cid] = true
		}
	}

	if n.kind.IsDag() {
		s.detach(n)
	}
	for did := range doomed {
		delete(s.nodes, did)
	}
	s.roots = lo.Filter(s.roots, func(r scene.NodeID, _ int) bool { return !doomed[r] })

	for _, other := range s.nodes {
		for _, a := range other.attrs {
			if a.input != nil && doomed[a.input.Node] {
				a.input = nil
			}
		}
	}
	s.invalidate()
	return nil
}

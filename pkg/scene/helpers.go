package scene

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ConnectChannel connects all three axes of a channel from src to dst.
func ConnectChannel(eng Engine, src NodeID, dst NodeID, c Channel) error {
	for _, a := range c.Attrs() {
		if err := eng.Connect(P(src, a), P(dst, a)); err != nil {
			return err
		}
	}
	return nil
}

// ConnectTriple connects three source attributes to three destination
// attributes pairwise.
func ConnectTriple(eng Engine, src NodeID, srcAttrs [3]string, dst NodeID, dstAttrs [3]string) error {
	for i := range 3 {
		if err := eng.Connect(P(src, srcAttrs[i]), P(dst, dstAttrs[i])); err != nil {
			return err
		}
	}
	return nil
}

// Prefixed returns prefix+suffix for each suffix, e.g. ("color1", RGB).
func Prefixed(prefix string, suffixes [3]string) [3]string {
	return [3]string{prefix + suffixes[0], prefix + suffixes[1], prefix + suffixes[2]}
}

// SetTriple sets three attributes from a vector.
func SetTriple(eng Engine, node NodeID, attrs [3]string, v v3.Vec) error {
	vals := [3]float64{v.X, v.Y, v.Z}
	for i := range 3 {
		if err := eng.SetAttr(P(node, attrs[i]), vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Triple reads three attributes into a vector.
func Triple(eng Engine, node NodeID, attrs [3]string) (v3.Vec, error) {
	var vals [3]float64
	for i := range 3 {
		v, err := eng.Attr(P(node, attrs[i]))
		if err != nil {
			return v3.Vec{}, err
		}
		vals[i] = v
	}
	return v3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// Descendants returns every node below root, depth first, excluding root.
func Descendants(eng Engine, root NodeID) ([]NodeID, error) {
	var out []NodeID
	var walk func(NodeID) error
	walk = func(n NodeID) error {
		kids, err := eng.Children(n)
		if err != nil {
			return err
		}
		for _, k := range kids {
			out = append(out, k)
			if err := walk(k); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, fmt.Errorf("descendants of %s: %w", root, err)
	}
	return out, nil
}

// MatchWorld moves node so its world transform equals target's.
func MatchWorld(eng Engine, node, target NodeID) error {
	w, err := eng.World(target)
	if err != nil {
		return err
	}
	return eng.SetWorld(node, w)
}

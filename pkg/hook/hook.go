// Package hook publishes the anchor groups through which modules attach to
// each other. Every built module side owns exactly one Triad; other modules
// only ever parent to or read from those three groups.
package hook

import (
	"errors"
	"fmt"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/scene"
)

// Attributes stamped on every static hook.
const (
	AttrModule = "hookModule"
	AttrSide   = "hookSide"
)

var (
	ErrIncomplete = errors.New("hook: incomplete triad")
	ErrForeign    = errors.New("hook: triad contains guide nodes")
)

// Triad is the three hook groups of one module side. Static parents the
// other two plus any helper nodes that must not scale with the rig.
type Triad struct {
	Control  scene.NodeID
	Scalable scene.NodeID
	Static   scene.NodeID
}

// Build creates the triad of a side under parent. A flip-mirrored side's
// static hook carries the mirror scale.
func Build(eng scene.Engine, side mirror.Side, key string, parent scene.NodeID) (Triad, error) {
	var t Triad
	var err error
	if t.Static, err = eng.CreateTransform(string(side.Node(key, "Static_Hook")), parent); err != nil {
		return Triad{}, err
	}
	if err := eng.SetLocal(t.Static, scene.Scale, side.FlipScale()); err != nil {
		return Triad{}, err
	}
	if t.Control, err = eng.CreateTransform(string(side.Node(key, "Control_Hook")), t.Static); err != nil {
		return Triad{}, err
	}
	if t.Scalable, err = eng.CreateTransform(string(side.Node(key, "Scalable_Hook")), t.Static); err != nil {
		return Triad{}, err
	}
	for _, a := range []scene.AttrSpec{
		{Name: AttrModule, Type: scene.AttrString, Text: key},
		{Name: AttrSide, Type: scene.AttrString, Text: side.Name},
	} {
		if err := eng.AddAttr(t.Static, a); err != nil {
			return Triad{}, err
		}
	}
	return t, nil
}

// Nodes returns the three groups, static first.
func (t Triad) Nodes() []scene.NodeID {
	return []scene.NodeID{t.Static, t.Control, t.Scalable}
}

// Audit checks that the triad exists, that Static parents the other two and
// that no guide placeholder ended up inside it.
func Audit(eng scene.Engine, t Triad) error {
	for _, id := range t.Nodes() {
		if id.IsZero() || !eng.Exists(id) {
			return fmt.Errorf("%w: missing %q", ErrIncomplete, id)
		}
	}
	for _, id := range []scene.NodeID{t.Control, t.Scalable} {
		p, err := eng.Parent(id)
		if err != nil {
			return err
		}
		if p != t.Static {
			return fmt.Errorf("%w: %s is under %q, not %s", ErrIncomplete, id, p, t.Static)
		}
	}
	nodes, err := scene.Descendants(eng, t.Static)
	if err != nil {
		return err
	}
	for _, id := range nodes {
		if guide.IsRoot(eng, id) || guide.ConstructionOnly(eng, id) {
			return fmt.Errorf("%w: %s", ErrForeign, id)
		}
	}
	return nil
}

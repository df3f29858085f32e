// Package mirror resolves a guide's mirror settings into sides, computes the
// second side's placeholders and keeps a live preview of the mirrored half
// while the guide is edited.
package mirror

import (
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

// Side is one resolved half of a module.
type Side struct {
	Index    int
	Name     string // "" when the module is not mirrored
	Mirrored bool   // true for the derived second side
	Flip     bool
	Axes     [3]bool
}

// Sides expands mirror options into one side, or two when mirroring is on.
func Sides(opts guide.Options) []Side {
	if !opts.Mirror.Enabled() {
		return []Side{{}}
	}
	axes := opts.Mirror.Axes()
	return []Side{
		{Index: 0, Name: opts.Names.First, Flip: opts.Flip, Axes: axes},
		{Index: 1, Name: opts.Names.Second, Mirrored: true, Flip: opts.Flip, Axes: axes},
	}
}

// Prefix returns the node name prefix of this side of module key.
func (s Side) Prefix(key string) string {
	if s.Name == "" {
		return key + "_"
	}
	return s.Name + "_" + key + "_"
}

// Node names a node of this side, e.g. L_Chain1_Fk_Ctrl1.
func (s Side) Node(key string, parts ...string) scene.NodeID {
	return scene.NodeID(s.Prefix(key) + strings.Join(parts, "_"))
}

// Label is the side name, or "single" for unmirrored modules.
func (s Side) Label() string {
	if s.Name == "" {
		return "single"
	}
	return s.Name
}

// FlipScale is the scale of the flip group holding a flip-mirrored side.
func (s Side) FlipScale() v3.Vec {
	if s.Mirrored && s.Flip {
		return xform.ReflectScale(s.Axes)
	}
	return xform.Unit
}

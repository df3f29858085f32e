package rig

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/chazu/sinew/pkg/chain"
	"github.com/chazu/sinew/pkg/config"
	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/hook"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/network"
	"github.com/chazu/sinew/pkg/scene"
)

// Detail levels offered by Detailed types.
const (
	DetailComplete = "complete"
	DetailSimple   = "simple"
)

// SideBuild is everything a module type needs to build one side.
type SideBuild struct {
	Eng          scene.Engine
	Guide        *guide.Guide
	Side         mirror.Side
	Placeholders []scene.NodeID
	Hooks        hook.Triad
	Detail       string
	Settings     config.Settings
	Log          *slog.Logger

	exports  map[string][]string
	warnings []string
}

// Key is the module instance key.
func (sb *SideBuild) Key() string { return sb.Guide.Key() }

// Node names a node of this side.
func (sb *SideBuild) Node(parts ...string) scene.NodeID { return sb.Side.Node(sb.Key(), parts...) }

// ChainSpec places chains under the side's hooks.
func (sb *SideBuild) ChainSpec() chain.Spec {
	return chain.Spec{
		Side:          sb.Side,
		Key:           sb.Key(),
		Placeholders:  sb.Placeholders,
		JointParent:   sb.Hooks.Scalable,
		ControlParent: sb.Hooks.Control,
	}
}

// NetworkSettings derives the network settings from configuration and the
// guide options.
func (sb *SideBuild) NetworkSettings() network.Settings {
	return network.Settings{
		Degree:          sb.Guide.Options.Degree,
		VolumeVariation: sb.Settings.Volume.Variation,
		VolumeMin:       sb.Settings.Volume.Minimum,
		VolumeMax:       sb.Settings.Volume.Maximum,
	}
}

// Export publishes values under name in the module's descriptor.
func (sb *SideBuild) Export(name string, values ...scene.NodeID) {
	if sb.exports == nil {
		sb.exports = map[string][]string{}
	}
	for _, v := range values {
		sb.exports[name] = append(sb.exports[name], string(v))
	}
}

// ExportPlug publishes attribute plugs under name.
func (sb *SideBuild) ExportPlug(name string, plugs ...scene.Plug) {
	if sb.exports == nil {
		sb.exports = map[string][]string{}
	}
	for _, p := range plugs {
		sb.exports[name] = append(sb.exports[name], p.String())
	}
}

// Warn records a warning in the build result.
func (sb *SideBuild) Warn(msgs ...string) {
	sb.warnings = append(sb.warnings, msgs...)
}

// Integration is handed to Integrator types after the module is published.
type Integration struct {
	Eng        scene.Engine
	Guide      *guide.Guide
	Descriptor hook.Descriptor
	Hooks      []hook.Triad
	Log        *slog.Logger

	builder *Builder
	result  *Result
}

// BuildModule creates and builds a dependent module inside this build. The
// new module's static hooks are returned, one per side.
func (in *Integration) BuildModule(ctx context.Context, tag, name string, opts guide.Options) (hook.Descriptor, error) {
	g, err := in.builder.NewGuide(ctx, tag, name, opts)
	if err != nil {
		return hook.Descriptor{}, err
	}
	res, err := in.builder.Build(ctx, g)
	if err != nil {
		return hook.Descriptor{}, err
	}
	if res.State != Rigged {
		return hook.Descriptor{}, fmt.Errorf("rig: %s ended in %s", g.Key(), res.State)
	}
	in.result.Children = append(in.result.Children, res)
	return *res.Descriptor, nil
}

// Attach parents the static hooks of child under this module's control
// hook of the matching side, keeping their world placement.
func (in *Integration) Attach(child hook.Descriptor) error {
	return attach(in.Eng, child, in.Descriptor)
}

func attach(eng scene.Engine, child, parent hook.Descriptor) error {
	for i, cs := range child.Sides {
		ps, ok := parent.Side(cs.Side)
		switch {
		case ok:
		case len(parent.Sides) == len(child.Sides):
			ps = parent.Sides[i]
		default:
			ps = parent.Sides[0]
		}
		static := scene.NodeID(cs.Static)
		w, err := eng.World(static)
		if err != nil {
			return err
		}
		if err := eng.SetParent(static, scene.NodeID(ps.Control)); err != nil {
			return err
		}
		if err := eng.SetWorld(static, w); err != nil {
			return fmt.Errorf("attach %s to %s: %w", child.Key, parent.Key, err)
		}
	}
	return nil
}

func sortedExports(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

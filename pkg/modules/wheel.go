package modules

import (
	"context"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
)

// AttrRadius is the wheel radius measured from the guide at build time.
const AttrRadius = "radius"

// Wheel is a wheel joint spun by one control. The radius is the distance
// from the first locator to the end locator.
type Wheel struct{}

func (Wheel) Tag() string { return TagWheel }

func (Wheel) Spec() guide.Spec {
	return guide.Spec{MinSegments: 1, MaxSegments: 1, Refs: []string{rig.RefParentHook}}
}

func (Wheel) Dependencies() []string { return nil }

// Defaults turns flip on so mirrored wheels spin the same way.
func (Wheel) Defaults(opts guide.Options) guide.Options {
	if opts.Mirror.Enabled() {
		opts.Flip = true
	}
	return opts
}

func (Wheel) BuildRig(ctx context.Context, sb *rig.SideBuild) error {
	eng := sb.Eng
	hub, rim := sb.Placeholders[0], sb.Placeholders[1]
	zero, ctrl, err := controlAt(sb, "Wheel", sb.Hooks.Control, hub)
	if err != nil {
		return err
	}
	j, err := jointAt(sb, "Wheel", hub, ctrl)
	if err != nil {
		return err
	}
	hw, err := eng.World(hub)
	if err != nil {
		return err
	}
	rw, err := eng.World(rim)
	if err != nil {
		return err
	}
	radius := rw.Translate.Sub(hw.Translate).Length()
	if err := eng.AddAttr(ctrl, scene.AttrSpec{Name: AttrRadius, Type: scene.AttrFloat, Default: radius, Min: scene.Bound(0)}); err != nil {
		return err
	}
	sb.Export(ExportWheelControl, ctrl)
	sb.Export(ExportWheelZero, zero)
	sb.Export(ExportJoints, j)
	return nil
}

package modules

import (
	"context"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
)

// AttrSteer is the steering input, -1 full left to 1 full right.
const AttrSteer = "steer"

// Steering is a single control carrying the steer attribute.
type Steering struct{}

func (Steering) Tag() string { return TagSteering }

func (Steering) Spec() guide.Spec {
	return guide.Spec{MinSegments: 1, MaxSegments: 1, Refs: []string{rig.RefParentHook}}
}

func (Steering) Dependencies() []string { return nil }

func (Steering) BuildRig(ctx context.Context, sb *rig.SideBuild) error {
	_, ctrl, err := controlAt(sb, "Steering", sb.Hooks.Control, sb.Placeholders[0])
	if err != nil {
		return err
	}
	if err := sb.Eng.AddAttr(ctrl, scene.AttrSpec{
		Name: AttrSteer, Type: scene.AttrFloat, Min: scene.Bound(-1), Max: scene.Bound(1), Keyable: true,
	}); err != nil {
		return err
	}
	sb.Export(ExportControl, ctrl)
	sb.ExportPlug(ExportSteerAttr, scene.P(ctrl, AttrSteer))
	return nil
}

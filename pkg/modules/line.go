package modules

import (
	"context"

	"github.com/chazu/sinew/pkg/chain"
	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/network"
	"github.com/chazu/sinew/pkg/rig"
)

// Line is a plain FK chain: the result joints follow the FK joints.
type Line struct{}

func (Line) Tag() string { return TagLine }

func (Line) Spec() guide.Spec {
	return guide.Spec{MinSegments: 1, Refs: []string{rig.RefParentHook}}
}

func (Line) Dependencies() []string { return nil }

func (Line) BuildRig(ctx context.Context, sb *rig.SideBuild) error {
	spec := sb.ChainSpec()
	set, err := chain.Joints(sb.Eng, spec)
	if err != nil {
		return err
	}
	fk, err := chain.FK(sb.Eng, spec, set.FK, mirror.SignFor(sb.Side, mirror.RoleFK))
	if err != nil {
		return err
	}
	if err := network.FKOnly(sb.Eng, set); err != nil {
		return err
	}
	sb.Export(ExportFKControls, fk.Ctrls...)
	sb.Export(ExportJoints, set.Result...)
	return nil
}

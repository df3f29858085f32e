package modules

import (
	"context"

	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
)

// Single is one joint driven by one control.
type Single struct{}

func (Single) Tag() string { return TagSingle }

// Spec accepts the articulation flag so guides can share option sets with
// Chain; Single has nothing to articulate and ignores it.
func (Single) Spec() guide.Spec {
	return guide.Spec{
		MinSegments: 1,
		MaxSegments: 1,
		Flags:       []string{FlagArticulation},
		Refs:        []string{rig.RefParentHook},
	}
}

func (Single) Dependencies() []string { return nil }

func (Single) BuildRig(ctx context.Context, sb *rig.SideBuild) error {
	at := sb.Placeholders[0]
	_, ctrl, err := controlAt(sb, "Single", sb.Hooks.Control, at)
	if err != nil {
		return err
	}
	j, err := jointAt(sb, "Single", at, ctrl)
	if err != nil {
		return err
	}
	if err := scene.ConnectChannel(sb.Eng, ctrl, j, scene.Scale); err != nil {
		return err
	}
	sb.Export(ExportControl, ctrl)
	sb.Export(ExportJoints, j)
	return nil
}

package modules

import (
	"context"
	"fmt"

	"github.com/chazu/sinew/pkg/chain"
	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/network"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
)

// Chain is a segmented limb with FK, spline IK, stretch and volume.
type Chain struct{}

func (Chain) Tag() string { return TagChain }

func (Chain) Spec() guide.Spec {
	return guide.Spec{
		MinSegments: 2,
		Flags:       []string{FlagArticulation, FlagCorrective},
		Refs:        []string{rig.RefParentHook},
	}
}

func (Chain) Dependencies() []string { return nil }

func (Chain) DetailLevels() []string { return []string{rig.DetailComplete, rig.DetailSimple} }

func (Chain) BuildRig(ctx context.Context, sb *rig.SideBuild) error {
	eng := sb.Eng
	spec := sb.ChainSpec()
	set, err := chain.Joints(eng, spec)
	if err != nil {
		return err
	}
	fk, err := chain.FK(eng, spec, set.FK, mirror.SignFor(sb.Side, mirror.RoleFK))
	if err != nil {
		return err
	}
	sb.Export(ExportFKControls, fk.Ctrls...)
	sb.Export(ExportJoints, set.Result...)

	if sb.Detail == rig.DetailSimple {
		if err := network.FKOnly(eng, set); err != nil {
			return err
		}
	} else {
		net, err := network.NewBuilder(eng, spec, set, fk, sb.NetworkSettings(), sb.Log).Build()
		if err != nil {
			return err
		}
		sb.Warn(net.Warnings...)
		if err := network.ScaleHook(eng, net.WorldRef, sb.Hooks.Scalable); err != nil {
			return err
		}
		sb.Export(ExportWorldRef, net.WorldRef)
		sb.Export(ExportIKMain, net.IK.Main)
	}

	if sb.Guide.Options.Flag(FlagArticulation) {
		if err := articulations(sb, set.Result); err != nil {
			return fmt.Errorf("articulation: %w", err)
		}
	}
	if sb.Guide.Options.Flag(FlagCorrective) {
		if err := correctives(sb, set.Result); err != nil {
			return fmt.Errorf("corrective: %w", err)
		}
	}
	return nil
}

// articulations adds a joint at every inner result joint whose orientation
// sits half-way between the two segments meeting there.
func articulations(sb *rig.SideBuild, result []scene.NodeID) error {
	eng := sb.Eng
	body := result[:len(result)-1]
	for i := 1; i < len(body); i++ {
		j, err := eng.CreateJoint(string(sb.Node(fmt.Sprintf("Articulation%d_Jnt", i))), body[i-1])
		if err != nil {
			return err
		}
		if err := scene.MatchWorld(eng, j, body[i]); err != nil {
			return err
		}
		if _, err := eng.BindConstraint(scene.PointLike, []scene.NodeID{body[i]}, j, scene.ConstraintOptions{}); err != nil {
			return err
		}
		if _, err := eng.BindConstraint(scene.OrientLike, []scene.NodeID{body[i-1], body[i]}, j, scene.ConstraintOptions{
			Weights: []float64{0.5, 0.5},
		}); err != nil {
			return err
		}
	}
	return nil
}

// Attributes on corrective data nodes.
var (
	restRotate    = [3]string{"restRotateX", "restRotateY", "restRotateZ"}
	currentRotate = [3]string{"currentRotateX", "currentRotateY", "currentRotateZ"}
)

// correctives records the rest rotation of every body joint on a data node
// in the static hook, next to its live rotation.
func correctives(sb *rig.SideBuild, result []scene.NodeID) error {
	eng := sb.Eng
	for i, j := range result[:len(result)-1] {
		rest, err := eng.Local(j, scene.Rotate)
		if err != nil {
			return err
		}
		data, err := eng.CreateTransform(string(sb.Node(fmt.Sprintf("Corrective%d_Data", i+1))), sb.Hooks.Static)
		if err != nil {
			return err
		}
		for k := range 3 {
			for _, name := range []string{restRotate[k], currentRotate[k]} {
				if err := eng.AddAttr(data, scene.AttrSpec{Name: name, Type: scene.AttrFloat}); err != nil {
					return err
				}
			}
		}
		if err := scene.SetTriple(eng, data, restRotate, rest); err != nil {
			return err
		}
		if err := scene.ConnectTriple(eng, j, scene.Rotate.Attrs(), data, currentRotate); err != nil {
			return err
		}
	}
	return nil
}

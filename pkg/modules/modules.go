// Package modules holds the built-in module types.
package modules

import (
	"fmt"

	"github.com/chazu/sinew/pkg/chain"
	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/rig"
	"github.com/chazu/sinew/pkg/scene"
)

// Type tags.
const (
	TagChain    = "Chain"
	TagLine     = "Line"
	TagSingle   = "Single"
	TagWheel    = "Wheel"
	TagSteering = "Steering"
	TagVehicle  = "Vehicle"
)

// Feature flags.
const (
	FlagArticulation = "articulation"
	FlagCorrective   = "corrective"
)

// Export names.
const (
	ExportWorldRef     = "worldRef"
	ExportFKControls   = "fkControls"
	ExportIKMain       = "ikMain"
	ExportJoints       = "joints"
	ExportControl      = "control"
	ExportWheelControl = "wheelControl"
	ExportWheelZero    = "wheelZero"
	ExportSteerAttr    = "steerAttr"
	ExportMainControl  = "mainControl"
)

// Builtins returns one of every built-in type.
func Builtins() []rig.ModuleType {
	return []rig.ModuleType{Chain{}, Line{}, Single{}, Wheel{}, Steering{}, Vehicle{}}
}

// RegisterBuiltins adds the built-in types to r.
func RegisterBuiltins(r *rig.Registry) error {
	for _, t := range Builtins() {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in types.
func NewRegistry() *rig.Registry {
	r := rig.NewRegistry()
	r.MustRegister(Builtins()...)
	return r
}

// controlAt creates a zero group and control at a placeholder, with the
// same sign correction FK controls get.
func controlAt(sb *rig.SideBuild, name string, parent, at scene.NodeID) (zero, ctrl scene.NodeID, err error) {
	eng := sb.Eng
	w, err := eng.World(at)
	if err != nil {
		return scene.None, scene.None, err
	}
	if zero, err = eng.CreateTransform(string(sb.Node(name+"_Zero")), parent); err != nil {
		return scene.None, scene.None, err
	}
	if err := eng.SetWorld(zero, w); err != nil {
		return scene.None, scene.None, err
	}
	sign := mirror.SignFor(sb.Side, mirror.RoleFK)
	sc, err := eng.Local(zero, scene.Scale)
	if err != nil {
		return scene.None, scene.None, err
	}
	if err := eng.SetLocal(zero, scene.Scale, sign.ScaleFirst(sc)); err != nil {
		return scene.None, scene.None, err
	}
	if ctrl, err = eng.CreateTransform(string(sb.Node(name+"_Ctrl")), zero); err != nil {
		return scene.None, scene.None, err
	}
	if err := eng.SetShape(ctrl, scene.Shape{Kind: chain.ControlShape}); err != nil {
		return scene.None, scene.None, err
	}
	return zero, ctrl, nil
}

// jointAt creates a joint under the scalable hook at a placeholder and
// binds it to ctrl.
func jointAt(sb *rig.SideBuild, name string, at, ctrl scene.NodeID) (scene.NodeID, error) {
	eng := sb.Eng
	w, err := eng.World(at)
	if err != nil {
		return scene.None, err
	}
	j, err := eng.CreateJoint(string(sb.Node(name+"_Jnt")), sb.Hooks.Scalable)
	if err != nil {
		return scene.None, err
	}
	if err := eng.SetWorld(j, w); err != nil {
		return scene.None, err
	}
	sign := mirror.SignFor(sb.Side, mirror.RoleFK)
	if _, err := eng.BindConstraint(scene.ParentLike, []scene.NodeID{ctrl}, j, scene.ConstraintOptions{MaintainOffset: sign.MaintainOffset}); err != nil {
		return scene.None, fmt.Errorf("bind %s: %w", j, err)
	}
	return j, nil
}

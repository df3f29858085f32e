// Package chain generates the three parallel joint chains of a module side
// and its serial FK controls.
package chain

import (
	"errors"
	"fmt"

	"github.com/chazu/sinew/pkg/mirror"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

// ControlShape is the display shape of generated controls.
const ControlShape = "circle"

var ErrTooShort = errors.New("chain: need at least two placeholders")

// Spec places one side's chains.
type Spec struct {
	Side mirror.Side
	Key  string
	// Placeholders holds N segment placeholders plus the end placeholder.
	Placeholders []scene.NodeID
	// JointParent receives the root joint of every chain.
	JointParent scene.NodeID
	// ControlParent receives the first FK zero group.
	ControlParent scene.NodeID
}

// Segments is the number of body segments.
func (s Spec) Segments() int { return len(s.Placeholders) - 1 }

// JointChainSet holds the result, IK and FK chains of one side. Every chain
// has Segments()+1 joints.
type JointChainSet struct {
	Result []scene.NodeID
	IK     []scene.NodeID
	FK     []scene.NodeID
}

// Role returns the chain built for a role.
func (c *JointChainSet) Role(r mirror.Role) []scene.NodeID {
	switch r {
	case mirror.RoleIK:
		return c.IK
	case mirror.RoleFK:
		return c.FK
	default:
		return c.Result
	}
}

// Len is the joint count of each chain.
func (c *JointChainSet) Len() int { return len(c.Result) }

// Tip is the last body joint of a chain.
func Tip(joints []scene.NodeID) scene.NodeID { return joints[len(joints)-2] }

// End is the end joint of a chain.
func End(joints []scene.NodeID) scene.NodeID { return joints[len(joints)-1] }

func jointPrefix(r mirror.Role) string {
	switch r {
	case mirror.RoleIK:
		return "Ik_Jnt"
	case mirror.RoleFK:
		return "Fk_Jnt"
	default:
		return "Jnt"
	}
}

// JointName names joint i of a role, counted from 0. The last joint of an
// N segment chain is the end joint.
func JointName(s Spec, r mirror.Role, i int) scene.NodeID {
	if i == s.Segments() {
		return s.Side.Node(s.Key, jointPrefix(r)+"End")
	}
	return s.Side.Node(s.Key, fmt.Sprintf("%s%d", jointPrefix(r), i+1))
}

// Joints creates the three chains. Joints of every role at index i start
// with the world transform of placeholder i.
func Joints(eng scene.Engine, s Spec) (*JointChainSet, error) {
	if len(s.Placeholders) < 2 {
		return nil, ErrTooShort
	}
	worlds, err := worlds(eng, s.Placeholders)
	if err != nil {
		return nil, err
	}
	set := &JointChainSet{}
	for _, role := range []mirror.Role{mirror.RoleResult, mirror.RoleIK, mirror.RoleFK} {
		parent := s.JointParent
		joints := make([]scene.NodeID, 0, len(worlds))
		for i, w := range worlds {
			j, err := eng.CreateJoint(string(JointName(s, role, i)), parent)
			if err != nil {
				return nil, fmt.Errorf("%s chain: %w", role, err)
			}
			if err := eng.SetWorld(j, w); err != nil {
				return nil, fmt.Errorf("%s chain: place %s: %w", role, j, err)
			}
			joints = append(joints, j)
			parent = j
		}
		switch role {
		case mirror.RoleResult:
			set.Result = joints
		case mirror.RoleIK:
			set.IK = joints
		case mirror.RoleFK:
			set.FK = joints
		}
	}
	return set, nil
}

func worlds(eng scene.Engine, ids []scene.NodeID) ([]scene.Decomposed, error) {
	out := make([]scene.Decomposed, len(ids))
	for i, id := range ids {
		w, err := eng.World(id)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// Locals returns the transform of each placeholder relative to the one
// before it. The first entry is the first placeholder's world transform.
func Locals(eng scene.Engine, ids []scene.NodeID) ([]scene.Decomposed, error) {
	ws, err := worlds(eng, ids)
	if err != nil {
		return nil, err
	}
	out := make([]scene.Decomposed, len(ws))
	out[0] = ws[0]
	for i := 1; i < len(ws); i++ {
		prev := xform.Compose(ws[i-1].Translate, ws[i-1].Rotate, ws[i-1].Scale)
		cur := xform.Compose(ws[i].Translate, ws[i].Rotate, ws[i].Scale)
		t, r, sc := xform.Decompose(prev.Inverse().Mul(cur))
		out[i] = scene.Decomposed{Translate: t, Rotate: r, Scale: sc}
	}
	return out, nil
}

// FKControls are the serial FK controls of one side, one per segment.
type FKControls struct {
	Zeros []scene.NodeID
	Ctrls []scene.NodeID
}

// FK creates one zero group and control per body segment and binds each FK
// joint to its control. Control i hangs under control i-1; the first zero
// group hangs under the side's control hook. sign corrects the zero groups
// of a point-mirrored side.
func FK(eng scene.Engine, s Spec, fkJoints []scene.NodeID, sign mirror.Sign) (*FKControls, error) {
	n := s.Segments()
	if len(fkJoints) != n+1 {
		return nil, fmt.Errorf("chain: %d fk joints for %d segments", len(fkJoints), n)
	}
	locals, err := Locals(eng, s.Placeholders)
	if err != nil {
		return nil, err
	}
	out := &FKControls{}
	parent := s.ControlParent
	for i := 0; i < n; i++ {
		zero, err := eng.CreateTransform(string(s.Side.Node(s.Key, "Fk", fmt.Sprintf("Zero%d", i+1))), parent)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			if err := eng.SetWorld(zero, locals[0]); err != nil {
				return nil, err
			}
			sc, err := eng.Local(zero, scene.Scale)
			if err != nil {
				return nil, err
			}
			if err := eng.SetLocal(zero, scene.Scale, sign.ScaleFirst(sc)); err != nil {
				return nil, err
			}
		} else {
			if err := eng.SetLocal(zero, scene.Translate, sign.Translate(locals[i].Translate)); err != nil {
				return nil, err
			}
			if err := eng.SetLocal(zero, scene.Rotate, sign.Rotate(locals[i].Rotate)); err != nil {
				return nil, err
			}
		}
		ctrl, err := eng.CreateTransform(string(s.Side.Node(s.Key, "Fk", fmt.Sprintf("Ctrl%d", i+1))), zero)
		if err != nil {
			return nil, err
		}
		if err := eng.SetShape(ctrl, scene.Shape{Kind: ControlShape}); err != nil {
			return nil, err
		}
		if _, err := eng.BindConstraint(scene.ParentLike, []scene.NodeID{ctrl}, fkJoints[i], scene.ConstraintOptions{
			MaintainOffset: sign.MaintainOffset,
		}); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", fkJoints[i], ctrl, err)
		}
		if err := scene.ConnectChannel(eng, ctrl, fkJoints[i], scene.Scale); err != nil {
			return nil, err
		}
		out.Zeros = append(out.Zeros, zero)
		out.Ctrls = append(out.Ctrls, ctrl)
		parent = ctrl
	}
	return out, nil
}

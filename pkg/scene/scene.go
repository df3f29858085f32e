// Package scene defines the capability surface of the host scene-graph
// engine. The rig builders only ever talk to an Engine; backends (the
// in-memory engine in scene/memory, or a host binding) implement it. The
// abstraction keeps the compilation pipeline independent of any particular
// content-creation application.
package scene

import (
	"errors"
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// NodeID names a node in the scene. Names are unique within a scene.
type NodeID string

// None is the zero NodeID. As a parent it means the scene root.
const None NodeID = ""

// IsZero reports whether the ID is empty.
func (id NodeID) IsZero() bool { return id == None }

// Plug addresses one attribute of one node.
type Plug struct {
	Node NodeID
	Attr string
}

// P is shorthand for building a Plug.
func P(node NodeID, attr string) Plug { return Plug{Node: node, Attr: attr} }

func (p Plug) String() string { return string(p.Node) + "." + p.Attr }

// ParsePlug parses the "node.attr" form produced by Plug.String.
func ParsePlug(s string) (Plug, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Plug{}, fmt.Errorf("%w: plug %q", ErrInvalid, s)
	}
	return P(NodeID(s[:i]), s[i+1:]), nil
}

// ---------------------------------------------------------------------------
// Node kinds
// ---------------------------------------------------------------------------

// NodeKind enumerates the kinds of scene nodes the pipeline creates.
type NodeKind int

const (
	KindTransform  NodeKind = iota // group, locator, control
	KindJoint                      // skeletal joint
	KindCurve                      // nurbs-like curve driven by transforms
	KindConstraint                 // constraint node
	KindUtility                    // math utility node
	KindSolver                     // opaque solver handle (spline IK)
)

func (k NodeKind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindJoint:
		return "joint"
	case KindCurve:
		return "curve"
	case KindConstraint:
		return "constraint"
	case KindUtility:
		return "utility"
	case KindSolver:
		return "solver"
	default:
		return "unknown"
	}
}

// IsDag reports whether nodes of this kind take part in the transform
// hierarchy.
func (k NodeKind) IsDag() bool {
	return k == KindTransform || k == KindJoint || k == KindCurve || k == KindSolver
}

// ---------------------------------------------------------------------------
// Transform channels
// ---------------------------------------------------------------------------

// Channel selects translate, rotate or scale.
type Channel int

const (
	Translate Channel = iota
	Rotate
	Scale
)

func (c Channel) String() string {
	switch c {
	case Translate:
		return "translate"
	case Rotate:
		return "rotate"
	case Scale:
		return "scale"
	default:
		return "unknown"
	}
}

// Axes are the attribute suffixes of a channel.
var Axes = [3]string{"X", "Y", "Z"}

// Attrs returns the three attribute names of the channel, e.g. translateX.
func (c Channel) Attrs() [3]string {
	n := c.String()
	return [3]string{n + "X", n + "Y", n + "Z"}
}

// Channels lists all transform channels in evaluation order.
var Channels = []Channel{Translate, Rotate, Scale}

// Decomposed is a world or local transform split into its channels.
// Rotation is Euler degrees in XYZ order.
type Decomposed struct {
	Translate v3.Vec
	Rotate    v3.Vec
	Scale     v3.Vec
}

// Get returns the value of a channel.
func (d Decomposed) Get(c Channel) v3.Vec {
	switch c {
	case Translate:
		return d.Translate
	case Rotate:
		return d.Rotate
	default:
		return d.Scale
	}
}

// ---------------------------------------------------------------------------
// Constraints
// ---------------------------------------------------------------------------

// ConstraintKind enumerates the constraint types an engine can bind.
type ConstraintKind int

const (
	ParentLike ConstraintKind = iota
	OrientLike
	PointLike
	AimLike
	ScaleLike
)

func (k ConstraintKind) String() string {
	switch k {
	case ParentLike:
		return "parentConstraint"
	case OrientLike:
		return "orientConstraint"
	case PointLike:
		return "pointConstraint"
	case AimLike:
		return "aimConstraint"
	case ScaleLike:
		return "scaleConstraint"
	default:
		return "unknownConstraint"
	}
}

// Drives reports which channels of the driven node the constraint controls.
func (k ConstraintKind) Drives() []Channel {
	switch k {
	case ParentLike:
		return []Channel{Translate, Rotate}
	case OrientLike, AimLike:
		return []Channel{Rotate}
	case PointLike:
		return []Channel{Translate}
	case ScaleLike:
		return []Channel{Scale}
	default:
		return nil
	}
}

// ConstraintOptions tunes BindConstraint.
type ConstraintOptions struct {
	Name           string    // optional node name
	Weights        []float64 // per-driver weight; defaults to 1
	MaintainOffset bool      // keep the driven node where it is at bind time
	AimVector      v3.Vec    // aim constraints: local axis pointing at the driver
	UpVector       v3.Vec    // aim constraints: local up axis
	WorldUp        v3.Vec    // aim constraints: world up direction
}

// WeightAttr names the weight attribute of driver i on a constraint node.
func WeightAttr(i int) string { return fmt.Sprintf("w%d", i) }

// Constraint output attribute names for a channel, e.g. constraintRotateY.
func ConstraintOutput(c Channel, axis int) string {
	switch c {
	case Translate:
		return "constraintTranslate" + Axes[axis]
	case Rotate:
		return "constraintRotate" + Axes[axis]
	default:
		return "constraintScale" + Axes[axis]
	}
}

// ---------------------------------------------------------------------------
// Utility nodes
// ---------------------------------------------------------------------------

// UtilityKind enumerates math utility nodes.
type UtilityKind int

const (
	UtilBlend UtilityKind = iota
	UtilCondition
	UtilMultiplyDivide
	UtilClamp
	UtilReverse
	UtilPlusMinusAverage
	UtilCurveInfo
	UtilDecomposeMatrix // requires CapDecomposeMatrix
	UtilQuatToEuler     // requires CapQuatToEuler
)

func (k UtilityKind) String() string {
	switch k {
	case UtilBlend:
		return "blendColors"
	case UtilCondition:
		return "condition"
	case UtilMultiplyDivide:
		return "multiplyDivide"
	case UtilClamp:
		return "clamp"
	case UtilReverse:
		return "reverse"
	case UtilPlusMinusAverage:
		return "plusMinusAverage"
	case UtilCurveInfo:
		return "curveInfo"
	case UtilDecomposeMatrix:
		return "decomposeMatrix"
	case UtilQuatToEuler:
		return "quatToEuler"
	default:
		return "unknownUtility"
	}
}

// Capability returns the engine capability a utility kind depends on, or "".
func (k UtilityKind) Capability() string {
	switch k {
	case UtilDecomposeMatrix:
		return CapDecomposeMatrix
	case UtilQuatToEuler:
		return CapQuatToEuler
	default:
		return ""
	}
}

// multiplyDivide operations.
const (
	OpNone     = 0
	OpMultiply = 1
	OpDivide   = 2
	OpPower    = 3
)

// condition operations.
const (
	CondEqual        = 0
	CondNotEqual     = 1
	CondGreater      = 2
	CondGreaterEqual = 3
	CondLess         = 4
	CondLessEqual    = 5
)

// plusMinusAverage operations.
const (
	PmaSum      = 1
	PmaSubtract = 2
	PmaAverage  = 3
)

// RGB and XYZ attribute suffixes of utility nodes.
var (
	RGB = [3]string{"R", "G", "B"}
	XYZ = [3]string{"X", "Y", "Z"}
)

// SolverKind enumerates opaque solver handles.
type SolverKind int

const (
	SolverSplineIK SolverKind = iota
)

func (k SolverKind) String() string {
	if k == SolverSplineIK {
		return "ikSplineSolver"
	}
	return "unknownSolver"
}

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// Capability names answered by QueryCapability.
const (
	CapDecomposeMatrix = "decomposeMatrix"
	CapQuatToEuler     = "quatToEuler"
	CapSplineIK        = "splineIK"
)

// ---------------------------------------------------------------------------
// Custom attributes
// ---------------------------------------------------------------------------

// AttrType is the value type of a custom attribute.
type AttrType int

const (
	AttrFloat AttrType = iota
	AttrBool
	AttrInt
	AttrEnum
	AttrString
)

func (t AttrType) String() string {
	switch t {
	case AttrFloat:
		return "float"
	case AttrBool:
		return "bool"
	case AttrInt:
		return "long"
	case AttrEnum:
		return "enum"
	case AttrString:
		return "string"
	default:
		return "unknown"
	}
}

// AttrSpec describes a custom attribute.
type AttrSpec struct {
	Name    string
	Type    AttrType
	Default float64
	Min     *float64 // nil = unbounded
	Max     *float64
	Enum    []string // AttrEnum labels
	Text    string   // AttrString default
	Keyable bool
}

// Bound returns a pointer to v, for AttrSpec Min/Max.
func Bound(v float64) *float64 { return &v }

// Shape is the display geometry attached to a transform.
type Shape struct {
	Kind   string   // e.g. "locator", "proxy", "circle"
	Points []v3.Vec // display points, tessellated vertices for proxies
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine is the narrow capability surface the pipeline consumes. All
// mutation is immediate and visible to subsequent calls.
type Engine interface {
	CreateTransform(name string, parent NodeID) (NodeID, error)
	CreateJoint(name string, parent NodeID) (NodeID, error)
	CreateCurve(name string, parent NodeID, cvs []NodeID, degree int) (NodeID, error)
	CreateSolver(kind SolverKind, name string, start, end, curve NodeID) (NodeID, error)
	DuplicateSubtree(root NodeID, rename func(string) string) (NodeID, map[NodeID]NodeID, error)
	DeleteSubtree(node NodeID) error

	Exists(node NodeID) bool
	Kind(node NodeID) (NodeKind, error)
	Parent(node NodeID) (NodeID, error)
	SetParent(node, parent NodeID) error
	Children(node NodeID) ([]NodeID, error)

	SetLocal(node NodeID, c Channel, v v3.Vec) error
	Local(node NodeID, c Channel) (v3.Vec, error)
	World(node NodeID) (Decomposed, error)
	SetWorld(node NodeID, d Decomposed) error

	BindConstraint(kind ConstraintKind, drivers []NodeID, driven NodeID, opts ConstraintOptions) (NodeID, error)
	CreateUtility(kind UtilityKind, name string) (NodeID, error)
	Connect(src, dst Plug) error
	Disconnect(dst Plug) error
	Input(dst Plug) (Plug, bool)

	AddAttr(node NodeID, spec AttrSpec) error
	HasAttr(p Plug) bool
	SetAttr(p Plug, v float64) error
	Attr(p Plug) (float64, error)
	SetString(p Plug, s string) error
	String(p Plug) (string, error)

	SetShape(node NodeID, s Shape) error
	Shape(node NodeID) (Shape, error)

	QueryCapability(name string) bool
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound   = errors.New("scene: node or attribute not found")
	ErrNameTaken  = errors.New("scene: name already in use")
	ErrConnected  = errors.New("scene: attribute is driven by a connection")
	ErrCycle      = errors.New("scene: dependency cycle")
	ErrCapability = errors.New("scene: capability unavailable")
	ErrInvalid    = errors.New("scene: invalid argument")
)

// CapabilityError reports a missing engine capability.
type CapabilityError struct {
	Capability string
	Op         string
}

func (e *CapabilityError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("scene: capability %q unavailable", e.Capability)
	}
	return fmt.Sprintf("scene: %s requires capability %q", e.Op, e.Capability)
}

// Is makes errors.Is(err, ErrCapability) match.
func (e *CapabilityError) Is(target error) bool { return target == ErrCapability }

// Require returns a CapabilityError when eng lacks the capability.
func Require(eng Engine, capability, op string) error {
	if eng.QueryCapability(capability) {
		return nil
	}
	return &CapabilityError{Capability: capability, Op: op}
}

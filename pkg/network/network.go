// Package network wires a side's IK and FK chains into its result chain
// through a weighted blend, then derives the stretch and volume scale
// channels from the IK curve's arc length.
//
// All of it is built from engine utility nodes, so the rig keeps evaluating
// after the build without this package.
package network

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chazu/sinew/pkg/chain"
	"github.com/chazu/sinew/pkg/guide"
	"github.com/chazu/sinew/pkg/logs"
	"github.com/chazu/sinew/pkg/scene"
)

// World reference control attributes.
const (
	AttrBlend           = "ikFkBlend"
	AttrGlobalStretch   = "globalStretch"
	AttrLocalStretch    = "localStretch"
	AttrVolumeVariation = "volumeVariation"
	AttrMinimumVolume   = "minimumVolume"
	AttrVolumeActive    = "volumeActive"
)

// Stage is a step of the network build. Stages run in order.
type Stage int

const (
	StageBind Stage = iota
	StageStretch
	StageVolume
	StageFinalize
)

func (s Stage) String() string {
	switch s {
	case StageBind:
		return "bind"
	case StageStretch:
		return "stretch"
	case StageVolume:
		return "volume"
	case StageFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// StageError reports the stage a network build failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("network %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

var ErrVolumeRange = errors.New("network: minimum volume must be positive and below the maximum")

// Settings tunes the network.
type Settings struct {
	Degree          int
	VolumeVariation float64
	VolumeMin       float64
	VolumeMax       float64
}

// DefaultSettings matches the configuration defaults.
var DefaultSettings = Settings{Degree: guide.Cubic, VolumeVariation: 1, VolumeMin: 0.01, VolumeMax: 1e6}

// IKControls is the IK half of a side's control set.
type IKControls struct {
	Main, First, Last scene.NodeID
	// Clusters holds one control per curve CV.
	Clusters []scene.NodeID
	Curve    scene.NodeID
	// Solver is None when the engine has no spline IK.
	Solver scene.NodeID
}

// Network is the result of Build.
type Network struct {
	WorldRef   scene.NodeID
	IK         IKControls
	Reverse    scene.NodeID
	CurveInfo  scene.NodeID
	BindLength float64
	// Stretch is the final stretch scalar, Volume the secondary axis scale.
	Stretch  scene.Plug
	Volume   scene.Plug
	Warnings []string
}

// Builder lays out one side's network.
type Builder struct {
	eng      scene.Engine
	spec     chain.Spec
	set      *chain.JointChainSet
	fk       *chain.FKControls
	settings Settings
	log      *slog.Logger

	net   *Network
	w     *wiring
	refDm scene.NodeID
}

// NewBuilder prepares a network for the chains of spec.
func NewBuilder(eng scene.Engine, spec chain.Spec, set *chain.JointChainSet, fk *chain.FKControls, settings Settings, log *slog.Logger) *Builder {
	b := &Builder{eng: eng, spec: spec, set: set, fk: fk, settings: settings, log: logs.OrDiscard(log), net: &Network{}}
	b.w = &wiring{eng: eng, prefix: func(parts ...string) scene.NodeID { return spec.Side.Node(spec.Key, parts...) }}
	return b
}

// Build creates the world reference and IK controls, then runs bind,
// stretch, volume and finalize in that order.
func (b *Builder) Build() (*Network, error) {
	s := b.settings
	if s.VolumeMin <= 0 || s.VolumeMin >= s.VolumeMax {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrVolumeRange, s.VolumeMin, s.VolumeMax)
	}
	if b.set.Len() != b.spec.Segments()+1 || len(b.fk.Ctrls) != b.spec.Segments() {
		return nil, fmt.Errorf("network: chains do not match %d segments", b.spec.Segments())
	}
	if err := b.worldRef(); err != nil {
		return nil, err
	}
	if err := b.ikControls(); err != nil {
		return nil, err
	}
	stages := []struct {
		stage Stage
		run   func() error
	}{
		{StageBind, b.bind},
		{StageStretch, b.stretch},
		{StageVolume, b.volume},
		{StageFinalize, b.finalize},
	}
	for _, st := range stages {
		if err := st.run(); err != nil {
			return nil, &StageError{Stage: st.stage, Err: err}
		}
		b.log.Debug("network stage done", "side", b.spec.Side.Label(), "stage", st.stage)
	}
	return b.net, nil
}

func (b *Builder) node(parts ...string) scene.NodeID { return b.spec.Side.Node(b.spec.Key, parts...) }

func (b *Builder) ref(attr string) scene.Plug { return scene.P(b.net.WorldRef, attr) }

func (b *Builder) warn(msg string, args ...any) {
	b.net.Warnings = append(b.net.Warnings, fmt.Sprintf("%s %s: %s", b.spec.Key, b.spec.Side.Label(), msg))
	b.log.Warn(msg, append([]any{"module", b.spec.Key, "side", b.spec.Side.Label()}, args...)...)
}

func (b *Builder) control(name string, parent scene.NodeID, at scene.NodeID) (scene.NodeID, error) {
	id, err := b.eng.CreateTransform(string(b.node(name)), parent)
	if err != nil {
		return scene.None, err
	}
	if err := b.eng.SetShape(id, scene.Shape{Kind: chain.ControlShape}); err != nil {
		return scene.None, err
	}
	w, err := b.eng.World(at)
	if err != nil {
		return scene.None, err
	}
	// Controls take the placeholder position only.
	if err := b.eng.SetWorld(id, scene.Decomposed{Translate: w.Translate, Scale: b.spec.Side.FlipScale()}); err != nil {
		return scene.None, err
	}
	return id, nil
}

// worldRef creates the control holding every blend-driven attribute.
func (b *Builder) worldRef() error {
	id, err := b.control("WorldRef_Ctrl", b.spec.ControlParent, b.spec.Placeholders[0])
	if err != nil {
		return err
	}
	b.net.WorldRef = id
	attrs := []scene.AttrSpec{
		{Name: AttrBlend, Type: scene.AttrFloat, Min: scene.Bound(0), Max: scene.Bound(1), Keyable: true},
		{Name: AttrGlobalStretch, Type: scene.AttrFloat, Default: 1, Min: scene.Bound(0), Max: scene.Bound(1), Keyable: true},
		{Name: AttrLocalStretch, Type: scene.AttrFloat, Default: 1, Min: scene.Bound(0), Max: scene.Bound(1), Keyable: true},
		{Name: AttrVolumeVariation, Type: scene.AttrFloat, Default: b.settings.VolumeVariation, Min: scene.Bound(0), Keyable: true},
		{Name: AttrMinimumVolume, Type: scene.AttrFloat, Default: b.settings.VolumeMin, Min: scene.Bound(b.settings.VolumeMin), Keyable: true},
		{Name: AttrVolumeActive, Type: scene.AttrBool, Default: 1, Keyable: true},
	}
	for _, a := range attrs {
		if err := b.eng.AddAttr(id, a); err != nil {
			return err
		}
	}
	return nil
}

// ikControls creates the main, first and last IK controls, one cluster
// control per curve CV, the IK curve and, when available, the spline solver.
func (b *Builder) ikControls() error {
	ph := b.spec.Placeholders
	n := b.spec.Segments()
	ik := &b.net.IK
	var err error
	if ik.Main, err = b.control("Ik_Main_Ctrl", b.spec.ControlParent, ph[0]); err != nil {
		return err
	}
	if ik.First, err = b.control("Ik_First_Ctrl", ik.Main, ph[0]); err != nil {
		return err
	}
	if ik.Last, err = b.control("Ik_Last_Ctrl", ik.Main, ph[n]); err != nil {
		return err
	}
	for i := 0; i <= n; i++ {
		parent := ik.Main
		switch i {
		case 0:
			parent = ik.First
		case n:
			parent = ik.Last
		}
		c, err := b.control(fmt.Sprintf("Ik_Cluster%d_Ctrl", i+1), parent, ph[i])
		if err != nil {
			return err
		}
		ik.Clusters = append(ik.Clusters, c)
	}
	degree := b.settings.Degree
	if degree == 0 {
		degree = guide.Cubic
	}
	if ik.Curve, err = b.eng.CreateCurve(string(b.node("Ik_Crv")), b.spec.JointParent, ik.Clusters, degree); err != nil {
		return err
	}
	if !b.eng.QueryCapability(scene.CapSplineIK) {
		b.warn("spline IK unavailable, IK chain is not solved")
		return nil
	}
	ik.Solver, err = b.eng.CreateSolver(scene.SolverSplineIK, string(b.node("Ik_Handle")), b.set.IK[0], chain.End(b.set.IK), ik.Curve)
	return err
}

// bind blends every result joint between its FK and IK counterparts. The
// FK weight is the complement of the blend, computed once.
func (b *Builder) bind() error {
	w := b.w
	rev := w.util(scene.UtilReverse, "IkFk_Rev")
	w.connect(b.ref(AttrBlend), scene.P(rev, "inputX"))
	if w.err != nil {
		return w.err
	}
	b.net.Reverse = rev
	for i := 0; i < b.spec.Segments(); i++ {
		c, err := b.eng.BindConstraint(scene.ParentLike, []scene.NodeID{b.set.FK[i], b.set.IK[i]}, b.set.Result[i], scene.ConstraintOptions{})
		if err != nil {
			return fmt.Errorf("blend %s: %w", b.set.Result[i], err)
		}
		w.connect(scene.P(rev, "outputX"), scene.P(c, scene.WeightAttr(0)))
		w.connect(b.ref(AttrBlend), scene.P(c, scene.WeightAttr(1)))
	}
	return w.err
}

// stretched lists the joints whose primary axis follows the stretch scalar:
// every IK and result joint except the tip and end.
func (b *Builder) stretched() []scene.NodeID {
	n := b.spec.Segments()
	out := make([]scene.NodeID, 0, 2*(n-1))
	out = append(out, b.set.IK[:n-1]...)
	return append(out, b.set.Result[:n-1]...)
}

// stretch measures the IK curve against its bind length and gates the ratio
// through the global, local and IK switches, each blended against 1.
func (b *Builder) stretch() error {
	w := b.w
	info := w.util(scene.UtilCurveInfo, "Ik_CrvInfo")
	w.setString(scene.P(info, "inputCurve"), string(b.net.IK.Curve))
	if w.err != nil {
		return w.err
	}
	length, err := b.eng.Attr(scene.P(info, "arcLength"))
	if err != nil {
		return err
	}
	if length <= 0 {
		return fmt.Errorf("ik curve %s has zero length", b.net.IK.Curve)
	}
	b.net.CurveInfo, b.net.BindLength = info, length

	norm := w.multiplyDivide("Stretch_Norm_Md", scene.OpDivide)
	w.connect(scene.P(info, "arcLength"), scene.P(norm, "input1X"))
	w.connect(b.refScale(), scene.P(norm, "input2X"))

	ratio := w.multiplyDivide("Stretch_Ratio_Md", scene.OpDivide)
	w.connect(scene.P(norm, "outputX"), scene.P(ratio, "input1X"))
	w.set(scene.P(ratio, "input2X"), length)

	global := w.blend("Stretch_Global_Bc", scene.P(ratio, "outputX"), 1, b.ref(AttrGlobalStretch))
	local := w.blend("Stretch_Local_Bc", scene.P(global, "outputR"), 1, b.ref(AttrLocalStretch))
	final := w.blend("Stretch_Final_Bc", scene.P(local, "outputR"), 1, b.ref(AttrBlend))
	b.net.Stretch = scene.P(final, "outputR")

	for _, j := range b.stretched() {
		w.connect(b.net.Stretch, scene.P(j, "scaleX"))
	}
	return w.err
}

// refScale returns the magnitude of the world reference's world X scale.
// The arc length is measured in world space, so any scale above the world
// reference must cancel out. Without matrix decomposition only the local
// scale is known.
func (b *Builder) refScale() scene.Plug {
	w := b.w
	src := b.ref("scaleX")
	if b.eng.QueryCapability(scene.CapDecomposeMatrix) {
		b.refDm = w.util(scene.UtilDecomposeMatrix, "WorldRef_Dm")
		w.setString(scene.P(b.refDm, "inputNode"), string(b.net.WorldRef))
		src = scene.P(b.refDm, "outputScaleX")
	} else {
		b.warn("matrix decomposition unavailable, parent scale reads as stretch")
	}
	// A flipped side carries a negative scale.
	sq := w.multiplyDivide("Stretch_RefSq_Md", scene.OpMultiply)
	w.connect(src, scene.P(sq, "input1X"))
	w.connect(src, scene.P(sq, "input2X"))
	abs := w.multiplyDivide("Stretch_RefAbs_Md", scene.OpPower)
	w.connect(scene.P(sq, "outputX"), scene.P(abs, "input1X"))
	w.set(scene.P(abs, "input2X"), 0.5)
	return scene.P(abs, "outputX")
}

// volume scales the secondary axes by stretch^-0.5, blended by the
// variation amount, floored at the minimum volume and bypassed when
// inactive.
func (b *Builder) volume() error {
	w := b.w
	pow := w.multiplyDivide("Volume_Pow_Md", scene.OpPower)
	w.connect(b.net.Stretch, scene.P(pow, "input1X"))
	w.set(scene.P(pow, "input2X"), -0.5)

	amount := w.blend("Volume_Variation_Bc", scene.P(pow, "outputX"), 1, b.ref(AttrVolumeVariation))

	clamp := w.util(scene.UtilClamp, "Volume_Clp")
	w.connect(scene.P(amount, "outputR"), scene.P(clamp, "inputR"))
	w.connect(b.ref(AttrMinimumVolume), scene.P(clamp, "minR"))
	w.set(scene.P(clamp, "maxR"), b.settings.VolumeMax)

	active := w.util(scene.UtilCondition, "Volume_Active_Cnd")
	w.connect(b.ref(AttrVolumeActive), scene.P(active, "firstTerm"))
	w.set(scene.P(active, "secondTerm"), 1)
	w.set(scene.P(active, "operation"), scene.CondEqual)
	w.connect(scene.P(clamp, "outputR"), scene.P(active, "colorIfTrueR"))
	w.set(scene.P(active, "colorIfFalseR"), 1)
	b.net.Volume = scene.P(active, "outColorR")

	for _, j := range b.stretched() {
		w.connect(b.net.Volume, scene.P(j, "scaleY"))
		w.connect(b.net.Volume, scene.P(j, "scaleZ"))
	}
	return w.err
}

// finalize drives the tip scales. The IK tip follows the last IK control,
// and the result tip blends the world scales of the last IK and FK controls
// divided by the world reference's own world scale. Without matrix
// decomposition the local control scales are blended instead. End joints
// inherit the tip scale from their parent.
func (b *Builder) finalize() error {
	w := b.w
	n := b.spec.Segments()
	ik := b.net.IK
	fkLast := b.fk.Ctrls[n-1]
	tip := chain.Tip(b.set.Result)

	w.triple(ik.Last, scene.Scale.Attrs(), chain.Tip(b.set.IK), scene.Scale.Attrs())

	if !b.eng.QueryCapability(scene.CapDecomposeMatrix) {
		b.warn("matrix decomposition unavailable, tip scale uses local control scale")
		blend := w.util(scene.UtilBlend, "Tip_Scale_Bc")
		w.triple(ik.Last, scene.Scale.Attrs(), blend, scene.Prefixed("color1", scene.RGB))
		w.triple(fkLast, scene.Scale.Attrs(), blend, scene.Prefixed("color2", scene.RGB))
		w.connect(b.ref(AttrBlend), scene.P(blend, "blender"))
		w.triple(blend, scene.Prefixed("output", scene.RGB), tip, scene.Scale.Attrs())
		if w.err != nil {
			return w.err
		}
		b.warn("twist extraction skipped", "capability", scene.CapDecomposeMatrix)
		return nil
	}

	decIK := w.util(scene.UtilDecomposeMatrix, "Ik_Last_Dm")
	w.setString(scene.P(decIK, "inputNode"), string(ik.Last))
	decFK := w.util(scene.UtilDecomposeMatrix, "Fk_Last_Dm")
	w.setString(scene.P(decFK, "inputNode"), string(fkLast))
	decRef := b.refDm

	scaleOut := scene.Prefixed("outputScale", scene.XYZ)
	blend := w.util(scene.UtilBlend, "Tip_Scale_Bc")
	w.triple(decIK, scaleOut, blend, scene.Prefixed("color1", scene.RGB))
	w.triple(decFK, scaleOut, blend, scene.Prefixed("color2", scene.RGB))
	w.connect(b.ref(AttrBlend), scene.P(blend, "blender"))

	comp := w.multiplyDivide("Tip_Scale_Md", scene.OpDivide)
	w.triple(blend, scene.Prefixed("output", scene.RGB), comp, scene.Prefixed("input1", scene.XYZ))
	w.triple(decRef, scaleOut, comp, scene.Prefixed("input2", scene.XYZ))
	w.triple(comp, scene.Prefixed("output", scene.XYZ), tip, scene.Scale.Attrs())
	if w.err != nil {
		return w.err
	}
	return b.twist(decIK)
}

// twist feeds the last IK control's rotation about the chain into the
// spline solver.
func (b *Builder) twist(dec scene.NodeID) error {
	if b.net.IK.Solver.IsZero() {
		return nil
	}
	if err := scene.Require(b.eng, scene.CapQuatToEuler, "twist extraction"); err != nil {
		b.warn("twist extraction skipped", "capability", scene.CapQuatToEuler)
		return nil
	}
	w := b.w
	q := w.util(scene.UtilQuatToEuler, "Ik_Twist_Qte")
	for _, c := range []string{"X", "Y", "Z", "W"} {
		w.connect(scene.P(dec, "outputQuat"+c), scene.P(q, "inputQuat"+c))
	}
	w.connect(scene.P(q, "outputRotateX"), scene.P(b.net.IK.Solver, "twist"))
	return w.err
}

// ScaleHook makes a side's scalable hook follow the world reference's scale.
func ScaleHook(eng scene.Engine, worldRef, scalable scene.NodeID) error {
	_, err := eng.BindConstraint(scene.ScaleLike, []scene.NodeID{worldRef}, scalable, scene.ConstraintOptions{MaintainOffset: true})
	return err
}

// FKOnly binds every result joint directly to its FK joint, for modules
// built without IK.
func FKOnly(eng scene.Engine, set *chain.JointChainSet) error {
	for i := 0; i < set.Len()-1; i++ {
		if _, err := eng.BindConstraint(scene.ParentLike, []scene.NodeID{set.FK[i]}, set.Result[i], scene.ConstraintOptions{}); err != nil {
			return err
		}
		if err := scene.ConnectChannel(eng, set.FK[i], set.Result[i], scene.Scale); err != nil {
			return err
		}
	}
	return nil
}

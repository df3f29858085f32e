package memory

import (
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

type worldEntry struct {
	m sdf.M44
}

// eval resolves a plug: connections are followed, outputs are computed,
// everything else returns the stored value. Results are cached until the
// next mutation.
func (s *Scene) eval(p scene.Plug) (float64, error) {
	if v, ok := s.cache[p]; ok {
		return v, nil
	}
	if s.evaluating[p] {
		return 0, fmt.Errorf("%w: while evaluating %s", scene.ErrCycle, p)
	}
	n, a, err := s.attr(p)
	if err != nil {
		return 0, err
	}
	s.evaluating[p] = true
	defer delete(s.evaluating, p)

	var v float64
	switch {
	case a.input != nil:
		v, err = s.eval(*a.input)
	case a.output:
		v, err = s.compute(n, p.Attr)
	default:
		v = a.value
	}
	if err != nil {
		return 0, err
	}
	s.cache[p] = v
	return v, nil
}

func (s *Scene) in(n *node, name string) (float64, error) {
	return s.eval(scene.P(n.id, name))
}

func (s *Scene) compute(n *node, name string) (float64, error) {
	switch n.kind {
	case scene.KindUtility:
		return s.computeUtility(n, name)
	case scene.KindConstraint:
		return s.computeConstraint(n, name)
	default:
		return 0, fmt.Errorf("%w: %s has no compute for %s", scene.ErrInvalid, n.id, name)
	}
}

// ---------------------------------------------------------------------------
// World matrices
// ---------------------------------------------------------------------------

func (s *Scene) localMatrix(id scene.NodeID) (sdf.M44, error) {
	t, err := s.Local(id, scene.Translate)
	if err != nil {
		return sdf.M44{}, err
	}
	r, err := s.Local(id, scene.Rotate)
	if err != nil {
		return sdf.M44{}, err
	}
	sc, err := s.Local(id, scene.Scale)
	if err != nil {
		return sdf.M44{}, err
	}
	return xform.Compose(t, r, sc), nil
}

func (s *Scene) worldMatrix(id scene.NodeID) (sdf.M44, error) {
	if e, ok := s.worldCache[id]; ok {
		return e.m, nil
	}
	n, err := s.get(id)
	if err != nil {
		return sdf.M44{}, err
	}
	if !n.kind.IsDag() {
		return sdf.M44{}, fmt.Errorf("%w: %q has no world transform", scene.ErrInvalid, id)
	}
	if s.worldEval[id] {
		return sdf.M44{}, fmt.Errorf("%w: world transform of %q depends on itself", scene.ErrCycle, id)
	}
	s.worldEval[id] = true
	defer delete(s.worldEval, id)

	m, err := s.localMatrix(id)
	if err != nil {
		return sdf.M44{}, err
	}
	if !n.parent.IsZero() {
		pw, err := s.worldMatrix(n.parent)
		if err != nil {
			return sdf.M44{}, err
		}
		m = pw.Mul(m)
	}
	s.worldCache[id] = worldEntry{m: m}
	return m, nil
}

// parentMatrix returns the world matrix of id's parent, identity at the root.
func (s *Scene) parentMatrix(id scene.NodeID) (sdf.M44, error) {
	n, err := s.get(id)
	if err != nil {
		return sdf.M44{}, err
	}
	if n.parent.IsZero() {
		return sdf.Identity3d(), nil
	}
	return s.worldMatrix(n.parent)
}

func (s *Scene) worldPosition(id scene.NodeID) (v3.Vec, error) {
	m, err := s.worldMatrix(id)
	if err != nil {
		return v3.Vec{}, err
	}
	return m.MulPosition(v3.Vec{}), nil
}

// ---------------------------------------------------------------------------
// Utility nodes
// ---------------------------------------------------------------------------

// CreateUtility implements scene.Engine.
func (s *Scene) CreateUtility(kind scene.UtilityKind, name string) (scene.NodeID, error) {
	if c := kind.Capability(); c != "" && !s.caps[c] {
		return scene.None, &scene.CapabilityError{Capability: c, Op: "CreateUtility(" + kind.String() + ")"}
	}
	n, err := s.newNode(name, scene.KindUtility, scene.None)
	if err != nil {
		return scene.None, err
	}
	n.utility = kind
	switch kind {
	case scene.UtilBlend:
		for _, c := range scene.RGB {
			n.addBuiltin("color1"+c, 0)
			n.addBuiltin("color2"+c, 0)
			n.addOutput("output" + c)
		}
		n.addBuiltin("blender", 0.5)
	case scene.UtilCondition:
		n.addBuiltin("firstTerm", 0)
		n.addBuiltin("secondTerm", 0)
		n.addBuiltin("operation", scene.CondEqual)
		for _, c := range scene.RGB {
			n.addBuiltin("colorIfTrue"+c, 0)
			n.addBuiltin("colorIfFalse"+c, 1)
			n.addOutput("outColor" + c)
		}
	case scene.UtilMultiplyDivide:
		n.addBuiltin("operation", scene.OpMultiply)
		for _, c := range scene.XYZ {
			n.addBuiltin("input1"+c, 0)
			n.addBuiltin("input2"+c, 1)
			n.addOutput("output" + c)
		}
	case scene.UtilClamp:
		for _, c := range scene.RGB {
			n.addBuiltin("min"+c, 0)
			n.addBuiltin("max"+c, 0)
			n.addBuiltin("input"+c, 0)
			n.addOutput("output" + c)
		}
	case scene.UtilReverse:
		for _, c := range scene.XYZ {
			n.addBuiltin("input"+c, 0)
			n.addOutput("output" + c)
		}
	case scene.UtilPlusMinusAverage:
		n.addBuiltin("operation", scene.PmaSum)
		for i := range pmaSlots {
			n.addBuiltin(PmaInput(i), 0).touched = false
		}
		n.addOutput("output1D")
	case scene.UtilCurveInfo:
		n.addText("inputCurve", "")
		n.addOutput("arcLength")
	case scene.UtilDecomposeMatrix:
		n.addText("inputNode", "")
		for _, c := range scene.XYZ {
			n.addOutput("outputTranslate" + c)
			n.addOutput("outputRotate" + c)
			n.addOutput("outputScale" + c)
			n.addOutput("outputQuat" + c)
		}
		n.addOutput("outputQuatW")
	case scene.UtilQuatToEuler:
		for _, c := range scene.XYZ {
			n.addBuiltin("inputQuat"+c, 0)
			n.addOutput("outputRotate" + c)
		}
		n.addBuiltin("inputQuatW", 1)
	default:
		return scene.None, fmt.Errorf("%w: utility kind %d", scene.ErrInvalid, kind)
	}
	return n.id, nil
}

const pmaSlots = 8

// PmaInput names slot i of a plusMinusAverage node.
func PmaInput(i int) string { return fmt.Sprintf("input1D[%d]", i) }

// suffixIndex maps the trailing R/G/B or X/Y/Z of an attribute to 0..2.
func suffixIndex(name string) int {
	switch name[len(name)-1] {
	case 'R', 'X':
		return 0
	case 'G', 'Y':
		return 1
	default:
		return 2
	}
}

func (s *Scene) computeUtility(n *node, name string) (float64, error) {
	i := suffixIndex(name)
	switch n.utility {
	case scene.UtilBlend:
		c1, err := s.in(n, "color1"+scene.RGB[i])
		if err != nil {
			return 0, err
		}
		c2, err := s.in(n, "color2"+scene.RGB[i])
		if err != nil {
			return 0, err
		}
		b, err := s.in(n, "blender")
		if err != nil {
			return 0, err
		}
		return c1*b + c2*(1-b), nil

	case scene.UtilCondition:
		first, err := s.in(n, "firstTerm")
		if err != nil {
			return 0, err
		}
		second, err := s.in(n, "secondTerm")
		if err != nil {
			return 0, err
		}
		op, err := s.in(n, "operation")
		if err != nil {
			return 0, err
		}
		if compare(int(op), first, second) {
			return s.in(n, "colorIfTrue"+scene.RGB[i])
		}
		return s.in(n, "colorIfFalse"+scene.RGB[i])

	case scene.UtilMultiplyDivide:
		a, err := s.in(n, "input1"+scene.XYZ[i])
		if err != nil {
			return 0, err
		}
		b, err := s.in(n, "input2"+scene.XYZ[i])
		if err != nil {
			return 0, err
		}
		op, err := s.in(n, "operation")
		if err != nil {
			return 0, err
		}
		switch int(op) {
		case scene.OpMultiply:
			return a * b, nil
		case scene.OpDivide:
			if b == 0 {
				return a, nil
			}
			return a / b, nil
		case scene.OpPower:
			return math.Pow(a, b), nil
		default:
			return a, nil
		}

	case scene.UtilClamp:
		lo, err := s.in(n, "min"+scene.RGB[i])
		if err != nil {
			return 0, err
		}
		hi, err := s.in(n, "max"+scene.RGB[i])
		if err != nil {
			return 0, err
		}
		v, err := s.in(n, "input"+scene.RGB[i])
		if err != nil {
			return 0, err
		}
		if hi < lo {
			return v, nil
		}
		return math.Min(math.Max(v, lo), hi), nil

	case scene.UtilReverse:
		v, err := s.in(n, "input"+scene.XYZ[i])
		if err != nil {
			return 0, err
		}
		return 1 - v, nil

	case scene.UtilPlusMinusAverage:
		return s.computePma(n)

	case scene.UtilCurveInfo:
		curve := n.attrs["inputCurve"].text
		if curve == "" {
			return 0, nil
		}
		return s.arcLength(scene.NodeID(curve))

	case scene.UtilDecomposeMatrix:
		return s.computeDecompose(n, name)

	case scene.UtilQuatToEuler:
		var q [4]float64
		for k, c := range []string{"X", "Y", "Z", "W"} {
			v, err := s.in(n, "inputQuat"+c)
			if err != nil {
				return 0, err
			}
			q[k] = v
		}
		e := xform.ToEuler(xform.Quat(q[0], q[1], q[2], q[3]))
		return [3]float64{e.X, e.Y, e.Z}[i], nil
	}
	return 0, fmt.Errorf("%w: %s.%s", scene.ErrInvalid, n.id, name)
}

func compare(op int, a, b float64) bool {
	switch op {
	case scene.CondEqual:
		return a == b
	case scene.CondNotEqual:
		return a != b
	case scene.CondGreater:
		return a > b
	case scene.CondGreaterEqual:
		return a >= b
	case scene.CondLess:
		return a < b
	case scene.CondLessEqual:
		return a <= b
	}
	return false
}

func (s *Scene) computePma(n *node) (float64, error) {
	op, err := s.in(n, "operation")
	if err != nil {
		return 0, err
	}
	var vals []float64
	for i := range pmaSlots {
		name := PmaInput(i)
		if !n.attrs[name].touched {
			continue
		}
		v, err := s.in(n, name)
		if err != nil {
			return 0, err
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	switch int(op) {
	case scene.PmaSubtract:
		out := vals[0]
		for _, v := range vals[1:] {
			out -= v
		}
		return out, nil
	case scene.PmaAverage:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals)), nil
	default:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum, nil
	}
}

func (s *Scene) computeDecompose(n *node, name string) (float64, error) {
	target := n.attrs["inputNode"].text
	if target == "" {
		return 0, nil
	}
	m, err := s.worldMatrix(scene.NodeID(target))
	if err != nil {
		return 0, err
	}
	t, r, sc := xform.Decompose(m)
	i := suffixIndex(name)
	pick := func(v v3.Vec) float64 { return [3]float64{v.X, v.Y, v.Z}[i] }
	switch {
	case strings.HasPrefix(name, "outputTranslate"):
		return pick(t), nil
	case strings.HasPrefix(name, "outputRotate"):
		return pick(r), nil
	case strings.HasPrefix(name, "outputScale"):
		return pick(sc), nil
	case name == "outputQuatW":
		return xform.FromEuler(r).Real, nil
	case strings.HasPrefix(name, "outputQuat"):
		q := xform.FromEuler(r)
		return [3]float64{q.Imag, q.Jmag, q.Kmag}[i], nil
	}
	return 0, fmt.Errorf("%w: %s.%s", scene.ErrInvalid, n.id, name)
}

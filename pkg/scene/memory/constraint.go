package memory

import (
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/xform"
)

// constraintData is the bind-time state of a constraint node.
type constraintData struct {
	kind    scene.ConstraintKind
	driven  scene.NodeID
	drivers []scene.NodeID

	// offsets[i] maps driver i's world matrix onto the driven node's world
	// matrix at bind time. Identity without maintainOffset.
	offsets []sdf.M44
	// scaleOffsets[i] is driven/driver world scale at bind time (ScaleLike).
	scaleOffsets []v3.Vec
	// aimOffset is applied after the aim rotation (AimLike).
	aimOffset quat.Number

	aim, up, worldUp v3.Vec
	rest             solution
}

// solution is a constraint result expressed in the driven node's local space.
type solution struct {
	t, r, s v3.Vec
}

// BindConstraint implements scene.Engine. The constraint writes the driven
// node's channels through connections from its constraint* outputs, so the
// driven channels must be free.
func (s *Scene) BindConstraint(kind scene.ConstraintKind, drivers []scene.NodeID, driven scene.NodeID, opts scene.ConstraintOptions) (scene.NodeID, error) {
	if len(drivers) == 0 {
		return scene.None, fmt.Errorf("%w: %s without drivers", scene.ErrInvalid, kind)
	}
	if len(opts.Weights) != 0 && len(opts.Weights) != len(drivers) {
		return scene.None, fmt.Errorf("%w: %d weights for %d drivers", scene.ErrInvalid, len(opts.Weights), len(drivers))
	}
	dn, err := s.get(driven)
	if err != nil {
		return scene.None, err
	}
	if !dn.kind.IsDag() {
		return scene.None, fmt.Errorf("%w: driven %q is not a dag node", scene.ErrInvalid, driven)
	}
	for _, d := range drivers {
		if d == driven {
			return scene.None, fmt.Errorf("%w: %q cannot drive itself", scene.ErrCycle, driven)
		}
		dr, err := s.get(d)
		if err != nil {
			return scene.None, err
		}
		if !dr.kind.IsDag() {
			return scene.None, fmt.Errorf("%w: driver %q is not a dag node", scene.ErrInvalid, d)
		}
	}
	for _, ch := range kind.Drives() {
		for _, a := range ch.Attrs() {
			if in := dn.attrs[a].input; in != nil {
				return scene.None, fmt.Errorf("%w: %s.%s <- %s", scene.ErrConnected, driven, a, *in)
			}
		}
	}

	c := &constraintData{
		kind:    kind,
		driven:  driven,
		drivers: append([]scene.NodeID(nil), drivers...),
		aim:     orDefault(opts.AimVector, v3.Vec{X: 1}),
		up:      orDefault(opts.UpVector, v3.Vec{Y: 1}),
		worldUp: orDefault(opts.WorldUp, v3.Vec{Y: 1}),
	}
	if c.rest.t, err = s.Local(driven, scene.Translate); err != nil {
		return scene.None, err
	}
	if c.rest.r, err = s.Local(driven, scene.Rotate); err != nil {
		return scene.None, err
	}
	if c.rest.s, err = s.Local(driven, scene.Scale); err != nil {
		return scene.None, err
	}

	drivenW, err := s.worldMatrix(driven)
	if err != nil {
		return scene.None, err
	}
	_, drivenR, drivenS := xform.Decompose(drivenW)
	for _, d := range drivers {
		dw, err := s.worldMatrix(d)
		if err != nil {
			return scene.None, err
		}
		off, scaleOff := sdf.Identity3d(), xform.Unit
		if opts.MaintainOffset {
			off = dw.Inverse().Mul(drivenW)
			_, _, ds := xform.Decompose(dw)
			scaleOff = v3.Vec{X: ratio(drivenS.X, ds.X), Y: ratio(drivenS.Y, ds.Y), Z: ratio(drivenS.Z, ds.Z)}
		}
		c.offsets = append(c.offsets, off)
		c.scaleOffsets = append(c.scaleOffsets, scaleOff)
	}
	c.aimOffset = quat.Number{Real: 1}

	name := opts.Name
	if name == "" {
		name = string(driven) + "_" + kind.String()
	}
	n, err := s.newNode(name, scene.KindConstraint, scene.None)
	if err != nil {
		return scene.None, err
	}
	n.constraint = c
	for i := range drivers {
		w := 1.0
		if len(opts.Weights) != 0 {
			w = opts.Weights[i]
		}
		a := n.addBuiltin(scene.WeightAttr(i), w)
		a.spec.Min = scene.Bound(0)
	}
	n.addBuiltin("interpType", 1)
	for _, ch := range kind.Drives() {
		for i := range 3 {
			n.addOutput(scene.ConstraintOutput(ch, i))
		}
	}

	if kind == scene.AimLike && opts.MaintainOffset {
		sol, err := s.solve(n)
		if err != nil {
			delete(s.nodes, n.id)
			return scene.None, err
		}
		parentW, err := s.parentMatrix(driven)
		if err != nil {
			delete(s.nodes, n.id)
			return scene.None, err
		}
		_, aimedR, _ := xform.Decompose(parentW.Mul(xform.Compose(sol.t, sol.r, xform.Unit)))
		c.aimOffset = quat.Mul(quat.Conj(xform.FromEuler(aimedR)), xform.FromEuler(drivenR))
	}

	for _, ch := range kind.Drives() {
		for i, a := range ch.Attrs() {
			src := scene.P(n.id, scene.ConstraintOutput(ch, i))
			dn.attrs[a].input = &src
			dn.attrs[a].touched = true
		}
	}
	s.invalidate()
	return n.id, nil
}

func orDefault(v, def v3.Vec) v3.Vec {
	if v.Length() < xform.Epsilon {
		return def
	}
	return v.MulScalar(1 / v.Length())
}

func ratio(a, b float64) float64 {
	if math.Abs(b) < xform.Epsilon {
		return 1
	}
	return a / b
}

func (s *Scene) computeConstraint(n *node, name string) (float64, error) {
	sol, err := s.solve(n)
	if err != nil {
		return 0, err
	}
	i := suffixIndex(name)
	pick := func(v v3.Vec) float64 { return [3]float64{v.X, v.Y, v.Z}[i] }
	switch {
	case strings.HasPrefix(name, "constraintTranslate"):
		return pick(sol.t), nil
	case strings.HasPrefix(name, "constraintRotate"):
		return pick(sol.r), nil
	case strings.HasPrefix(name, "constraintScale"):
		return pick(sol.s), nil
	}
	return 0, fmt.Errorf("%w: %s.%s", scene.ErrInvalid, n.id, name)
}

// solve evaluates the constraint once per cache generation.
func (s *Scene) solve(n *node) (solution, error) {
	if sol, ok := s.solved[n.id]; ok {
		return sol, nil
	}
	c := n.constraint
	weights := make([]float64, len(c.drivers))
	total := 0.0
	for i := range c.drivers {
		w, err := s.in(n, scene.WeightAttr(i))
		if err != nil {
			return solution{}, err
		}
		weights[i] = w
		total += w
	}
	if total < xform.Epsilon {
		s.solved[n.id] = c.rest
		return c.rest, nil
	}
	parentW, err := s.parentMatrix(c.driven)
	if err != nil {
		return solution{}, err
	}

	var sol solution
	switch c.kind {
	case scene.ScaleLike:
		sol, err = s.solveScale(c, weights, total, parentW)
	case scene.AimLike:
		sol, err = s.solveAim(c, weights, total, parentW)
	default:
		sol, err = s.solveBlend(c, weights, total, parentW)
	}
	if err != nil {
		return solution{}, err
	}
	s.solved[n.id] = sol
	return sol, nil
}

// solveBlend handles parent, orient and point constraints: driver targets
// are averaged in translation and scale and slerped in rotation, then
// brought into the driven node's parent space.
func (s *Scene) solveBlend(c *constraintData, weights []float64, total float64, parentW sdf.M44) (solution, error) {
	var t, sc v3.Vec
	var q quat.Number
	acc := 0.0
	for i, d := range c.drivers {
		w := weights[i]
		if w <= 0 {
			continue
		}
		dw, err := s.worldMatrix(d)
		if err != nil {
			return solution{}, err
		}
		ti, ri, si := xform.Decompose(dw.Mul(c.offsets[i]))
		t = t.Add(ti.MulScalar(w / total))
		sc = sc.Add(si.MulScalar(w / total))
		qi := xform.FromEuler(ri)
		if acc == 0 {
			q = qi
		} else {
			q = xform.Slerp(q, qi, w/(acc+w))
		}
		acc += w
	}
	target := xform.Compose(t, xform.ToEuler(q), sc)
	lt, lr, _ := xform.Decompose(parentW.Inverse().Mul(target))
	return solution{t: lt, r: lr, s: c.rest.s}, nil
}

func (s *Scene) solveScale(c *constraintData, weights []float64, total float64, parentW sdf.M44) (solution, error) {
	var sc v3.Vec
	for i, d := range c.drivers {
		if weights[i] <= 0 {
			continue
		}
		dw, err := s.worldMatrix(d)
		if err != nil {
			return solution{}, err
		}
		_, _, ds := xform.Decompose(dw)
		off := c.scaleOffsets[i]
		ds = v3.Vec{X: ds.X * off.X, Y: ds.Y * off.Y, Z: ds.Z * off.Z}
		sc = sc.Add(ds.MulScalar(weights[i] / total))
	}
	_, _, ps := xform.Decompose(parentW)
	local := v3.Vec{X: ratio(sc.X, ps.X), Y: ratio(sc.Y, ps.Y), Z: ratio(sc.Z, ps.Z)}
	return solution{t: c.rest.t, r: c.rest.r, s: local}, nil
}

// solveAim points the aim axis at the weighted driver position with the up
// axis as close to worldUp as possible. The driven position comes from its
// own local translate so the solve never reads the driven world matrix.
func (s *Scene) solveAim(c *constraintData, weights []float64, total float64, parentW sdf.M44) (solution, error) {
	lt, err := s.Local(c.driven, scene.Translate)
	if err != nil {
		return solution{}, err
	}
	p := parentW.MulPosition(lt)
	var target v3.Vec
	for i, d := range c.drivers {
		if weights[i] <= 0 {
			continue
		}
		pos, err := s.worldPosition(d)
		if err != nil {
			return solution{}, err
		}
		target = target.Add(pos.MulScalar(weights[i] / total))
	}
	dir := target.Sub(p)
	if dir.Length() < xform.Epsilon {
		return c.rest, nil
	}
	a := dir.MulScalar(1 / dir.Length())
	up := c.worldUp
	if math.Abs(up.Dot(a)) > 1-1e-6 {
		up = v3.Vec{Z: 1}
	}
	u := up.Sub(a.MulScalar(up.Dot(a)))
	u = u.MulScalar(1 / u.Length())
	w := a.Cross(u)

	av, uv := c.aim, c.up
	uv = uv.Sub(av.MulScalar(uv.Dot(av)))
	if uv.Length() < xform.Epsilon {
		return solution{}, fmt.Errorf("%w: aim and up vectors are parallel", scene.ErrInvalid)
	}
	uv = uv.MulScalar(1 / uv.Length())
	wv := av.Cross(uv)

	col := func(k int) v3.Vec {
		pick := func(v v3.Vec) float64 { return [3]float64{v.X, v.Y, v.Z}[k] }
		return a.MulScalar(pick(av)).Add(u.MulScalar(pick(uv))).Add(w.MulScalar(pick(wv)))
	}
	world := xform.FromBasis(col(0), col(1), col(2))
	if c.aimOffset != (quat.Number{Real: 1}) {
		world = xform.ToEuler(quat.Mul(xform.FromEuler(world), c.aimOffset))
	}

	_, lr, _ := xform.Decompose(parentW.Inverse().Mul(xform.Compose(p, world, xform.Unit)))
	return solution{t: lt, r: lr, s: c.rest.s}, nil
}

package memory

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/scene"
)

// samplesPerSpan controls the arc-length integration of cubic curves.
const samplesPerSpan = 32

// curveData holds the control vertices of a curve. CVs are transforms; the
// curve follows their world positions.
type curveData struct {
	cvs    []scene.NodeID
	degree int
}

// CreateCurve implements scene.Engine. degree is 1 (polyline) or 3 (clamped
// uniform B-spline).
func (s *Scene) CreateCurve(name string, parent scene.NodeID, cvs []scene.NodeID, degree int) (scene.NodeID, error) {
	if degree != 1 && degree != 3 {
		return scene.None, fmt.Errorf("%w: curve degree %d", scene.ErrInvalid, degree)
	}
	if len(cvs) < 2 {
		return scene.None, fmt.Errorf("%w: curve needs at least 2 cvs, got %d", scene.ErrInvalid, len(cvs))
	}
	for _, cv := range cvs {
		n, err := s.get(cv)
		if err != nil {
			return scene.None, err
		}
		if !n.kind.IsDag() {
			return scene.None, fmt.Errorf("%w: cv %q is not a dag node", scene.ErrInvalid, cv)
		}
	}
	n, err := s.newNode(name, scene.KindCurve, parent)
	if err != nil {
		return scene.None, err
	}
	n.curve = &curveData{cvs: append([]scene.NodeID(nil), cvs...), degree: degree}
	n.addBuiltin("degree", float64(degree))
	return n.id, nil
}

// CurvePoints samples a curve in world space.
func (s *Scene) CurvePoints(id scene.NodeID) ([]v3.Vec, error) {
	n, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if n.curve == nil {
		return nil, fmt.Errorf("%w: %q is not a curve", scene.ErrInvalid, id)
	}
	pts := make([]v3.Vec, len(n.curve.cvs))
	for i, cv := range n.curve.cvs {
		if pts[i], err = s.worldPosition(cv); err != nil {
			return nil, err
		}
	}
	if n.curve.degree == 1 || len(pts) < 4 {
		return pts, nil
	}
	spans := len(pts) - 3
	out := make([]v3.Vec, 0, spans*samplesPerSpan+1)
	knots := clampedKnots(len(pts), 3)
	steps := spans * samplesPerSpan
	for k := 0; k <= steps; k++ {
		u := float64(k) / float64(steps) * float64(spans)
		out = append(out, deBoor(pts, knots, 3, u))
	}
	return out, nil
}

func (s *Scene) arcLength(id scene.NodeID) (float64, error) {
	pts, err := s.CurvePoints(id)
	if err != nil {
		return 0, err
	}
	length := 0.0
	for i := 1; i < len(pts); i++ {
		length += pts[i].Sub(pts[i-1]).Length()
	}
	return length, nil
}

// clampedKnots returns an open uniform knot vector over [0, n-degree].
func clampedKnots(n, degree int) []float64 {
	knots := make([]float64, n+degree+1)
	for i := range knots {
		switch {
		case i <= degree:
			knots[i] = 0
		case i >= n:
			knots[i] = float64(n - degree)
		default:
			knots[i] = float64(i - degree)
		}
	}
	return knots
}

func deBoor(pts []v3.Vec, knots []float64, p int, u float64) v3.Vec {
	n := len(pts)
	k := p
	for k < n-1 && u >= knots[k+1] {
		k++
	}
	d := make([]v3.Vec, p+1)
	for j := 0; j <= p; j++ {
		d[j] = pts[j+k-p]
	}
	for r := 1; r <= p; r++ {
		for j := p; j >= r; j-- {
			den := knots[j+1+k-r] - knots[j+k-p]
			alpha := 0.0
			if den != 0 {
				alpha = (u - knots[j+k-p]) / den
			}
			d[j] = d[j-1].MulScalar(1 - alpha).Add(d[j].MulScalar(alpha))
		}
	}
	return d[p]
}

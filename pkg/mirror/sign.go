package mirror

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/xform"
)

// Role is the part of a module a sign rule applies to.
type Role int

const (
	RoleResult Role = iota
	RoleIK
	RoleFK
)

func (r Role) String() string {
	switch r {
	case RoleResult:
		return "result"
	case RoleIK:
		return "ik"
	case RoleFK:
		return "fk"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Sign is the correction applied to one role's zero groups on one side.
type Sign struct {
	// FirstZeroScale multiplies the scale of the first zero group.
	FirstZeroScale v3.Vec
	// NegateTranslate and NegateRotate negate the local channels of every
	// zero group after the first.
	NegateTranslate bool
	NegateRotate    bool
	// MaintainOffset binds joints to their controls keeping the bind pose.
	MaintainOffset bool
}

// Identity is the sign of every role that needs no correction.
var Identity = Sign{FirstZeroScale: xform.Unit}

type signKey struct {
	mirrored bool
	flip     bool
	role     Role
}

// signTable lists every non-identity entry. A serial FK chain on a
// point-mirrored second side rotates the wrong way without the correction.
var signTable = map[signKey]Sign{
	{mirrored: true, flip: false, role: RoleFK}: {
		FirstZeroScale:  v3.Vec{X: -1, Y: -1, Z: -1},
		NegateTranslate: true,
		NegateRotate:    true,
		MaintainOffset:  true,
	},
}

// SignFor returns the sign rule for a role on a side.
func SignFor(side Side, role Role) Sign {
	if s, ok := signTable[signKey{mirrored: side.Mirrored, flip: side.Flip, role: role}]; ok {
		return s
	}
	return Identity
}

// Translate applies the rule to a zero group's local translation.
func (s Sign) Translate(v v3.Vec) v3.Vec {
	if s.NegateTranslate {
		return v.MulScalar(-1)
	}
	return v
}

// Rotate applies the rule to a zero group's local rotation.
func (s Sign) Rotate(v v3.Vec) v3.Vec {
	if s.NegateRotate {
		return v.MulScalar(-1)
	}
	return v
}

// ScaleFirst applies FirstZeroScale to a scale.
func (s Sign) ScaleFirst(v v3.Vec) v3.Vec {
	return v3.Vec{X: v.X * s.FirstZeroScale.X, Y: v.Y * s.FirstZeroScale.Y, Z: v.Z * s.FirstZeroScale.Z}
}

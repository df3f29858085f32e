package guide

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MirrorAxis selects the axes a module is mirrored across.
type MirrorAxis int

const (
	MirrorOff MirrorAxis = iota
	MirrorX
	MirrorY
	MirrorZ
	MirrorXY
	MirrorXZ
	MirrorYZ
	MirrorXYZ
)

// MirrorAxisNames are the enum labels in attribute order.
var MirrorAxisNames = []string{"off", "X", "Y", "Z", "XY", "XZ", "YZ", "XYZ"}

func (a MirrorAxis) String() string {
	if a < 0 || int(a) >= len(MirrorAxisNames) {
		return fmt.Sprintf("MirrorAxis(%d)", int(a))
	}
	return MirrorAxisNames[a]
}

// Enabled reports whether the module is mirrored.
func (a MirrorAxis) Enabled() bool { return a != MirrorOff }

// Axes returns which of X, Y, Z are reflected.
func (a MirrorAxis) Axes() [3]bool {
	s := a.String()
	return [3]bool{strings.Contains(s, "X"), strings.Contains(s, "Y"), strings.Contains(s, "Z")}
}

// ParseMirrorAxis accepts off, x, y, z, xy, xz, yz and xyz in any case.
func ParseMirrorAxis(s string) (MirrorAxis, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "OFF" {
		return MirrorOff, nil
	}
	for i, name := range MirrorAxisNames {
		if name == s {
			return MirrorAxis(i), nil
		}
	}
	return MirrorOff, fmt.Errorf("invalid mirror axis %q, expected one of %s", s, strings.Join(MirrorAxisNames, ", "))
}

// NamePair is the left/right naming of a mirrored module's two sides.
type NamePair struct {
	First, Second string
}

// ParseNamePair splits "L R", "L_R" or "L/R" into a pair.
func ParseNamePair(s string) (NamePair, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '/' || r == ','
	})
	if len(parts) != 2 {
		return NamePair{}, fmt.Errorf("side names %q: expected two names", s)
	}
	return NamePair{First: parts[0], Second: parts[1]}, nil
}

func (p NamePair) String() string {
	if p.IsZero() {
		return ""
	}
	return p.First + " " + p.Second
}

// IsZero reports whether no names are set.
func (p NamePair) IsZero() bool { return p.First == "" && p.Second == "" }

// Degree is the curve degree of a module's IK curve.
const (
	Linear = 1
	Cubic  = 3
)

// Options is the per-module configuration.
type Options struct {
	Segments int
	Degree   int
	Mirror   MirrorAxis
	Names    NamePair
	Flip     bool
	Flags    map[string]bool
	Refs     map[string]string
	Position v3.Vec
	// Parent is the instance key of the module this guide hangs under.
	Parent string
	// UseUIValues asks the orchestrator to read options from its value
	// source instead of the guide attributes.
	UseUIValues bool
}

// Spec describes what a module type allows in its options.
type Spec struct {
	MinSegments int
	MaxSegments int // 0 = unbounded
	Flags       []string
	// Refs names the cross-module references the type reads, without the
	// ref_ prefix.
	Refs []string
}

var (
	ErrSegments = errors.New("guide: invalid segment count")
	ErrDegree   = errors.New("guide: invalid degree")
	ErrNames    = errors.New("guide: invalid side names")
	ErrFlag     = errors.New("guide: unknown flag")
)

// Validate checks opts against a module spec and collects every problem.
func (o Options) Validate(spec Spec) error {
	var errs []error
	if o.Segments < spec.MinSegments || (spec.MaxSegments > 0 && o.Segments > spec.MaxSegments) {
		errs = append(errs, fmt.Errorf("%w: %d (min %d)", ErrSegments, o.Segments, spec.MinSegments))
	}
	if o.Degree != Linear && o.Degree != Cubic {
		errs = append(errs, fmt.Errorf("%w: %d", ErrDegree, o.Degree))
	}
	if o.Mirror.Enabled() {
		if o.Names.First == "" || o.Names.Second == "" || o.Names.First == o.Names.Second {
			errs = append(errs, fmt.Errorf("%w: %q", ErrNames, o.Names.String()))
		}
	}
	for name := range o.Flags {
		if !slices.Contains(spec.Flags, name) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrFlag, name))
		}
	}
	return errors.Join(errs...)
}

// Flag reports whether a feature flag is set.
func (o Options) Flag(name string) bool { return o.Flags[name] }

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	c := o
	c.Flags = make(map[string]bool, len(o.Flags))
	for k, v := range o.Flags {
		c.Flags[k] = v
	}
	c.Refs = make(map[string]string, len(o.Refs))
	for k, v := range o.Refs {
		c.Refs[k] = v
	}
	return c
}

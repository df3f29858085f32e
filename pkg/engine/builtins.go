package engine

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/sinew/pkg/graph"
	"github.com/chazu/sinew/pkg/guide"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites rig script source before zygomys sees it:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords never
//     collide with user variables.
//  2. kebab-case identifiers become snake_case, since zygomys reads a hyphen
//     as subtraction.
//  3. ; line comments become // comments.
//
// String literals pass through untouched.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch {
		case b[i] == '"':
			j := skipQuoted(b, i, '"', true)
			result = append(result, b[i:j]...)
			i = j
			continue
		case b[i] == '`':
			j := skipQuoted(b, i, '`', false)
			result = append(result, b[i:j]...)
			i = j
			continue
		case b[i] == ';':
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		case b[i] == ':' && i+1 < len(b) && b[i+1] == '=':
			result = append(result, b[i], b[i+1])
			i += 2
			continue
		case b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			result = append(result, '"')
			result = append(result, kwPrefix...)
			result = append(result, b[i+1:j]...)
			result = append(result, '"')
			i = j
			continue
		case b[i] == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

// skipQuoted returns the index just past the literal opened at b[start].
func skipQuoted(b []byte, start int, quote byte, escapes bool) int {
	i := start + 1
	for i < len(b) && b[i] != quote {
		if escapes && b[i] == '\\' && i+1 < len(b) {
			i += 2
			continue
		}
		i++
	}
	if i < len(b) {
		i++
	}
	return min(i, len(b))
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Sexp wrappers
// ---------------------------------------------------------------------------

// sexpVec3 wraps a position.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpGuideRef is what `guide` returns, so scripts can bind it and pass it
// to :parent or build.
type sexpGuideRef struct {
	name string
	typ  string
}

func (g *sexpGuideRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(guide %q %q)", g.typ, g.name)
}
func (g *sexpGuideRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// refPrefix marks keywords naming cross references, e.g. :ref-parent-hook.
const refPrefix = "ref-"

func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

type kwArgs struct {
	kw         map[string]zygo.Sexp
	order      []string
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments. Every
// keyword takes the next argument as its value, so :mirror :x works; a
// trailing keyword maps to SexpNull.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		result.order = append(result.order, name)
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
			continue
		}
		result.kw[name] = zygo.SexpNull
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected whole number, got %g", f)
	}
	return int(f), nil
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toBool accepts true/false, and treats a bare keyword (SexpNull) as true.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected true or false, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toGuideName accepts a guide reference or a guide name.
func toGuideName(s zygo.Sexp) (string, error) {
	if ref, ok := s.(*sexpGuideRef); ok {
		return ref.name, nil
	}
	name, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected guide or guide name: %w", err)
	}
	return name, nil
}

func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// typeTag turns "chain" or :chain into the registered tag "Chain".
func typeTag(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// refName turns the keyword tail "parent-hook" into "parentHook".
func refName(kw string) string {
	parts := strings.Split(kw, "-")
	for i := 1; i < len(parts); i++ {
		parts[i] = typeTag(parts[i])
	}
	return strings.Join(parts, "")
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the rig script builtins into a zygomys
// environment. The builtins populate s during evaluation.
//
// Source must go through preprocessSource first so that :keyword tokens are
// recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *graph.Script) {

	// -----------------------------------------------------------------------
	// (guide "chain" :name "Arm" :segments 4 :degree 3 :mirror :x
	//        :names "L R" :flip false :flags (list "articulation")
	//        :parent torso :at (vec3 2 10 0) :ref-parent-hook "Car"
	//        :use-ui-values true)
	// -----------------------------------------------------------------------
	env.AddFunction("guide", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("guide requires a module type")
		}
		typ, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("guide: type: %w", err)
		}
		pa := parseArgs(args[1:])
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("guide: unexpected argument %s", pa.positional[0].SexpString(nil))
		}
		n, err := guideNode(typeTag(typ), pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("guide: %w", err)
		}
		if n.Name == "" {
			n.Name = fmt.Sprintf("%s%d", n.Type, s.CountType(n.Type)+1)
		}
		if err := s.AddNode(n); err != nil {
			return zygo.SexpNull, fmt.Errorf("guide: %w", err)
		}
		return &sexpGuideRef{name: n.Name, typ: n.Type}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (build "Arm" leg ...)
	// -----------------------------------------------------------------------
	env.AddFunction("build", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("build requires at least one guide")
		}
		for _, a := range args {
			n, err := toGuideName(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("build: %w", err)
			}
			if s.Lookup(n) == nil {
				return zygo.SexpNull, fmt.Errorf("build: no guide named %q", n)
			}
			s.AddBuild(n)
		}
		return zygo.SexpNull, nil
	})
}

// guideNode reads the keyword arguments of a guide declaration.
func guideNode(typ string, pa kwArgs) (*graph.Node, error) {
	n := &graph.Node{
		Type: typ,
		Options: guide.Options{
			Flags: map[string]bool{},
			Refs:  map[string]string{},
		},
	}
	opts := &n.Options
	for _, kw := range pa.order {
		v := pa.kw[kw]
		var err error
		switch {
		case kw == "name":
			n.Name, err = toString(v)
			n.Custom = n.Name
		case kw == "segments":
			opts.Segments, err = toInt(v)
			if err == nil && opts.Segments < 1 {
				err = fmt.Errorf("expected at least 1, got %d", opts.Segments)
			}
		case kw == "degree":
			opts.Degree, err = toInt(v)
		case kw == "mirror":
			var axis string
			if axis, err = toKeywordString(v); err == nil {
				opts.Mirror, err = guide.ParseMirrorAxis(axis)
			}
		case kw == "names":
			var pair string
			if pair, err = toString(v); err == nil {
				opts.Names, err = guide.ParseNamePair(pair)
			}
		case kw == "flip":
			opts.Flip, err = toBool(v)
		case kw == "use-ui-values":
			opts.UseUIValues, err = toBool(v)
		case kw == "flags":
			err = readFlags(opts, v)
		case kw == "parent":
			n.Parent, err = toGuideName(v)
		case kw == "at":
			opts.Position, err = toVec3(v)
		case strings.HasPrefix(kw, refPrefix) && len(kw) > len(refPrefix):
			var target string
			if target, err = toGuideName(v); err == nil {
				if n.Refs == nil {
					n.Refs = map[string]string{}
				}
				n.Refs[refName(kw[len(refPrefix):])] = target
			}
		default:
			err = fmt.Errorf("unknown keyword")
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kw, err)
		}
	}
	return n, nil
}

func readFlags(opts *guide.Options, v zygo.Sexp) error {
	items, err := sexpListToSlice(v)
	if err != nil {
		return err
	}
	for _, item := range items {
		flag, err := toKeywordString(item)
		if err != nil {
			return err
		}
		opts.Flags[flag] = true
	}
	return nil
}

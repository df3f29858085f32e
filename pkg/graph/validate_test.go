package graph

import (
	"strings"
	"testing"

	"github.com/chazu/sinew/pkg/guide"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var builtinTypes = []string{"Chain", "Line", "Single", "Wheel", "Steering", "Vehicle"}

// buildValidArm creates a torso chain with a mirrored arm under it and a
// hand line under the arm.
func buildValidArm() *Script {
	s := New()
	torso := node("torso", "Chain", "")
	arm := node("arm", "Chain", "torso")
	arm.Options.Mirror = guide.MirrorX
	arm.Options.Names = guide.NamePair{First: "L", Second: "R"}
	hand := node("hand", "Line", "arm")
	for _, n := range []*Node{torso, arm, hand} {
		if err := s.AddNode(n); err != nil {
			panic(err)
		}
	}
	s.AddBuild("torso", "arm")
	return s
}

// hasError returns true if errs contains at least one error-severity finding
// whose message contains substr.
func hasError(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// hasWarning returns true if errs contains at least one warning-severity
// finding whose message contains substr.
func hasWarning(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityWarning && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestValidScriptHasNoFindings(t *testing.T) {
	errs := Validate(buildValidArm(), builtinTypes)
	if len(errs) != 0 {
		t.Fatalf("expected no findings, got %v", errs)
	}
}

func TestEmptyScriptIsValid(t *testing.T) {
	if errs := Validate(New(), builtinTypes); len(errs) != 0 {
		t.Fatalf("expected no findings, got %v", errs)
	}
}

func TestUnknownType(t *testing.T) {
	s := buildValidArm()
	_ = s.AddNode(node("tail", "Tentacle", ""))
	errs := Validate(s, builtinTypes)
	if !hasError(errs, `unknown module type "Tentacle"`) {
		t.Fatalf("expected unknown type error, got %v", errs)
	}
	if errs := Validate(s, nil); hasError(errs, "unknown module type") {
		t.Error("nil type list should skip the type check")
	}
}

func TestMissingParent(t *testing.T) {
	s := buildValidArm()
	_ = s.AddNode(node("leg", "Chain", "hips"))
	errs := Validate(s, builtinTypes)
	if !hasError(errs, `parent "hips" does not exist`) {
		t.Fatalf("expected missing parent error, got %v", errs)
	}
}

func TestSelfParent(t *testing.T) {
	s := New()
	_ = s.AddNode(node("loop", "Chain", "loop"))
	errs := Validate(s, builtinTypes)
	if !hasError(errs, "own parent") {
		t.Fatalf("expected self parent error, got %v", errs)
	}
	if hasError(errs, "cycle") {
		t.Error("self parent should not also be reported as a cycle")
	}
}

func TestMissingRef(t *testing.T) {
	s := buildValidArm()
	s.Lookup("hand").Refs = map[string]string{"parentHook": "car"}
	errs := Validate(s, builtinTypes)
	if !hasError(errs, `ref parentHook: guide "car" does not exist`) {
		t.Fatalf("expected missing ref error, got %v", errs)
	}
}

func TestCycleDetected(t *testing.T) {
	s := New()
	_ = s.AddNode(node("a", "Chain", "c"))
	_ = s.AddNode(node("b", "Chain", "a"))
	_ = s.AddNode(node("c", "Chain", "b"))
	errs := Validate(s, builtinTypes)
	if !hasError(errs, "dependency cycle") {
		t.Fatalf("expected cycle error, got %v", errs)
	}
}

func TestCycleThroughRef(t *testing.T) {
	s := New()
	a := node("a", "Single", "")
	a.Refs = map[string]string{"parentHook": "b"}
	_ = s.AddNode(a)
	_ = s.AddNode(node("b", "Single", "a"))
	if errs := Validate(s, builtinTypes); !hasError(errs, "dependency cycle") {
		t.Fatalf("expected cycle error, got %v", errs)
	}
}

func TestUndeclaredBuild(t *testing.T) {
	s := buildValidArm()
	s.AddBuild("ghost")
	errs := Validate(s, builtinTypes)
	if !hasError(errs, `undeclared guide "ghost"`) {
		t.Fatalf("expected undeclared build error, got %v", errs)
	}
}

func TestDuplicateBuildWarns(t *testing.T) {
	s := buildValidArm()
	s.AddBuild("arm")
	errs := Validate(s, builtinTypes)
	if !hasWarning(errs, "more than once") {
		t.Fatalf("expected duplicate build warning, got %v", errs)
	}
	if len(Errors(errs)) != 0 {
		t.Errorf("duplicate build should not block, got %v", Errors(errs))
	}
}

func TestMirrorOverriddenByAncestorWarns(t *testing.T) {
	s := buildValidArm()
	finger := node("finger", "Chain", "hand")
	finger.Options.Mirror = guide.MirrorY
	finger.Options.Names = guide.NamePair{First: "Up", Second: "Dn"}
	_ = s.AddNode(finger)
	errs := Validate(s, builtinTypes)
	if !hasWarning(errs, `overridden by ancestor "arm"`) {
		t.Fatalf("expected mirror override warning, got %v", errs)
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Node: "arm", Message: "broken", Severity: SeverityError}
	if got := e.Error(); got != "[error] guide arm: broken" {
		t.Errorf("Error() = %q", got)
	}
	e = ValidationError{Message: "broken", Severity: SeverityWarning}
	if got := e.Error(); got != "[warning] broken" {
		t.Errorf("Error() = %q", got)
	}
	if got := ValidationSeverity(7).String(); got != "ValidationSeverity(7)" {
		t.Errorf("String() = %q", got)
	}
}

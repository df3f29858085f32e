package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/chazu/sinew/pkg/config"
	"github.com/chazu/sinew/pkg/modules"
	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/scene/memory"
)

func evaluate(t *testing.T, source string, opts ...AppOption) Report {
	t.Helper()
	return NewApp(config.Default(), nil, opts...).Evaluate(context.Background(), source)
}

func requireClean(t *testing.T, r Report) {
	t.Helper()
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			t.Errorf("error (line %d): %s", e.Line, e.Message)
		}
		t.FailNow()
	}
}

func errorContaining(r Report, substr string) bool {
	for _, e := range r.Errors {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// TestE2EArmExample exercises the full pipeline: script -> engine -> script
// graph -> guides -> builder -> descriptors.
func TestE2EArmExample(t *testing.T) {
	source, err := os.ReadFile("../../examples/arm.sinew")
	if err != nil {
		t.Fatalf("failed to read arm.sinew: %v", err)
	}

	r := evaluate(t, string(source))
	requireClean(t, r)

	if len(r.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(r.Modules))
	}
	torso, arm := r.Modules[0], r.Modules[1]
	if torso.Key != "Chain1" || torso.Name != "Torso" {
		t.Errorf("first module = %s %q, want Chain1 Torso", torso.Key, torso.Name)
	}
	if arm.Key != "Chain2" || arm.Name != "Arm" {
		t.Errorf("second module = %s %q, want Chain2 Arm", arm.Key, arm.Name)
	}
	if len(arm.Sides) != 2 {
		t.Fatalf("arm should have two sides, got %d", len(arm.Sides))
	}
	if arm.Sides[0].Static != "L_Chain2_Static_Hook" || arm.Sides[1].Static != "R_Chain2_Static_Hook" {
		t.Errorf("arm static hooks = %s, %s", arm.Sides[0].Static, arm.Sides[1].Static)
	}
	if len(arm.Exports[modules.ExportIKMain]) != 2 {
		t.Errorf("arm ikMain exports = %v", arm.Exports[modules.ExportIKMain])
	}
	if len(r.Guides) != 0 {
		t.Errorf("no guides should remain, got %v", r.Guides)
	}
	if r.Nodes == 0 {
		t.Error("expected scene nodes")
	}
}

// TestE2EEmptySource ensures the pipeline handles empty input gracefully.
func TestE2EEmptySource(t *testing.T) {
	r := evaluate(t, "")
	requireClean(t, r)
	if len(r.Modules) != 0 || r.Nodes != 0 {
		t.Errorf("expected nothing built, got %d modules, %d nodes", len(r.Modules), r.Nodes)
	}
}

func TestE2ESyntaxError(t *testing.T) {
	r := evaluate(t, `(guide "chain"`)
	if len(r.Errors) == 0 {
		t.Fatal("expected errors for syntax error")
	}
	if len(r.Modules) != 0 {
		t.Errorf("expected no modules on error, got %d", len(r.Modules))
	}
}

func TestE2EVehicle(t *testing.T) {
	r := evaluate(t, `(guide "vehicle" :name "Car" :at (vec3 0 1 0))`)
	requireClean(t, r)

	want := []string{"Vehicle1", "Line1", "Wheel1", "Steering1"}
	if len(r.Modules) != len(want) {
		t.Fatalf("expected %d modules, got %d", len(want), len(r.Modules))
	}
	for i, key := range want {
		if r.Modules[i].Key != key {
			t.Errorf("module %d = %s, want %s", i, r.Modules[i].Key, key)
		}
	}
	if len(r.Modules[2].Sides) != 2 {
		t.Errorf("wheel should be mirrored, got %d sides", len(r.Modules[2].Sides))
	}
}

func TestE2EBuildRequestsOnly(t *testing.T) {
	r := evaluate(t, `
(guide "single" :name "A")
(guide "single" :name "B")
(build "B")
`)
	requireClean(t, r)
	if len(r.Modules) != 1 || r.Modules[0].Key != "Single2" {
		t.Fatalf("expected only Single2 built, got %+v", r.Modules)
	}
	if len(r.Guides) != 1 || r.Guides[0] != "Single1" {
		t.Errorf("remaining guides = %v, want [Single1]", r.Guides)
	}
}

func TestE2EChildOfChain(t *testing.T) {
	r := evaluate(t, `
(def spine (guide "chain" :name "Spine" :segments 2))
(guide "line" :name "Neck" :parent spine)
`)
	requireClean(t, r)
	if len(r.Modules) != 2 || r.Modules[0].Key != "Chain1" || r.Modules[1].Key != "Line1" {
		t.Fatalf("modules = %+v", r.Modules)
	}
}

func TestE2ESimpleDetail(t *testing.T) {
	settings := config.Default()
	settings.Detail = "simple"
	r := NewApp(settings, nil).Evaluate(context.Background(), `(guide "chain")`)
	requireClean(t, r)
	if len(r.Modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(r.Modules))
	}
	if _, ok := r.Modules[0].Exports[modules.ExportIKMain]; ok {
		t.Error("simple detail should not build the IK network")
	}
	if len(r.Modules[0].Exports[modules.ExportFKControls]) == 0 {
		t.Error("simple detail should still export FK controls")
	}
}

func TestE2ENoDecomposeRejectsMirror(t *testing.T) {
	r := evaluate(t, `(guide "chain" :mirror :x)`,
		WithSceneOptions(memory.WithoutCapability(scene.CapDecomposeMatrix)))
	if !errorContaining(r, "guide Chain1") {
		t.Fatalf("expected guide placement error, got %+v", r.Errors)
	}
}

func TestE2EValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown type", `(guide "tentacle")`, `unknown module type "Tentacle"`},
		{"missing parent", `(guide "line" :parent "Ghost")`, `parent "Ghost" does not exist`},
		{"cycle", `(guide "line" :name "A" :parent "B") (guide "line" :name "B" :parent "A")`, "dependency cycle"},
		{"too few segments", `(guide "chain" :segments 1)`, "segment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := evaluate(t, tt.source)
			if !errorContaining(r, tt.want) {
				t.Errorf("errors = %+v, want one containing %q", r.Errors, tt.want)
			}
		})
	}
}

func TestE2EMirrorOverrideWarns(t *testing.T) {
	r := evaluate(t, `
(def arm (guide "chain" :name "Arm" :mirror :x :at (vec3 2 0 0)))
(guide "line" :name "Hand" :parent arm :mirror :y :at (vec3 6 0 0))
(build arm)
`)
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w, `overridden by ancestor "Arm"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected mirror override warning, got %v", r.Warnings)
	}
}

func TestE2ECanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewApp(config.Default(), nil).Evaluate(ctx, `(guide "single")`)
	if !r.Canceled {
		t.Error("expected canceled report")
	}
	if len(r.Modules) != 0 {
		t.Errorf("nothing should be published, got %d", len(r.Modules))
	}
	if len(r.Guides) != 1 {
		t.Errorf("guide should survive a canceled build, got %v", r.Guides)
	}
}

// TestE2ERapidEvaluation runs several scripts back to back through one App.
func TestE2ERapidEvaluation(t *testing.T) {
	app := NewApp(config.Default(), nil)
	for i := 0; i < 5; i++ {
		r := app.Evaluate(context.Background(), `(guide "single")`)
		requireClean(t, r)
		if len(r.Modules) != 1 || r.Modules[0].Key != "Single1" {
			t.Fatalf("iteration %d: modules = %+v", i, r.Modules)
		}
	}
}

func TestReportYAML(t *testing.T) {
	r := evaluate(t, `(guide "single" :name "Head")`)
	requireClean(t, r)
	var b strings.Builder
	if err := r.WriteYAML(&b); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	for _, want := range []string{"modules:", "key: Single1", "name: Head", "static: Single1_Static_Hook", "nodes:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

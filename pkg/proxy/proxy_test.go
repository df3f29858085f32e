package proxy

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/scene"
	"github.com/chazu/sinew/pkg/scene/memory"
)

func TestJointMesh(t *testing.T) {
	b := New(0)
	mesh, err := b.Mesh(Joint, 1)
	if err != nil {
		t.Fatalf("Mesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if len(mesh.Normals) != mesh.TriangleCount() {
		t.Fatalf("normals %d != triangles %d", len(mesh.Normals), mesh.TriangleCount())
	}
	// Every vertex of a unit sphere proxy lies near the unit sphere.
	for _, p := range mesh.Points() {
		if l := p.Length(); l < 0.7 || l > 1.3 {
			t.Fatalf("vertex %v at distance %g from origin", p, l)
		}
	}
}

func TestMeshIsMemoised(t *testing.T) {
	b := New(8)
	first, err := b.Mesh(Locator, 2)
	if err != nil {
		t.Fatalf("Mesh failed: %v", err)
	}
	second, err := b.Mesh(Locator, 2)
	if err != nil {
		t.Fatalf("Mesh failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached mesh to be returned")
	}
}

func TestBoneRunsAlongX(t *testing.T) {
	b := New(10)
	mesh, err := b.Mesh(Bone, 4)
	if err != nil {
		t.Fatalf("Mesh failed: %v", err)
	}
	maxX := 0.0
	for _, p := range mesh.Points() {
		if p.X < -0.5 {
			t.Fatalf("bone vertex %v behind the origin", p)
		}
		maxX = max(maxX, p.X)
	}
	if maxX < 3 {
		t.Fatalf("bone reaches x=%g, expected about 4", maxX)
	}
}

func TestInvalidSize(t *testing.T) {
	if _, err := Solid(Joint, 0); err == nil {
		t.Fatal("expected error for zero size")
	}
}

func TestReplace(t *testing.T) {
	s := memory.New()
	loc, err := s.CreateTransform("loc", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetShape(loc, scene.Shape{Kind: "locator", Points: []v3.Vec{{}}}); err != nil {
		t.Fatal(err)
	}
	bare, err := s.CreateTransform("bare", "")
	if err != nil {
		t.Fatal(err)
	}

	b := New(8)
	if err := b.Replace(s, loc, 1); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := b.Replace(s, bare, 1); err != nil {
		t.Fatalf("Replace on bare node failed: %v", err)
	}

	sh, _ := s.Shape(loc)
	if sh.Kind != ShapeKind {
		t.Fatalf("shape kind = %q, want %q", sh.Kind, ShapeKind)
	}
	if len(sh.Points) < 8 {
		t.Fatalf("proxy has %d points", len(sh.Points))
	}
	if sh, _ := s.Shape(bare); sh.Kind != "" {
		t.Fatalf("bare node gained shape %q", sh.Kind)
	}
}

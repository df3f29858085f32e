package graph

import (
	"errors"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/sinew/pkg/guide"
)

func node(name, typ, parent string) *Node {
	return &Node{
		Name:    name,
		Type:    typ,
		Parent:  parent,
		Options: guide.Options{Segments: 2, Degree: guide.Cubic},
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewScript(t *testing.T) {
	s := New()
	if s.Nodes == nil {
		t.Fatal("Nodes map should be initialized")
	}
	if s.NodeCount() != 0 {
		t.Errorf("empty script should have 0 nodes, got %d", s.NodeCount())
	}
}

func TestAddNodeAndLookup(t *testing.T) {
	s := New()
	if err := s.AddNode(node("arm", "Chain", "")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if s.NodeCount() != 1 {
		t.Errorf("node count = %d, want 1", s.NodeCount())
	}
	if s.Lookup("arm") == nil {
		t.Fatal("Lookup('arm') returned nil")
	}
	if s.Lookup("leg") != nil {
		t.Error("Lookup of unknown name should return nil")
	}
	if got := s.MustLookup("arm").Type; got != "Chain" {
		t.Errorf("MustLookup type = %q, want Chain", got)
	}
}

func TestAddNodeRejectsDuplicates(t *testing.T) {
	s := New()
	if err := s.AddNode(node("arm", "Chain", "")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	err := s.AddNode(node("arm", "Line", ""))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if err := s.AddNode(node("", "Line", "")); err == nil {
		t.Error("expected error for unnamed guide")
	}
}

func TestMustLookupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustLookup of unknown name should panic")
		}
	}()
	New().MustLookup("nope")
}

func TestChildrenAndCount(t *testing.T) {
	s := New()
	for _, n := range []*Node{
		node("torso", "Chain", ""),
		node("arm", "Chain", "torso"),
		node("hand", "Line", "arm"),
		node("head", "Single", "torso"),
	} {
		if err := s.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if got := names(s.Children(s.Lookup("torso"))); !equal(got, []string{"arm", "head"}) {
		t.Errorf("children of torso = %v", got)
	}
	if got := s.CountType("Chain"); got != 2 {
		t.Errorf("CountType(Chain) = %d, want 2", got)
	}
}

func TestDependencies(t *testing.T) {
	n := node("wheel", "Wheel", "body")
	n.Refs = map[string]string{"parentHook": "car", "other": "body"}
	if got := n.Dependencies(); !equal(got, []string{"body", "car"}) {
		t.Errorf("dependencies = %v, want [body car]", got)
	}
}

func TestResolveRewritesNames(t *testing.T) {
	n := node("arm", "Chain", "torso")
	n.Options.Position = v3.Vec{X: 1}
	n.Refs = map[string]string{"parentHook": "rig"}
	opts := n.Resolve(map[string]string{"torso": "Chain1", "rig": "Single1"})
	if opts.Parent != "Chain1" {
		t.Errorf("parent = %q, want Chain1", opts.Parent)
	}
	if opts.Refs["parentHook"] != "Single1" {
		t.Errorf("parentHook = %q, want Single1", opts.Refs["parentHook"])
	}
	if opts.Position.X != 1 {
		t.Errorf("position lost: %v", opts.Position)
	}
	if n.Options.Refs["parentHook"] != "" {
		t.Error("Resolve must not mutate the node")
	}
}

func TestOrderParentFirst(t *testing.T) {
	s := New()
	for _, n := range []*Node{
		node("hand", "Line", "arm"),
		node("arm", "Chain", "torso"),
		node("torso", "Chain", ""),
		node("tail", "Chain", ""),
	} {
		if err := s.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Order(s)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	want := []string{"torso", "arm", "hand", "tail"}
	if !equal(names(got), want) {
		t.Errorf("order = %v, want %v", names(got), want)
	}
}

func TestOrderDetectsCycle(t *testing.T) {
	s := New()
	_ = s.AddNode(node("a", "Chain", "b"))
	_ = s.AddNode(node("b", "Chain", "a"))
	if _, err := Order(s); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestBuildSetFollowsRequests(t *testing.T) {
	s := New()
	for _, n := range []*Node{
		node("torso", "Chain", ""),
		node("arm", "Chain", "torso"),
		node("tail", "Chain", ""),
	} {
		if err := s.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	s.AddBuild("tail", "arm")
	got, err := BuildSet(s)
	if err != nil {
		t.Fatalf("BuildSet: %v", err)
	}
	want := []string{"tail", "torso", "arm"}
	if !equal(names(got), want) {
		t.Errorf("build set = %v, want %v", names(got), want)
	}

	s.AddBuild("ghost")
	if _, err := BuildSet(s); err == nil {
		t.Error("expected error for undeclared build request")
	}
}

func TestBuildSetDefaultsToAll(t *testing.T) {
	s := New()
	_ = s.AddNode(node("arm", "Chain", ""))
	_ = s.AddNode(node("leg", "Chain", ""))
	got, err := BuildSet(s)
	if err != nil {
		t.Fatal(err)
	}
	if !equal(names(got), []string{"arm", "leg"}) {
		t.Errorf("build set = %v", names(got))
	}
}

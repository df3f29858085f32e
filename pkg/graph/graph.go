package graph

import (
	"errors"
	"fmt"
	"slices"
)

// ErrDuplicateName is returned when two guides share a script name.
var ErrDuplicateName = errors.New("graph: duplicate guide name")

// Script is the result of evaluating a rig script.
type Script struct {
	Nodes map[string]*Node `yaml:"-"`
	// Order lists node names in declaration order.
	Order []string `yaml:"order"`
	// Builds lists explicit build requests. Empty means build everything.
	Builds  []string `yaml:"builds,omitempty"`
	Version uint64   `yaml:"version"`
}

// New creates an empty Script.
func New() *Script {
	return &Script{Nodes: make(map[string]*Node)}
}

// AddNode declares a guide. Names are unique.
func (s *Script) AddNode(n *Node) error {
	if n.Name == "" {
		return fmt.Errorf("graph: guide of type %q has no name", n.Type)
	}
	if _, ok := s.Nodes[n.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, n.Name)
	}
	s.Nodes[n.Name] = n
	s.Order = append(s.Order, n.Name)
	return nil
}

// AddBuild appends build requests.
func (s *Script) AddBuild(names ...string) {
	s.Builds = append(s.Builds, names...)
}

// Lookup returns the node with the given name, or nil.
func (s *Script) Lookup(name string) *Node {
	return s.Nodes[name]
}

// MustLookup returns the node with the given name, or panics.
func (s *Script) MustLookup(name string) *Node {
	n := s.Lookup(name)
	if n == nil {
		panic(fmt.Sprintf("graph: no guide named %q", name))
	}
	return n
}

// Declared returns every node in declaration order.
func (s *Script) Declared() []*Node {
	out := make([]*Node, 0, len(s.Order))
	for _, name := range s.Order {
		if n := s.Nodes[name]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Children returns the nodes declared with n as their parent.
func (s *Script) Children(n *Node) []*Node {
	return slices.DeleteFunc(s.Declared(), func(c *Node) bool { return c.Parent != n.Name })
}

// CountType returns how many nodes of the given type are declared.
func (s *Script) CountType(typ string) int {
	count := 0
	for _, n := range s.Nodes {
		if n.Type == typ {
			count++
		}
	}
	return count
}

// NodeCount returns the total number of nodes.
func (s *Script) NodeCount() int {
	return len(s.Nodes)
}

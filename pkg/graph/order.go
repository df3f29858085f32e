package graph

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by Order when guides depend on each other.
var ErrCycle = errors.New("graph: dependency cycle")

// Order returns every node with each node after its parent and referenced
// guides. Independent nodes keep declaration order.
func Order(s *Script) ([]*Node, error) {
	return order(s, s.Order)
}

// BuildSet returns the nodes to build. Without build requests that is every
// node. Otherwise it is the requested nodes plus everything they depend on,
// dependencies first and requests in the order given.
func BuildSet(s *Script) ([]*Node, error) {
	if len(s.Builds) == 0 {
		return Order(s)
	}
	for _, name := range s.Builds {
		if s.Lookup(name) == nil {
			return nil, fmt.Errorf("graph: build request for undeclared guide %q", name)
		}
	}
	return order(s, s.Builds)
}

func order(s *Script, roots []string) ([]*Node, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var out []*Node

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w through %q", ErrCycle, name)
		}
		n := s.Lookup(name)
		if n == nil {
			return fmt.Errorf("graph: no guide named %q", name)
		}
		color[name] = gray
		for _, dep := range n.Dependencies() {
			if dep == name {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		out = append(out, n)
		return nil
	}

	for _, name := range roots {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

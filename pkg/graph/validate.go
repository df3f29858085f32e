package graph

import (
	"fmt"
	"slices"
)

// ValidationSeverity indicates whether a validation finding blocks the build
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks the build
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Node     string // guide name, empty for script-level findings
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] guide %s: %s", e.Severity, e.Node, e.Message)
}

// Errors returns only the blocking findings.
func Errors(findings []ValidationError) []ValidationError {
	return slices.DeleteFunc(slices.Clone(findings), func(e ValidationError) bool {
		return e.Severity != SeverityError
	})
}

// Validate runs the structural checks on s. types lists the registered
// module type tags; nil skips the type check. This function never mutates s.
func Validate(s *Script, types []string) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateTypes(s, types)...)
	errs = append(errs, validateReferences(s)...)
	errs = append(errs, validateDAG(s)...)
	errs = append(errs, validateBuilds(s)...)
	errs = append(errs, validateMirrors(s)...)
	return errs
}

func validateTypes(s *Script, types []string) []ValidationError {
	if types == nil {
		return nil
	}
	var errs []ValidationError
	for _, n := range s.Declared() {
		if !slices.Contains(types, n.Type) {
			errs = append(errs, ValidationError{
				Node:     n.Name,
				Message:  fmt.Sprintf("unknown module type %q", n.Type),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateReferences checks that parents and refs name declared guides.
func validateReferences(s *Script) []ValidationError {
	var errs []ValidationError
	for _, n := range s.Declared() {
		if n.Parent != "" {
			if n.Parent == n.Name {
				errs = append(errs, ValidationError{
					Node:     n.Name,
					Message:  "guide is its own parent",
					Severity: SeverityError,
				})
			} else if s.Lookup(n.Parent) == nil {
				errs = append(errs, ValidationError{
					Node:     n.Name,
					Message:  fmt.Sprintf("parent %q does not exist", n.Parent),
					Severity: SeverityError,
				})
			}
		}
		for ref, target := range n.Refs {
			if s.Lookup(target) == nil {
				errs = append(errs, ValidationError{
					Node:     n.Name,
					Message:  fmt.Sprintf("ref %s: guide %q does not exist", ref, target),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateDAG checks for dependency cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = on the current path, black (2) = done.
func validateDAG(s *Script) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int)
	var errs []ValidationError

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				Node:     name,
				Message:  fmt.Sprintf("dependency cycle through %q", name),
				Severity: SeverityError,
			})
			return true
		}
		color[name] = gray
		n := s.Lookup(name)
		if n == nil {
			// dangling, reported by validateReferences
			color[name] = black
			return false
		}
		for _, dep := range n.Dependencies() {
			if dep == name {
				continue
			}
			if visit(dep) {
				return true
			}
		}
		color[name] = black
		return false
	}

	for _, name := range s.Order {
		if color[name] == white && visit(name) {
			break
		}
	}
	return errs
}

func validateBuilds(s *Script) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for _, name := range s.Builds {
		switch {
		case s.Lookup(name) == nil:
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("build request for undeclared guide %q", name),
				Severity: SeverityError,
			})
		case seen[name]:
			errs = append(errs, ValidationError{
				Node:     name,
				Message:  "build requested more than once",
				Severity: SeverityWarning,
			})
		}
		seen[name] = true
	}
	return errs
}

// validateMirrors warns about mirror settings that a mirrored ancestor will
// override once the guide is placed.
func validateMirrors(s *Script) []ValidationError {
	var errs []ValidationError
	for _, n := range s.Declared() {
		if !n.Options.Mirror.Enabled() {
			continue
		}
		anc := mirroredAncestor(s, n)
		if anc == nil {
			continue
		}
		errs = append(errs, ValidationError{
			Node:     n.Name,
			Message:  fmt.Sprintf("mirror settings are overridden by ancestor %q", anc.Name),
			Severity: SeverityWarning,
		})
	}
	return errs
}

func mirroredAncestor(s *Script, n *Node) *Node {
	seen := map[string]bool{n.Name: true}
	for p := s.Lookup(n.Parent); p != nil && !seen[p.Name]; p = s.Lookup(p.Parent) {
		if p.Options.Mirror.Enabled() {
			return p
		}
		seen[p.Name] = true
	}
	return nil
}

package rig

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingDependency = errors.New("rig: missing dependency")
	ErrNoGuide           = errors.New("rig: guide not found")
	ErrUnknownType       = errors.New("rig: unknown module type")
)

// IntegrityError lists everything a module needs that is not available. It
// is reported before the scene is touched.
type IntegrityError struct {
	Module  string
	Types   []string // module types that are not registered
	Modules []string // module instances that are not built yet
}

func (e *IntegrityError) Error() string {
	var parts []string
	if len(e.Types) > 0 {
		parts = append(parts, "module types "+strings.Join(e.Types, ", "))
	}
	if len(e.Modules) > 0 {
		parts = append(parts, "built modules "+strings.Join(e.Modules, ", "))
	}
	return fmt.Sprintf("rig: %s is missing %s", e.Module, strings.Join(parts, " and "))
}

func (e *IntegrityError) Is(target error) bool { return target == ErrMissingDependency }

// MutationError is a failure after the scene started changing.
type MutationError struct {
	Module string
	Stage  State
	Side   string
	Err    error
}

func (e *MutationError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("rig: %s %s: %v", e.Module, e.Stage, e.Err)
	}
	return fmt.Sprintf("rig: %s %s (%s): %v", e.Module, e.Stage, e.Side, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

package rig

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/chazu/sinew/pkg/guide"
)

// ModuleType is one kind of rig module.
type ModuleType interface {
	// Tag names the type, e.g. "Chain". Instance keys are Tag plus a number.
	Tag() string
	// Spec limits the guide options of the type.
	Spec() guide.Spec
	// Dependencies lists module types that must be registered before this
	// type can be built.
	Dependencies() []string
	// BuildRig builds one side. The side's hooks already exist.
	BuildRig(ctx context.Context, sb *SideBuild) error
}

// Integrator is implemented by types with work to do once every side is
// built and the module's descriptor is published.
type Integrator interface {
	Integrate(ctx context.Context, in *Integration) error
}

// Detailed is implemented by types that offer a choice of detail level. The
// first level is the default.
type Detailed interface {
	DetailLevels() []string
}

// Defaulter is implemented by types that adjust options for new guides.
type Defaulter interface {
	Defaults(opts guide.Options) guide.Options
}

// Registry maps type tags to module types.
type Registry struct {
	types map[string]ModuleType
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: map[string]ModuleType{}}
}

// Register adds a module type. Tags are unique.
func (r *Registry) Register(t ModuleType) error {
	if t.Tag() == "" {
		return fmt.Errorf("rig: module type with empty tag")
	}
	if _, ok := r.types[t.Tag()]; ok {
		return fmt.Errorf("rig: module type %q already registered", t.Tag())
	}
	r.types[t.Tag()] = t
	r.order = append(r.order, t.Tag())
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(types ...ModuleType) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the type registered under tag.
func (r *Registry) Lookup(tag string) (ModuleType, bool) {
	t, ok := r.types[tag]
	return t, ok
}

// Tags lists registered tags in registration order.
func (r *Registry) Tags() []string { return slices.Clone(r.order) }

// Missing returns the tags that are not registered.
func (r *Registry) Missing(tags []string) []string {
	return lo.Filter(tags, func(tag string, _ int) bool {
		_, ok := r.types[tag]
		return !ok
	})
}

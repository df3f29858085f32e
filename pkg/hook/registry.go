package hook

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chazu/sinew/pkg/scene"
)

var (
	ErrDuplicate = errors.New("hook: module key already published")
	ErrInvalid   = errors.New("hook: invalid descriptor")
)

// SideHooks names the triad of one side.
type SideHooks struct {
	Side     string `yaml:"side"`
	Control  string `yaml:"control"`
	Scalable string `yaml:"scalable"`
	Static   string `yaml:"static"`
}

// FromTriad describes a triad.
func FromTriad(side string, t Triad) SideHooks {
	return SideHooks{Side: side, Control: string(t.Control), Scalable: string(t.Scalable), Static: string(t.Static)}
}

// Triad converts back to node IDs.
func (s SideHooks) Triad() Triad {
	return Triad{Control: scene.NodeID(s.Control), Scalable: scene.NodeID(s.Scalable), Static: scene.NodeID(s.Static)}
}

// Descriptor is what a built module publishes for later modules.
type Descriptor struct {
	Key   string      `yaml:"key"`
	Type  string      `yaml:"type"`
	Name  string      `yaml:"name"`
	Sides []SideHooks `yaml:"sides"`
	// Exports holds module specific values, such as the world reference
	// controls of each side.
	Exports map[string][]string `yaml:"exports,omitempty"`
}

// Validate checks that every side names all three hooks.
func (d Descriptor) Validate() error {
	var errs []error
	if d.Key == "" {
		errs = append(errs, fmt.Errorf("%w: empty key", ErrInvalid))
	}
	if len(d.Sides) == 0 || len(d.Sides) > 2 {
		errs = append(errs, fmt.Errorf("%w: %s has %d sides", ErrInvalid, d.Key, len(d.Sides)))
	}
	for _, s := range d.Sides {
		if s.Control == "" || s.Scalable == "" || s.Static == "" {
			errs = append(errs, fmt.Errorf("%w: %s side %q", ErrIncomplete, d.Key, s.Side))
		}
	}
	return errors.Join(errs...)
}

// Side returns the hooks of a named side. The empty name matches the only
// side of an unmirrored module.
func (d Descriptor) Side(name string) (SideHooks, bool) {
	for _, s := range d.Sides {
		if s.Side == name {
			return s, true
		}
	}
	return SideHooks{}, false
}

// Export adds values under name.
func (d *Descriptor) Export(name string, values ...string) {
	if d.Exports == nil {
		d.Exports = map[string][]string{}
	}
	d.Exports[name] = append(d.Exports[name], values...)
}

// Registry maps module instance keys to their descriptors.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Descriptor
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: map[string]Descriptor{}}
}

// Publish stores d. Keys are unique.
func (r *Registry) Publish(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[d.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.Key)
	}
	r.byKey[d.Key] = d
	r.order = append(r.order, d.Key)
	return nil
}

// Withdraw removes the descriptor published under key. It reports whether
// one was present.
func (r *Registry) Withdraw(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	delete(r.byKey, key)
	r.order = slices.DeleteFunc(r.order, func(k string) bool { return k == key })
	return true
}

// Lookup returns the descriptor published under key.
func (r *Registry) Lookup(key string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[key]
	return d, ok
}

// All returns every descriptor in publication order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// ByType returns the descriptors of one module type in publication order.
func (r *Registry) ByType(typ string) []Descriptor {
	return slices.DeleteFunc(r.All(), func(d Descriptor) bool { return d.Type != typ })
}

// Len is the number of published modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// WriteYAML writes every descriptor as a YAML list.
func (r *Registry) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.All()); err != nil {
		return fmt.Errorf("encode hook registry: %w", err)
	}
	return enc.Close()
}

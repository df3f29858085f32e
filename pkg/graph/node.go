package graph

import (
	"slices"

	"github.com/samber/lo"

	"github.com/chazu/sinew/pkg/guide"
)

// Node is one declared guide.
type Node struct {
	// Name identifies the node inside the script. Parent and Refs use it.
	Name string `yaml:"name"`
	// Type is the module type tag, e.g. "Chain".
	Type string `yaml:"type"`
	// Custom is the :name given in the script, empty when defaulted.
	Custom string `yaml:"custom,omitempty"`
	// Options carries everything except Parent and Refs, which name script
	// nodes until the guide is placed.
	Options guide.Options     `yaml:"-"`
	Parent  string            `yaml:"parent,omitempty"`
	Refs    map[string]string `yaml:"refs,omitempty"`
}

// Dependencies returns the names this node must be placed after: its parent
// first, then its references in ref name order.
func (n *Node) Dependencies() []string {
	var deps []string
	if n.Parent != "" {
		deps = append(deps, n.Parent)
	}
	keys := lo.Keys(n.Refs)
	slices.Sort(keys)
	for _, k := range keys {
		if v := n.Refs[k]; v != "" {
			deps = append(deps, v)
		}
	}
	return lo.Uniq(deps)
}

// Resolve returns the node's guide options with Parent and Refs rewritten
// through keys, which maps script names to instance keys. Unmapped names are
// passed through unchanged.
func (n *Node) Resolve(keys map[string]string) guide.Options {
	opts := n.Options.Clone()
	lookup := func(name string) string {
		if k, ok := keys[name]; ok {
			return k
		}
		return name
	}
	if n.Parent != "" {
		opts.Parent = lookup(n.Parent)
	}
	for ref, name := range n.Refs {
		opts.Refs[ref] = lookup(name)
	}
	return opts
}

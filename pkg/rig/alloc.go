package rig

import "sync"

// Allocator hands out instance numbers per module type. Numbers start at 1
// and only ever grow within an allocator.
type Allocator struct {
	mu   sync.Mutex
	last map[string]int
}

// NewAllocator returns an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{last: map[string]int{}}
}

// Next returns the next free instance number of tag.
func (a *Allocator) Next(tag string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last[tag]++
	return a.last[tag]
}

// Observe records an instance number already in use, e.g. from a guide
// found in the scene.
func (a *Allocator) Observe(tag string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.last[tag] {
		a.last[tag] = n
	}
}

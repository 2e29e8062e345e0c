package stand

import "sync"

// DependencySet holds distinct paths in first-touch order.
type DependencySet struct {
	mu    sync.RWMutex
	order []string
	seen  map[string]struct{}
}

// NewDependencySet returns a set seeded with paths.
func NewDependencySet(paths ...string) *DependencySet {
	d := &DependencySet{seen: make(map[string]struct{}, len(paths))}
	d.AddAll(paths)
	return d
}

// Add inserts path, reporting whether it was new.
func (d *DependencySet) Add(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]struct{}{}
	}
	if _, ok := d.seen[path]; ok {
		return false
	}
	d.seen[path] = struct{}{}
	d.order = append(d.order, path)
	return true
}

// AddAll inserts every path.
func (d *DependencySet) AddAll(paths []string) {
	for _, path := range paths {
		d.Add(path)
	}
}

// Has reports whether path is present.
func (d *DependencySet) Has(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[path]
	return ok
}

// Len returns the number of distinct paths.
func (d *DependencySet) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Paths returns a copy of the paths in first-touch order.
func (d *DependencySet) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Matches applies the Covers rule between the set and patches.
func (d *DependencySet) Matches(patches []Patch) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Relevant(d.order, patches)
}

package iprewriter

import (
	"fmt"
	"sort"
	"sync"
)

// PatternRegistry is the explicit, process-scoped home for named
// patterns shared across InputSpecs and Rewriters (spec §9: "model as
// an explicit registry object handed to configuration, not ambient
// state"), replacing the original Click element's global
// IPRewriterPatterns.
type PatternRegistry struct {
	mu       sync.Mutex
	patterns map[string]*Pattern
}

// NewPatternRegistry returns an empty registry.
func NewPatternRegistry() *PatternRegistry {
	return &PatternRegistry{patterns: make(map[string]*Pattern)}
}

// Register adds a named pattern. It is an error to register the same
// name twice.
func (r *PatternRegistry) Register(name string, p *Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.patterns[name]; exists {
		return fmt.Errorf("%w: pattern %q already registered", ErrBadPatternSpec, name)
	}
	r.patterns[name] = p
	return nil
}

// Find looks up a named pattern.
func (r *PatternRegistry) Find(name string) (*Pattern, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[name]
	return p, ok
}

// All returns every registered (name, pattern) pair, sorted by name,
// for conflict analysis and introspection.
func (r *PatternRegistry) All() []NamedPattern {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NamedPattern, 0, len(r.patterns))
	for name, p := range r.patterns {
		out = append(out, NamedPattern{Name: name, Pattern: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamedPattern pairs a registry entry's name with its Pattern.
type NamedPattern struct {
	Name    string
	Pattern *Pattern
}

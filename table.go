package iprewriter

import "sort"

// MappingTable is a per-protocol FlowId -> Mapping associative
// container (spec §4.5). It is not self-synchronizing: callers (the
// Rewriter) are expected to hold their own lock around table
// operations, matching spec §5's "single lock per rewriter" option.
type MappingTable struct {
	m map[FlowId]*Mapping
}

func newMappingTable() *MappingTable {
	return &MappingTable{m: make(map[FlowId]*Mapping)}
}

// Find returns the mapping keyed by flow, or nil if absent.
func (t *MappingTable) Find(flow FlowId) *Mapping {
	return t.m[flow]
}

// Insert keys mapping under flow. Inserting nil erases the entry, per
// spec §4.5 ("inserting a none value acts as erase").
func (t *MappingTable) Insert(flow FlowId, mapping *Mapping) {
	if mapping == nil {
		delete(t.m, flow)
		return
	}
	t.m[flow] = mapping
}

// Len returns the number of entries (both forward and reverse halves
// count separately, since each is keyed under its own pre-image).
func (t *MappingTable) Len() int {
	return len(t.m)
}

// Each calls fn once per (flow, mapping) entry in a deterministic
// order (sorted by flow), satisfying spec §4.5's "iteration order
// unspecified but must be deterministic within a single process run"
// with a stronger, run-independent guarantee. Stops early if fn
// returns false.
func (t *MappingTable) Each(fn func(FlowId, *Mapping) bool) {
	keys := make([]FlowId, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	for _, k := range keys {
		if !fn(k, t.m[k]) {
			return
		}
	}
}

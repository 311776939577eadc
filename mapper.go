package iprewriter

// ExternalMapper is the capability an external component implements
// to supply its own Mapping for a flow on a cache miss -- e.g. for
// load balancing across a pool of backends (spec §6/§9, grounded on
// iprewriter.cc's IPMapper).
//
// A narrow, two-operation interface by design: no inheritance, no
// unused hooks.
type ExternalMapper interface {
	// GetMap is called on a miss for an input whose InputSpec is
	// SpecMapper. It must call Install on r itself before returning a
	// non-nil Mapping, so the pair is visible to subsequent lookups
	// atomically in both directions (spec §5), and it must return
	// whatever Mapping Install hands back rather than the one it
	// built: Install may discover a concurrent Push already won the
	// race for this exact flow and hand back that pair instead.
	// Returning (nil, nil) means "no mapping", and the packet is
	// dropped.
	GetMap(isTCP bool, flow FlowId, r *Rewriter) (*Mapping, error)

	// MapperPatterns optionally exposes the Patterns this mapper
	// allocates from, for configuration-time conflict analysis. A
	// mapper with no patterns of its own may return nil.
	MapperPatterns(r *Rewriter) []*Pattern
}

package iprewriter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Pattern is an immutable rewrite template plus a mutable allocator
// for the source ports it hands out. A zero-value address/port field
// means "preserve that field from the input flow" (spec §3).
type Pattern struct {
	SAddr     IPv4
	SPortLow  uint16
	SPortHigh uint16
	DAddr     IPv4
	DPort     uint16

	mu       sync.Mutex
	useCount int

	ring patternRing
}

// ringNode is one arena slot in a Pattern's circular in-use list. Free
// slots are tracked on patternRing.free and reused, so the arena never
// grows unbounded across many alloc/free cycles.
type ringNode struct {
	mapping *Mapping
	port    uint16
	prev    int
	next    int
	live    bool
}

type patternRing struct {
	nodes []ringNode
	free  []int
	rover int // index into nodes, or -1 if the ring is empty
	count int
}

// NewPattern constructs a Pattern. A zero IPv4{} or zero port for
// saddr/daddr/dport means "preserve"; sportLow==sportHigh==0 means
// "preserve source port".
func NewPattern(saddr IPv4, sportLow, sportHigh uint16, daddr IPv4, dport uint16) *Pattern {
	return &Pattern{
		SAddr:     saddr,
		SPortLow:  sportLow,
		SPortHigh: sportHigh,
		DAddr:     daddr,
		DPort:     dport,
		ring:      patternRing{rover: -1},
	}
}

// Use and Unuse implement the configuration-lifetime reference count
// (spec §3): one Use per InputSpec that references this pattern, one
// Unuse at rewriter teardown. Packet-path mapping creation does not
// touch this counter.
func (p *Pattern) Use()   { p.mu.Lock(); p.useCount++; p.mu.Unlock() }
func (p *Pattern) Unuse() { p.mu.Lock(); p.useCount--; p.mu.Unlock() }

// UseCount returns the current configuration-lifetime reference count.
func (p *Pattern) UseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.useCount
}

// String renders the pattern as "SADDR:SPORT / DADDR:DPORT", using
// "-" for preserved fields and "LO-HI" for a port range, matching the
// `patterns` introspection handler format (spec §6).
func (p *Pattern) String() string {
	saddr, daddr, dport := "-", "-", "-"
	if !p.SAddr.IsZero() {
		saddr = p.SAddr.String()
	}
	if !p.DAddr.IsZero() {
		daddr = p.DAddr.String()
	}
	if p.DPort != 0 {
		dport = strconv.Itoa(int(p.DPort))
	}

	sport := "-"
	if p.SPortHigh != 0 {
		if p.SPortHigh == p.SPortLow {
			sport = strconv.Itoa(int(p.SPortHigh))
		} else {
			sport = fmt.Sprintf("%d-%d", p.SPortLow, p.SPortHigh)
		}
	}

	return fmt.Sprintf("%s:%s / %s:%s", saddr, sport, daddr, dport)
}

// possiblePortConflict mirrors iprewriter.cc's possible_conflict_port:
// two (addr, portLow, portHigh) constraints can collide if their
// addresses don't rule each other out and either side is "preserve"
// or their ranges overlap.
func possiblePortConflict(a1 IPv4, p1l, p1h uint16, a2 IPv4, p2l, p2h uint16) bool {
	if !a1.IsZero() && !a2.IsZero() && a1 != a2 {
		return false
	}
	if p1l == 0 || p2l == 0 {
		return true
	}
	return (p1l <= p2l && p2l <= p1h) || (p2l <= p1l && p1l <= p2h)
}

// PossibleConflict reports whether p and o could rewrite two distinct
// input flows to the same output flow (spec §4.3).
func (p *Pattern) PossibleConflict(o *Pattern) bool {
	return possiblePortConflict(p.SAddr, p.SPortLow, p.SPortHigh, o.SAddr, o.SPortLow, o.SPortHigh) &&
		possiblePortConflict(p.DAddr, p.DPort, p.DPort, o.DAddr, o.DPort, o.DPort)
}

// DefiniteConflict reports whether p and o are fully constrained
// identically on every field but source port, and one's source-port
// range contains the other's (spec §4.3) -- a configuration error,
// not just a warning.
func (p *Pattern) DefiniteConflict(o *Pattern) bool {
	if p.SAddr.IsZero() || p.SPortLow == 0 || p.DAddr.IsZero() || p.DPort == 0 {
		return false
	}
	if p.SAddr != o.SAddr || p.DAddr != o.DAddr || p.DPort != o.DPort {
		return false
	}
	return (p.SPortLow <= o.SPortLow && o.SPortHigh <= p.SPortHigh) ||
		(o.SPortLow <= p.SPortLow && p.SPortHigh <= o.SPortHigh)
}

// findSourcePortLocked implements the rover-based circular search from
// spec §4.3 / iprewriter.cc's Pattern::find_sport. Callers must hold
// p.mu. On success it leaves p.ring.rover positioned at the ring node
// immediately before the returned port (the gap owner), exactly as the
// original leaves `_rover` positioned for the subsequent insert.
func (p *Pattern) findSourcePortLocked() (uint16, bool) {
	if p.SPortLow == p.SPortHigh {
		return p.SPortLow, true
	}
	if p.ring.rover == -1 {
		return p.SPortLow, true
	}

	start := p.ring.rover
	r := start
	thisPort := p.ring.nodes[r].port
	for {
		next := p.ring.nodes[r].next
		nextPort := p.ring.nodes[next].port

		if nextPort > thisPort+1 {
			p.ring.rover = r
			return thisPort + 1, true
		}
		if nextPort <= thisPort {
			if thisPort < p.SPortHigh {
				p.ring.rover = r
				return thisPort + 1, true
			}
			if nextPort > p.SPortLow {
				p.ring.rover = r
				return p.SPortLow, true
			}
		}

		r = next
		thisPort = nextPort
		if r == start {
			break
		}
	}
	return 0, false
}

// ringInsertAfter allocates a ring slot for mapping at the given
// source port and links it in immediately after afterIdx (-1 means
// "the ring is currently empty; make this the sole node"). It returns
// the new node's index.
func (p *Pattern) ringInsertAfter(afterIdx int, mapping *Mapping, port uint16) int {
	idx := p.ringAlloc()
	node := &p.ring.nodes[idx]
	node.mapping = mapping
	node.port = port
	node.live = true

	if afterIdx == -1 {
		node.prev = idx
		node.next = idx
	} else {
		after := &p.ring.nodes[afterIdx]
		nextIdx := after.next
		node.prev = afterIdx
		node.next = nextIdx
		after.next = idx
		p.ring.nodes[nextIdx].prev = idx
	}
	p.ring.count++
	return idx
}

func (p *Pattern) ringAlloc() int {
	if n := len(p.ring.free); n > 0 {
		idx := p.ring.free[n-1]
		p.ring.free = p.ring.free[:n-1]
		return idx
	}
	p.ring.nodes = append(p.ring.nodes, ringNode{})
	return len(p.ring.nodes) - 1
}

func (p *Pattern) ringUnlink(idx int) {
	node := &p.ring.nodes[idx]
	p.ring.nodes[node.prev].next = node.next
	p.ring.nodes[node.next].prev = node.prev
	node.live = false
	node.mapping = nil
	p.ring.free = append(p.ring.free, idx)
	p.ring.count--
}

// CreateMapping allocates a forward/reverse Mapping pair for inbound
// flow "in" (spec §4.3). fport/routput are the output indices to
// stamp onto the forward/reverse halves respectively. ok is false only
// when the pattern specifies a source-port range and that range is
// exhausted.
func (p *Pattern) CreateMapping(in FlowId, foutput, routput int) (forward, reverse *Mapping, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var newSPort uint16
	if p.SPortLow == 0 && p.SPortHigh == 0 {
		newSPort = in.SrcPort
	} else {
		port, found := p.findSourcePortLocked()
		if !found {
			return nil, nil, false
		}
		newSPort = port
	}

	newDPort := in.DstPort
	if p.DPort != 0 {
		newDPort = p.DPort
	}
	newSAddr := in.SrcIP
	if !p.SAddr.IsZero() {
		newSAddr = p.SAddr
	}
	newDAddr := in.DstIP
	if !p.DAddr.IsZero() {
		newDAddr = p.DAddr
	}

	out := FlowId{SrcIP: newSAddr, SrcPort: newSPort, DstIP: newDAddr, DstPort: newDPort}
	forward, reverse = newMappingPair(in, out, p, foutput, routput)

	idx := p.ringInsertAfter(p.ring.rover, forward, newSPort)
	forward.ringIdx = idx
	p.ring.rover = idx

	return forward, reverse, true
}

// MappingFreed unlinks m (the forward half of a pair) from this
// pattern's ring, advancing the rover off of m if necessary (spec
// §4.3's mappingFreed).
func (p *Pattern) MappingFreed(m *Mapping) {
	if m.pattern != p || m.isReverse || m.ringIdx < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := m.ringIdx
	if p.ring.rover == idx {
		next := p.ring.nodes[idx].next
		if next == idx {
			p.ring.rover = -1
		} else {
			p.ring.rover = next
		}
	}
	p.ringUnlink(idx)
	m.ringIdx = -1
}

// ParsePatternSpec parses "SADDR SPORT DADDR DPORT" into a Pattern,
// where each field accepts "-" for preserve and SPORT additionally
// accepts a bare integer or "LO-HI" (spec §6, grounded on
// iprewriter.cc's Pattern::parse).
func ParsePatternSpec(spec string) (*Pattern, error) {
	words := strings.Fields(spec)
	if len(words) != 4 {
		return nil, fmt.Errorf("%w: expected `SADDR SPORT DADDR DPORT`, got %q", ErrBadPatternSpec, spec)
	}

	saddr, err := parsePreserveAddr(words[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad source address %q: %v", ErrBadPatternSpec, words[0], err)
	}

	sportLow, sportHigh, err := parseSourcePortRange(words[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad source port %q: %v", ErrBadPatternSpec, words[1], err)
	}

	daddr, err := parsePreserveAddr(words[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad destination address %q: %v", ErrBadPatternSpec, words[2], err)
	}

	dport, err := parsePreservePort(words[3])
	if err != nil {
		return nil, fmt.Errorf("%w: bad destination port %q: %v", ErrBadPatternSpec, words[3], err)
	}

	return NewPattern(saddr, sportLow, sportHigh, daddr, dport), nil
}

// ParsePatternWithPorts parses "SADDR SPORT DADDR DPORT FOUTPUT ROUTPUT"
// (spec §6's `pattern` input spec), returning the pattern and the
// forward/reverse output indices.
func ParsePatternWithPorts(spec string) (pattern *Pattern, foutput, routput int, err error) {
	words := strings.Fields(spec)
	if len(words) < 2 {
		return nil, 0, 0, fmt.Errorf("%w: missing forward/reverse output in pattern spec %q", ErrBadPatternSpec, spec)
	}

	fport, err := strconv.Atoi(words[len(words)-2])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: bad forward output in pattern spec %q", ErrBadPatternSpec, spec)
	}
	rport, err := strconv.Atoi(words[len(words)-1])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: bad reverse output in pattern spec %q", ErrBadPatternSpec, spec)
	}

	rest := strings.Join(words[:len(words)-2], " ")
	pattern, err = ParsePatternSpec(rest)
	if err != nil {
		return nil, 0, 0, err
	}
	return pattern, fport, rport, nil
}

func parsePreserveAddr(word string) (IPv4, error) {
	if word == "-" {
		return IPv4{}, nil
	}
	return ParseIPv4(word)
}

func parsePreservePort(word string) (uint16, error) {
	if word == "-" {
		return 0, nil
	}
	n, err := strconv.Atoi(word)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return uint16(n), nil
}

func parseSourcePortRange(word string) (low, high uint16, err error) {
	if word == "-" {
		return 0, 0, nil
	}
	if lo, hi, found := strings.Cut(word, "-"); found {
		loN, err := strconv.Atoi(lo)
		if err != nil {
			return 0, 0, err
		}
		hiN, err := strconv.Atoi(hi)
		if err != nil {
			return 0, 0, err
		}
		if loN < 0 || hiN > 65535 || loN > hiN {
			return 0, 0, fmt.Errorf("source port range %d-%d out of range", loN, hiN)
		}
		return uint16(loN), uint16(hiN), nil
	}

	n, err := strconv.Atoi(word)
	if err != nil {
		return 0, 0, err
	}
	if n < 0 || n > 65535 {
		return 0, 0, fmt.Errorf("source port %d out of range", n)
	}
	return uint16(n), uint16(n), nil
}

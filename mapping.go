package iprewriter

import "encoding/binary"

// Mapping is one direction of a rewritten flow: everything needed to
// turn a matching inbound packet into its rewritten outbound form in
// O(1), without touching the rest of the packet.
//
// Mappings are always created and destroyed in forward/reverse pairs
// (see newMappingPair); a Mapping never exists without its sibling.
type Mapping struct {
	// RewriteTo is the FlowId this mapping rewrites a matching
	// packet to.
	RewriteTo FlowId
	// Output is the output index downstream packets take.
	Output int

	ipChecksumDelta        uint16
	transportChecksumDelta uint16

	used      bool
	isReverse bool

	pattern *Pattern
	reverse *Mapping

	// ringIdx is this mapping's slot in pattern's ring, valid only
	// on the forward half (isReverse == false) when pattern != nil.
	ringIdx int
}

// newMappingPair builds the forward and reverse halves of a mapping
// for inbound flow "in" being rewritten to "out". pattern may be nil
// for mapper-supplied pairs that aren't backed by any Pattern.
//
// Unlike the C++ original this can't fail (Go has no recoverable
// allocation-failure path on the packet path); the only failure mode
// upstream of this call is port-range exhaustion in
// Pattern.findSourcePortLocked.
func newMappingPair(in, out FlowId, pattern *Pattern, foutput, routput int) (forward, rev *Mapping) {
	ipDelta, transportDelta := computeChecksumDeltas(in, out)
	forward = &Mapping{
		RewriteTo:              out,
		Output:                 foutput,
		ipChecksumDelta:        ipDelta,
		transportChecksumDelta: transportDelta,
		isReverse:              false,
		pattern:                pattern,
		ringIdx:                -1,
	}

	revIn, revOut := out.Reverse(), in.Reverse()
	ipDelta, transportDelta = computeChecksumDeltas(revIn, revOut)
	rev = &Mapping{
		RewriteTo:              revOut,
		Output:                 routput,
		ipChecksumDelta:        ipDelta,
		transportChecksumDelta: transportDelta,
		isReverse:              true,
		pattern:                pattern,
		ringIdx:                -1,
	}

	forward.reverse = rev
	rev.reverse = forward
	return forward, rev
}

// Used reports whether this mapping has been applied since the last
// GC sweep cleared its used bit.
func (m *Mapping) Used() bool { return m.used }

// Pattern returns the Pattern that allocated this mapping's pair, or
// nil for mapper-supplied pairs with no backing pattern.
func (m *Mapping) Pattern() *Pattern { return m.pattern }

// Reverse returns the paired Mapping in the opposite direction.
func (m *Mapping) Reverse() *Mapping { return m.reverse }

// IsReverse reports whether m is the reverse half of its pair.
func (m *Mapping) IsReverse() bool { return m.isReverse }

// Apply rewrites packet's 5-tuple and incrementally updates its
// IP and transport checksums in place, per spec §4.4. protocol must be
// ProtocolTCP or ProtocolUDP and must match the packet's actual IP
// protocol field (the caller has already dispatched on it).
func (m *Mapping) Apply(packet []byte, protocol uint8) error {
	ipHeader, err := ParseIPv4Header(packet)
	if err != nil {
		return err
	}
	headerLen := int(ipHeader.IHL) * 4

	copy(packet[12:16], m.RewriteTo.SrcIP[:])
	copy(packet[16:20], m.RewriteTo.DstIP[:])

	oldIPChecksum := binary.BigEndian.Uint16(packet[10:12])
	binary.BigEndian.PutUint16(packet[10:12], applyChecksumDelta(oldIPChecksum, m.ipChecksumDelta))

	switch protocol {
	case ProtocolTCP:
		if len(packet) < headerLen+20 {
			return errShortTCPHeader
		}
		binary.BigEndian.PutUint16(packet[headerLen:headerLen+2], m.RewriteTo.SrcPort)
		binary.BigEndian.PutUint16(packet[headerLen+2:headerLen+4], m.RewriteTo.DstPort)
		oldSum := binary.BigEndian.Uint16(packet[headerLen+16 : headerLen+18])
		binary.BigEndian.PutUint16(packet[headerLen+16:headerLen+18], applyChecksumDelta(oldSum, m.transportChecksumDelta))

	case ProtocolUDP:
		if len(packet) < headerLen+8 {
			return errShortUDPHeader
		}
		binary.BigEndian.PutUint16(packet[headerLen:headerLen+2], m.RewriteTo.SrcPort)
		binary.BigEndian.PutUint16(packet[headerLen+2:headerLen+4], m.RewriteTo.DstPort)
		oldSum := binary.BigEndian.Uint16(packet[headerLen+6 : headerLen+8])
		if oldSum != 0 {
			binary.BigEndian.PutUint16(packet[headerLen+6:headerLen+8], applyChecksumDelta(oldSum, m.transportChecksumDelta))
		}

	default:
		return ErrUnsupportedProtocol
	}

	m.used = true
	return nil
}

package iprewriter

import "fmt"

// FlowId is the immutable 5-tuple (minus protocol, which is tracked
// separately by which per-protocol MappingTable a FlowId is looked up
// in) identifying one direction of a TCP or UDP flow.
//
// Equality and map-keying use all four fields; FlowId is comparable
// and safe to use directly as a map key.
type FlowId struct {
	SrcIP   IPv4
	SrcPort uint16
	DstIP   IPv4
	DstPort uint16
}

// String renders a FlowId as "srcip:srcport->dstip:dstport", used by
// DumpMappings and in error/log messages.
func (f FlowId) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", f.SrcIP, f.SrcPort, f.DstIP, f.DstPort)
}

// Reverse returns the FlowId seen from the other end of the
// connection: (src, dst) addresses and ports are swapped.
func (f FlowId) Reverse() FlowId {
	return FlowId{
		SrcIP:   f.DstIP,
		SrcPort: f.DstPort,
		DstIP:   f.SrcIP,
		DstPort: f.SrcPort,
	}
}

// less gives FlowId a total order, used only to produce deterministic
// iteration order over a MappingTable (see table.go); it carries no
// protocol meaning.
func (f FlowId) less(o FlowId) bool {
	if f.SrcIP != o.SrcIP {
		return lessIPv4(f.SrcIP, o.SrcIP)
	}
	if f.SrcPort != o.SrcPort {
		return f.SrcPort < o.SrcPort
	}
	if f.DstIP != o.DstIP {
		return lessIPv4(f.DstIP, o.DstIP)
	}
	return f.DstPort < o.DstPort
}

func lessIPv4(a, b IPv4) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// flowIdFromPacket extracts the inbound FlowId from an IPv4 TCP/UDP
// packet. It returns the protocol byte alongside the flow so callers
// can pick the right MappingTable.
func flowIdFromPacket(packet []byte) (FlowId, uint8, error) {
	ipHeader, err := ParseIPv4Header(packet)
	if err != nil {
		return FlowId{}, 0, err
	}
	headerLen := int(ipHeader.IHL) * 4

	switch ipHeader.Protocol {
	case ProtocolTCP:
		th, err := ParseTCPHeader(packet, headerLen)
		if err != nil {
			return FlowId{}, 0, err
		}
		return FlowId{
			SrcIP:   ipHeader.SourceIP,
			SrcPort: th.SourcePort,
			DstIP:   ipHeader.DestinationIP,
			DstPort: th.DestinationPort,
		}, ProtocolTCP, nil
	case ProtocolUDP:
		uh, err := ParseUDPHeader(packet, headerLen)
		if err != nil {
			return FlowId{}, 0, err
		}
		return FlowId{
			SrcIP:   ipHeader.SourceIP,
			SrcPort: uh.SourcePort,
			DstIP:   ipHeader.DestinationIP,
			DstPort: uh.DestinationPort,
		}, ProtocolUDP, nil
	default:
		return FlowId{}, ipHeader.Protocol, ErrUnsupportedProtocol
	}
}

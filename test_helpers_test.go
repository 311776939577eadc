package iprewriter

import "encoding/binary"

// Test fixture builders: full-recompute packet construction for test
// inputs only (see packet.go's Marshal methods -- the packet path
// itself never recomputes a checksum from scratch).

func buildTCPPacket(srcIP, dstIP IPv4, srcPort, dstPort uint16, flags uint8) []byte {
	packet := make([]byte, 40) // 20 byte IP + 20 byte TCP

	packet[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(packet[2:4], 40)
	packet[8] = 64 // TTL
	packet[9] = ProtocolTCP
	copy(packet[12:16], srcIP[:])
	copy(packet[16:20], dstIP[:])

	binary.BigEndian.PutUint16(packet[20:22], srcPort)
	binary.BigEndian.PutUint16(packet[22:24], dstPort)
	packet[32] = 0x50 // data offset 5 words

	ipChecksum := calculateIPv4Checksum(packet[:20])
	binary.BigEndian.PutUint16(packet[10:12], ipChecksum)

	tcpChecksum := pseudoHeaderChecksum(srcIP, dstIP, ProtocolTCP, packet[20:])
	binary.BigEndian.PutUint16(packet[36:38], tcpChecksum)

	return packet
}

func buildUDPPacket(srcIP, dstIP IPv4, srcPort, dstPort uint16, data []byte) []byte {
	totalLen := 20 + 8 + len(data)
	packet := make([]byte, totalLen)

	packet[0] = 0x45
	binary.BigEndian.PutUint16(packet[2:4], uint16(totalLen))
	packet[8] = 64
	packet[9] = ProtocolUDP
	copy(packet[12:16], srcIP[:])
	copy(packet[16:20], dstIP[:])

	binary.BigEndian.PutUint16(packet[20:22], srcPort)
	binary.BigEndian.PutUint16(packet[22:24], dstPort)
	binary.BigEndian.PutUint16(packet[24:26], uint16(8+len(data)))
	if len(data) > 0 {
		copy(packet[28:], data)
	}

	ipChecksum := calculateIPv4Checksum(packet[:20])
	binary.BigEndian.PutUint16(packet[10:12], ipChecksum)

	udpChecksum := pseudoHeaderChecksum(srcIP, dstIP, ProtocolUDP, packet[20:])
	binary.BigEndian.PutUint16(packet[26:28], udpChecksum)

	return packet
}

func verifyIPv4Checksum(packet []byte) bool {
	h, err := ParseIPv4Header(packet)
	if err != nil {
		return false
	}
	headerLen := int(h.IHL) * 4
	return calculateIPv4Checksum(packet[:headerLen]) == 0
}

func verifyTCPChecksum(packet []byte) bool {
	h, err := ParseIPv4Header(packet)
	if err != nil {
		return false
	}
	headerLen := int(h.IHL) * 4
	return pseudoHeaderChecksum(h.SourceIP, h.DestinationIP, ProtocolTCP, packet[headerLen:]) == 0
}

func verifyUDPChecksum(packet []byte) bool {
	h, err := ParseIPv4Header(packet)
	if err != nil {
		return false
	}
	headerLen := int(h.IHL) * 4
	sum := binary.BigEndian.Uint16(packet[headerLen+6 : headerLen+8])
	if sum == 0 {
		return true // checksum disabled, per UDP's optional-checksum rule
	}
	return pseudoHeaderChecksum(h.SourceIP, h.DestinationIP, ProtocolUDP, packet[headerLen:]) == 0
}

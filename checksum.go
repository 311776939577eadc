package iprewriter

import "encoding/binary"

// foldUint32 repeatedly folds the carry-out top halfword of sum into
// the bottom 16 bits until the result fits in 16 bits.
func foldUint32(sum uint32) uint32 {
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return sum
}

// accumulateWordChange folds one RFC 1624 incremental-update term
// (~oldVal + newVal) into a running delta.
func accumulateWordChange(delta uint32, oldVal, newVal uint16) uint32 {
	delta += uint32(^oldVal) & 0xFFFF
	delta += uint32(newVal)
	return foldUint32(delta)
}

// applyChecksumDelta folds a precomputed delta into an existing
// one's-complement checksum field, per RFC 1624:
//
//	newSum = ~( ~oldSum + delta )
func applyChecksumDelta(oldChecksum uint16, delta uint16) uint16 {
	sum := (uint32(^oldChecksum) & 0xFFFF) + uint32(delta)
	sum = foldUint32(sum)
	return ^uint16(sum)
}

// ipv4Words splits an IPv4 address into its two big-endian 16-bit
// words, the unit the checksum algorithm operates on.
func ipv4Words(ip IPv4) [2]uint16 {
	return [2]uint16{
		binary.BigEndian.Uint16(ip[0:2]),
		binary.BigEndian.Uint16(ip[2:4]),
	}
}

// computeChecksumDeltas precomputes the two accumulators a Mapping
// needs to rewrite a packet incrementally (spec §4.1): ipDelta covers
// the four address words; transportDelta extends the same running sum
// over the two port words, since TCP/UDP checksums cover the pseudo
// header (including both addresses) plus the segment (including both
// ports).
func computeChecksumDeltas(in, out FlowId) (ipDelta, transportDelta uint16) {
	inSrcWords, inDstWords := ipv4Words(in.SrcIP), ipv4Words(in.DstIP)
	outSrcWords, outDstWords := ipv4Words(out.SrcIP), ipv4Words(out.DstIP)
	oldAddrWords := append(inSrcWords[:], inDstWords[:]...)
	newAddrWords := append(outSrcWords[:], outDstWords[:]...)

	var delta uint32
	for i := range oldAddrWords {
		delta = accumulateWordChange(delta, oldAddrWords[i], newAddrWords[i])
	}
	ipDelta = uint16(delta)

	delta = accumulateWordChange(delta, in.SrcPort, out.SrcPort)
	delta = accumulateWordChange(delta, in.DstPort, out.DstPort)
	transportDelta = uint16(delta)

	return ipDelta, transportDelta
}

package iprewriter

import (
	"fmt"
	"strings"
)

// DumpMappings renders every live mapping pair's forward half as
// "IN-FLOW => OUT-FLOW [OUTPUT]", grouped under "TCP:"/"UDP:" headers,
// matching iprewriter.cc's dump_table handler (spec §6).
func (r *Rewriter) DumpMappings() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	writeGroup := func(header string, table *MappingTable) {
		var lines []string
		table.Each(func(flow FlowId, m *Mapping) bool {
			if !m.isReverse {
				lines = append(lines, fmt.Sprintf("%s => %s [%d]", flow, m.RewriteTo, m.Output))
			}
			return true
		})
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(header)
		b.WriteString(":\n")
		for _, l := range lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
	}

	writeGroup("TCP", r.tcp)
	writeGroup("UDP", r.udp)
	return b.String()
}

// DumpPatterns renders the Pattern backing every pattern-kind
// InputSpec, one per line, in input order, matching iprewriter.cc's
// dump_patterns handler (spec §6).
func (r *Rewriter) DumpPatterns() string {
	var b strings.Builder
	for _, spec := range r.inputs {
		if spec.Kind == SpecPattern {
			b.WriteString(spec.Pattern.String())
			b.WriteString("\n")
		}
	}
	return b.String()
}

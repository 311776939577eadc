package iprewriter

import (
	"fmt"
	"strconv"
	"strings"
)

// InputSpecKind discriminates the four per-input-port policies of
// spec §4.6/§6.
type InputSpecKind int

const (
	SpecNoChange InputSpecKind = iota
	SpecDrop
	SpecPattern
	SpecMapper
)

// InputSpec is the policy executed on a mapping-table miss for
// packets arriving on one input (spec §4.6).
type InputSpec struct {
	Kind InputSpecKind

	// Output is the nochange forwarding target.
	Output int

	// Pattern, FOutput, ROutput apply when Kind == SpecPattern.
	Pattern *Pattern
	FOutput int
	ROutput int

	// Mapper applies when Kind == SpecMapper.
	Mapper ExternalMapper
}

// ParseInputSpec parses one input-port configuration line (spec §6):
//
//	nochange [OUTPUT]
//	drop
//	pattern SADDR SPORT DADDR DPORT FOUTPUT ROUTPUT
//	pattern NAME FOUTPUT ROUTPUT
//	ELEMENTNAME
//
// registry resolves named-pattern references; mappers resolves
// ELEMENTNAME to an ExternalMapper (the dataflow framework that would
// normally resolve element names is out of scope; callers supply the
// mapping explicitly).
func ParseInputSpec(spec string, numOutputs int, registry *PatternRegistry, mappers map[string]ExternalMapper) (InputSpec, error) {
	spec = strings.TrimSpace(spec)
	word, rest, _ := strings.Cut(spec, " ")
	rest = strings.TrimSpace(rest)

	switch word {
	case "nochange":
		output := 0
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return InputSpec{}, fmt.Errorf("%w: bad nochange output %q", ErrBadInputSpec, rest)
			}
			output = n
		}
		if output < 0 || output >= numOutputs {
			return InputSpec{}, fmt.Errorf("%w: nochange output %d out of range [0,%d)", ErrBadInputSpec, output, numOutputs)
		}
		return InputSpec{Kind: SpecNoChange, Output: output}, nil

	case "drop":
		if rest != "" {
			return InputSpec{}, fmt.Errorf("%w: `drop` takes no arguments", ErrBadInputSpec)
		}
		return InputSpec{Kind: SpecDrop}, nil

	case "pattern":
		pat, fport, rport, err := resolvePatternSpec(rest, registry)
		if err != nil {
			return InputSpec{}, err
		}
		if fport < 0 || fport >= numOutputs || rport < 0 || rport >= numOutputs {
			return InputSpec{}, fmt.Errorf("%w: pattern outputs %d/%d out of range [0,%d)", ErrBadInputSpec, fport, rport, numOutputs)
		}
		pat.Use()
		return InputSpec{Kind: SpecPattern, Pattern: pat, FOutput: fport, ROutput: rport}, nil

	default:
		if rest != "" {
			return InputSpec{}, fmt.Errorf("%w: unknown input spec kind %q", ErrBadInputSpec, word)
		}
		mapper, ok := mappers[word]
		if !ok {
			return InputSpec{}, fmt.Errorf("%w: unknown input spec %q", ErrBadInputSpec, word)
		}
		return InputSpec{Kind: SpecMapper, Mapper: mapper}, nil
	}
}

// resolvePatternSpec handles both `pattern` forms: a three-word
// "NAME FOUTPUT ROUTPUT" registry reference, or the full six-word
// inline definition.
func resolvePatternSpec(rest string, registry *PatternRegistry) (*Pattern, int, int, error) {
	words := strings.Fields(rest)
	if len(words) == 3 {
		name := words[0]
		if registry == nil {
			return nil, 0, 0, fmt.Errorf("%w: no pattern registry to resolve %q", ErrPatternNotFound, name)
		}
		pat, ok := registry.Find(name)
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: %q", ErrPatternNotFound, name)
		}
		fport, err := strconv.Atoi(words[1])
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: bad forward output in %q", ErrBadInputSpec, rest)
		}
		rport, err := strconv.Atoi(words[2])
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: bad reverse output in %q", ErrBadInputSpec, rest)
		}
		return pat, fport, rport, nil
	}

	return ParsePatternWithPorts(rest)
}

package iprewriter

import "errors"

// Sentinel errors for the packet path and configuration path. Wrap
// with fmt.Errorf("...: %w", ...) at call sites that have more
// context to add; callers can still errors.Is/errors.As against these.
var (
	// ErrDrop is returned by Push when a packet is dropped: no
	// existing mapping, and the input's policy produced none.
	ErrDrop = errors.New("iprewriter: packet dropped")

	// ErrPortRangeExhausted means a Pattern's source-port range has
	// no free port for a new mapping.
	ErrPortRangeExhausted = errors.New("iprewriter: source port range exhausted")

	// ErrUnsupportedProtocol means the packet is not TCP or UDP.
	ErrUnsupportedProtocol = errors.New("iprewriter: unsupported protocol")

	// ErrPatternNotFound means a "pattern NAME ..." input spec named
	// a pattern absent from the registry.
	ErrPatternNotFound = errors.New("iprewriter: pattern not found in registry")

	// ErrBadPatternSpec means a pattern definition string failed to
	// parse or violated a range invariant.
	ErrBadPatternSpec = errors.New("iprewriter: bad pattern spec")

	// ErrBadInputSpec means an input spec string's kind word or
	// arguments were malformed.
	ErrBadInputSpec = errors.New("iprewriter: bad input spec")

	errShortTCPHeader = errors.New("iprewriter: packet too short for TCP header")
	errShortUDPHeader = errors.New("iprewriter: packet too short for UDP header")
)

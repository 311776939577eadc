package iprewriter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultGCInterval is how often Rewriter.StartGC sweeps the mapping
// tables when no WithGCInterval option is given (spec §4.7: "on the
// order of tens of seconds to a few minutes").
const DefaultGCInterval = 60 * time.Second

// Rewriter is the per-process rewriting engine: one pair of
// per-protocol MappingTables plus the InputSpec policy that governs
// what happens on a miss (spec §4.6/§4.7).
type Rewriter struct {
	mu  sync.Mutex
	tcp *MappingTable
	udp *MappingTable

	inputs []InputSpec

	logger  *logrus.Entry
	metrics *Metrics

	// Now is consulted by StartGC's ticker loop and may be overridden
	// in tests via WithNow.
	Now func() time.Time
	// GCInterval is the period between background sweeps.
	GCInterval time.Duration

	// LiveProbe, when set, is consulted at the start of every sweep
	// and should return the flows a host-level liveness signal (e.g.
	// an open socket table) considers still active, per protocol. A
	// nil LiveProbe means liveness is judged purely from traffic seen
	// through Push between sweeps (spec §4.7, §9).
	LiveProbe func(isTCP bool) []FlowId
}

// Option configures a Rewriter at construction time.
type Option func(*Rewriter)

// WithLogger overrides the default logger.
func WithLogger(l *logrus.Entry) Option {
	return func(r *Rewriter) { r.logger = l }
}

// WithMetrics attaches a Metrics instance. Without this option
// Rewriter runs metrics-free.
func WithMetrics(m *Metrics) Option {
	return func(r *Rewriter) { r.metrics = m }
}

// WithGCInterval overrides DefaultGCInterval.
func WithGCInterval(d time.Duration) Option {
	return func(r *Rewriter) { r.GCInterval = d }
}

// WithNow overrides time.Now, for deterministic GC tests.
func WithNow(f func() time.Time) Option {
	return func(r *Rewriter) { r.Now = f }
}

// WithLiveProbe installs a liveness hook consulted at the start of
// every sweep.
func WithLiveProbe(f func(isTCP bool) []FlowId) Option {
	return func(r *Rewriter) { r.LiveProbe = f }
}

// NewRewriter builds a Rewriter from already-parsed InputSpecs,
// running the configure-time conflict analysis of spec §4.3 over
// every pattern-kind input and every Pattern a mapper-kind input's
// MapperPatterns reports: a DefiniteConflict is a configuration
// error, a PossibleConflict is only logged.
func NewRewriter(inputs []InputSpec, opts ...Option) (*Rewriter, error) {
	r := &Rewriter{
		tcp:        newMappingTable(),
		udp:        newMappingTable(),
		inputs:     inputs,
		Now:        time.Now,
		GCInterval: DefaultGCInterval,
		logger:     defaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.checkPatternConflicts(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rewriter) checkPatternConflicts() error {
	var patterns []*Pattern
	for _, spec := range r.inputs {
		if spec.Kind == SpecPattern {
			patterns = append(patterns, spec.Pattern)
		}
		if spec.Kind == SpecMapper && spec.Mapper != nil {
			patterns = append(patterns, spec.Mapper.MapperPatterns(r)...)
		}
	}

	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			a, b := patterns[i], patterns[j]
			if a.DefiniteConflict(b) {
				return fmt.Errorf("%w: patterns %q and %q always rewrite to the same output flow", ErrBadPatternSpec, a, b)
			}
			if a.PossibleConflict(b) {
				r.logger.WithFields(logrus.Fields{
					"pattern_a": a.String(),
					"pattern_b": b.String(),
				}).Warn("patterns may rewrite distinct flows to the same output flow")
			}
		}
	}
	return nil
}

func (r *Rewriter) tableFor(isTCP bool) *MappingTable {
	if isTCP {
		return r.tcp
	}
	return r.udp
}

func (r *Rewriter) lookup(isTCP bool, flow FlowId) *Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tableFor(isTCP).Find(flow)
}

// mappingForwardKey and mappingReverseKey recover the two table keys a
// forward/reverse pair is installed under, from the pair's rewritten
// FlowIds alone -- the same derivation iprewriter.cc's install() and
// clean_map() use, so a pair inserted by CreateMapping, by Install, or
// erased by a sweep all agree on where it lives.
func mappingForwardKey(forward, reverse *Mapping) FlowId { return reverse.RewriteTo.Reverse() }
func mappingReverseKey(forward, reverse *Mapping) FlowId { return forward.RewriteTo.Reverse() }

// Install records an externally-built forward/reverse Mapping pair
// into the per-protocol table, making it visible to lookups in both
// directions atomically (spec §5). ExternalMapper implementations call
// this from GetMap before returning.
//
// Install is the single point where table visibility is serialized:
// Push's own miss handling (lookup, then Pattern.CreateMapping or
// ExternalMapper.GetMap, then Install) is deliberately not run under
// one held lock end to end, because GetMap is required to call back
// into Install from the same call stack and r.mu is not reentrant.
// That leaves a window where two concurrent Push calls can both miss
// on the identical new flow and each build their own forward/reverse
// pair before either calls Install. Install closes that window itself
// by re-checking the table under its own lock immediately before
// inserting: the first caller in wins and its pair is what every
// future lookup for this flow sees; the loser's pair is discarded and
// its ports released back to its Pattern, instead of silently
// overwriting the winner's table entries. Install returns whichever
// pair's forward half is authoritative, so callers apply the packet
// through the winner even when they lost the race.
func (r *Rewriter) Install(isTCP bool, forward, reverse *Mapping) *Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.tableFor(isTCP)
	forwardKey := mappingForwardKey(forward, reverse)
	if existing := table.Find(forwardKey); existing != nil {
		if forward.pattern != nil {
			forward.pattern.MappingFreed(forward)
		}
		return existing
	}

	table.Insert(forwardKey, forward)
	table.Insert(mappingReverseKey(forward, reverse), reverse)
	return forward
}

// Push is the per-packet entry point (spec §4.7): it rewrites packet
// in place and returns the output index the caller should forward it
// to. The surrounding dataflow framework that would normally carry a
// packet between elements is out of scope; callers own delivery.
func (r *Rewriter) Push(input int, packet []byte) (int, error) {
	flow, protocol, err := flowIdFromPacket(packet)
	if err != nil {
		if r.metrics != nil {
			r.metrics.PacketsDropped.WithLabelValues("unsupported_protocol").Inc()
		}
		return 0, err
	}
	isTCP := protocol == ProtocolTCP

	m := r.lookup(isTCP, flow)
	if m == nil {
		if input < 0 || input >= len(r.inputs) {
			return 0, fmt.Errorf("%w: input %d out of range", ErrBadInputSpec, input)
		}
		m, err = r.miss(isTCP, flow, r.inputs[input])
		if err != nil {
			if r.metrics != nil {
				r.metrics.PacketsDropped.WithLabelValues(missDropReason(err)).Inc()
			}
			r.logger.WithFields(logrus.Fields{
				"flow":  flow.String(),
				"input": input,
			}).WithError(err).Debug("dropping packet")
			return 0, err
		}
		if m == nil {
			// nochange: forward unaltered, no mapping created.
			if r.metrics != nil {
				r.metrics.PacketsRewritten.WithLabelValues(protoLabel(isTCP)).Inc()
			}
			return r.inputs[input].Output, nil
		}
	}

	if err := m.Apply(packet, protocol); err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.PacketsRewritten.WithLabelValues(protoLabel(isTCP)).Inc()
	}
	return m.Output, nil
}

// miss executes spec's policy for a table miss. A nil, nil result
// means "nochange": the caller forwards the packet as-is.
func (r *Rewriter) miss(isTCP bool, flow FlowId, spec InputSpec) (*Mapping, error) {
	switch spec.Kind {
	case SpecNoChange:
		return nil, nil

	case SpecDrop:
		return nil, ErrDrop

	case SpecPattern:
		forward, reverse, ok := spec.Pattern.CreateMapping(flow, spec.FOutput, spec.ROutput)
		if !ok {
			r.logger.WithFields(logrus.Fields{
				"flow":    flow.String(),
				"pattern": spec.Pattern.String(),
			}).Warn("source port range exhausted")
			return nil, fmt.Errorf("%w: %w", ErrDrop, ErrPortRangeExhausted)
		}
		return r.Install(isTCP, forward, reverse), nil

	case SpecMapper:
		m, err := spec.Mapper.GetMap(isTCP, flow, r)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, ErrDrop
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: unknown input spec kind", ErrBadInputSpec)
	}
}

func missDropReason(err error) string {
	switch {
	case err == ErrDrop:
		return "drop"
	default:
		return "error"
	}
}

func protoLabel(isTCP bool) string {
	if isTCP {
		return "tcp"
	}
	return "udp"
}

// Sweep performs one garbage-collection pass over both mapping tables
// (spec §4.7): mappings untouched since the previous sweep are freed
// in forward/reverse pairs; survivors have their used bit cleared so
// the next sweep can tell whether they saw traffic in between.
func (r *Rewriter) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.LiveProbe != nil {
		for _, flow := range r.LiveProbe(true) {
			if m := r.tcp.Find(flow); m != nil {
				m.used = true
			}
		}
		for _, flow := range r.LiveProbe(false) {
			if m := r.udp.Find(flow); m != nil {
				m.used = true
			}
		}
	}

	r.sweepTable(r.tcp, true)
	r.sweepTable(r.udp, false)

	if r.metrics != nil {
		r.metrics.GCSweepDuration.Observe(time.Since(now).Seconds())
		r.metrics.ActiveMappings.WithLabelValues("tcp").Set(float64(r.tcp.Len()))
		r.metrics.ActiveMappings.WithLabelValues("udp").Set(float64(r.udp.Len()))
	}
	r.logger.WithFields(logrus.Fields{
		"tcp_mappings": r.tcp.Len(),
		"udp_mappings": r.udp.Len(),
	}).Info("gc sweep complete")
}

// sweepTable runs in two phases over every forward/reverse pair, per
// spec §4.7: first every pair's eviction decision is read from the
// pre-sweep `used` bits without mutating anything, then `used` is
// cleared on the survivors. The decision must not be made one pair at
// a time while sweeping, because the forward and reverse halves of a
// pair are independent table entries keyed by independent FlowIds
// (mappingForwardKey/mappingReverseKey) and so sort independently: if
// the reverse half happened to be visited first and cleared in the
// same pass, the forward half's decision would read an already-zeroed
// reverse.used instead of its true pre-sweep value.
func (r *Rewriter) sweepTable(table *MappingTable, isTCP bool) {
	type pairState struct {
		forward     *Mapping
		forwardUsed bool
		reverseUsed bool
	}

	var pairs []pairState
	table.Each(func(flow FlowId, m *Mapping) bool {
		if !m.isReverse {
			pairs = append(pairs, pairState{forward: m, forwardUsed: m.used, reverseUsed: m.reverse.used})
		}
		return true
	})

	var toFree []*Mapping
	for _, p := range pairs {
		if !p.forwardUsed && !p.reverseUsed {
			toFree = append(toFree, p.forward)
			continue
		}
		p.forward.used = false
		p.forward.reverse.used = false
	}

	for _, m := range toFree {
		if m.pattern != nil {
			m.pattern.MappingFreed(m)
		}
		table.Insert(mappingForwardKey(m, m.reverse), nil)
		table.Insert(mappingReverseKey(m, m.reverse), nil)
	}
}

// StartGC calls Sweep every GCInterval until ctx is cancelled, then
// returns. It blocks; run it in its own goroutine for a background
// sweeper.
func (r *Rewriter) StartGC(ctx context.Context) {
	ticker := time.NewTicker(r.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.Now())
		}
	}
}

// Shutdown releases every live mapping and drops each pattern input's
// configuration-time reference, mirroring iprewriter.cc's
// uninitialize(). Call it once, after StartGC's context has been
// cancelled.
func (r *Rewriter) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearTable(r.tcp)
	r.clearTable(r.udp)

	for _, spec := range r.inputs {
		if spec.Kind == SpecPattern {
			spec.Pattern.Unuse()
		}
	}
}

func (r *Rewriter) clearTable(table *MappingTable) {
	var toFree []*Mapping
	table.Each(func(flow FlowId, m *Mapping) bool {
		if !m.isReverse {
			toFree = append(toFree, m)
		}
		return true
	})
	for _, m := range toFree {
		if m.pattern != nil {
			m.pattern.MappingFreed(m)
		}
		table.Insert(mappingForwardKey(m, m.reverse), nil)
		table.Insert(mappingReverseKey(m, m.reverse), nil)
	}
}

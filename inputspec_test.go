package iprewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInputSpecNoChange(t *testing.T) {
	spec, err := ParseInputSpec("nochange 1", 2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, SpecNoChange, spec.Kind)
	assert.Equal(t, 1, spec.Output)
}

func TestParseInputSpecNoChangeDefaultsToOutputZero(t *testing.T) {
	spec, err := ParseInputSpec("nochange", 2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, spec.Output)
}

func TestParseInputSpecNoChangeOutOfRange(t *testing.T) {
	_, err := ParseInputSpec("nochange 5", 2, nil, nil)
	assert.ErrorIs(t, err, ErrBadInputSpec)
}

func TestParseInputSpecDrop(t *testing.T) {
	spec, err := ParseInputSpec("drop", 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, SpecDrop, spec.Kind)
}

func TestParseInputSpecPatternInline(t *testing.T) {
	spec, err := ParseInputSpec("pattern 1.2.3.4 1024-2048 5.6.7.8 80 1 0", 2, nil, nil)
	require.NoError(t, err)
	require.Equal(t, SpecPattern, spec.Kind)
	assert.Equal(t, 1, spec.FOutput)
	assert.Equal(t, 0, spec.ROutput)
	assert.Equal(t, 1, spec.Pattern.UseCount())
}

func TestParseInputSpecPatternNamedReference(t *testing.T) {
	registry := NewPatternRegistry()
	pat := NewPattern(IPv4{1, 1, 1, 1}, 1024, 2048, IPv4{}, 0)
	require.NoError(t, registry.Register("pool-a", pat))

	spec, err := ParseInputSpec("pattern pool-a 1 0", 2, registry, nil)
	require.NoError(t, err)
	assert.Same(t, pat, spec.Pattern)
	assert.Equal(t, 1, spec.FOutput)
}

func TestParseInputSpecPatternUnknownName(t *testing.T) {
	registry := NewPatternRegistry()
	_, err := ParseInputSpec("pattern pool-a 1 0", 2, registry, nil)
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestParseInputSpecMapperReference(t *testing.T) {
	mapper := &fakeMapper{}
	spec, err := ParseInputSpec("lb1", 1, nil, map[string]ExternalMapper{"lb1": mapper})
	require.NoError(t, err)
	assert.Equal(t, SpecMapper, spec.Kind)
	assert.Same(t, mapper, spec.Mapper)
}

func TestParseInputSpecUnknown(t *testing.T) {
	_, err := ParseInputSpec("bogus", 1, nil, nil)
	assert.ErrorIs(t, err, ErrBadInputSpec)
}

type fakeMapper struct{}

func (m *fakeMapper) GetMap(isTCP bool, flow FlowId, r *Rewriter) (*Mapping, error) { return nil, nil }
func (m *fakeMapper) MapperPatterns(r *Rewriter) []*Pattern                         { return nil }

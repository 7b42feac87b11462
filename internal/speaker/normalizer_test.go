package speaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-qa-go/internal/types"
)

func tagged(tags ...string) []types.Segment {
	segs := make([]types.Segment, len(tags))
	for i, tag := range tags {
		segs[i] = types.Segment{Speaker: tag, Start: float64(i), End: float64(i) + 1}
	}
	return segs
}

var abMapping = map[string]string{"A": "Agent", "B": "Customer"}

func TestNormalize_DirectMapping(t *testing.T) {
	segs := tagged("A", "B", "A")
	Normalize(segs, abMapping)
	assert.Equal(t, types.RoleAgent, segs[0].Role)
	assert.Equal(t, types.RoleCustomer, segs[1].Role)
	assert.Equal(t, types.RoleAgent, segs[2].Role)
	for _, s := range segs {
		assert.False(t, s.Overlap)
	}
}

func TestNormalize_OverlapInheritsNextResolved(t *testing.T) {
	segs := tagged("A", "C", "B", "D", "A")
	Normalize(segs, abMapping)

	require.Len(t, segs, 5)
	assert.Equal(t, types.RoleAgent, segs[0].Role)

	// "C" takes the role of the next definitive segment: "B" -> Customer
	assert.Equal(t, types.RoleCustomer, segs[1].Role)
	assert.True(t, segs[1].Overlap)
	assert.Equal(t, types.RoleCustomer, segs[1].OverlapFrom)

	assert.Equal(t, types.RoleCustomer, segs[2].Role)
	assert.False(t, segs[2].Overlap)

	// "D" takes the role of the next definitive segment: "A" -> Agent
	assert.Equal(t, types.RoleAgent, segs[3].Role)
	assert.True(t, segs[3].Overlap)
	assert.Equal(t, types.RoleAgent, segs[3].OverlapFrom)

	assert.Equal(t, types.RoleAgent, segs[4].Role)
	assert.False(t, segs[4].Overlap)
}

func TestNormalize_TrailingOverlapStaysUnknown(t *testing.T) {
	segs := tagged("A", "B", "C", "D")
	Normalize(segs, abMapping)
	assert.Equal(t, types.RoleAgent, segs[0].Role)
	assert.Equal(t, types.RoleCustomer, segs[1].Role)
	// no later definitive segment: role stays unset, never defaulted
	assert.Empty(t, segs[2].Role)
	assert.Empty(t, segs[3].Role)
	assert.False(t, segs[2].Overlap)
}

func TestNormalize_SpeakerPrefixAndCase(t *testing.T) {
	segs := tagged("Speaker a", "speaker B", "SPEAKER_A")
	Normalize(segs, abMapping)
	assert.Equal(t, types.RoleAgent, segs[0].Role)
	assert.Equal(t, types.RoleCustomer, segs[1].Role)
	assert.Equal(t, types.RoleAgent, segs[2].Role)
}

func TestNormalize_LiteralRoleTags(t *testing.T) {
	segs := tagged("agent", "Customer")
	Normalize(segs, nil)
	assert.Equal(t, types.RoleAgent, segs[0].Role)
	assert.Equal(t, types.RoleCustomer, segs[1].Role)
}

func TestNormalize_InvertedMapping(t *testing.T) {
	segs := tagged("A", "B")
	Normalize(segs, map[string]string{"A": "Customer", "B": "Agent"})
	assert.Equal(t, types.RoleCustomer, segs[0].Role)
	assert.Equal(t, types.RoleAgent, segs[1].Role)
}

func TestNormalize_NoMappingLeavesUnset(t *testing.T) {
	segs := tagged("A", "B", "C")
	Normalize(segs, nil)
	for _, s := range segs {
		assert.Empty(t, s.Role)
	}
}

func TestNormalize_MappedOverlapTagStillInferred(t *testing.T) {
	// a mapping entry for "C" is ignored; overlap tags only resolve by
	// forward scan
	segs := tagged("C", "B")
	Normalize(segs, map[string]string{"B": "Customer", "C": "Agent"})
	assert.Equal(t, types.RoleCustomer, segs[0].Role)
	assert.True(t, segs[0].Overlap)
}

func TestNormalize_PreservesOrderAndCount(t *testing.T) {
	segs := tagged("B", "C", "A")
	Normalize(segs, abMapping)
	require.Len(t, segs, 3)
	assert.Equal(t, "B", segs[0].Speaker)
	assert.Equal(t, "C", segs[1].Speaker)
	assert.Equal(t, "A", segs[2].Speaker)
}

package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"call-qa-go/internal/types"
)

func seg(role types.SpeakerRole, sentiment types.Sentiment, start, end float64) types.Segment {
	return types.Segment{Role: role, Sentiment: sentiment, Start: start, End: end}
}

func TestRollup_MajorityPositive(t *testing.T) {
	segs := []types.Segment{
		seg(types.RoleAgent, types.SentimentPositive, 0, 10),
		seg(types.RoleCustomer, types.SentimentPositive, 10, 20),
		seg(types.RoleCustomer, types.SentimentNegative, 20, 30),
	}
	// weighted average = (1+1-1)/3 ~= 0.33 > 0.1
	assert.Equal(t, types.SentimentPositive, Rollup(segs, nil))
}

func TestRollup_DurationWeighting(t *testing.T) {
	segs := []types.Segment{
		seg(types.RoleAgent, types.SentimentPositive, 0, 2),
		seg(types.RoleCustomer, types.SentimentNegative, 2, 50),
	}
	// the long negative segment dominates
	assert.Equal(t, types.SentimentNegative, Rollup(segs, nil))
}

func TestRollup_NeutralBand(t *testing.T) {
	segs := []types.Segment{
		seg(types.RoleAgent, types.SentimentPositive, 0, 10),
		seg(types.RoleCustomer, types.SentimentNegative, 10, 20),
	}
	// weighted average = 0, inside the +-0.1 band
	assert.Equal(t, types.SentimentNeutral, Rollup(segs, nil))
}

func TestRollup_MalformedDurationsExcluded(t *testing.T) {
	segs := []types.Segment{
		seg(types.RoleAgent, types.SentimentNegative, 10, 10), // zero duration
		seg(types.RoleAgent, types.SentimentNegative, 30, 20), // negative duration
		seg(types.RoleAgent, types.SentimentPositive, 0, 5),
	}
	assert.Equal(t, types.SentimentPositive, Rollup(segs, nil))
}

func TestRollup_EmptyIsNeutral(t *testing.T) {
	assert.Equal(t, types.SentimentNeutral, Rollup(nil, nil))
	assert.Equal(t, types.SentimentNeutral, Rollup(nil, ForRole(types.RoleAgent)))
}

func TestRollup_RoleFilter(t *testing.T) {
	segs := []types.Segment{
		seg(types.RoleAgent, types.SentimentPositive, 0, 10),
		seg(types.RoleCustomer, types.SentimentNegative, 10, 40),
	}
	assert.Equal(t, types.SentimentPositive, Rollup(segs, ForRole(types.RoleAgent)))
	assert.Equal(t, types.SentimentNegative, Rollup(segs, ForRole(types.RoleCustomer)))
}

func TestSummarize(t *testing.T) {
	segs := []types.Segment{
		seg(types.RoleAgent, types.SentimentPositive, 0, 10),
		seg(types.RoleAgent, types.SentimentPositive, 10, 20),
		seg(types.RoleCustomer, types.SentimentNegative, 20, 30),
	}
	summary := Summarize(segs)
	assert.Equal(t, types.SentimentPositive, summary.Overall)
	assert.Equal(t, types.SentimentPositive, summary.Agent)
	assert.Equal(t, types.SentimentNegative, summary.Customer)
}

// Package aggregator rolls per-segment sentiment up into call-level labels.
package aggregator

import "call-qa-go/internal/types"

// RoleFilter selects the segments contributing to a roll-up. A nil filter
// includes every segment.
type RoleFilter func(types.Segment) bool

func ForRole(role types.SpeakerRole) RoleFilter {
	return func(s types.Segment) bool { return s.Role == role }
}

// Rollup computes a duration-weighted average of segment sentiment scores
// (positive=+1, neutral=0, negative=-1) and classifies the result. Segments
// with zero or negative duration are excluded; malformed provider timestamps
// must not skew the weighting.
func Rollup(segments []types.Segment, filter RoleFilter) types.Sentiment {
	var weighted, total float64
	for _, s := range segments {
		if filter != nil && !filter(s) {
			continue
		}
		d := s.Duration()
		if d <= 0 {
			continue
		}
		weighted += sentimentScore(s.Sentiment) * d
		total += d
	}
	if total == 0 {
		return types.SentimentNeutral
	}
	return classify(weighted / total)
}

// Summarize computes the overall and per-role sentiment labels.
func Summarize(segments []types.Segment) types.SentimentSummary {
	return types.SentimentSummary{
		Overall:  Rollup(segments, nil),
		Agent:    Rollup(segments, ForRole(types.RoleAgent)),
		Customer: Rollup(segments, ForRole(types.RoleCustomer)),
	}
}

func sentimentScore(s types.Sentiment) float64 {
	switch s {
	case types.SentimentPositive:
		return 1
	case types.SentimentNegative:
		return -1
	default:
		return 0
	}
}

func classify(avg float64) types.Sentiment {
	switch {
	case avg > 0.1:
		return types.SentimentPositive
	case avg < -0.1:
		return types.SentimentNegative
	default:
		return types.SentimentNeutral
	}
}

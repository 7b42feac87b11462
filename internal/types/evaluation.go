package types

import "time"

type PerformanceCategory string

const (
	PerformanceExcellent        PerformanceCategory = "excellent"
	PerformanceGood             PerformanceCategory = "good"
	PerformanceSatisfactory     PerformanceCategory = "satisfactory"
	PerformanceNeedsImprovement PerformanceCategory = "needs_improvement"
	PerformancePoor             PerformanceCategory = "poor"
)

// CategoryForScore buckets a 0-100 percentage score.
func CategoryForScore(score float64) PerformanceCategory {
	switch {
	case score >= 90:
		return PerformanceExcellent
	case score >= 75:
		return PerformanceGood
	case score >= 60:
		return PerformanceSatisfactory
	case score >= 40:
		return PerformanceNeedsImprovement
	default:
		return PerformancePoor
	}
}

type CriterionScore struct {
	Name          string  `json:"name"`
	PointsEarned  float64 `json:"points_earned"`
	MaxPoints     float64 `json:"max_points"`
	Justification string  `json:"justification,omitempty"`
	SegmentRefs   []int   `json:"segment_refs,omitempty"`
}

type Insight struct {
	Type              string `json:"type"`
	Description       string `json:"description"`
	SegmentRef        int    `json:"segment_ref,omitempty"`
	SuggestedResponse string `json:"suggested_response,omitempty"`
}

// EvaluationResult is one analysis run. Immutable once stored; re-analysis
// appends a new result rather than rewriting scores.
type EvaluationResult struct {
	ID               string              `json:"evaluation_id"`
	CallID           string              `json:"call_id"`
	JobID            string              `json:"job_id"`
	OverallScore     float64             `json:"overall_score"`
	PointsEarned     float64             `json:"points_earned"`
	PointsPossible   float64             `json:"points_possible"`
	Category         PerformanceCategory `json:"performance_category"`
	Criteria         []CriterionScore    `json:"criteria"`
	Insights         []Insight           `json:"insights"`
	CustomerBehavior string              `json:"customer_behavior,omitempty"`
	SpeakerMapping   map[string]string   `json:"speaker_mapping,omitempty"`
	Sentiment        SentimentSummary    `json:"sentiment"`
	HeuristicScore   float64             `json:"heuristic_score"`
	RawModelText     string              `json:"-"`
	ParseOK          bool                `json:"parse_ok"`
	ErrorNote        string              `json:"error_note,omitempty"`
	ErrorKind        ErrorKind           `json:"error_kind,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// SumEarned returns the per-criterion point totals.
func (e *EvaluationResult) SumEarned() (earned, possible float64) {
	for _, c := range e.Criteria {
		earned += c.PointsEarned
		possible += c.MaxPoints
	}
	return earned, possible
}

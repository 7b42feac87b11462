// Package scoring derives a deterministic quality score from objective call
// signals. It is a fallback and cross-check for the model's rubric score,
// never the sole authority when a model score is present.
package scoring

import "call-qa-go/internal/types"

// CallMetrics are the objective signals fed to both the heuristic score and
// the evaluation prompt.
type CallMetrics struct {
	Confidence       float64         `json:"confidence"`
	Sentiment        types.Sentiment `json:"overall_sentiment"`
	WordsPerMinute   float64         `json:"words_per_minute"`
	AgentTalkTime    float64         `json:"agent_talk_seconds"`
	CustomerTalkTime float64         `json:"customer_talk_seconds"`
}

// MetricsFor computes objective metrics from a completed transcript.
func MetricsFor(t types.Transcript, overall types.Sentiment) CallMetrics {
	m := CallMetrics{Confidence: t.Confidence, Sentiment: overall}
	if t.Duration > 0 {
		m.WordsPerMinute = float64(t.WordCount) / (t.Duration / 60)
	}
	for _, s := range t.Segments {
		switch s.Role {
		case types.RoleAgent:
			m.AgentTalkTime += s.Duration()
		case types.RoleCustomer:
			m.CustomerTalkTime += s.Duration()
		}
	}
	return m
}

// HeuristicScore maps metrics to a 0-100 score:
// base 50, up to 20 for confidence, a flat sentiment bonus (15/10/5),
// up to 10 for speaking rate in the optimal band, up to 5 for talk balance.
func HeuristicScore(m CallMetrics) float64 {
	score := 50.0

	conf := m.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	score += conf * 20

	switch m.Sentiment {
	case types.SentimentPositive:
		score += 15
	case types.SentimentNegative:
		score += 5
	default:
		score += 10
	}

	switch {
	case m.WordsPerMinute >= 120 && m.WordsPerMinute <= 180:
		score += 10
	case m.WordsPerMinute >= 100 && m.WordsPerMinute <= 200:
		score += 5
	}

	score += talkBalance(m.AgentTalkTime, m.CustomerTalkTime) * 5

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// talkBalance is min/max of the two talk times, 0 when either side is silent.
func talkBalance(agent, customer float64) float64 {
	if agent <= 0 || customer <= 0 {
		return 0
	}
	if agent < customer {
		return agent / customer
	}
	return customer / agent
}

package speech

import (
	"strings"

	"call-qa-go/internal/types"
)

// transcriptWire is the provider's transcript resource. All optionality in
// the vendor payload is absorbed here, in one deserialization step; the rest
// of the pipeline only ever sees the strict internal types.
type transcriptWire struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Language   string          `json:"language_code,omitempty"`
	AudioMs    int64           `json:"audio_duration_ms"`
	Words      []wireWord      `json:"words,omitempty"`
	Utterances []wireUtterance `json:"utterances,omitempty"`
	Sentiments []wireSentiment `json:"sentiment_analysis_results,omitempty"`
}

type wireWord struct {
	Text string `json:"text"`
}

type wireUtterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartMs    int64   `json:"start"`
	EndMs      int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

type wireSentiment struct {
	Text      string `json:"text"`
	StartMs   int64  `json:"start"`
	EndMs     int64  `json:"end"`
	Sentiment string `json:"sentiment"`
}

func (w *transcriptWire) toTranscript() types.Transcript {
	t := types.Transcript{
		Text:       w.Text,
		Confidence: w.Confidence,
		Language:   w.Language,
		Duration:   float64(w.AudioMs) / 1000,
	}
	if len(w.Words) > 0 {
		t.WordCount = len(w.Words)
	} else {
		t.WordCount = len(strings.Fields(w.Text))
	}

	sentimentAt := indexSentiments(w.Sentiments)
	for _, u := range w.Utterances {
		seg := types.Segment{
			Speaker:    u.Speaker,
			Text:       u.Text,
			Start:      float64(u.StartMs) / 1000,
			End:        float64(u.EndMs) / 1000,
			Confidence: u.Confidence,
			Sentiment:  sentimentAt(u.StartMs, u.EndMs),
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		t.Segments = append(t.Segments, seg)
	}
	return t
}

// indexSentiments returns a lookup assigning each utterance the sentiment
// span that overlaps it most. Providers report sentiment per sentence, which
// rarely lines up exactly with utterance boundaries.
func indexSentiments(spans []wireSentiment) func(startMs, endMs int64) types.Sentiment {
	return func(startMs, endMs int64) types.Sentiment {
		var best types.Sentiment
		var bestOverlap int64
		for _, sp := range spans {
			lo, hi := max64(sp.StartMs, startMs), min64(sp.EndMs, endMs)
			if hi-lo > bestOverlap {
				bestOverlap = hi - lo
				best = mapSentiment(sp.Sentiment)
			}
		}
		return best
	}
}

func mapSentiment(s string) types.Sentiment {
	switch strings.ToLower(s) {
	case "positive":
		return types.SentimentPositive
	case "negative":
		return types.SentimentNegative
	case "neutral":
		return types.SentimentNeutral
	default:
		return ""
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

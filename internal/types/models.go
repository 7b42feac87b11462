package types

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type SpeakerRole string

const (
	RoleAgent    SpeakerRole = "Agent"
	RoleCustomer SpeakerRole = "Customer"
)

// Segment is one diarized utterance. Role stays empty until the normalizer
// resolves it; consumers must treat an empty role as unknown.
type Segment struct {
	Speaker     string      `json:"speaker"`
	Role        SpeakerRole `json:"role,omitempty"`
	Text        string      `json:"text"`
	Start       float64     `json:"start"`
	End         float64     `json:"end"`
	Sentiment   Sentiment   `json:"sentiment,omitempty"`
	Confidence  float64     `json:"confidence"`
	Overlap     bool        `json:"overlap,omitempty"`
	OverlapFrom SpeakerRole `json:"overlap_from,omitempty"`
}

// Duration returns end-start, or 0 for malformed provider timestamps.
func (s Segment) Duration() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Transcript is the provider's completed payload in canonical form.
type Transcript struct {
	Text       string    `json:"text"`
	Segments   []Segment `json:"segments"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language,omitempty"`
	WordCount  int       `json:"word_count"`
	Duration   float64   `json:"duration_seconds"`
}

type TranscriptionJob struct {
	ID            string    `json:"job_id"`
	CallID        string    `json:"call_id"`
	ProviderJobID string    `json:"provider_job_id,omitempty"`
	Status        JobStatus `json:"status"`
	Transcript    string    `json:"transcript,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	Language      string    `json:"language,omitempty"`
	WordCount     int       `json:"word_count,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SentimentSummary is derived from segment sentiments and recomputed whenever
// segments change.
type SentimentSummary struct {
	Overall  Sentiment `json:"overall"`
	Agent    Sentiment `json:"agent"`
	Customer Sentiment `json:"customer"`
}

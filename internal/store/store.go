// Package store holds the persistence collaborators for jobs, segments,
// evaluations and raw audio. The pipeline only depends on the interfaces;
// the in-memory implementations back local deployments and tests.
package store

import (
	"io"

	"call-qa-go/internal/types"
)

// Persistence is the record store for the transcription pipeline.
// SetSegmentsIfEmpty is the atomic check-and-set that reconciles the webhook
// and polling completion paths.
type Persistence interface {
	CreateJob(job *types.TranscriptionJob) error
	GetJob(jobID string) (*types.TranscriptionJob, error)
	GetJobByProviderID(providerID string) (*types.TranscriptionJob, error)
	GetJobByCallID(callID string) (*types.TranscriptionJob, error)
	UpdateJob(job *types.TranscriptionJob) error
	ListJobsByStatus(status types.JobStatus) ([]*types.TranscriptionJob, error)

	// SetSegmentsIfEmpty stores segments only when none exist yet and
	// reports whether this call won the race.
	SetSegmentsIfEmpty(jobID string, segments []types.Segment) (bool, error)
	Segments(jobID string) ([]types.Segment, error)
	UpdateSegments(jobID string, segments []types.Segment) error

	SaveEvaluation(ev *types.EvaluationResult) error
	LatestEvaluation(callID string) (*types.EvaluationResult, error)

	SaveSentiment(jobID string, summary types.SentimentSummary) error
	Sentiment(jobID string) (types.SentimentSummary, bool, error)
}

// AudioStore keeps raw recordings. The orchestrator reads each recording
// once, when handing bytes to the provider upload.
type AudioStore interface {
	Store(callID string, audio io.Reader) (handle string, err error)
	Read(handle string) (io.ReadCloser, error)
	Delete(handle string) error
}

package orchestrator

import (
	"call-qa-go/internal/types"
)

// JobStatusView is the caller-facing snapshot of a job. A completed job with
// a failed evaluation still carries its transcript; evaluation failure is
// never surfaced as a job error.
type JobStatusView struct {
	JobID      string                  `json:"job_id"`
	CallID     string                  `json:"call_id"`
	Status     types.JobStatus         `json:"status"`
	Transcript string                  `json:"transcript,omitempty"`
	Segments   []types.Segment         `json:"segments,omitempty"`
	Sentiment  *types.SentimentSummary `json:"sentiment,omitempty"`
	Error      string                  `json:"error,omitempty"`
	ErrorKind  types.ErrorKind         `json:"error_kind,omitempty"`
}

// GetJobStatus returns the current state of a job, with the transcript and
// segments once completed.
func (o *Orchestrator) GetJobStatus(jobID string) (*JobStatusView, error) {
	job, err := o.db.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	view := &JobStatusView{
		JobID:     job.ID,
		CallID:    job.CallID,
		Status:    job.Status,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}
	if job.Status == types.StatusCompleted {
		view.Transcript = job.Transcript
		segments, err := o.db.Segments(job.ID)
		if err != nil {
			return nil, err
		}
		view.Segments = segments
		if summary, ok, err := o.db.Sentiment(job.ID); err == nil && ok {
			view.Sentiment = &summary
		}
	}
	return view, nil
}

// GetEvaluation returns the most recent evaluation for a call, or nil when
// none has been recorded yet.
func (o *Orchestrator) GetEvaluation(callID string) (*types.EvaluationResult, error) {
	return o.db.LatestEvaluation(callID)
}

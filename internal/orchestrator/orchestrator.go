// Package orchestrator owns the transcription job lifecycle: it drives the
// speech provider to completion, reconciles the webhook and polling
// completion paths idempotently, and turns completed transcripts into
// structured evaluations.
package orchestrator

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"call-qa-go/internal/criteria"
	"call-qa-go/internal/logger"
	"call-qa-go/internal/metrics"
	"call-qa-go/internal/speech"
	"call-qa-go/internal/store"
	"call-qa-go/internal/types"
)

// SpeechProvider is the async transcription service boundary (see speech.Client).
type SpeechProvider interface {
	Upload(ctx context.Context, audio io.Reader) (string, error)
	Start(ctx context.Context, uploadURL, webhookURL string) (string, error)
	Status(ctx context.Context, providerID string) (speech.JobStatus, error)
	Result(ctx context.Context, providerID string) (types.Transcript, error)
}

// ModelClient is the evaluation language-model boundary (see evalmodel.Client).
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EventSink receives lifecycle notifications. Failures are logged, never
// propagated into job state.
type EventSink interface {
	TranscriptionCompleted(ctx context.Context, job *types.TranscriptionJob) error
	EvaluationRecorded(ctx context.Context, ev *types.EvaluationResult) error
}

// CriteriaSource resolves the rubric for a criteria set id, falling back to
// the system defaults (see criteria.Provider).
type CriteriaSource interface {
	For(setID string) criteria.Set
}

type Config struct {
	WebhookURL   string        // passed to the provider; empty disables the webhook fast path
	PollInterval time.Duration // delay between polling scans
	MaxWait      time.Duration // total wait before a processing job times out
}

type Orchestrator struct {
	provider SpeechProvider
	model    ModelClient
	db       store.Persistence
	audio    store.AudioStore
	criteria CriteriaSource
	events   EventSink
	cfg      Config

	// inflight serializes finalize per job so a webhook and a poll arriving
	// together trigger exactly one provider fetch and one evaluation.
	inflightMu sync.Mutex
	inflight   map[string]*sync.Mutex
}

func New(provider SpeechProvider, model ModelClient, db store.Persistence, audio store.AudioStore,
	criteria CriteriaSource, events EventSink, cfg Config) *Orchestrator {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 600 * time.Second
	}
	return &Orchestrator{
		provider: provider,
		model:    model,
		db:       db,
		audio:    audio,
		criteria: criteria,
		events:   events,
		cfg:      cfg,
		inflight: make(map[string]*sync.Mutex),
	}
}

// Submit uploads the stored recording and starts a provider job. A failure
// to obtain a provider job id marks the job as errored immediately; no retry
// loop starts for it.
func (o *Orchestrator) Submit(ctx context.Context, callID, audioHandle string) (*types.TranscriptionJob, error) {
	log := logger.New().WithField("component", "orchestrator").WithField("call_id", callID)

	now := time.Now().UTC()
	job := &types.TranscriptionJob{
		ID:        uuid.New().String(),
		CallID:    callID,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.db.CreateJob(job); err != nil {
		return nil, err
	}

	audio, err := o.audio.Read(audioHandle)
	if err != nil {
		uploadErr := types.NewPipelineError(types.KindUpload, types.ErrUploadFailed, "read stored audio: %v", err)
		o.failJob(job, uploadErr)
		return job, uploadErr
	}
	defer audio.Close()

	uploadURL, err := o.provider.Upload(ctx, audio)
	if err != nil {
		o.failJob(job, err)
		return job, err
	}

	providerID, err := o.provider.Start(ctx, uploadURL, o.cfg.WebhookURL)
	if err != nil {
		o.failJob(job, err)
		return job, err
	}

	job.ProviderJobID = providerID
	job.Status = types.StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := o.db.UpdateJob(job); err != nil {
		return nil, err
	}

	metrics.JobsSubmitted.Inc()
	log.WithField("job_id", job.ID).WithField("provider_id", providerID).Info("transcription job started")
	return job, nil
}

// Advance is one polling step for a processing job. Transient status-read
// failures leave the job untouched; the next scan retries it.
func (o *Orchestrator) Advance(ctx context.Context, job *types.TranscriptionJob) error {
	if job.Status != types.StatusProcessing {
		return nil
	}
	log := logger.New().WithJob(job.ID, job.CallID)

	if o.cfg.MaxWait > 0 && time.Since(job.CreatedAt) > o.cfg.MaxWait {
		timeoutErr := types.NewPipelineError(types.KindPollTimeout, types.ErrPollTimeout,
			"no terminal provider status within %s", o.cfg.MaxWait)
		o.failJob(job, timeoutErr)
		return timeoutErr
	}

	status, err := o.provider.Status(ctx, job.ProviderJobID)
	if err != nil {
		log.WithError(err).Warn("status poll failed, will retry on next scan")
		return nil
	}

	switch status.State {
	case speech.StateQueued, speech.StateProcessing:
		return nil
	case speech.StateError:
		provErr := types.NewPipelineError(types.KindProviderFailed, types.ErrProviderReported, "%s", status.Error)
		o.failJob(job, provErr)
		return provErr
	case speech.StateCompleted:
		_, err := o.Finalize(ctx, job)
		return err
	}
	return nil
}

// RunPoller is the single long-lived fallback loop: it periodically scans all
// processing jobs and advances each. One cooperative loop, not one goroutine
// per job.
func (o *Orchestrator) RunPoller(ctx context.Context) {
	log := logger.New().WithField("component", "poller")
	log.WithField("interval", o.cfg.PollInterval.String()).Info("polling loop started")

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("polling loop stopped")
			return
		case <-ticker.C:
			metrics.PollTicks.Inc()
			jobs, err := o.db.ListJobsByStatus(types.StatusProcessing)
			if err != nil {
				log.WithError(err).Error("listing processing jobs failed")
				continue
			}
			for _, job := range jobs {
				if err := o.Advance(ctx, job); err != nil {
					logger.New().WithJob(job.ID, job.CallID).WithError(err).Warn("job advanced to error")
				}
			}
		}
	}
}

// HandleWebhook is the fast path: the provider notifies completion and we
// finalize directly, converging with polling on the same idempotent path.
func (o *Orchestrator) HandleWebhook(ctx context.Context, providerJobID, status, errMsg string) error {
	job, err := o.db.GetJobByProviderID(providerJobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	switch speech.JobState(status) {
	case speech.StateError:
		provErr := types.NewPipelineError(types.KindProviderFailed, types.ErrProviderReported, "%s", errMsg)
		o.failJob(job, provErr)
		return nil
	case speech.StateCompleted:
		_, err := o.Finalize(ctx, job)
		return err
	default:
		return nil
	}
}

func (o *Orchestrator) failJob(job *types.TranscriptionJob, err error) {
	job.Status = types.StatusError
	job.Error = err.Error()
	job.ErrorKind = types.KindOf(err)
	job.UpdatedAt = time.Now().UTC()
	if dbErr := o.db.UpdateJob(job); dbErr != nil {
		logger.New().WithJob(job.ID, job.CallID).WithError(dbErr).Error("persisting job failure failed")
	}
	metrics.JobsFailed.WithLabelValues(string(job.ErrorKind)).Inc()
	metrics.TranscriptionDuration.Observe(time.Since(job.CreatedAt).Seconds())
	o.forgetJob(job.ID)
	logger.New().WithJob(job.ID, job.CallID).WithError(err).Warn("job failed")
}

func (o *Orchestrator) lockJob(jobID string) func() {
	o.inflightMu.Lock()
	mu, ok := o.inflight[jobID]
	if !ok {
		mu = &sync.Mutex{}
		o.inflight[jobID] = mu
	}
	o.inflightMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// forgetJob drops a terminal job's finalize mutex so the inflight map does
// not grow without bound. Late callers re-create an entry and then
// short-circuit on the persisted segments.
func (o *Orchestrator) forgetJob(jobID string) {
	o.inflightMu.Lock()
	delete(o.inflight, jobID)
	o.inflightMu.Unlock()
}

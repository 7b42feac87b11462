package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-qa-go/internal/criteria"
	"call-qa-go/internal/speech"
	"call-qa-go/internal/store"
	"call-qa-go/internal/types"
)

type fakeModel struct {
	reply string
	err   error
	calls int32
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.reply, f.err
}

const modelReply = `{
  "overall_score": 82,
  "criteria": [
    {"name": "greeting", "points_earned": 12, "max_points": 15, "justification": "polite open", "segment_refs": [0]},
    {"name": "closing", "points_earned": 10, "max_points": 15, "justification": "rushed", "segment_refs": [3]}
  ],
  "insights": [{"type": "missed_opportunity", "description": "no recap", "segment_ref": 2, "suggested_response": "recap the fix"}],
  "speaker_mapping": {"A": "Agent", "B": "Customer"},
  "agent_label": "A",
  "customer_behavior": "cooperative"
}`

func sampleTranscript() types.Transcript {
	return types.Transcript{
		Text:       "hello thanks for calling goodbye",
		Confidence: 0.9,
		WordCount:  300,
		Duration:   120,
		Segments: []types.Segment{
			{Speaker: "A", Text: "hello", Start: 0, End: 30, Sentiment: types.SentimentNeutral, Confidence: 0.9},
			{Speaker: "B", Text: "hi there", Start: 30, End: 60, Sentiment: types.SentimentPositive, Confidence: 0.9},
			{Speaker: "A", Text: "happy to help", Start: 60, End: 90, Sentiment: types.SentimentPositive, Confidence: 0.9},
			{Speaker: "B", Text: "thanks", Start: 90, End: 120, Sentiment: types.SentimentPositive, Confidence: 0.9},
		},
	}
}

type harness struct {
	orch     *Orchestrator
	provider *fakeSpeech
	model    *fakeModel
	db       *store.Memory
	audio    *store.MemoryAudio
}

// fakeSpeech implements SpeechProvider.
type fakeSpeech struct {
	mu          sync.Mutex
	uploadErr   error
	startErr    error
	status      speech.JobStatus
	statusErr   error
	result      types.Transcript
	resultErr   error
	resultCalls int32
}

func (f *fakeSpeech) Upload(ctx context.Context, audio io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://upload.example/blob", nil
}

func (f *fakeSpeech) Start(ctx context.Context, uploadURL, webhookURL string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "prov-123", nil
}

func (f *fakeSpeech) Status(ctx context.Context, providerID string) (speech.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeSpeech) Result(ctx context.Context, providerID string) (types.Transcript, error) {
	atomic.AddInt32(&f.resultCalls, 1)
	if f.resultErr != nil {
		return types.Transcript{}, f.resultErr
	}
	return f.result, nil
}

func (f *fakeSpeech) setStatus(s speech.JobState) {
	f.mu.Lock()
	f.status = speech.JobStatus{State: s}
	f.mu.Unlock()
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	provider := &fakeSpeech{status: speech.JobStatus{State: speech.StateProcessing}, result: sampleTranscript()}
	model := &fakeModel{reply: modelReply}
	db := store.NewMemory()
	audio := store.NewMemoryAudio()
	orch := New(provider, model, db, audio, criteria.NewProvider(), nil, cfg)
	return &harness{orch: orch, provider: provider, model: model, db: db, audio: audio}
}

func (h *harness) submit(t *testing.T, callID string) *types.TranscriptionJob {
	t.Helper()
	handle, err := h.audio.Store(callID, bytes.NewReader([]byte("RIFFdata")))
	require.NoError(t, err)
	job, err := h.orch.Submit(context.Background(), callID, handle)
	require.NoError(t, err)
	return job
}

func TestSubmit_StartsProviderJob(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-1")

	assert.Equal(t, types.StatusProcessing, job.Status)
	assert.Equal(t, "prov-123", job.ProviderJobID)

	stored, err := h.db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, stored.Status)
}

func TestSubmit_UploadFailureMarksJobErrored(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.uploadErr = types.NewPipelineError(types.KindUpload, types.ErrUploadFailed, "connection refused")

	handle, err := h.audio.Store("call-2", bytes.NewReader([]byte("RIFFdata")))
	require.NoError(t, err)
	job, err := h.orch.Submit(context.Background(), "call-2", handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUploadFailed))

	stored, getErr := h.db.GetJob(job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, types.StatusError, stored.Status)
	assert.Equal(t, types.KindUpload, stored.ErrorKind)
	assert.NotEmpty(t, stored.Error)
}

func TestAdvance_QueuedDoesNothing(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-3")
	h.provider.setStatus(speech.StateQueued)

	require.NoError(t, h.orch.Advance(context.Background(), job))
	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusProcessing, stored.Status)
}

func TestAdvance_CompletedRunsFullPipeline(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-4")
	h.provider.setStatus(speech.StateCompleted)

	require.NoError(t, h.orch.Advance(context.Background(), job))

	stored, err := h.db.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, stored.Status)
	assert.Equal(t, "hello thanks for calling goodbye", stored.Transcript)

	segs, err := h.db.Segments(job.ID)
	require.NoError(t, err)
	require.Len(t, segs, 4)
	assert.Equal(t, types.RoleAgent, segs[0].Role)
	assert.Equal(t, types.RoleCustomer, segs[1].Role)

	ev, err := h.db.LatestEvaluation("call-4")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.ParseOK)
	assert.Equal(t, 82.0, ev.OverallScore)
	assert.Equal(t, types.PerformanceGood, ev.Category)
	assert.Equal(t, 22.0, ev.PointsEarned)
	assert.Equal(t, 30.0, ev.PointsPossible)
	assert.Equal(t, "cooperative", ev.CustomerBehavior)
	assert.NotZero(t, ev.HeuristicScore)
}

func TestAdvance_ProviderErrorMarksJob(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-5")
	h.provider.mu.Lock()
	h.provider.status = speech.JobStatus{State: speech.StateError, Error: "audio too short"}
	h.provider.mu.Unlock()

	err := h.orch.Advance(context.Background(), job)
	require.Error(t, err)

	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusError, stored.Status)
	assert.Equal(t, types.KindProviderFailed, stored.ErrorKind)
	assert.Contains(t, stored.Error, "audio too short")
}

func TestAdvance_TimeoutStopsPolling(t *testing.T) {
	h := newHarness(t, Config{MaxWait: 50 * time.Millisecond})
	job := h.submit(t, "call-6")

	job.CreatedAt = time.Now().Add(-time.Second)
	require.NoError(t, h.db.UpdateJob(job))

	err := h.orch.Advance(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPollTimeout))

	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusError, stored.Status)
	assert.Equal(t, types.KindPollTimeout, stored.ErrorKind)

	// a timed-out job leaves the processing set, so the poller drops it
	processing, err := h.db.ListJobsByStatus(types.StatusProcessing)
	require.NoError(t, err)
	for _, j := range processing {
		assert.NotEqual(t, job.ID, j.ID)
	}
}

func TestFinalize_IdempotentUnderRace(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-7")
	h.provider.setStatus(speech.StateCompleted)

	// webhook and poll arriving together
	copyA, err := h.db.GetJob(job.ID)
	require.NoError(t, err)
	copyB, err := h.db.GetJob(job.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, j := range []*types.TranscriptionJob{copyA, copyB} {
		wg.Add(1)
		go func(j *types.TranscriptionJob) {
			defer wg.Done()
			_, _ = h.orch.Finalize(context.Background(), j)
		}(j)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&h.provider.resultCalls), "transcript fetched once")
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.model.calls), "evaluated once")

	segs, err := h.db.Segments(job.ID)
	require.NoError(t, err)
	assert.Len(t, segs, 4)
}

func TestFinalize_SecondCallReturnsExisting(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-8")
	h.provider.setStatus(speech.StateCompleted)

	first, err := h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, first)

	fresh, _ := h.db.GetJob(job.ID)
	second, err := h.orch.Finalize(context.Background(), fresh)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.model.calls))
}

func (h *harness) jobLockHeld(jobID string) bool {
	h.orch.inflightMu.Lock()
	defer h.orch.inflightMu.Unlock()
	_, ok := h.orch.inflight[jobID]
	return ok
}

func TestFinalize_ReleasesPerJobLock(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-17")
	h.provider.setStatus(speech.StateCompleted)

	stale, err := h.db.GetJob(job.ID)
	require.NoError(t, err)

	_, err = h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, h.jobLockHeld(job.ID), "terminal job must not pin its finalize mutex")

	// a replay with a stale processing copy must not leave an entry behind
	_, err = h.orch.Finalize(context.Background(), stale)
	require.NoError(t, err)
	assert.False(t, h.jobLockHeld(job.ID))
}

func TestFailedJobReleasesPerJobLock(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-18")
	h.provider.mu.Lock()
	h.provider.status = speech.JobStatus{State: speech.StateError, Error: "boom"}
	h.provider.mu.Unlock()

	require.Error(t, h.orch.Advance(context.Background(), job))
	assert.False(t, h.jobLockHeld(job.ID))
}

func TestHandleWebhook_Completed(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-9")
	h.provider.setStatus(speech.StateCompleted)

	require.NoError(t, h.orch.HandleWebhook(context.Background(), "prov-123", "completed", ""))

	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusCompleted, stored.Status)
}

func TestHandleWebhook_UnknownProviderJob(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.orch.HandleWebhook(context.Background(), "prov-nope", "completed", "")
	assert.True(t, errors.Is(err, types.ErrJobNotFound))
}

func TestHandleWebhook_TerminalJobIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-10")
	h.provider.setStatus(speech.StateCompleted)
	require.NoError(t, h.orch.HandleWebhook(context.Background(), "prov-123", "completed", ""))

	// replayed webhook after completion is a no-op
	require.NoError(t, h.orch.HandleWebhook(context.Background(), "prov-123", "completed", ""))
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.model.calls))
	_ = job
}

func TestEvaluationFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.err = fmt.Errorf("gateway exploded")
	job := h.submit(t, "call-11")
	h.provider.setStatus(speech.StateCompleted)

	ev, err := h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, ev)

	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusCompleted, stored.Status, "transcript availability never depends on evaluation")

	assert.False(t, ev.ParseOK)
	assert.Contains(t, ev.ErrorNote, "gateway exploded")
	assert.Equal(t, types.KindExternal, ev.ErrorKind)
	assert.Equal(t, ev.HeuristicScore, ev.OverallScore)
}

func TestUnparsableModelReplyDegrades(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.reply = "I would rate this call quite highly, maybe a B+."
	job := h.submit(t, "call-12")
	h.provider.setStatus(speech.StateCompleted)

	ev, err := h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.False(t, ev.ParseOK)
	assert.NotEmpty(t, ev.ErrorNote)
	assert.Equal(t, types.KindUnparsable, ev.ErrorKind)

	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusCompleted, stored.Status)
}

func TestTriggerReanalysis_AppendsNewResult(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-13")
	h.provider.setStatus(speech.StateCompleted)

	first, err := h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)

	second, err := h.orch.TriggerReanalysis(context.Background(), "call-13", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	latest, err := h.orch.GetEvaluation("call-13")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	// job state untouched by re-analysis
	stored, _ := h.db.GetJob(job.ID)
	assert.Equal(t, types.StatusCompleted, stored.Status)
}

func TestTriggerReanalysis_RequiresCompletedJob(t *testing.T) {
	h := newHarness(t, Config{})
	h.submit(t, "call-14")
	_, err := h.orch.TriggerReanalysis(context.Background(), "call-14", "")
	assert.True(t, errors.Is(err, types.ErrNotCompleted))
}

func TestGetJobStatus_Views(t *testing.T) {
	h := newHarness(t, Config{})
	job := h.submit(t, "call-15")

	view, err := h.orch.GetJobStatus(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, view.Status)
	assert.Empty(t, view.Transcript)

	h.provider.setStatus(speech.StateCompleted)
	_, err = h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)

	view, err = h.orch.GetJobStatus(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, view.Status)
	assert.NotEmpty(t, view.Transcript)
	assert.Len(t, view.Segments, 4)
	require.NotNil(t, view.Sentiment)

	_, err = h.orch.GetJobStatus("missing")
	assert.True(t, errors.Is(err, types.ErrJobNotFound))
}

func TestModelScoreDisagreementKeepsModelScore(t *testing.T) {
	h := newHarness(t, Config{})
	// criteria sum to 10/20 = 50% but the model says 95
	h.model.reply = `{
	  "overall_score": 95,
	  "criteria": [{"name": "greeting", "points_earned": 10, "max_points": 20, "justification": "", "segment_refs": []}],
	  "insights": [],
	  "speaker_mapping": {"A": "Agent", "B": "Customer"},
	  "agent_label": "A",
	  "customer_behavior": "calm"
	}`
	job := h.submit(t, "call-16")
	h.provider.setStatus(speech.StateCompleted)

	ev, err := h.orch.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 95.0, ev.OverallScore, "explicit model score is authoritative")
	assert.Equal(t, types.PerformanceExcellent, ev.Category)
}

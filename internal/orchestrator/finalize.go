package orchestrator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-qa-go/internal/aggregator"
	"call-qa-go/internal/evalmodel"
	"call-qa-go/internal/extractor"
	"call-qa-go/internal/logger"
	"call-qa-go/internal/metrics"
	"call-qa-go/internal/scoring"
	"call-qa-go/internal/speaker"
	"call-qa-go/internal/types"
)

// Finalize completes a job whose provider work is done: it fetches the
// transcript exactly once, persists segments, and runs the evaluation stage.
// Safe to call from both the webhook handler and the polling loop; the
// second caller is a no-op that returns the existing result.
//
// The evaluation sub-stage never fails the job. Transcript availability must
// not depend on the model behaving.
func (o *Orchestrator) Finalize(ctx context.Context, job *types.TranscriptionJob) (*types.EvaluationResult, error) {
	unlock := o.lockJob(job.ID)
	settled := false
	defer func() {
		unlock()
		if settled || job.Status.Terminal() {
			o.forgetJob(job.ID)
		}
	}()

	log := logger.New().WithJob(job.ID, job.CallID).WithField("component", "orchestrator")

	// Idempotency guard: segments already persisted means another path got
	// here first.
	existing, err := o.db.Segments(job.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		settled = true
		log.Debug("finalize already done, returning existing evaluation")
		return o.db.LatestEvaluation(job.CallID)
	}

	transcript, err := o.provider.Result(ctx, job.ProviderJobID)
	if err != nil {
		// Transient fetch failure: leave the job processing so the poller
		// tries again, unless it has already timed out.
		log.WithError(err).Warn("transcript fetch failed")
		return nil, err
	}

	sort.SliceStable(transcript.Segments, func(i, j int) bool {
		return transcript.Segments[i].Start < transcript.Segments[j].Start
	})

	won, err := o.db.SetSegmentsIfEmpty(job.ID, transcript.Segments)
	if err != nil {
		return nil, err
	}
	if !won {
		settled = true
		return o.db.LatestEvaluation(job.CallID)
	}

	job.Status = types.StatusCompleted
	job.Transcript = transcript.Text
	job.Confidence = transcript.Confidence
	job.Language = transcript.Language
	job.WordCount = transcript.WordCount
	job.Duration = transcript.Duration
	job.UpdatedAt = time.Now().UTC()
	if err := o.db.UpdateJob(job); err != nil {
		return nil, err
	}

	metrics.JobsCompleted.Inc()
	metrics.TranscriptionDuration.Observe(time.Since(job.CreatedAt).Seconds())
	log.WithField("segments", len(transcript.Segments)).Info("transcription completed")

	if o.events != nil {
		if err := o.events.TranscriptionCompleted(ctx, job); err != nil {
			log.WithError(err).Warn("completion event publish failed")
		}
	}

	return o.evaluate(ctx, job, transcript, "")
}

// TriggerReanalysis runs the evaluation stage again for a completed job and
// appends a new result. Job state is untouched.
func (o *Orchestrator) TriggerReanalysis(ctx context.Context, callID, criteriaSetID string) (*types.EvaluationResult, error) {
	job, err := o.db.GetJobByCallID(callID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusCompleted {
		return nil, types.ErrNotCompleted
	}
	segments, err := o.db.Segments(job.ID)
	if err != nil {
		return nil, err
	}
	transcript := types.Transcript{
		Text:       job.Transcript,
		Segments:   segments,
		Confidence: job.Confidence,
		Language:   job.Language,
		WordCount:  job.WordCount,
		Duration:   job.Duration,
	}
	return o.evaluate(ctx, job, transcript, criteriaSetID)
}

// evaluate runs prompt -> model -> extraction -> normalization -> scoring and
// always records a result: a degraded one with ParseOK=false when the model
// call or extraction fails.
func (o *Orchestrator) evaluate(ctx context.Context, job *types.TranscriptionJob, transcript types.Transcript, criteriaSetID string) (*types.EvaluationResult, error) {
	log := logger.New().WithJob(job.ID, job.CallID).WithField("component", "evaluation")

	rubric := o.criteria.For(criteriaSetID)

	// Metrics for the prompt are computed before roles are known; talk-time
	// balance is refined below once the model's mapping is applied.
	promptMetrics := scoring.MetricsFor(transcript, aggregator.Rollup(transcript.Segments, nil))
	prompt := evalmodel.BuildPrompt(transcript, rubric, promptMetrics)

	result := extractor.Unparsable("", "model call failed")
	degradedKind := types.KindExternal
	raw, err := o.model.Complete(ctx, prompt)
	if err != nil {
		log.WithError(err).Warn("evaluation model call failed")
		result.Reason = err.Error()
	} else {
		result = extractor.Extract(raw)
		degradedKind = types.KindUnparsable
	}

	ev := &types.EvaluationResult{
		ID:           uuid.New().String(),
		CallID:       job.CallID,
		JobID:        job.ID,
		RawModelText: raw,
		ParseOK:      result.OK,
		CreatedAt:    time.Now().UTC(),
	}

	var mapping map[string]string
	if result.OK {
		mapping = result.Value.SpeakerMapping
	}

	// Role normalization is additive and ordering-dependent; segments are
	// already chronological here.
	segments := append([]types.Segment(nil), transcript.Segments...)
	speaker.Normalize(segments, mapping)
	if err := o.db.UpdateSegments(job.ID, segments); err != nil {
		return nil, err
	}
	transcript.Segments = segments

	summary := aggregator.Summarize(segments)
	if err := o.db.SaveSentiment(job.ID, summary); err != nil {
		return nil, err
	}
	ev.Sentiment = summary

	callMetrics := scoring.MetricsFor(transcript, summary.Overall)
	ev.HeuristicScore = scoring.HeuristicScore(callMetrics)

	if result.OK {
		o.applyModelScores(ev, result.Value, rubric.MaxTotal(), log)
	} else {
		// Degraded result: transcript stays available, heuristic score
		// stands in for the rubric score.
		ev.ErrorNote = result.Reason
		ev.ErrorKind = degradedKind
		ev.OverallScore = ev.HeuristicScore
		ev.Category = types.CategoryForScore(ev.OverallScore)
		metrics.EvaluationParseFailures.Inc()
		log.WithField("reason", result.Reason).Warn("recording degraded evaluation")
	}

	if err := o.db.SaveEvaluation(ev); err != nil {
		return nil, err
	}
	metrics.EvaluationsRecorded.Inc()

	if o.events != nil {
		if err := o.events.EvaluationRecorded(ctx, ev); err != nil {
			log.WithError(err).Warn("evaluation event publish failed")
		}
	}

	log.WithField("overall_score", ev.OverallScore).
		WithField("parse_ok", ev.ParseOK).
		Info("evaluation recorded")
	return ev, nil
}

// applyModelScores copies the model's parsed evaluation into the result. The
// model's explicit overall score is authoritative; a mismatch against the
// summed criteria is logged, not corrected.
func (o *Orchestrator) applyModelScores(ev *types.EvaluationResult, parsed extractor.ModelEvaluation, maxTotal float64, log *logrus.Entry) {
	for _, c := range parsed.Criteria {
		ev.Criteria = append(ev.Criteria, types.CriterionScore{
			Name:          c.Name,
			PointsEarned:  c.PointsEarned,
			MaxPoints:     c.MaxPoints,
			Justification: c.Justification,
			SegmentRefs:   c.SegmentRefs,
		})
	}
	for _, i := range parsed.Insights {
		ev.Insights = append(ev.Insights, types.Insight{
			Type:              i.Type,
			Description:       i.Description,
			SegmentRef:        i.SegmentRef,
			SuggestedResponse: i.SuggestedResponse,
		})
	}
	ev.SpeakerMapping = parsed.SpeakerMapping
	ev.CustomerBehavior = parsed.CustomerBehavior
	ev.OverallScore = parsed.OverallScore

	earned, possible := ev.SumEarned()
	ev.PointsEarned = earned
	if possible == 0 {
		possible = maxTotal
	}
	ev.PointsPossible = possible

	if possible > 0 {
		derived := earned / possible * 100
		if math.Abs(derived-parsed.OverallScore) > 1 {
			log.WithField("model_score", parsed.OverallScore).
				WithField("derived_score", derived).
				Warn("model overall score disagrees with summed criteria, keeping model score")
		}
	}
	ev.Category = types.CategoryForScore(ev.OverallScore)
}

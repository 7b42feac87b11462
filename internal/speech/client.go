// Package speech is the client for the asynchronous speech-recognition
// provider: upload audio, start a transcription job, poll its status, fetch
// the final diarized transcript with per-segment sentiment.
package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-qa-go/internal/logger"
	"call-qa-go/internal/types"
)

// uploadChunkSize bounds how much audio is buffered at once while streaming
// an upload; callers may hand over multi-hundred-megabyte recordings.
const uploadChunkSize = 5 * 1024 * 1024

type JobState string

const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateError      JobState = "error"
)

type JobStatus struct {
	State JobState
	Error string
}

type Config struct {
	BaseURL       string
	APIKey        string
	ShortTimeout  time.Duration // status checks, job starts
	RetryBudget   time.Duration // total backoff budget for idempotent reads
	RetryInterval time.Duration // initial delay between retried reads
}

type Client struct {
	cfg   Config
	short *http.Client // bounded, for short operations
	long  *http.Client // unbounded, uploads stream for as long as they need
}

func NewClient(cfg Config) *Client {
	if cfg.ShortTimeout == 0 {
		cfg.ShortTimeout = 30 * time.Second
	}
	if cfg.RetryBudget == 0 {
		cfg.RetryBudget = 20 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &Client{
		cfg:   cfg,
		short: &http.Client{Timeout: cfg.ShortTimeout},
		long:  &http.Client{},
	}
}

// Upload streams audio to the provider and returns the upload handle. The
// body is read through a bounded buffer so large files never sit in memory
// whole. Not retried: a duplicate upload is harmless but wasteful, and the
// caller treats any failure as terminal for the job.
func (c *Client) Upload(ctx context.Context, audio io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/upload",
		bufio.NewReaderSize(audio, uploadChunkSize))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.long.Do(req)
	if err != nil {
		return "", types.NewPipelineError(types.KindUpload, types.ErrUploadFailed, "upload request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", types.NewPipelineError(types.KindUpload, types.ErrUploadFailed,
			"upload rejected: status=%d body=%s", resp.StatusCode, truncate(body))
	}

	var parsed struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.UploadURL == "" {
		return "", types.NewPipelineError(types.KindUpload, types.ErrUploadFailed,
			"upload response malformed: %s", truncate(body))
	}
	return parsed.UploadURL, nil
}

// Start submits a transcription job for an uploaded recording. Never retried:
// a blind retry could create a duplicate provider job.
func (c *Client) Start(ctx context.Context, uploadURL, webhookURL string) (string, error) {
	payload := map[string]any{
		"audio_url":          uploadURL,
		"speaker_labels":     true,
		"sentiment_analysis": true,
		"language_detection": true,
	}
	if webhookURL != "" {
		payload["webhook_url"] = webhookURL
	}
	data, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/transcript", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.short.Do(req)
	if err != nil {
		return "", types.NewPipelineError(types.KindUpload, types.ErrUploadFailed, "start request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", types.NewPipelineError(types.KindUpload, types.ErrUploadFailed,
			"start rejected: status=%d body=%s", resp.StatusCode, truncate(body))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.ID == "" {
		return "", types.NewPipelineError(types.KindUpload, types.ErrUploadFailed,
			"start response malformed: %s", truncate(body))
	}
	return parsed.ID, nil
}

// Status fetches the provider job state. Read-only, so transient failures are
// retried with exponential backoff inside a bounded budget.
func (c *Client) Status(ctx context.Context, providerID string) (JobStatus, error) {
	var wire transcriptWire
	if err := c.getTranscript(ctx, providerID, &wire); err != nil {
		return JobStatus{}, err
	}
	return JobStatus{State: mapState(wire.Status), Error: wire.Error}, nil
}

// Result fetches the completed transcript. Only valid once Status reports
// completed.
func (c *Client) Result(ctx context.Context, providerID string) (types.Transcript, error) {
	var wire transcriptWire
	if err := c.getTranscript(ctx, providerID, &wire); err != nil {
		return types.Transcript{}, err
	}
	if mapState(wire.Status) != StateCompleted {
		return types.Transcript{}, types.NewPipelineError(types.KindExternal, types.ErrExternalService,
			"transcript %s not completed (status=%s)", providerID, wire.Status)
	}
	return wire.toTranscript(), nil
}

func (c *Client) getTranscript(ctx context.Context, providerID string, out *transcriptWire) error {
	log := logger.New().WithField("component", "speech-client").WithField("provider_id", providerID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	bo.MaxElapsedTime = c.cfg.RetryBudget

	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.BaseURL+"/v2/transcript/"+providerID, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.cfg.APIKey)

		resp, err := c.short.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("provider server error: status=%d", resp.StatusCode)
			return lastErr
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastErr = fmt.Errorf("provider rejected status read: status=%d body=%s", resp.StatusCode, truncate(body))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(body, out); err != nil {
			lastErr = fmt.Errorf("decode transcript response: %v", err)
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		log.WithError(lastErr).Warn("transcript read failed")
		if lastErr == nil {
			lastErr = err
		}
		return types.NewPipelineError(types.KindExternal, types.ErrExternalService, "%v", lastErr)
	}
	return nil
}

func mapState(s string) JobState {
	switch strings.ToLower(s) {
	case "queued", "submitted":
		return StateQueued
	case "processing", "in_progress":
		return StateProcessing
	case "completed", "success":
		return StateCompleted
	default:
		return StateError
	}
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

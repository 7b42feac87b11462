// Package evalmodel talks to the LLM gateway that scores calls against the
// rubric. It returns the model's raw text; coercion into the structured
// schema is the extractor's job.
package evalmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-qa-go/internal/logger"
)

type Config struct {
	GatewayURL  string
	APIKey      string
	Model       string
	HTTPTimeout time.Duration
	RetryBudget time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 25 * time.Second
	}
	if cfg.RetryBudget == 0 {
		cfg.RetryBudget = 45 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.HTTPTimeout}}
}

// Complete sends the prompt and returns the model's raw reply text.
// Set USE_MOCK_LLM=true for offline runs.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if os.Getenv("USE_MOCK_LLM") == "true" {
		return mockReply, nil
	}

	log := logger.New().WithField("component", "evalmodel")

	if c.cfg.GatewayURL == "" || c.cfg.APIKey == "" {
		return "", fmt.Errorf("llm gateway not configured")
	}
	reqBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, _ := json.Marshal(reqBody)

	var content string
	var lastErr error
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
		defer cancel()

		req, _ := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			lastErr = fmt.Errorf("llm gateway rejected request: status=%d", resp.StatusCode)
			return backoff.Permanent(lastErr)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm server error: status=%d", resp.StatusCode)
			return lastErr
		}

		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
			lastErr = fmt.Errorf("unexpected llm response shape")
			return lastErr
		}
		content = parsed.Choices[0].Message.Content
		lastErr = nil
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.RetryBudget
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return "", fmt.Errorf("llm completion failed: %w", lastErr)
	}
	return content, nil
}

// mockReply is a deterministic, schema-valid reply for offline demos.
const mockReply = "```json\n" + `{
  "overall_score": 78,
  "criteria": [
    {"name": "greeting", "points_earned": 12, "max_points": 15, "justification": "Agent opened politely but skipped the company name", "segment_refs": [0]},
    {"name": "discovery", "points_earned": 20, "max_points": 25, "justification": "Asked two clarifying questions", "segment_refs": [2, 4]},
    {"name": "solution_quality", "points_earned": 24, "max_points": 30, "justification": "Resolved the billing issue, no recap of steps", "segment_refs": [6]},
    {"name": "empathy", "points_earned": 10, "max_points": 15, "justification": "Acknowledged frustration once", "segment_refs": [3]},
    {"name": "closing", "points_earned": 12, "max_points": 15, "justification": "Offered further help, rushed goodbye", "segment_refs": [8]}
  ],
  "insights": [
    {"type": "missed_opportunity", "description": "No summary of the fix before closing", "segment_ref": 6, "suggested_response": "Let me recap what I changed on your account."}
  ],
  "speaker_mapping": {"A": "Agent", "B": "Customer"},
  "agent_label": "A",
  "customer_behavior": "initially frustrated, cooperative once the fee was explained"
}` + "\n```"

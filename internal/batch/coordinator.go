// Package batch submits many recordings through the orchestrator, either
// strictly serially or with a bounded worker pool. One item's failure never
// aborts the batch.
package batch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"call-qa-go/internal/logger"
	"call-qa-go/internal/metrics"
	"call-qa-go/internal/store"
	"call-qa-go/internal/types"
)

type Mode string

const (
	ModeSerial   Mode = "serial"
	ModeParallel Mode = "parallel"
)

const (
	maxWorkers = 10
	// serialDelay spaces serial submissions out so a large batch does not
	// trip the provider's rate limits.
	serialDelay = 500 * time.Millisecond
)

var allowedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".flac": true,
	".ogg": true, ".webm": true, ".aac": true, ".opus": true,
}

// Submitter starts one transcription job; satisfied by the orchestrator.
type Submitter interface {
	Submit(ctx context.Context, callID, audioHandle string) (*types.TranscriptionJob, error)
}

// Item is one recording plus its metadata.
type Item struct {
	CallID   string
	Filename string
	Audio    io.Reader
}

// ItemResult reports one item's outcome, in original input order.
type ItemResult struct {
	Index  int    `json:"index"`
	CallID string `json:"call_id"`
	JobID  string `json:"job_id,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type Result struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"successful"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

type Coordinator struct {
	submitter Submitter
	audio     store.AudioStore
}

func NewCoordinator(submitter Submitter, audio store.AudioStore) *Coordinator {
	return &Coordinator{submitter: submitter, audio: audio}
}

// Run processes every item and reports per-item outcomes. Submission only:
// transcription itself continues asynchronously after Run returns.
func (c *Coordinator) Run(ctx context.Context, items []Item, mode Mode, workers int) Result {
	log := logger.New().WithField("component", "batch").
		WithField("mode", string(mode)).
		WithField("items", len(items))
	log.Info("batch submission started")

	results := make([]ItemResult, len(items))

	if mode == ModeParallel {
		c.runParallel(ctx, items, results, clampWorkers(workers))
	} else {
		for i := range items {
			results[i] = c.submitOne(ctx, i, items[i])
			if i < len(items)-1 {
				time.Sleep(serialDelay)
			}
		}
	}

	out := Result{Total: len(items), Items: results}
	for _, r := range results {
		if r.OK {
			out.Succeeded++
			metrics.BatchItems.WithLabelValues("success").Inc()
		} else {
			out.Failed++
			metrics.BatchItems.WithLabelValues("failure").Inc()
		}
	}
	log.WithField("succeeded", out.Succeeded).WithField("failed", out.Failed).Info("batch submission finished")
	return out
}

// runParallel fans items out to a bounded pool. Workers never share a job
// record, so results slots are written without locking: one slot per item.
func (c *Coordinator) runParallel(ctx context.Context, items []Item, results []ItemResult, workers int) {
	work := make(chan int, len(items))
	for i := range items {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i] = c.submitOne(ctx, i, items[i])
			}
		}()
	}
	wg.Wait()
}

func (c *Coordinator) submitOne(ctx context.Context, index int, item Item) ItemResult {
	res := ItemResult{Index: index, CallID: item.CallID}

	if err := validate(item); err != nil {
		res.Error = err.Error()
		return res
	}

	handle, err := c.audio.Store(item.CallID, item.Audio)
	if err != nil {
		res.Error = fmt.Sprintf("store audio: %v", err)
		return res
	}

	job, err := c.submitter.Submit(ctx, item.CallID, handle)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.JobID = job.ID
	res.OK = true
	return res
}

func validate(item Item) error {
	if item.CallID == "" {
		return fmt.Errorf("missing call id")
	}
	if item.Audio == nil {
		return fmt.Errorf("missing audio payload")
	}
	ext := strings.ToLower(filepath.Ext(item.Filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file type %q", ext)
	}
	return nil
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxWorkers {
		return maxWorkers
	}
	return n
}

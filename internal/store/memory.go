package store

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"call-qa-go/internal/types"
)

// Memory is a mutex-guarded in-memory Persistence implementation.
type Memory struct {
	mu          sync.RWMutex
	jobs        map[string]types.TranscriptionJob
	byProvider  map[string]string
	byCall      map[string]string
	segments    map[string][]types.Segment
	evaluations map[string][]types.EvaluationResult // keyed by call id, append-only
	sentiments  map[string]types.SentimentSummary
}

func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[string]types.TranscriptionJob),
		byProvider:  make(map[string]string),
		byCall:      make(map[string]string),
		segments:    make(map[string][]types.Segment),
		evaluations: make(map[string][]types.EvaluationResult),
		sentiments:  make(map[string]types.SentimentSummary),
	}
}

func (m *Memory) CreateJob(job *types.TranscriptionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = *job
	m.byCall[job.CallID] = job.ID
	if job.ProviderJobID != "" {
		m.byProvider[job.ProviderJobID] = job.ID
	}
	return nil
}

func (m *Memory) GetJob(jobID string) (*types.TranscriptionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	return &job, nil
}

func (m *Memory) GetJobByProviderID(providerID string) (*types.TranscriptionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobID, ok := m.byProvider[providerID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	job := m.jobs[jobID]
	return &job, nil
}

func (m *Memory) GetJobByCallID(callID string) (*types.TranscriptionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobID, ok := m.byCall[callID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	job := m.jobs[jobID]
	return &job, nil
}

func (m *Memory) UpdateJob(job *types.TranscriptionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return types.ErrJobNotFound
	}
	m.jobs[job.ID] = *job
	if job.ProviderJobID != "" {
		m.byProvider[job.ProviderJobID] = job.ID
	}
	return nil
}

func (m *Memory) ListJobsByStatus(status types.JobStatus) ([]*types.TranscriptionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.TranscriptionJob
	for _, job := range m.jobs {
		if job.Status == status {
			j := job
			out = append(out, &j)
		}
	}
	return out, nil
}

func (m *Memory) SetSegmentsIfEmpty(jobID string, segments []types.Segment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return false, types.ErrJobNotFound
	}
	if len(m.segments[jobID]) > 0 {
		return false, nil
	}
	m.segments[jobID] = append([]types.Segment(nil), segments...)
	return true, nil
}

func (m *Memory) Segments(jobID string) ([]types.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Segment(nil), m.segments[jobID]...), nil
}

func (m *Memory) UpdateSegments(jobID string, segments []types.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return types.ErrJobNotFound
	}
	m.segments[jobID] = append([]types.Segment(nil), segments...)
	return nil
}

func (m *Memory) SaveEvaluation(ev *types.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[ev.CallID] = append(m.evaluations[ev.CallID], *ev)
	return nil
}

// LatestEvaluation returns the most recent result for the call, or nil.
func (m *Memory) LatestEvaluation(callID string) (*types.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.evaluations[callID]
	if len(evs) == 0 {
		return nil, nil
	}
	ev := evs[len(evs)-1]
	return &ev, nil
}

func (m *Memory) SaveSentiment(jobID string, summary types.SentimentSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentiments[jobID] = summary
	return nil
}

func (m *Memory) Sentiment(jobID string) (types.SentimentSummary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sentiments[jobID]
	return s, ok, nil
}

// MemoryAudio keeps recordings in memory; suitable for tests and demos.
type MemoryAudio struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryAudio() *MemoryAudio {
	return &MemoryAudio{blobs: make(map[string][]byte)}
}

func (a *MemoryAudio) Store(callID string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	handle := callID + "/" + uuid.New().String()
	a.mu.Lock()
	a.blobs[handle] = data
	a.mu.Unlock()
	return handle, nil
}

func (a *MemoryAudio) Read(handle string) (io.ReadCloser, error) {
	a.mu.RLock()
	data, ok := a.blobs[handle]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio %s not found", handle)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *MemoryAudio) Delete(handle string) error {
	a.mu.Lock()
	delete(a.blobs, handle)
	a.mu.Unlock()
	return nil
}

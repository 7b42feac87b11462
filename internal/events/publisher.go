// Package events publishes pipeline lifecycle events to Kafka. With no
// brokers configured the publisher runs in log-only mode, so local and test
// deployments need no broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"call-qa-go/internal/logger"
	"call-qa-go/internal/types"
)

type Config struct {
	Brokers          []string
	TopicTranscribed string
	TopicEvaluated   string
	Enabled          bool
}

type Publisher struct {
	writerTranscribed *kafka.Writer
	writerEvaluated   *kafka.Writer
	enabled           bool
}

func New(cfg *Config) *Publisher {
	log := logger.New().WithField("component", "events")

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info("kafka disabled, events are log-only")
		return &Publisher{}
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		}
	}

	log.WithField("brokers", cfg.Brokers).Info("kafka publisher initialized")
	return &Publisher{
		writerTranscribed: newWriter(cfg.TopicTranscribed),
		writerEvaluated:   newWriter(cfg.TopicEvaluated),
		enabled:           true,
	}
}

// TranscriptionCompleted announces a job reaching a terminal state.
func (p *Publisher) TranscriptionCompleted(ctx context.Context, job *types.TranscriptionJob) error {
	return p.publish(ctx, p.writerTranscribed, job.CallID, map[string]any{
		"event":   "transcription.completed",
		"call_id": job.CallID,
		"job_id":  job.ID,
		"status":  job.Status,
	})
}

// EvaluationRecorded announces a persisted evaluation result.
func (p *Publisher) EvaluationRecorded(ctx context.Context, ev *types.EvaluationResult) error {
	return p.publish(ctx, p.writerEvaluated, ev.CallID, map[string]any{
		"event":         "evaluation.recorded",
		"call_id":       ev.CallID,
		"evaluation_id": ev.ID,
		"overall_score": ev.OverallScore,
		"category":      ev.Category,
		"parse_ok":      ev.ParseOK,
	})
}

func (p *Publisher) publish(ctx context.Context, w *kafka.Writer, key string, event map[string]any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	log := logger.New().WithField("component", "events").WithField("key", key)
	if !p.enabled || w == nil {
		log.WithField("event", event["event"]).Debug("event (log-only)")
		return nil
	}

	err = w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
	if err != nil {
		log.WithError(err).Error("kafka publish failed")
	}
	return err
}

func (p *Publisher) Close() error {
	var err error
	for _, w := range []*kafka.Writer{p.writerTranscribed, p.writerEvaluated} {
		if w != nil {
			if e := w.Close(); e != nil {
				err = e
			}
		}
	}
	return err
}

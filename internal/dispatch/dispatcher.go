// Package dispatch hands batch jobs from ingestion to the processing workers.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	// EventType identifies a submitted batch job envelope.
	EventType   = "com.documentrestoreflow.batch.submitted"
	EventSource = "/documentrestoreflow/ingestion"
)

var ErrUnexpectedEvent = errors.New("unexpected event type")

// Dispatcher enqueues a job and returns an opaque handle without waiting for
// it to be processed.
type Dispatcher interface {
	Submit(ctx context.Context, job models.BatchJob) (string, error)
}

// NewJobEvent wraps job in a CloudEvent envelope.
func NewJobEvent(job models.BatchJob) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(EventSource)
	e.SetType(EventType)
	e.SetSubject(job.BatchID)
	e.SetTime(time.Now().UTC())
	if err := e.SetData(cloudevents.ApplicationJSON, job); err != nil {
		return e, fmt.Errorf("failed to set event data: %w", err)
	}
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("invalid job event: %w", err)
	}
	return e, nil
}

// JobFromEvent unpacks the job carried by e.
func JobFromEvent(e cloudevents.Event) (models.BatchJob, error) {
	if e.Type() != EventType {
		return models.BatchJob{}, fmt.Errorf("%w: %q", ErrUnexpectedEvent, e.Type())
	}
	var job models.BatchJob
	if err := e.DataAs(&job); err != nil {
		return models.BatchJob{}, fmt.Errorf("failed to decode job: %w", err)
	}
	if job.BatchID == "" {
		return models.BatchJob{}, fmt.Errorf("job event %s has no batch id", e.ID())
	}
	return job, nil
}

// DecodeJob parses a JSON-encoded job envelope.
func DecodeJob(data []byte) (cloudevents.Event, models.BatchJob, error) {
	var e cloudevents.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return e, models.BatchJob{}, fmt.Errorf("failed to decode job envelope: %w", err)
	}
	job, err := JobFromEvent(e)
	return e, job, err
}

// Open builds the configured dispatcher.
func Open(ctx context.Context, cfg *config.Config) (Dispatcher, error) {
	switch cfg.Queue.Backend {
	case "redis":
		q, err := NewRedisQueue(ctx, cfg.Queue.RedisURL, cfg.Queue.Key)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "workflows":
		d, err := NewWorkflowsDispatcher(ctx, cfg.ProjectID, cfg.Queue.Location, cfg.Queue.Workflow)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
}

package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

type State string

const (
	StateReady     State = "READY"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

func (s State) Done() bool {
	return s == StateCompleted || s == StateFailed
}

type Kind string

const (
	KindImage Kind = "EXPORT_IMAGE"
	KindTable Kind = "EXPORT_FEATURES"
)

// Job is the handle returned for a submitted export.
type Job struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	Destination string    `json:"destination"`
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewJob(kind Kind, description, destination string) Job {
	now := time.Now().UTC()
	return Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		Destination: destination,
		State:       StateReady,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type StatusSource interface {
	Status(ctx context.Context, id string) (Job, error)
}

// Wait polls src until the job finishes or ctx is done.
func Wait(ctx context.Context, src StatusSource, id string, interval time.Duration) (Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := src.Status(ctx, id)
		if err != nil {
			return Job{}, fmt.Errorf("failed to poll job %s: %w", id, err)
		}
		if job.State.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// InterruptedMessage is the error recorded on jobs that were still queued or
// running when the process stopped.
const InterruptedMessage = "export interrupted by a restart"

// Repository defines the interface for job persistence.
type Repository interface {
	// Save persists a job, replacing any job with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, oldest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job from storage.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying store.
	Close() error
}

// FailInterrupted marks every queued or running job in repo as FAILED and
// returns how many were changed. It must run before any export starts.
func FailInterrupted(ctx context.Context, repo Repository, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jobs, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	failed := 0
	for _, j := range jobs {
		if j.IsTerminal() {
			continue
		}
		if err := j.Fail(InterruptedMessage); err != nil {
			return failed, fmt.Errorf("fail job %s: %w", j.ID, err)
		}
		if err := repo.Save(ctx, j); err != nil {
			return failed, fmt.Errorf("save job %s: %w", j.ID, err)
		}
		failed++
		logger.Warn("interrupted export marked failed",
			slog.String("job_id", j.ID),
			slog.String("session_id", j.SessionID),
		)
	}
	return failed, nil
}

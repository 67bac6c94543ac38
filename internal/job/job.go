// Package job provides the export Job aggregate used to track asynchronous
// video exports. It includes the Job entity with its state machine, the
// repository port with in-memory and Pebble implementations, and the
// ExportService that runs exports.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/pixelframe-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted and has not started yet.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the clip is being played back and recorded.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the artifact is ready for download.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the export failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by the client.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Output describes the finished artifact of a job.
type Output struct {
	// Path is the local temp file holding the artifact.
	Path string `json:"path"`
	// FileName is the download name, e.g. pixel-video.webm.
	FileName string `json:"file_name"`
	// MIME is the artifact content type.
	MIME string `json:"mime"`
	// Size is the artifact size in bytes.
	Size int64 `json:"size"`
	// Chunks is the number of encoder output chunks assembled into the file.
	Chunks int `json:"chunks"`
}

// Job represents one asynchronous export.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// SessionID is the render session being exported.
	SessionID string `json:"session_id"`
	// Format is the export format name, e.g. webm.
	Format string `json:"format"`
	// Status is the current job state.
	Status Status `json:"status"`
	// Error contains the user-facing message if the job failed.
	Error string `json:"error,omitempty"`
	// Output is set once the job completes.
	Output Output `json:"output"`
	// PushToS3 indicates whether to upload the result to object storage.
	PushToS3 bool `json:"push_to_s3"`
	// URL is the object storage URL if PushToS3 was true.
	URL string `json:"url,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time `json:"updated_at"`
	// StartedAt is when the export started.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the export finished.
	CompletedAt time.Time `json:"completed_at"`
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(sessionID, format string) *Job {
	return NewWithID(id.Generate(), sessionID, format)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID, sessionID, format string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		SessionID: sessionID,
		Format:    format,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
// Returns ErrInvalidTransition if the job is not in IN_QUEUE state.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the artifact and transitions the job to COMPLETED.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Complete(out Output, url string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Output = out
	j.URL = url
	return nil
}

// Fail transitions the job to FAILED state with an error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// ClearOutput clears the output path and URL.
// This is used once the artifact file has been handed out and removed.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output = Output{}
	j.URL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Format:      j.Format,
		Status:      j.Status,
		Error:       j.Error,
		Output:      j.Output,
		PushToS3:    j.PushToS3,
		URL:         j.URL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

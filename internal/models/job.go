package models

import "time"

// JobStatus is the ledger lifecycle state of a render job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []JobStatus{StatusPending, StatusProcessing, StatusDone, StatusError}

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// IsStartable reports whether a worker may attempt to claim the job.
func (s JobStatus) IsStartable() bool {
	return s == StatusPending || s == StatusProcessing
}

// CanTransition reports whether moving from s to next is a legal step.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusDone || next == StatusError || next == StatusProcessing
	default:
		return false
	}
}

// Job is the persisted render job record.
type Job struct {
	ID                       string     `json:"id"`
	Status                   JobStatus  `json:"status"`
	Scene                    Scene      `json:"scene"`
	CallbackURL              string     `json:"callbackUrl,omitempty"`
	EstimatedDurationSeconds int        `json:"estimatedDurationSeconds"`
	ResultObjectName         *string    `json:"resultObjectName"`
	ResultURL                *string    `json:"resultUrl"`
	ErrorMessage             *string    `json:"errorMessage"`
	FileSizeBytes            *int64     `json:"fileSizeBytes,omitempty"`
	ClaimToken               string     `json:"-"`
	Attempts                 int        `json:"attempts"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
	StartedAt                *time.Time `json:"startedAt,omitempty"`
	FinishedAt               *time.Time `json:"finishedAt,omitempty"`
}

// Completion carries the fields written when a job finishes successfully.
type Completion struct {
	ObjectName    string
	URL           string
	FileSizeBytes int64
}

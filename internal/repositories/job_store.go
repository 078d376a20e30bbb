package repositories

import (
	"context"
	"time"

	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
)

// ErrJobNotFound is returned by Get for an unknown id.
var ErrJobNotFound = errors.New(errors.CodeNotFound, "job not found")

// ErrJobExists is returned by Create when the id is taken.
var ErrJobExists = errors.New(errors.CodeConflict, "job id already exists")

// ErrClaimConflict means another actor owns the job or it is already terminal.
// Callers treat it as a benign no-op.
var ErrClaimConflict = errors.New(errors.CodeConflict, "job claimed by another worker")

// JobStore is the render job ledger.
//
// Claim is the only way into processing: it succeeds only while the row is
// pending, or processing with a lease older than staleBefore, and it stores a
// fresh claim token. Renew, Complete and Fail succeed only for the current
// token holder, so a terminal row never changes again.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	// ListStartable returns pending jobs and processing jobs whose lease expired,
	// oldest first.
	ListStartable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Job, error)
	Claim(ctx context.Context, id, token string, staleBefore time.Time) (*models.Job, error)
	// Renew extends the holder's lease. ErrClaimConflict means the lease is gone.
	Renew(ctx context.Context, id, token string) error
	Complete(ctx context.Context, id, token string, c models.Completion) error
	Fail(ctx context.Context, id, token, message string) error
	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}

// MaxErrorMessageLen bounds errorMessage as stored in the ledger.
const MaxErrorMessageLen = 2000

package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
)

// MemoryJobRepository is an in-process JobStore with the same claim rules as
// JobRepository. Used in tests and single-process development.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (r *MemoryJobRepository) WithClock(now func() time.Time) *MemoryJobRepository {
	r.now = now
	return r
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.Scene.Messages = append([]models.Message(nil), j.Scene.Messages...)
	c.Scene.TypingBeforeIndices = append([]int(nil), j.Scene.TypingBeforeIndices...)
	return &c
}

func (r *MemoryJobRepository) Create(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return ErrJobExists
	}
	now := r.now()
	job.Status = models.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(j), nil
}

func startable(j *models.Job, staleBefore time.Time) bool {
	switch j.Status {
	case models.StatusPending:
		return true
	case models.StatusProcessing:
		return j.UpdatedAt.Before(staleBefore)
	default:
		return false
	}
}

func (r *MemoryJobRepository) ListStartable(_ context.Context, limit int, staleBefore time.Time) ([]models.Job, error) {
	if limit <= 0 {
		limit = 5
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Job
	for _, j := range r.jobs {
		if startable(j, staleBefore) {
			out = append(out, *cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryJobRepository) Claim(_ context.Context, id, token string, staleBefore time.Time) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || !startable(j, staleBefore) {
		return nil, ErrClaimConflict
	}
	now := r.now()
	j.Status = models.StatusProcessing
	j.ClaimToken = token
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
	return cloneJob(j), nil
}

func (r *MemoryJobRepository) owned(id, token string) (*models.Job, bool) {
	j, ok := r.jobs[id]
	if !ok || j.Status != models.StatusProcessing || j.ClaimToken != token {
		return nil, false
	}
	return j, true
}

func (r *MemoryJobRepository) Renew(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.owned(id, token)
	if !ok {
		return ErrClaimConflict
	}
	j.UpdatedAt = r.now()
	return nil
}

func (r *MemoryJobRepository) Complete(_ context.Context, id, token string, c models.Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.owned(id, token)
	if !ok {
		return ErrClaimConflict
	}
	now := r.now()
	name, size := c.ObjectName, c.FileSizeBytes
	j.Status = models.StatusDone
	j.ResultObjectName = &name
	j.ResultURL = nil
	if c.URL != "" {
		url := c.URL
		j.ResultURL = &url
	}
	j.FileSizeBytes = &size
	j.ErrorMessage = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (r *MemoryJobRepository) Fail(_ context.Context, id, token, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.owned(id, token)
	if !ok {
		return ErrClaimConflict
	}
	if message == "" {
		message = "render failed"
	}
	message = errors.Truncate(message, MaxErrorMessageLen)
	now := r.now()
	j.Status = models.StatusError
	j.ErrorMessage = &message
	j.ResultObjectName = nil
	j.ResultURL = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (r *MemoryJobRepository) CountByStatus(_ context.Context) (map[models.JobStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.JobStatus]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out[s] = 0
	}
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out, nil
}

// Ping always succeeds.
func (r *MemoryJobRepository) Ping(context.Context) error { return nil }

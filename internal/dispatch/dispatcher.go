// Package dispatch accepts render submissions: it records the job and makes a
// best-effort attempt to hand it to the queue.
package dispatch

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatreel/internal/metrics"
	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/repositories"
	"chatreel/internal/timeline"
)

// DefaultEnqueueTimeout bounds how long Submit waits on the queue.
const DefaultEnqueueTimeout = 2 * time.Second

// Job ids end up in object names and temp file names.
var validJobID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Enqueuer pushes a job id onto the work queue.
type Enqueuer interface {
	Push(ctx context.Context, jobID string, timeout time.Duration) error
}

type SubmitRequest struct {
	Scene       models.Scene
	CallbackURL string
	// JobID is optional; a UUID is generated when empty.
	JobID string
}

type SubmitResult struct {
	JobID                    string
	EstimatedDurationSeconds int
	// Enqueued is false when the queue is disabled or the push failed.
	Enqueued bool
}

type Options struct {
	Store repositories.JobStore
	// Queue may be nil; the sweeper then picks every job up.
	Queue          Enqueuer
	EnqueueTimeout time.Duration
	Log            *logger.Logger
}

type Dispatcher struct {
	store   repositories.JobStore
	queue   Enqueuer
	timeout time.Duration
	log     *logger.Logger
}

func New(o Options) *Dispatcher {
	if o.EnqueueTimeout <= 0 {
		o.EnqueueTimeout = DefaultEnqueueTimeout
	}
	log := o.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		store:   o.Store,
		queue:   o.Queue,
		timeout: o.EnqueueTimeout,
		log:     log.WithComponent("dispatcher"),
	}
}

// QueueEnabled reports whether submissions are pushed to a queue at all.
func (d *Dispatcher) QueueEnabled() bool { return d.queue != nil }

// Submit validates the scene, creates the pending record and tries to enqueue it.
// Only validation and ledger errors are returned; enqueue failures are logged.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	scene := req.Scene
	scene.Normalize()
	if err := scene.Validate(); err != nil {
		return SubmitResult{}, err
	}
	callback, err := validateCallbackURL(req.CallbackURL)
	if err != nil {
		return SubmitResult{}, err
	}

	id := strings.TrimSpace(req.JobID)
	if id == "" {
		id = uuid.NewString()
	} else if !validJobID.MatchString(id) {
		return SubmitResult{}, errors.ValidationField("jobId", "jobId must be 1-64 letters, digits, '-' or '_'")
	}

	job := &models.Job{
		ID:                       id,
		Scene:                    scene,
		CallbackURL:              callback,
		EstimatedDurationSeconds: timeline.EstimateDuration(scene.Messages),
	}
	if err := d.store.Create(ctx, job); err != nil {
		return SubmitResult{}, errors.Wrap(err, "dispatch.submit", "create job")
	}
	metrics.Submitted()

	res := SubmitResult{JobID: id, EstimatedDurationSeconds: job.EstimatedDurationSeconds}
	res.Enqueued = d.enqueue(ctx, id)
	return res, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, id string) bool {
	log := d.log.WithJobID(id)
	if d.queue == nil {
		log.Debug("queue disabled, leaving job to the sweeper")
		return false
	}
	if err := d.queue.Push(ctx, id, d.timeout); err != nil {
		metrics.EnqueueFailed(strings.ToLower(string(errors.GetCode(err))))
		log.WithError(err).Warn("enqueue failed, sweeper will pick the job up")
		return false
	}
	log.Debug("job enqueued")
	return true
}

func validateCallbackURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", errors.ValidationField("callbackUrl", "callbackUrl must be an absolute http(s) URL")
	}
	return u.String(), nil
}

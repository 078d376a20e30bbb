// Package processor claims render jobs from the ledger and drives them to a
// terminal state. Queue consumers and the sweeper share the same entry point.
package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"chatreel/internal/dispatch"
	"chatreel/internal/metrics"
	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/ports"
	"chatreel/internal/repositories"
	"chatreel/internal/signing"
	"chatreel/internal/timeline"
	"chatreel/internal/webhook"
	"chatreel/internal/worker/renderer"
)

const (
	DefaultConcurrency = 1
	DefaultStaleAfter  = 15 * time.Minute
	// ledgerWriteTimeout bounds terminal writes made on a detached context.
	ledgerWriteTimeout = 10 * time.Second
)

// Notifier delivers the final outcome to a job's callback URL.
type Notifier interface {
	Notify(ctx context.Context, url string, p webhook.Payload) webhook.Result
}

type Deps struct {
	Store    repositories.JobStore
	Engine   renderer.Engine
	Storage  ports.StorageProvider
	Issuer   *signing.Issuer
	Notifier Notifier
	Log      *logger.Logger

	WorkDir       string
	Composition   string
	RenderTimeout time.Duration
	Concurrency   int
	TTLMinutes    int
	// StaleAfter is how long a processing lease lasts before another worker
	// may reclaim the job.
	StaleAfter time.Duration
	Tunables   *timeline.Tunables
}

type Processor struct {
	store      repositories.JobStore
	issuer     *signing.Issuer
	notifier   Notifier
	log        *logger.Logger
	sem        *semaphore.Weighted
	workDir    string
	ttl        int
	staleAfter time.Duration
	now        func() time.Time

	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	if d.Concurrency <= 0 {
		d.Concurrency = DefaultConcurrency
	}
	if d.StaleAfter <= 0 {
		d.StaleAfter = DefaultStaleAfter
	}
	t := timeline.DefaultTunables()
	if d.Tunables != nil {
		t = *d.Tunables
	}

	return &Processor{
		store:      d.Store,
		issuer:     d.Issuer,
		notifier:   d.Notifier,
		log:        log.WithComponent("processor"),
		sem:        semaphore.NewWeighted(int64(d.Concurrency)),
		workDir:    d.WorkDir,
		ttl:        signing.ClampTTL(d.TTLMinutes),
		staleAfter: d.StaleAfter,
		now:        time.Now,

		rendererAdapter: NewRendererAdapter(d.Engine, d.Composition, d.RenderTimeout, t),
		outputHandler:   NewOutputHandler(d.Storage),
	}
}

// ClaimAndRun renders jobID if this call wins the claim. Losing the claim, an
// unknown id or an already-terminal job give a Skipped outcome and no error.
// Errors are returned only for ledger trouble before the claim; everything
// after the claim is recorded on the job itself.
func (p *Processor) ClaimAndRun(ctx context.Context, jobID string, path dispatch.DeliveryPath) (Outcome, error) {
	log := p.log.FromContext(ctx).WithJobID(jobID).WithDelivery(string(path))

	// A slot is taken before claiming so a claimed job is always rendering.
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Skipped: true}, err
	}
	defer p.sem.Release(1)

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warn("job not found, dropping")
			return Outcome{Skipped: true}, nil
		}
		return Outcome{Skipped: true}, errors.Wrap(err, "processor.load", "load job")
	}
	if !job.Status.IsStartable() {
		log.Debug("job already finished", "status", string(job.Status))
		return Outcome{Skipped: true, Status: job.Status}, nil
	}

	token := uuid.NewString()
	claimed, err := p.store.Claim(ctx, jobID, token, p.now().Add(-p.staleAfter))
	if err != nil {
		if errors.Is(err, repositories.ErrClaimConflict) {
			metrics.ClaimConflict(string(path))
			log.Debug("claim lost, another worker owns the job")
			return Outcome{Skipped: true, Status: job.Status}, nil
		}
		return Outcome{Skipped: true}, errors.Wrap(err, "processor.claim", "claim job")
	}
	log.Info("job claimed", "attempt", claimed.Attempts)
	start := p.now()

	runCtx, release := p.holdLease(ctx, log, jobID, token)
	completion, runErr := p.execute(runCtx, log, claimed)
	release()

	// Terminal writes must land even if the worker is shutting down.
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()

	var out Outcome
	if runErr != nil {
		out = p.fail(ledgerCtx, log, claimed, token, runErr)
	} else {
		out = p.complete(ledgerCtx, log, claimed, token, completion)
	}
	if out.Skipped {
		return out, nil
	}

	metrics.JobFinished(string(out.Status), string(path))
	log.Info("job finished",
		"status", string(out.Status),
		"duration_ms", p.now().Sub(start).Milliseconds(),
	)
	if out.Status == models.StatusDone && out.URL == "" {
		out.URL = p.resign(context.WithoutCancel(ctx), log, out.ObjectName)
	}
	// The notifier bounds delivery with its own timeout.
	p.notify(context.WithoutCancel(ctx), log, claimed, out, completion.FileSizeBytes)
	return out, nil
}

// execute renders, uploads and signs. The temp file is always removed.
func (p *Processor) execute(ctx context.Context, log *logger.Logger, job *models.Job) (models.Completion, error) {
	tmp := TempOutputPath(p.workDir, job.ID)
	defer removeTemp(log, tmp)

	log.Debug("rendering", "messages", len(job.Scene.Messages), "output", tmp)
	if err := p.rendererAdapter.Render(ctx, *job, tmp); err != nil {
		return models.Completion{}, err
	}

	up, err := p.outputHandler.Upload(ctx, job.ID, tmp)
	if err != nil {
		return models.Completion{}, err
	}
	log.Debug("uploaded", "object", up.ObjectName, "size", up.Size)

	c := models.Completion{ObjectName: up.ObjectName, FileSizeBytes: up.Size}
	// Signing is retried before the callback, and the status endpoint signs
	// on every read.
	if p.issuer != nil {
		su, err := p.issuer.Sign(ctx, up.ObjectName, p.ttl)
		if err != nil {
			log.WithError(err).Warn("could not sign result url")
		} else {
			c.URL = su.URL
		}
	}
	return c, nil
}

func (p *Processor) complete(ctx context.Context, log *logger.Logger, job *models.Job, token string, c models.Completion) Outcome {
	if err := p.store.Complete(ctx, job.ID, token, c); err != nil {
		if errors.Is(err, repositories.ErrClaimConflict) {
			log.Warn("lease lost before completion, result discarded", "object", c.ObjectName)
			return Outcome{Skipped: true}
		}
		// The lease expires and the sweeper reclaims the job.
		log.LogError(ctx, "failed to record completion", err)
		return Outcome{Skipped: true}
	}
	return Outcome{Status: models.StatusDone, ObjectName: c.ObjectName, URL: c.URL}
}

func (p *Processor) fail(ctx context.Context, log *logger.Logger, job *models.Job, token string, cause error) Outcome {
	msg := diagnostic(cause)

	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		log.Error("job failed",
			"code", string(appErr.Code),
			"op", appErr.Op,
			"error", msg,
		)
	} else {
		log.Error("job failed", "error", msg)
	}

	if err := p.store.Fail(ctx, job.ID, token, msg); err != nil {
		if errors.Is(err, repositories.ErrClaimConflict) {
			log.Warn("lease lost before failure was recorded")
		} else {
			log.LogError(ctx, "failed to record failure", err)
		}
		return Outcome{Skipped: true}
	}
	return Outcome{Status: models.StatusError, ErrorMessage: msg}
}

// resign retries signing for a completed job whose URL could not be signed
// during the run, so the callback carries a link. It returns "" on failure.
func (p *Processor) resign(ctx context.Context, log *logger.Logger, objectName string) string {
	if p.issuer == nil || objectName == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()
	su, err := p.issuer.Sign(ctx, objectName, p.ttl)
	if err != nil {
		log.WithError(err).Warn("result url still unsigned, callback sent without it")
		return ""
	}
	return su.URL
}

func (p *Processor) notify(ctx context.Context, log *logger.Logger, job *models.Job, out Outcome, size int64) {
	if job.CallbackURL == "" || p.notifier == nil {
		return
	}
	payload := webhook.Payload{JobID: job.ID, Status: string(out.Status)}
	if out.URL != "" {
		u := out.URL
		payload.URL = &u
	}
	if out.ErrorMessage != "" {
		e := out.ErrorMessage
		payload.Error = &e
	}
	if out.Status == models.StatusDone && size > 0 {
		payload.FileSizeBytes = &size
	}

	res := p.notifier.Notify(ctx, job.CallbackURL, payload)
	if res.Delivered {
		metrics.WebhookDelivered("delivered")
		log.Debug("webhook delivered", "status_code", res.StatusCode, "duration_ms", res.Duration.Milliseconds())
		return
	}
	metrics.WebhookDelivered("failed")
	log.Warn("webhook delivery failed",
		"status_code", res.StatusCode,
		"error", errString(res.Err),
	)
}

// diagnostic is the message stored on a failed job.
func diagnostic(err error) string {
	var appErr *errors.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if appErr.Err != nil && appErr.Code != errors.CodeTimeout {
			msg += ": " + appErr.Err.Error()
		}
	}
	return errors.Truncate(msg, repositories.MaxErrorMessageLen)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

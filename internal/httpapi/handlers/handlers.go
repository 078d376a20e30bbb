package handlers

import (
	"context"
	"time"

	"chatreel/internal/dispatch"
	"chatreel/internal/models"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/ports"
	"chatreel/internal/signing"
)

type Submitter interface {
	Submit(ctx context.Context, req dispatch.SubmitRequest) (dispatch.SubmitResult, error)
	QueueEnabled() bool
}

type JobReader interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInspector is the read side of the work queue used by health checks.
type QueueInspector interface {
	Ping(ctx context.Context) error
	Depth(ctx context.Context) (int64, error)
}

type URLIssuer interface {
	Sign(ctx context.Context, objectName string, ttlMinutes int) (signing.SignedURL, error)
}

// LinkVerifier validates links minted for the /objects proxy.
type LinkVerifier interface {
	Verify(objectName, expires, sig string, now time.Time) error
}

// DownloadOptions bound the long-poll of the download route.
type DownloadOptions struct {
	DefaultWait time.Duration
	MaxWait     time.Duration
	PollEvery   time.Duration
}

type Deps struct {
	Dispatcher Submitter
	Jobs       JobReader
	// Ledger, Queue and Links may be nil.
	Ledger     Pinger
	Queue      QueueInspector
	Storage    ports.StorageProvider
	Issuer     URLIssuer
	Links      LinkVerifier
	TTLMinutes int
	Download   DownloadOptions
	Log        *logger.Logger
}

type Handler struct {
	dispatcher Submitter
	jobs       JobReader
	ledger     Pinger
	queue      QueueInspector
	sp         ports.StorageProvider
	issuer     URLIssuer
	links      LinkVerifier
	ttl        int
	download   DownloadOptions
	log        *logger.Logger
	now        func() time.Time
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	dl := d.Download
	if dl.DefaultWait <= 0 {
		dl.DefaultWait = 20 * time.Second
	}
	if dl.MaxWait <= 0 {
		dl.MaxWait = 10 * time.Second
	}
	if dl.PollEvery <= 0 {
		dl.PollEvery = 1500 * time.Millisecond
	}
	return &Handler{
		dispatcher: d.Dispatcher,
		jobs:       d.Jobs,
		ledger:     d.Ledger,
		queue:      d.Queue,
		sp:         d.Storage,
		issuer:     d.Issuer,
		links:      d.Links,
		ttl:        signing.ClampTTL(d.TTLMinutes),
		download:   dl,
		log:        log.WithComponent("api"),
		now:        time.Now,
	}
}

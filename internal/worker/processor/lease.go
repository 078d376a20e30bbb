package processor

import (
	"context"
	"time"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/repositories"
)

// errLeaseLost cancels a run whose claim was taken over by another worker.
var errLeaseLost = errors.New(errors.CodeConflict, "render lease lost")

// renewEvery refreshes a held lease three times per lease period.
func renewEvery(staleAfter time.Duration) time.Duration {
	if d := staleAfter / 3; d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

// holdLease keeps the claim on jobID fresh until release is called. The
// returned context is canceled if the ledger reports the lease gone.
func (p *Processor) holdLease(ctx context.Context, log *logger.Logger, jobID, token string) (context.Context, func()) {
	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		t := time.NewTicker(renewEvery(p.staleAfter))
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-runCtx.Done():
				return
			case <-t.C:
			}
			wctx, wcancel := context.WithTimeout(context.WithoutCancel(runCtx), ledgerWriteTimeout)
			err := p.store.Renew(wctx, jobID, token)
			wcancel()
			switch {
			case err == nil:
			case errors.Is(err, repositories.ErrClaimConflict):
				log.Warn("lease lost while rendering, stopping")
				cancel(errLeaseLost)
				return
			default:
				log.WithError(err).Warn("lease renewal failed")
			}
		}
	}()

	release := func() {
		close(done)
		<-stopped
		cancel(nil)
	}
	return runCtx, release
}

package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"chatreel/internal/dispatch"
	"chatreel/internal/httpkit"
	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
)

// Bounds applied to the caller's maxWaitMs before the server-side cap.
const (
	minRequestedWait = time.Second
	maxRequestedWait = 10 * time.Minute
	retryAfterSecs   = "3"
)

type submitBody struct {
	Scene *models.Scene `json:"scene"`
	// Conversation is the older name of scene.
	Conversation *models.Scene `json:"conversation"`
	CallbackURL  string        `json:"callbackUrl"`
	WebhookURL   string        `json:"webhookUrl"`
	JobID        string        `json:"jobId"`
}

type submitResponse struct {
	JobID                    string           `json:"jobId"`
	Status                   models.JobStatus `json:"status"`
	EstimatedDurationSeconds int              `json:"estimatedDurationSeconds"`
	StatusURL                string           `json:"statusUrl"`
}

type statusResponse struct {
	JobID                    string           `json:"jobId"`
	Status                   models.JobStatus `json:"status"`
	URL                      *string          `json:"url"`
	Error                    *string          `json:"error"`
	EstimatedDurationSeconds int              `json:"estimatedDurationSeconds"`
	FileSizeBytes            *int64           `json:"fileSizeBytes,omitempty"`
}

type pendingResponse struct {
	JobID     string           `json:"jobId"`
	Status    models.JobStatus `json:"status"`
	StatusURL string           `json:"statusUrl"`
}

func statusURL(id string) string {
	return "/render/" + url.PathEscape(id) + "/status"
}

// PostRender accepts a scene and answers 202 before any rendering happens.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	var body submitBody
	if err := httpkit.DecodeJSON(w, r, &body, false); err != nil {
		return err
	}
	scene := body.Scene
	if scene == nil {
		scene = body.Conversation
	}
	if scene == nil {
		return errors.ValidationField("scene", "scene is required")
	}
	callback := body.CallbackURL
	if callback == "" {
		callback = body.WebhookURL
	}

	res, err := h.dispatcher.Submit(r.Context(), dispatch.SubmitRequest{
		Scene:       *scene,
		CallbackURL: callback,
		JobID:       body.JobID,
	})
	if err != nil {
		return err
	}

	w.Header().Set("Location", statusURL(res.JobID))
	httpkit.WriteJSON(w, http.StatusAccepted, submitResponse{
		JobID:                    res.JobID,
		Status:                   models.StatusPending,
		EstimatedDurationSeconds: res.EstimatedDurationSeconds,
		StatusURL:                statusURL(res.JobID),
	})
	return nil
}

// GetRenderStatus reports the ledger view of a job. Finished jobs get a
// freshly signed URL.
func (h *Handler) GetRenderStatus(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	job, err := h.jobs.Get(ctx, chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}

	resp := statusResponse{
		JobID:                    job.ID,
		Status:                   job.Status,
		Error:                    job.ErrorMessage,
		EstimatedDurationSeconds: job.EstimatedDurationSeconds,
		FileSizeBytes:            job.FileSizeBytes,
	}
	if job.Status == models.StatusDone {
		if u := h.resultURL(ctx, job); u != "" {
			resp.URL = &u
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	httpkit.WriteJSON(w, http.StatusOK, resp)
	return nil
}

// DownloadRender long-polls until the job is terminal or the wait runs out.
func (h *Handler) DownloadRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "jobId")
	deadline := h.now().Add(h.waitFor(r.URL.Query().Get("maxWaitMs")))

	for {
		job, err := h.jobs.Get(ctx, id)
		if err != nil {
			return err
		}

		switch job.Status {
		case models.StatusDone:
			u := h.resultURL(ctx, job)
			if u == "" {
				return errors.New(errors.CodeInternal, "result link unavailable").WithField("jobId", id)
			}
			noCache(w)
			http.Redirect(w, r, u, http.StatusFound)
			return nil
		case models.StatusError:
			msg := "render failed"
			if job.ErrorMessage != nil && *job.ErrorMessage != "" {
				msg = *job.ErrorMessage
			}
			return errors.New(errors.CodeRenderFailed, msg).WithField("jobId", id)
		}

		remaining := deadline.Sub(h.now())
		if remaining <= 0 || !sleep(ctx, min(h.download.PollEvery, remaining)) {
			w.Header().Set("Retry-After", retryAfterSecs)
			noCache(w)
			httpkit.WriteJSON(w, http.StatusAccepted, pendingResponse{
				JobID:     job.ID,
				Status:    job.Status,
				StatusURL: statusURL(job.ID),
			})
			return nil
		}
	}
}

// waitFor clamps the requested wait and then applies the server cap.
func (h *Handler) waitFor(raw string) time.Duration {
	wait := h.download.DefaultWait
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		wait = time.Duration(ms) * time.Millisecond
	}
	wait = max(minRequestedWait, min(wait, maxRequestedWait))
	return min(wait, h.download.MaxWait)
}

// resultURL re-signs the stored object, falling back to the URL stored at
// completion when signing fails.
func (h *Handler) resultURL(ctx context.Context, job *models.Job) string {
	if job.ResultObjectName != nil && *job.ResultObjectName != "" && h.issuer != nil {
		signed, err := h.issuer.Sign(ctx, *job.ResultObjectName, h.ttl)
		if err == nil {
			return signed.URL
		}
		h.log.WithJobID(job.ID).WithError(err).Warn("re-signing result failed, using stored url")
	}
	if job.ResultURL != nil {
		return *job.ResultURL
	}
	return ""
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

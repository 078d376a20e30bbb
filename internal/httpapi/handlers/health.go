package handlers

import (
	"context"
	"net/http"
	"time"

	"chatreel/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "chatreel-api",
		"version": "0.1.0",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" && check["status"] != "disabled" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"ledger":  h.checkPing(ctx, h.ledger),
		"redis":   h.checkQueue(ctx),
		"storage": h.checkStorage(ctx),
	}
}

func (h *Handler) checkPing(ctx context.Context, p Pinger) map[string]any {
	if p == nil {
		return map[string]any{"status": "disabled"}
	}
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := p.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkQueue(ctx context.Context) map[string]any {
	if h.queue == nil {
		return map[string]any{"status": "disabled"}
	}
	return h.checkPing(ctx, h.queue)
}

func (h *Handler) checkStorage(_ context.Context) map[string]any {
	if h.sp == nil {
		return map[string]any{"status": "disabled"}
	}
	return map[string]any{
		"status":   "ok",
		"provider": h.sp.Provider(),
	}
}

type queueHealth struct {
	QueueEnabled   bool             `json:"queueEnabled"`
	QueueReachable bool             `json:"queueReachable"`
	DepthCounts    map[string]int64 `json:"depthCounts,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// QueueHealth reports queue reachability together with the queue length and
// ledger counts per status. Counts are omitted when the ledger cannot answer.
func (h *Handler) QueueHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := queueHealth{QueueEnabled: h.dispatcher.QueueEnabled() && h.queue != nil}
	counts := map[string]int64{}

	if resp.QueueEnabled {
		depth, err := h.queue.Depth(ctx)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.QueueReachable = true
			counts["queue"] = depth
		}
	}

	byStatus, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		h.log.FromContext(ctx).WithError(err).Warn("ledger counts unavailable")
	} else {
		for status, n := range byStatus {
			counts[string(status)] = n
		}
		resp.DepthCounts = counts
	}

	httpkit.WriteJSON(w, http.StatusOK, resp)
}

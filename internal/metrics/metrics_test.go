package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(jobOutcomes.WithLabelValues("done", "queue"))
	JobFinished("done", "queue")
	if got := testutil.ToFloat64(jobOutcomes.WithLabelValues("done", "queue")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}

	ClaimConflict("")
	if got := testutil.ToFloat64(claimConflicts.WithLabelValues("unknown")); got < 1 {
		t.Errorf("expected empty label to fold into unknown, got %v", got)
	}
}

func TestRenderStartedTracksInFlight(t *testing.T) {
	base := testutil.ToFloat64(rendersInFlight)
	done := RenderStarted("command")
	if got := testutil.ToFloat64(rendersInFlight); got != base+1 {
		t.Errorf("expected in-flight %v, got %v", base+1, got)
	}
	done(true)
	if got := testutil.ToFloat64(rendersInFlight); got != base {
		t.Errorf("expected in-flight back to %v, got %v", base, got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	MustRegister()
	MustRegister()
	Submitted()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "chatreel_submissions_total") {
		t.Error("expected submissions counter in exposition")
	}
}

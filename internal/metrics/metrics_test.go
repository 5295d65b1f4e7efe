package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/minhnhutttt/la/internal/qa"
)

func TestRecorderCounters(t *testing.T) {
	m := New()
	m.Backfill("answer.lawyer.user_id", "session")
	m.Backfill("answer.lawyer.user_id", "session")
	m.Mutation("create_answer", "ok")
	m.Verification(qa.VerificationVerified)
	m.DiscardedCommit("question")

	if got := testutil.ToFloat64(m.backfills.WithLabelValues("answer.lawyer.user_id", "session")); got != 2 {
		t.Errorf("backfills = %v", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("create_answer", "ok")); got != 1 {
		t.Errorf("mutations = %v", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues("verified")); got != 1 {
		t.Errorf("verifications = %v", got)
	}
	if got := testutil.ToFloat64(m.discarded.WithLabelValues("question")); got != 1 {
		t.Errorf("discarded = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Request(http.MethodGet, "/api/views/{viewId}", http.StatusOK, 0.01)
	m.RegisterGauge("open_views", "Open views.", func() float64 { return 4 })

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`la_http_requests_total{method="GET",route="/api/views/{viewId}",status="200"} 1`,
		"la_open_views 4",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.Mutation("update_answer", "error")
	if got := testutil.ToFloat64(b.mutations.WithLabelValues("update_answer", "error")); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}

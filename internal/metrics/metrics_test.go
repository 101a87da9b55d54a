package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/lists/", 200, time.Millisecond)
	m.Rollback("update_item")
	m.Refresh(true, nil)
	m.Logout()
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/items/", 200, time.Millisecond)
	m.ObserveRequest("GET", "/items/", 200, time.Millisecond)
	m.Rollback("delete_item")
	m.Refresh(true, errors.New("boom"))
	m.Logout()

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/items/", "200")); got != 2 {
		t.Fatalf("requests: got %v want 2", got)
	}
	if got := testutil.ToFloat64(m.Rollbacks.WithLabelValues("delete_item")); got != 1 {
		t.Fatalf("rollbacks: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.Refreshes.WithLabelValues("silent", "error")); got != 1 {
		t.Fatalf("refreshes: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.Logouts); got != 1 {
		t.Fatalf("logouts: got %v want 1", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Rollback("update_item")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "grocer_sync_rollbacks_total") {
		t.Fatalf("expected rollbacks metric in output:\n%s", rec.Body.String())
	}
}

package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposed(t *testing.T) {
	m := NewMetrics()
	m.ObserveTurn("answered_with_query")
	m.ObserveTurn("answered_with_query")
	m.ObserveTurn("answer")
	m.ObserveGeneration(250 * time.Millisecond)
	m.ObserveQuery(5 * time.Millisecond)
	m.ProtocolServerStarted()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `sqlchat_turns_total{outcome="answered_with_query"} 2`) {
		t.Errorf("missing turn counter in scrape output:\n%s", body)
	}
	if !strings.Contains(body, "sqlchat_generation_duration_seconds_count 1") {
		t.Errorf("missing generation histogram in scrape output")
	}
	if !strings.Contains(body, "sqlchat_protocol_server_starts_total 1") {
		t.Errorf("missing protocol start counter in scrape output")
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("answer")
	m.ObserveGeneration(time.Second)
	m.ObserveQuery(time.Second)
	m.ProtocolServerStarted()
}

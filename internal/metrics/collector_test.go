package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCountsFetchAttempts(t *testing.T) {
	c := NewCollector("wpedge")
	c.FetchAttempts.WithLabelValues("primary", "success").Inc()
	c.FetchAttempts.WithLabelValues("primary", "timeout").Add(2)

	if got := testutil.ToFloat64(c.FetchAttempts.WithLabelValues("primary", "timeout")); got != 2 {
		t.Fatalf("expected 2 timeouts, got %v", got)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("wpedge")
	b := NewCollector("wpedge")
	a.CacheMisses.Inc()
	if got := testutil.ToFloat64(b.CacheMisses); got != 0 {
		t.Fatalf("registries must not share state, got %v", got)
	}
}

func TestCollectorHandlerExposesRequestCounter(t *testing.T) {
	c := NewCollector("wpedge")
	c.HTTPRequests.WithLabelValues("/api/seo", "200").Inc()

	count, err := testutil.GatherAndCount(c.Registry(), "wpedge_http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one series, got %d", count)
	}
}

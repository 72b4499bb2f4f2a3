package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"horse.fit/cargoscoop/internal/dedup"
	"horse.fit/cargoscoop/internal/textnorm"
)

func TestObservers_CountByLabel(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveMessage("yuk_markazi", textnorm.Accepted)
	m.ObserveMessage("yuk_markazi", textnorm.Accepted)
	m.ObserveMessage("yuk_markazi", textnorm.RejectedSpammer)
	m.ObserveCrawl("yuk_markazi", "completed", 3*time.Second)
	m.ObserveBatch("load", 20, time.Second, nil)
	m.ObserveBatch("load", 7, time.Second, errors.New("timeout"))
	m.ObserveDecision("load", dedup.DecisionMerge, "params_hash")
	m.ObserveDecision("load", dedup.DecisionInsert, "")
	m.ObserveArchived("vehicle", "age", 4)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"accepted", testutil.ToFloat64(m.messages.WithLabelValues("yuk_markazi", "accepted")), 2},
		{"spammer", testutil.ToFloat64(m.messages.WithLabelValues("yuk_markazi", "spammer")), 1},
		{"crawl", testutil.ToFloat64(m.crawls.WithLabelValues("yuk_markazi", "completed")), 1},
		{"batch ok", testutil.ToFloat64(m.batches.WithLabelValues("load", "ok")), 1},
		{"batch error", testutil.ToFloat64(m.batches.WithLabelValues("load", "error")), 1},
		{"items", testutil.ToFloat64(m.batchItems.WithLabelValues("load")), 27},
		{"merge", testutil.ToFloat64(m.decisions.WithLabelValues("load", "merge", "params_hash")), 1},
		{"insert", testutil.ToFloat64(m.decisions.WithLabelValues("load", "insert", "none")), 1},
		{"archived", testutil.ToFloat64(m.archived.WithLabelValues("vehicle", "age")), 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	t.Parallel()

	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/loads/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	for _, path := range []string{"/api/v1/loads/1", "/api/v1/loads/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/loads/:id", "204")); got != 2 {
		t.Fatalf("route counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpInflight); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cargoscoop_http_requests_total") {
		t.Fatalf("GET /metrics = %d\n%s", rec.Code, rec.Body.String())
	}
}

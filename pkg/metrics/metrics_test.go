package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("docsage_uploads_total", "Total uploads.")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Fatalf("counter = %d, want 3", c.Value())
	}

	g := r.Gauge("docsage_sessions_active", "Active sessions.")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Fatalf("gauge = %d, want 4", g.Value())
	}
}

func TestSameNameReturnsSameMetric(t *testing.T) {
	r := New()
	a := r.Counter("c", "")
	b := r.Counter("c", "")
	if a != b {
		t.Fatal("same name must return the same counter")
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("docsage_errors_total", "kind", "payload_too_large")
	want := `docsage_errors_total{kind="payload_too_large"}`
	if got != want {
		t.Fatalf("WithLabels = %q, want %q", got, want)
	}
	if WithLabels("plain") != "plain" {
		t.Fatal("no labels should return the name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("uploads_total", "Total uploads.").Inc()
	r.Counter(WithLabels("errors_total", "kind", "rate_limited"), "Errors by kind.").Add(2)
	r.Gauge("sessions_active", "").Set(7)

	h := r.Histogram("embed_seconds", "Embedding latency.", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(30)

	out := r.Render()

	for _, want := range []string{
		"# TYPE uploads_total counter",
		"uploads_total 1",
		`errors_total{kind="rate_limited"} 2`,
		"# TYPE sessions_active gauge",
		"sessions_active 7",
		"# TYPE embed_seconds histogram",
		`embed_seconds_bucket{le="0.1"} 1`,
		`embed_seconds_bucket{le="1"} 2`,
		`embed_seconds_bucket{le="+Inf"} 3`,
		"embed_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("queries_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "queries_total 1") {
		t.Fatalf("body missing counter: %s", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProviderCall("openai", "success", 120*time.Millisecond)
	m.ObserveProviderCall("openai", "error", time.Second)
	m.ObserveUsage("incremented")
	m.ObserveWebhook("checkout.session.completed", "applied")
	m.ObserveGeneration(true, "ok")
	m.ObserveRateLimited()

	body := scrape(t, m)
	for _, want := range []string{
		`promptcraft_provider_calls_total{outcome="success",provider="openai"} 1`,
		`promptcraft_provider_calls_total{outcome="error",provider="openai"} 1`,
		`promptcraft_provider_call_duration_seconds_count{provider="openai"} 2`,
		`promptcraft_usage_records_total{outcome="incremented"} 1`,
		`promptcraft_webhook_events_total{event_type="checkout.session.completed",outcome="applied"} 1`,
		`promptcraft_generations_total{credential="shared",result="ok"} 1`,
		`promptcraft_rate_limited_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition, got:\n%s", want, body)
		}
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(nil)
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/v1/tiers", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tiers", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	body := scrape(t, m)
	if !strings.Contains(body, `promptcraft_http_requests_total{method="GET",path="/v1/tiers",status="204"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, `path="unmatched",status="404"`) {
		t.Fatalf("expected unmatched route counter")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go collector metrics")
	}
}

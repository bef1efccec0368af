package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Acme.com/about", "acme.com"},
		{"no scheme", "acme.com/path", "acme.com"},
		{"host with port", "acme.com:8080", "acme.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveJobAndCollect(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlJobsTotal.WithLabelValues("success"))
	ObserveJob("success", time.Second)
	if got := testutil.ToFloat64(crawlJobsTotal.WithLabelValues("success")); got != before+1 {
		t.Errorf("expected success jobs %f, got %f", before+1, got)
	}

	timeouts := testutil.ToFloat64(collectTimeoutsTotal)
	ObserveCollect(2, 2)
	ObserveCollect(1, 3)
	if got := testutil.ToFloat64(collectTimeoutsTotal); got != timeouts+1 {
		t.Errorf("expected one new collect timeout, got %f", got-timeouts)
	}

	SetBrokerReady(true)
	if got := testutil.ToFloat64(brokerReady); got != 1 {
		t.Errorf("expected broker gauge 1, got %f", got)
	}
	SetBrokerReady(false)
	if got := testutil.ToFloat64(brokerReady); got != 0 {
		t.Errorf("expected broker gauge 0, got %f", got)
	}
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/mw-ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/mw-teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))

	for _, path := range []string{"/mw-ok", "/mw-teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")); got != before+1 {
		t.Errorf("expected one 418 request recorded, got %f", got-before)
	}
	if got := testutil.CollectAndCount(httpRequestDurationSeconds); got < 2 {
		t.Errorf("expected duration series for both routes, got %d", got)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	ready bool
}

func (b fakeBroker) Ready() bool { return b.ready }

func (b fakeBroker) State() messaging.State {
	if b.ready {
		return messaging.StateReady
	}
	return messaging.StateDisconnected
}

type fakePipeline struct {
	mu          sync.Mutex
	dispatchErr error
	prepareErr  error
	results     []models.CrawlResult
	dispatched  []string
	domains     []string
	requestID   string
	released    []string
	expected    int
}

func (p *fakePipeline) PrepareResultDestination(_ context.Context, requestID string) (string, error) {
	if p.prepareErr != nil {
		return "", p.prepareErr
	}
	return messaging.ResultDestination(requestID)
}

func (p *fakePipeline) ReleaseResultDestination(_ context.Context, dest string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, dest)
}

func (p *fakePipeline) Dispatch(_ context.Context, links []string, requestID, _ string, domains []string, _ models.ExtractOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatched = append(p.dispatched, links...)
	p.domains = domains
	p.requestID = requestID
	return p.dispatchErr
}

func (p *fakePipeline) Collect(_ context.Context, _ string, expected int, _ time.Duration) []models.CrawlResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expected = expected
	return p.results
}

func newTestRouter(broker Broker, p *fakePipeline, tracker work.RequestTracker) http.Handler {
	cfg := config.DefaultConfig()
	cfg.Queue.CollectTimeout = time.Second

	r := chi.NewRouter()
	r.Mount("/health", NewHealthHandler(broker).Router())
	r.Route("/api", func(r chi.Router) {
		r.Mount("/health", NewHealthHandler(broker).Router())
		r.Mount("/scrapWebsite", NewScraperHandler(broker, p, p, tracker, cfg).Router())
		r.Mount("/requests", NewWorkManagerHandler(tracker).Router())
	})
	return r
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/scrapWebsite", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestScrapeWebsiteSuccess(t *testing.T) {
	p := &fakePipeline{results: []models.CrawlResult{
		models.NewErrorResult("https://a.com", errors.New("connection refused"), 3),
		(models.CrawlResult{Link: "https://b.com"}).Normalize(),
		(models.CrawlResult{Link: "https://c.com"}).Normalize(),
	}}
	tracker := work.NewMemoryRequestTracker()
	h := newTestRouter(fakeBroker{ready: true}, p, tracker)

	rec := post(t, h, `{"links":"https://a.com, https://b.com,https://c.com","domains":["b.com"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Stats.Total)
	assert.Equal(t, 2, resp.Stats.Successful)
	assert.Equal(t, 1, resp.Stats.Failed)
	assert.Len(t, resp.Results, 3)
	assert.NotEmpty(t, resp.RequestID)

	assert.Equal(t, []string{"https://a.com", "https://b.com", "https://c.com"}, p.dispatched)
	assert.Equal(t, []string{"b.com"}, p.domains)
	assert.Equal(t, 3, p.expected)
	require.Len(t, p.released, 1)

	ids, err := tracker.ListInFlight(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScrapeWebsiteAcceptsLinkArray(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(fakeBroker{ready: true}, p, work.NewMemoryRequestTracker())

	rec := post(t, h, `{"links":["https://a.com"," ","https://b.com"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, p.dispatched)

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stats.Total)
	assert.Equal(t, 0, resp.Stats.Successful)
	assert.NotNil(t, resp.Results)
}

func TestScrapeWebsiteRejections(t *testing.T) {
	tests := []struct {
		name    string
		broker  fakeBroker
		body    string
		code    int
		message string
	}{
		{"broker not ready", fakeBroker{}, `{"links":"https://a.com"}`, http.StatusServiceUnavailable, msgBrokerNotReady},
		{"missing links", fakeBroker{ready: true}, `{}`, http.StatusBadRequest, msgLinksRequired},
		{"empty string", fakeBroker{ready: true}, `{"links":""}`, http.StatusBadRequest, msgLinksRequired},
		{"only separators", fakeBroker{ready: true}, `{"links":" , ,"}`, http.StatusBadRequest, msgNoValidLinks},
		{"empty array", fakeBroker{ready: true}, `{"links":[]}`, http.StatusBadRequest, msgNoValidLinks},
		{"not json", fakeBroker{ready: true}, `links=a`, http.StatusBadRequest, msgInvalidPayload},
		{"wrong links type", fakeBroker{ready: true}, `{"links":42}`, http.StatusBadRequest, msgInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			h := newTestRouter(tt.broker, p, work.NewMemoryRequestTracker())

			rec := post(t, h, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec).Error)
			assert.Empty(t, p.dispatched)
		})
	}
}

func TestScrapeWebsiteValidatesRequestID(t *testing.T) {
	h := newTestRouter(fakeBroker{ready: true}, &fakePipeline{}, work.NewMemoryRequestTracker())

	rec := post(t, h, `{"requestId":"not-a-uuid","links":"https://a.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "RequestID")
}

func TestScrapeWebsiteRejectsRequestAlreadyInFlight(t *testing.T) {
	tracker := work.NewMemoryRequestTracker()
	id := "0190f6f4-3a8e-7c2b-9d3e-4f5a6b7c8d9e"
	require.NoError(t, tracker.Begin(context.Background(), id, time.Minute))

	p := &fakePipeline{}
	h := newTestRouter(fakeBroker{ready: true}, p, tracker)

	rec := post(t, h, fmt.Sprintf(`{"requestId":%q,"links":"https://a.com"}`, id))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, p.dispatched)
}

func TestScrapeWebsiteDispatchFailure(t *testing.T) {
	p := &fakePipeline{dispatchErr: errors.New("publish job to scraping.jobs.p3: timeout")}
	tracker := work.NewMemoryRequestTracker()
	h := newTestRouter(fakeBroker{ready: true}, p, tracker)

	rec := post(t, h, `{"links":"https://a.com"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	assert.Contains(t, resp.Error, "timeout")
	require.NotNil(t, resp.ProcessingTime)
	assert.GreaterOrEqual(t, *resp.ProcessingTime, int64(0))
	assert.Len(t, p.released, 1)

	ids, err := tracker.ListInFlight(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScrapeWebsiteBrokerLostMidRequest(t *testing.T) {
	p := &fakePipeline{prepareErr: common.ErrBrokerUnavailable}
	h := newTestRouter(fakeBroker{ready: true}, p, work.NewMemoryRequestTracker())

	rec := post(t, h, `{"links":"https://a.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, p.dispatched)
}

func TestHealth(t *testing.T) {
	for _, path := range []string{"/health", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			h := newTestRouter(fakeBroker{ready: true}, &fakePipeline{}, work.NewMemoryRequestTracker())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var resp models.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "healthy", resp.Status)
			assert.True(t, resp.QueueConnected)
			assert.Equal(t, "ready", resp.BrokerState)
			assert.Equal(t, serviceName, resp.Service)
			_, err := time.Parse(time.RFC3339, resp.Timestamp)
			assert.NoError(t, err)
		})
	}
}

func TestHealthDegradedWithoutBroker(t *testing.T) {
	h := newTestRouter(fakeBroker{}, &fakePipeline{}, work.NewMemoryRequestTracker())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.QueueConnected)
	assert.Equal(t, "disconnected", resp.BrokerState)
}

func TestRequestsEndpoints(t *testing.T) {
	tracker := work.NewMemoryRequestTracker()
	require.NoError(t, tracker.Begin(context.Background(), "req-1", time.Minute))
	h := newTestRouter(fakeBroker{ready: true}, &fakePipeline{}, tracker)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/requests", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list inFlightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"req-1"}, list.Requests)
	assert.Equal(t, 1, list.Count)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/requests/req-2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status requestStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "req-2", status.RequestID)
	assert.False(t, status.InFlight)
}

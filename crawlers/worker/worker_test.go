package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging/natstest"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/website"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCrawler struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubCrawler) Crawl(_ context.Context, details models.WebDetails) (website.Report, error) {
	s.mu.Lock()
	s.calls = append(s.calls, details.Link)
	s.mu.Unlock()

	if details.Link == "https://panic.com" {
		var pages map[string]int
		pages[details.Link]++
	}
	if details.Link == "https://a.com" {
		return website.Report{ErrorPages: []string{details.Link}}, fmt.Errorf("%w: %s", common.ErrSeedUnreachable, details.Link)
	}
	return website.Report{
		Link:            details.Link,
		CompanyServices: []string{"Consulting services"},
		SocialLinks:     map[string]string{"linkedin": "https://linkedin.com/company/x"},
	}, nil
}

type harness struct {
	broker     *messaging.NatsBroker
	dispatcher *messaging.Dispatcher
	collector  *messaging.Collector
	crawler    *stubCrawler
}

func startHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Nats.RawURL = natstest.RunJetStream(t)
	cfg.Queue.Prefetch = 4

	crawler := &stubCrawler{}
	broker := startWorker(t, cfg, crawler)

	return &harness{
		broker:     broker,
		dispatcher: messaging.NewDispatcher(broker, cfg),
		collector:  messaging.NewCollector(broker),
		crawler:    crawler,
	}
}

// startWorker connects its own broker, as a separate worker process would,
// and runs a worker on it until the test ends.
func startWorker(t *testing.T, cfg config.Config, crawler Crawler) *messaging.NatsBroker {
	t.Helper()

	broker := messaging.NewNatsBroker(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, broker.Connect(ctx))
	require.NoError(t, broker.EnsureTopology(ctx))

	w := New(broker, crawler, messaging.NewDeadLetterer(broker, nil), Options{
		Prefetch:       cfg.Queue.Prefetch,
		JobTimeout:     5 * time.Second,
		PublishTimeout: 2 * time.Second,
	})

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(runCtx)
	}()
	t.Cleanup(func() {
		stop()
		<-done
		_ = broker.Close()
	})
	return broker
}

func (h *harness) streamMsgs(t *testing.T, name string) uint64 {
	t.Helper()
	stream, err := h.broker.GetStream(context.Background(), name)
	require.NoError(t, err)
	info, err := stream.Info(context.Background())
	require.NoError(t, err)
	return info.State.Msgs
}

func TestWorkerProducesOneResultPerJob(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	requestID := uuid.NewString()
	dest, err := h.collector.PrepareResultDestination(ctx, requestID)
	require.NoError(t, err)
	defer h.collector.ReleaseResultDestination(ctx, dest)

	links := []string{"https://a.com", "https://b.com", "https://c.com"}
	require.NoError(t, h.dispatcher.Dispatch(ctx, links, requestID, dest, nil, models.ExtractOptions{}))

	results := h.collector.Collect(ctx, dest, len(links), 15*time.Second)
	require.Len(t, results, 3)

	byLink := make(map[string]models.CrawlResult)
	for _, r := range results {
		byLink[r.Link] = r
	}
	require.Contains(t, byLink, "https://a.com")
	assert.True(t, byLink["https://a.com"].Failed())
	assert.Contains(t, byLink["https://a.com"].Error, "https://a.com")
	assert.Empty(t, byLink["https://a.com"].CompanyServices)
	assert.NotNil(t, byLink["https://a.com"].CompanyServices)

	assert.False(t, byLink["https://b.com"].Failed())
	assert.Equal(t, []string{"Consulting services"}, byLink["https://c.com"].CompanyServices)

	require.Eventually(t, func() bool {
		return h.streamMsgs(t, messaging.WorkStream) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerDeadLettersMalformedJob(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	_, err := h.broker.PublishSync(ctx, &nats.Msg{Subject: messaging.JobSubject(2), Data: []byte("<<not json>>")})
	require.NoError(t, err)
	_, err = h.broker.PublishSync(ctx, &nats.Msg{Subject: messaging.JobSubject(3), Data: []byte(`{"webDetails":{"link":""},"requestId":"r","resultQueue":"q"}`)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.streamMsgs(t, messaging.DeadLetterStream) == 2
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.streamMsgs(t, messaging.WorkStream) == 0
	}, 5*time.Second, 20*time.Millisecond)

	h.crawler.mu.Lock()
	defer h.crawler.mu.Unlock()
	assert.Empty(t, h.crawler.calls)
}

func TestWorkerDeadLettersWhenResultCannotBePublished(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	err := h.dispatcher.Dispatch(ctx, []string{"https://b.com"}, "gone", "scraping.results.gone", nil, models.ExtractOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.streamMsgs(t, messaging.DeadLetterStream) == 1
	}, 10*time.Second, 20*time.Millisecond)

	dlq, err := h.broker.GetStream(ctx, messaging.DeadLetterStream)
	require.NoError(t, err)
	raw, err := dlq.GetLastMsgForSubject(ctx, messaging.DeadLetterSubject(messaging.DeadLetterPublishFailed))
	require.NoError(t, err)
	assert.Equal(t, messaging.DeadLetterPublishFailed, raw.Header.Get(messaging.HeaderDeadLetterReason))
	require.Eventually(t, func() bool {
		return h.streamMsgs(t, messaging.WorkStream) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerPublishesErrorResultWhenCrawlerPanics(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	requestID := uuid.NewString()
	dest, err := h.collector.PrepareResultDestination(ctx, requestID)
	require.NoError(t, err)
	defer h.collector.ReleaseResultDestination(ctx, dest)

	links := []string{"https://panic.com", "https://b.com"}
	require.NoError(t, h.dispatcher.Dispatch(ctx, links, requestID, dest, nil, models.ExtractOptions{}))

	results := h.collector.Collect(ctx, dest, len(links), 15*time.Second)
	require.Len(t, results, 2)

	byLink := make(map[string]models.CrawlResult)
	for _, r := range results {
		byLink[r.Link] = r
	}
	require.Contains(t, byLink, "https://panic.com")
	assert.True(t, byLink["https://panic.com"].Failed())
	assert.Contains(t, byLink["https://panic.com"].Error, "panic")
	assert.False(t, byLink["https://b.com"].Failed())

	require.Eventually(t, func() bool {
		return h.streamMsgs(t, messaging.WorkStream) == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, h.streamMsgs(t, messaging.DeadLetterStream))
}

func TestRepublishedResultIsDropped(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	requestID := uuid.NewString()
	dest, err := h.collector.PrepareResultDestination(ctx, requestID)
	require.NoError(t, err)
	defer h.collector.ReleaseResultDestination(ctx, dest)

	w := New(h.broker, h.crawler, nil, Options{})
	job := models.Job{WebDetails: models.WebDetails{Link: "https://b.com"}, RequestID: requestID, ResultQueue: dest}
	result := models.CrawlResult{Link: "https://b.com"}.Normalize()

	require.NoError(t, w.publish(ctx, job, result, "job-7"))
	require.NoError(t, w.publish(ctx, job, result, "job-7"))
	require.NoError(t, w.publish(ctx, job, models.CrawlResult{Link: "https://c.com"}.Normalize(), "job-8"))

	stream, err := messaging.ResultStream(dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.streamMsgs(t, stream))
}

// gatedCrawler blocks every crawl until release is closed and records how many
// ran at once.
type gatedCrawler struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (g *gatedCrawler) Crawl(ctx context.Context, details models.WebDetails) (website.Report, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return website.Report{}, ctx.Err()
	}
	return website.Report{Link: details.Link}, nil
}

func TestWorkerProcessesEachUseTheirOwnPrefetch(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Nats.RawURL = natstest.RunJetStream(t)
	cfg.Queue.Prefetch = 2
	cfg.Queue.BatchDelay = time.Millisecond

	crawler := &gatedCrawler{release: make(chan struct{})}
	broker := startWorker(t, cfg, crawler)
	startWorker(t, cfg, crawler)

	ctx := context.Background()
	consumer, err := broker.CreateConsumer(ctx, messaging.WorkStream, broker.WorkConsumerConfig())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		info, err := consumer.Info(ctx)
		return err == nil && info.NumWaiting >= 2
	}, 5*time.Second, 20*time.Millisecond)

	collector := messaging.NewCollector(broker)
	requestID := uuid.NewString()
	dest, err := collector.PrepareResultDestination(ctx, requestID)
	require.NoError(t, err)
	defer collector.ReleaseResultDestination(ctx, dest)

	links := []string{"https://a.com", "https://b.com", "https://c.com", "https://d.com"}
	require.NoError(t, messaging.NewDispatcher(broker, cfg).Dispatch(ctx, links, requestID, dest, nil, models.ExtractOptions{}))

	require.Eventually(t, func() bool {
		return crawler.peak.Load() == 4
	}, 5*time.Second, 20*time.Millisecond)
	close(crawler.release)

	results := collector.Collect(ctx, dest, len(links), 10*time.Second)
	assert.Len(t, results, 4)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultConfig())
	assert.Equal(t, 20, opts.Prefetch)
	assert.Equal(t, 270*time.Second, opts.JobTimeout)
}

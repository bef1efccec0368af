package website

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned pages and records every URL it was asked for.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Page, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	body, ok := f.pages[rawURL]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", common.ErrFetchFailed, rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &fetcher.Page{URL: u, Body: []byte(body)}, nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func acmeSite() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{
		"https://acme.com": `<html><body>
			<h1>Acme Consulting Services</h1>
			<a href="/">Home</a>
			<a href="/about">About</a>
			<a href="/about#team">Team</a>
			<a href="/services">Services</a>
			<a href="/broken">Broken</a>
			<a href="https://other.com/page">Partner</a>
			<img src="/img/logo.png">
		</body></html>`,
		"https://acme.com/about": `<html><body>
			<p>Our mission is quality. Write to sales@acme.com today.</p>
			<a href="/deep">Deeper</a>
			<img src="/img/logo-alt.png">
		</body></html>`,
		"https://acme.com/services": `<html><body>
			<ul><li>Cloud development</li></ul>
			<a href="https://www.linkedin.com/company/acme">LinkedIn</a>
		</body></html>`,
		"https://acme.com/deep":   `<html><body><h2>Hidden services</h2></body></html>`,
		"https://other.com/page": `<html><body><h2>Other services</h2></body></html>`,
	}}
}

func TestCrawlFollowsInternalLinksOneLevel(t *testing.T) {
	f := acmeSite()
	c := NewCrawler(f, Options{Concurrency: 4})

	report, err := c.Crawl(context.Background(), models.WebDetails{Link: "acme.com"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"https://acme.com",
		"https://acme.com/about",
		"https://acme.com/services",
		"https://acme.com/broken",
	}, f.calls())

	assert.Equal(t, "https://acme.com", report.Link)
	assert.Equal(t, []string{"https://acme.com/broken"}, report.ErrorPages)
	assert.Contains(t, report.CompanyServices, "Acme Consulting Services")
	assert.Contains(t, report.CompanyServices, "Cloud development")
	assert.NotContains(t, report.CompanyServices, "Hidden services")
	assert.NotContains(t, report.CompanyServices, "Other services")
	assert.Contains(t, report.AboutList, "Our mission is quality. Write to sales@acme.com today.")
	require.Len(t, report.EmailContacts, 1)
	assert.Equal(t, "sales@acme.com", report.EmailContacts[0].Value)
	assert.Equal(t, "https://www.linkedin.com/company/acme", report.SocialLinks["linkedin"])
	assert.Equal(t, "/img/logo.png", report.Logo)
}

func TestCrawlSeedFailure(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{}}
	c := NewCrawler(f, Options{})

	report, err := c.Crawl(context.Background(), models.WebDetails{Link: "https://down.example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrSeedUnreachable))
	assert.True(t, errors.Is(err, common.ErrFetchFailed))
	assert.Equal(t, []string{"https://down.example.com"}, report.ErrorPages)
	assert.Len(t, f.calls(), 1)
}

func TestCrawlRespectsOptions(t *testing.T) {
	off := false
	c := NewCrawler(acmeSite(), Options{})

	report, err := c.Crawl(context.Background(), models.WebDetails{
		Link: "https://acme.com",
		ExtractOptions: models.ExtractOptions{
			SocialLinks: &off,
			Logo:        &off,
			Contacts:    &off,
		},
	})
	require.NoError(t, err)

	assert.Empty(t, report.SocialLinks)
	assert.Empty(t, report.Logo)
	assert.Empty(t, report.EmailContacts)
	assert.NotEmpty(t, report.CompanyServices)

	result := report.ToResult("https://acme.com", 42)
	assert.Equal(t, int64(42), result.ProcessingTime)
	assert.NotNil(t, result.SocialLinks)
	assert.NotNil(t, result.PhoneContacts)
	assert.False(t, result.Failed())
}

// countingFetcher tracks the peak number of concurrent fetches.
type countingFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	total    atomic.Int32
	links    int
}

func (f *countingFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Page, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	f.total.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	u, _ := url.Parse(rawURL)
	if u.Path == "" {
		body := "<html><body>"
		for i := range f.links {
			body += fmt.Sprintf(`<a href="/p%d">p%d</a>`, i, i)
		}
		return &fetcher.Page{URL: u, Body: []byte(body + "</body></html>")}, nil
	}

	time.Sleep(5 * time.Millisecond)
	return &fetcher.Page{URL: u, Body: []byte("<html><body><p>page</p></body></html>")}, nil
}

func TestCrawlBoundsFanOut(t *testing.T) {
	f := &countingFetcher{links: 50}
	c := NewCrawler(f, Options{Concurrency: 3, MaxInternalLinks: 20})

	_, err := c.Crawl(context.Background(), models.WebDetails{Link: "https://wide.example.com"})
	require.NoError(t, err)

	assert.Equal(t, int32(21), f.total.Load())
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
}

func TestCrawlUsesRedirectedOrigin(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<html><body><h1>Home services</h1><a href="%s/contact">Contact</a></body></html>`, target.URL)
		case "/contact":
			fmt.Fprint(w, `<html><body><p>Mail hello@acme.com now.</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer target.Close()

	origin := httptest.NewServer(http.RedirectHandler(target.URL+"/", http.StatusMovedPermanently))
	defer origin.Close()

	c := NewCrawler(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 2 * time.Second, MaxRedirects: 3}), Options{})
	report, err := c.Crawl(context.Background(), models.WebDetails{Link: origin.URL})
	require.NoError(t, err)

	assert.Empty(t, report.ErrorPages)
	assert.Contains(t, report.CompanyServices, "Home services")
	require.Len(t, report.EmailContacts, 1)
	assert.Equal(t, "hello@acme.com", report.EmailContacts[0].Value)
}

func TestOrderedSetKeepsFirstOccurrence(t *testing.T) {
	s := NewOrderedSet()
	s.Add("b", "a", "b", "c", "a")
	assert.Equal(t, []string{"b", "a", "c"}, s.Items())
	assert.Equal(t, 3, s.Len())
}

package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// BrowserOptions configures the headless browser fetcher.
type BrowserOptions struct {
	// ControlURL connects to an already running browser; empty launches a local one.
	ControlURL     string
	Timeout        time.Duration
	MaxConcurrency int
}

// BrowserFetcher renders pages in a headless browser, for sites that build their
// content with JavaScript. Pages are reused through a rod page pool.
type BrowserFetcher struct {
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	timeout  time.Duration
}

// NewBrowserFetcher connects to the browser and prepares the page pool.
func NewBrowserFetcher(opts BrowserOptions) (*BrowserFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}

	browser := rod.New()
	if opts.ControlURL != "" {
		browser = browser.ControlURL(opts.ControlURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &BrowserFetcher{
		browser:  browser,
		pagePool: rod.NewPagePool(opts.MaxConcurrency),
		timeout:  opts.Timeout,
	}, nil
}

func (f *BrowserFetcher) createPage() (*rod.Page, error) {
	incognito, err := f.browser.Incognito()
	if err != nil {
		log.Error().Err(err).Msg("Error creating incognito page")
		return nil, err
	}
	return incognito.Page(proto.TargetCreateTarget{})
}

// Fetch navigates to rawURL, waits for the page to settle and returns the rendered HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	page, err := f.pagePool.Get(f.createPage)
	if err != nil {
		return nil, fetchError(rawURL, err)
	}
	defer f.pagePool.Put(page)

	p := page.Context(ctx).Timeout(f.timeout)
	defer p.CancelTimeout()
	if err := p.Navigate(rawURL); err != nil {
		return nil, fetchError(rawURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fetchError(rawURL, err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fetchError(rawURL, err)
	}

	final := rawURL
	if info, err := p.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	u, err := url.Parse(final)
	if err != nil {
		return nil, fetchError(rawURL, err)
	}

	return &Page{URL: u, Body: []byte(html)}, nil
}

// Close releases pooled pages and the browser connection.
func (f *BrowserFetcher) Close() error {
	f.pagePool.Cleanup(func(p *rod.Page) {
		if err := p.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing browser page")
		}
	})
	return f.browser.Close()
}

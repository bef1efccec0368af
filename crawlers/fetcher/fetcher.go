// Package fetcher downloads pages for the crawl controller.
package fetcher

import (
	"context"
	"fmt"
	"net/url"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
)

// Page is a fetched document. URL is the final URL after redirects.
type Page struct {
	URL  *url.URL
	Body []byte
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// New returns the fetcher selected by cfg.Crawl.FetchMode.
func New(cfg config.Config) (Fetcher, error) {
	switch cfg.Crawl.FetchMode {
	case "", "http":
		return NewHTTPFetcher(HTTPOptions{
			Timeout:      cfg.Crawl.FetchTimeout,
			MaxRedirects: cfg.Crawl.MaxRedirects,
			UserAgent:    cfg.Crawl.UserAgent,
		}), nil
	case "browser":
		f, err := NewBrowserFetcher(BrowserOptions{
			ControlURL:     cfg.Crawl.BrowserURL,
			Timeout:        cfg.Crawl.FetchTimeout,
			MaxConcurrency: cfg.Crawl.Concurrency,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: unknown fetch mode %q", common.ErrInvalidConfig, cfg.Crawl.FetchMode)
	}
}

func fetchError(rawURL string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrFetchFailed, rawURL, err)
}

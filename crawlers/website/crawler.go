// Package website crawls one company website: the seed page plus the internal
// pages it links to, one level deep, merging what the extractor finds.
package website

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/extractor"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/fetcher"
	gq "github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

// Options bounds a single site crawl.
type Options struct {
	// Concurrency caps simultaneous internal page fetches.
	Concurrency int
	// MaxInternalLinks caps how many internal links from the seed are followed.
	MaxInternalLinks int
	BusinessMode     bool
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 16
	}
	if o.MaxInternalLinks <= 0 {
		o.MaxInternalLinks = 200
	}
	return o
}

// Report is the merged, post-processed outcome of one site crawl.
type Report struct {
	Link            string
	CompanyServices []string
	KeyIndicators   []string
	AboutList       []string
	Addresses       []string
	PhoneContacts   []models.Contact
	EmailContacts   []models.Contact
	SocialLinks     map[string]string
	Logo            string
	ErrorPages      []string
}

// ToResult converts the report into the wire result for link.
func (r Report) ToResult(link string, processingTime int64) models.CrawlResult {
	return models.CrawlResult{
		Link:            link,
		ProcessingTime:  processingTime,
		AboutList:       r.AboutList,
		PhoneContacts:   r.PhoneContacts,
		EmailContacts:   r.EmailContacts,
		Addresses:       r.Addresses,
		CompanyServices: r.CompanyServices,
		KeyIndicators:   r.KeyIndicators,
		SocialLinks:     r.SocialLinks,
		Logo:            r.Logo,
		ErrorPages:      r.ErrorPages,
	}.Normalize()
}

type Crawler struct {
	fetcher fetcher.Fetcher
	opts    Options
}

func NewCrawler(f fetcher.Fetcher, opts Options) *Crawler {
	return &Crawler{fetcher: f, opts: opts.withDefaults()}
}

// Crawl fetches the seed page, then every internal link it points to. Failed
// internal pages are listed in ErrorPages and never abort the crawl. A seed that
// cannot be fetched or parsed returns ErrSeedUnreachable.
func (c *Crawler) Crawl(ctx context.Context, details models.WebDetails) (Report, error) {
	seed := extractor.NormalizeSeed(details.Link)
	state := newCrawlState()

	seedURL, err := url.Parse(seed)
	if err != nil || seedURL.Host == "" {
		state.recordError(seed)
		return c.report(seed, state, details.Domains), fmt.Errorf("%w: %s: invalid url", common.ErrSeedUnreachable, seed)
	}

	page, err := c.visit(ctx, state, seed, details)
	if err != nil {
		return c.report(seed, state, details.Domains), fmt.Errorf("%w: %w", common.ErrSeedUnreachable, err)
	}

	// Redirects may move the seed to another host, e.g. the www variant.
	baseOrigin := extractor.Origin(page.url.String())
	state.markVisited(page.url.String())

	internal := c.internalLinks(state, page.links, baseOrigin)
	log.Debug().
		Str("link", seed).
		Str("origin", baseOrigin).
		Int("internal_links", len(internal)).
		Msg("Seed page crawled")

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, link := range internal {
		g.Go(func() error {
			if _, err := c.visit(ctx, state, link, details); err != nil {
				log.Debug().Err(err).Str("link", link).Msg("Internal page failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return c.report(seed, state, details.Domains), nil
}

type visitedPage struct {
	url   *url.URL
	links []string
}

// visit fetches and extracts one page and merges the result into state. Pages
// already visited are skipped.
func (c *Crawler) visit(ctx context.Context, state *crawlState, pageURL string, details models.WebDetails) (*visitedPage, error) {
	if !state.markVisited(pageURL) {
		return nil, nil
	}

	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		state.recordError(pageURL)
		metrics.ObservePage(pageURL, "error")
		return nil, err
	}

	doc, err := gq.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		state.recordError(pageURL)
		metrics.ObservePage(pageURL, "parse_error")
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	metrics.ObservePage(pageURL, "success")

	opts := details.ExtractOptions
	ex := extractor.Extract(doc, extractor.Input{
		IsAboutPage:  extractor.IsAboutPage(pageURL),
		BusinessMode: c.opts.BusinessMode,
		Domains:      details.Domains,
		Options:      opts,
	})

	var social map[string]string
	if opts.SocialLinksEnabled() {
		social = extractor.ExtractSocialLinks(doc)
	}

	logo := mo.None[string]()
	if opts.LogoEnabled() && !state.hasLogo() {
		if src, ok := extractor.ExtractLogo(doc); ok {
			logo = mo.Some(src)
		}
	}

	state.merge(ex, social, logo)

	return &visitedPage{
		url:   page.URL,
		links: extractor.ExtractLinks(doc, page.URL),
	}, nil
}

// internalLinks keeps same-origin links not yet visited, up to MaxInternalLinks.
func (c *Crawler) internalLinks(state *crawlState, links []string, baseOrigin string) []string {
	internal := lo.Filter(lo.Uniq(links), func(link string, _ int) bool {
		return extractor.IsInternalLink(link, baseOrigin) && !state.isVisited(link)
	})
	if len(internal) > c.opts.MaxInternalLinks {
		log.Debug().
			Int("found", len(internal)).
			Int("max", c.opts.MaxInternalLinks).
			Msg("Capping internal links")
		internal = internal[:c.opts.MaxInternalLinks]
	}
	return internal
}

func (c *Crawler) report(link string, state *crawlState, domains []string) Report {
	state.mu.Lock()
	defer state.mu.Unlock()

	return Report{
		Link:            link,
		CompanyServices: extractor.Trim(cleanAll(state.services.Items()), extractor.ServicesBudget),
		KeyIndicators:   extractor.Trim(cleanAll(state.indicators.Items()), extractor.DefaultBudget),
		AboutList:       extractor.Trim(cleanAll(state.about.Items()), extractor.DefaultBudget),
		Addresses:       extractor.Trim(cleanAll(state.addresses.Items()), extractor.DefaultBudget),
		PhoneContacts:   cleanContacts(state.phones.items),
		EmailContacts:   extractor.PrioritizeEmails(cleanContacts(state.emails.items), domains),
		SocialLinks:     lo.Assign(state.social),
		Logo:            state.logo.OrElse(""),
		ErrorPages:      append([]string(nil), state.errorPages...),
	}
}

func cleanAll(items []string) []string {
	cleaned := lo.Map(items, func(item string, _ int) string {
		return extractor.CleanText(item)
	})
	return lo.Uniq(lo.Compact(cleaned))
}

func cleanContacts(contacts []models.Contact) []models.Contact {
	return lo.Map(contacts, func(c models.Contact, _ int) models.Contact {
		return models.Contact{Value: c.Value, Text: extractor.CleanText(c.Text)}
	})
}

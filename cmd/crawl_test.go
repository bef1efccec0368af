package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/website"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCrawler struct{}

func (stubCrawler) Crawl(_ context.Context, details models.WebDetails) (website.Report, error) {
	if details.Link == "https://down.example" {
		return website.Report{}, errors.New("dial tcp: connection refused")
	}
	return website.Report{
		Link:            details.Link,
		CompanyServices: []string{"Consulting"},
		EmailContacts:   []models.Contact{{Value: "info@" + details.Domains[0], Text: "Email us"}},
	}, nil
}

func TestCrawlLocallyKeepsLinkOrder(t *testing.T) {
	links := []string{"https://a.example", "https://down.example", "https://b.example"}

	results, err := crawlLocally(context.Background(), stubCrawler{}, links, []string{"a.example"}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, link := range links {
		assert.Equal(t, link, results[i].Link)
	}
	assert.Empty(t, results[0].Error)
	assert.Equal(t, []string{"Consulting"}, results[0].CompanyServices)
	assert.Contains(t, results[1].Error, "connection refused")
	assert.Empty(t, results[2].Error)
}

func TestCrawlLocallyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := crawlLocally(ctx, stubCrawler{}, []string{"https://a.example"}, []string{"a.example"}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://a.example", results[0].Link)
}

package website

import (
	"strings"
	"sync"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/extractor"
	"github.com/samber/mo"
)

// OrderedSet keeps the first occurrence of each value in insertion order.
type OrderedSet struct {
	seen  map[string]struct{}
	items []string
}

func NewOrderedSet() *OrderedSet {
	return &OrderedSet{seen: make(map[string]struct{})}
}

// Add inserts values not already present.
func (s *OrderedSet) Add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *OrderedSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the values in insertion order.
func (s *OrderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// contactSet deduplicates contacts by value.
type contactSet struct {
	seen  map[string]struct{}
	items []models.Contact
}

func newContactSet() *contactSet {
	return &contactSet{seen: make(map[string]struct{})}
}

func (s *contactSet) Add(contacts ...models.Contact) {
	for _, c := range contacts {
		if _, ok := s.seen[c.Value]; ok {
			continue
		}
		s.seen[c.Value] = struct{}{}
		s.items = append(s.items, c)
	}
}

// crawlState is owned by one Crawl call. Page fetches run concurrently, so every
// access goes through mu.
type crawlState struct {
	mu sync.Mutex

	visited    map[string]struct{}
	services   *OrderedSet
	indicators *OrderedSet
	about      *OrderedSet
	addresses  *OrderedSet
	phones     *contactSet
	emails     *contactSet
	social     map[string]string
	logo       mo.Option[string]
	errorPages []string
}

func newCrawlState() *crawlState {
	return &crawlState{
		visited:    make(map[string]struct{}),
		services:   NewOrderedSet(),
		indicators: NewOrderedSet(),
		about:      NewOrderedSet(),
		addresses:  NewOrderedSet(),
		phones:     newContactSet(),
		emails:     newContactSet(),
		social:     make(map[string]string),
		logo:       mo.None[string](),
	}
}

// markVisited records pageURL and reports whether it was new.
func (s *crawlState) markVisited(pageURL string) bool {
	key := visitKey(pageURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[key]; ok {
		return false
	}
	s.visited[key] = struct{}{}
	return true
}

func (s *crawlState) isVisited(pageURL string) bool {
	key := visitKey(pageURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visited[key]
	return ok
}

// visitKey treats "https://a.com" and "https://a.com/" as the same page.
func visitKey(pageURL string) string {
	return strings.TrimSuffix(pageURL, "/")
}

func (s *crawlState) recordError(pageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorPages = append(s.errorPages, pageURL)
}

func (s *crawlState) hasLogo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logo.IsPresent()
}

func (s *crawlState) merge(ex extractor.Extraction, social map[string]string, logo mo.Option[string]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services.Add(ex.Services...)
	s.indicators.Add(ex.Indicators...)
	s.about.Add(ex.About...)
	s.addresses.Add(ex.Addresses...)
	s.phones.Add(ex.PhoneContacts...)
	s.emails.Add(ex.EmailContacts...)
	for network, href := range social {
		s.social[network] = href
	}
	if s.logo.IsAbsent() && logo.IsPresent() {
		s.logo = logo
	}
}

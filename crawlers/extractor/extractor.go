// Package extractor pulls business signals out of a parsed HTML page.
//
// Extraction is driven by the rule tables in rules.go: an ordered selector
// list, keyword lists and compiled patterns. Nothing here performs I/O.
package extractor

import (
	"net/url"
	"strings"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	gq "github.com/PuerkitoBio/goquery"
)

// Input carries the per-page switches for Extract.
type Input struct {
	// IsAboutPage makes every text element count as about text.
	IsAboutPage bool
	// BusinessMode collects services only.
	BusinessMode bool
	// Domains are email domain hints; matching emails are listed first.
	Domains []string
	Options models.ExtractOptions
}

// Extraction is what one page yielded. Lists keep document order and may repeat
// values found in several elements; callers merge them into sets.
type Extraction struct {
	Services      []string
	Indicators    []string
	About         []string
	PhoneContacts []models.Contact
	EmailContacts []models.Contact
	Addresses     []string
}

// Extract walks Selectors in order and applies every enabled category to each element's text.
func Extract(doc *gq.Document, in Input) Extraction {
	var out Extraction

	opts := in.Options
	wantServices := opts.ServicesEnabled()
	wantAbout := opts.AboutEnabled() && !in.BusinessMode
	wantIndicators := opts.IndicatorsEnabled() && !in.BusinessMode
	wantContacts := opts.ContactsEnabled() && !in.BusinessMode
	wantAddresses := opts.AddressesEnabled() && !in.BusinessMode

	seenContacts := make(map[string]struct{})

	for _, selector := range Selectors {
		if selector == addressSelector {
			if !wantAddresses {
				continue
			}
			doc.Find(selector).Each(func(_ int, s *gq.Selection) {
				if !isLeafLastChild(s) {
					return
				}
				text := strings.TrimSpace(s.Text())
				if text != "" && addressRegex.MatchString(text) {
					out.Addresses = append(out.Addresses, text)
				}
			})
			continue
		}

		if !wantServices && !wantAbout && !wantIndicators && !wantContacts {
			continue
		}

		doc.Find(selector).Each(func(_ int, s *gq.Selection) {
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}

			if wantServices && containsAny(text, ServiceKeywords) {
				out.Services = append(out.Services, text)
			}
			if wantAbout && (in.IsAboutPage || containsAny(text, AboutKeywords)) {
				out.About = append(out.About, text)
			}
			if wantIndicators {
				out.Indicators = append(out.Indicators, ExtractKeyIndicators(text)...)
			}
			if wantContacts {
				phones, emails := ExtractContacts(text)
				out.PhoneContacts = appendNewContacts(out.PhoneContacts, phones, seenContacts)
				out.EmailContacts = appendNewContacts(out.EmailContacts, emails, seenContacts)
			}
		})
	}

	out.EmailContacts = PrioritizeEmails(out.EmailContacts, in.Domains)
	return out
}

// ExtractSocialLinks maps network name to href. A later anchor for the same network replaces an earlier one.
func ExtractSocialLinks(doc *gq.Document) map[string]string {
	links := make(map[string]string)
	doc.Find("a[href]").Each(func(_ int, s *gq.Selection) {
		href, _ := s.Attr("href")
		if network, ok := IsSocialLink(href); ok {
			links[network] = href
		}
	})
	return links
}

// ExtractLogo returns the src of the first image that looks like a logo.
func ExtractLogo(doc *gq.Document) (string, bool) {
	var logo string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *gq.Selection) bool {
		src, _ := s.Attr("src")
		if src != "" && IsLogo(src) {
			logo = src
			return false
		}
		return true
	})
	return logo, logo != ""
}

// ExtractLinks resolves every anchor href against the page URL, honouring <base href>.
// Fragments are dropped so in-page anchors do not count as separate pages.
func ExtractLinks(doc *gq.Document, pageURL *url.URL) []string {
	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
			base = u
		}
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *gq.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		links = append(links, u.String())
	})
	return links
}

func isLeafLastChild(s *gq.Selection) bool {
	return s.Is(":last-child") && s.Find("div").Length() == 0
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func appendNewContacts(dst, src []models.Contact, seen map[string]struct{}) []models.Contact {
	for _, c := range src {
		if _, ok := seen[c.Value]; ok {
			continue
		}
		seen[c.Value] = struct{}{}
		dst = append(dst, c)
	}
	return dst
}

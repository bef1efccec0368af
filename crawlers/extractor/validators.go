package extractor

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether raw is an absolute http(s) URL with a dotted host.
func IsValidURL(raw string) bool {
	return urlRegex.MatchString(raw) && strings.Contains(raw, "://")
}

// NormalizeSeed prefixes https:// to links given without a scheme.
func NormalizeSeed(link string) string {
	link = strings.TrimSpace(link)
	if IsValidURL(link) || strings.Contains(link, "://") {
		return link
	}
	return "https://" + strings.TrimPrefix(link, "//")
}

// Origin returns scheme://host[:port] with default ports dropped, or "" when raw has no host.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return originOf(u)
}

func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	return scheme + "://" + host
}

// IsInternalLink reports whether link shares the origin baseOrigin.
func IsInternalLink(link, baseOrigin string) bool {
	origin := Origin(link)
	return origin != "" && origin == baseOrigin
}

// IsSocialLink returns the network an href points to. Share links are ignored.
func IsSocialLink(href string) (string, bool) {
	for _, m := range socialRegex.FindAllStringSubmatchIndex(href, -1) {
		if shareRegex.MatchString(href[m[3]:]) {
			continue
		}
		return href[m[2]:m[3]], true
	}
	return "", false
}

// IsLogo reports whether an image source looks like a logo file.
func IsLogo(src string) bool {
	return logoRegex.MatchString(src)
}

// IsAboutPage reports whether a page URL hints at an about page.
func IsAboutPage(pageURL string) bool {
	for _, hint := range AboutPathHints {
		if strings.Contains(pageURL, hint) {
			return true
		}
	}
	return false
}

// CleanText removes line breaks and surrounding whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(lineBreakRegex.ReplaceAllString(s, ""))
}

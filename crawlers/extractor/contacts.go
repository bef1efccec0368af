package extractor

import (
	"strings"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
)

// ExtractContacts finds phone numbers and email addresses in text. Each value is
// reported once, with the first ContextLength characters of the cleaned text.
func ExtractContacts(text string) (phones, emails []models.Contact) {
	matches := contactRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	context := truncateRunes(CleanText(text), ContextLength)
	seen := make(map[string]struct{}, len(matches))
	for _, value := range matches {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}

		contact := models.Contact{Value: value, Text: context}
		if strings.Contains(value, "@") {
			emails = append(emails, contact)
		} else {
			phones = append(phones, contact)
		}
	}
	return phones, emails
}

// PrioritizeEmails moves emails whose domain contains one of the hints to the front,
// keeping relative order otherwise. Hints may be written with or without a leading "@".
func PrioritizeEmails(emails []models.Contact, domains []string) []models.Contact {
	hints := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			hints = append(hints, d)
		}
	}
	if len(hints) == 0 || len(emails) < 2 {
		return emails
	}

	matched := make([]models.Contact, 0, len(emails))
	rest := make([]models.Contact, 0, len(emails))
	for _, e := range emails {
		if emailMatchesDomain(e.Value, hints) {
			matched = append(matched, e)
		} else {
			rest = append(rest, e)
		}
	}
	return append(matched, rest...)
}

func emailMatchesDomain(email string, hints []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, h := range hints {
		if strings.Contains(domain, h) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

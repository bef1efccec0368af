package extractor

import "regexp"

// Selectors are visited in this order for every page. Only "div" feeds address detection;
// every other selector feeds services, about text, key indicators and contacts.
var Selectors = []string{"h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "span", "a", "div"}

const addressSelector = "div"

// ServiceKeywords mark an element as describing something the company offers.
var ServiceKeywords = []string{
	"service",
	"services",
	"solution",
	"solutions",
	"we offer",
	"we provide",
	"what we do",
	"our expertise",
	"specialize",
	"specialise",
	"consulting",
	"development",
	"installation",
	"maintenance",
	"repair",
	"manufacturing",
	"distribution",
	"training",
	"management",
	"outsourcing",
}

// AboutKeywords mark an element as describing the company itself.
var AboutKeywords = []string{
	"about us",
	"about the company",
	"who we are",
	"our story",
	"our mission",
	"our vision",
	"our values",
	"our history",
	"our team",
	"founded in",
	"established in",
	"since 19",
	"since 20",
	"headquartered",
}

// AboutPathHints mark a page URL as an about page.
var AboutPathHints = []string{"about", "who-we-are"}

// SocialNetworks recognised in anchor hrefs.
var SocialNetworks = []string{"linkedin", "facebook", "instagram", "twitter", "youtube"}

// ContextLength is the number of characters of element text kept next to a contact.
const ContextLength = 50

// Default truncation budgets.
const (
	DefaultBudget  = 5000
	ServicesBudget = 10000
)

var (
	urlRegex = regexp.MustCompile(`^(https?://)?([\w-]+\.)+[\w-]+(:\d+)?(/\S*)?$`)

	contactRegex = regexp.MustCompile(`((?:\+\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4})|([a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)

	addressRegex = regexp.MustCompile(`(?:(?:\d+(?:[ ,-]\w+)+)(?:,\s+\w{2,}(?:-\w+)*)?,?\s+\d{5}(?:,\s+[A-Z]{2})?|(?:[A-Z][a-z]+(?: St\.| Ave\.| Rd\.| Blvd\.| Ln\.| Dr\.)?,\s+\w{2,}(?:-\w+)*)?\s+\d{5}(?:,\s+[A-Z]{2})?$)+$`)

	// numberRegex finds the start of a key indicator; the phrase end is located by scanIndicatorEnd.
	numberRegex = regexp.MustCompile(`\b\d+\b`)

	socialRegex = regexp.MustCompile(`\b(linkedin|facebook|instagram|twitter|youtube)\b`)
	shareRegex  = regexp.MustCompile(`\bshare\b`)

	logoRegex = regexp.MustCompile(`(?i)logo.*\.(png|jpg|jpeg|gif|bmp|svg|webp)`)

	lineBreakRegex = regexp.MustCompile(`[\r\n]`)
)

package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// LinkList accepts either a comma-separated string or a JSON array of strings.
type LinkList []string

func (l *LinkList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "\"") {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*l = nil
			return nil
		}
		*l = SplitLinks(raw)
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var raw []string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*l = cleanLinks(raw)
		return nil
	}

	return errors.New("links must be a string or an array of strings")
}

// SplitLinks splits a comma-separated link list, trimming entries and dropping empty ones.
func SplitLinks(raw string) []string {
	return cleanLinks(strings.Split(raw, ","))
}

func cleanLinks(raw []string) []string {
	links := make([]string, 0, len(raw))
	for _, link := range raw {
		link = strings.TrimSpace(link)
		if link != "" {
			links = append(links, link)
		}
	}
	return links
}

// ExtractOptions toggles extraction categories. A nil field means enabled.
type ExtractOptions struct {
	Services    *bool `json:"services,omitempty"`
	About       *bool `json:"about,omitempty"`
	Indicators  *bool `json:"indicators,omitempty"`
	Contacts    *bool `json:"contacts,omitempty"`
	Addresses   *bool `json:"addresses,omitempty"`
	SocialLinks *bool `json:"socialLinks,omitempty"`
	Logo        *bool `json:"logo,omitempty"`
}

// UnmarshalJSON also honours the singular "contact" and "address" keys used by older clients.
func (o *ExtractOptions) UnmarshalJSON(data []byte) error {
	type plain ExtractOptions
	var aux struct {
		plain
		Contact *bool `json:"contact"`
		Address *bool `json:"address"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*o = ExtractOptions(aux.plain)
	if o.Contacts == nil {
		o.Contacts = aux.Contact
	}
	if o.Addresses == nil {
		o.Addresses = aux.Address
	}
	return nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}

func (o ExtractOptions) ServicesEnabled() bool    { return enabled(o.Services) }
func (o ExtractOptions) AboutEnabled() bool       { return enabled(o.About) }
func (o ExtractOptions) IndicatorsEnabled() bool  { return enabled(o.Indicators) }
func (o ExtractOptions) ContactsEnabled() bool    { return enabled(o.Contacts) }
func (o ExtractOptions) AddressesEnabled() bool   { return enabled(o.Addresses) }
func (o ExtractOptions) SocialLinksEnabled() bool { return enabled(o.SocialLinks) }
func (o ExtractOptions) LogoEnabled() bool        { return enabled(o.Logo) }

// CrawlRequest is one batch of links submitted at the HTTP boundary.
// RequestID is optional; the server generates one when it is empty.
type CrawlRequest struct {
	RequestID      string         `json:"requestId" validate:"omitempty,uuid"`
	Links          LinkList       `json:"links"`
	Domains        []string       `json:"domains,omitempty" validate:"omitempty,dive,required,max=253"`
	ExtractOptions ExtractOptions `json:"extractOptions"`
}

// WebDetails is the per-link part of a job.
type WebDetails struct {
	Link           string         `json:"link"`
	Domains        []string       `json:"domains,omitempty"`
	ExtractOptions ExtractOptions `json:"extractOptions"`
}

// Job is the payload published to the work queue, one per link.
type Job struct {
	WebDetails  WebDetails `json:"webDetails"`
	RequestID   string     `json:"requestId"`
	ResultQueue string     `json:"resultQueue"`
}

// Validate reports whether a decoded job carries enough to be processed.
func (j Job) Validate() error {
	if strings.TrimSpace(j.WebDetails.Link) == "" {
		return errors.New("job has no link")
	}
	if j.RequestID == "" {
		return errors.New("job has no request id")
	}
	if j.ResultQueue == "" {
		return errors.New("job has no result queue")
	}
	return nil
}

// Contact is one phone number or email address with the text it was found in.
type Contact struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// CrawlResult is the outcome of one job. Exactly one is produced per job.
type CrawlResult struct {
	Link            string            `json:"link"`
	ProcessingTime  int64             `json:"processingTime"`
	AboutList       []string          `json:"aboutList"`
	PhoneContacts   []Contact         `json:"phoneContacts"`
	EmailContacts   []Contact         `json:"emailContacts"`
	Addresses       []string          `json:"addresses"`
	CompanyServices []string          `json:"companyServices"`
	KeyIndicators   []string          `json:"keyIndicators"`
	SocialLinks     map[string]string `json:"socialLinks"`
	Logo            string            `json:"logo"`
	ErrorPages      []string          `json:"errorPages,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// NewErrorResult builds a result carrying only the link and the error message.
func NewErrorResult(link string, err error, processingTime int64) CrawlResult {
	result := CrawlResult{
		Link:           link,
		ProcessingTime: processingTime,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result.Normalize()
}

// Normalize replaces nil collections with empty ones so they encode as [] and {}.
func (r CrawlResult) Normalize() CrawlResult {
	if r.AboutList == nil {
		r.AboutList = []string{}
	}
	if r.PhoneContacts == nil {
		r.PhoneContacts = []Contact{}
	}
	if r.EmailContacts == nil {
		r.EmailContacts = []Contact{}
	}
	if r.Addresses == nil {
		r.Addresses = []string{}
	}
	if r.CompanyServices == nil {
		r.CompanyServices = []string{}
	}
	if r.KeyIndicators == nil {
		r.KeyIndicators = []string{}
	}
	if r.SocialLinks == nil {
		r.SocialLinks = map[string]string{}
	}
	return r
}

// Validate reports whether a decoded result can be matched to a requested link.
func (r CrawlResult) Validate() error {
	if strings.TrimSpace(r.Link) == "" {
		return errors.New("result has no link")
	}
	return nil
}

// Failed reports whether the result carries an error.
func (r CrawlResult) Failed() bool {
	return r.Error != ""
}

package models

type ErrorResponse struct {
	Error          string `json:"error"`
	ProcessingTime *int64 `json:"processingTime,omitempty"`
}

// ScrapeStats summarises one crawl request.
type ScrapeStats struct {
	Total          int   `json:"total"`
	Successful     int   `json:"successful"`
	Failed         int   `json:"failed"`
	ProcessingTime int64 `json:"processingTime"`
}

// ScrapeResponse is returned by the scrape endpoint.
type ScrapeResponse struct {
	RequestID string        `json:"requestId"`
	Results   []CrawlResult `json:"results"`
	Stats     ScrapeStats   `json:"stats"`
}

// NewScrapeResponse counts successes and failures over the collected results.
// Total is the number of links requested, so a short result list shows a partial collection.
func NewScrapeResponse(requestID string, total int, results []CrawlResult, processingTime int64) ScrapeResponse {
	if results == nil {
		results = []CrawlResult{}
	}
	stats := ScrapeStats{
		Total:          total,
		ProcessingTime: processingTime,
	}
	for _, r := range results {
		if r.Failed() {
			stats.Failed++
		} else {
			stats.Successful++
		}
	}
	return ScrapeResponse{
		RequestID: requestID,
		Results:   results,
		Stats:     stats,
	}
}

type HealthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Service        string `json:"service"`
	QueueConnected bool   `json:"queueConnected"`
	BrokerState    string `json:"brokerState"`
}

package messaging

import (
	"fmt"
	"strconv"
	"strings"
)

// Work queue layout.
const (
	WorkStream         = "SCRAPING"
	WorkSubjectPrefix  = "scraping.jobs"
	WorkSubjects       = WorkSubjectPrefix + ".>"
	WorkConsumer       = "scraping-workers"
	DeadLetterStream   = "SCRAPING_DLQ"
	DeadLetterPrefix   = "scraping.dead"
	DeadLetterSubjects = DeadLetterPrefix + ".>"

	ResultSubjectPrefix = "scraping.results"
	resultStreamPrefix  = "RESULTS_"

	// PriorityHeader carries the load-spreading hint; it expresses no urgency.
	PriorityHeader = "Crawl-Priority"
	// MaxPriority is exclusive.
	MaxPriority = 10
)

// Headers set on dead-lettered messages.
const (
	HeaderDeadLetterReason  = "Crawl-Dead-Letter-Reason"
	HeaderOriginalSubject   = "Crawl-Original-Subject"
	HeaderOriginalSequence  = "Crawl-Original-Sequence"
	HeaderDeliveryAttempts  = "Crawl-Delivery-Attempts"
	DeadLetterMalformed     = "malformed"
	DeadLetterPublishFailed = "result_publish_failed"
	DeadLetterMaxDeliveries = "max_deliveries"
)

// JobSubject is the work subject for a priority hint.
func JobSubject(priority int) string {
	return WorkSubjectPrefix + ".p" + strconv.Itoa(priority)
}

// DeadLetterSubject is the dead-letter subject for reason.
func DeadLetterSubject(reason string) string {
	return DeadLetterPrefix + "." + sanitizeToken(reason)
}

// ResultDestination returns the result subject owned by requestID.
func ResultDestination(requestID string) (string, error) {
	token := sanitizeToken(requestID)
	if token == "" {
		return "", fmt.Errorf("request id %q has no usable characters", requestID)
	}
	return ResultSubjectPrefix + "." + token, nil
}

// ResultStream returns the stream backing a result destination.
func ResultStream(destination string) (string, error) {
	token, ok := strings.CutPrefix(destination, ResultSubjectPrefix+".")
	if !ok || token == "" || sanitizeToken(token) != token {
		return "", fmt.Errorf("invalid result destination %q", destination)
	}
	return resultStreamPrefix + strings.ReplaceAll(token, "-", ""), nil
}

// sanitizeToken keeps the characters valid in both a subject token and a stream name.
func sanitizeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

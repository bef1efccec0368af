package common

import (
	"errors"
)

// Common error constants
var (
	// ErrInvalidConfig is returned when an invalid configuration is provided
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBrokerUnavailable is returned when no broker connection is ready
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrFetchFailed is returned when a single page could not be fetched
	ErrFetchFailed = errors.New("page fetch failed")

	// ErrSeedUnreachable is returned when the seed page of a crawl could not be fetched
	ErrSeedUnreachable = errors.New("seed page unreachable")

	// ErrJobProcessingFailed is returned when a crawl job could not produce data
	ErrJobProcessingFailed = errors.New("job processing failed")

	// ErrResultPublishFailed is returned when a crawl result could not be delivered
	ErrResultPublishFailed = errors.New("result publish failed")

	// ErrMalformedMessage is returned when a broker payload cannot be decoded
	ErrMalformedMessage = errors.New("malformed message")

	// ErrNoLinks is returned when a crawl request carries no usable links
	ErrNoLinks = errors.New("no valid links provided")

	// ErrRequestInFlight is returned when a request id is already being processed
	ErrRequestInFlight = errors.New("request already in flight")
)

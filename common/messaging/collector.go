package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

var ErrDestinationInUse = errors.New("result destination already in use")

// Collector gathers the results of one request from its result destination.
type Collector struct {
	broker *NatsBroker
}

func NewCollector(broker *NatsBroker) *Collector {
	return &Collector{broker: broker}
}

// PrepareResultDestination creates the result stream for requestID and returns
// the subject workers publish to. It must run before any job is dispatched. A
// destination that already exists is an error, so no two requests share one.
func (c *Collector) PrepareResultDestination(ctx context.Context, requestID string) (string, error) {
	js, err := c.broker.JetStream()
	if err != nil {
		return "", err
	}

	dest, err := ResultDestination(requestID)
	if err != nil {
		return "", err
	}
	name, err := ResultStream(dest)
	if err != nil {
		return "", err
	}

	if _, err := js.Stream(ctx, name); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestinationInUse, name)
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return "", fmt.Errorf("lookup result stream %s: %w", name, err)
	}

	if _, err := js.CreateStream(ctx, c.broker.ResultStreamConfig(name, dest)); err != nil {
		return "", fmt.Errorf("create result stream %s: %w", name, err)
	}

	log.Debug().Str("request_id", requestID).Str("stream", name).Msg("Result destination created")
	return dest, nil
}

// ReleaseResultDestination deletes the result stream. Failures are logged only.
func (c *Collector) ReleaseResultDestination(ctx context.Context, dest string) {
	name, err := ResultStream(dest)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot release result destination")
		return
	}

	js, err := c.broker.JetStream()
	if err != nil {
		log.Warn().Err(err).Str("stream", name).Msg("Broker unavailable, result stream left to expire")
		return
	}

	if err := js.DeleteStream(ctx, name); err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		log.Warn().Err(err).Str("stream", name).Msg("Failed to delete result stream")
		return
	}
	log.Debug().Str("stream", name).Msg("Result destination deleted")
}

// Collect reads results from dest until expected results arrived, timeout
// elapsed or ctx ended, and returns what it has. It never fails: problems are
// logged and surface as missing results.
func (c *Collector) Collect(ctx context.Context, dest string, expected int, timeout time.Duration) []models.CrawlResult {
	results := make([]models.CrawlResult, 0, max(expected, 0))
	if expected <= 0 {
		return results
	}

	name, err := ResultStream(dest)
	if err != nil {
		log.Error().Err(err).Msg("Cannot collect results")
		return results
	}

	js, err := c.broker.JetStream()
	if err != nil {
		log.Error().Err(err).Str("stream", name).Msg("Cannot collect results")
		return results
	}

	consumer, err := js.CreateConsumer(ctx, name, jetstream.ConsumerConfig{
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		log.Error().Err(err).Str("stream", name).Msg("Failed to create result consumer")
		return results
	}

	done := make(chan struct{})
	incoming := make(chan jetstream.Msg, 64)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case incoming <- msg:
		case <-done:
		}
	})
	if err != nil {
		log.Error().Err(err).Str("stream", name).Msg("Failed to consume results")
		return results
	}
	defer func() {
		close(done)
		cc.Stop()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(results) < expected {
		select {
		case msg := <-incoming:
			var result models.CrawlResult
			err := json.Unmarshal(msg.Data(), &result)
			if err == nil {
				err = result.Validate()
			}
			if err != nil {
				log.Warn().Err(err).Str("stream", name).Msg("Dropping malformed result")
				_ = msg.Term()
				continue
			}
			if err := msg.Ack(); err != nil {
				log.Debug().Err(err).Msg("Failed to ack result")
			}
			results = append(results, result.Normalize())

		case <-timer.C:
			log.Warn().
				Str("stream", name).
				Int("expected", expected).
				Int("received", len(results)).
				Dur("timeout", timeout).
				Msg("Result collection timed out")
			metrics.ObserveCollect(len(results), expected)
			return results

		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).
				Str("stream", name).
				Int("expected", expected).
				Int("received", len(results)).
				Msg("Result collection cancelled")
			metrics.ObserveCollect(len(results), expected)
			return results
		}
	}

	metrics.ObserveCollect(len(results), expected)
	return results
}

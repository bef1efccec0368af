package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Dispatcher turns a batch of links into one job per link on the work stream.
type Dispatcher struct {
	broker     *NatsBroker
	batchSize  int
	batchDelay time.Duration
	priority   func() int
}

func NewDispatcher(broker *NatsBroker, cfg config.Config) *Dispatcher {
	batchSize := cfg.Queue.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		broker:     broker,
		batchSize:  batchSize,
		batchDelay: cfg.Queue.BatchDelay,
		priority:   func() int { return rand.IntN(MaxPriority) },
	}
}

// Dispatch publishes one job per link. Jobs inside a batch are published
// concurrently and batches are paced by the configured delay. Publish failures
// are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, links []string, requestID, resultDestination string, domains []string, opts models.ExtractOptions) error {
	if !d.broker.Ready() {
		return common.ErrBrokerUnavailable
	}

	var errs []error
	for i, batch := range lo.Chunk(links, d.batchSize) {
		if i > 0 && d.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			case <-time.After(d.batchDelay):
			}
		}

		batchErrs := make([]error, len(batch))
		var wg sync.WaitGroup
		for j, link := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				batchErrs[j] = d.publish(ctx, models.Job{
					WebDetails: models.WebDetails{
						Link:           link,
						Domains:        domains,
						ExtractOptions: opts,
					},
					RequestID:   requestID,
					ResultQueue: resultDestination,
				})
			}()
		}
		wg.Wait()

		failed := lo.Compact(batchErrs)
		metrics.ObserveDispatch("published", len(batch)-len(failed))
		metrics.ObserveDispatch("failed", len(failed))
		errs = append(errs, failed...)
	}

	log.Info().
		Str("request_id", requestID).
		Int("jobs", len(links)).
		Int("failed", len(errs)).
		Msg("Dispatched crawl jobs")

	return errors.Join(errs...)
}

func (d *Dispatcher) publish(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job for %s: %w", job.WebDetails.Link, err)
	}

	priority := d.priority()
	msg := nats.NewMsg(JobSubject(priority))
	msg.Header.Set(PriorityHeader, strconv.Itoa(priority))
	msg.Data = data

	if _, err := d.broker.PublishSync(ctx, msg, jetstream.WithExpectStream(WorkStream)); err != nil {
		return fmt.Errorf("job %s: %w", job.WebDetails.Link, err)
	}
	return nil
}

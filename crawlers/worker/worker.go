// Package worker consumes crawl jobs from the work stream, runs the website
// crawler for each one and publishes exactly one result per job.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/website"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const reattachDelay = time.Second

// Crawler crawls one website.
type Crawler interface {
	Crawl(ctx context.Context, details models.WebDetails) (website.Report, error)
}

type Options struct {
	// Prefetch is the number of jobs held and crawled at once.
	Prefetch int
	// JobTimeout bounds one crawl; it must stay below the consumer's AckWait.
	JobTimeout     time.Duration
	PublishTimeout time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Prefetch:       cfg.Queue.Prefetch,
		JobTimeout:     cfg.Queue.AckWait * 9 / 10,
		PublishTimeout: 10 * time.Second,
	}
}

type Worker struct {
	broker      *messaging.NatsBroker
	crawler     Crawler
	deadLetters *messaging.DeadLetterer
	opts        Options
}

// New builds a worker. deadLetters may be nil, in which case rejected jobs are only terminated.
func New(broker *messaging.NatsBroker, crawler Crawler, deadLetters *messaging.DeadLetterer, opts Options) *Worker {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 20
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 4 * time.Minute
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &Worker{
		broker:      broker,
		crawler:     crawler,
		deadLetters: deadLetters,
		opts:        opts,
	}
}

// Run consumes jobs until ctx ends. When the broker leaves READY the worker
// detaches and attaches again once the connection is back.
func (w *Worker) Run(ctx context.Context) error {
	pool, err := work.NewWorkerPoolWithConfig[models.CrawlResult](work.PoolConfig{
		NumWorkers:      w.opts.Prefetch,
		TaskChannelSize: 0,
		ResultChanSize:  w.opts.Prefetch * 2,
		TaskTimeout:     w.opts.JobTimeout,
		ShutdownTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	pool.Start(ctx, "crawl-workers")
	defer func() {
		pool.Stop()
		stats := pool.Stats()
		log.Info().
			Int64("completed", stats.TasksCompleted).
			Int64("failed", stats.TasksFailed).
			Msg("Worker stopped")
	}()
	go w.observe(pool.Results())

	for {
		if err := w.broker.WaitReady(ctx); err != nil {
			return nil
		}

		if err := w.consume(ctx, pool); err != nil {
			log.Error().Err(err).Msg("Work consumer stopped")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reattachDelay):
		}
	}
}

// consume attaches to the work consumer and feeds jobs into the pool until ctx
// ends or the broker stops being READY.
func (w *Worker) consume(ctx context.Context, pool *work.Pool[models.CrawlResult]) error {
	consumer, err := w.broker.CreateConsumer(ctx, messaging.WorkStream, w.broker.WorkConsumerConfig())
	if err != nil {
		return err
	}

	iter, err := consumer.Messages(jetstream.PullMaxMessages(w.opts.Prefetch))
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", messaging.WorkConsumer, err)
	}
	defer iter.Stop()

	detached := make(chan struct{})
	defer close(detached)
	go func() {
		changed := w.broker.Changed()
		for {
			select {
			case <-detached:
				return
			case <-ctx.Done():
				iter.Stop()
				return
			case <-changed:
				if !w.broker.Ready() {
					log.Warn().Str("state", w.broker.State().String()).Msg("Broker not ready, detaching worker")
					iter.Stop()
					return
				}
				changed = w.broker.Changed()
			}
		}
	}()

	log.Info().
		Str("consumer", messaging.WorkConsumer).
		Int("prefetch", w.opts.Prefetch).
		Msg("Worker attached to work queue")

	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}
			return err
		}

		if err := pool.AddTask(ctx, w.newTask(msg)); err != nil {
			// Shutting down; let another worker take it.
			_ = msg.Nak()
			return nil
		}
	}
}

func (w *Worker) newTask(msg jetstream.Msg) work.Executor[models.CrawlResult] {
	id := msg.Subject()
	if md, err := msg.Metadata(); err == nil {
		id = strconv.FormatUint(md.Sequence.Stream, 10)
	}
	return work.MustNewTask(
		func(ctx context.Context) (models.CrawlResult, error) {
			return w.handle(ctx, msg)
		},
		work.WithID[models.CrawlResult](id),
	)
}

// handle processes one job. Every job ends acknowledged, terminated or, on
// shutdown, returned to the queue.
func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) (models.CrawlResult, error) {
	start := time.Now()
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	var job models.Job
	err := json.Unmarshal(msg.Data(), &job)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("Rejecting malformed job")
		w.reject(ctx, msg, messaging.DeadLetterMalformed)
		metrics.ObserveJob("malformed", 0)
		return models.CrawlResult{}, fmt.Errorf("%w: %w", common.ErrMalformedMessage, err)
	}

	logger := log.With().
		Str("request_id", job.RequestID).
		Str("link", job.WebDetails.Link).
		Logger()

	report, crawlErr := w.crawl(ctx, job.WebDetails)
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info().Msg("Shutting down, returning job to queue")
		_ = msg.Nak()
		return models.CrawlResult{}, ctx.Err()
	}

	elapsed := time.Since(start).Milliseconds()
	status := "success"
	var result models.CrawlResult
	if crawlErr != nil {
		status = "failed"
		logger.Warn().Err(crawlErr).Msg("Crawl failed")
		result = models.NewErrorResult(job.WebDetails.Link, crawlErr, elapsed)
	} else {
		result = report.ToResult(job.WebDetails.Link, elapsed)
	}

	if err := w.publish(ctx, job, result, resultMsgID(msg)); err != nil {
		logger.Error().Err(err).Str("destination", job.ResultQueue).Msg("Failed to publish result")
		w.reject(ctx, msg, messaging.DeadLetterPublishFailed)
		metrics.ObserveJob(messaging.DeadLetterPublishFailed, time.Since(start))
		return result, fmt.Errorf("%w: %w", common.ErrResultPublishFailed, err)
	}

	if err := msg.Ack(); err != nil {
		logger.Warn().Err(err).Msg("Failed to ack job")
	}
	metrics.ObserveJob(status, time.Since(start))

	if crawlErr != nil {
		return result, fmt.Errorf("%w: %w", common.ErrJobProcessingFailed, crawlErr)
	}
	return result, nil
}

// crawl runs the crawler and turns a panic into an error so the job still
// gets a result.
func (w *Worker) crawl(ctx context.Context, details models.WebDetails) (report website.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("link", details.Link).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Crawler panicked")
			report = website.Report{}
			err = fmt.Errorf("%w: panic: %v", common.ErrJobProcessingFailed, r)
		}
	}()
	return w.crawler.Crawl(ctx, details)
}

// resultMsgID identifies the result of one job. A redelivered job keeps its
// stream sequence, so the result stream drops the second copy.
func resultMsgID(msg jetstream.Msg) string {
	md, err := msg.Metadata()
	if err != nil {
		return ""
	}
	return "job-" + strconv.FormatUint(md.Sequence.Stream, 10)
}

// publish sends the result with its own deadline so a crawl that ran out of
// time still reports.
func (w *Worker) publish(ctx context.Context, job models.Job, result models.CrawlResult, msgID string) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.PublishTimeout)
	defer cancel()

	out := nats.NewMsg(job.ResultQueue)
	out.Data = data
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	ack, err := w.broker.PublishSync(pubCtx, out, opts...)
	if err == nil && ack.Duplicate {
		log.Info().Str("msg_id", msgID).Str("destination", job.ResultQueue).Msg("Result already published")
	}
	return err
}

// reject dead-letters msg and terminates it so it is never redelivered.
func (w *Worker) reject(ctx context.Context, msg jetstream.Msg, reason string) {
	if w.deadLetters != nil {
		dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.PublishTimeout)
		defer cancel()
		if err := w.deadLetters.DeadLetter(dlCtx, msg, reason); err != nil {
			log.Error().Err(err).Str("reason", reason).Msg("Failed to dead-letter job")
		}
	}
	if err := msg.TermWithReason(reason); err != nil {
		log.Warn().Err(err).Msg("Failed to terminate job")
	}
}

func (w *Worker) observe(results <-chan work.TaskResult[models.CrawlResult]) {
	for r := range results {
		ev := log.Debug()
		if r.Error != nil && !errors.Is(r.Error, common.ErrJobProcessingFailed) {
			ev = log.Warn().Err(r.Error)
		}
		ev.Str("task_id", r.TaskID).
			Str("link", r.Result.Link).
			Dur("duration", r.Duration).
			Msg("Job finished")
	}
}

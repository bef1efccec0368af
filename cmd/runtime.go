package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/website-crawler-service/common/redis"
	"github.com/LexiconIndonesia/website-crawler-service/common/storage"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/fetcher"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/website"
	"github.com/LexiconIndonesia/website-crawler-service/crawlers/worker"
	"github.com/rs/zerolog/log"
)

const topologyRetry = 5 * time.Second

// services owns the long-lived clients shared by the serve and worker commands.
type services struct {
	broker  *messaging.NatsBroker
	redis   *redis.RedisClient
	gcs     *storage.GCSStorage
	fetcher fetcher.Fetcher
}

func newServices(cfg config.Config) *services {
	return &services{broker: messaging.NewNatsBroker(cfg)}
}

// connectBroker dials NATS and declares the streams, retrying until ctx ends.
// It runs in the background so the HTTP side can answer 503 meanwhile.
func (s *services) connectBroker(ctx context.Context) {
	if err := s.broker.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("Gave up connecting to NATS")
		return
	}
	for {
		err := s.broker.EnsureTopology(ctx)
		if err == nil {
			return
		}
		log.Error().Err(err).Msg("Failed to declare streams, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(topologyRetry):
		}
	}
}

// tracker returns the Redis tracker when Redis is configured, the in-process one otherwise.
func (s *services) tracker(ctx context.Context, cfg config.Config) (work.RequestTracker, error) {
	if !cfg.Redis.Enabled() {
		log.Info().Msg("Redis not configured, tracking requests in process")
		return work.NewMemoryRequestTracker(), nil
	}
	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.redis = client
	return work.NewRedisRequestTracker(client), nil
}

func (s *services) deadLetterer(ctx context.Context, cfg config.Config) (*messaging.DeadLetterer, error) {
	if !cfg.GCS.Enabled() {
		return messaging.NewDeadLetterer(s.broker, nil), nil
	}
	gcs, err := storage.NewGCSStorage(ctx, storage.GCSConfig{
		ProjectID:       cfg.GCS.ProjectID,
		CredentialsFile: cfg.GCS.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("setup GCS storage: %w", err)
	}
	s.gcs = gcs
	log.Info().Str("bucket", cfg.GCS.Bucket).Msg("Archiving dead letters to GCS")
	return messaging.NewDeadLetterer(s.broker, storage.NewDeadLetterArchive(gcs, cfg.GCS.Bucket)), nil
}

func (s *services) crawler(cfg config.Config) (*website.Crawler, error) {
	f, err := fetcher.New(cfg)
	if err != nil {
		return nil, err
	}
	s.fetcher = f
	return newCrawler(cfg, f), nil
}

func newCrawler(cfg config.Config, f fetcher.Fetcher) *website.Crawler {
	return website.NewCrawler(f, website.Options{
		Concurrency:      cfg.Crawl.Concurrency,
		MaxInternalLinks: cfg.Crawl.MaxInternalLinks,
		BusinessMode:     cfg.Crawl.BusinessMode,
	})
}

// startWorker runs the queue worker and the dead-letter forwarder until ctx
// ends. The returned channel closes once both have stopped.
func (s *services) startWorker(ctx context.Context, cfg config.Config) (<-chan struct{}, error) {
	crawler, err := s.crawler(cfg)
	if err != nil {
		return nil, err
	}
	deadLetters, err := s.deadLetterer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	w := worker.New(s.broker, crawler, deadLetters, worker.OptionsFromConfig(cfg))

	done := make(chan struct{})
	stopped := make(chan struct{}, 2)
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Worker stopped")
		}
		stopped <- struct{}{}
	}()
	go func() {
		if err := deadLetters.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Dead-letter forwarder stopped")
		}
		stopped <- struct{}{}
	}()
	go func() {
		<-stopped
		<-stopped
		close(done)
	}()
	return done, nil
}

func (s *services) Close() {
	if c, ok := s.fetcher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close fetcher")
		}
	}
	if s.gcs != nil {
		if err := s.gcs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close GCS client")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if err := s.broker.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close NATS connection")
	}
}

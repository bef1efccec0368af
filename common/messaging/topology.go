package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	deadLetterRetention  = 7 * 24 * time.Hour
	defaultMaxAckPending = 1000
)

// WorkStreamConfig is the durable work queue. Each message is removed once a
// worker acknowledges or terminates it.
func (c *NatsBroker) WorkStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        WorkStream,
		Description: "Website crawl jobs",
		Subjects:    []string{WorkSubjects},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      c.config.Queue.MessageTTL,
		MaxMsgs:     c.config.Queue.MaxLength,
		Discard:     jetstream.DiscardNew,
	}
}

// DeadLetterStreamConfig holds jobs that were terminated or exhausted their deliveries.
func (c *NatsBroker) DeadLetterStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        DeadLetterStream,
		Description: "Website crawl jobs that could not be processed",
		Subjects:    []string{DeadLetterSubjects},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      deadLetterRetention,
		MaxMsgs:     c.config.Queue.MaxLength,
	}
}

// WorkConsumerConfig is the durable pull consumer shared by every worker
// process. MaxAckPending bounds the whole fleet; each process limits itself to
// its prefetch through its pull batch size and pool size.
func (c *NatsBroker) WorkConsumerConfig() jetstream.ConsumerConfig {
	q := c.config.Queue
	maxAckPending := q.MaxAckPending
	if maxAckPending <= 0 {
		maxAckPending = defaultMaxAckPending
	}
	if maxAckPending < q.Prefetch {
		maxAckPending = q.Prefetch
	}
	return jetstream.ConsumerConfig{
		Durable:       WorkConsumer,
		Description:   "Website crawl workers",
		FilterSubject: WorkSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.AckWait,
		MaxDeliver:    q.MaxDeliver,
		MaxAckPending: maxAckPending,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
}

// ResultStreamConfig is the ephemeral, memory-backed stream for one request.
// The duplicate window spans the stream's lifetime, so a redelivered job
// publishing its result again with the same id is dropped.
func (c *NatsBroker) ResultStreamConfig(streamName, subject string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subject},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.MemoryStorage,
		MaxAge:     c.config.Queue.ResultTTL,
		MaxMsgs:    c.config.Queue.ResultMaxLen,
		Discard:    jetstream.DiscardOld,
		Duplicates: c.config.Queue.ResultTTL,
	}
}

// EnsureTopology declares the work and dead-letter streams and the worker consumer.
func (c *NatsBroker) EnsureTopology(ctx context.Context) error {
	if _, err := EnsureStream(ctx, c, c.WorkStreamConfig()); err != nil {
		return fmt.Errorf("work stream: %w", err)
	}
	if _, err := EnsureStream(ctx, c, c.DeadLetterStreamConfig()); err != nil {
		return fmt.Errorf("dead-letter stream: %w", err)
	}
	if _, err := c.CreateConsumer(ctx, WorkStream, c.WorkConsumerConfig()); err != nil {
		return fmt.Errorf("work consumer: %w", err)
	}
	return nil
}

// EnsureStream creates the stream when missing. An existing stream gains any
// subjects it lacks and keeps the rest of its configuration.
func EnsureStream(ctx context.Context, client *NatsBroker, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := client.GetStream(ctx, cfg.Name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			log.Error().Err(err).Str("stream_name", cfg.Name).Msg("Failed to get stream for unknown reasons")
			return nil, err
		}
		return client.CreateStream(ctx, cfg)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	current := info.Config
	subjectSet := make(map[string]struct{}, len(current.Subjects))
	for _, s := range current.Subjects {
		subjectSet[s] = struct{}{}
	}

	hasNewSubjects := false
	for _, s := range cfg.Subjects {
		if _, ok := subjectSet[s]; !ok {
			hasNewSubjects = true
			current.Subjects = append(current.Subjects, s)
		}
	}

	if !hasNewSubjects {
		log.Debug().Str("stream_name", cfg.Name).Msg("Stream already declared")
		return stream, nil
	}

	log.Info().Strs("subjects", current.Subjects).Str("stream_name", cfg.Name).Msg("Updating stream with new subjects")
	return client.CreateStream(ctx, current)
}

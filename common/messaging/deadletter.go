package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/website-crawler-service/common/storage"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// maxDeliveriesAdvisory is emitted by the server when a job exhausts MaxDeliver.
const maxDeliveriesAdvisory = "$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES." + WorkStream + "." + WorkConsumer

// Archiver keeps a durable copy of dead-lettered jobs outside the broker.
type Archiver interface {
	Archive(ctx context.Context, rec storage.DeadLetterRecord) (string, error)
}

// DeadLetterer moves jobs that cannot be processed into the dead-letter stream.
//
// Terminating a message removes it from a work-queue stream, so workers call
// DeadLetter before Term. Jobs that run out of deliveries are still in the work
// stream when the server's advisory arrives; Run picks those up.
type DeadLetterer struct {
	broker   *NatsBroker
	archiver Archiver
}

// NewDeadLetterer returns a dead-letterer. archiver may be nil.
func NewDeadLetterer(broker *NatsBroker, archiver Archiver) *DeadLetterer {
	return &DeadLetterer{broker: broker, archiver: archiver}
}

// DeadLetter copies msg to the dead-letter stream under reason.
func (d *DeadLetterer) DeadLetter(ctx context.Context, msg jetstream.Msg, reason string) error {
	var seq, deliveries uint64
	if md, err := msg.Metadata(); err == nil {
		seq = md.Sequence.Stream
		deliveries = md.NumDelivered
	}
	return d.forward(ctx, msg.Subject(), msg.Headers(), msg.Data(), seq, deliveries, reason)
}

// Run listens for max-delivery advisories until ctx ends.
func (d *DeadLetterer) Run(ctx context.Context) error {
	if err := d.broker.WaitReady(ctx); err != nil {
		return nil
	}

	conn := d.broker.Conn()
	sub, err := conn.Subscribe(maxDeliveriesAdvisory, func(m *nats.Msg) {
		d.handleAdvisory(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", maxDeliveriesAdvisory, err)
	}
	log.Info().Str("subject", maxDeliveriesAdvisory).Msg("Dead-letter forwarder listening")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		log.Debug().Err(err).Msg("Failed to unsubscribe dead-letter forwarder")
	}
	return nil
}

type deliveryAdvisory struct {
	Stream     string `json:"stream"`
	Consumer   string `json:"consumer"`
	StreamSeq  uint64 `json:"stream_seq"`
	Deliveries uint64 `json:"deliveries"`
}

func (d *DeadLetterer) handleAdvisory(ctx context.Context, data []byte) {
	var adv deliveryAdvisory
	if err := json.Unmarshal(data, &adv); err != nil {
		log.Error().Err(err).Msg("Malformed delivery advisory")
		return
	}
	if adv.Stream != WorkStream {
		return
	}

	stream, err := d.broker.GetStream(ctx, WorkStream)
	if err != nil {
		log.Error().Err(err).Uint64("seq", adv.StreamSeq).Msg("Cannot dead-letter job")
		return
	}

	raw, err := stream.GetMsg(ctx, adv.StreamSeq)
	if err != nil {
		log.Warn().Err(err).Uint64("seq", adv.StreamSeq).Msg("Exhausted job no longer in work stream")
		return
	}

	if err := d.forward(ctx, raw.Subject, raw.Header, raw.Data, raw.Sequence, adv.Deliveries, DeadLetterMaxDeliveries); err != nil {
		log.Error().Err(err).Uint64("seq", adv.StreamSeq).Msg("Failed to dead-letter exhausted job")
		return
	}

	if err := stream.DeleteMsg(ctx, adv.StreamSeq); err != nil {
		log.Warn().Err(err).Uint64("seq", adv.StreamSeq).Msg("Failed to remove exhausted job")
	}
}

func (d *DeadLetterer) forward(ctx context.Context, subject string, header nats.Header, data []byte, seq, deliveries uint64, reason string) error {
	out := nats.NewMsg(DeadLetterSubject(reason))
	for k, v := range header {
		out.Header[k] = append([]string(nil), v...)
	}
	out.Header.Set(HeaderDeadLetterReason, reason)
	out.Header.Set(HeaderOriginalSubject, subject)
	out.Header.Set(HeaderOriginalSequence, strconv.FormatUint(seq, 10))
	out.Header.Set(HeaderDeliveryAttempts, strconv.FormatUint(deliveries, 10))
	out.Data = data

	if _, err := d.broker.PublishSync(ctx, out, jetstream.WithExpectStream(DeadLetterStream)); err != nil {
		return err
	}
	metrics.ObserveDeadLetter(reason)

	log.Warn().
		Str("subject", subject).
		Str("reason", reason).
		Uint64("seq", seq).
		Uint64("deliveries", deliveries).
		Msg("Job dead-lettered")

	if d.archiver == nil {
		return nil
	}
	rec := storage.DeadLetterRecord{
		Subject:        subject,
		Reason:         reason,
		StreamSequence: seq,
		Deliveries:     deliveries,
		Headers:        header,
		Payload:        string(data),
		DeadLetteredAt: time.Now(),
	}
	if _, err := d.archiver.Archive(ctx, rec); err != nil {
		log.Error().Err(err).Uint64("seq", seq).Msg("Failed to archive dead letter")
	}
	return nil
}

package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// State is the broker connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

const initialBackoff = 500 * time.Millisecond

// NatsBroker owns the process-wide NATS connection and JetStream context.
// Every publisher and consumer in the process goes through one broker.
type NatsBroker struct {
	config config.Config

	mu      sync.RWMutex
	conn    *nats.Conn
	js      jetstream.JetStream
	state   State
	changed chan struct{}
}

// NewNatsBroker creates a broker in the DISCONNECTED state. Call Connect to dial.
func NewNatsBroker(cfg config.Config) *NatsBroker {
	return &NatsBroker{
		config:  cfg,
		changed: make(chan struct{}),
	}
}

// Connect dials NATS, retrying with exponential backoff until it succeeds or ctx ends.
// Once connected, the client reconnects on its own and the state follows it.
func (c *NatsBroker) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	maxBackoff := c.config.Nats.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		err := c.connect()
		if err == nil {
			return nil
		}

		log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("retry_in", backoff).
			Msg("NATS connection failed")

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return fmt.Errorf("%w: %w", common.ErrBrokerUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// connect makes one connection attempt.
func (c *NatsBroker) connect() error {
	opts := []nats.Option{
		nats.Name("website-crawler-service"),
		nats.Timeout(c.config.Nats.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(initialBackoff),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
			c.setState(StateConnecting)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("server", nc.ConnectedUrl()).Msg("Reconnected to NATS")
			c.setState(StateReady)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("Error handling NATS message")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
			c.setState(StateDisconnected)
		}),
	}

	// Add auth if provided
	if c.config.Nats.Username != "" && c.config.Nats.Password != "" {
		opts = append(opts, nats.UserInfo(c.config.Nats.Username, c.config.Nats.Password))
	}

	conn, err := nats.Connect(c.config.Nats.URL(), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	log.Info().Str("server", conn.ConnectedUrl()).Msg("Connected to NATS")
	c.setState(StateReady)
	return nil
}

func (c *NatsBroker) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == s {
		return
	}
	log.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("Broker state changed")
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
	metrics.SetBrokerReady(s == StateReady)
}

func (c *NatsBroker) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *NatsBroker) Ready() bool {
	return c.State() == StateReady
}

// Changed returns a channel closed on the next state transition.
func (c *NatsBroker) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// WaitReady blocks until the broker is READY or ctx ends.
func (c *NatsBroker) WaitReady(ctx context.Context) error {
	for {
		c.mu.RLock()
		state, changed := c.state, c.changed
		c.mu.RUnlock()

		if state == StateReady {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// JetStream returns the JetStream context, or ErrBrokerUnavailable when not READY.
func (c *NatsBroker) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady || c.js == nil {
		return nil, common.ErrBrokerUnavailable
	}
	return c.js, nil
}

// Conn returns the underlying connection, nil before the first successful connect.
func (c *NatsBroker) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Close drains the connection
func (c *NatsBroker) Close() error {
	conn := c.Conn()
	if conn == nil {
		return nil
	}
	if conn.IsConnected() {
		return conn.Drain()
	}
	conn.Close()
	return nil
}

// PublishSync publishes a message and waits for the stream acknowledgement
func (c *NatsBroker) PublishSync(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	ack, err := js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to publish message to %s: %w", msg.Subject, err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("stream", ack.Stream).
		Uint64("seq", ack.Sequence).
		Msg("Published message and received ack")

	return ack, nil
}

// CreateStream creates or updates a JetStream stream
func (c *NatsBroker) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("name", cfg.Name).
		Strs("subjects", cfg.Subjects).
		Msg("Attempting to create or update JetStream stream")

	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("stream", cfg.Name).Msg("Failed to create or update stream")
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	log.Info().
		Str("name", cfg.Name).
		Strs("subjects", cfg.Subjects).
		Msg("JetStream stream ready")

	return stream, nil
}

// GetStream gets a JetStream stream
func (c *NatsBroker) GetStream(ctx context.Context, streamName string) (jetstream.Stream, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	return stream, nil
}

// CreateConsumer creates or updates a JetStream consumer
func (c *NatsBroker) CreateConsumer(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	log.Info().
		Str("name", cfg.Durable).
		Str("stream", streamName).
		Msg("JetStream consumer ready")

	return consumer, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cacaowallet/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const publishAttempts = 3

// JetStreamConfig holds the NATS JetStream connection settings.
type JetStreamConfig struct {
	URL            string
	StreamName     string
	SubjectPrefix  string
	ConnectionName string
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// JetStream is the subset of jetstream.JetStream the publisher uses.
type JetStream interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type JetStreamPublisher struct {
	nc      *nats.Conn
	js      JetStream
	prefix  string
	backoff func() backoff.BackOff
}

// NewJetStreamPublisher connects to NATS and makes sure the settlement stream
// exists.
func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}
	p := NewPublisherWithJetStream(js, cfg.SubjectPrefix)
	p.nc = nc
	return p, nil
}

// NewPublisherWithJetStream builds a publisher on an existing JetStream
// handle.
func NewPublisherWithJetStream(js JetStream, prefix string) *JetStreamPublisher {
	return &JetStreamPublisher{
		js:     js,
		prefix: prefix,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			return backoff.WithMaxRetries(b, publishAttempts-1)
		},
	}
}

// Publish sends the event with its id as the message id so the stream drops
// redeliveries.
func (p *JetStreamPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.Subject(event)
	logger.Debug("Publishing settlement event", zap.String("subject", subject), zap.String("event_id", event.ID))

	operation := func() error {
		_, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(p.backoff(), ctx)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subject is <prefix>.<kind>, e.g. cacao.transaction.resolved.
func (p *JetStreamPublisher) Subject(event Event) string {
	return fmt.Sprintf("%s.%s", p.prefix, event.Kind)
}

func (p *JetStreamPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

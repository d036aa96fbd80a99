// Package relay re-emits canonical events after a unit of work has been
// committed. Emission is at-least-once; consumers deduplicate on the event
// identity id.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/seqportal/runhub/internal/platform/env"
)

// Publisher sends one canonical event. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, detail []byte) error
}

// LogPublisher writes events to the structured log. It stands in for the
// bus in local runs and tests.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, eventType string, detail []byte) error {
	if p == nil || p.log == nil {
		return fmt.Errorf("log publisher not initialized")
	}
	p.log.InfoContext(ctx, "event emitted",
		slog.String("event_type", eventType),
		slog.Int("detail_bytes", len(detail)),
	)
	return nil
}

// Config holds the bus connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
}

func ConfigFromEnv() Config {
	return Config{
		URL:           env.String("RUNHUB_NATS_URL", ""),
		SubjectPrefix: env.String("RUNHUB_NATS_SUBJECT_PREFIX", "runhub.events"),
	}
}

// Enabled reports whether a bus endpoint is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher publishes events on subject <prefix>.<eventType>.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisherOver(conn, cfg.SubjectPrefix), nil
}

func newNATSPublisherOver(conn natsConn, prefix string) *NATSPublisher {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "runhub.events"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Publish(ctx context.Context, eventType string, detail []byte) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats publisher not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	subject := p.prefix + "." + eventType
	if err := p.conn.Publish(subject, detail); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

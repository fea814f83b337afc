package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/eventstore"
)

const natsPublishTimeout = 5 * time.Second

// NATSPublisher fans release lifecycle events out to a JetStream subject so
// downstream consumers (notification bots, dashboards) can react to releases
// without polling the admin API.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// natsEnvelope is the wire format for published events. Payload carries the
// event's own JSON document.
type natsEnvelope struct {
	ReleaseID string          `json:"release_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewNATSPublisher connects to NATS and prepares a JetStream context.
func NewNATSPublisher(cfg *config.EventsConfig) (*NATSPublisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("event fan-out is disabled")
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = config.DefaultEventsSubject
	}

	slog.Info("NATS event publisher initialized",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", subject))

	return &NATSPublisher{conn: conn, js: js, subject: subject}, nil
}

// Publish implements EventSink.
func (p *NATSPublisher) Publish(ctx context.Context, event eventstore.Event) error {
	envelope := natsEnvelope{
		ReleaseID: event.ReleaseID(),
		Type:      event.Type(),
		Timestamp: event.Timestamp(),
		Payload:   event.Payload(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, natsPublishTimeout)
	defer cancel()

	if _, err := p.js.Publish(pubCtx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Package eventbus publishes task lifecycle events so external observers can
// follow a run without polling the ledger. Publishing is best effort; a
// failed publish never affects the run itself.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openclaw/planweave/internal/config"
)

// Publisher emits lifecycle events. kind becomes the final subject token,
// e.g. "planweave.events.task_start".
type Publisher interface {
	Publish(kind string, payload any) error
	Close()
}

// New connects to the configured bus. An empty NATS URL disables publishing
// and returns a Noop publisher.
func New(cfg config.EventsConfig) (Publisher, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "planweave.events"
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// NATSPublisher publishes JSON payloads to a NATS subject hierarchy.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// Publish encodes payload as JSON and publishes it under subject.kind.
func (p *NATSPublisher) Publish(kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", kind, err)
	}
	return p.conn.Publish(p.subject+"."+kind, data)
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	p.conn.Drain()
}

// Noop is the publisher used when no bus is configured.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }
func (Noop) Close()                    {}

package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const StreamName = "BALANCE-AUDIT"

// Publisher emits balance audit events to a JetStream stream. Delivery is
// best effort from the caller's point of view; a failed publish never fails
// the business operation.
type Publisher struct {
	log *slog.Logger
	js  nats.JetStreamContext
}

func New(nc *nats.Conn, log *slog.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"balance.*"},
	})
	if err != nil {
		return nil, fmt.Errorf("add stream %s: %w", StreamName, err)
	}

	return &Publisher{log: log, js: js}, nil
}

func (p *Publisher) Publish(subject string, event any) error {
	const op = "nats.Publish"

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal event", "op", op, "subject", subject, "err", err)
		return fmt.Errorf("marshal %T: %w", event, err)
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.log.Error("failed to publish event", "op", op, "subject", subject, "err", err)
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.log.Debug("event published", "subject", subject)
	return nil
}

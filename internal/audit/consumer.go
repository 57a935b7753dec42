package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/aiox-platform/gloser/internal/nats"
)

const consumerName = "audit-persister"

var errMalformed = errors.New("malformed execution event")

// Inserter stores executions.
type Inserter interface {
	Insert(ctx context.Context, e *Execution) error
}

// ConsumerSource creates the durable consumer the audit log pulls from.
type ConsumerSource interface {
	EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error)
}

// Consumer listens on the audit subject and persists executions.
type Consumer struct {
	store     Inserter
	consumers ConsumerSource
}

func NewConsumer(store Inserter, consumers ConsumerSource) *Consumer {
	return &Consumer{store: store, consumers: consumers}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumers.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectAuditEvent)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	err := c.persist(ctx, msg.Data())
	switch {
	case errors.Is(err, errMalformed):
		_ = msg.Term()
	case err != nil:
		_ = msg.Nak()
	default:
		_ = msg.Ack()
	}
}

// persist decodes one event and stores it.
func (c *Consumer) persist(ctx context.Context, data []byte) error {
	var ev inats.ExecutionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	e := FromEvent(ev)
	if err := c.store.Insert(ctx, e); err != nil {
		slog.Error("audit consumer: persisting execution", "error", err, "request_id", e.RequestID)
		return err
	}

	slog.Debug("audit consumer: persisted execution",
		"request_id", e.RequestID,
		"session_id", e.SessionID,
		"status", e.Status,
	)
	return nil
}

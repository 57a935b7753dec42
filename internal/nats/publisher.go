package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishQuery submits a query for asynchronous processing.
func (p *Publisher) PublishQuery(ctx context.Context, req QueryRequest) error {
	return p.publish(ctx, SubjectQueryInbound, req)
}

func (p *Publisher) PublishReply(ctx context.Context, reply QueryReply) error {
	return p.publish(ctx, SubjectQueryOutbound, reply)
}

func (p *Publisher) PublishPipelineEvent(ctx context.Context, event PipelineEvent) error {
	return p.publish(ctx, SubjectPipelineEvent, event)
}

func (p *Publisher) PublishExecution(ctx context.Context, event ExecutionEvent) error {
	return p.publish(ctx, SubjectAuditEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

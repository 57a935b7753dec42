package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/aiox-platform/gloser/internal/nats"
)

const consumerName = "gloser-orchestrator"

// ConsumerSource creates the durable consumer the orchestrator pulls from.
type ConsumerSource interface {
	EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error)
}

// Replier publishes query replies.
type Replier interface {
	PublishReply(ctx context.Context, reply inats.QueryReply) error
}

// Orchestrator answers queries submitted on the NATS inbound subject.
type Orchestrator struct {
	consumers ConsumerSource
	replies   Replier
	engine    *Engine
	validate  *Validator
}

func NewOrchestrator(consumers ConsumerSource, replies Replier, engine *Engine) *Orchestrator {
	return &Orchestrator{
		consumers: consumers,
		replies:   replies,
		engine:    engine,
		validate:  NewValidator(),
	}
}

// Start runs the fetch loop until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	consumer, err := o.consumers.EnsureConsumer(ctx, inats.StreamQueries, consumerName, inats.SubjectQueryInbound)
	if err != nil {
		return err
	}

	slog.Info("orchestrator: consuming queries", "consumer", consumerName, "subject", inats.SubjectQueryInbound)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("orchestrator: fetching queries", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			o.processMessage(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (o *Orchestrator) processMessage(ctx context.Context, msg jetstream.Msg) {
	reply, ok := o.handle(ctx, msg.Data())
	if !ok {
		_ = msg.Term()
		return
	}
	if err := o.replies.PublishReply(ctx, reply); err != nil {
		slog.Error("orchestrator: publishing reply", "error", err, "in_reply_to", reply.InReplyTo)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// handle answers one inbound payload. ok is false only for payloads that
// cannot be decoded at all; those are terminated rather than redelivered.
func (o *Orchestrator) handle(ctx context.Context, data []byte) (inats.QueryReply, bool) {
	var req inats.QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("orchestrator: unmarshaling query request", "error", err)
		return inats.QueryReply{}, false
	}

	reply := inats.QueryReply{
		ID:        uuid.NewString(),
		InReplyTo: req.ID,
		SessionID: req.SessionID,
	}

	if err := o.validate.Validate(req); err != nil {
		slog.Warn("orchestrator: invalid query request", "error", err, "id", req.ID)
		reply.Error = err.Error()
		return reply, true
	}

	resp, err := o.engine.Handle(ctx, Input{
		Query:     req.Query,
		SessionID: req.SessionID,
		RequestID: req.ID,
		PlanOnly:  req.PlanOnly,
	}, nil)
	if err != nil {
		reply.Error = httpError(err).Error()
		return reply, true
	}

	body, err := json.Marshal(resp)
	if err != nil {
		reply.Error = "encoding response failed"
		return reply, true
	}
	reply.SessionID = resp.SessionID
	reply.Response = body
	return reply, true
}

package audit

import (
	"context"

	inats "github.com/aiox-platform/gloser/internal/nats"
)

// Sink writes execution events straight to the store. It is used when the
// audit log is enabled without NATS; pipeline stage events are dropped.
type Sink struct {
	store Inserter
}

func NewSink(store Inserter) *Sink {
	return &Sink{store: store}
}

func (s *Sink) PublishPipelineEvent(context.Context, inats.PipelineEvent) error {
	return nil
}

func (s *Sink) PublishExecution(ctx context.Context, ev inats.ExecutionEvent) error {
	return s.store.Insert(ctx, FromEvent(ev))
}

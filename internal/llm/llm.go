// Package llm holds the language-model collaborators used for planning and
// answer synthesis.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/aiox-platform/gloser/internal/metrics"
)

var (
	ErrEmptyCompletion = errors.New("language model returned an empty completion")
	ErrUnknownProvider = errors.New("unknown language model provider")
)

// Completer turns a prompt into text. With jsonMode set the model is asked to
// reply with a single JSON object.
type Completer interface {
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, jsonMode bool) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	return f(ctx, prompt, jsonMode)
}

// Serialized allows one call at a time through the wrapped handle. Waiting
// callers give up when their context ends.
type Serialized struct {
	next Completer
	sem  chan struct{}
}

// Serialize wraps c so that overlapping requests never interleave on it.
// Each handle gets its own lock.
func Serialize(c Completer) *Serialized {
	return &Serialized{next: c, sem: make(chan struct{}, 1)}
}

func (s *Serialized) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	start := time.Now()
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.sem }()
	metrics.LLMLockWait.Observe(time.Since(start).Seconds())

	return s.next.Complete(ctx, prompt, jsonMode)
}

func observe(provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallsTotal.WithLabelValues(provider, status).Inc()
}

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const jsonInstruction = "Respond with a single valid JSON object and nothing else."

type AnthropicOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// Anthropic completes prompts through the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropic(opts AnthropicOptions) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(opts.Model),
		maxTokens: maxTokens,
	}
}

func (a *Anthropic) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	// The Messages API has no JSON response format, so ask for it instead.
	if jsonMode {
		params.System = []anthropic.TextBlockParam{{Text: jsonInstruction}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		observe("anthropic", err)
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		observe("anthropic", ErrEmptyCompletion)
		return "", ErrEmptyCompletion
	}
	observe("anthropic", nil)
	return b.String(), nil
}

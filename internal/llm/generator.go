package llm

import (
	"context"
	"errors"
	"iter"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/pkg/models"
)

// Request is one generation call.
type Request struct {
	Prompt string
	// System holds optional system instructions.
	System string
	// History is prior conversation, oldest first. Only user and assistant
	// messages are sent; other roles are display-only.
	History []models.Message
	// Temperature and MaxTokens override the client defaults when set.
	Temperature *float64
	MaxTokens   int64
}

// Generator produces text for a prompt, either whole or as a stream of
// fragments.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// GenerateStream yields fragments in order. A non-nil error is yielded at
	// most once and ends the sequence.
	GenerateStream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Generate executes a prompt and returns the full text response.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.inner.Messages.New(ctx, c.params(req))
	if err != nil {
		return "", classify("llm.Generate", err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}
	return result.String(), nil
}

// GenerateStream streams text deltas as they arrive.
func (c *Client) GenerateStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		stream := c.inner.Messages.NewStreaming(ctx, c.params(req))
		defer stream.Close()

		var inputTok, outputTok int64
		defer func() { c.tracker.Add(inputTok, outputTok) }()

		for stream.Next() {
			switch event := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				inputTok = event.Message.Usage.InputTokens
			case anthropic.MessageDeltaEvent:
				outputTok = event.Usage.OutputTokens
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !yield(delta.Text, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", classify("llm.GenerateStream", err))
		}
	}
}

func (c *Client) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages:    buildMessages(req.History, req.Prompt),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func buildMessages(history []models.Message, prompt string) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
}

// classify converts a backend failure into a generation error, marking rate
// limits, server errors and network failures as retryable.
func classify(op string, err error) error {
	e := &apperr.Error{Kind: apperr.KindGeneration, Op: op, Msg: "generation failed", Err: err}

	var apiErr *anthropic.Error
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		e.Retryable = apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	case errors.Is(err, context.DeadlineExceeded):
		e.Retryable = true
	case errors.As(err, &netErr):
		e.Retryable = true
	}
	return e
}

var _ Generator = (*Client)(nil)

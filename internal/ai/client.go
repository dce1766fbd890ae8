// Package ai wraps the Anthropic API for the judgment calls a crawler
// cannot make mechanically: pulling structured opportunities out of page
// text, tagging trades, and ranking search results. Every operation
// degrades to an empty result when the model is unavailable; AI failures
// never abort a crawl.
package ai

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Completer is the narrow model surface the analyst needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// sdkCompleter backs Completer with the official SDK.
type sdkCompleter struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewCompleter builds an SDK-backed Completer.
func NewCompleter(apiKey, model string, maxTokens int64) Completer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &sdkCompleter{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *sdkCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", nil
}

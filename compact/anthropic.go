// Copyright 2025 achetronic
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compact

import (
	"context"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/achetronic/adk-context-gateway/session"
)

const anthropicSummaryMaxTokens = 1024

// AnthropicSummarizer summarizes via the Anthropic Messages API. Used when
// an Anthropic key is configured and no OpenAI-compatible endpoint is.
type AnthropicSummarizer struct {
	client anthropic.Client
	model  string
}

// NewAnthropicSummarizer creates a summarizer over the Anthropic API.
func NewAnthropicSummarizer(apiKey, model string) *AnthropicSummarizer {
	return &AnthropicSummarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Summarize issues one non-streaming Messages call over the window. Like
// the OpenAI summarizer, failures yield (nil, nil).
func (s *AnthropicSummarizer) Summarize(ctx context.Context, events []*session.Event) (*Summary, error) {
	history := buildConversationHistory(events)
	if history == "" {
		return nil, nil
	}

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: anthropicSummaryMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: summarizeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildSummarizePrompt(events))),
		},
	})
	if err != nil {
		slog.Warn("Summarizer: Anthropic call failed", "model", s.model, "error", err)
		return nil, nil
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		slog.Warn("Summarizer: empty Anthropic completion", "model", s.model)
		return nil, nil
	}

	return newSummary(text, events), nil
}

var _ Summarizer = (*AnthropicSummarizer)(nil)

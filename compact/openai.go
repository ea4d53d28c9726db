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

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/achetronic/adk-context-gateway/scope"
	"github.com/achetronic/adk-context-gateway/session"
)

// OpenAISummarizer summarizes via an OpenAI-compatible chat completions
// endpoint (OpenAI, Ollama /v1, vLLM, LiteLLM, ...). The ambient
// per-request scope may redirect a single call to a different model or
// base URL.
type OpenAISummarizer struct {
	client openai.Client
	model  string
}

// OpenAISummarizerConfig holds transport configuration.
type OpenAISummarizerConfig struct {
	// BaseURL of the OpenAI-compatible endpoint, e.g. "https://api.openai.com/v1".
	BaseURL string
	// APIKey is optional for local backends.
	APIKey string
	// Model used for summarization.
	Model string
}

// NewOpenAISummarizer creates a summarizer over an OpenAI-compatible API.
func NewOpenAISummarizer(cfg OpenAISummarizerConfig) *OpenAISummarizer {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &OpenAISummarizer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Summarize issues one non-streaming completion over the window. Transport
// failures and empty completions yield (nil, nil): compaction is advisory
// and the budget remains the next line of defense.
func (s *OpenAISummarizer) Summarize(ctx context.Context, events []*session.Event) (*Summary, error) {
	history := buildConversationHistory(events)
	if history == "" {
		return nil, nil
	}

	model := s.model
	var callOpts []option.RequestOption
	if override := scope.Override(ctx); override != nil {
		if override.Model != "" {
			model = override.Model
		}
		if override.BaseURL != "" {
			callOpts = append(callOpts, option.WithBaseURL(override.BaseURL))
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizeSystemPrompt),
			openai.UserMessage(buildSummarizePrompt(events)),
		},
	}, callOpts...)
	if err != nil {
		slog.Warn("Summarizer: completion call failed", "model", model, "error", err)
		return nil, nil
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Warn("Summarizer: empty completion", "model", model)
		return nil, nil
	}

	return newSummary(resp.Choices[0].Message.Content, events), nil
}

var _ Summarizer = (*OpenAISummarizer)(nil)

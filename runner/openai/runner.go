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

// Package openai provides the bundled agent runner: it replays the session
// history (as seen through the decorated store, so compaction, trimming and
// the ambient request scope all apply on the read path) to an
// OpenAI-compatible chat completions endpoint and emits session events for
// the streamed response.
package openai

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/achetronic/adk-context-gateway/runner"
	"github.com/achetronic/adk-context-gateway/scope"
	"github.com/achetronic/adk-context-gateway/session"
)

// Runner implements runner.Runner over an OpenAI-compatible API.
type Runner struct {
	sessions session.Service
	client   openai.Client
	model    string
	system   string
}

// Config holds configuration for the runner.
type Config struct {
	// Sessions is the (decorated) session store the runner reads history
	// from and appends events to.
	Sessions session.Service
	// BaseURL of the OpenAI-compatible endpoint.
	BaseURL string
	// APIKey is optional for local backends.
	APIKey string
	// Model is the default model; the ambient scope may override it per
	// request.
	Model string
	// SystemPrompt is prepended to every turn when non-empty.
	SystemPrompt string
}

// New creates a runner.
func New(cfg Config) *Runner {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Runner{
		sessions: cfg.Sessions,
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		system:   cfg.SystemPrompt,
	}
}

// Run appends the user message (unless replaying for a retry), reads the
// session back through the store stack, and streams the completion as
// events carrying growing content snapshots. API failures become events
// with ErrorMessage set; only infrastructure failures (store errors) are
// yielded as iterator errors.
func (r *Runner) Run(ctx context.Context, req *runner.Request) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		key := session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}
		invocationID := uuid.NewString()

		if req.AppendNewMessage && req.NewMessage != nil {
			userEvent := &session.Event{
				InvocationID: invocationID,
				Author:       "user",
				Content:      req.NewMessage,
			}
			if err := r.sessions.AppendEvent(ctx, key, userEvent); err != nil {
				yield(nil, err)
				return
			}
		}

		resp, err := r.sessions.Get(ctx, &session.GetRequest{
			AppName:   req.AppName,
			UserID:    req.UserID,
			SessionID: req.SessionID,
		})
		if err != nil {
			yield(nil, err)
			return
		}

		model := r.model
		var callOpts []option.RequestOption
		if sc := scope.From(ctx); sc != nil {
			if sc.ModelOverride != nil {
				if sc.ModelOverride.Model != "" {
					model = sc.ModelOverride.Model
				}
				if sc.ModelOverride.BaseURL != "" {
					callOpts = append(callOpts, option.WithBaseURL(sc.ModelOverride.BaseURL))
				}
			}
			if sc.ToolExecutorURL != "" {
				callOpts = append(callOpts, option.WithHeader("X-Tool-Executor-URL", sc.ToolExecutorURL))
			}
		}

		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: r.buildMessages(resp.Session.Events),
		}

		if !req.Streaming {
			completion, err := r.client.Chat.Completions.New(ctx, params, callOpts...)
			if err != nil {
				yield(r.errorEvent(invocationID, err), nil)
				return
			}
			content := ""
			if len(completion.Choices) > 0 {
				content = completion.Choices[0].Message.Content
			}
			final := r.assistantEvent(invocationID, "", content)
			if err := r.sessions.AppendEvent(ctx, key, final); err != nil {
				yield(nil, err)
				return
			}
			yield(final, nil)
			return
		}

		stream := r.client.Chat.Completions.NewStreaming(ctx, params, callOpts...)
		defer stream.Close()

		var thought, content strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			thought.WriteString(reasoningDelta(delta))
			content.WriteString(delta.Content)

			if !yield(r.assistantEvent(invocationID, thought.String(), content.String()), nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				// Client cancelled; nothing to surface.
				return
			}
			yield(r.errorEvent(invocationID, err), nil)
			return
		}

		final := r.assistantEvent(invocationID, thought.String(), content.String())
		if err := r.sessions.AppendEvent(ctx, key, final); err != nil {
			yield(nil, err)
		}
	}
}

// buildMessages projects events to chat messages: thought and binary parts
// are skipped, whitespace-only events dropped, authors mapped to user or
// assistant the same way the trimming adapter maps them.
func (r *Runner) buildMessages(events []*session.Event) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if r.system != "" {
		messages = append(messages, openai.SystemMessage(r.system))
	}

	for _, evt := range events {
		if evt.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range evt.Content.Parts {
			if part == nil || part.Thought || part.InlineData != nil {
				continue
			}
			sb.WriteString(session.PartText(part))
		}
		text := sb.String()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if evt.Author == "" || strings.EqualFold(evt.Author, "user") {
			messages = append(messages, openai.UserMessage(text))
		} else {
			messages = append(messages, openai.AssistantMessage(text))
		}
	}
	return messages
}

func (r *Runner) assistantEvent(invocationID, thought, content string) *session.Event {
	var parts []*session.Part
	if thought != "" {
		parts = append(parts, &session.Part{Text: thought, Thought: true})
	}
	parts = append(parts, &session.Part{Text: content})

	return &session.Event{
		InvocationID: invocationID,
		Author:       "assistant",
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		Content:      &session.Content{Role: "model", Parts: parts},
	}
}

func (r *Runner) errorEvent(invocationID string, err error) *session.Event {
	return &session.Event{
		InvocationID: invocationID,
		Author:       "assistant",
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		ErrorMessage: err.Error(),
	}
}

// reasoningDelta extracts vendor reasoning deltas (DeepSeek-style
// "reasoning_content", Ollama-style "reasoning") from the chunk's extra
// fields.
func reasoningDelta(delta openai.ChatCompletionChunkChoiceDelta) string {
	for _, key := range []string{"reasoning_content", "reasoning"} {
		if field, ok := delta.JSON.ExtraFields[key]; ok {
			var s string
			if err := json.Unmarshal([]byte(field.Raw()), &s); err == nil {
				return s
			}
		}
	}
	return ""
}

var _ runner.Runner = (*Runner)(nil)

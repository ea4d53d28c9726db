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
	"strings"

	"github.com/achetronic/adk-context-gateway/session"
)

const summarizeSystemPrompt = `You are summarizing a conversation so it can continue after older messages are dropped. Preserve user goals, key facts, names, numbers, decisions made, and unresolved questions. Write in the same language as the conversation. Be concise but complete enough that the conversation can resume from the summary alone.`

const summarizePromptTemplate = `The following is a conversation history between a user and an assistant. Provide a concise summary that preserves everything needed to continue the conversation.

{conversation_history}`

// Summary is the summarizer's output: a role-tagged content block plus the
// timestamp range it covers.
type Summary struct {
	Content        *session.Content
	StartTimestamp float64
	EndTimestamp   float64
}

// Summarizer produces a summary of a window of events. Implementations
// return (nil, nil) when summarization is not possible (transport failure,
// empty model output); compaction then no-ops. A non-nil error is reserved
// for misconfiguration.
type Summarizer interface {
	Summarize(ctx context.Context, events []*session.Event) (*Summary, error)
}

// buildConversationHistory renders one "<author>: <text>" line per event
// with non-empty text, newline-joined.
func buildConversationHistory(events []*session.Event) string {
	var lines []string
	for _, evt := range events {
		text := session.EventText(evt)
		if strings.TrimSpace(text) == "" {
			continue
		}
		author := evt.Author
		if author == "" {
			author = "unknown"
		}
		lines = append(lines, author+": "+text)
	}
	return strings.Join(lines, "\n")
}

// buildSummarizePrompt substitutes the rendered history into the prompt
// template.
func buildSummarizePrompt(events []*session.Event) string {
	return strings.Replace(summarizePromptTemplate, "{conversation_history}", buildConversationHistory(events), 1)
}

// newSummary wraps raw summary text in the contract shape, stamping the
// covered timestamp range from the first and last event of the window.
func newSummary(text string, events []*session.Event) *Summary {
	if text == "" || len(events) == 0 {
		return nil
	}
	return &Summary{
		Content: &session.Content{
			Role:  "user",
			Parts: []*session.Part{{Text: text}},
		},
		StartTimestamp: events[0].Timestamp,
		EndTimestamp:   events[len(events)-1].Timestamp,
	}
}

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

// Package ranker defines the uniform message projection used by priority
// trimming, and the ranking contract it calls into. The projection is lossy:
// all-whitespace events are dropped, and the reverse index lets a selected
// message set be lifted back to the exact originating events.
package ranker

import (
	"fmt"
	"strings"

	"github.com/achetronic/adk-context-gateway/session"
)

// Role is the projected message role.
type Role int

const (
	System Role = iota
	User
	Assistant
)

// ContentItem is one typed fragment of a projected message.
type ContentItem struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Message is the uniform role-tagged projection of a session event. Every
// projected message originates from exactly one event.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentItem `json:"content"`
}

// Text returns the concatenated stringified content of a message.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, item := range m.Content {
		if s, ok := item.Value.(string); ok {
			sb.WriteString(s)
			continue
		}
		if item.Value != nil {
			sb.WriteString(fmt.Sprintf("%v", item.Value))
		}
	}
	return sb.String()
}

// Tokens returns the estimated token count of a message, summed per item
// the same way the event estimator sums parts. Binary items contribute
// zero, matching the event side.
func (m *Message) Tokens() int {
	total := 0
	for _, item := range m.Content {
		if item.Type == "binary" || item.Value == nil {
			continue
		}
		if s, ok := item.Value.(string); ok {
			total += session.EstimateTextTokens(s)
			continue
		}
		total += session.EstimateTextTokens(fmt.Sprintf("%v", item.Value))
	}
	return total
}

// Scored pairs a message with its priority score and the reasons behind it.
type Scored struct {
	Score   float64
	Reasons []string
	Message *Message
}

// Ranker is the external priority-ranking contract consumed by the trimming
// decorator. SelectByTokenBudget must return a subset of the input pointers
// preserving their relative order.
type Ranker interface {
	SortByPriority(messages []*Message) []Scored
	SelectByTokenBudget(messages []*Message, budget int, tokenFn func(*Message) int) []*Message
	SelectTopMessages(messages []*Message, n int) []*Message
}

// EventsToMessages projects events to messages. Events whose concatenated
// text is all-whitespace are dropped. Authors "user" or empty map to User
// (case-insensitive); everything else maps to Assistant. The System role is
// never produced: system prompts enter the model through the runner, not
// the event log.
//
// eventIndices[k] is the position in events of the event that produced
// messages[k].
func EventsToMessages(events []*session.Event) (messages []*Message, eventIndices []int) {
	for i, evt := range events {
		if evt == nil || evt.Content == nil {
			continue
		}

		var items []ContentItem
		var textLen int
		for _, part := range evt.Content.Parts {
			text := session.PartText(part)
			if part != nil && part.InlineData != nil && part.Text == "" && part.Value == nil {
				items = append(items, ContentItem{Type: "binary", Value: text})
			} else {
				items = append(items, ContentItem{Type: "text", Value: text})
			}
			textLen += len(strings.TrimSpace(text))
		}
		if textLen == 0 {
			continue
		}

		role := Assistant
		if evt.Author == "" || strings.EqualFold(evt.Author, "user") {
			role = User
		}

		messages = append(messages, &Message{Role: role, Content: items})
		eventIndices = append(eventIndices, i)
	}
	return messages, eventIndices
}

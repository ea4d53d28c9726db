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

// Package trim implements the two event-selection disciplines used to keep
// a session's history inside a token budget: priority-ranked selection with
// FIFO fallback. Both return chronological subsequences of the input; a
// model turn is never reordered because that would break tool-call
// causality.
package trim

import (
	"sort"

	"github.com/achetronic/adk-context-gateway/ranker"
	"github.com/achetronic/adk-context-gateway/session"
)

// minMessagesToTrim is the projection size below which priority trimming
// refuses to act: shorter conversations carry no meaningful rank signal.
const minMessagesToTrim = 4

// FIFO returns the longest suffix of events whose cumulative estimated
// tokens fit the budget. The result is never empty: if even the last event
// alone exceeds the budget, that single event is kept.
func FIFO(events []*session.Event, budget int) []*session.Event {
	if len(events) == 0 {
		return events
	}

	tokens := 0
	start := len(events)
	for i := len(events) - 1; i >= 0; i-- {
		tokens += session.EstimateEventTokens(events[i])
		if tokens > budget {
			break
		}
		start = i
	}

	if start == len(events) {
		// Keep at least one.
		start = len(events) - 1
	}
	return events[start:]
}

// Priority projects events to messages, asks the ranker for a selection
// under the budget, and lifts the selection back to events in chronological
// order. Conversations projecting to 3 messages or fewer are returned
// unchanged. The caller is responsible for falling back to FIFO when the
// result is not strictly smaller than the input.
func Priority(events []*session.Event, budget int, r ranker.Ranker) []*session.Event {
	if r == nil {
		return events
	}

	messages, eventIndices := ranker.EventsToMessages(events)
	if len(messages) < minMessagesToTrim {
		return events
	}

	indexOf := make(map[*ranker.Message]int, len(messages))
	for k, msg := range messages {
		indexOf[msg] = eventIndices[k]
	}

	selected := r.SelectByTokenBudget(messages, budget, func(m *ranker.Message) int { return m.Tokens() })
	if len(selected) == 0 {
		return events
	}

	indices := make([]int, 0, len(selected))
	for _, msg := range selected {
		if idx, ok := indexOf[msg]; ok {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		// The ranker returned pointers outside the projection; nothing to
		// lift, keep the input.
		return events
	}
	sort.Ints(indices)

	out := make([]*session.Event, 0, len(indices))
	for _, idx := range indices {
		out = append(out, events[idx])
	}
	return out
}

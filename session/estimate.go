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

package session

import "fmt"

// Token estimation uses the ~4 chars per token heuristic. This estimate is
// the only token measure used for budget decisions anywhere in the module;
// the LLM's real tokenizer matters only for error detection.

// EstimatePartTokens returns a rough token count for a single part. Text and
// stringified values count; inline binary data contributes zero.
func EstimatePartTokens(p *Part) int {
	if p == nil {
		return 0
	}
	n := 0
	if p.Text != "" {
		n = len(p.Text)
	} else if p.Value != nil {
		n = len(fmt.Sprintf("%v", p.Value))
	}
	return (n + 3) / 4
}

// EstimateEventTokens returns a rough token count for an event, summing over
// its parts.
func EstimateEventTokens(evt *Event) int {
	if evt == nil || evt.Content == nil {
		return 0
	}
	total := 0
	for _, part := range evt.Content.Parts {
		total += EstimatePartTokens(part)
	}
	return total
}

// EstimateEventsTokens returns a rough token count for a whole event list.
func EstimateEventsTokens(events []*Event) int {
	total := 0
	for _, evt := range events {
		total += EstimateEventTokens(evt)
	}
	return total
}

// EstimateTextTokens returns a rough token count for a plain string.
func EstimateTextTokens(text string) int {
	return (len(text) + 3) / 4
}

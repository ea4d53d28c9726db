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

import (
	"strings"
	"testing"
)

func TestEstimatePartTokens(t *testing.T) {
	tests := []struct {
		name string
		part *Part
		want int
	}{
		{"nil part", nil, 0},
		{"empty part", &Part{}, 0},
		{"exact multiple", &Part{Text: "abcd"}, 1},
		{"rounds up", &Part{Text: "abcde"}, 2},
		{"single char", &Part{Text: "a"}, 1},
		{"value stringified", &Part{Value: 12345}, 2},
		{"text wins over value", &Part{Text: "abcd", Value: "ignored-long-value"}, 1},
		{"inline data is free", &Part{InlineData: &Blob{MIMEType: "image/png", Data: make([]byte, 4096)}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimatePartTokens(tt.part); got != tt.want {
				t.Errorf("EstimatePartTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateEventTokensSumsPerPart(t *testing.T) {
	// Ceiling applies per part: two 2-char parts cost 2 tokens, not 1.
	evt := &Event{Content: &Content{Parts: []*Part{
		{Text: "ab"},
		{Text: "cd"},
	}}}
	if got := EstimateEventTokens(evt); got != 2 {
		t.Errorf("EstimateEventTokens() = %d, want 2", got)
	}

	if got := EstimateEventTokens(nil); got != 0 {
		t.Errorf("EstimateEventTokens(nil) = %d, want 0", got)
	}
	if got := EstimateEventTokens(&Event{}); got != 0 {
		t.Errorf("EstimateEventTokens(no content) = %d, want 0", got)
	}
}

func TestEstimateEventsTokens(t *testing.T) {
	events := []*Event{
		{Content: &Content{Parts: []*Part{{Text: strings.Repeat("x", 400)}}}},
		{Content: &Content{Parts: []*Part{{Text: strings.Repeat("y", 200)}}}},
		nil,
	}
	if got := EstimateEventsTokens(events); got != 150 {
		t.Errorf("EstimateEventsTokens() = %d, want 150", got)
	}
}

func TestEstimateTextTokens(t *testing.T) {
	if got := EstimateTextTokens(""); got != 0 {
		t.Errorf("EstimateTextTokens(\"\") = %d, want 0", got)
	}
	if got := EstimateTextTokens(strings.Repeat("z", 2000)); got != 500 {
		t.Errorf("EstimateTextTokens(2000 chars) = %d, want 500", got)
	}
}

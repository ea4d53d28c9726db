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

// Package compact implements sliding-window compaction: a contiguous window
// of older events is summarized by an LLM and replaced with a single
// summary event. Compaction recurs as the history keeps growing past the
// interval; the summary event itself simply becomes part of the prefix.
package compact

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/achetronic/adk-context-gateway/session"
)

const (
	// DefaultInterval is the number of events per compaction window.
	DefaultInterval = 3

	// DefaultOverlap is the number of already-compacted events re-included
	// in the next window for continuity.
	DefaultOverlap = 1

	// DefaultMinEvents is the smallest window worth summarizing.
	DefaultMinEvents = 3

	summaryPrefix = "[Previous conversation summary]\n"
)

// Compactor computes sliding windows over an event list and splices in the
// summary produced by its Summarizer.
type Compactor struct {
	Interval   int
	Overlap    int
	MinEvents  int
	Summarizer Summarizer
}

// NewCompactor creates a compactor with defaults filled in.
func NewCompactor(summarizer Summarizer, interval, overlap, minEvents int) *Compactor {
	if interval < 1 {
		interval = DefaultInterval
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if minEvents <= 0 {
		minEvents = DefaultMinEvents
	}
	return &Compactor{
		Interval:   interval,
		Overlap:    overlap,
		MinEvents:  minEvents,
		Summarizer: summarizer,
	}
}

// Window computes the compaction window [start, end) for a history of n
// events. ok is false when the history has not crossed the interval yet or
// the window would be smaller than MinEvents.
func (c *Compactor) Window(n int) (start, end int, ok bool) {
	fullWindows := n / c.Interval
	if fullWindows == 0 {
		return 0, 0, false
	}

	end = fullWindows * c.Interval
	start = end - c.Interval - c.Overlap
	if start < 0 {
		start = 0
	}
	if end-start < c.MinEvents {
		return 0, 0, false
	}
	return start, end, true
}

// Run compacts the current window of the given events. It returns the new
// event list, or nil when nothing was compacted (history too short, window
// below the minimum, or the summarizer produced nothing). Events outside
// the window are carried over untouched; the summary event takes the
// window's place with the last window event's timestamp, authored as "user"
// so every runner replays it as part of the prompt.
func (c *Compactor) Run(ctx context.Context, events []*session.Event) ([]*session.Event, error) {
	start, end, ok := c.Window(len(events))
	if !ok {
		return nil, nil
	}

	toCompact := events[start:end]
	summary, err := c.Summarizer.Summarize(ctx, toCompact)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	if summary == nil || summaryText(summary) == "" {
		return nil, nil
	}

	summaryEvent := &session.Event{
		ID:           fmt.Sprintf("compaction_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		InvocationID: uuid.NewString(),
		Author:       "user",
		Timestamp:    events[end-1].Timestamp,
		Content: &session.Content{
			Role:  "user",
			Parts: []*session.Part{{Text: summaryPrefix + summaryText(summary)}},
		},
	}

	out := make([]*session.Event, 0, start+1+len(events)-end)
	out = append(out, events[:start]...)
	out = append(out, summaryEvent)
	out = append(out, events[end:]...)
	return out, nil
}

func summaryText(s *Summary) string {
	if s == nil || s.Content == nil {
		return ""
	}
	var text string
	for _, part := range s.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	return text
}

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

package memory

import (
	"fmt"
	"strings"

	"github.com/achetronic/adk-context-gateway/ranker"
	"github.com/achetronic/adk-context-gateway/session"
)

const (
	stuckWindowSize    = 6
	stuckMinRepeats    = 3
	repetitionSnippet  = 120
	stuckTypeRepeating = "repetition"
)

// RepetitionDetector is a heuristic StuckDetector: it flags conversations
// whose recent assistant turns keep producing near-identical output.
type RepetitionDetector struct{}

// NewRepetitionDetector creates the heuristic detector.
func NewRepetitionDetector() *RepetitionDetector {
	return &RepetitionDetector{}
}

// DetectStuck inspects the last few assistant messages. Confidence is the
// share of the window occupied by the most repeated normalized snippet.
func (d *RepetitionDetector) DetectStuck(messages []*ranker.Message) (*Detection, error) {
	var recent []string
	for i := len(messages) - 1; i >= 0 && len(recent) < stuckWindowSize; i-- {
		if messages[i].Role != ranker.Assistant {
			continue
		}
		text := normalizeSnippet(messages[i].Text())
		if text != "" {
			recent = append(recent, text)
		}
	}

	if len(recent) < stuckMinRepeats {
		return &Detection{IsStuck: false}, nil
	}

	counts := make(map[string]int, len(recent))
	top, topCount := "", 0
	for _, text := range recent {
		counts[text]++
		if counts[text] > topCount {
			top, topCount = text, counts[text]
		}
	}

	if topCount < stuckMinRepeats {
		return &Detection{IsStuck: false}, nil
	}

	return &Detection{
		IsStuck:         true,
		Type:            stuckTypeRepeating,
		Confidence:      float64(topCount) / float64(len(recent)),
		Evidence:        []string{fmt.Sprintf("%d of the last %d assistant turns repeat: %q", topCount, len(recent), top)},
		SuggestedAction: "change approach",
	}, nil
}

// GenerateRecoveryMessage proposes a short steering note for the next turn.
func (d *RepetitionDetector) GenerateRecoveryMessage(detection *Detection) (*RecoveryMessage, error) {
	if detection == nil || !detection.IsStuck {
		return nil, nil
	}

	text := "The previous attempts appear to be repeating without progress. Take a different approach: re-read the goal, question the current assumption, and try an alternative strategy."
	return &RecoveryMessage{
		Content: []*session.Part{{Text: text}},
	}, nil
}

func normalizeSnippet(text string) string {
	text = strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if len(text) > repetitionSnippet {
		text = text[:repetitionSnippet]
	}
	return text
}

var _ StuckDetector = (*RepetitionDetector)(nil)

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

package ranker

import (
	"sort"
	"strings"
)

const (
	recencyWeight = 0.6
	roleWeight    = 0.3
	overlapWeight = 0.4
)

// Heuristic is the default Ranker implementation. Scoring favors recent
// messages, weights user turns above assistant turns, and rewards overlap
// with the query terms when a query is set.
type Heuristic struct {
	// Query biases scoring toward messages sharing terms with it. Optional.
	Query string
}

// NewHeuristic creates a heuristic ranker biased by the given query.
func NewHeuristic(query string) *Heuristic {
	return &Heuristic{Query: query}
}

// SortByPriority scores every message and returns them ordered by score,
// highest first.
func (h *Heuristic) SortByPriority(messages []*Message) []Scored {
	scored := make([]Scored, 0, len(messages))
	terms := queryTerms(h.Query)

	for i, msg := range messages {
		var reasons []string

		recency := 0.0
		if len(messages) > 1 {
			recency = float64(i) / float64(len(messages)-1)
		}
		score := recencyWeight * recency
		if recency > 0.75 {
			reasons = append(reasons, "recent")
		}

		if msg.Role == User {
			score += roleWeight
			reasons = append(reasons, "user turn")
		}

		if len(terms) > 0 {
			overlap := termOverlap(msg.Text(), terms)
			if overlap > 0 {
				score += overlapWeight * overlap
				reasons = append(reasons, "query overlap")
			}
		}

		scored = append(scored, Scored{Score: score, Reasons: reasons, Message: msg})
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	return scored
}

// SelectByTokenBudget picks the highest-scoring messages whose cumulative
// token count fits the budget, then restores their original relative order.
// At least one message is always selected when the input is non-empty.
func (h *Heuristic) SelectByTokenBudget(messages []*Message, budget int, tokenFn func(*Message) int) []*Message {
	if len(messages) == 0 {
		return nil
	}
	if tokenFn == nil {
		tokenFn = func(m *Message) int { return m.Tokens() }
	}

	keep := make(map[*Message]bool, len(messages))
	used := 0
	for _, sc := range h.SortByPriority(messages) {
		cost := tokenFn(sc.Message)
		if used+cost > budget && len(keep) > 0 {
			continue
		}
		keep[sc.Message] = true
		used += cost
	}

	var out []*Message
	for _, msg := range messages {
		if keep[msg] {
			out = append(out, msg)
		}
	}
	return out
}

// SelectTopMessages returns the n highest-scoring messages in their original
// relative order.
func (h *Heuristic) SelectTopMessages(messages []*Message, n int) []*Message {
	if n <= 0 || len(messages) == 0 {
		return nil
	}
	if n > len(messages) {
		n = len(messages)
	}

	keep := make(map[*Message]bool, n)
	for _, sc := range h.SortByPriority(messages)[:n] {
		keep[sc.Message] = true
	}

	var out []*Message
	for _, msg := range messages {
		if keep[msg] {
			out = append(out, msg)
		}
	}
	return out
}

func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) >= 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

func termOverlap(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

var _ Ranker = (*Heuristic)(nil)

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

// Package memory defines the associative-memory and stuck-detection
// contracts consumed by the gateway's pre- and post-hooks. Backends are
// pluggable; a Postgres implementation lives in memory/postgres and a
// heuristic stuck detector is provided here.
package memory

import (
	"context"
	"time"

	"github.com/achetronic/adk-context-gateway/ranker"
	"github.com/achetronic/adk-context-gateway/session"
)

// Outcome classifies how a task ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Node is one stored memory entry.
type Node struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	Source      string    `json:"source,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SieveResult is the context block assembled for a query under a token
// budget.
type SieveResult struct {
	Context       string `json:"context"`
	NodesIncluded int    `json:"nodesIncluded"`
	TokensUsed    int    `json:"tokensUsed"`
}

// Associative is the long-term memory contract: relevance-ranked recall
// under a token budget, ingestion, and task-outcome bookkeeping.
type Associative interface {
	Sieve(ctx context.Context, query string, tokenBudget int) (*SieveResult, error)
	Ingest(ctx context.Context, content, category, subcategory, source string, tags []string) (*Node, error)
	RecordTaskOutcome(ctx context.Context, outcome Outcome) error
}

// Detection is the result of a stuck-detection pass over recent messages.
type Detection struct {
	IsStuck         bool     `json:"isStuck"`
	Type            string   `json:"type,omitempty"`
	Confidence      float64  `json:"confidence"`
	Evidence        []string `json:"evidence,omitempty"`
	SuggestedAction string   `json:"suggestedAction,omitempty"`
}

// RecoveryMessage is the content a stuck detector proposes injecting into
// the next turn.
type RecoveryMessage struct {
	Content []*session.Part `json:"content"`
}

// StuckDetector inspects recent conversation messages for unproductive
// loops and proposes a recovery message.
type StuckDetector interface {
	DetectStuck(messages []*ranker.Message) (*Detection, error)
	GenerateRecoveryMessage(detection *Detection) (*RecoveryMessage, error)
}

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

// Package postgres provides a Postgres-backed associative memory. Nodes are
// stored with their embedding vectors; sieve ranks candidates by cosine
// similarity and assembles a context block under a token budget.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/achetronic/adk-context-gateway/memory"
	"github.com/achetronic/adk-context-gateway/session"
)

// sieveCandidateLimit bounds how many recent nodes are scored per query.
const sieveCandidateLimit = 500

// AssociativeMemory implements memory.Associative on Postgres.
type AssociativeMemory struct {
	db        *sql.DB
	embedding EmbeddingModel
}

// AssociativeMemoryConfig holds configuration for AssociativeMemory.
type AssociativeMemoryConfig struct {
	// DSN is the Postgres connection string.
	DSN string
	// Embedding generates vectors for stored and queried text.
	Embedding EmbeddingModel
}

// NewAssociativeMemory connects to Postgres and ensures the schema exists.
func NewAssociativeMemory(cfg AssociativeMemoryConfig) (*AssociativeMemory, error) {
	if cfg.Embedding == nil {
		return nil, fmt.Errorf("embedding model is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	m := &AssociativeMemory{db: db, embedding: cfg.Embedding}
	if err := m.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AssociativeMemory) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS memory_nodes (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	category    TEXT NOT NULL,
	subcategory TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	tags        JSONB NOT NULL DEFAULT '[]',
	embedding   JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS memory_outcomes (
	id          BIGSERIAL PRIMARY KEY,
	outcome     TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Ingest embeds the content and stores a new node.
func (m *AssociativeMemory) Ingest(ctx context.Context, content, category, subcategory, source string, tags []string) (*memory.Node, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}

	vector, err := m.embedding.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}

	node := &memory.Node{
		ID:          uuid.NewString(),
		Content:     content,
		Category:    category,
		Subcategory: subcategory,
		Source:      source,
		Tags:        tags,
		CreatedAt:   time.Now(),
	}

	tagsJSON, err := json.Marshal(node.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO memory_nodes (id, content, category, subcategory, source, tags, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		node.ID, node.Content, node.Category, node.Subcategory, node.Source, tagsJSON, vectorJSON, node.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}

	return node, nil
}

// Sieve embeds the query, ranks recent nodes by cosine similarity, and
// packs the best ones into a context block whose estimated token count
// stays within the budget.
func (m *AssociativeMemory) Sieve(ctx context.Context, query string, tokenBudget int) (*memory.SieveResult, error) {
	queryVec, err := m.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT content, embedding FROM memory_nodes ORDER BY created_at DESC LIMIT $1`,
		sieveCandidateLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		content string
		score   float64
	}
	var candidates []candidate

	for rows.Next() {
		var content string
		var vectorJSON []byte
		if err := rows.Scan(&content, &vectorJSON); err != nil {
			continue
		}
		var vector []float32
		if err := json.Unmarshal(vectorJSON, &vector); err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			content: content,
			score:   cosineSimilarity(queryVec, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}

	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

	var sb strings.Builder
	included, used := 0, 0
	for _, c := range candidates {
		line := "- " + c.content
		cost := session.EstimateTextTokens(line)
		if used+cost > tokenBudget && included > 0 {
			break
		}
		if used+cost > tokenBudget {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
		included++
		used += cost
	}

	return &memory.SieveResult{
		Context:       sb.String(),
		NodesIncluded: included,
		TokensUsed:    used,
	}, nil
}

// RecordTaskOutcome appends a task outcome to the bookkeeping table.
func (m *AssociativeMemory) RecordTaskOutcome(ctx context.Context, outcome memory.Outcome) error {
	switch outcome {
	case memory.OutcomeSuccess, memory.OutcomeFailure, memory.OutcomePartial:
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	if _, err := m.db.ExecContext(ctx, `INSERT INTO memory_outcomes (outcome) VALUES ($1)`, string(outcome)); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (m *AssociativeMemory) Close() error {
	return m.db.Close()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ memory.Associative = (*AssociativeMemory)(nil)

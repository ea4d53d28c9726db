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

package trim

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/achetronic/adk-context-gateway/ranker"
	"github.com/achetronic/adk-context-gateway/scope"
	"github.com/achetronic/adk-context-gateway/session"
)

const (
	// DefaultBaseBudget is the trimmer's base token budget when no
	// per-request override is set.
	DefaultBaseBudget = 4000

	// DefaultBufferTokens reserves headroom for the system prompt, tool
	// schemas, attachments, and the incoming message.
	DefaultBufferTokens = 2200

	// MinEffectiveBudget is the floor below which the effective budget
	// never drops, retry factor included.
	MinEffectiveBudget = 1000
)

var tracer = otel.Tracer("github.com/achetronic/adk-context-gateway/trim")

// ServiceConfig configures the trimming decorator.
type ServiceConfig struct {
	// BaseBudget is the default token budget (default 4000). A per-request
	// contextLimit carried in the ambient scope overrides it.
	BaseBudget int

	// BufferTokens is subtracted from the base before trimming (default 2200).
	BufferTokens int

	// Ranker performs priority selection. When nil, trimming goes straight
	// to the FIFO fallback.
	Ranker ranker.Ranker
}

// Service is the trimming decorator. It stacks outside the compacting
// decorator (compaction first, trimming second) and produces per-request
// views: trimmed event lists are never written back to the inner store,
// because priority rankings are query-dependent and destructive trimming
// would discard context useful to a later, differently-phrased turn.
type Service struct {
	inner  session.Service
	cfg    ServiceConfig
	ranker ranker.Ranker
}

// NewService wraps a store with budget-driven trimming.
func NewService(inner session.Service, cfg ServiceConfig) *Service {
	if cfg.BaseBudget <= 0 {
		cfg.BaseBudget = DefaultBaseBudget
	}
	if cfg.BufferTokens <= 0 {
		cfg.BufferTokens = DefaultBufferTokens
	}
	return &Service{inner: inner, cfg: cfg, ranker: cfg.Ranker}
}

// EffectiveBudget resolves the token budget for the current request:
// max(1000, (base - buffer) * retryFactor), where base is the per-request
// contextLimit override when set, and retryFactor tightens the budget on a
// token-limit retry pass.
func (s *Service) EffectiveBudget(ctx context.Context) int {
	base := s.cfg.BaseBudget
	if limit := scope.ContextLimit(ctx); limit > 0 {
		base = limit
	}

	budget := int(float64(base-s.cfg.BufferTokens) * scope.EffectiveRetryFactor(ctx))
	if budget < MinEffectiveBudget {
		budget = MinEffectiveBudget
	}
	return budget
}

// Get fetches the inner session and, when its estimated token count exceeds
// the effective budget, returns a view holding a trimmed event list.
// Sessions with fewer than 4 events pass through untouched.
func (s *Service) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	resp, err := s.inner.Get(ctx, req)
	if err != nil {
		return nil, err
	}

	sess := resp.Session
	if sess == nil || len(sess.Events) < 4 {
		return resp, nil
	}

	budget := s.EffectiveBudget(ctx)
	estimated := session.EstimateEventsTokens(sess.Events)
	if estimated <= budget {
		return resp, nil
	}

	ctx, span := tracer.Start(ctx, "trim.Get")
	defer span.End()
	span.SetAttributes(
		attribute.Int("trim.budget", budget),
		attribute.Int("trim.estimated_tokens", estimated),
		attribute.Int("trim.events_in", len(sess.Events)),
	)

	trimmed := Priority(sess.Events, budget, s.ranker)
	strategy := "priority"
	if len(trimmed) >= len(sess.Events) {
		trimmed = FIFO(sess.Events, budget)
		strategy = "fifo"
	}
	if len(trimmed) >= len(sess.Events) {
		return resp, nil
	}

	span.SetAttributes(
		attribute.Int("trim.events_out", len(trimmed)),
		attribute.String("trim.strategy", strategy),
	)
	slog.Info("Trimming: session over budget, returning trimmed view",
		"session", sess.ID,
		"strategy", strategy,
		"estimatedTokens", estimated,
		"budget", budget,
		"eventsIn", len(sess.Events),
		"eventsOut", len(trimmed),
	)

	return &session.GetResponse{Session: sess.WithEvents(trimmed)}, nil
}

// Create passes through to the inner store.
func (s *Service) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	return s.inner.Create(ctx, req)
}

// List passes through to the inner store.
func (s *Service) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	return s.inner.List(ctx, req)
}

// Delete passes through to the inner store.
func (s *Service) Delete(ctx context.Context, req *session.DeleteRequest) error {
	return s.inner.Delete(ctx, req)
}

// AppendEvent passes through to the inner store.
func (s *Service) AppendEvent(ctx context.Context, key session.Key, evt *session.Event) error {
	return s.inner.AppendEvent(ctx, key, evt)
}

var _ session.Service = (*Service)(nil)

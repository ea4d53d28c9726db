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

// Package scope carries per-request configuration through the context, so
// two concurrent requests can never clobber each other's model override or
// retry budget. It is threaded into the session store read path and the
// summarizer call path.
package scope

import "context"

type ctxKey struct{}

// ModelOverride redirects the turn to a different model and, optionally, a
// different OpenAI-compatible endpoint.
type ModelOverride struct {
	Model   string `json:"model"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Scope is the ambient per-request configuration.
type Scope struct {
	// ModelOverride, when non-nil, replaces the configured model for this
	// request only.
	ModelOverride *ModelOverride

	// ContextLimit overrides the trimmer's base token budget when > 0.
	ContextLimit int

	// RetryTrimPercent is the percentage of the budget kept on a retry
	// pass. Defaults to 12.5.
	RetryTrimPercent float64

	// RetryFactor is RetryTrimPercent/100 on a retry pass, 1 otherwise.
	RetryFactor float64

	// ToolExecutorURL is forwarded to the runner.
	ToolExecutorURL string
}

// With returns a context carrying the given scope.
func With(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the scope carried by the context, or nil when none is set.
func From(ctx context.Context) *Scope {
	s, _ := ctx.Value(ctxKey{}).(*Scope)
	return s
}

// EffectiveRetryFactor returns the scope's retry factor, treating a missing
// scope or an unset factor as 1 (no tightening).
func EffectiveRetryFactor(ctx context.Context) float64 {
	s := From(ctx)
	if s == nil || s.RetryFactor <= 0 || s.RetryFactor > 1 {
		return 1
	}
	return s.RetryFactor
}

// ContextLimit returns the per-request budget override, or 0 when unset.
func ContextLimit(ctx context.Context) int {
	s := From(ctx)
	if s == nil || s.ContextLimit <= 0 {
		return 0
	}
	return s.ContextLimit
}

// Override returns the per-request model override, or nil when unset.
func Override(ctx context.Context) *ModelOverride {
	s := From(ctx)
	if s == nil {
		return nil
	}
	return s.ModelOverride
}

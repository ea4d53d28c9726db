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

package scope

import (
	"context"
	"testing"
)

func TestFromWithoutScope(t *testing.T) {
	if From(context.Background()) != nil {
		t.Fatal("expected nil scope from a bare context")
	}
}

func TestWithAndFrom(t *testing.T) {
	sc := &Scope{ContextLimit: 9000, ToolExecutorURL: "http://tools"}
	ctx := With(context.Background(), sc)

	if got := From(ctx); got != sc {
		t.Fatal("From returned a different scope")
	}
}

func TestScopesAreIndependent(t *testing.T) {
	// Two request contexts must never see each other's scope.
	a := With(context.Background(), &Scope{ContextLimit: 100})
	b := With(context.Background(), &Scope{ContextLimit: 200})

	From(a).RetryFactor = 0.5
	if From(b).RetryFactor != 0 {
		t.Fatal("scope mutation leaked across contexts")
	}
}

func TestEffectiveRetryFactor(t *testing.T) {
	tests := []struct {
		name  string
		scope *Scope
		want  float64
		noCtx bool
	}{
		{"no scope", nil, 1, true},
		{"unset factor", &Scope{}, 1, false},
		{"valid factor", &Scope{RetryFactor: 0.125}, 0.125, false},
		{"full factor", &Scope{RetryFactor: 1}, 1, false},
		{"negative clamped", &Scope{RetryFactor: -2}, 1, false},
		{"above one clamped", &Scope{RetryFactor: 1.5}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if !tt.noCtx {
				ctx = With(ctx, tt.scope)
			}
			if got := EffectiveRetryFactor(ctx); got != tt.want {
				t.Errorf("EffectiveRetryFactor() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestContextLimit(t *testing.T) {
	if got := ContextLimit(context.Background()); got != 0 {
		t.Errorf("bare context limit = %d, want 0", got)
	}
	ctx := With(context.Background(), &Scope{ContextLimit: 32000})
	if got := ContextLimit(ctx); got != 32000 {
		t.Errorf("ContextLimit() = %d, want 32000", got)
	}
	ctx = With(context.Background(), &Scope{ContextLimit: -5})
	if got := ContextLimit(ctx); got != 0 {
		t.Errorf("negative limit = %d, want 0", got)
	}
}

func TestOverride(t *testing.T) {
	if Override(context.Background()) != nil {
		t.Fatal("bare context must carry no override")
	}
	ov := &ModelOverride{Model: "llama3", BaseURL: "http://localhost:11434/v1"}
	ctx := With(context.Background(), &Scope{ModelOverride: ov})
	if got := Override(ctx); got != ov {
		t.Fatal("Override returned a different value")
	}
}

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
	"testing"

	"github.com/achetronic/adk-context-gateway/scope"
	"github.com/achetronic/adk-context-gateway/session"
)

// fixedStore serves a single canned session and records writes.
type fixedStore struct {
	session  *session.Session
	appends  int
	replaces int
}

func (f *fixedStore) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	return &session.CreateResponse{Session: f.session}, nil
}

func (f *fixedStore) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	return &session.GetResponse{Session: f.session}, nil
}

func (f *fixedStore) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	return &session.ListResponse{Sessions: []*session.Session{f.session}}, nil
}

func (f *fixedStore) Delete(ctx context.Context, req *session.DeleteRequest) error {
	return nil
}

func (f *fixedStore) AppendEvent(ctx context.Context, key session.Key, evt *session.Event) error {
	f.appends++
	f.session.Events = append(f.session.Events, evt)
	return nil
}

func (f *fixedStore) ReplaceEvents(ctx context.Context, key session.Key, events []*session.Event) error {
	f.replaces++
	f.session.Events = events
	return nil
}

func storeWith(events []*session.Event) *fixedStore {
	return &fixedStore{session: &session.Session{AppName: "app", UserID: "u", ID: "s1", Events: events}}
}

// ---------------------------------------------------------------------------
// Effective budget
// ---------------------------------------------------------------------------

func TestEffectiveBudgetDefaults(t *testing.T) {
	svc := NewService(storeWith(nil), ServiceConfig{})

	if got := svc.EffectiveBudget(context.Background()); got != 1800 {
		t.Errorf("default budget = %d, want 1800", got)
	}
}

func TestEffectiveBudgetRetryFloor(t *testing.T) {
	svc := NewService(storeWith(nil), ServiceConfig{})

	ctx := scope.With(context.Background(), &scope.Scope{RetryFactor: 0.125})
	// (4000-2200)*0.125 = 225, floored to 1000.
	if got := svc.EffectiveBudget(ctx); got != 1000 {
		t.Errorf("retry budget = %d, want 1000 floor", got)
	}
}

func TestEffectiveBudgetContextLimitOverride(t *testing.T) {
	svc := NewService(storeWith(nil), ServiceConfig{})

	ctx := scope.With(context.Background(), &scope.Scope{ContextLimit: 10000})
	if got := svc.EffectiveBudget(ctx); got != 7800 {
		t.Errorf("overridden budget = %d, want 7800", got)
	}

	ctx = scope.With(context.Background(), &scope.Scope{ContextLimit: 32000, RetryFactor: 0.5})
	if got := svc.EffectiveBudget(ctx); got != 14900 {
		t.Errorf("overridden retry budget = %d, want 14900", got)
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGetPassesThroughShortSessions(t *testing.T) {
	events := conversation(3, 5000)
	svc := NewService(storeWith(events), ServiceConfig{})

	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(resp.Session.Events) != 3 {
		t.Fatalf("short session trimmed to %d events", len(resp.Session.Events))
	}
}

func TestGetPassesThroughUnderBudget(t *testing.T) {
	events := conversation(6, 100) // 600 tokens < 1800
	svc := NewService(storeWith(events), ServiceConfig{})

	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(resp.Session.Events) != 6 {
		t.Fatalf("under-budget session trimmed to %d events", len(resp.Session.Events))
	}
}

func TestGetFallsBackToFIFOWithoutRanker(t *testing.T) {
	// S1 shape: 10 events at 500 tokens, no ranker, budget 1800.
	events := conversation(10, 500)
	store := storeWith(events)
	svc := NewService(store, ServiceConfig{})

	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(resp.Session.Events) != 3 {
		t.Fatalf("got %d events, want last 3", len(resp.Session.Events))
	}
	if resp.Session.Events[0].ID != "e7" {
		t.Errorf("first surviving event = %s, want e7", resp.Session.Events[0].ID)
	}
}

func TestGetNeverWritesBack(t *testing.T) {
	events := conversation(10, 500)
	store := storeWith(events)
	svc := NewService(store, ServiceConfig{})

	if _, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if store.replaces != 0 || store.appends != 0 {
		t.Fatalf("trimming wrote to the store: %d replaces, %d appends", store.replaces, store.appends)
	}
	if len(store.session.Events) != 10 {
		t.Fatalf("stored session shrank to %d events", len(store.session.Events))
	}
}

func TestGetTrimsTighterOnRetry(t *testing.T) {
	events := conversation(10, 500)
	svc := NewService(storeWith(events), ServiceConfig{})

	ctx := scope.With(context.Background(), &scope.Scope{RetryFactor: 0.125})
	resp, err := svc.Get(ctx, &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// Floor budget 1000 fits only the last 2 events (1000 tokens).
	if len(resp.Session.Events) != 2 {
		t.Fatalf("retry pass kept %d events, want 2", len(resp.Session.Events))
	}
}

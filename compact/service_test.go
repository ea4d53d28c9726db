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

package compact

import (
	"context"
	"strings"
	"testing"

	sessionmemory "github.com/achetronic/adk-context-gateway/session/memory"

	"github.com/achetronic/adk-context-gateway/session"
)

// readOnlyStore wraps the in-memory store hiding its EventReplacer
// capability.
type readOnlyStore struct {
	inner session.Service
}

func (r *readOnlyStore) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	return r.inner.Create(ctx, req)
}

func (r *readOnlyStore) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	return r.inner.Get(ctx, req)
}

func (r *readOnlyStore) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	return r.inner.List(ctx, req)
}

func (r *readOnlyStore) Delete(ctx context.Context, req *session.DeleteRequest) error {
	return r.inner.Delete(ctx, req)
}

func (r *readOnlyStore) AppendEvent(ctx context.Context, key session.Key, evt *session.Event) error {
	return r.inner.AppendEvent(ctx, key, evt)
}

func seedSession(t *testing.T, store session.Service, n int) session.Key {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Create(ctx, &session.CreateRequest{AppName: "app", UserID: "u", SessionID: "s1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	key := session.Key{AppName: "app", UserID: "u", SessionID: "s1"}
	for _, evt := range numberedEvents(n) {
		if err := store.AppendEvent(ctx, key, evt); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	return key
}

func TestServiceGetWritesBackThroughReplacer(t *testing.T) {
	inner := sessionmemory.NewInMemorySessionService()
	svc := NewService(inner, NewCompactor(&fakeSummarizer{text: "summary"}, 3, 1, 3))
	seedSession(t, inner, 7)

	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(resp.Session.Events) != 4 {
		t.Fatalf("compacted view has %d events, want 4", len(resp.Session.Events))
	}

	// The inner store must have shrunk too.
	stored, _ := inner.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if len(stored.Session.Events) != 4 {
		t.Fatalf("stored history has %d events, want 4 after write-back", len(stored.Session.Events))
	}
	if !strings.HasPrefix(stored.Session.Events[2].ID, "compaction_") {
		t.Errorf("stored event 2 = %s, want the summary event", stored.Session.Events[2].ID)
	}
}

func TestServiceGetViewOnlyWithoutReplacer(t *testing.T) {
	inner := sessionmemory.NewInMemorySessionService()
	svc := NewService(&readOnlyStore{inner: inner}, NewCompactor(&fakeSummarizer{text: "summary"}, 3, 1, 3))
	seedSession(t, inner, 7)

	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(resp.Session.Events) != 4 {
		t.Fatalf("compacted view has %d events, want 4", len(resp.Session.Events))
	}

	stored, _ := inner.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if len(stored.Session.Events) != 7 {
		t.Fatalf("stored history has %d events, want 7 untouched", len(stored.Session.Events))
	}
}

func TestServiceAppendCompactsInPlace(t *testing.T) {
	inner := sessionmemory.NewInMemorySessionService()
	svc := NewService(inner, NewCompactor(&fakeSummarizer{text: "summary"}, 3, 1, 3))
	key := seedSession(t, inner, 6)

	// The 7th append crosses the window and triggers in-place compaction.
	evt := numberedEvents(7)[6]
	if err := svc.AppendEvent(context.Background(), key, evt); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	stored, _ := inner.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if len(stored.Session.Events) != 4 {
		t.Fatalf("stored history has %d events after append, want 4", len(stored.Session.Events))
	}
}

func TestServiceCompactionFailureIsAdvisory(t *testing.T) {
	inner := sessionmemory.NewInMemorySessionService()
	svc := NewService(inner, NewCompactor(&fakeSummarizer{err: context.DeadlineExceeded}, 3, 1, 3))
	seedSession(t, inner, 7)

	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "app", UserID: "u", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get must absorb summarizer failure, got %v", err)
	}
	if len(resp.Session.Events) != 7 {
		t.Fatalf("failed compaction changed the session: %d events, want 7", len(resp.Session.Events))
	}
}

func TestServicePassThroughOperations(t *testing.T) {
	inner := sessionmemory.NewInMemorySessionService()
	svc := NewService(inner, NewCompactor(&fakeSummarizer{text: "summary"}, 3, 1, 3))

	if _, err := svc.Create(context.Background(), &session.CreateRequest{AppName: "app", UserID: "u", SessionID: "s1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	listed, err := svc.List(context.Background(), &session.ListRequest{AppName: "app", UserID: "u"})
	if err != nil || len(listed.Sessions) != 1 {
		t.Fatalf("List = (%d, %v), want 1 session", len(listed.Sessions), err)
	}
	if err := svc.Delete(context.Background(), &session.DeleteRequest{AppName: "app", UserID: "u", SessionID: "s1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}

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

package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/achetronic/adk-context-gateway/session"
)

const testRedisAddr = "localhost:6379"

// setupTestService connects to a local Redis; the whole suite is skipped
// when none is running.
func setupTestService(t *testing.T) *RedisSessionService {
	t.Helper()
	svc, err := NewRedisSessionService(RedisSessionServiceConfig{
		Addr: testRedisAddr,
		TTL:  5 * time.Minute,
	})
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func uniquePrefix(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test_%d", time.Now().UnixNano())
}

func TestCreateAndGet(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	app := uniquePrefix(t)

	resp, err := svc.Create(ctx, &session.CreateRequest{
		AppName: app,
		UserID:  "user-1",
		State:   map[string]any{"counter": float64(1)},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := svc.Get(ctx, &session.GetRequest{
		AppName:   app,
		UserID:    "user-1",
		SessionID: resp.Session.ID,
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Session.State["counter"] != float64(1) {
		t.Errorf("expected counter=1, got %v", got.Session.State["counter"])
	}
	t.Logf("✓ CreateAndGet: session %s", got.Session.ID)
}

func TestCreateDuplicate(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	app := uniquePrefix(t)

	req := &session.CreateRequest{AppName: app, UserID: "user-1", SessionID: "fixed-id"}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := svc.Create(ctx, req)
	if !errors.Is(err, session.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.Get(context.Background(), &session.GetRequest{
		AppName:   uniquePrefix(t),
		UserID:    "user-1",
		SessionID: "missing",
	})
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendAndLoadEvents(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	app := uniquePrefix(t)

	resp, err := svc.Create(ctx, &session.CreateRequest{AppName: app, UserID: "user-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	key := session.Key{AppName: app, UserID: "user-1", SessionID: resp.Session.ID}

	for i := 0; i < 3; i++ {
		evt := &session.Event{
			Author:  "user",
			Content: &session.Content{Role: "user", Parts: []*session.Part{{Text: fmt.Sprintf("message %d", i)}}},
		}
		if err := svc.AppendEvent(ctx, key, evt); err != nil {
			t.Fatalf("AppendEvent %d failed: %v", i, err)
		}
	}

	got, err := svc.Get(ctx, &session.GetRequest{AppName: app, UserID: "user-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Session.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(got.Session.Events))
	}
	for i, evt := range got.Session.Events {
		want := fmt.Sprintf("message %d", i)
		if text := session.EventText(evt); text != want {
			t.Errorf("event %d text = %q, want %q", i, text, want)
		}
		if evt.ID == "" || evt.Timestamp == 0 {
			t.Errorf("event %d missing stamped ID or timestamp", i)
		}
	}
	t.Logf("✓ AppendAndLoadEvents: %d events round-tripped", len(got.Session.Events))
}

func TestReplaceEvents(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	app := uniquePrefix(t)

	if _, err := svc.Create(ctx, &session.CreateRequest{AppName: app, UserID: "user-1", SessionID: "s1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	key := session.Key{AppName: app, UserID: "user-1", SessionID: "s1"}

	for i := 0; i < 4; i++ {
		if err := svc.AppendEvent(ctx, key, &session.Event{ID: fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	if err := svc.ReplaceEvents(ctx, key, []*session.Event{
		{ID: "summary", Timestamp: 1},
		{ID: "e3", Timestamp: 2},
	}); err != nil {
		t.Fatalf("ReplaceEvents failed: %v", err)
	}

	got, err := svc.Get(ctx, &session.GetRequest{AppName: app, UserID: "user-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Session.Events) != 2 {
		t.Fatalf("got %d events after replace, want 2", len(got.Session.Events))
	}
	if got.Session.Events[0].ID != "summary" || got.Session.Events[1].ID != "e3" {
		t.Errorf("unexpected order after replace: %s, %s", got.Session.Events[0].ID, got.Session.Events[1].ID)
	}
}

func TestDeleteRemovesSessionAndEvents(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	app := uniquePrefix(t)

	if _, err := svc.Create(ctx, &session.CreateRequest{AppName: app, UserID: "user-1", SessionID: "s1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	key := session.Key{AppName: app, UserID: "user-1", SessionID: "s1"}
	if err := svc.AppendEvent(ctx, key, &session.Event{ID: "e1"}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	if err := svc.Delete(ctx, &session.DeleteRequest{AppName: app, UserID: "user-1", SessionID: "s1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := svc.Get(ctx, &session.GetRequest{AppName: app, UserID: "user-1", SessionID: "s1"})
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	listed, err := svc.List(ctx, &session.ListRequest{AppName: app, UserID: "user-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed.Sessions) != 0 {
		t.Errorf("List after delete returned %d sessions, want 0", len(listed.Sessions))
	}
}

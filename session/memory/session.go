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

// Package memory provides the in-memory session store. It is the default
// baseline backend and exposes the EventReplacer capability so the
// compacting decorator can persist rewritten event lists.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/achetronic/adk-context-gateway/session"
)

// InMemorySessionService implements session.Service backed by nested maps
// keyed appName -> userID -> sessionID. All operations are guarded by a
// single mutex; the store exclusively owns the stored event lists and hands
// out copies on read.
type InMemorySessionService struct {
	mu       sync.Mutex
	sessions map[string]map[string]map[string]*session.Session
}

// NewInMemorySessionService creates an empty in-memory session store.
func NewInMemorySessionService() *InMemorySessionService {
	return &InMemorySessionService{
		sessions: make(map[string]map[string]map[string]*session.Session),
	}
}

// Create creates a new session. It returns session.ErrAlreadyExists if a
// session with the same ID is present, matching the canonical ADK behaviour.
func (s *InMemorySessionService) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.sessions[req.AppName]
	if !ok {
		users = make(map[string]map[string]*session.Session)
		s.sessions[req.AppName] = users
	}
	byID, ok := users[req.UserID]
	if !ok {
		byID = make(map[string]*session.Session)
		users[req.UserID] = byID
	}

	if _, exists := byID[sessionID]; exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrAlreadyExists)
	}

	state := make(map[string]any, len(req.State))
	for k, v := range req.State {
		state[k] = v
	}

	sess := &session.Session{
		AppName: req.AppName,
		UserID:  req.UserID,
		ID:      sessionID,
		State:   state,
		Events:  make([]*session.Event, 0),
	}
	byID[sessionID] = sess

	return &session.CreateResponse{Session: copySession(sess)}, nil
}

// Get retrieves a session by key. The returned session is a copy; mutating
// it never affects the stored one.
func (s *InMemorySessionService) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}
	return &session.GetResponse{Session: copySession(sess)}, nil
}

// List returns all sessions for one (app, user) pair.
func (s *InMemorySessionService) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*session.Session
	if users, ok := s.sessions[req.AppName]; ok {
		for _, sess := range users[req.UserID] {
			out = append(out, copySession(sess))
		}
	}
	return &session.ListResponse{Sessions: out}, nil
}

// Delete removes a session. Deleting a missing session is a no-op.
func (s *InMemorySessionService) Delete(ctx context.Context, req *session.DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.sessions[req.AppName]; ok {
		delete(users[req.UserID], req.SessionID)
	}
	return nil
}

// AppendEvent appends an event to a session, stamping its ID and timestamp
// when unset. Timestamps stay non-decreasing because they are assigned under
// the store lock.
func (s *InMemorySessionService) AppendEvent(ctx context.Context, key session.Key, evt *session.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(key)
	if err != nil {
		return err
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}

	sess.Events = append(sess.Events, evt)
	return nil
}

// ReplaceEvents atomically swaps a session's event list. The surviving
// events keep their relative order; the store takes ownership of the slice.
func (s *InMemorySessionService) ReplaceEvents(ctx context.Context, key session.Key, events []*session.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(key)
	if err != nil {
		return err
	}

	sess.Events = events
	return nil
}

// lookup must be called with the mutex held.
func (s *InMemorySessionService) lookup(key session.Key) (*session.Session, error) {
	if users, ok := s.sessions[key.AppName]; ok {
		if sess, ok := users[key.UserID][key.SessionID]; ok {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", key.SessionID, session.ErrNotFound)
}

func copySession(sess *session.Session) *session.Session {
	events := make([]*session.Event, len(sess.Events))
	copy(events, sess.Events)
	return sess.WithEvents(events)
}

var (
	_ session.Service       = (*InMemorySessionService)(nil)
	_ session.EventReplacer = (*InMemorySessionService)(nil)
)
